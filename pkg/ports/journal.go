package ports

import (
	"context"

	"github.com/aretw0/switchboard/pkg/domain"
)

// SessionJournal persists a durable summary of each tenant's session,
// so status survives restarts of the process.
type SessionJournal interface {
	// Save persists the entry for entry.Tenant.
	Save(ctx context.Context, entry domain.JournalEntry) error

	// Load retrieves the entry for a tenant.
	// Returns domain.ErrSessionNotFound if there is none.
	Load(ctx context.Context, tenant domain.TenantID) (domain.JournalEntry, error)

	// Delete removes the entry for a tenant.
	Delete(ctx context.Context, tenant domain.TenantID) error

	// List returns the tenants with an entry.
	List(ctx context.Context) ([]domain.TenantID, error)
}
