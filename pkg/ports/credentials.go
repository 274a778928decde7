package ports

import (
	"context"

	"github.com/aretw0/switchboard/pkg/domain"
)

// CredentialStore locates the engine's persisted credentials.
// The storage format belongs to the engine adapter.
type CredentialStore interface {
	// Dir returns the credential location handed to EngineFactory.Open.
	Dir(tenant domain.TenantID) string

	// Authenticated lists tenants whose stored credentials indicate a completed login.
	Authenticated(ctx context.Context) ([]domain.TenantID, error)

	// Delete removes the stored credentials of a tenant.
	Delete(ctx context.Context, tenant domain.TenantID) error
}
