package memory

import (
	"context"
	"sync"

	"github.com/aretw0/switchboard/pkg/domain"
)

// Journal implements ports.SessionJournal in memory.
// Safe for concurrent use.
type Journal struct {
	data map[domain.TenantID]domain.JournalEntry
	mu   sync.RWMutex
}

// NewJournal creates a new in-memory journal.
func NewJournal() *Journal {
	return &Journal{
		data: make(map[domain.TenantID]domain.JournalEntry),
	}
}

// Save stores the entry. Entries are values, so callers cannot mutate stored state.
func (j *Journal) Save(ctx context.Context, entry domain.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.data[entry.Tenant] = entry
	return nil
}

// Load retrieves the entry of a tenant.
func (j *Journal) Load(ctx context.Context, tenant domain.TenantID) (domain.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	entry, ok := j.data[tenant]
	if !ok {
		return domain.JournalEntry{}, domain.ErrSessionNotFound
	}
	return entry, nil
}

// Delete removes the entry.
func (j *Journal) Delete(ctx context.Context, tenant domain.TenantID) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.data, tenant)
	return nil
}

// List returns the journaled tenants.
func (j *Journal) List(ctx context.Context) ([]domain.TenantID, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	tenants := make([]domain.TenantID, 0, len(j.data))
	for t := range j.data {
		tenants = append(tenants, t)
	}
	return tenants, nil
}
