package testutils

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aretw0/switchboard/pkg/domain"
)

// FakeCredentials is an in-memory ports.CredentialStore.
type FakeCredentials struct {
	Base string

	mu            sync.Mutex
	authenticated map[domain.TenantID]bool
	deleted       []domain.TenantID
}

// NewFakeCredentials creates a store reporting the given tenants as authenticated.
func NewFakeCredentials(authenticated ...domain.TenantID) *FakeCredentials {
	c := &FakeCredentials{Base: "/var/lib/switchboard", authenticated: make(map[domain.TenantID]bool)}
	for _, t := range authenticated {
		c.authenticated[t] = true
	}
	return c
}

func (c *FakeCredentials) Dir(tenant domain.TenantID) string {
	return filepath.Join(c.Base, "session-"+string(tenant))
}

func (c *FakeCredentials) Authenticated(ctx context.Context) ([]domain.TenantID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.TenantID, 0, len(c.authenticated))
	for t := range c.authenticated {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (c *FakeCredentials) Delete(ctx context.Context, tenant domain.TenantID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.authenticated, tenant)
	c.deleted = append(c.deleted, tenant)
	return nil
}

// Deleted returns the tenants whose credentials were removed.
func (c *FakeCredentials) Deleted() []domain.TenantID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.TenantID(nil), c.deleted...)
}
