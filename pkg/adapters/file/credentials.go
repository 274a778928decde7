package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
)

const dirPrefix = "session-"

// Probe reports whether a credential directory holds a completed login.
// The rule belongs to the engine that wrote the directory.
type Probe func(dir string) bool

// Credentials implements ports.CredentialStore over per-tenant directories
// named "session-<tenant>" below a base path.
type Credentials struct {
	BasePath string
	probe    Probe
}

// CredentialsOption configures Credentials.
type CredentialsOption func(*Credentials)

// WithProbe sets the authenticity predicate used by Authenticated.
// Without one, every non-empty directory counts.
func WithProbe(p Probe) CredentialsOption {
	return func(c *Credentials) {
		c.probe = p
	}
}

// NewCredentials creates a store rooted at basePath (".switchboard/auth" when empty).
func NewCredentials(basePath string, opts ...CredentialsOption) *Credentials {
	if basePath == "" {
		basePath = filepath.Join(".switchboard", "auth")
	}
	c := &Credentials{BasePath: basePath, probe: nonEmpty}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func nonEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// Dir returns the credential directory of a tenant.
func (c *Credentials) Dir(tenant domain.TenantID) string {
	return filepath.Join(c.BasePath, dirPrefix+string(tenant))
}

// Authenticated lists tenants whose directory passes the probe, ordered by tenant.
func (c *Credentials) Authenticated(ctx context.Context) ([]domain.TenantID, error) {
	entries, err := os.ReadDir(c.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.TenantID{}, nil
		}
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	tenants := []domain.TenantID{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, dirPrefix) {
			continue
		}
		tenant := domain.TenantID(strings.TrimPrefix(name, dirPrefix))
		if tenant.Validate() != nil {
			continue
		}
		if c.probe(filepath.Join(c.BasePath, name)) {
			tenants = append(tenants, tenant)
		}
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i] < tenants[j] })
	return tenants, nil
}

// Delete removes the credential directory of a tenant.
func (c *Credentials) Delete(ctx context.Context, tenant domain.TenantID) error {
	if err := tenant.Validate(); err != nil {
		return err
	}
	if err := os.RemoveAll(c.Dir(tenant)); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}
