package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/switchboard/pkg/adapters/file"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.CredentialStore = (*file.Credentials)(nil)

func mkdir(t *testing.T, parts ...string) string {
	t.Helper()
	dir := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func touch(t *testing.T, parts ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(parts...), []byte("x"), 0o600))
}

func TestCredentials_Authenticated(t *testing.T) {
	base := t.TempDir()
	creds := file.NewCredentials(base, file.WithProbe(func(dir string) bool {
		_, err := os.Stat(filepath.Join(dir, "logged-in"))
		return err == nil
	}))

	touch(t, mkdir(t, base, "session-bravo"), "logged-in")
	touch(t, mkdir(t, base, "session-alpha"), "logged-in")
	mkdir(t, base, "session-pending")
	mkdir(t, base, "unrelated")
	touch(t, base, "session-file")

	tenants, err := creds.Authenticated(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.TenantID{"alpha", "bravo"}, tenants)
	assert.Equal(t, filepath.Join(base, "session-alpha"), creds.Dir("alpha"))
}

func TestCredentials_DefaultProbeNeedsContent(t *testing.T) {
	base := t.TempDir()
	creds := file.NewCredentials(base)

	mkdir(t, base, "session-empty")
	touch(t, mkdir(t, base, "session-full"), "data")

	tenants, err := creds.Authenticated(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.TenantID{"full"}, tenants)
}

func TestCredentials_Delete(t *testing.T) {
	base := t.TempDir()
	creds := file.NewCredentials(base)
	touch(t, mkdir(t, base, "session-acme", "Default"), "Cookies")

	require.NoError(t, creds.Delete(context.Background(), "acme"))
	assert.NoDirExists(t, creds.Dir("acme"))
	assert.NoError(t, creds.Delete(context.Background(), "acme"), "deleting twice is fine")
	assert.ErrorIs(t, creds.Delete(context.Background(), ".."), domain.ErrValidation)
}

func TestCredentials_MissingBase(t *testing.T) {
	creds := file.NewCredentials(filepath.Join(t.TempDir(), "missing"))
	tenants, err := creds.Authenticated(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tenants)
}
