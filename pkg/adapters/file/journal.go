package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
)

// Journal implements ports.SessionJournal using the local filesystem.
// It stores one JSON file per tenant in a configured directory.
type Journal struct {
	BasePath string
}

// NewJournal creates a new Journal with the given base path.
// If basePath is empty, it defaults to ".switchboard/journal".
func NewJournal(basePath string) *Journal {
	if basePath == "" {
		basePath = filepath.Join(".switchboard", "journal")
	}
	return &Journal{BasePath: basePath}
}

func (j *Journal) path(tenant domain.TenantID) (string, error) {
	if err := tenant.Validate(); err != nil {
		return "", err
	}
	return filepath.Join(j.BasePath, string(tenant)+".json"), nil
}

// Save persists the entry. The file is replaced atomically.
func (j *Journal) Save(ctx context.Context, entry domain.JournalEntry) error {
	filePath, err := j.path(entry.Tenant)
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(j.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure journal directory: %w", err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	tmp, err := os.CreateTemp(j.BasePath, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // No-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write journal file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync journal file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close journal file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to replace journal file: %w", err)
	}
	return nil
}

// Load retrieves the entry of a tenant.
func (j *Journal) Load(ctx context.Context, tenant domain.TenantID) (domain.JournalEntry, error) {
	filePath, err := j.path(tenant)
	if err != nil {
		return domain.JournalEntry{}, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.JournalEntry{}, domain.ErrSessionNotFound
		}
		return domain.JournalEntry{}, fmt.Errorf("failed to read journal file: %w", err)
	}

	var entry domain.JournalEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return domain.JournalEntry{}, fmt.Errorf("failed to unmarshal journal entry: %w", err)
	}
	return entry, nil
}

// Delete removes the journal file.
func (j *Journal) Delete(ctx context.Context, tenant domain.TenantID) error {
	filePath, err := j.path(tenant)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete journal file: %w", err)
	}
	return nil
}

// List returns the journaled tenants.
func (j *Journal) List(ctx context.Context) ([]domain.TenantID, error) {
	entries, err := os.ReadDir(j.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.TenantID{}, nil
		}
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}

	var tenants []domain.TenantID
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		tenants = append(tenants, domain.TenantID(strings.TrimSuffix(name, ".json")))
	}
	return tenants, nil
}
