// Package bolt provides a session journal backed by a bbolt database file.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"go.etcd.io/bbolt"
)

const sessionsBucket = "sessions"

// Journal implements ports.SessionJournal using bbolt.
type Journal struct {
	db *bbolt.DB
}

// NewJournal opens (or creates) the database at path.
// A database held by another process fails after one second.
func NewJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create sessions bucket: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Save stores or replaces the entry of a tenant.
func (j *Journal) Save(ctx context.Context, entry domain.JournalEntry) error {
	if err := entry.Tenant.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).Put([]byte(entry.Tenant), data)
	})
}

// Load retrieves the entry of a tenant.
func (j *Journal) Load(ctx context.Context, tenant domain.TenantID) (domain.JournalEntry, error) {
	var entry domain.JournalEntry
	err := j.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(sessionsBucket)).Get([]byte(tenant))
		if data == nil {
			return domain.ErrSessionNotFound
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return domain.JournalEntry{}, err
	}
	return entry, nil
}

// Delete removes the entry of a tenant. Missing entries are not an error.
func (j *Journal) Delete(ctx context.Context, tenant domain.TenantID) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).Delete([]byte(tenant))
	})
}

// List returns the journaled tenants in key order.
func (j *Journal) List(ctx context.Context) ([]domain.TenantID, error) {
	tenants := []domain.TenantID{}
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).ForEach(func(k, _ []byte) error {
			tenants = append(tenants, domain.TenantID(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return tenants, nil
}
