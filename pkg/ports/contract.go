package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionJournalContract runs a suite of tests to verify that a SessionJournal implementation
// adheres to the defined interface contract.
func RunSessionJournalContract(t *testing.T, journal SessionJournal) {
	ctx := context.Background()
	tenant := domain.TenantID("contract-test-" + time.Now().Format("20060102150405"))
	connectedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Save and Load", func(t *testing.T) {
		entry := domain.JournalEntry{
			Tenant:          tenant,
			State:           domain.StateReady,
			PhoneNumber:     "15550001111",
			LastConnectedAt: connectedAt,
			UpdatedAt:       connectedAt,
		}

		err := journal.Save(ctx, entry)
		require.NoError(t, err, "Save should not return error")

		loaded, err := journal.Load(ctx, tenant)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, tenant, loaded.Tenant)
		assert.Equal(t, domain.StateReady, loaded.State)
		assert.Equal(t, "15550001111", loaded.PhoneNumber)
		assert.True(t, connectedAt.Equal(loaded.LastConnectedAt))
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		err := journal.Save(ctx, domain.JournalEntry{Tenant: tenant, State: domain.StateDisconnected, UpdatedAt: connectedAt})
		require.NoError(t, err)

		loaded, err := journal.Load(ctx, tenant)
		require.NoError(t, err)
		assert.Equal(t, domain.StateDisconnected, loaded.State)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := journal.Load(ctx, "non-existent-"+tenant)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := journal.Save(ctx, domain.JournalEntry{Tenant: tenant, State: domain.StateReady})
		require.NoError(t, err)

		err = journal.Delete(ctx, tenant)
		require.NoError(t, err, "Delete should not return error")

		_, err = journal.Load(ctx, tenant)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")

		assert.NoError(t, journal.Delete(ctx, tenant), "Delete of a missing entry is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := tenant + "-1"
		id2 := tenant + "-2"
		_ = journal.Save(ctx, domain.JournalEntry{Tenant: id1, State: domain.StateReady})
		_ = journal.Save(ctx, domain.JournalEntry{Tenant: id2, State: domain.StateFailed})

		defer func() {
			_ = journal.Delete(ctx, id1)
			_ = journal.Delete(ctx, id2)
		}()

		tenants, err := journal.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, tenants, id1)
		assert.Contains(t, tenants, id2)
	})
}
