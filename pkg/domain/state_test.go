package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestTenantID_Validate(t *testing.T) {
	valid := []domain.TenantID{"acme", "tenant-42", "a.b", "user@example.com"}
	for _, id := range valid {
		assert.NoError(t, id.Validate(), id)
	}

	invalid := []domain.TenantID{"", "   ", ".", "..", "a/b", `a\b`, "../etc"}
	for _, id := range invalid {
		err := id.Validate()
		assert.ErrorIs(t, err, domain.ErrValidation, "%q", id)
	}
}

func TestSessionState_Slots(t *testing.T) {
	holds := map[domain.SessionState]bool{
		domain.StateNotInitialized: false,
		domain.StateQueued:         false,
		domain.StateInitializing:   true,
		domain.StateQRReady:        true,
		domain.StateAuthenticated:  true,
		domain.StateReady:          true,
		domain.StateDisconnected:   false,
		domain.StateFailed:         false,
	}
	for state, want := range holds {
		assert.Equal(t, want, state.HoldsSlot(), state)
	}

	assert.True(t, domain.StateDisconnected.HasEngine())
	assert.True(t, domain.StateReady.HasEngine())
	assert.False(t, domain.StateFailed.HasEngine())
	assert.False(t, domain.StateNotInitialized.HasEngine())
}

func TestValidationError(t *testing.T) {
	err := fmt.Errorf("send poll: %w", domain.NewValidationError("options", "need at least 2"))

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "send poll: invalid options: need at least 2", err.Error())

	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "options", ve.Field)
	assert.False(t, errors.Is(err, domain.ErrNotReady))
}
