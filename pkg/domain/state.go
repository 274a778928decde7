package domain

import (
	"strings"
	"time"
)

// TenantID is the external identifier (one per user/account) a session is scoped to.
type TenantID string

// Validate rejects identifiers that cannot be used as keys or directory names.
func (t TenantID) Validate() error {
	s := string(t)
	if strings.TrimSpace(s) == "" {
		return NewValidationError("tenant", "must not be empty")
	}
	if strings.ContainsAny(s, `/\`) || s == "." || s == ".." {
		return NewValidationError("tenant", "must not contain path separators")
	}
	return nil
}

// SessionState is the lifecycle position of a tenant's session.
type SessionState string

const (
	StateNotInitialized SessionState = "not_initialized"
	StateQueued         SessionState = "queued" // Returned to callers rejected for capacity, never stored
	StateInitializing   SessionState = "initializing"
	StateQRReady        SessionState = "qr_ready"
	StateAuthenticated  SessionState = "authenticated"
	StateReady          SessionState = "ready"
	StateDisconnected   SessionState = "disconnected"
	StateFailed         SessionState = "failed"
)

// HoldsSlot reports whether a session in this state counts against the concurrency ceiling.
func (s SessionState) HoldsSlot() bool {
	switch s {
	case StateInitializing, StateQRReady, StateAuthenticated, StateReady:
		return true
	}
	return false
}

// HasEngine reports whether a session in this state owns a live engine handle.
func (s SessionState) HasEngine() bool {
	return s.HoldsSlot() || s == StateDisconnected
}

// CreateOutcome classifies the result of a CreateSession call.
type CreateOutcome string

const (
	OutcomeAccepted         CreateOutcome = "accepted"
	OutcomeAlreadyConnected CreateOutcome = "already_connected"
	OutcomeInProgress       CreateOutcome = "in_progress"
	OutcomeCapacityRejected CreateOutcome = "capacity_rejected"
	OutcomeFailed           CreateOutcome = "failed"
)

// CreateResult is returned by CreateSession.
type CreateResult struct {
	Outcome    CreateOutcome `json:"outcome"`
	State      SessionState  `json:"state"`
	Credential string        `json:"credential,omitempty"`
}

// SessionStatus is a read-only snapshot of a tenant's session.
type SessionStatus struct {
	Tenant        TenantID     `json:"tenant"`
	State         SessionState `json:"state"`
	HasCredential bool         `json:"hasCredential"`
	PhoneNumber   string       `json:"phoneNumber,omitempty"`
	UpdatedAt     time.Time    `json:"updatedAt,omitempty"`
}

// Identity describes the account a session is logged in as.
type Identity struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phoneNumber"`
	PushName    string `json:"pushName,omitempty"`
}

// JournalEntry is the durable summary of a session kept by a SessionJournal.
type JournalEntry struct {
	Tenant          TenantID     `json:"tenant"`
	State           SessionState `json:"state"`
	PhoneNumber     string       `json:"phoneNumber,omitempty"`
	LastConnectedAt time.Time    `json:"lastConnectedAt,omitempty"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}
