package session

import (
	"context"
	"sort"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/jonboulle/clockwork"
)

// record is the registry entry of one tenant. Every field is guarded by Manager.mu.
type record struct {
	tenant     domain.TenantID
	state      domain.SessionState
	engine     ports.Engine
	gen        uint64 // Token of the engine handle whose events are accepted
	credential string
	identity   domain.Identity
	updatedAt  time.Time

	qrTimer       clockwork.Timer
	recoveryTimer clockwork.Timer

	// opCtx parents every engine call; cancelled on teardown and re-initialization.
	opCtx    context.Context
	opCancel context.CancelFunc

	// connecting is closed when the CreateSession that installed the current handle returns.
	connecting chan struct{}
}

func (r *record) stopTimers() {
	r.stopQRTimer()
	if r.recoveryTimer != nil {
		r.recoveryTimer.Stop()
		r.recoveryTimer = nil
	}
}

func (r *record) stopQRTimer() {
	if r.qrTimer != nil {
		r.qrTimer.Stop()
		r.qrTimer = nil
	}
}

func (r *record) cancelOps() {
	if r.opCancel != nil {
		r.opCancel()
	}
}

// setState is the only place a record changes state. Caller holds m.mu.
func (m *Manager) setState(r *record, state domain.SessionState) {
	if r.state == state {
		return
	}
	m.logger.Debug("Session state changed",
		"tenant", r.tenant,
		"from", r.state,
		"state", state,
	)
	r.state = state
	r.updatedAt = m.clock.Now().UTC()
}

// lookup returns the live record of a tenant. Caller holds m.mu.
func (m *Manager) lookup(tenant domain.TenantID) *record {
	return m.records[tenant]
}

// State returns a snapshot of the tenant's session.
// Tenants without a record report not_initialized.
func (m *Manager) State(tenant domain.TenantID) domain.SessionStatus {
	m.mu.Lock()
	status := domain.SessionStatus{Tenant: tenant, State: domain.StateNotInitialized}
	if r := m.lookup(tenant); r != nil {
		status.State = r.state
		status.HasCredential = r.credential != ""
		status.PhoneNumber = r.identity.PhoneNumber
		status.UpdatedAt = r.updatedAt
	}
	m.mu.Unlock()

	if status.PhoneNumber == "" && m.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if entry, err := m.journal.Load(ctx, tenant); err == nil {
			status.PhoneNumber = entry.PhoneNumber
		}
	}
	return status
}

// PendingCredential returns the QR payload of a session waiting for login.
func (m *Manager) PendingCredential(tenant domain.TenantID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.lookup(tenant)
	if r == nil || r.state != domain.StateQRReady || r.credential == "" {
		return "", false
	}
	return r.credential, true
}

// Sessions returns a snapshot of every registered session, ordered by tenant.
func (m *Manager) Sessions() []domain.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SessionStatus, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, domain.SessionStatus{
			Tenant:        r.tenant,
			State:         r.state,
			HasCredential: r.credential != "",
			PhoneNumber:   r.identity.PhoneNumber,
			UpdatedAt:     r.updatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tenant < out[j].Tenant })
	return out
}

// recordJournal persists the journal entry of a session. Best effort.
func (m *Manager) recordJournal(entry domain.JournalEntry) {
	if m.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if entry.LastConnectedAt.IsZero() && entry.State != domain.StateReady {
		if prev, err := m.journal.Load(ctx, entry.Tenant); err == nil {
			entry.LastConnectedAt = prev.LastConnectedAt
			if entry.PhoneNumber == "" {
				entry.PhoneNumber = prev.PhoneNumber
			}
		}
	}
	if err := m.journal.Save(ctx, entry); err != nil {
		m.logger.Warn("Failed to save session journal", "tenant", entry.Tenant, "err", err)
	}
}

func (m *Manager) forgetJournal(tenant domain.TenantID) {
	if m.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.journal.Delete(ctx, tenant); err != nil {
		m.logger.Warn("Failed to delete session journal", "tenant", tenant, "err", err)
	}
}
