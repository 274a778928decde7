package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
)

// RestoreOptions paces startup restoration.
type RestoreOptions struct {
	Pacing       time.Duration // Delay between two attempts
	PollInterval time.Duration // How often a candidate's state is checked
	MaxWait      time.Duration // How long a candidate may take to become ready
}

// DefaultRestoreOptions returns 5s pacing, 2s polling and a 2 minute bound.
func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{
		Pacing:       5 * time.Second,
		PollInterval: 2 * time.Second,
		MaxWait:      2 * time.Minute,
	}
}

// RestoreReport lists what Restore did with each candidate.
type RestoreReport struct {
	Attempted []domain.TenantID `json:"attempted"`
	Restored  []domain.TenantID `json:"restored"`
	Aborted   []domain.TenantID `json:"aborted"`
	Skipped   []domain.TenantID `json:"skipped"`
}

type restoreOutcome int

const (
	restored restoreOutcome = iota
	aborted
	skipped
)

// Restore recreates sessions whose credentials show a completed login, in
// tenant order (numeric ids by value, before any other id), one at a time and at most MaxSessions of them. A candidate
// that does not reach ready (it fails, asks for a new QR, disappears or runs
// out of time) is destroyed. Candidates beyond the ceiling are left untouched.
func (m *Manager) Restore(ctx context.Context) (RestoreReport, error) {
	var report RestoreReport

	candidates, err := m.creds.Authenticated(ctx)
	if err != nil {
		return report, fmt.Errorf("list authenticated credentials: %w", err)
	}
	sort.Slice(candidates, func(i, j int) bool { return tenantLess(candidates[i], candidates[j]) })
	m.logger.Info("Restoring sessions", "candidates", len(candidates), "max_sessions", m.maxSessions)

	for i, tenant := range candidates {
		if len(report.Attempted) >= m.maxSessions || m.Occupancy() >= m.maxSessions {
			report.Skipped = append(report.Skipped, candidates[i:]...)
			break
		}
		if len(report.Attempted) > 0 && m.restore.Pacing > 0 {
			select {
			case <-m.clock.After(m.restore.Pacing):
			case <-ctx.Done():
				report.Skipped = append(report.Skipped, candidates[i:]...)
				return report, ctx.Err()
			}
		}

		report.Attempted = append(report.Attempted, tenant)
		switch m.restoreOne(ctx, tenant) {
		case restored:
			report.Restored = append(report.Restored, tenant)
		case aborted:
			report.Aborted = append(report.Aborted, tenant)
		case skipped:
			report.Skipped = append(report.Skipped, tenant)
		}
	}

	m.logger.Info("Restore finished",
		"attempted", len(report.Attempted),
		"restored", len(report.Restored),
		"aborted", len(report.Aborted),
		"skipped", len(report.Skipped),
	)
	return report, ctx.Err()
}

func (m *Manager) stateOf(tenant domain.TenantID) domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.lookup(tenant); r != nil {
		return r.state
	}
	return domain.StateNotInitialized
}

func (m *Manager) restoreOne(ctx context.Context, tenant domain.TenantID) restoreOutcome {
	log := m.logger.With("tenant", tenant)

	if _, err := m.CreateSession(ctx, tenant); err != nil {
		if errors.Is(err, domain.ErrCapacity) {
			return skipped
		}
		log.Warn("Restore attempt failed", "err", err)
		m.abandon(tenant)
		return aborted
	}

	deadline := m.clock.Now().Add(m.restore.MaxWait)
	for {
		switch state := m.stateOf(tenant); state {
		case domain.StateReady:
			log.Info("Session restored")
			return restored
		case domain.StateFailed, domain.StateQRReady, domain.StateNotInitialized:
			log.Warn("Restored session did not reach ready", "state", state)
			m.abandon(tenant)
			return aborted
		}
		if !m.clock.Now().Before(deadline) {
			log.Warn("Restored session timed out", "max_wait", m.restore.MaxWait)
			m.abandon(tenant)
			return aborted
		}
		select {
		case <-m.clock.After(m.restore.PollInterval):
		case <-ctx.Done():
			m.abandon(tenant)
			return aborted
		}
	}
}

// abandon destroys a session restoration gave up on.
func (m *Manager) abandon(tenant domain.TenantID) {
	if err := m.DestroySession(context.Background(), tenant); err != nil {
		m.logger.Warn("Failed to destroy abandoned session", "tenant", tenant, "err", err)
	}
}

// tenantLess orders all-digit ids by numeric value ahead of other ids, which
// sort lexicographically.
func tenantLess(a, b domain.TenantID) bool {
	na, nb := digits(string(a)), digits(string(b))
	switch {
	case na && nb:
		x, y := strings.TrimLeft(string(a), "0"), strings.TrimLeft(string(b), "0")
		if len(x) != len(y) {
			return len(x) < len(y)
		}
		if x != y {
			return x < y
		}
		return a < b
	case na != nb:
		return na
	}
	return a < b
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
