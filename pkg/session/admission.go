package session

import (
	"fmt"

	"github.com/aretw0/switchboard/pkg/domain"
)

// occupancy counts the records holding an admission slot. Caller holds m.mu.
func (m *Manager) occupancy() int {
	n := 0
	for _, r := range m.records {
		if r.state.HoldsSlot() {
			n++
		}
	}
	return n
}

// tryAdmit decides whether tenant may take a slot. Caller holds m.mu and must
// transition the record to initializing before releasing it, so a burst of
// concurrent creates cannot overshoot the ceiling.
func (m *Manager) tryAdmit(tenant domain.TenantID) error {
	if r := m.lookup(tenant); r != nil && r.state.HoldsSlot() {
		return nil
	}
	if used := m.occupancy(); used >= m.maxSessions {
		return fmt.Errorf("%w: %d/%d sessions active", domain.ErrCapacity, used, m.maxSessions)
	}
	return nil
}

// Occupancy returns the number of sessions currently holding a slot.
func (m *Manager) Occupancy() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.occupancy()
}
