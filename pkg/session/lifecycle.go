package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

var errSuperseded = errors.New("engine handle superseded")

// CreateSession admits the tenant, opens an engine handle and connects it.
//
// Sessions already ready or authenticated report already_connected; sessions
// waiting for login report in_progress with the pending QR payload. At capacity
// the call fails with domain.ErrCapacity, reports the queued state, and no
// record is touched. A failed start-up leaves the session failed and returns an
// error wrapping domain.ErrConnect.
func (m *Manager) CreateSession(ctx context.Context, tenant domain.TenantID) (domain.CreateResult, error) {
	if err := tenant.Validate(); err != nil {
		return domain.CreateResult{}, err
	}

	// A teardown in flight must finish before a new handle may exist.
	m.mu.Lock()
	for {
		td, busy := m.teardowns[tenant]
		if !busy {
			break
		}
		m.mu.Unlock()
		select {
		case <-td:
		case <-ctx.Done():
			return domain.CreateResult{}, ctx.Err()
		}
		m.mu.Lock()
	}

	if m.closed {
		m.mu.Unlock()
		return domain.CreateResult{}, ErrClosed
	}

	rec := m.lookup(tenant)
	if rec != nil {
		switch rec.state {
		case domain.StateReady, domain.StateAuthenticated:
			res := domain.CreateResult{Outcome: domain.OutcomeAlreadyConnected, State: rec.state}
			m.mu.Unlock()
			return res, nil
		case domain.StateQRReady, domain.StateInitializing:
			res := domain.CreateResult{Outcome: domain.OutcomeInProgress, State: rec.state, Credential: rec.credential}
			m.mu.Unlock()
			return res, nil
		}
	}

	if err := m.tryAdmit(tenant); err != nil {
		m.mu.Unlock()
		m.metrics.rejected()
		m.logger.Warn("Session rejected at capacity", "tenant", tenant, "max_sessions", m.maxSessions)
		return domain.CreateResult{Outcome: domain.OutcomeCapacityRejected, State: domain.StateQueued}, err
	}

	var stale ports.Engine
	if rec == nil {
		rec = &record{tenant: tenant, state: domain.StateNotInitialized}
		m.records[tenant] = rec
	} else {
		stale = rec.engine
		rec.engine = nil
		rec.stopTimers()
		rec.cancelOps()
	}
	rec.credential = ""
	rec.identity = domain.Identity{}
	rec.opCtx, rec.opCancel = context.WithCancel(context.Background())
	connecting := make(chan struct{})
	rec.connecting = connecting
	m.setState(rec, domain.StateInitializing)
	opCtx := rec.opCtx
	m.mu.Unlock()
	defer close(connecting)

	m.logger.Info("Creating session", "tenant", tenant)
	if stale != nil {
		m.closeEngine(tenant, stale)
	}

	err := m.connect.Run(opCtx, m.clock, func(ctx context.Context, attempt int) error {
		m.metrics.connectAttempt()
		err := m.connectOnce(ctx, rec, attempt)
		if err != nil {
			m.logger.Warn("Engine connect failed", "tenant", tenant, "attempt", attempt, "err", err)
		}
		return err
	})

	m.mu.Lock()
	current := m.lookup(tenant) == rec
	if err != nil && current && rec.state.HoldsSlot() {
		rec.stopTimers()
		rec.cancelOps()
		m.setState(rec, domain.StateFailed)
	}
	state := domain.StateNotInitialized
	if current {
		state = rec.state
	}
	m.mu.Unlock()

	if err != nil {
		if current {
			m.recordJournal(domain.JournalEntry{Tenant: tenant, State: domain.StateFailed, UpdatedAt: m.clock.Now().UTC()})
		}
		if !errors.Is(err, domain.ErrConnect) {
			err = fmt.Errorf("%w: %w", domain.ErrConnect, err)
		}
		return domain.CreateResult{Outcome: domain.OutcomeFailed, State: state}, fmt.Errorf("create session %s: %w", tenant, err)
	}
	if state == domain.StateFailed {
		return domain.CreateResult{Outcome: domain.OutcomeFailed, State: state}, fmt.Errorf("create session %s: %w", tenant, domain.ErrConnect)
	}
	return domain.CreateResult{Outcome: domain.OutcomeAccepted, State: state}, nil
}

// connectOnce installs a fresh engine handle under a new generation and connects it.
// On failure the handle is detached and closed.
func (m *Manager) connectOnce(ctx context.Context, rec *record, attempt int) error {
	tenant := rec.tenant

	m.mu.Lock()
	if m.lookup(tenant) != rec || !rec.state.HoldsSlot() {
		m.mu.Unlock()
		return errSuperseded
	}
	if attempt > 1 {
		rec.stopQRTimer()
		rec.credential = ""
		m.setState(rec, domain.StateInitializing)
	}
	m.gen++
	gen := m.gen
	rec.gen = gen
	m.mu.Unlock()

	engine, err := m.factory.Open(tenant, m.creds.Dir(tenant), m.handlerFor(tenant, gen))
	if err != nil {
		return fmt.Errorf("%w: open engine: %w", domain.ErrConnect, err)
	}

	m.mu.Lock()
	if m.lookup(tenant) != rec || rec.gen != gen {
		m.mu.Unlock()
		m.closeEngine(tenant, engine)
		return errSuperseded
	}
	rec.engine = engine
	m.mu.Unlock()

	if err := engine.Connect(ctx); err != nil {
		m.mu.Lock()
		detached := rec.engine == engine
		if detached {
			rec.engine = nil
		}
		m.mu.Unlock()
		if detached {
			m.closeEngine(tenant, engine)
		}
		return err
	}
	return nil
}

// closeEngine closes a detached handle behind every queued operation of the tenant.
func (m *Manager) closeEngine(tenant domain.TenantID, engine ports.Engine) {
	err := m.seq.Do(context.Background(), tenant, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, m.opTimeout)
		defer cancel()
		return engine.Close(ctx)
	})
	if err != nil {
		m.logger.Warn("Failed to close engine", "tenant", tenant, "err", err)
	}
}

// handlerFor binds engine events to the generation of the handle that emits them.
func (m *Manager) handlerFor(tenant domain.TenantID, gen uint64) ports.EventHandler {
	return func(ev ports.EngineEvent) {
		switch ev.Kind {
		case ports.EngineMessage:
			if ev.Message != nil {
				msg := *ev.Message
				m.spawn(func() { m.normalizeMessage(tenant, gen, msg) })
			}
		case ports.EngineParticipants:
			if ev.Participants != nil {
				change := *ev.Participants
				m.spawn(func() { m.normalizeParticipants(tenant, gen, change) })
			}
		default:
			m.onLifecycle(tenant, gen, ev)
		}
	}
}

// onLifecycle applies a lifecycle event to the record. Events of stale handles are dropped.
func (m *Manager) onLifecycle(tenant domain.TenantID, gen uint64, ev ports.EngineEvent) {
	m.mu.Lock()
	rec := m.lookup(tenant)
	if rec == nil || rec.gen != gen {
		m.mu.Unlock()
		m.logger.Debug("Dropping event of stale engine", "tenant", tenant, "event", ev.Kind)
		return
	}

	var (
		out     *domain.Event
		entry   *domain.JournalEntry
		retired ports.Engine
		wait    chan struct{}
	)
	now := m.clock.Now().UTC()

	switch ev.Kind {
	case ports.EngineQR:
		if rec.state != domain.StateInitializing && rec.state != domain.StateQRReady {
			break
		}
		rec.credential = ev.QR
		if rec.state == domain.StateInitializing {
			m.setState(rec, domain.StateQRReady)
			rec.qrTimer = m.clock.AfterFunc(m.qrTimeout, func() {
				m.spawn(func() { m.expireQR(tenant, gen) })
			})
		}
		out = &domain.Event{Type: domain.EventQR, Tenant: tenant, QR: ev.QR}

	case ports.EngineAuthenticated:
		if rec.state != domain.StateInitializing && rec.state != domain.StateQRReady {
			break
		}
		rec.credential = ""
		rec.stopQRTimer()
		m.setState(rec, domain.StateAuthenticated)
		out = &domain.Event{Type: domain.EventAuthenticated, Tenant: tenant}

	case ports.EngineReady:
		switch rec.state {
		case domain.StateAuthenticated, domain.StateInitializing, domain.StateQRReady:
		default:
			m.mu.Unlock()
			return
		}
		rec.credential = ""
		rec.stopQRTimer()
		rec.identity = ev.Identity
		m.setState(rec, domain.StateReady)
		out = &domain.Event{Type: domain.EventReady, Tenant: tenant, PhoneNumber: ev.Identity.PhoneNumber}
		entry = &domain.JournalEntry{Tenant: tenant, State: domain.StateReady, PhoneNumber: ev.Identity.PhoneNumber, LastConnectedAt: now, UpdatedAt: now}

	case ports.EngineDisconnected:
		if !rec.state.HasEngine() {
			break
		}
		rec.credential = ""
		rec.stopQRTimer()
		m.setState(rec, domain.StateDisconnected)
		out = &domain.Event{Type: domain.EventDisconnected, Tenant: tenant, Reason: ev.Reason}
		entry = &domain.JournalEntry{Tenant: tenant, State: domain.StateDisconnected, PhoneNumber: rec.identity.PhoneNumber, UpdatedAt: now}

	case ports.EngineAuthFailure:
		if !rec.state.HoldsSlot() {
			break
		}
		rec.credential = ""
		rec.stopTimers()
		rec.cancelOps()
		retired, rec.engine = rec.engine, nil
		wait = rec.connecting
		m.setState(rec, domain.StateFailed)
		out = &domain.Event{Type: domain.EventAuthFailure, Tenant: tenant, Reason: ev.Reason}
		entry = &domain.JournalEntry{Tenant: tenant, State: domain.StateFailed, UpdatedAt: now}
	}
	m.mu.Unlock()

	if retired != nil {
		// Connect may still be running on this handle; close it once it returns.
		m.spawn(func() {
			if wait != nil {
				<-wait
			}
			m.closeEngine(tenant, retired)
		})
	}
	if out != nil {
		m.logger.Info("Session event", "tenant", tenant, "event", out.Type)
		m.publish(context.Background(), *out)
	}
	if entry != nil {
		m.recordJournal(*entry)
	}
}

// expireQR destroys a session still waiting for login when its QR window closes.
func (m *Manager) expireQR(tenant domain.TenantID, gen uint64) {
	destroyed, err := m.teardown(context.Background(), tenant, func(r *record) bool {
		return r.gen == gen && r.state == domain.StateQRReady
	})
	if err != nil {
		m.logger.Warn("QR expiry teardown failed", "tenant", tenant, "err", err)
	}
	if !destroyed {
		return
	}
	m.logger.Info("QR window expired", "tenant", tenant)
	m.publish(context.Background(), domain.Event{Type: domain.EventQRTimeout, Tenant: tenant})
}

// invalidate moves a session whose transport is gone to disconnected and
// schedules a best-effort recreation.
func (m *Manager) invalidate(rec *record, cause error) {
	tenant := rec.tenant
	m.mu.Lock()
	if m.lookup(tenant) != rec || !rec.state.HoldsSlot() {
		m.mu.Unlock()
		return
	}
	rec.stopQRTimer()
	rec.credential = ""
	m.setState(rec, domain.StateDisconnected)
	if rec.recoveryTimer != nil {
		rec.recoveryTimer.Stop()
	}
	rec.recoveryTimer = m.clock.AfterFunc(m.recoveryDelay, func() {
		m.spawn(func() { m.recover(rec) })
	})
	phone := rec.identity.PhoneNumber
	m.mu.Unlock()

	m.logger.Warn("Session invalidated", "tenant", tenant, "err", cause)
	m.publish(context.Background(), domain.Event{Type: domain.EventDisconnected, Tenant: tenant, Reason: "session invalidated"})
	now := m.clock.Now().UTC()
	m.recordJournal(domain.JournalEntry{Tenant: tenant, State: domain.StateDisconnected, PhoneNumber: phone, UpdatedAt: now})
}

func (m *Manager) recover(rec *record) {
	m.mu.Lock()
	pending := m.lookup(rec.tenant) == rec && rec.state == domain.StateDisconnected && !m.closed
	if pending {
		rec.recoveryTimer = nil
	}
	m.mu.Unlock()
	if !pending {
		return
	}
	res, err := m.CreateSession(context.Background(), rec.tenant)
	if err != nil {
		m.logger.Warn("Session recovery failed", "tenant", rec.tenant, "err", err)
		return
	}
	m.logger.Info("Session recovery started", "tenant", rec.tenant, "outcome", res.Outcome)
}

// DestroySession tears the session down: timers stop, in-flight work is
// cancelled, queued operations drain, the handle is closed, and the record and
// its cache entries are deleted. Destroying an unknown tenant succeeds.
func (m *Manager) DestroySession(ctx context.Context, tenant domain.TenantID) error {
	if err := tenant.Validate(); err != nil {
		return err
	}
	_, err := m.teardown(ctx, tenant, nil)
	return err
}

// DeleteCredentials destroys the session, then removes its stored credentials.
func (m *Manager) DeleteCredentials(ctx context.Context, tenant domain.TenantID) error {
	if err := m.DestroySession(ctx, tenant); err != nil {
		return err
	}
	if err := m.creds.Delete(ctx, tenant); err != nil {
		return fmt.Errorf("delete credentials %s: %w", tenant, err)
	}
	m.logger.Info("Credentials deleted", "tenant", tenant)
	return nil
}

// teardown deletes the record of tenant if match accepts it (nil matches any).
// It reports whether this call removed the record.
func (m *Manager) teardown(ctx context.Context, tenant domain.TenantID, match func(*record) bool) (bool, error) {
	m.mu.Lock()
	for {
		td, busy := m.teardowns[tenant]
		if !busy {
			break
		}
		m.mu.Unlock()
		select {
		case <-td:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		m.mu.Lock()
	}

	rec := m.lookup(tenant)
	if rec == nil || (match != nil && !match(rec)) {
		m.mu.Unlock()
		return false, nil
	}
	delete(m.records, tenant)
	done := make(chan struct{})
	m.teardowns[tenant] = done
	rec.stopTimers()
	rec.cancelOps()
	engine := rec.engine
	rec.engine = nil
	rec.gen = 0
	connecting := rec.connecting
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.teardowns, tenant)
		m.mu.Unlock()
		close(done)
	}()

	m.logger.Info("Destroying session", "tenant", tenant)
	m.cache.invalidate(tenant)

	// The connect loop observes the cancelled context; wait so the handle it
	// may still install is accounted for before closing.
	if connecting != nil {
		<-connecting
	}
	if engine != nil {
		m.closeEngine(tenant, engine)
	} else {
		// Drain the queue even without a handle.
		_ = m.seq.Do(context.Background(), tenant, func(context.Context) error { return nil })
	}
	m.cache.invalidate(tenant)
	m.forgetJournal(tenant)
	return true, nil
}
