package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by CreateSession once Close has been called.
var ErrClosed = errors.New("session manager closed")

const (
	DefaultMaxSessions      = 5
	DefaultQRTimeout        = 5 * time.Minute
	DefaultOperationTimeout = 60 * time.Second
	DefaultCacheTTL         = 60 * time.Second
	DefaultRecoveryDelay    = 10 * time.Second
	DefaultMaxTextBytes     = 64 << 10 // Per text, caption or poll field
)

// Manager orchestrates tenant sessions on top of a bounded pool of engine handles.
// A single Manager must own every engine of the process.
type Manager struct {
	factory ports.EngineFactory
	creds   ports.CredentialStore
	sinks   []ports.EventSink
	journal ports.SessionJournal // Optional
	metrics *Metrics             // Optional

	clock  clockwork.Clock
	logger *slog.Logger

	maxSessions   int
	qrTimeout     time.Duration
	opTimeout     time.Duration
	recoveryDelay time.Duration
	maxText       int
	connect       RetryPolicy
	restore       RestoreOptions

	mu        sync.Mutex // Guards records, teardowns, gen and closed
	records   map[domain.TenantID]*record
	teardowns map[domain.TenantID]chan struct{}
	gen       uint64
	closed    bool

	seq   *sequencer
	cache *readCache
	wg    sync.WaitGroup // Background work spawned by engine events and timers
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock replaces the wall clock used for timers, TTLs and backoff.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithMaxSessions sets the concurrency ceiling.
func WithMaxSessions(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxSessions = n
		}
	}
}

// WithQRTimeout sets how long a session may wait in qr_ready.
func WithQRTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.qrTimeout = d
	}
}

// WithOperationTimeout bounds every engine call issued on behalf of a caller.
func WithOperationTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.opTimeout = d
	}
}

// WithCacheTTL sets how long read results are served without refetching.
func WithCacheTTL(d time.Duration) Option {
	return func(m *Manager) {
		m.cache.ttl = d
	}
}

// WithRecoveryDelay sets the wait before an invalidated session is recreated.
func WithRecoveryDelay(d time.Duration) Option {
	return func(m *Manager) {
		m.recoveryDelay = d
	}
}

// WithMaxTextBytes bounds outgoing texts. Zero disables the bound.
func WithMaxTextBytes(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxText = n
		}
	}
}

// WithConnectPolicy sets the retry policy of engine start-up.
func WithConnectPolicy(p RetryPolicy) Option {
	return func(m *Manager) {
		m.connect = p
	}
}

// WithRestoreOptions sets the pacing of Restore.
func WithRestoreOptions(o RestoreOptions) Option {
	return func(m *Manager) {
		m.restore = o
	}
}

// WithSink adds an event sink. Events are delivered to sinks in registration order.
func WithSink(sink ports.EventSink) Option {
	return func(m *Manager) {
		m.sinks = append(m.sinks, sink)
	}
}

// WithJournal enables the durable session journal.
func WithJournal(journal ports.SessionJournal) Option {
	return func(m *Manager) {
		m.journal = journal
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// New creates a Manager opening engines through factory.
func New(factory ports.EngineFactory, creds ports.CredentialStore, opts ...Option) *Manager {
	m := &Manager{
		factory:       factory,
		creds:         creds,
		clock:         clockwork.NewRealClock(),
		logger:        logging.NewNop(), // Default to no-op
		maxSessions:   DefaultMaxSessions,
		qrTimeout:     DefaultQRTimeout,
		opTimeout:     DefaultOperationTimeout,
		recoveryDelay: DefaultRecoveryDelay,
		maxText:       DefaultMaxTextBytes,
		connect:       DefaultConnectPolicy(),
		restore:       DefaultRestoreOptions(),
		records:       make(map[domain.TenantID]*record),
		teardowns:     make(map[domain.TenantID]chan struct{}),
		seq:           newSequencer(),
		cache:         newReadCache(DefaultCacheTTL),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cache.clock = m.clock
	if m.metrics != nil {
		m.metrics.attach(m)
	}
	return m
}

// MaxSessions returns the concurrency ceiling.
func (m *Manager) MaxSessions() int {
	return m.maxSessions
}

// spawn runs fn in a goroutine tracked by Close.
func (m *Manager) spawn(fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

// publish stamps the event and hands it to every sink. Sink failures are logged.
func (m *Manager) publish(ctx context.Context, ev domain.Event) {
	ev.ID = uuid.NewString()
	ev.Timestamp = m.clock.Now().UTC()
	for _, sink := range m.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			m.logger.Warn("Failed to publish event",
				"tenant", ev.Tenant,
				"event", ev.Type,
				"err", err,
			)
		}
	}
	m.metrics.published(ev.Type)
}

// Close destroys every session and waits for background work to finish.
// CreateSession fails with ErrClosed afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	tenants := make([]domain.TenantID, 0, len(m.records))
	for t := range m.records {
		tenants = append(tenants, t)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, tenant := range tenants {
		g.Go(func() error {
			return m.DestroySession(gctx, tenant)
		})
	}
	err := g.Wait()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
