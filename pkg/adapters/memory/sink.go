package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
)

// AllTenants subscribes to the events of every tenant.
const AllTenants domain.TenantID = ""

// Sink implements ports.EventSink by fanning events out to in-process subscribers.
// Slow subscribers lose events instead of blocking publishers.
type Sink struct {
	mu          sync.RWMutex
	subscribers map[domain.TenantID]map[chan domain.Event]struct{} // Tenant -> Set of Channels
	buffer      int
	logger      *slog.Logger
}

// SinkOption configures the Sink.
type SinkOption func(*Sink)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) SinkOption {
	return func(s *Sink) {
		s.buffer = n
	}
}

// WithLogger configures a logger for dropped events.
func WithLogger(logger *slog.Logger) SinkOption {
	return func(s *Sink) {
		s.logger = logger
	}
}

// NewSink creates a new in-memory sink.
func NewSink(opts ...SinkOption) *Sink {
	s := &Sink{
		subscribers: make(map[domain.TenantID]map[chan domain.Event]struct{}),
		buffer:      64,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe returns a channel receiving the events of tenant, or of every
// tenant for AllTenants, and a function that ends the subscription.
func (s *Sink) Subscribe(tenant domain.TenantID) (<-chan domain.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan domain.Event, s.buffer)
	if _, ok := s.subscribers[tenant]; !ok {
		s.subscribers[tenant] = make(map[chan domain.Event]struct{})
	}
	s.subscribers[tenant][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if subs, ok := s.subscribers[tenant]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(s.subscribers, tenant)
				}
			}
		})
	}
}

// Publish delivers the event to matching subscribers without blocking.
func (s *Sink) Publish(ctx context.Context, event domain.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.deliver(s.subscribers[event.Tenant], event)
	if event.Tenant != AllTenants {
		s.deliver(s.subscribers[AllTenants], event)
	}
	return nil
}

func (s *Sink) deliver(subs map[chan domain.Event]struct{}, event domain.Event) {
	for ch := range subs {
		select {
		case ch <- event:
		default:
			// Drop event if channel is full (slow subscriber)
			s.logger.Warn("Subscriber buffer full, dropping event", "tenant", event.Tenant, "event", event.Type)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (s *Sink) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, subs := range s.subscribers {
		n += len(subs)
	}
	return n
}
