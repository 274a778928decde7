package testutils

import (
	"context"
	"sync"

	"github.com/aretw0/switchboard/pkg/domain"
)

// RecordingSink is a ports.EventSink that keeps every published event.
type RecordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *RecordingSink) Publish(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the published events.
func (s *RecordingSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

// OfType returns the published events of one type.
func (s *RecordingSink) OfType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range s.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many events of a type were published.
func (s *RecordingSink) Count(t domain.EventType) int {
	return len(s.OfType(t))
}
