package session

import (
	"context"
	"sync"

	"github.com/aretw0/switchboard/pkg/domain"
)

// link is one position in a tenant's chain; done closes when it finishes.
type link struct {
	done chan struct{}
}

// sequencer runs operations one at a time per tenant, in submission order.
// Tenants are independent. A tenant's entry is dropped once its chain drains.
type sequencer struct {
	mu    sync.Mutex
	tails map[domain.TenantID]*link
}

func newSequencer() *sequencer {
	return &sequencer{tails: make(map[domain.TenantID]*link)}
}

// Do appends fn to the tenant's chain and runs it after every earlier link
// completed, whatever their outcome. If ctx ends while waiting, Do returns
// ctx.Err() without running fn; the link still completes in order.
func (s *sequencer) Do(ctx context.Context, tenant domain.TenantID, fn func(context.Context) error) error {
	s.mu.Lock()
	prev := s.tails[tenant]
	me := &link{done: make(chan struct{})}
	s.tails[tenant] = me
	s.mu.Unlock()

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			go func() {
				<-prev.done
				s.finish(tenant, me)
			}()
			return ctx.Err()
		}
	}
	defer s.finish(tenant, me)
	return fn(ctx)
}

func (s *sequencer) finish(tenant domain.TenantID, l *link) {
	close(l.done)
	s.mu.Lock()
	if s.tails[tenant] == l {
		delete(s.tails, tenant)
	}
	s.mu.Unlock()
}

// pending returns the number of tenants with a non-drained chain.
func (s *sequencer) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tails)
}
