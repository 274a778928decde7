package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linked waits until the tenant's tail differs from prev and returns it.
func linked(t *testing.T, s *sequencer, tenant domain.TenantID, prev *link) *link {
	t.Helper()
	var tail *link
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		tail = s.tails[tenant]
		return tail != nil && tail != prev
	}, time.Second, time.Millisecond)
	return tail
}

func TestSequencer_RunsInSubmissionOrder(t *testing.T) {
	s := newSequencer()
	ctx := context.Background()
	release := make(chan struct{})

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Do(ctx, "acme", func(context.Context) error {
			<-release
			mu.Lock()
			order = append(order, 0)
			mu.Unlock()
			return nil
		})
	}()
	tail := linked(t, s, "acme", nil)

	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Do(ctx, "acme", func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		tail = linked(t, s, "acme", tail)
	}

	close(release)
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, order)
	assert.Zero(t, s.pending())
}

func TestSequencer_FailureDoesNotBlockChain(t *testing.T) {
	s := newSequencer()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Do(ctx, "acme", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	ran := false
	err = s.Do(ctx, "acme", func(context.Context) error {
		ran = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, ran)
}

func TestSequencer_CancelWhileWaiting(t *testing.T) {
	s := newSequencer()
	release := make(chan struct{})
	firstDone := make(chan struct{})

	go func() {
		defer close(firstDone)
		_ = s.Do(context.Background(), "acme", func(context.Context) error {
			<-release
			return nil
		})
	}()
	tail := linked(t, s, "acme", nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	ran := false
	go func() {
		errCh <- s.Do(ctx, "acme", func(context.Context) error {
			ran = true
			return nil
		})
	}()
	tail = linked(t, s, "acme", tail)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// A later operation still waits for the first one.
	thirdDone := make(chan struct{})
	go func() {
		defer close(thirdDone)
		_ = s.Do(context.Background(), "acme", func(context.Context) error { return nil })
	}()
	linked(t, s, "acme", tail)

	select {
	case <-thirdDone:
		t.Fatal("operation ran before the chain ahead of it finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-firstDone
	<-thirdDone
	assert.False(t, ran)
	assert.Eventually(t, func() bool { return s.pending() == 0 }, time.Second, time.Millisecond)
}

func TestSequencer_TenantsRunInParallel(t *testing.T) {
	s := newSequencer()
	release := make(chan struct{})
	defer close(release)

	go func() {
		_ = s.Do(context.Background(), "a", func(context.Context) error {
			<-release
			return nil
		})
	}()
	linked(t, s, "a", nil)

	done := make(chan struct{})
	go func() {
		_ = s.Do(context.Background(), "b", func(context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tenant b was blocked by tenant a")
	}
}

func TestSequencer_ChainsAreReleased(t *testing.T) {
	s := newSequencer()
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		tenant := domain.TenantID(fmt.Sprintf("tenant-%d", i))
		_ = s.Do(ctx, tenant, func(context.Context) error { return nil })
	}

	leaked := s.pending()
	t.Logf("Tenants sequenced: %d, Chains leaked: %d", count, leaked)
	if leaked != 0 {
		t.Errorf("Memory Leak Detected: %d chains remaining after drain", leaked)
	}
}
