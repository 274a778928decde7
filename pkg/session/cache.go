package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/jonboulle/clockwork"
)

const (
	keyGroups   = "groups"
	keyChannels = "channels"
)

func membersKey(groupID string) string { return "members:" + groupID }
func contactKey(id string) string      { return "contact:" + id }

type cacheEntry struct {
	value      any
	capturedAt time.Time
}

// readCache holds read results per tenant and query key.
// Entries stay available as stale fallbacks until replaced or invalidated.
type readCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   clockwork.Clock
	entries map[domain.TenantID]map[string]cacheEntry
}

func newReadCache(ttl time.Duration) *readCache {
	return &readCache{
		ttl:     ttl,
		clock:   clockwork.NewRealClock(),
		entries: make(map[domain.TenantID]map[string]cacheEntry),
	}
}

func (c *readCache) get(tenant domain.TenantID, key string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[tenant][key]
	return e, ok
}

// fresh returns the value only if it was captured within the TTL.
func (c *readCache) fresh(tenant domain.TenantID, key string) (any, bool) {
	e, ok := c.get(tenant, key)
	if !ok || c.clock.Since(e.capturedAt) >= c.ttl {
		return nil, false
	}
	return e.value, true
}

func (c *readCache) stale(tenant domain.TenantID, key string) (any, bool) {
	e, ok := c.get(tenant, key)
	return e.value, ok
}

func (c *readCache) store(tenant domain.TenantID, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, ok := c.entries[tenant]
	if !ok {
		bucket = make(map[string]cacheEntry)
		c.entries[tenant] = bucket
	}
	bucket[key] = cacheEntry{value: value, capturedAt: c.clock.Now()}
}

func (c *readCache) invalidate(tenant domain.TenantID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenant)
}

func (c *readCache) size(tenant domain.TenantID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries[tenant])
}

// cachedRead serves key from the cache while fresh and otherwise fetches it
// through the tenant's sequencer. Timeouts and invalidations fall back to the
// last known value, or to the zero value when there is none.
func cachedRead[T any](ctx context.Context, m *Manager, tenant domain.TenantID, key string, fetch func(context.Context, ports.Engine) (T, error)) (T, error) {
	var zero T
	if v, ok := m.cache.fresh(tenant, key); ok {
		m.metrics.cacheLookup("hit")
		return v.(T), nil
	}

	var out T
	err := m.run(ctx, tenant, "read:"+cacheOp(key), func(ctx context.Context, engine ports.Engine) error {
		// Another caller may have filled the entry while this one waited its turn.
		if v, ok := m.cache.fresh(tenant, key); ok {
			out = v.(T)
			return nil
		}
		v, err := fetch(ctx, engine)
		if err != nil {
			return err
		}
		m.cache.store(tenant, key, v)
		out = v
		return nil
	})
	if err == nil {
		m.metrics.cacheLookup("miss")
		return out, nil
	}
	if errors.Is(err, domain.ErrTimeout) || errors.Is(err, domain.ErrSessionInvalidated) {
		if v, ok := m.cache.stale(tenant, key); ok {
			m.metrics.cacheLookup("stale")
			m.logger.Info("Serving stale read", "tenant", tenant, "key", key, "err", err)
			return v.(T), nil
		}
		m.logger.Warn("Read failed without cached fallback", "tenant", tenant, "key", key, "err", err)
		return zero, nil
	}
	return zero, err
}

// cacheOp strips the variable part of a key for metric labels.
func cacheOp(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}
