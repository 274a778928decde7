package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Journal implements ports.SessionJournal using Redis.
type Journal struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Journal.
type Option func(*Journal)

// WithTTL sets the expiration for journal entries.
func WithTTL(ttl time.Duration) Option {
	return func(j *Journal) {
		j.ttl = ttl
	}
}

// WithPrefix sets the key prefix for journal entries.
func WithPrefix(prefix string) Option {
	return func(j *Journal) {
		j.prefix = prefix
	}
}

// NewJournal creates a new Redis journal with options.
func NewJournal(address, password string, db int, opts ...Option) *Journal {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewJournalFromClient(rdb, opts...)
}

// NewJournalFromClient creates a new Redis journal from an existing client.
func NewJournalFromClient(client *backend.Client, opts ...Option) *Journal {
	j := &Journal{
		client: client,
		prefix: "switchboard:session:",
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

func (j *Journal) key(tenant domain.TenantID) string {
	return j.prefix + string(tenant)
}

func (j *Journal) indexKey() string {
	return j.prefix + "index"
}

// Save persists the entry to Redis.
func (j *Journal) Save(ctx context.Context, entry domain.JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	pipe := j.client.Pipeline()

	// 1. Save JSON with TTL (0 means no expiration)
	pipe.Set(ctx, j.key(entry.Tenant), data, j.ttl)

	// 2. Add to Index (ZSET)
	// Score = Now + TTL. If TTL = 0, Score = far future.
	score := float64(time.Now().Add(j.ttl).Unix())
	if j.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}

	pipe.ZAdd(ctx, j.indexKey(), backend.Z{
		Score:  score,
		Member: string(entry.Tenant),
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the entry from Redis.
func (j *Journal) Load(ctx context.Context, tenant domain.TenantID) (domain.JournalEntry, error) {
	val, err := j.client.Get(ctx, j.key(tenant)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.JournalEntry{}, domain.ErrSessionNotFound
		}
		return domain.JournalEntry{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var entry domain.JournalEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return domain.JournalEntry{}, fmt.Errorf("failed to unmarshal journal entry: %w", err)
	}
	return entry, nil
}

// Delete removes the entry.
func (j *Journal) Delete(ctx context.Context, tenant domain.TenantID) error {
	pipe := j.client.Pipeline()

	pipe.Del(ctx, j.key(tenant))
	pipe.ZRem(ctx, j.indexKey(), string(tenant))

	_, err := pipe.Exec(ctx)
	return err
}

// List returns journaled tenants, pruning expired ones from the index.
func (j *Journal) List(ctx context.Context) ([]domain.TenantID, error) {
	// Lazy Cleanup: ZREMRANGEBYSCORE key -inf (now)
	now := float64(time.Now().Unix())
	err := j.client.ZRemRangeByScore(ctx, j.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired entries: %w", err)
	}

	members, err := j.client.ZRange(ctx, j.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}

	tenants := make([]domain.TenantID, len(members))
	for i, m := range members {
		tenants[i] = domain.TenantID(m)
	}
	return tenants, nil
}

// Close closes the redis client.
func (j *Journal) Close() error {
	return j.client.Close()
}
