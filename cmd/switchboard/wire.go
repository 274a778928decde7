package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/switchboard/internal/config"
	"github.com/aretw0/switchboard/pkg/adapters/bolt"
	"github.com/aretw0/switchboard/pkg/adapters/bridge"
	"github.com/aretw0/switchboard/pkg/adapters/file"
	"github.com/aretw0/switchboard/pkg/adapters/memory"
	"github.com/aretw0/switchboard/pkg/adapters/redis"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/persistence/middleware"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/aretw0/switchboard/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
)

// app holds everything a serving command needs.
type app struct {
	manager  *session.Manager
	events   *memory.Sink
	registry *prometheus.Registry
	closers  []func() error
}

func (a *app) Close(ctx context.Context) error {
	err := a.manager.Close(ctx)
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, a.closers[i]())
	}
	return err
}

func redisClient(c config.RedisConfig) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
}

// openJournal returns the configured journal, wrapped by the at-rest protections
// that are enabled, and the function releasing it.
// client is created on demand and shared with the event publisher.
func openJournal(c *config.Config, client func() *backend.Client) (ports.SessionJournal, func() error, error) {
	var mws []middleware.Middleware
	if c.Journal.MaskPhones {
		mws = append(mws, middleware.NewPIIMiddleware(c.Journal.MaskKeep))
	}
	active, fallback, ok, err := c.Journal.Keys()
	if err != nil {
		return nil, nil, err
	}
	if ok {
		seal, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
		if err != nil {
			return nil, nil, err
		}
		mws = append(mws, seal)
	}

	j, release, err := openBackend(c, client)
	if err != nil {
		return nil, nil, err
	}
	return middleware.Chain(j, mws...), release, nil
}

func openBackend(c *config.Config, client func() *backend.Client) (ports.SessionJournal, func() error, error) {
	noop := func() error { return nil }
	switch c.Journal.Backend {
	case config.JournalMemory:
		return memory.NewJournal(), noop, nil
	case config.JournalFile:
		return file.NewJournal(c.Journal.Path), noop, nil
	case config.JournalBolt:
		j, err := bolt.NewJournal(c.Journal.Path)
		if err != nil {
			return nil, nil, err
		}
		return j, j.Close, nil
	case config.JournalRedis:
		return redis.NewJournalFromClient(client(),
			redis.WithPrefix(c.Redis.Prefix),
			redis.WithTTL(c.Journal.TTL),
		), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown journal backend %q", c.Journal.Backend)
}

func newCredentials(c *config.Config) *file.Credentials {
	return file.NewCredentials(c.Credentials.Dir, file.WithProbe(bridge.ProfileProbe))
}

func build(c *config.Config, logger *slog.Logger) (*app, error) {
	factory, err := bridge.NewFactory(c.Bridge.URL,
		bridge.WithToken(c.Bridge.Token),
		bridge.WithConnectTimeout(c.Bridge.ConnectTimeout),
		bridge.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	a := &app{
		events:   memory.NewSink(memory.WithLogger(logger)),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var rdb *backend.Client
	client := func() *backend.Client {
		if rdb == nil {
			rdb = redisClient(c.Redis)
			a.closers = append(a.closers, rdb.Close)
		}
		return rdb
	}

	journal, release, err := openJournal(c, client)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, release)

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithMaxSessions(c.Sessions.MaxSessions),
		session.WithQRTimeout(c.Sessions.QRTimeout),
		session.WithOperationTimeout(c.Sessions.OperationTimeout),
		session.WithCacheTTL(c.Sessions.CacheTTL),
		session.WithRecoveryDelay(c.Sessions.RecoveryDelay),
		session.WithMaxTextBytes(c.Sessions.MaxTextBytes),
		session.WithConnectPolicy(session.RetryPolicy{
			MaxAttempts: c.Sessions.ConnectAttempts,
			Backoff:     c.Sessions.ConnectBackoff,
			Retryable: func(err error) bool {
				return errors.Is(err, domain.ErrConnectTimeout)
			},
		}),
		session.WithRestoreOptions(session.RestoreOptions{
			Pacing:       c.Sessions.Restore.Pacing,
			PollInterval: c.Sessions.Restore.PollInterval,
			MaxWait:      c.Sessions.Restore.MaxWait,
		}),
		session.WithJournal(journal),
		session.WithSink(a.events),
		session.WithMetrics(session.NewMetrics(a.registry)),
	}
	if c.Redis.Publish {
		opts = append(opts, session.WithSink(redis.NewSink(client(), c.Redis.Channel)))
	}

	a.manager = session.New(factory, newCredentials(c), opts...)
	return a, nil
}
