// Package backend opens the persistence gateway and change notifier selected
// by configuration. The server and shelfctl both go through it.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/shelf/internal/config"
	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/postgres"
	"github.com/MrSnakeDoc/shelf/internal/redis"
	"github.com/MrSnakeDoc/shelf/internal/setup"
	"github.com/MrSnakeDoc/shelf/internal/store/memory"
	pgstore "github.com/MrSnakeDoc/shelf/internal/store/postgres"
	redisstore "github.com/MrSnakeDoc/shelf/internal/store/redis"
)

// Store is what every backend provides.
type Store interface {
	domain.Gateway
	domain.Notifier
	domain.Pinger
	setup.Checker
	setup.Initializer
}

// Migrator is implemented by backends with versioned migrations.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// ErrNoMigrations is returned by Migrate on backends without migrations.
var ErrNoMigrations = errors.New("backend has no migrations")

// Handle is an open backend.
type Handle struct {
	Kind  string
	Store Store

	closers []func() error
}

// Open connects to the backend described by b, retrying as configured.
func Open(ctx context.Context, b config.Backend, log logger.Logger) (*Handle, error) {
	switch b.Kind {
	case config.BackendMemory:
		log.Warn("using the in-memory backend: bookmarks are lost on restart")
		return &Handle{Kind: b.Kind, Store: memory.New()}, nil

	case config.BackendRedis:
		log.Infof("Connecting to Redis at %s", b.RedisAddr)
		client, err := redis.New(ctx, redis.ConnectOptions{
			Addr:           b.RedisAddr,
			User:           b.RedisUser,
			Password:       b.RedisPassword,
			DB:             b.RedisDB,
			DialTimeout:    b.RedisDT,
			ReadTimeout:    b.RedisRT,
			WriteTimeout:   b.RedisWT,
			PoolSize:       b.RedisPoolSize,
			ConnectTimeout: b.RedisConnectTimeout,
			RetryInterval:  b.RedisRetryInterval,
			MaxWait:        b.RedisMaxWait,
			PingTimeout:    b.RedisPingTimeout,
			WarnThreshold:  b.RedisWarnThreshold,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return &Handle{
			Kind:    b.Kind,
			Store:   redisstore.NewStore(client, logger.Named(log, "redis")),
			closers: []func() error{client.Close},
		}, nil

	case config.BackendPostgres:
		log.Info("Connecting to Postgres", logger.String("dsn", b.Redacted().PostgresDSN))
		pool, err := postgres.New(ctx, postgres.ConnectOptions{
			DSN:            b.PostgresDSN,
			MaxConns:       int32(b.PostgresMaxConns),
			ConnectTimeout: b.PostgresConnectTimeout,
			RetryInterval:  b.PostgresRetryInterval,
			MaxWait:        b.PostgresMaxWait,
			PingTimeout:    b.PostgresPingTimeout,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		db := postgres.OpenDB(pool)
		return &Handle{
			Kind:  b.Kind,
			Store: pgstore.NewStore(db, pool, logger.Named(log, "postgres")),
			closers: []func() error{
				db.Close,
				func() error { pool.Close(); return nil },
			},
		}, nil
	}

	return nil, fmt.Errorf("unknown backend %q", b.Kind)
}

// Migrate applies pending migrations when the backend has any.
func (h *Handle) Migrate(ctx context.Context) error {
	m, ok := h.Store.(Migrator)
	if !ok {
		return ErrNoMigrations
	}
	return m.Migrate(ctx)
}

// Close releases every connection held by the backend.
func (h *Handle) Close() error {
	var errs []error
	for _, c := range h.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	h.closers = nil
	return errors.Join(errs...)
}
