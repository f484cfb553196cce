package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/setup"
)

// Store is the Redis persistence gateway and change notifier.
//
// Records live as JSON under BookmarkKey, indexed per owner in a sorted set
// scored by created_at. Every mutation publishes its change event on the
// owner's channel inside the same MULTI/EXEC.
type Store struct {
	client *redis.Client
	logger logger.Logger
	now    func() time.Time
	newID  func() string
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client, log logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		client: client,
		logger: log,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Ping checks that Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// CheckSchema reports reachability, pub/sub availability and the key layout marker.
func (s *Store) CheckSchema(ctx context.Context) []setup.Check {
	checks := make([]setup.Check, 0, 3)

	if err := s.client.Ping(ctx).Err(); err != nil {
		return append(checks, setup.Check{
			Name:   "redis reachable",
			Detail: err.Error(),
			Remedy: "check SHELF_REDIS_ADDR and credentials",
		})
	}
	checks = append(checks, setup.Check{Name: "redis reachable", OK: true})

	if err := s.client.PubSubNumSub(ctx, ChangesChannel("setup-probe")).Err(); err != nil {
		checks = append(checks, setup.Check{
			Name:   "pub/sub available",
			Detail: err.Error(),
			Remedy: "enable PUBLISH/SUBSCRIBE for the configured user (ACL +@pubsub)",
		})
	} else {
		checks = append(checks, setup.Check{Name: "pub/sub available", OK: true})
	}

	version, err := s.client.Get(ctx, KeySchema).Result()
	switch {
	case err == redis.Nil:
		checks = append(checks, setup.Check{
			Name:   "key layout",
			Detail: "marker missing",
			Remedy: "run `shelfctl setup --init`",
		})
	case err != nil:
		checks = append(checks, setup.Check{Name: "key layout", Detail: err.Error()})
	case version != SchemaVersion:
		checks = append(checks, setup.Check{
			Name:   "key layout",
			Detail: "version " + version + ", want " + SchemaVersion,
			Remedy: "migrate the keyspace or point SHELF_REDIS_DB at an empty database",
		})
	default:
		checks = append(checks, setup.Check{Name: "key layout", OK: true, Detail: "version " + version})
	}

	return checks
}

// InitSchema writes the key layout marker if it is absent.
func (s *Store) InitSchema(ctx context.Context) error {
	return s.client.SetNX(ctx, KeySchema, SchemaVersion, 0).Err()
}
