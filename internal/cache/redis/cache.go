// Package redis provides the TTL-bound session turn cache. Entries
// are an ephemeral projection of the durable conversation store: a
// miss or stale read costs a reload, never correctness.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// Ensure TurnCache implements the interface.
var _ driven.TurnCache = (*TurnCache)(nil)

// Default configuration values.
const (
	DefaultAddr       = "localhost:6379"
	DefaultKeyPrefix  = "quarry:session:"
	DefaultSessionTTL = 30 * time.Minute
)

// Config holds configuration for the turn cache.
type Config struct {
	// Addr is the redis server address (default: localhost:6379).
	Addr string

	// Password is the redis password, empty for none.
	Password string

	// DB is the redis database number.
	DB int

	// KeyPrefix namespaces session keys (default: quarry:session:).
	KeyPrefix string
}

// TurnCache caches session turns in redis.
type TurnCache struct {
	client *redis.Client
	prefix string
}

// New creates a redis-backed turn cache.
func New(cfg Config) *TurnCache {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}

	return &TurnCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: cfg.KeyPrefix,
	}
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client, prefix string) *TurnCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &TurnCache{client: client, prefix: prefix}
}

// GetSession returns the cached turns and true on a hit.
func (c *TurnCache) GetSession(ctx context.Context, sessionID string) ([]domain.ConversationTurn, bool, error) {
	data, err := c.client.Get(ctx, c.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var turns []domain.ConversationTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		// A corrupt entry is treated as a miss so the caller falls
		// back to the durable store.
		return nil, false, nil
	}
	return turns, true, nil
}

// SetSession replaces the cached projection with the given TTL.
func (c *TurnCache) SetSession(ctx context.Context, sessionID string, turns []domain.ConversationTurn, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.key(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached projection.
func (c *TurnCache) Invalidate(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Ping validates the server is reachable. Used at startup.
func (c *TurnCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}
	return nil
}

// Close releases the client connection.
func (c *TurnCache) Close() error {
	return c.client.Close()
}

func (c *TurnCache) key(sessionID string) string {
	return c.prefix + sessionID
}
