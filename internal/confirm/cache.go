// Package confirm implements the two-step confirmation handshake that guards
// destructive operations: a pending request is parked in a short-lived cache
// and applied only when the caller approves it with the returned id.
package confirm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AgentMesh-Net/salesdesk/internal/telemetry"
)

// DefaultTTL is how long a pending confirmation stays approvable.
const DefaultTTL = 300 * time.Second

// KeyPrefix is the first segment of every cache key.
const KeyPrefix = "salesdesk"

// Cache stores pending confirmations. Retrieve is get-and-delete: for a given
// id at most one caller ever receives the payload.
type Cache interface {
	// Store writes payload under id with a TTL, overwriting any previous value.
	Store(ctx context.Context, id string, payload []byte, ttl time.Duration) error
	// Retrieve atomically reads and removes the payload. ok is false when the
	// id is unknown, expired, or already retrieved.
	Retrieve(ctx context.Context, id string) (payload []byte, ok bool, err error)
	// Exists reports whether id is currently stored, without consuming it.
	Exists(ctx context.Context, id string) (bool, error)
}

func cacheKey(namespace, id string) string {
	return KeyPrefix + ":" + namespace + ":" + id
}

var tracer = telemetry.Tracer("github.com/AgentMesh-Net/salesdesk/internal/confirm")

// RedisCache keeps pending confirmations in Redis with native key expiry.
type RedisCache struct {
	client    *redis.Client
	namespace string
	getDel    func(ctx context.Context, key string) *redis.StringCmd
}

// NewRedisCache returns a cache whose keys are scoped to namespace.
func NewRedisCache(client *redis.Client, namespace string) *RedisCache {
	return &RedisCache{client: client, namespace: namespace, getDel: client.GetDel}
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (c *RedisCache) Store(ctx context.Context, id string, payload []byte, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "confirm.cache.store")
	defer span.End()
	span.SetAttributes(attribute.String("confirm.namespace", c.namespace))

	if err := c.client.Set(ctx, cacheKey(c.namespace, id), payload, ttl).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "set")
		return err
	}
	return nil
}

func (c *RedisCache) Retrieve(ctx context.Context, id string) ([]byte, bool, error) {
	ctx, span := tracer.Start(ctx, "confirm.cache.retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("confirm.namespace", c.namespace))

	key := cacheKey(c.namespace, id)
	payload, err := c.getDel(ctx, key).Bytes()
	if err != nil && isUnknownCommand(err) {
		// Servers older than 6.2 lack GETDEL; MULTI keeps GET and DEL atomic.
		payload, err = c.getDelTx(ctx, key)
	}
	switch {
	case errors.Is(err, redis.Nil):
		span.SetAttributes(attribute.Bool("confirm.found", false))
		return nil, false, nil
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "getdel")
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("confirm.found", true))
	return payload, true, nil
}

func (c *RedisCache) getDelTx(ctx context.Context, key string) ([]byte, error) {
	var get *redis.StringCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return get.Bytes()
}

func (c *RedisCache) Exists(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "confirm.cache.exists")
	defer span.End()

	n, err := c.client.Exists(ctx, cacheKey(c.namespace, id)).Result()
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return n > 0, nil
}

func isUnknownCommand(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unknown command")
}
