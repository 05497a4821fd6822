package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/sunset-stats/internal/domain"
)

// Redis stores results in Redis with SET ... EX so entries survive restarts
// and are shared between replicas.
type Redis struct {
	client redis.UniversalClient
	clock  clockwork.Clock
}

// NewRedis wraps an existing client. The caller owns the client lifecycle
// unless it closes the cache with Close.
func NewRedis(client redis.UniversalClient, clock clockwork.Clock) *Redis {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Redis{client: client, clock: clock}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int, clock clockwork.Clock) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedis(client, clock), nil
}

func (r *Redis) Get(ctx context.Context, key string) (domain.SunsetResult, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SunsetResult{}, false, nil
	}
	if err != nil {
		return domain.SunsetResult{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	p, err := decode(b)
	if err != nil {
		return domain.SunsetResult{}, false, err
	}
	if !r.clock.Now().Before(p.ExpiresAt) {
		return domain.SunsetResult{}, false, nil
	}
	return p.Result, true, nil
}

func (r *Redis) Put(ctx context.Context, key string, result domain.SunsetResult, ttl time.Duration) error {
	b, err := encode(result, r.clock.Now().Add(ttl))
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
