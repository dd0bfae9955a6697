package security

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"blocktix/internal/status"
	"blocktix/models"

	"github.com/redis/go-redis/v9"
)

// LocalGuard rejects a second purchase by the same identity while the first
// is still in flight within this process.
type LocalGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{inflight: make(map[string]struct{})}
}

func (g *LocalGuard) Acquire(ctx context.Context, key string) (func(), error) {
	key = models.NormalizeIdentity(key)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inflight[key]; busy {
		return nil, status.ErrInFlight
	}
	g.inflight[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, key)
			g.mu.Unlock()
		})
	}, nil
}

// RedisGuard is LocalGuard shared across processes. The key expires after
// ttl so a crashed holder cannot block its identity forever.
type RedisGuard struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, prefix string, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &RedisGuard{redis: client, prefix: prefix, ttl: ttl}
}

func (g *RedisGuard) key(identity string) string {
	return fmt.Sprintf("%s:inflight:%s", g.prefix, models.NormalizeIdentity(identity))
}

func (g *RedisGuard) Acquire(ctx context.Context, identity string) (func(), error) {
	key := g.key(identity)

	ok, err := g.redis.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, status.ErrInFlight
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := g.redis.Del(ctx, key).Err(); err != nil {
				slog.Error("Failed to release in-flight key", "key", key, "error", err)
			}
		})
	}, nil
}
