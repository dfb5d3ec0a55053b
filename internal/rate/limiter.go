// Package rate implementa rate limiting de ventana fija para los endpoints OAuth.
package rate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter: fixed window sencillo (INCR + EXPIRE), compartido entre réplicas.
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{
		Client: client,
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := l.now().UTC().Truncate(l.Window)
	redisKey := fmt.Sprintf("%s%s:%d", l.Prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	// expiry en el primer hit de la ventana
	if incr.Val() == 1 {
		_ = l.Client.Expire(ctx, redisKey, l.Window).Err()
		ttl = l.Client.TTL(ctx, redisKey)
	}
	return buildResult(incr.Val(), l.Max, ttl.Val(), l.Window), nil
}

// MemoryLimiter es la variante in-process sobre go-cache (una sola réplica).
type MemoryLimiter struct {
	c      *gocache.Cache
	Max    int64
	Window time.Duration
	now    func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		c:      gocache.New(window, 2*window),
		Max:    int64(max),
		Window: window,
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now().UTC()
	winStart := now.Truncate(l.Window)
	k := fmt.Sprintf("%s:%d", key, winStart.Unix())

	// Add es atómico: sólo el primer hit de la ventana crea la entrada; después falla.
	_ = l.c.Add(k, int64(0), l.Window)
	hits, err := l.c.IncrementInt64(k, 1)
	if err != nil {
		return Result{}, err
	}
	ttl := winStart.Add(l.Window).Sub(now)
	return buildResult(hits, l.Max, ttl, l.Window), nil
}

func buildResult(hits, max int64, ttl, window time.Duration) Result {
	remaining := max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     hits <= max,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		// Retry after: resto de la ventana
		res.RetryAfter = ttl
		if res.RetryAfter <= 0 {
			res.RetryAfter = time.Duration(math.Ceil(window.Seconds())) * time.Second
		}
	}
	return res
}
