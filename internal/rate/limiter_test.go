package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, l Limiter) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "token:1.2.3.4")
		require.NoError(t, err)
		require.True(t, res.Allowed, "hit %d", i)
		require.EqualValues(t, 3-i, res.Remaining)
	}
	res, err := l.Allow(ctx, "token:1.2.3.4")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Positive(t, res.RetryAfter)

	other, err := l.Allow(ctx, "token:5.6.7.8")
	require.NoError(t, err)
	require.True(t, other.Allowed, "keys are independent")
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter(3, time.Minute)
	fixed := time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	exercise(t, l)

	// nueva ventana
	fixed = fixed.Add(time.Minute)
	res, err := l.Allow(context.Background(), "token:1.2.3.4")
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, "", 3, time.Minute)
	fixed := time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	exercise(t, l)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	require.Positive(t, mr.TTL(keys[0]), "window keys must expire")
}
