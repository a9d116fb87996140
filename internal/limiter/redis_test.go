package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/and161185/keygate/internal/clock"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestRedis_SlidingWindow(t *testing.T) {
	rdb, _ := newRedis(t)
	clk := clock.NewFake(t0)
	l := NewRedis(rdb, Limits{"check": {Max: 5, Window: time.Hour}}, clk, "")
	exerciseWindow(t, l, clk)
}

func TestRedis_KeyLayoutAndTTL(t *testing.T) {
	rdb, mr := newRedis(t)
	l := NewRedis(rdb, Limits{"check": {Max: 2, Window: time.Minute}}, clock.NewFake(t0), "test:")

	ok, _, err := l.Allow(context.Background(), 42, "check")
	require.NoError(t, err)
	require.True(t, ok)

	require.True(t, mr.Exists("test:42:check"))
	require.Equal(t, time.Minute, mr.TTL("test:42:check"))
}

func TestRedis_ServerDown(t *testing.T) {
	rdb, mr := newRedis(t)
	l := NewRedis(rdb, nil, clock.NewFake(t0), "")
	mr.Close()

	ok, _, err := l.Allow(context.Background(), 1, "check")
	require.Error(t, err)
	require.False(t, ok)
}
