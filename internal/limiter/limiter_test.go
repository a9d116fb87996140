package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/keygate/internal/clock"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func TestParseLimits(t *testing.T) {
	t.Parallel()

	l, err := ParseLimits("check=5/1h, redeem=10/1m,default=30/1m")
	require.NoError(t, err)
	require.Equal(t, Limit{Max: 5, Window: time.Hour}, l.For("check"))
	require.Equal(t, Limit{Max: 10, Window: time.Minute}, l.For("redeem"))
	require.Equal(t, Limit{Max: 30, Window: time.Minute}, l.For("other"))

	empty, err := ParseLimits("")
	require.NoError(t, err)
	require.Equal(t, fallback, empty.For("x"))

	for _, bad := range []string{"check", "check=5", "check=x/1h", "check=0/1h", "check=5/zz", "=5/1h", "check=5/-1s"} {
		_, err := ParseLimits(bad)
		require.Error(t, err, bad)
	}
}

// exerciseWindow checks the documented scenario: 5 allowed, 6th denied, allowed again after the window.
func exerciseWindow(t *testing.T, l Limiter, clk *clock.Fake) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, _, err := l.Allow(ctx, 7, "check")
		require.NoError(t, err)
		require.True(t, ok, "attempt %d", i+1)
		clk.Advance(time.Minute)
	}

	ok, retry, err := l.Allow(ctx, 7, "check")
	require.NoError(t, err)
	require.False(t, ok, "6th attempt must be denied")
	require.Equal(t, 55*time.Minute, retry)

	// denied attempts are free: still denied, same retry horizon
	ok, retry, err = l.Allow(ctx, 7, "check")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 55*time.Minute, retry)

	// another operation has its own window
	ok, _, err = l.Allow(ctx, 7, "verify")
	require.NoError(t, err)
	require.True(t, ok)

	// another user too
	ok, _, err = l.Allow(ctx, 8, "check")
	require.NoError(t, err)
	require.True(t, ok)

	clk.Advance(time.Hour)
	ok, _, err = l.Allow(ctx, 7, "check")
	require.NoError(t, err)
	require.True(t, ok, "7th attempt after the window must pass")
}

func TestMemory_SlidingWindow(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(t0)
	l := NewMemory(Limits{"check": {Max: 5, Window: time.Hour}}, clk)
	exerciseWindow(t, l, clk)
}

func TestMemory_WindowSlidesPerAttempt(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(t0)
	l := NewMemory(Limits{DefaultKey: {Max: 2, Window: 10 * time.Second}}, clk)
	ctx := context.Background()

	ok, _, _ := l.Allow(ctx, 1, "x") // t=0
	require.True(t, ok)
	clk.Advance(6 * time.Second)
	ok, _, _ = l.Allow(ctx, 1, "x") // t=6
	require.True(t, ok)
	clk.Advance(3 * time.Second)
	ok, retry, _ := l.Allow(ctx, 1, "x") // t=9
	require.False(t, ok)
	require.Equal(t, time.Second, retry)
	clk.Advance(time.Second)
	ok, _, _ = l.Allow(ctx, 1, "x") // t=10, first attempt left the window
	require.True(t, ok)
	ok, _, _ = l.Allow(ctx, 1, "x")
	require.False(t, ok, "no fixed-bucket reset at the boundary")
}

func TestMemory_ConcurrentCallsRespectMax(t *testing.T) {
	t.Parallel()

	l := NewMemory(Limits{"check": {Max: 5, Window: time.Hour}}, clock.NewFake(t0))
	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _, _ := l.Allow(context.Background(), 1, "check"); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(5), allowed.Load())
}

func TestMemory_Cleanup(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(t0)
	l := NewMemory(Limits{"a": {Max: 1, Window: time.Minute}, "b": {Max: 1, Window: time.Hour}}, clk)
	ctx := context.Background()
	_, _, _ = l.Allow(ctx, 1, "a")
	_, _, _ = l.Allow(ctx, 1, "b")
	require.Equal(t, 2, l.trackedWindows())

	clk.Advance(2 * time.Minute)
	require.Equal(t, 1, l.Cleanup())
	require.Equal(t, 1, l.trackedWindows())
}

func TestMemory_RequiresOperation(t *testing.T) {
	t.Parallel()

	_, _, err := NewMemory(nil, nil).Allow(context.Background(), 1, "")
	require.Error(t, err)
}
