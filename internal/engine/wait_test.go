package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

func TestWaitUntilPastReturnsImmediately(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	w := PreciseWaiter{Slice: time.Minute, Now: clk.Now, Sleep: clk.Sleep}

	require.NoError(t, w.WaitUntil(context.Background(), clk.now.Add(-time.Hour)))
	require.NoError(t, w.WaitUntil(context.Background(), clk.now))
	assert.Empty(t, clk.sleeps)
}

func TestWaitUntilSlicesLongWaits(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := &fakeClock{now: start}
	w := PreciseWaiter{Slice: time.Minute, Now: clk.Now, Sleep: clk.Sleep}

	target := start.Add(150 * time.Second)
	require.NoError(t, w.WaitUntil(context.Background(), target))
	assert.Equal(t, []time.Duration{time.Minute, time.Minute, 30 * time.Second}, clk.sleeps)
	assert.Equal(t, target, clk.now)
}

func TestWaitUntilReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := PreciseWaiter{Slice: time.Minute}

	done := make(chan error, 1)
	go func() { done <- w.WaitUntil(ctx, time.Now().Add(time.Hour)) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("waiter did not return after cancel")
	}
}
