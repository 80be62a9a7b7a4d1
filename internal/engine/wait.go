package engine

import (
	"context"
	"time"
)

// Waiter blocks until a wall-clock instant.
type Waiter interface {
	WaitUntil(ctx context.Context, at time.Time) error
}

// PreciseWaiter sleeps in slices of at most Slice so a cancelled context is
// noticed without waiting out a long timestamp. Instants in the past return
// immediately.
type PreciseWaiter struct {
	Slice time.Duration
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (w PreciseWaiter) WaitUntil(ctx context.Context, at time.Time) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	sleep := w.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	slice := w.Slice
	if slice <= 0 {
		slice = time.Minute
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := at.Sub(now())
		if remaining <= 0 {
			return nil
		}
		if err := sleep(ctx, min(slice, remaining)); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
