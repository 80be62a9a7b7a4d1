package engine

import (
	"context"
	"time"
)

// RetryPolicy retries with linear backoff: the wait after attempt k is
// k*Base.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Sleep    func(ctx context.Context, d time.Duration) error
}

// Retry calls fn until it succeeds or the attempt budget is spent. It returns
// the number of attempts made and the last error. A cancelled context during
// a backoff ends the loop early with the last attempt's error.
func Retry(ctx context.Context, p RetryPolicy, fn func(attempt int) error) (int, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return attempt, nil
		}
		if attempt == attempts {
			break
		}
		if serr := sleep(ctx, time.Duration(attempt)*p.Base); serr != nil {
			return attempt, err
		}
	}
	return attempts, err
}
