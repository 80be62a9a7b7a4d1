package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"order_pacer/internal/config"
	"order_pacer/internal/logbus"
	"order_pacer/internal/model"
	"order_pacer/internal/provider"
)

// networkQuiet is how long the page must go without requests to count as
// loaded. The whole wait is bounded by the idle timeout.
const networkQuiet = time.Second

type SampleGenerator interface {
	Name(ctx context.Context) (string, error)
	Phone(ctx context.Context) (string, error)
	Quantity(min, max int) int
}

// Submitter fills and submits the order form in a fresh browser session.
// At most MaxInFlight submissions hold a browser at once, process-wide.
type Submitter struct {
	browser  provider.Browser
	gen      SampleGenerator
	bus      *logbus.Bus
	gate     *semaphore.Weighted
	limiter  *rate.Limiter
	retry    RetryPolicy
	form     config.FormConfig
	timeouts config.BrowserConfig
	now      func() time.Time
}

type SubmitterOptions struct {
	Browser   provider.Browser
	Generator SampleGenerator
	Bus       *logbus.Bus
	Limits    config.LimitsConfig
	Form      config.FormConfig
	Timeouts  config.BrowserConfig
	// Sleep overrides the retry backoff sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func NewSubmitter(opts SubmitterOptions) *Submitter {
	maxInFlight := opts.Limits.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 3
	}
	attempts := opts.Limits.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	var limiter *rate.Limiter
	if opts.Limits.GlobalQPS > 0 {
		burst := opts.Limits.GlobalBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.Limits.GlobalQPS), burst)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Submitter{
		browser:  opts.Browser,
		gen:      opts.Generator,
		bus:      opts.Bus,
		gate:     semaphore.NewWeighted(int64(maxInFlight)),
		limiter:  limiter,
		retry:    RetryPolicy{Attempts: attempts, Base: opts.Limits.RetryBase(), Sleep: opts.Sleep},
		form:     opts.Form,
		timeouts: opts.Timeouts,
		now:      now,
	}
}

// Submit holds a gate slot for the whole retry sequence and returns the
// filled values of the attempt that succeeded.
func (s *Submitter) Submit(ctx context.Context, url string, settings model.Settings) (model.Submission, error) {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return model.Submission{}, err
	}
	defer s.gate.Release(1)

	var out model.Submission
	attempts, err := Retry(ctx, s.retry, func(attempt int) error {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		sub, err := s.attempt(ctx, url, settings)
		if err != nil {
			s.bus.Log("warn", "submission attempt failed", map[string]any{
				"url":     url,
				"attempt": attempt,
				"error":   err.Error(),
			})
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return model.Submission{}, fmt.Errorf("submit %s failed after %d attempts: %w", url, attempts, err)
	}
	out.Attempts = attempts
	return out, nil
}

func (s *Submitter) attempt(ctx context.Context, url string, settings model.Settings) (sub model.Submission, err error) {
	sess, err := s.browser.NewSession(ctx)
	if err != nil {
		return model.Submission{}, fmt.Errorf("new session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			s.bus.Log("debug", "close session failed", map[string]any{"error": cerr.Error()})
		}
	}()

	if err := withTimeout(ctx, s.timeouts.NavigateTimeout(), func(c context.Context) error {
		return sess.Navigate(c, url)
	}); err != nil {
		return model.Submission{}, err
	}
	if err := withTimeout(ctx, s.timeouts.IdleTimeout(), func(c context.Context) error {
		return sess.WaitIdle(c, networkQuiet)
	}); err != nil {
		s.bus.Log("debug", "page not idle, continuing", map[string]any{"url": url, "error": err.Error()})
	}

	selectors := []string{s.form.NameSelector, s.form.PhoneSelector, s.form.QuantitySelector, s.form.SubmitSelector}
	for _, sel := range selectors {
		if err := withTimeout(ctx, s.timeouts.ElementTimeout(), func(c context.Context) error {
			return sess.WaitVisible(c, sel)
		}); err != nil {
			return model.Submission{}, err
		}
	}

	name, err := s.gen.Name(ctx)
	if err != nil {
		return model.Submission{}, fmt.Errorf("generate name: %w", err)
	}
	phone, err := s.gen.Phone(ctx)
	if err != nil {
		return model.Submission{}, fmt.Errorf("generate phone: %w", err)
	}
	qty := s.gen.Quantity(settings.MinQuantity, settings.MaxQuantity)

	steps := []func(context.Context) error{
		func(c context.Context) error { return sess.Fill(c, s.form.NameSelector, name) },
		func(c context.Context) error { return sess.Fill(c, s.form.PhoneSelector, phone) },
		func(c context.Context) error { return sess.Select(c, s.form.QuantitySelector, strconv.Itoa(qty)) },
		func(c context.Context) error { return sess.Click(c, s.form.SubmitSelector) },
	}
	for _, step := range steps {
		if err := withTimeout(ctx, s.timeouts.ElementTimeout(), step); err != nil {
			return model.Submission{}, err
		}
	}

	return model.Submission{
		URL:      url,
		Name:     name,
		Phone:    phone,
		Quantity: qty,
		At:       s.now(),
	}, nil
}

func withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(c)
}
