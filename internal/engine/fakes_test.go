package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"order_pacer/internal/config"
	"order_pacer/internal/model"
	"order_pacer/internal/provider"
)

type fakeSettings struct {
	mu sync.Mutex
	s  model.Settings
}

func (f *fakeSettings) LoadSettings(context.Context) (model.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.s
	out.Targets = append([]string(nil), f.s.Targets...)
	return out, nil
}

func (f *fakeSettings) set(s model.Settings) {
	f.mu.Lock()
	f.s = s
	f.mu.Unlock()
}

type fakeGen struct{}

func (fakeGen) Name(context.Context) (string, error)  { return "Olena Petrenko", nil }
func (fakeGen) Phone(context.Context) (string, error) { return "+380501112233", nil }
func (fakeGen) Quantity(min, _ int) int               { return min }

// fakeBrowser records sessions and lets a test hook into navigation and the
// final click.
type fakeBrowser struct {
	sessions atomic.Int64
	closed   atomic.Int64

	newSession func(ctx context.Context) error
	waitIdle   func(ctx context.Context, quiet time.Duration) error
	click      func(ctx context.Context) error
}

func (b *fakeBrowser) NewSession(ctx context.Context) (provider.Session, error) {
	b.sessions.Add(1)
	if b.newSession != nil {
		if err := b.newSession(ctx); err != nil {
			return nil, err
		}
	}
	return &fakeSession{b: b}, nil
}

func (b *fakeBrowser) Close() error { return nil }

type fakeSession struct {
	b      *fakeBrowser
	mu     sync.Mutex
	filled map[string]string
}

func (s *fakeSession) Navigate(ctx context.Context, _ string) error        { return ctx.Err() }
func (s *fakeSession) WaitVisible(ctx context.Context, _ string) error     { return ctx.Err() }
func (s *fakeSession) Select(ctx context.Context, sel, value string) error { return s.Fill(ctx, sel, value) }

func (s *fakeSession) WaitIdle(ctx context.Context, quiet time.Duration) error {
	if s.b.waitIdle != nil {
		return s.b.waitIdle(ctx, quiet)
	}
	return nil
}

func (s *fakeSession) Fill(_ context.Context, sel, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filled == nil {
		s.filled = map[string]string{}
	}
	s.filled[sel] = value
	return nil
}

func (s *fakeSession) Click(ctx context.Context, _ string) error {
	if s.b.click != nil {
		return s.b.click(ctx)
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.b.closed.Add(1)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recordingNotifier) contains(sub string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

type instantWaiter struct{}

func (instantWaiter) WaitUntil(ctx context.Context, _ time.Time) error { return ctx.Err() }

type fakeProber struct {
	down map[string]bool
}

func (p fakeProber) Probe(_ context.Context, url string) error {
	if p.down[url] {
		return fmt.Errorf("%w: dial tcp: connection refused", ErrUnreachable)
	}
	return nil
}

type testDeps struct {
	settings *fakeSettings
	browser  *fakeBrowser
	notifier *recordingNotifier
	prober   Prober
	waiter   Waiter
	sleeps   *sleepRecorder
}

type sleepRecorder struct {
	mu sync.Mutex
	d  []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.d = append(r.d, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) durations() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.d...)
}

func defaultDeps(targets ...string) *testDeps {
	s := model.DefaultSettings()
	s.Targets = targets
	s.MinRequests, s.MaxRequests = 5, 5
	return &testDeps{
		settings: &fakeSettings{s: s},
		browser:  &fakeBrowser{},
		notifier: &recordingNotifier{},
		waiter:   instantWaiter{},
		sleeps:   &sleepRecorder{},
	}
}

func newTestEngine(t *testing.T, d *testDeps) *Engine {
	t.Helper()
	return New(Options{
		Settings:  d.settings,
		Generator: fakeGen{},
		Browser:   d.browser,
		Prober:    d.prober,
		Notifier:  d.notifier,
		Limits: config.LimitsConfig{
			MaxInFlight:   3,
			RetryAttempts: 3,
			RetryBaseMs:   5000,
		},
		Schedule: config.ScheduleConfig{Timezone: "Europe/Kyiv"},
		Form: config.FormConfig{
			NameSelector:     "#full-name",
			PhoneSelector:    "#phone",
			QuantitySelector: "#qty",
			SubmitSelector:   `//button[contains(text(), "Оформити замовлення")]`,
		},
		Waiter:     d.waiter,
		Rand:       rand.New(rand.NewSource(1)),
		RetrySleep: d.sleeps.sleep,
	})
}
