// Package engine runs the per-target submission loops and exposes the run
// controller used by the HTTP surface.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"order_pacer/internal/config"
	"order_pacer/internal/logbus"
	"order_pacer/internal/model"
	"order_pacer/internal/notify"
	"order_pacer/internal/provider"
	"order_pacer/internal/schedule"
)

var (
	ErrAlreadyRunning = errors.New("a run is already active")
	ErrNoTargets      = model.ErrNoTargets
)

type SettingsSource interface {
	LoadSettings(ctx context.Context) (model.Settings, error)
}

type Options struct {
	Settings    SettingsSource
	Generator   SampleGenerator
	Browser     provider.Browser
	Prober      Prober
	Notifier    notify.Notifier
	Submissions notify.SubmissionSink
	Bus         *logbus.Bus

	Limits   config.LimitsConfig
	Schedule config.ScheduleConfig
	Timeouts config.BrowserConfig
	Form     config.FormConfig

	// Optional overrides, mostly for tests.
	Policy        *schedule.Policy
	Waiter        Waiter
	Rand          *rand.Rand
	Now           func() time.Time
	RetrySleep    func(ctx context.Context, d time.Duration) error
	NotifyTimeout time.Duration
}

type Engine struct {
	settings    SettingsSource
	prober      Prober
	notifier    notify.Notifier
	submissions notify.SubmissionSink
	bus         *logbus.Bus

	submitter *Submitter
	waiter    Waiter
	tracker   *CycleTracker
	policy    schedule.Policy
	loc       *time.Location
	now       func() time.Time
	notifyTTL time.Duration
	probeTTL  time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand

	mu      sync.Mutex
	session *runSession

	stateMu sync.Mutex
	states  map[string]*model.TargetState
}

// runSession owns everything one Start creates. A stopped session keeps
// its WaitGroup so a new Start can tell whether old loops are still alive.
type runSession struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool
	wg      sync.WaitGroup
	done    chan struct{}
}

func newRunSession() *runSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &runSession{
		id:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *runSession) active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func New(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc, err := opts.Schedule.Location()
	if err != nil || loc == nil {
		loc = time.UTC
	}
	policy := schedule.DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	waiter := opts.Waiter
	if waiter == nil {
		waiter = PreciseWaiter{Slice: opts.Schedule.PollSlice(), Now: now}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	submissions := opts.Submissions
	if submissions == nil {
		submissions = notify.Nop{}
	}
	notifyTTL := opts.NotifyTimeout
	if notifyTTL <= 0 {
		notifyTTL = 20 * time.Second
	}

	return &Engine{
		settings:    opts.Settings,
		prober:      opts.Prober,
		notifier:    notifier,
		submissions: submissions,
		bus:         opts.Bus,
		submitter: NewSubmitter(SubmitterOptions{
			Browser:   opts.Browser,
			Generator: opts.Generator,
			Bus:       opts.Bus,
			Limits:    opts.Limits,
			Form:      opts.Form,
			Timeouts:  opts.Timeouts,
			Sleep:     opts.RetrySleep,
			Now:       now,
		}),
		waiter:    waiter,
		tracker:   NewCycleTracker(now),
		policy:    policy,
		loc:       loc,
		now:       now,
		notifyTTL: notifyTTL,
		probeTTL:  opts.Timeouts.ReachabilityTimeout(),
		rng:       rng,
		states:    make(map[string]*model.TargetState),
	}
}

// Start launches one loop per configured target and returns without waiting
// for them. It fails with ErrAlreadyRunning while any loop of the previous
// run is still alive, including submissions finishing after a Stop.
func (e *Engine) Start(ctx context.Context) error {
	err := e.start(ctx)
	if errors.Is(err, ErrNoTargets) {
		e.notify("No target pages configured. Add at least one URL before starting.")
	}
	return err
}

func (e *Engine) start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil && e.session.active() {
		return ErrAlreadyRunning
	}
	settings, err := e.settings.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if len(settings.Targets) == 0 {
		return ErrNoTargets
	}

	sess := newRunSession()
	e.session = sess
	e.tracker.Reset(sess.id, e.now().In(e.loc))

	e.stateMu.Lock()
	e.states = make(map[string]*model.TargetState, len(settings.Targets))
	e.stateMu.Unlock()

	for _, url := range settings.Targets {
		e.setPhase(url, model.TargetPhaseIdle, nil)
		sess.wg.Add(1)
		go func(url string) {
			defer sess.wg.Done()
			e.runTarget(sess, url)
		}(url)
	}
	go func() {
		sess.wg.Wait()
		sess.cancel()
		e.tracker.MarkStopped()
		close(sess.done)
		e.publishStatus()
		e.bus.Log("info", "run finished", map[string]any{"runId": sess.id})
	}()

	e.bus.Log("info", "run started", map[string]any{"runId": sess.id, "targets": len(settings.Targets)})
	e.publishStatus()
	return nil
}

// Stop asks every loop to end at its next check and wakes loops that are
// waiting for a timestamp. Submissions already under way run to completion.
// Stopping an idle engine only confirms the stop.
func (e *Engine) Stop() {
	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()

	runID := ""
	if sess != nil && !sess.stopped.Swap(true) {
		sess.cancel()
		runID = sess.id
	}
	e.tracker.MarkStopped()
	e.publishStatus()

	e.bus.Log("info", "run stop requested", map[string]any{"runId": runID})
	e.notify("Random requests have been stopped. Submissions already in progress will still complete.")
}

// Wait blocks until every loop of the current run has returned.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()
	if sess == nil {
		return nil
	}
	select {
	case <-sess.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil && e.session.active()
}

func (e *Engine) Status() model.CycleStatus {
	return e.tracker.Snapshot()
}

func (e *Engine) Targets() []model.TargetState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	out := make([]model.TargetState, 0, len(e.states))
	for _, st := range e.states {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

func (e *Engine) Location() *time.Location { return e.loc }

// PreviewSchedule draws a schedule of n timestamps from now without running
// anything.
func (e *Engine) PreviewSchedule(n int) []time.Time {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.policy.Generate(n, e.now().In(e.loc), e.rng)
}

// SubmitOnce performs a single submission against url through the same gate
// and retry budget as scheduled submissions. It does not touch the tracker.
func (e *Engine) SubmitOnce(ctx context.Context, url string) (model.Submission, error) {
	settings, err := e.settings.LoadSettings(ctx)
	if err != nil {
		return model.Submission{}, fmt.Errorf("load settings: %w", err)
	}
	check := model.Settings{Targets: []string{url}, MinRequests: 1, MaxRequests: 1, MinQuantity: 1, MaxQuantity: 1}
	if err := check.Validate(); err != nil {
		return model.Submission{}, err
	}
	sub, err := e.submitter.Submit(ctx, url, settings)
	if err != nil {
		e.bus.Log("warn", "test submission failed", map[string]any{"url": url, "error": err.Error()})
		return model.Submission{}, err
	}
	e.bus.Log("info", "test submission sent", map[string]any{"url": url, "attempts": sub.Attempts})
	return sub, nil
}

func (e *Engine) notify(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.notifyTTL)
	defer cancel()
	if err := e.notifier.Notify(ctx, text); err != nil {
		e.bus.Log("warn", "notification failed", map[string]any{"error": err.Error()})
	}
}

func (e *Engine) publishStatus() {
	e.bus.Publish("cycle_status", e.tracker.Snapshot())
}

func (e *Engine) setPhase(url string, phase model.TargetPhase, mutate func(st *model.TargetState)) {
	e.stateMu.Lock()
	st := e.states[url]
	if st == nil {
		st = &model.TargetState{URL: url}
		e.states[url] = st
	}
	st.Phase = phase
	if mutate != nil {
		mutate(st)
	}
	st.UpdatedAt = e.now()
	snap := *st
	e.stateMu.Unlock()

	e.bus.Publish("target_state", snap)
}

func (e *Engine) drawCount(min, max int) int {
	if max < min {
		max = min
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return min + e.rng.Intn(max-min+1)
}

func (e *Engine) generate(n int, now time.Time) []time.Time {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.policy.Generate(n, now, e.rng)
}
