package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"order_pacer/internal/model"
)

// CycleTracker is the process-wide progress record of the current run.
// Counters only grow between resets; the next-update time only moves to an
// earlier pending timestamp, or forward once the held one has passed.
type CycleTracker struct {
	completed atomic.Int64
	failed    atomic.Int64
	total     atomic.Int64

	mu         sync.Mutex
	running    bool
	runID      string
	cycleStart time.Time
	next       time.Time

	now func() time.Time
}

func NewCycleTracker(now func() time.Time) *CycleTracker {
	if now == nil {
		now = time.Now
	}
	return &CycleTracker{now: now}
}

func (t *CycleTracker) Reset(runID string, start time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	t.runID = runID
	t.cycleStart = start
	t.next = time.Time{}
	t.completed.Store(0)
	t.failed.Store(0)
	t.total.Store(0)
}

func (t *CycleTracker) MarkStopped() {
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
}

func (t *CycleTracker) AddTotal(n int) {
	if n > 0 {
		t.total.Add(int64(n))
	}
}

func (t *CycleTracker) IncCompleted() { t.completed.Add(1) }

func (t *CycleTracker) IncFailed() { t.failed.Add(1) }

// OfferNext records at as the next update time if nothing is held, the held
// value is already in the past, or at is earlier. It reports whether the
// value changed.
func (t *CycleTracker) OfferNext(at time.Time) bool {
	if at.IsZero() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.next.IsZero() || t.next.Before(t.now()) || at.Before(t.next) {
		t.next = at
		return true
	}
	return false
}

func (t *CycleTracker) Snapshot() model.CycleStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return model.CycleStatus{
		Running:        t.running,
		RunID:          t.runID,
		CycleStartTime: t.cycleStart,
		Completed:      t.completed.Load(),
		Failed:         t.failed.Load(),
		Total:          t.total.Load(),
		NextUpdateTime: t.next,
	}
}
