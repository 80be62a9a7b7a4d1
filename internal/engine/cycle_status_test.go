package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerResetAndCounters(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	tr := NewCycleTracker(func() time.Time { return now })

	tr.Reset("run-1", now)
	tr.AddTotal(5)
	tr.AddTotal(-2)
	tr.IncCompleted()
	tr.IncFailed()

	st := tr.Snapshot()
	assert.True(t, st.Running)
	assert.Equal(t, "run-1", st.RunID)
	assert.Equal(t, now, st.CycleStartTime)
	assert.EqualValues(t, 5, st.Total)
	assert.EqualValues(t, 1, st.Completed)
	assert.EqualValues(t, 1, st.Failed)

	tr.MarkStopped()
	assert.False(t, tr.Snapshot().Running)

	tr.Reset("run-2", now)
	st = tr.Snapshot()
	assert.EqualValues(t, 0, st.Total)
	assert.EqualValues(t, 0, st.Completed)
	assert.True(t, st.NextUpdateTime.IsZero())
}

func TestTrackerOfferNext(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	tr := NewCycleTracker(func() time.Time { return now })
	tr.Reset("run", now)

	assert.False(t, tr.OfferNext(time.Time{}))
	assert.True(t, tr.OfferNext(now.Add(2*time.Hour)))
	assert.False(t, tr.OfferNext(now.Add(3*time.Hour)), "later value must not replace a pending earlier one")
	assert.True(t, tr.OfferNext(now.Add(time.Hour)))
	assert.Equal(t, now.Add(time.Hour), tr.Snapshot().NextUpdateTime)

	// Once the held value has passed, a later one takes over.
	now = now.Add(90 * time.Minute)
	assert.True(t, tr.OfferNext(now.Add(4*time.Hour)))
	assert.Equal(t, now.Add(4*time.Hour), tr.Snapshot().NextUpdateTime)
}

func TestTrackerCompletedIsMonotonicUnderConcurrency(t *testing.T) {
	tr := NewCycleTracker(nil)
	tr.Reset("run", time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.IncCompleted()
			}
		}()
	}

	var last int64
	for i := 0; i < 50; i++ {
		cur := tr.Snapshot().Completed
		assert.GreaterOrEqual(t, cur, last)
		last = cur
	}
	wg.Wait()
	assert.EqualValues(t, 800, tr.Snapshot().Completed)
}
