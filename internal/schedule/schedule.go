// Package schedule draws one day's submission timestamps.
//
// A share of the requests lands in the night window right after now; the rest
// is spread over the remainder of the day with bounded spacing so traffic
// never bunches up or goes quiet for long.
package schedule

import (
	"math/rand"
	"sort"
	"time"
)

type Policy struct {
	// NightWindow is the span after now that receives the night share.
	NightWindow time.Duration
	// DayEnd bounds the day window, measured from now.
	DayEnd        time.Duration
	NightFraction float64
	MinGap        time.Duration
	MaxGap        time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		NightWindow:   7 * time.Hour,
		DayEnd:        23*time.Hour + 59*time.Minute,
		NightFraction: 0.3,
		MinGap:        time.Minute,
		MaxGap:        2 * time.Hour,
	}
}

// Generate returns n timestamps in ascending order using DefaultPolicy.
func Generate(n int, now time.Time, rng *rand.Rand) []time.Time {
	return DefaultPolicy().Generate(n, now, rng)
}

// Split returns how many of n requests fall in the night and day windows.
func (p Policy) Split(n int) (night, day int) {
	if n <= 0 {
		return 0, 0
	}
	night = int(float64(n) * p.NightFraction)
	return night, n - night
}

func (p Policy) Generate(n int, now time.Time, rng *rand.Rand) []time.Time {
	if n <= 0 {
		return []time.Time{}
	}
	night, day := p.Split(n)
	out := make([]time.Time, 0, n)
	out = append(out, uniform(rng, now, now.Add(p.NightWindow), night)...)
	out = append(out, p.dayTimes(rng, now.Add(p.NightWindow), now.Add(p.DayEnd), day)...)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// dayTimes draws k sorted points in [start, end) and reshapes the gaps
// between neighbours into [MinGap, MaxGap]. Points pushed past the window
// are clamped to its last second, then a backward pass restores MinGap.
func (p Policy) dayTimes(rng *rand.Rand, start, end time.Time, k int) []time.Time {
	ts := uniform(rng, start, end, k)
	if len(ts) == 0 {
		return ts
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	last := end.Add(-time.Second)
	for i := 1; i < len(ts); i++ {
		gap := ts[i].Sub(ts[i-1])
		switch {
		case gap < p.MinGap:
			ts[i] = ts[i-1].Add(p.MinGap)
		case gap > p.MaxGap:
			ts[i] = ts[i-1].Add(p.MinGap + randDuration(rng, p.MaxGap-p.MinGap))
		}
		if ts[i].After(last) {
			ts[i] = last
		}
	}
	for i := len(ts) - 2; i >= 0; i-- {
		if limit := ts[i+1].Add(-p.MinGap); ts[i].After(limit) {
			ts[i] = limit
		}
	}
	return ts
}

func uniform(rng *rand.Rand, start, end time.Time, k int) []time.Time {
	out := make([]time.Time, 0, k)
	span := end.Sub(start)
	for i := 0; i < k; i++ {
		out = append(out, start.Add(randDuration(rng, span)))
	}
	return out
}

// randDuration returns a uniform duration in [0, d).
func randDuration(rng *rand.Rand, d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(d)))
}
