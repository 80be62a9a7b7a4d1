package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"order_pacer/internal/model"
	"order_pacer/internal/notify"
)

var (
	errStopped       = errors.New("run stopped")
	errTargetRemoved = errors.New("target removed from settings")
)

const timeLayout = "2006-01-02 15:04:05"

// runTarget repeats cycles for one target until the run is stopped or the
// target fails. Nothing that happens here reaches other targets.
func (e *Engine) runTarget(sess *runSession, url string) {
	defer func() {
		if r := recover(); r != nil {
			e.bus.Log("error", "target loop panic", map[string]any{
				"url":   url,
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
			e.setPhase(url, model.TargetPhaseFailed, func(st *model.TargetState) {
				st.LastError = fmt.Sprint(r)
				st.NextAtMs = 0
			})
			e.notify(fmt.Sprintf("Unexpected error in the loop for %s: %v\nThis target is stopped.", url, r))
		}
	}()

	for cycle := 1; ; cycle++ {
		if sess.stopped.Load() {
			e.endTarget(url, errStopped)
			return
		}
		if err := e.runCycle(sess, url, cycle); err != nil {
			e.endTarget(url, err)
			return
		}
	}
}

func (e *Engine) endTarget(url string, err error) {
	phase := model.TargetPhaseFailed
	var text string
	switch {
	case errors.Is(err, errStopped):
		phase = model.TargetPhaseStopped
		text = fmt.Sprintf("Random requests stopped for %s.", url)
	case errors.Is(err, errTargetRemoved):
		phase = model.TargetPhaseStopped
		text = fmt.Sprintf("%s was removed from settings, its loop has ended.", url)
	case errors.Is(err, ErrUnreachable):
		text = fmt.Sprintf("%s is unreachable (%v). Its loop has ended, no requests were scheduled.", url, err)
	default:
		text = fmt.Sprintf("Unexpected error in the loop for %s: %v\nThis target is stopped.", url, err)
	}

	e.setPhase(url, phase, func(st *model.TargetState) {
		st.NextAtMs = 0
		if phase == model.TargetPhaseFailed {
			st.LastError = err.Error()
		}
	})
	level := "info"
	if phase == model.TargetPhaseFailed {
		level = "error"
	}
	e.bus.Log(level, "target loop ended", map[string]any{"url": url, "reason": err.Error()})
	e.notify(text)
}

// runCycle schedules and works through one day of submissions for url.
// A nil return means the cycle finished and the next one may begin.
func (e *Engine) runCycle(sess *runSession, url string, cycle int) error {
	e.setPhase(url, model.TargetPhaseScheduling, func(st *model.TargetState) {
		st.Cycle = cycle
		st.Planned = 0
		st.Done = 0
		st.Failed = 0
		st.NextAtMs = 0
	})

	settings, err := e.settings.LoadSettings(sess.ctx)
	if err != nil {
		if sess.ctx.Err() != nil {
			return errStopped
		}
		return fmt.Errorf("load settings: %w", err)
	}
	if !settings.HasTarget(url) {
		return errTargetRemoved
	}

	if e.prober != nil {
		probeCtx, cancel := context.WithTimeout(sess.ctx, e.probeTTL)
		err := e.prober.Probe(probeCtx, url)
		cancel()
		if err != nil {
			if sess.ctx.Err() != nil {
				return errStopped
			}
			return err
		}
	}

	now := e.now().In(e.loc)
	n := e.drawCount(settings.MinRequests, settings.MaxRequests)
	times := e.generate(n, now)

	e.tracker.AddTotal(len(times))
	if len(times) > 0 {
		e.tracker.OfferNext(times[0])
	}
	e.setPhase(url, model.TargetPhaseScheduling, func(st *model.TargetState) { st.Planned = len(times) })
	e.publishStatus()
	e.bus.Log("info", "cycle scheduled", map[string]any{"url": url, "cycle": cycle, "count": len(times)})
	e.notify(scheduleMessage(url, cycle, now, times, e.loc))

	for i, at := range times {
		if sess.stopped.Load() {
			return errStopped
		}
		e.setPhase(url, model.TargetPhaseWaiting, func(st *model.TargetState) { st.NextAtMs = at.UnixMilli() })
		if err := e.waiter.WaitUntil(sess.ctx, at); err != nil {
			if sess.ctx.Err() != nil {
				return errStopped
			}
			return fmt.Errorf("wait for %s: %w", at.Format(timeLayout), err)
		}
		if sess.stopped.Load() {
			return errStopped
		}

		e.setPhase(url, model.TargetPhaseSubmitting, nil)
		sub, err := e.submitter.Submit(context.WithoutCancel(sess.ctx), url, settings)
		if i+1 < len(times) {
			e.tracker.OfferNext(times[i+1])
		}
		if err != nil {
			e.tracker.IncFailed()
			e.setPhase(url, model.TargetPhaseSubmitting, func(st *model.TargetState) {
				st.Failed++
				st.LastError = err.Error()
			})
			e.publishStatus()
			e.notify(fmt.Sprintf("Error during request #%d for %s: %v", i+1, url, err))
			continue
		}

		e.tracker.IncCompleted()
		e.setPhase(url, model.TargetPhaseSubmitting, func(st *model.TargetState) { st.Done++ })
		e.publishStatus()
		e.bus.Log("info", "submission sent", map[string]any{
			"url":      url,
			"quantity": sub.Quantity,
			"attempts": sub.Attempts,
		})
		e.submissions.NotifySubmitted(context.Background(), notify.SubmissionEvent{
			At:       sub.At.UnixMilli(),
			URL:      sub.URL,
			Name:     sub.Name,
			Phone:    sub.Phone,
			Quantity: sub.Quantity,
			Attempts: sub.Attempts,
		})
		e.notify(fmt.Sprintf("Random request sent to %s:\nName: %s\nPhone: %s\nQuantity: %d",
			url, sub.Name, sub.Phone, sub.Quantity))
	}
	return nil
}

func scheduleMessage(url string, cycle int, now time.Time, times []time.Time, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Starting cycle %d for %s at %s\n", cycle, url, now.In(loc).Format(timeLayout))
	fmt.Fprintf(&b, "Total requests for this cycle: %d\n", len(times))
	for i, t := range times {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.In(loc).Format(timeLayout))
	}
	return strings.TrimRight(b.String(), "\n")
}
