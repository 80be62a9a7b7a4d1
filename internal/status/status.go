// Package status renders the run progress record and sends it to the status
// chat every morning and on demand.
package status

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"order_pacer/internal/logbus"
	"order_pacer/internal/model"
)

var ErrNoChat = errors.New("status chat is not configured")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron accepts 5-field expressions only.
func ParseCron(expr string) (cron.Schedule, error) {
	if strings.HasPrefix(strings.TrimSpace(expr), "@") {
		return nil, fmt.Errorf("only 5-field cron expressions are supported")
	}
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return s, nil
}

type Source interface {
	Status() model.CycleStatus
}

type Sender interface {
	Send(ctx context.Context, chatID, text, parseMode string) error
}

type Reporter struct {
	src    Source
	sender Sender
	chatID string
	loc    *time.Location
	bus    *logbus.Bus

	expr     string
	schedule cron.Schedule
	cron     *cron.Cron
}

func NewReporter(src Source, sender Sender, expr, chatID string, loc *time.Location, bus *logbus.Bus) (*Reporter, error) {
	if loc == nil {
		loc = time.Local
	}
	sched, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	return &Reporter{
		src:      src,
		sender:   sender,
		chatID:   strings.TrimSpace(chatID),
		loc:      loc,
		bus:      bus,
		expr:     expr,
		schedule: sched,
		cron:     cron.New(cron.WithParser(cronParser), cron.WithLocation(loc)),
	}, nil
}

// Start schedules the daily report. Reports sent by the job use ctx.
func (r *Reporter) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.expr, func() {
		sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := r.SendNow(sendCtx, ""); err != nil {
			r.bus.Log("warn", "daily status report failed", map[string]any{"error": err.Error()})
			return
		}
		r.bus.Log("info", "daily status report sent", nil)
	}); err != nil {
		return err
	}
	r.cron.Start()
	r.bus.Log("info", "status reporter started", map[string]any{
		"cron":    r.expr,
		"tz":      r.loc.String(),
		"nextRun": r.NextRun(time.Now()).Format(time.RFC3339),
	})
	return nil
}

// Stop halts scheduling. The returned context is done once a running job
// has finished.
func (r *Reporter) Stop() context.Context {
	return r.cron.Stop()
}

func (r *Reporter) NextRun(from time.Time) time.Time {
	return r.schedule.Next(from.In(r.loc))
}

// SendNow renders the current status and sends it to chatID, or to the
// configured status chat when chatID is empty.
func (r *Reporter) SendNow(ctx context.Context, chatID string) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		chatID = r.chatID
	}
	if chatID == "" {
		return ErrNoChat
	}
	return r.sender.Send(ctx, chatID, Render(r.src.Status(), r.loc), "Markdown")
}

const timeLayout = "2006-01-02 15:04:05"

// Render formats st as the Markdown status message.
func Render(st model.CycleStatus, loc *time.Location) string {
	if !st.Running || st.CycleStartTime.IsZero() {
		return "❌ Цикл запросов не запущен."
	}
	if loc == nil {
		loc = time.Local
	}
	lines := []string{
		"📊 **Статус цикла запросов**",
		"",
		fmt.Sprintf("🕐 **Запуск цикла:** %s (Киев)", st.CycleStartTime.In(loc).Format(timeLayout)),
		fmt.Sprintf("✅ **Выполнено запросов:** %d из %d", st.Completed, st.Total),
	}
	if st.Failed > 0 {
		lines = append(lines, fmt.Sprintf("⚠️ **Ошибок:** %d", st.Failed))
	}
	if st.NextUpdateTime.IsZero() {
		lines = append(lines, "⏰ **Следующее обновление:** Не запланировано")
	} else {
		lines = append(lines, fmt.Sprintf("⏰ **Следующее обновление:** %s (Киев)", st.NextUpdateTime.In(loc).Format(timeLayout)))
	}
	return strings.Join(lines, "\n")
}
