package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"order_pacer/internal/logbus"
	"order_pacer/internal/model"
)

type EmailSettingsSource interface {
	GetEmailSettings(ctx context.Context) (model.EmailSettings, bool, error)
}

type summarySender func(ctx context.Context, settings model.EmailSettings, events []SubmissionEvent) error

// EmailNotifier collects successful submissions and mails them as one
// summary after Window of quiet, or as soon as MaxBatch events are queued.
type EmailNotifier struct {
	src EmailSettingsSource
	bus *logbus.Bus

	mu     sync.Mutex
	queue  chan SubmissionEvent
	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup

	window   time.Duration
	maxBatch int
	send     summarySender
}

func NewEmailNotifier(src EmailSettingsSource, bus *logbus.Bus, window time.Duration) *EmailNotifier {
	return newEmailNotifier(src, bus, window, SendSubmissionSummaryEmail)
}

func newEmailNotifier(src EmailSettingsSource, bus *logbus.Bus, window time.Duration, send summarySender) *EmailNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &EmailNotifier{
		src:      src,
		bus:      bus,
		queue:    make(chan SubmissionEvent, 200),
		ctx:      ctx,
		cancel:   cancel,
		window:   window,
		maxBatch: 80,
		send:     send,
	}
	n.wg.Add(1)
	go n.loop()
	return n
}

// Close flushes pending events and waits for the loop to exit.
func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) NotifySubmitted(_ context.Context, evt SubmissionEvent) {
	select {
	case n.queue <- evt:
	default:
		n.bus.Log("warn", "email summary queue full, event dropped", map[string]any{
			"url":   evt.URL,
			"phone": evt.Phone,
		})
	}
}

func (n *EmailNotifier) loop() {
	defer n.wg.Done()

	var (
		pending []SubmissionEvent
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerCh = nil
	}

	resetTimer := func() {
		if timer == nil {
			timer = time.NewTimer(n.window)
			timerCh = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(n.window)
	}

	flush := func(reason string) {
		if len(pending) == 0 {
			stopTimer()
			return
		}
		events := append([]SubmissionEvent(nil), pending...)
		pending = pending[:0]
		stopTimer()
		n.handleBatch(reason, events)
	}

	for {
		select {
		case <-n.ctx.Done():
		drain:
			for {
				select {
				case evt := <-n.queue:
					pending = append(pending, evt)
				default:
					break drain
				}
			}
			flush("shutdown")
			return
		case evt := <-n.queue:
			pending = append(pending, evt)
			if n.maxBatch > 0 && len(pending) >= n.maxBatch {
				flush("max")
				continue
			}
			if n.window <= 0 {
				flush("immediate")
				continue
			}
			resetTimer()
		case <-timerCh:
			flush("idle")
		}
	}
}

func (n *EmailNotifier) handleBatch(reason string, events []SubmissionEvent) {
	if n.src == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	settings, ok, err := n.src.GetEmailSettings(ctx)
	if err != nil {
		n.bus.Log("warn", "load email settings failed", map[string]any{"error": err.Error()})
		return
	}
	if !ok || !settings.Enabled {
		n.bus.Log("debug", "email summary disabled", map[string]any{
			"count":  len(events),
			"reason": reason,
		})
		return
	}
	if err := ValidateEmailSettings(settings); err != nil {
		n.bus.Log("warn", "email settings invalid", map[string]any{"error": err.Error()})
		return
	}

	if err := n.send(ctx, settings, events); err != nil {
		n.bus.Log("warn", "email summary send failed", map[string]any{
			"error":  err.Error(),
			"count":  len(events),
			"reason": reason,
		})
		return
	}
	n.bus.Log("info", "email summary sent", map[string]any{
		"count":  len(events),
		"reason": reason,
		"to":     strings.TrimSpace(settings.Email),
	})
}

func ValidateEmailSettings(s model.EmailSettings) error {
	email := strings.TrimSpace(s.Email)
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email")
	}
	if strings.TrimSpace(s.AuthCode) == "" {
		return errors.New("authCode is required")
	}
	return nil
}

func SendSubmissionSummaryEmail(ctx context.Context, settings model.EmailSettings, events []SubmissionEvent) error {
	if err := ValidateEmailSettings(settings); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return errors.New("no events")
	}

	email := strings.TrimSpace(settings.Email)
	host, port, useSSL, err := smtpConfigForEmail(email)
	if err != nil {
		return err
	}
	htmlBody, textBody, err := buildSummaryEmailBody(events)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(email, "Order Pacer"))
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", buildSummarySubject(events))
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(host, port, email, strings.TrimSpace(settings.AuthCode))
	d.SSL = useSSL
	return d.DialAndSend(msg)
}

func smtpConfigForEmail(email string) (host string, port int, useSSL bool, err error) {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", 0, false, errors.New("invalid email format")
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))
	is := func(d string) bool { return domain == d || strings.HasSuffix(domain, "."+d) }

	switch {
	case is("gmail.com"):
		return "smtp.gmail.com", 587, false, nil
	case is("outlook.com"), is("hotmail.com"), is("live.com"):
		return "smtp.office365.com", 587, false, nil
	case is("ukr.net"):
		return "smtp.ukr.net", 465, true, nil
	case is("i.ua"):
		return "smtp.i.ua", 465, true, nil
	case is("meta.ua"):
		return "smtp.meta.ua", 465, true, nil
	default:
		return "smtp." + domain, 465, true, nil
	}
}

func buildSummarySubject(events []SubmissionEvent) string {
	return fmt.Sprintf("Order submissions (%d)", len(events))
}

var emailSummaryHTMLTpl = template.Must(template.New("email-summary").Parse(`
<!doctype html>
<html lang="uk">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width" />
    <title>Order submissions</title>
  </head>
  <body style="margin:0;padding:0;background:#f6f8fb;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Arial,sans-serif;">
    <div style="max-width:720px;margin:0 auto;padding:24px;">
      <div style="background:#ffffff;border:1px solid #e6e8ef;border-radius:14px;overflow:hidden;">
        <div style="padding:18px 22px;background:linear-gradient(135deg,#0ea5e9,#6366f1);color:#ffffff;">
          <div style="font-size:16px;font-weight:700;">Order submissions</div>
        </div>
        <div style="padding:22px;">
          <div style="font-size:14px;color:#111827;">
            <strong>{{ .Total }}</strong> submitted, {{ .Start }} to {{ .End }}
          </div>
          <table role="presentation" cellspacing="0" cellpadding="0" border="0" style="margin-top:12px;width:100%;border-collapse:collapse;">
            <thead>
              <tr style="background:#fafbff;">
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;">Time</th>
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;">Page</th>
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;">Name</th>
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;">Phone</th>
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;">Qty</th>
              </tr>
            </thead>
            <tbody>
              {{ range .Rows }}
              <tr>
                <td style="padding:10px 12px;font-size:12px;border-top:1px solid #eef0f6;">{{ .At }}</td>
                <td style="padding:10px 12px;font-size:12px;border-top:1px solid #eef0f6;">{{ .URL }}</td>
                <td style="padding:10px 12px;font-size:12px;border-top:1px solid #eef0f6;">{{ .Name }}</td>
                <td style="padding:10px 12px;font-size:12px;border-top:1px solid #eef0f6;">{{ .Phone }}</td>
                <td style="padding:10px 12px;font-size:12px;border-top:1px solid #eef0f6;">{{ .Qty }}</td>
              </tr>
              {{ end }}
            </tbody>
          </table>
        </div>
      </div>
    </div>
  </body>
</html>
`))

type summaryRow struct {
	At    string
	URL   string
	Name  string
	Phone string
	Qty   string
}

func buildSummaryEmailBody(events []SubmissionEvent) (htmlBody string, textBody string, err error) {
	if len(events) == 0 {
		return "", "", errors.New("no events")
	}

	rows := make([]summaryRow, 0, len(events))
	var minAt, maxAt time.Time
	for i, evt := range events {
		at := time.Now()
		if evt.At > 0 {
			at = time.UnixMilli(evt.At)
		}
		if i == 0 || at.Before(minAt) {
			minAt = at
		}
		if i == 0 || at.After(maxAt) {
			maxAt = at
		}
		rows = append(rows, summaryRow{
			At:    at.Format("2006-01-02 15:04:05"),
			URL:   strings.TrimSpace(evt.URL),
			Name:  strings.TrimSpace(evt.Name),
			Phone: strings.TrimSpace(evt.Phone),
			Qty:   strconv.Itoa(evt.Quantity),
		})
	}

	data := struct {
		Total int
		Start string
		End   string
		Rows  []summaryRow
	}{
		Total: len(events),
		Start: minAt.Format("2006-01-02 15:04:05"),
		End:   maxAt.Format("2006-01-02 15:04:05"),
		Rows:  rows,
	}

	var buf bytes.Buffer
	if err := emailSummaryHTMLTpl.Execute(&buf, data); err != nil {
		return "", "", err
	}

	text := new(strings.Builder)
	fmt.Fprintf(text, "%d submitted, %s to %s\n", len(events), data.Start, data.End)
	for _, row := range rows {
		fmt.Fprintf(text, "- %s | %s | %s | %s | qty %s\n", row.At, row.URL, row.Name, row.Phone, row.Qty)
	}
	return buf.String(), text.String(), nil
}
