package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order_pacer/internal/config"
	"order_pacer/internal/logbus"
	"order_pacer/internal/model"
)

func TestTelegramSend(t *testing.T) {
	var (
		gotPath string
		gotBody sendMessageReq
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(config.TelegramConfig{BotToken: "123:abc", ChatID: "42", APIBase: srv.URL})
	require.NoError(t, tg.Notify(context.Background(), "hello"))

	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, "42", gotBody.ChatID)
	assert.Equal(t, "hello", gotBody.Text)
	assert.Empty(t, gotBody.ParseMode)
}

func TestTelegramAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	tg := NewTelegram(config.TelegramConfig{BotToken: "t", ChatID: "1", APIBase: srv.URL})
	err := tg.Send(context.Background(), "1", "x", "Markdown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramDisabledAndMissingChat(t *testing.T) {
	off := NewTelegram(config.TelegramConfig{APIBase: "http://127.0.0.1:1"})
	assert.False(t, off.Enabled())
	assert.NoError(t, off.Notify(context.Background(), "ignored"))

	noChat := NewTelegram(config.TelegramConfig{BotToken: "t", APIBase: "http://127.0.0.1:1"})
	assert.ErrorIs(t, noChat.Notify(context.Background(), "x"), ErrNoChat)
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

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{err: errors.New("down")}
	err := Multi{a, nil, b}.Notify(context.Background(), "ping")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, []string{"ping"}, a.msgs)
	assert.Equal(t, []string{"ping"}, b.msgs)
}

type staticEmailSettings struct {
	v  model.EmailSettings
	ok bool
}

func (s staticEmailSettings) GetEmailSettings(context.Context) (model.EmailSettings, bool, error) {
	return s.v, s.ok, nil
}

func TestEmailNotifierBatchesUntilIdle(t *testing.T) {
	var (
		mu      sync.Mutex
		batches [][]SubmissionEvent
	)
	send := func(_ context.Context, _ model.EmailSettings, events []SubmissionEvent) error {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, events)
		return nil
	}
	src := staticEmailSettings{ok: true, v: model.EmailSettings{Enabled: true, Email: "ops@example.com", AuthCode: "x"}}
	n := newEmailNotifier(src, nil, 50*time.Millisecond, send)

	n.NotifySubmitted(context.Background(), SubmissionEvent{URL: "https://a.example", Quantity: 1})
	n.NotifySubmitted(context.Background(), SubmissionEvent{URL: "https://b.example", Quantity: 2})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, n.Close(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestEmailNotifierFlushesOnClose(t *testing.T) {
	var got int
	send := func(_ context.Context, _ model.EmailSettings, events []SubmissionEvent) error {
		got += len(events)
		return nil
	}
	src := staticEmailSettings{ok: true, v: model.EmailSettings{Enabled: true, Email: "ops@example.com", AuthCode: "x"}}
	n := newEmailNotifier(src, nil, time.Hour, send)
	n.NotifySubmitted(context.Background(), SubmissionEvent{URL: "https://a.example"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, n.Close(ctx))
	assert.Equal(t, 1, got)
}

func TestEmailNotifierSkipsWhenDisabled(t *testing.T) {
	called := false
	send := func(context.Context, model.EmailSettings, []SubmissionEvent) error {
		called = true
		return nil
	}
	n := newEmailNotifier(staticEmailSettings{ok: true}, nil, 0, send)
	n.NotifySubmitted(context.Background(), SubmissionEvent{URL: "https://a.example"})
	require.NoError(t, n.Close(context.Background()))
	assert.False(t, called)
}

func TestSMTPConfigForEmail(t *testing.T) {
	host, port, ssl, err := smtpConfigForEmail("someone@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "smtp.gmail.com", host)
	assert.Equal(t, 587, port)
	assert.False(t, ssl)

	host, port, ssl, err = smtpConfigForEmail("someone@ukr.net")
	require.NoError(t, err)
	assert.Equal(t, "smtp.ukr.net", host)
	assert.Equal(t, 465, port)
	assert.True(t, ssl)

	_, _, _, err = smtpConfigForEmail("not-an-address")
	assert.Error(t, err)
}

func TestBuildSummaryEmailBody(t *testing.T) {
	events := []SubmissionEvent{
		{At: time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local).UnixMilli(), URL: "https://shop.example/a", Name: "Olena Petrenko", Phone: "+380501112233", Quantity: 2},
		{At: time.Date(2026, 3, 1, 8, 0, 0, 0, time.Local).UnixMilli(), URL: "https://shop.example/b", Name: "Ivan", Phone: "+380671234567", Quantity: 1},
	}
	html, text, err := buildSummaryEmailBody(events)
	require.NoError(t, err)
	assert.Contains(t, html, "Olena Petrenko")
	assert.Contains(t, text, "2 submitted, 2026-03-01 08:00:00 to 2026-03-01 09:00:00")
	assert.Equal(t, "Order submissions (2)", buildSummarySubject(events))

	_, _, err = buildSummaryEmailBody(nil)
	assert.Error(t, err)
}

func TestBusNotifierPublishesNotification(t *testing.T) {
	b := logbus.New(4)
	defer b.Close()

	err := Multi{NewBus(b), &recordingNotifier{}}.Notify(context.Background(), "Random request sent")
	require.NoError(t, err)

	snap := b.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "notification", snap[0].Type)
	assert.Equal(t, map[string]any{"text": "Random request sent"}, snap[0].Data)
}
