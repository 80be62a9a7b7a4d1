package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order_pacer/internal/config"
	"order_pacer/internal/engine"
	"order_pacer/internal/logbus"
	"order_pacer/internal/model"
	"order_pacer/internal/notify"
	"order_pacer/internal/status"
	"order_pacer/internal/store/sqlite"
)

type fakeEngine struct {
	startErr error
	stops    int
	st       model.CycleStatus
	lastURL  string
}

func (f *fakeEngine) Start(context.Context) error { return f.startErr }
func (f *fakeEngine) Stop()                       { f.stops++; f.st.Running = false }
func (f *fakeEngine) Running() bool               { return f.st.Running }
func (f *fakeEngine) Status() model.CycleStatus   { return f.st }
func (f *fakeEngine) Location() *time.Location    { return time.UTC }
func (f *fakeEngine) Targets() []model.TargetState {
	return []model.TargetState{{URL: "https://shop.example", Phase: model.TargetPhaseWaiting}}
}

func (f *fakeEngine) PreviewSchedule(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = time.Date(2026, 3, 1, 8, i, 0, 0, time.UTC)
	}
	return out
}

func (f *fakeEngine) SubmitOnce(_ context.Context, url string) (model.Submission, error) {
	f.lastURL = url
	return model.Submission{URL: url, Name: "Olena", Quantity: 1, Attempts: 1}, nil
}

type fakeReporter struct {
	err    error
	chatID string
}

func (f *fakeReporter) SendNow(_ context.Context, chatID string) error {
	f.chatID = chatID
	return f.err
}

type testServer struct {
	eng      *fakeEngine
	rep      *fakeReporter
	store    *sqlite.Store
	handler  http.Handler
	lastMail []notify.SubmissionEvent
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ts := &testServer{eng: &fakeEngine{}, rep: &fakeReporter{}, store: st}
	srv := New(Options{
		Cfg:      config.Config{Server: config.ServerConfig{Cors: config.CorsConfig{AllowOrigins: []string{"*"}}}},
		Bus:      logbus.New(10),
		Store:    st,
		Engine:   ts.eng,
		Reporter: ts.rep,
		SendEmail: func(_ context.Context, _ model.EmailSettings, events []notify.SubmissionEvent) error {
			ts.lastMail = events
			return nil
		},
	})
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec, out := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["ok"])
}

func TestRunStartErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/run/start", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.eng.startErr = engine.ErrAlreadyRunning
	rec, out := ts.do(t, http.MethodPost, "/api/v1/run/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, engine.ErrAlreadyRunning.Error(), out["error"])

	ts.eng.startErr = engine.ErrNoTargets
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/run/start", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunStopIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	ts.eng.st.Running = true

	rec, out := ts.do(t, http.MethodPost, "/api/v1/run/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["data"].(map[string]any)["running"])

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/run/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, ts.eng.stops)
}

func TestRunStatusIncludesRenderedMessage(t *testing.T) {
	ts := newTestServer(t)
	ts.eng.st = model.CycleStatus{Running: true, CycleStartTime: time.Now(), Completed: 2, Total: 9}

	rec, out := ts.do(t, http.MethodGet, "/api/v1/run/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := out["data"].(map[string]any)
	assert.Contains(t, data["message"], "2 из 9")
	assert.Equal(t, true, data["active"])
}

func TestSettingsMergeAndValidate(t *testing.T) {
	ts := newTestServer(t)

	rec, out := ts.do(t, http.MethodPut, "/api/v1/settings", `{"targets":["https://shop.example/a"],"maxRequests":4}`)
	require.Equal(t, http.StatusOK, rec.Code, out)

	got, err := ts.store.LoadSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example/a"}, got.Targets)
	assert.Equal(t, 4, got.MaxRequests)
	assert.Equal(t, model.DefaultMinQuantity, got.MinQuantity)

	rec, _ = ts.do(t, http.MethodPut, "/api/v1/settings", `{"minRequests":9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPut, "/api/v1/settings", `{"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out = ts.do(t, http.MethodGet, "/api/v1/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, out["data"].(map[string]any)["maxRequests"])
}

func TestEmailSettingsMasksAuthCode(t *testing.T) {
	ts := newTestServer(t)

	rec, out := ts.do(t, http.MethodPut, "/api/v1/settings/email", `{"enabled":true,"email":"ops@gmail.com","authCode":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code, out)
	assert.Equal(t, maskedAuthCode, out["data"].(map[string]any)["authCode"])

	rec, _ = ts.do(t, http.MethodPut, "/api/v1/settings/email", `{"authCode":"******"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	stored, ok, err := ts.store.GetEmailSettings(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "secret", stored.AuthCode)

	rec, _ = ts.do(t, http.MethodPut, "/api/v1/settings/email", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/settings/email/test", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ts.lastMail, 1)
}

func TestSchedulePreview(t *testing.T) {
	ts := newTestServer(t)
	rec, out := ts.do(t, http.MethodGet, "/api/v1/schedule/preview?count=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["data"], 3)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/schedule/preview?count=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTest(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodPost, "/api/v1/submit/test", `{"url":" https://shop.example/a "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://shop.example/a", ts.eng.lastURL)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/submit/test", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusReport(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodPost, "/api/v1/status/report", `{"chatId":"42"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", ts.rep.chatID)

	ts.rep.err = status.ErrNoChat
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/status/report", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.rep.err = errors.New("telegram down")
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/status/report", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/run/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
