// Package httpapi is the control surface: run start/stop, progress, settings
// and a websocket event stream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"order_pacer/internal/config"
	"order_pacer/internal/engine"
	"order_pacer/internal/logbus"
	"order_pacer/internal/model"
	"order_pacer/internal/notify"
	"order_pacer/internal/status"
	"order_pacer/internal/ws"
)

type Engine interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
	Status() model.CycleStatus
	Targets() []model.TargetState
	Location() *time.Location
	PreviewSchedule(n int) []time.Time
	SubmitOnce(ctx context.Context, url string) (model.Submission, error)
}

type Store interface {
	LoadSettings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, v model.Settings) (model.Settings, error)
	GetEmailSettings(ctx context.Context) (model.EmailSettings, bool, error)
	UpsertEmailSettings(ctx context.Context, v model.EmailSettings) (model.EmailSettings, error)
	CountSamples(ctx context.Context) (int, error)
}

type Reporter interface {
	SendNow(ctx context.Context, chatID string) error
}

type Options struct {
	Cfg      config.Config
	Bus      *logbus.Bus
	Store    Store
	Engine   Engine
	Reporter Reporter
	// SendEmail overrides the summary mail sender used by the email test
	// endpoint.
	SendEmail func(ctx context.Context, settings model.EmailSettings, events []notify.SubmissionEvent) error
}

type Server struct {
	cfg       config.Config
	bus       *logbus.Bus
	store     Store
	engine    Engine
	reporter  Reporter
	ws        *ws.Handler
	sendEmail func(ctx context.Context, settings model.EmailSettings, events []notify.SubmissionEvent) error
}

func New(opts Options) *Server {
	send := opts.SendEmail
	if send == nil {
		send = notify.SendSubmissionSummaryEmail
	}
	return &Server{
		cfg:       opts.Cfg,
		bus:       opts.Bus,
		store:     opts.Store,
		engine:    opts.Engine,
		reporter:  opts.Reporter,
		ws:        ws.NewHandler(opts.Bus, opts.Cfg.Server.Cors.AllowOrigins),
		sendEmail: send,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/ws", s.ws)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(corsMiddleware(s.cfg.Server.Cors))

		r.Route("/run", func(r chi.Router) {
			r.Post("/start", s.handleRunStart)
			r.Post("/stop", s.handleRunStop)
			r.Get("/status", s.handleRunStatus)
			r.Get("/targets", s.handleRunTargets)
		})
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Get("/settings/email", s.handleGetEmailSettings)
		r.Put("/settings/email", s.handlePutEmailSettings)
		r.Post("/settings/email/test", s.handleEmailTest)
		r.Get("/samples", s.handleSamples)
		r.Get("/schedule/preview", s.handleSchedulePreview)
		r.Post("/submit/test", s.handleSubmitTest)
		r.Post("/status/report", s.handleStatusReport)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRunStart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	err := s.engine.Start(ctx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": s.engine.Status()})
	case errors.Is(err, engine.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

func (s *Server) handleRunStop(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": s.engine.Status()})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.engine.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"status":  st,
			"active":  s.engine.Running(),
			"message": status.Render(st, s.engine.Location()),
		},
	})
}

func (s *Server) handleRunTargets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"data": s.engine.Targets()})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.LoadSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": v})
}

type settingsPayload struct {
	Targets     *[]string `json:"targets,omitempty"`
	MinRequests *int      `json:"minRequests,omitempty"`
	MaxRequests *int      `json:"maxRequests,omitempty"`
	MinQuantity *int      `json:"minQuantity,omitempty"`
	MaxQuantity *int      `json:"maxQuantity,omitempty"`
}

// handlePutSettings merges the provided fields into the stored settings.
// Running loops pick the change up at their next cycle.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsPayload
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	next, err := s.store.LoadSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if body.Targets != nil {
		next.Targets = *body.Targets
	}
	if body.MinRequests != nil {
		next.MinRequests = *body.MinRequests
	}
	if body.MaxRequests != nil {
		next.MaxRequests = *body.MaxRequests
	}
	if body.MinQuantity != nil {
		next.MinQuantity = *body.MinQuantity
	}
	if body.MaxQuantity != nil {
		next.MaxQuantity = *body.MaxQuantity
	}

	saved, err := s.store.SaveSettings(r.Context(), next)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.bus.Log("info", "settings updated", map[string]any{
		"targets":     len(saved.Targets),
		"minRequests": saved.MinRequests,
		"maxRequests": saved.MaxRequests,
	})
	writeJSON(w, http.StatusOK, map[string]any{"data": saved})
}

const maskedAuthCode = "******"

func (s *Server) handleGetEmailSettings(w http.ResponseWriter, r *http.Request) {
	val, ok, err := s.store.GetEmailSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		val = model.EmailSettings{}
	}
	if val.AuthCode != "" {
		val.AuthCode = maskedAuthCode
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": val})
}

type emailSettingsPayload struct {
	Enabled  *bool   `json:"enabled,omitempty"`
	Email    *string `json:"email,omitempty"`
	AuthCode *string `json:"authCode,omitempty"`
}

func (s *Server) handlePutEmailSettings(w http.ResponseWriter, r *http.Request) {
	var body emailSettingsPayload
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	current, _, err := s.store.GetEmailSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	next := current
	if body.Enabled != nil {
		next.Enabled = *body.Enabled
	}
	if body.Email != nil {
		next.Email = strings.TrimSpace(*body.Email)
	}
	if body.AuthCode != nil {
		if ac := strings.TrimSpace(*body.AuthCode); ac != maskedAuthCode {
			next.AuthCode = ac
		}
	}
	if next.Enabled {
		if err := notify.ValidateEmailSettings(next); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	saved, err := s.store.UpsertEmailSettings(r.Context(), next)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if saved.AuthCode != "" {
		saved.AuthCode = maskedAuthCode
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": saved})
}

func (s *Server) handleEmailTest(w http.ResponseWriter, r *http.Request) {
	val, _, err := s.store.GetEmailSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	evt := notify.SubmissionEvent{
		At:       time.Now().UnixMilli(),
		URL:      "https://example.com/test",
		Name:     "Test Order",
		Phone:    "+380000000000",
		Quantity: 1,
	}
	if err := s.sendEmail(ctx, val, []notify.SubmissionEvent{evt}); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountSamples(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"count": n}})
}

func (s *Server) handleSchedulePreview(w http.ResponseWriter, r *http.Request) {
	n, err := parseInt(r.URL.Query().Get("count"), model.DefaultMaxRequests)
	if err != nil || n < 0 || n > model.MaxRequestsLimit {
		writeError(w, http.StatusBadRequest, errors.New("count must be between 0 and "+strconv.Itoa(model.MaxRequestsLimit)))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.engine.PreviewSchedule(n)})
}

type submitTestPayload struct {
	URL string `json:"url"`
}

func (s *Server) handleSubmitTest(w http.ResponseWriter, r *http.Request) {
	var body submitTestPayload
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	url := strings.TrimSpace(body.URL)
	if url == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()
	sub, err := s.engine.SubmitOnce(ctx, url)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": sub})
}

type statusReportPayload struct {
	ChatID string `json:"chatId,omitempty"`
}

func (s *Server) handleStatusReport(w http.ResponseWriter, r *http.Request) {
	var body statusReportPayload
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.reporter == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("status reporter disabled"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()
	if err := s.reporter.SendNow(ctx, body.ChatID); err != nil {
		if errors.Is(err, status.ErrNoChat) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}

// readJSON decodes an optional JSON body. An empty body leaves v untouched.
func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parseInt(v string, def int) (int, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	return strconv.Atoi(strings.TrimSpace(v))
}
