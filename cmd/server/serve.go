package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"order_pacer/internal/engine"
	"order_pacer/internal/generator"
	"order_pacer/internal/httpapi"
	"order_pacer/internal/logbus"
	"order_pacer/internal/logging"
	"order_pacer/internal/notify"
	"order_pacer/internal/provider/chromium"
	"order_pacer/internal/status"
	"order_pacer/internal/store/sqlite"
)

const emailWindow = 2 * time.Minute

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control surface and the status reporter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

func runServe(parent context.Context, flags *rootFlags) error {
	cfg, err := flags.load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	bus := logbus.New(cfg.Log.BufferSize, logbus.WithLogger(logging.Component(logger, "order_pacer")))
	defer bus.Close()
	bus.Log("info", "server starting", map[string]any{"addr": cfg.Server.Addr, "tz": loc.String()})

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer store.Close()

	browser := chromium.New(cfg.Browser, bus)
	defer browser.Close()

	telegram := notify.NewTelegram(cfg.Telegram)
	if !telegram.Enabled() {
		bus.Log("warn", "telegram token not set, notifications are disabled", nil)
	}
	email := notify.NewEmailNotifier(store, bus, emailWindow)

	eng := engine.New(engine.Options{
		Settings:    store,
		Generator:   generator.New(store),
		Browser:     browser,
		Prober:      engine.NewHTTPProber(cfg.Browser.ReachabilityTimeout(), chromium.UserAgent(cfg.Browser.UserAgent)),
		Notifier:    notify.Multi{telegram, notify.NewBus(bus)},
		Submissions: email,
		Bus:         bus,
		Limits:      cfg.Limits,
		Schedule:    cfg.Schedule,
		Timeouts:    cfg.Browser,
		Form:        cfg.Form,
	})

	reporter, err := status.NewReporter(eng, telegram, cfg.Status.Cron, cfg.Status.GroupChatID, loc, bus)
	if err != nil {
		return fmt.Errorf("status reporter: %w", err)
	}
	if err := reporter.Start(ctx); err != nil {
		return fmt.Errorf("status reporter: %w", err)
	}

	api := httpapi.New(httpapi.Options{
		Cfg:      cfg,
		Bus:      bus,
		Store:    store,
		Engine:   eng,
		Reporter: reporter,
	})
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		bus.Log("info", "shutdown signal received", nil)
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			bus.Log("error", "http server error", map[string]any{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_ = server.Shutdown(shutdownCtx)
	if eng.Running() {
		eng.Stop()
	}
	if err := eng.Wait(shutdownCtx); err != nil {
		bus.Log("warn", "submissions still in flight at shutdown", map[string]any{"error": err.Error()})
	}
	<-reporter.Stop().Done()
	_ = email.Close(shutdownCtx)
	bus.Log("info", "server stopped", nil)
	return nil
}
