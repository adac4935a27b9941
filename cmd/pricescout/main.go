package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/use-agent/pricescout/api"
	"github.com/use-agent/pricescout/audit"
	"github.com/use-agent/pricescout/cache"
	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/engine"
	"github.com/use-agent/pricescout/scraper"
	"github.com/use-agent/pricescout/webhook"
)

var version = "0.1.0"

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	// .env.local takes priority; variables already set are never overridden.
	for _, f := range []string{".env.local", ".env"} {
		_ = godotenv.Load(f)
	}
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("pricescout starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"site", cfg.Site.BaseURL,
		"proxy", cfg.Proxy.Gateway != "",
		"browser_fallback", cfg.Browser.Enabled,
	)

	// ── 3. Error tracking ───────────────────────────────────────────
	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			Release:          "pricescout@" + version,
			TracesSampleRate: tracesSampleRate(cfg.Sentry.Environment),
			AttachStacktrace: true,
		})
		if err != nil {
			slog.Warn("sentry init failed", "error", err)
		} else {
			slog.Info("sentry initialised", "environment", cfg.Sentry.Environment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		slog.Warn("SENTRY_DSN not configured, error tracking disabled")
	}

	// ── 4. Fetch engine factory ─────────────────────────────────────
	recorder := audit.Multi{audit.LogRecorder{}}
	if cfg.Audit.Path != "" {
		csvLog, err := audit.NewCSVLog(cfg.Audit.Path)
		if err != nil {
			slog.Error("failed to open audit log", "path", cfg.Audit.Path, "error", err)
			os.Exit(1)
		}
		recorder = append(recorder, csvLog)
		slog.Info("fetch attempts audited", "path", csvLog.Path())
	}

	opts := []engine.Option{engine.WithRecorder(recorder)}
	if cfg.Browser.Enabled {
		opts = append(opts, engine.WithBrowser(engine.NewBrowserTransport(cfg.Browser)))
	}
	factory, err := engine.NewFactory(cfg.Fetch, cfg.Proxy, opts...)
	if err != nil {
		slog.Error("failed to initialise fetch engine", "error", err)
		os.Exit(1)
	}
	if !factory.ProxyConfigured() {
		slog.Warn("no proxy gateway configured, only direct strategies will run")
	}
	slog.Info("fetch chain ready", "transports", factory.TransportNames())

	// ── 5. Business API, cache, scraper ─────────────────────────────
	client := webhook.New(cfg.API)
	if !client.Enabled() {
		slog.Warn("PRICESCOUT_API_BASE_URL empty, results will not be pushed")
		client = nil
	}
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	sc := scraper.New(cfg, factory, client, cc)
	defer sc.Close()

	// ── 6. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(sc, cfg, version)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Crawls can run for minutes; give them a while to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// sc.Close() runs via defer: waits for job updates, stops the browser.
	slog.Info("pricescout stopped")
}

func tracesSampleRate(env string) float64 {
	if env == "production" {
		return 0.1
	}
	return 1.0
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
