package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/auth"
	"github.com/MrSnakeDoc/shelf/internal/backend"
	"github.com/MrSnakeDoc/shelf/internal/config"
	"github.com/MrSnakeDoc/shelf/internal/httpserver"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/mw"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/scheduler"
	"github.com/MrSnakeDoc/shelf/internal/session"
	"github.com/MrSnakeDoc/shelf/internal/setup"
	"github.com/MrSnakeDoc/shelf/internal/version"
)

type App struct {
	cfg      *config.Config
	logger   logger.Logger
	server   *httpserver.Server
	backend  *backend.Handle
	sessions *session.Manager
	resyncer *scheduler.Resyncer
	reaper   *scheduler.SessionReaper
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Connect to the backend early - fail fast if unavailable
	h, err := backend.Open(context.Background(), cfg.Backend, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to open %s backend: %v", cfg.Kind, err)
		os.Exit(1)
	}
	loggerClient.Info("backend initialized", logger.String("backend", h.Kind))

	// Refuse to serve against a half-provisioned backend.
	checkCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	checks := h.Store.CheckSchema(checkCtx)
	cancel()
	if !setup.Passed(checks) {
		for _, c := range checks {
			if !c.OK {
				loggerClient.Error("backend check failed",
					logger.String("check", c.Name),
					logger.String("detail", c.Detail),
					logger.String("remedy", c.Remedy))
			}
		}
		loggerClient.Errorf("backend is not ready, run `shelfctl setup`")
		os.Exit(1)
	}

	verifier, err := auth.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTLeeway)
	if err != nil {
		loggerClient.Errorf("Invalid identity settings: %v", err)
		os.Exit(1)
	}

	sessions := session.NewManager(h.Store, h.Store, session.Options{
		Logger:       logger.Named(loggerClient, "session"),
		RetryInitial: cfg.ResubscribeInitial,
		RetryMax:     cfg.ResubscribeMax,
	})

	// Create manual resync trigger channel
	resyncTrigger := make(chan struct{}, 1)

	resyncer := scheduler.NewResyncer(
		sessions,
		loggerClient,
		cfg.ResyncInterval,
		time.Minute,
		resyncTrigger,
	)

	reaper := scheduler.NewSessionReaper(
		sessions,
		loggerClient,
		cfg.ReapInterval,
		cfg.SessionIdleTimeout,
	)

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		TimeNow:        time.Now,
		AllowedHosts:   cfg.AllowedHosts,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		TrustProxy:     cfg.TrustProxy,
		Backend:        h.Kind,
		Gateway:        h.Store,
		Sessions:       sessions,
		Verifier:       verifier,
		SignInURL:      cfg.SignInURL,
		CookieName:     cfg.CookieName,
		CookieSecure:   cfg.CookieSecure,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit: mw.RateLimitConfig{
			Burst:           cfg.RateLimitBurst,
			RefillPerMinute: cfg.RateLimitPerMinute,
			MaxEntries:      10000,
			TrustProxy:      cfg.TrustProxy,
		},
		ResyncTrigger: resyncTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:      cfg,
		logger:   loggerClient,
		server:   server,
		backend:  h,
		sessions: sessions,
		resyncer: resyncer,
		reaper:   reaper,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting shelf %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("shelf %s", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.resyncer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start resyncer: %w", err)
	}
	a.logger.Info("resyncer started",
		logger.Duration("interval", a.cfg.ResyncInterval))

	if err := a.reaper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session reaper: %w", err)
	}
	a.logger.Info("session reaper started",
		logger.Duration("interval", a.cfg.ReapInterval),
		logger.Duration("idle", a.cfg.SessionIdleTimeout))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	a.resyncer.Stop()
	a.reaper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	// Every subscription is released before the backend goes away.
	a.sessions.CloseAll()

	if err := a.backend.Close(); err != nil {
		a.logger.Warnf("failed to close %s backend: %v", a.backend.Kind, err)
	} else {
		a.logger.Info("✅ backend closed cleanly")
	}

	a.logger.Info("✅ shelf stopped cleanly")
	return nil
}
