package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"browsing-data/internal/infra/config"
	"browsing-data/internal/infra/logger"
	"browsing-data/internal/infra/metrics"
	"browsing-data/internal/infra/tracer"
	"browsing-data/internal/security"
	"browsing-data/internal/usecase/eventbus"
	"browsing-data/internal/usecase/remover"
)

// app is the wired process: config, ambient stack, profile stores and the
// removal service over them.
type app struct {
	Config  *config.Config
	Log     *slog.Logger
	Metrics *metrics.Metrics
	Bus     *eventbus.Bus
	Audit   *security.FileAuditLogger // nil when audit is disabled
	Profile *ProfileComponents
	Service *remover.Service

	cleanups []func()
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return newAppFromConfig(cfg)
}

func newAppFromConfig(cfg *config.Config) (*app, error) {
	a := &app{Config: cfg}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	// 1. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a.Log = log
	a.onClose(func() { logCloser() })

	tracerShutdown, err := tracer.Setup(context.Background(), cfg.Tracer)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracerShutdown(ctx)
	})

	// 2. Metrics & event bus
	a.Metrics = metrics.New(cfg.Metrics.Enabled)
	a.Bus = eventbus.New(log, eventbus.WithMetrics(a.Metrics))
	a.onClose(a.Bus.Close)

	// 3. Audit
	audit, err := initAudit(cfg.Audit, log)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	if audit != nil {
		a.Audit = audit
		a.onClose(func() { audit.Close() })
	}

	// 4. Profile stores
	prof, profCleanup, err := initProfile(cfg, a.Metrics, a.Bus, log)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	a.Profile = prof
	a.onClose(profCleanup)

	// 5. Removal service
	opts := []remover.Option{
		remover.WithMetrics(a.Metrics),
		remover.WithEventBus(a.Bus),
		remover.WithDebugChecks(cfg.Policy.DebugChecks),
	}
	if a.Audit != nil {
		opts = append(opts, remover.WithAudit(a.Audit))
	}
	a.Service = remover.NewService(prof.Deps(), log, opts...)
	a.onClose(func() {
		if !a.Service.Drain(30 * time.Second) {
			log.Warn("removal still running at shutdown")
		}
	})

	log.Info("browsing-data remover ready",
		"profile", cfg.Profile.DataDir,
		"audit", a.Audit != nil,
		"protected_origins", len(cfg.Policy.ProtectedOrigins),
		"allow_deleting_history", cfg.Policy.AllowDeletingHistory,
	)
	ready = true
	return a, nil
}

func (a *app) onClose(fn func()) { a.cleanups = append(a.cleanups, fn) }

// Close releases everything in reverse order of creation.
func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}
