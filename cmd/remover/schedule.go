package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"browsing-data/internal/usecase/scheduling"
)

func runSchedule(args []string) error {
	app, err := newApp(configPath(args))
	if err != nil {
		return err
	}
	defer app.Close()

	if !app.Config.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled; set scheduler.enabled in the config")
	}

	scheduler, err := initScheduler(app)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if app.Config.Metrics.Enabled {
		srv := metricsServer(app)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.Log.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		app.Log.Info("serving metrics", "addr", app.Config.Metrics.Addr, "path", app.Config.Metrics.Path)
	}

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	for _, name := range scheduler.Tasks() {
		if next, ok := scheduler.NextRun(name); ok {
			app.Log.Info("task scheduled", "task", name, "next_run", next)
		}
	}

	<-ctx.Done()
	app.Log.Info("shutting down scheduler")
	return scheduler.Stop()
}

// initScheduler registers the actions and configured tasks.
func initScheduler(app *app) (*scheduling.Scheduler, error) {
	scheduler := scheduling.NewScheduler(app.Log, app.Metrics)
	if b := app.Config.Scheduler.Breaker; b.Enabled {
		cfg := scheduling.BreakerConfig{MaxFailures: uint32(b.MaxFailures)}
		if b.OpenTimeout != "" {
			d, err := time.ParseDuration(b.OpenTimeout)
			if err != nil {
				return nil, fmt.Errorf("scheduler.breaker.open_timeout: %w", err)
			}
			cfg.Timeout = d
		}
		scheduler.UseCircuitBreaker(cfg)
	}

	logOpt := scheduling.WithActionLogger(app.Log)
	if app.Audit != nil {
		scheduler.RegisterAction(scheduling.ActionClearBrowsingData, scheduling.ClearAction(app.Service, app.Bus, app.Audit, logOpt))
		scheduler.RegisterAction(scheduling.ActionAuditRetention, scheduling.RetentionAction(app.Audit))
	} else {
		scheduler.RegisterAction(scheduling.ActionClearBrowsingData, scheduling.ClearAction(app.Service, app.Bus, nil, logOpt))
	}

	tasks, err := scheduling.TasksFromConfig(app.Config.Scheduler)
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		if err := scheduler.AddTask(task); err != nil {
			return nil, err
		}
	}
	app.Log.Info("scheduler enabled", "tasks", len(tasks))
	return scheduler, nil
}

func metricsServer(app *app) *http.Server {
	path := app.Config.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, app.Metrics.Handler())
	return &http.Server{
		Addr:              app.Config.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
