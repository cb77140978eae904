package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/juju/clock"

	"browsing-data/internal/domain"
	"browsing-data/internal/infra/config"
	"browsing-data/internal/usecase/remover"
)

// TasksFromConfig converts configured tasks into scheduler tasks.
func TasksFromConfig(cfg config.SchedulerConfig) ([]ScheduledTask, error) {
	tasks := make([]ScheduledTask, 0, len(cfg.Tasks))
	for _, tc := range cfg.Tasks {
		task := ScheduledTask{
			Name:     tc.Name,
			Schedule: tc.Schedule,
			Action:   ScheduledAction(tc.Action),
			OneShot:  tc.OneShot,
		}
		switch tc.Action {
		case config.ActionClearBrowsingData:
			req, err := clearRequest(tc)
			if err != nil {
				return nil, fmt.Errorf("scheduler: task %q: %w", tc.Name, err)
			}
			task.Request = req
		case config.ActionAuditRetention:
		default:
			return nil, fmt.Errorf("scheduler: task %q: unknown action %q", tc.Name, tc.Action)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func clearRequest(tc config.ScheduledTaskConfig) (remover.Request, error) {
	period, err := domain.ParseTimePeriod(tc.Period)
	if err != nil {
		return remover.Request{}, err
	}
	types, err := domain.ParseDataTypes(tc.Types)
	if err != nil {
		return remover.Request{}, err
	}
	scope, err := domain.ParseOriginScope(tc.Scope)
	if err != nil {
		return remover.Request{}, err
	}
	var origin domain.Origin
	if tc.Origin != "" {
		if origin, err = domain.ParseOrigin(tc.Origin); err != nil {
			return remover.Request{}, err
		}
	}
	req := remover.Request{
		Period: period,
		Types:  types,
		Scope:  scope,
		Origin: origin,
		Actor:  "scheduler:" + tc.Name,
	}
	return req, req.Validate()
}

// ActionOption configures ClearAction.
type ActionOption func(*actionEnv)

type actionEnv struct {
	clock  clock.Clock
	logger *slog.Logger
}

// WithActionClock sets the clock used to stamp failure events.
func WithActionClock(c clock.Clock) ActionOption { return func(e *actionEnv) { e.clock = c } }

// WithActionLogger sets the logger for errors the action does not return.
func WithActionLogger(l *slog.Logger) ActionOption { return func(e *actionEnv) { e.logger = l } }

// ClearAction runs a task's removal through svc and waits for it to finish.
// bus and audit may be nil.
func ClearAction(svc *remover.Service, bus domain.EventBus, audit domain.AuditLogger, opts ...ActionOption) ActionFunc {
	env := actionEnv{clock: clock.WallClock, logger: slog.Default()}
	for _, opt := range opts {
		opt(&env)
	}

	return func(ctx context.Context, task ScheduledTask) error {
		req := task.Request
		if req.Actor == "" {
			req.Actor = "scheduler:" + task.Name
		}

		details, err := svc.Clear(ctx, req)
		if err != nil {
			now := env.clock.Now()
			if bus != nil {
				bus.Publish(ctx, domain.NewEvent(domain.EventScheduledClearFailed, "", now,
					map[string]string{"task": task.Name, "error": err.Error()}))
			}
			if audit != nil {
				if auditErr := audit.Log(ctx, domain.AuditEvent{
					Timestamp: now,
					Type:      domain.AuditScheduledClear,
					Actor:     req.Actor,
					Resource:  "browsing_data",
					Action:    "schedule",
					Outcome:   "failure",
					Detail:    map[string]string{"task": task.Name, "error": err.Error()},
				}); auditErr != nil {
					env.logger.Warn("audit write failed", "task", task.Name, "error", auditErr)
				}
			}
			return err
		}

		if bus != nil {
			bus.Publish(ctx, domain.NewEvent(domain.EventScheduledClearFired, details.RequestID, details.FinishedAt,
				map[string]string{"task": task.Name}))
		}
		if audit != nil {
			if err := audit.Log(ctx, domain.AuditEvent{
				Timestamp: details.FinishedAt,
				Type:      domain.AuditScheduledClear,
				Actor:     req.Actor,
				Resource:  "browsing_data",
				Action:    "schedule",
				Outcome:   "success",
				Detail: map[string]string{
					"task":       task.Name,
					"request_id": details.RequestID,
					"data_types": details.DataTypes.String(),
				},
			}); err != nil {
				return fmt.Errorf("audit scheduled clear: %w", err)
			}
		}
		return nil
	}
}

// RetentionEnforcer trims an audit log to its retention policy.
type RetentionEnforcer interface {
	domain.AuditLogger
	EnforceRetention(ctx context.Context) (int, error)
}

// RetentionAction applies the audit retention policy and records how many
// entries it dropped.
func RetentionAction(audit RetentionEnforcer) ActionFunc {
	return func(ctx context.Context, task ScheduledTask) error {
		removed, err := audit.EnforceRetention(ctx)
		if err != nil {
			return fmt.Errorf("enforce audit retention: %w", err)
		}
		return audit.Log(ctx, domain.AuditEvent{
			Type:     domain.AuditRetention,
			Actor:    "scheduler:" + task.Name,
			Resource: "audit_log",
			Action:   "trim",
			Outcome:  "success",
			Detail:   map[string]string{"removed": strconv.Itoa(removed)},
		})
	}
}
