package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 3
	defaultCBTimeout     time.Duration = 30 * time.Minute
)

// BreakerConfig configures WithCircuitBreaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failed runs before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before one probe run is allowed.
	Timeout time.Duration
}

// ErrCircuitOpen is returned for runs skipped while a task's circuit is open.
var ErrCircuitOpen = errors.New("circuit open")

// WithCircuitBreaker wraps action so that a task failing repeatedly stops
// touching the profile until the timeout passes. Each call builds one breaker,
// so wrap once per task.
func WithCircuitBreaker(name string, action ActionFunc, cfg BreakerConfig, logger *slog.Logger) ActionFunc {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "schedule:" + name,
		MaxRequests: 1, // one probe in half-open state
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return func(ctx context.Context, task ScheduledTask) error {
		_, err := cb.Execute(func() (struct{}, error) {
			return struct{}{}, action(ctx, task)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("task %q: %w", task.Name, ErrCircuitOpen)
		}
		return err
	}
}
