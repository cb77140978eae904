package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"browsing-data/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Unwrap lets errors.Is(err, domain.ErrConfigLoad) match validation failures.
func (v *ValidationError) Unwrap() error { return domain.ErrConfigLoad }

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateProfile(cfg, ve)
	validatePolicy(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateMetrics(cfg, ve)
	validateAudit(cfg, ve)
	validateScheduler(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateProfile(cfg *Config, ve *ValidationError) {
	if cfg.Profile.DataDir == "" {
		ve.Add("profile.data_dir must not be empty")
	}
	if cfg.Profile.DeleteRate < 0 {
		ve.Add("profile.delete_rate must not be negative")
	}
}

func validatePolicy(cfg *Config, ve *ValidationError) {
	for i, raw := range cfg.Policy.ProtectedOrigins {
		o, err := domain.ParseOrigin(raw)
		if err != nil {
			ve.Add("policy.protected_origins[%d] %q is not a valid origin", i, raw)
			continue
		}
		if !o.IsWeb() {
			ve.Add("policy.protected_origins[%d] %q must be an http or https origin", i, raw)
		}
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if cfg.Logger.Level != "" && !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want debug, info, warn or error)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want text or json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is unsupported (want noop or stdout)", cfg.Tracer.Exporter)
	}
}

func validateMetrics(cfg *Config, ve *ValidationError) {
	if !cfg.Metrics.Enabled {
		return
	}
	if cfg.Metrics.Addr == "" {
		ve.Add("metrics.addr is required when metrics are enabled")
	} else if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
		ve.Add("metrics.addr %q is not a valid host:port", cfg.Metrics.Addr)
	}
	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		ve.Add("metrics.path %q must start with /", cfg.Metrics.Path)
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if !cfg.Audit.Enabled {
		return
	}
	if cfg.Audit.Path == "" {
		ve.Add("audit.path is required when audit is enabled")
	}
	if v := cfg.Audit.Retention.MaxAge; v != "" {
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			ve.Add("audit.retention.max_age %q is not a valid duration", v)
		}
	}
	if v := cfg.Audit.Retention.MaxSize; v != "" {
		if _, err := ParseSize(v); err != nil {
			ve.Add("audit.retention.max_size %q is not a valid size", v)
		}
	}
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	if !cfg.Scheduler.Enabled {
		return
	}
	if b := cfg.Scheduler.Breaker; b.Enabled {
		if b.MaxFailures < 0 {
			ve.Add("scheduler.breaker.max_failures must not be negative")
		}
		if b.OpenTimeout != "" {
			if d, err := time.ParseDuration(b.OpenTimeout); err != nil || d <= 0 {
				ve.Add("scheduler.breaker.open_timeout %q is not a valid duration", b.OpenTimeout)
			}
		}
	}
	for i, t := range cfg.Scheduler.Tasks {
		if t.Name == "" {
			ve.Add("scheduler.tasks[%d].name is required", i)
		}
		if t.Schedule == "" {
			ve.Add("scheduler.tasks[%d].schedule is required", i)
		}
		switch t.Action {
		case ActionClearBrowsingData:
			validateClearTask(i, t, ve)
		case ActionAuditRetention:
		case "":
			ve.Add("scheduler.tasks[%d].action is required", i)
		default:
			ve.Add("scheduler.tasks[%d].action %q is unknown", i, t.Action)
		}
	}
}

func validateClearTask(i int, t ScheduledTaskConfig, ve *ValidationError) {
	if _, err := domain.ParseTimePeriod(t.Period); err != nil {
		ve.Add("scheduler.tasks[%d].period %q is invalid", i, t.Period)
	}
	if _, err := domain.ParseDataTypes(t.Types); err != nil {
		ve.Add("scheduler.tasks[%d].types: %v", i, err)
	}
	scope, err := domain.ParseOriginScope(t.Scope)
	if err != nil {
		ve.Add("scheduler.tasks[%d].scope %q is invalid", i, t.Scope)
	}
	if t.Origin != "" {
		if _, err := domain.ParseOrigin(t.Origin); err != nil {
			ve.Add("scheduler.tasks[%d].origin %q is invalid", i, t.Origin)
		}
		if scope != domain.ScopeUnprotectedWeb {
			ve.Add("scheduler.tasks[%d]: a single-origin clear requires scope unprotected_web", i)
		}
	}
}

// ParseSize parses a human-readable size string (e.g. "100MB", "1GB").
// An empty string means no limit.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	s = strings.ToUpper(strings.TrimSpace(s))

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("parse size %q: invalid", s)
	}
	return n * multiplier, nil
}
