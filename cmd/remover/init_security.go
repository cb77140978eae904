package main

import (
	"fmt"
	"log/slog"
	"time"

	"browsing-data/internal/infra/config"
	"browsing-data/internal/security"
)

// initAudit opens the audit log and sets its retention policy. It returns nil
// when audit is disabled.
func initAudit(cfg config.AuditConfig, log *slog.Logger) (*security.FileAuditLogger, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	audit, err := security.NewFileAuditLogger(cfg.Path)
	if err != nil {
		return nil, err
	}

	policy, err := retentionPolicy(cfg.Retention)
	if err != nil {
		audit.Close()
		return nil, err
	}
	if !policy.IsZero() {
		audit.SetRetention(policy)
	}

	log.Info("audit logging enabled", "path", cfg.Path, "max_age", policy.MaxAge, "max_size", policy.MaxSize)
	return audit, nil
}

func retentionPolicy(cfg config.RetentionConfig) (security.RetentionPolicy, error) {
	var p security.RetentionPolicy
	if cfg.MaxAge != "" {
		d, err := time.ParseDuration(cfg.MaxAge)
		if err != nil {
			return p, fmt.Errorf("retention max_age: %w", err)
		}
		p.MaxAge = d
	}
	size, err := config.ParseSize(cfg.MaxSize)
	if err != nil {
		return p, fmt.Errorf("retention max_size: %w", err)
	}
	p.MaxSize = size
	return p, nil
}
