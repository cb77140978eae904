package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Includes  []string        `yaml:"includes,omitempty"`
	Profile   ProfileConfig   `yaml:"profile"`
	Policy    PolicyConfig    `yaml:"policy"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Audit     AuditConfig     `yaml:"audit"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ProfileConfig locates the stores of one browser profile.
// Empty paths are derived from DataDir by ResolvePaths.
type ProfileConfig struct {
	DataDir       string `yaml:"data_dir"`
	Database      string `yaml:"database"`         // history, downloads, autofill, logins, certs
	StorageDB     string `yaml:"storage_database"` // cookies and per-origin storage
	CacheDir      string `yaml:"cache_dir"`
	PluginDataDir string `yaml:"plugin_data_dir"`
	LicenseDir    string `yaml:"license_dir"`
	KeyDir        string `yaml:"key_dir"`
	// DeleteRate caps cache and plugin file removals per second; 0 is unlimited.
	DeleteRate int `yaml:"delete_rate"`
}

// ResolvePaths fills empty profile paths from DataDir.
func (p *ProfileConfig) ResolvePaths() {
	fill := func(dst *string, name string) {
		if *dst == "" {
			*dst = filepath.Join(p.DataDir, name)
		}
	}
	fill(&p.Database, "profile.db")
	fill(&p.StorageDB, "storage.db")
	fill(&p.CacheDir, "Cache")
	fill(&p.PluginDataDir, "Plugin Data")
	fill(&p.LicenseDir, "Content Licenses")
	fill(&p.KeyDir, "Platform Keys")
}

// PolicyConfig holds administrator policy for browsing-data removal.
type PolicyConfig struct {
	AllowDeletingHistory bool     `yaml:"allow_deleting_history"`
	ProtectedOrigins     []string `yaml:"protected_origins"`
	// DebugChecks turns policy-denied history deletion into a panic instead of a skip.
	DebugChecks bool `yaml:"debug_checks"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// AuditConfig holds audit logging settings.
type AuditConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Path      string          `yaml:"path"`
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig holds audit log retention policy settings.
type RetentionConfig struct {
	MaxAge  string `yaml:"max_age"`  // duration string, e.g. "2160h" (90 days)
	MaxSize string `yaml:"max_size"` // e.g. "100MB"
}

// SchedulerConfig holds cron/scheduler settings.
type SchedulerConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Tasks   []ScheduledTaskConfig `yaml:"tasks"`
	Breaker BreakerConfig         `yaml:"breaker"`
}

// BreakerConfig pauses a scheduled task after repeated failures.
type BreakerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MaxFailures int    `yaml:"max_failures"` // consecutive failures before opening
	OpenTimeout string `yaml:"open_timeout"` // duration string, e.g. "30m"
}

// Scheduled task actions.
const (
	ActionClearBrowsingData = "clear_browsing_data"
	ActionAuditRetention    = "audit_retention"
)

// ScheduledTaskConfig defines a single scheduled task.
type ScheduledTaskConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression or duration string
	Action   string `yaml:"action"`
	Period   string `yaml:"period,omitempty"`
	Types    string `yaml:"types,omitempty"` // comma-separated data type names
	Scope    string `yaml:"scope,omitempty"`
	Origin   string `yaml:"origin,omitempty"`
	OneShot  bool   `yaml:"one_shot,omitempty"`
}

// defaultDataDir returns the profile directory under $HOME/.browsingdata/profile.
// Falls back to "./profile" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./profile"
	}
	return filepath.Join(home, ".browsingdata", "profile")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Profile: ProfileConfig{
			DataDir: dataDir,
		},
		Policy: PolicyConfig{
			AllowDeletingHistory: true,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
			Path:    "/metrics",
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "audit.jsonl"),
			Retention: RetentionConfig{
				MaxAge: "2160h",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled: false,
		},
	}
}

// Load reads a YAML config file over Defaults, merges includes, applies env var
// overrides and validates. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Main file takes precedence over includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)
	cfg.Profile.ResolvePaths()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps BROWSINGDATA_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BROWSINGDATA_PROFILE_DATA_DIR"); v != "" {
		cfg.Profile.DataDir = v
	}
	if v := os.Getenv("BROWSINGDATA_PROFILE_DATABASE"); v != "" {
		cfg.Profile.Database = v
	}
	if v, ok := envBool("BROWSINGDATA_POLICY_ALLOW_DELETING_HISTORY"); ok {
		cfg.Policy.AllowDeletingHistory = v
	}
	if v := os.Getenv("BROWSINGDATA_POLICY_PROTECTED_ORIGINS"); v != "" {
		cfg.Policy.ProtectedOrigins = splitList(v)
	}
	if v, ok := envBool("BROWSINGDATA_POLICY_DEBUG_CHECKS"); ok {
		cfg.Policy.DebugChecks = v
	}
	if v := os.Getenv("BROWSINGDATA_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("BROWSINGDATA_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("BROWSINGDATA_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("BROWSINGDATA_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v, ok := envBool("BROWSINGDATA_METRICS_ENABLED"); ok {
		cfg.Metrics.Enabled = v
	}
	if v := os.Getenv("BROWSINGDATA_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v, ok := envBool("BROWSINGDATA_AUDIT_ENABLED"); ok {
		cfg.Audit.Enabled = v
	}
	if v := os.Getenv("BROWSINGDATA_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}
	if v := os.Getenv("BROWSINGDATA_AUDIT_MAX_AGE"); v != "" {
		if _, err := time.ParseDuration(v); err == nil {
			cfg.Audit.Retention.MaxAge = v
		}
	}
	if v, ok := envBool("BROWSINGDATA_SCHEDULER_ENABLED"); ok {
		cfg.Scheduler.Enabled = v
	}
}

func envBool(key string) (value, ok bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600, 0640 and 0644 (readable by others but not writable)
	if mode&0o033 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
