package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"browsing-data/internal/adapter/policy"
	"browsing-data/internal/adapter/sqlitedb"
	"browsing-data/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor(args []string) error {
	cfgPath := configPath(args)

	// Try to load config; some checks work without it.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Protected origins", Fn: checkProtectedOrigins},
		{Name: "Profile database", Fn: checkDatabase(func(c *config.Config) string { return c.Profile.Database })},
		{Name: "Storage database", Fn: checkDatabase(func(c *config.Config) string { return c.Profile.StorageDB })},
		{Name: "Profile directories", Fn: checkProfileDirs},
		{Name: "Audit log", Fn: checkAuditLog},
		{Name: "Disk space", Fn: checkDiskSpace},
	}

	fmt.Println("remover doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name
		results = append(results, result)

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}
	}

	pass, warn, fail := summarize(results)
	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above before clearing browsing data.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\nremover should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed! The profile is ready to be cleared.")
	}
	return nil
}

func summarize(results []CheckResult) (pass, warn, fail int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}
	return pass, warn, fail
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

var notLoaded = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

// checkConfigFile returns a check that verifies the config file parses correctly.
// A missing file is only a warning since the defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Check the syntax of %s", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkProtectedOrigins verifies every configured protected origin parses.
func checkProtectedOrigins(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	p, err := policy.New(cfg.Policy.ProtectedOrigins)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Use scheme://host[:port] for policy.protected_origins entries",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d protected origin(s)", len(p.Origins())),
	}
}

// checkDatabase returns a check that opens the sqlite database path selects.
func checkDatabase(path func(*config.Config) string) func(*config.Config) CheckResult {
	return func(cfg *config.Config) CheckResult {
		if cfg == nil {
			return notLoaded
		}
		p := path(cfg)
		db, err := sqlitedb.Open(p, "")
		if err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("cannot open %s: %v", p, err),
				Fix:     fmt.Sprintf("Check permissions on %s", filepath.Dir(p)),
			}
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("database %s unusable: %v", p, err),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s opens", p),
		}
	}
}

// checkProfileDirs reports which file-based stores exist. Missing ones are
// fine since there is nothing to delete.
func checkProfileDirs(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	dirs := []string{cfg.Profile.CacheDir, cfg.Profile.PluginDataDir, cfg.Profile.LicenseDir, cfg.Profile.KeyDir}
	var missing []string
	for _, d := range dirs {
		info, err := os.Stat(d)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			missing = append(missing, filepath.Base(d))
		case err != nil:
			return CheckResult{Status: StatusFail, Message: fmt.Sprintf("cannot stat %s: %v", d, err)}
		case !info.IsDir():
			return CheckResult{Status: StatusFail, Message: fmt.Sprintf("%s exists but is not a directory", d)}
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("not present (nothing to clear): %s", strings.Join(missing, ", ")),
		}
	}
	return CheckResult{Status: StatusPass, Message: "cache, plugin data and license directories present"}
}

// checkAuditLog verifies the audit directory is writable.
func checkAuditLog(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if !cfg.Audit.Enabled {
		return CheckResult{Status: StatusWarn, Message: "audit logging disabled"}
	}

	dir := filepath.Dir(cfg.Audit.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("audit directory %s cannot be created: %v", dir, err),
			Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", dir),
		}
	}
	testFile := filepath.Join(dir, ".doctor-check")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("audit directory %s is not writable: %v", dir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 700 %s", dir),
		}
	}
	os.Remove(testFile)

	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("writing to %s", cfg.Audit.Path)}
}

// checkDiskSpace checks available disk space in the profile directory. Rewriting
// a sqlite database after large deletions needs free space.
func checkDiskSpace(cfg *config.Config) CheckResult {
	dataDir := "./profile"
	if cfg != nil && cfg.Profile.DataDir != "" {
		dataDir = cfg.Profile.DataDir
	}
	absDir, _ := filepath.Abs(dataDir)

	info, err := os.Stat(absDir)
	if err != nil || !info.IsDir() {
		return CheckResult{
			Status:  StatusPass,
			Message: "profile directory does not exist yet, space check skipped",
		}
	}

	out, err := exec.Command("df", "-h", absDir).Output()
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: "could not determine disk space (df command failed)",
		}
	}
	return parseDF(string(out))
}

func parseDF(out string) CheckResult {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return CheckResult{Status: StatusWarn, Message: "unexpected df output format"}
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 5 {
		return CheckResult{Status: StatusWarn, Message: "unexpected df output format"}
	}

	available := fields[3]
	usePercent := fields[4]
	var pct int
	fmt.Sscanf(strings.TrimSuffix(usePercent, "%"), "%d", &pct)

	if pct >= 95 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("disk almost full: %s used, %s available", usePercent, available),
			Fix:     "Free up disk space; sqlite needs room to rewrite pages after deletions",
		}
	}
	if pct >= 85 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("disk usage high: %s used, %s available", usePercent, available),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("disk usage: %s used, %s available", usePercent, available),
	}
}
