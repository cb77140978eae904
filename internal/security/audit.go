// Package security holds the tamper-evident side of browsing-data removal:
// the append-only audit trail of what was cleared and what policy refused.
package security

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"browsing-data/internal/domain"
	"browsing-data/internal/infra/tracer"
)

const maxAuditLine = 1024 * 1024

// RetentionPolicy controls how long audit logs are kept.
type RetentionPolicy struct {
	MaxAge  time.Duration // max age of entries; 0 = no limit
	MaxSize int64         // max file size in bytes; 0 = no limit
}

// IsZero reports whether the policy keeps everything.
func (p RetentionPolicy) IsZero() bool { return p.MaxAge <= 0 && p.MaxSize <= 0 }

// FileAuditLogger implements domain.AuditLogger by writing JSONL to a file.
type FileAuditLogger struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	clock     clock.Clock
	retention *RetentionPolicy
}

var _ domain.AuditLogger = (*FileAuditLogger)(nil)

// AuditOption configures a FileAuditLogger.
type AuditOption func(*FileAuditLogger)

// WithAuditClock sets the clock used for timestamps and retention cutoffs.
func WithAuditClock(c clock.Clock) AuditOption {
	return func(a *FileAuditLogger) { a.clock = c }
}

// NewFileAuditLogger creates an audit logger that appends to the given path.
// Missing parent directories are created 0700; the file itself is 0600.
func NewFileAuditLogger(path string, opts ...AuditOption) (*FileAuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	a := &FileAuditLogger{file: f, path: path, clock: clock.WallClock}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// SetRetention configures the retention policy for log cleanup.
func (a *FileAuditLogger) SetRetention(policy RetentionPolicy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retention = &policy
}

// Log writes an audit event as a single JSON line and mirrors it as an event
// on the active span, if any.
func (a *FileAuditLogger) Log(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = a.clock.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.file.Write(append(data, '\n')); err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		attrs := make([]attribute.KeyValue, 0, len(event.Detail))
		for k, v := range event.Detail {
			attrs = append(attrs, tracer.StringAttr("audit."+k, v))
		}
		span.AddEvent("audit."+string(event.Type), trace.WithAttributes(attrs...))
	}

	return nil
}

// LogRemoval records one completed removal request.
func (a *FileAuditLogger) LogRemoval(ctx context.Context, actor string, d domain.RemovalDetails) error {
	detail := map[string]string{
		"request_id": d.RequestID,
		"data_types": d.DataTypes.String(),
		"scope":      d.Scope.String(),
		"end":        d.End.UTC().Format(time.RFC3339),
		"tasks":      strconv.Itoa(d.TaskCount),
		"duration":   d.Duration().String(),
	}
	if d.Begin.IsZero() {
		detail["begin"] = "everything"
	} else {
		detail["begin"] = d.Begin.UTC().Format(time.RFC3339)
	}
	if !d.Origin.IsZero() {
		detail["origin"] = d.Origin.String()
	}
	if !d.Skipped.IsEmpty() {
		detail["skipped"] = d.Skipped.String()
	}
	return a.Log(ctx, domain.AuditEvent{
		Timestamp: d.FinishedAt,
		Type:      domain.AuditBrowsingDataRemoved,
		Actor:     actor,
		Resource:  "browsing_data",
		Action:    "remove",
		Outcome:   "success",
		Detail:    detail,
	})
}

// LogDenied records a data type that policy refused to delete.
func (a *FileAuditLogger) LogDenied(ctx context.Context, requestID string, dt domain.DataType, reason string) error {
	return a.Log(ctx, domain.AuditEvent{
		Type:     domain.AuditHistoryDeletionDenied,
		Resource: dt.String(),
		Action:   "remove",
		Outcome:  "denied",
		Detail: map[string]string{
			"request_id": requestID,
			"reason":     reason,
		},
	})
}

// Close flushes and closes the audit log file.
func (a *FileAuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// EnforceRetention rewrites the log keeping only entries that satisfy the
// retention policy. Safe to call while the logger is active.
func (a *FileAuditLogger) EnforceRetention(ctx context.Context) (removed int, err error) {
	a.mu.Lock()
	policy := a.retention
	a.mu.Unlock()

	if policy == nil || policy.IsZero() {
		return 0, nil
	}

	if policy.MaxAge == 0 {
		info, err := os.Stat(a.path)
		if err != nil {
			return 0, fmt.Errorf("stat audit log: %w", err)
		}
		if info.Size() <= policy.MaxSize {
			return 0, nil
		}
	}

	var cutoff time.Time
	if policy.MaxAge > 0 {
		cutoff = a.clock.Now().Add(-policy.MaxAge)
	}

	_, span := tracer.StartSpan(ctx, "audit.EnforceRetention")
	defer span.End()

	a.mu.Lock()
	removed, err = a.rewrite(*policy, cutoff)
	a.mu.Unlock()
	if err != nil {
		tracer.RecordError(span, err)
		return removed, err
	}
	span.SetAttributes(tracer.IntAttr("audit.removed", removed))
	tracer.SetOK(span)
	return removed, nil
}

// rewrite filters the log into a temp file and swaps it in. Caller holds a.mu.
func (a *FileAuditLogger) rewrite(policy RetentionPolicy, cutoff time.Time) (removed int, err error) {
	if err := a.file.Close(); err != nil {
		return 0, fmt.Errorf("close for retention: %w", err)
	}
	// Whatever happens, leave an append handle behind.
	defer func() {
		f, openErr := openAppend(a.path)
		if openErr != nil {
			if err == nil {
				err = fmt.Errorf("reopen after retention: %w", openErr)
			}
			return
		}
		a.file = f
	}()

	kept, keptSize, removed, err := readRetained(a.path, cutoff)
	if err != nil {
		return 0, err
	}

	if policy.MaxSize > 0 {
		for len(kept) > 0 && keptSize > policy.MaxSize {
			keptSize -= int64(len(kept[0])) + 1
			kept = kept[1:]
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	tmpPath := a.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, line := range kept {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	if err := os.Rename(tmpPath, a.path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename temp file: %w", err)
	}
	return removed, nil
}

// readRetained returns the lines at or after cutoff. Lines without a readable
// timestamp are kept.
func readRetained(path string, cutoff time.Time) (kept [][]byte, size int64, removed int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open for reading: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxAuditLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !cutoff.IsZero() {
			var entry struct {
				Timestamp time.Time `json:"timestamp"`
			}
			if json.Unmarshal(line, &entry) == nil && !entry.Timestamp.IsZero() && entry.Timestamp.Before(cutoff) {
				removed++
				continue
			}
		}
		kept = append(kept, append([]byte(nil), line...))
		size += int64(len(line)) + 1
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, 0, fmt.Errorf("scan audit log: %w", err)
	}
	return kept, size, removed, nil
}
