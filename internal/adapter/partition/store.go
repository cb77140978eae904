// Package partition is the SQLite-backed storage partition: cookies, DOM
// storage, quota-managed storage and media licenses of one profile.
package partition

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"browsing-data/internal/adapter/sqlitedb"
	"browsing-data/internal/domain"
	"browsing-data/internal/infra/logger"
	"browsing-data/internal/infra/metrics"
)

const backendName = "partition"

const schema = `
	CREATE TABLE IF NOT EXISTS cookies (
		host          TEXT NOT NULL,
		name          TEXT NOT NULL,
		value         TEXT NOT NULL DEFAULT '',
		creation_time INTEGER NOT NULL,
		PRIMARY KEY (host, name)
	);

	CREATE TABLE IF NOT EXISTS local_storage (
		origin        TEXT NOT NULL,
		key           TEXT NOT NULL,
		value         TEXT NOT NULL DEFAULT '',
		last_modified INTEGER NOT NULL,
		PRIMARY KEY (origin, key)
	);

	CREATE TABLE IF NOT EXISTS quota_storage (
		origin        TEXT NOT NULL,
		kind          TEXT NOT NULL,
		quota_type    TEXT NOT NULL DEFAULT 'temporary',
		size          INTEGER NOT NULL DEFAULT 0,
		last_modified INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS quota_storage_origin ON quota_storage (origin);

	CREATE TABLE IF NOT EXISTS media_licenses (
		origin        TEXT NOT NULL,
		license_id    TEXT NOT NULL,
		last_modified INTEGER NOT NULL,
		PRIMARY KEY (origin, license_id)
	);
`

// Storage kinds held in quota_storage, keyed by the partition mask bit that selects them.
var quotaKinds = []struct {
	mask domain.PartitionMask
	kind string
}{
	{domain.PartitionIndexedDB, "indexeddb"},
	{domain.PartitionWebSQL, "websql"},
	{domain.PartitionAppCache, "appcache"},
	{domain.PartitionFileSystems, "file_systems"},
}

// Store implements domain.StoragePartition.
type Store struct {
	db      *sql.DB
	policy  domain.OriginPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

var _ domain.StoragePartition = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPolicy sets the policy matchers consult when a request carries none.
func WithPolicy(p domain.OriginPolicy) Option { return func(s *Store) { s.policy = p } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithMetrics records deleted rows and failures on m.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Store) { s.metrics = m } }

// Open opens (or creates) the storage database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sqlitedb.Open(path, schema)
	if err != nil {
		return nil, domain.NewSubSystemError(backendName, "partition.Open", domain.ErrBackendFailure, err.Error())
	}
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.Component(s.logger, backendName)
	return s, nil
}

// Close waits for in-flight clears and closes the database.
func (s *Store) Close() error {
	s.wg.Wait()
	return s.db.Close()
}

// ClearData deletes the categories in req.RemoveMask in the background and
// calls done exactly once when every category has finished, even on failure.
func (s *Store) ClearData(ctx context.Context, req domain.PartitionClearRequest, done domain.DoneFunc) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer done()

		n, err := s.clear(ctx, req)
		if err != nil {
			s.logger.Error("storage partition clear failed", "mask", req.RemoveMask, "error", err)
			s.metrics.ObserveBackendFailure(backendName)
		}
		s.metrics.ObserveDeleted(backendName, n)
		s.logger.Debug("storage partition cleared", "mask", req.RemoveMask, "origin", req.Origin.String(), "rows", n)
	}()
}

func (s *Store) clear(ctx context.Context, req domain.PartitionClearRequest) (int64, error) {
	var deleted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	run := func(fn func(context.Context, domain.PartitionClearRequest) (int64, error)) {
		g.Go(func() error {
			n, err := fn(gctx, req)
			deleted.Add(n)
			return err
		})
	}

	if req.RemoveMask.Has(domain.PartitionCookies) {
		run(s.clearCookies)
	}
	if req.RemoveMask.Has(domain.PartitionLocalStorage) {
		run(s.clearLocalStorage)
	}
	if kinds := quotaKindsFor(req.RemoveMask); len(kinds) > 0 {
		run(func(ctx context.Context, req domain.PartitionClearRequest) (int64, error) {
			return s.clearQuotaStorage(ctx, req, kinds)
		})
	}
	if req.RemoveMask.Has(domain.PartitionMediaLicenses) {
		run(s.clearMediaLicenses)
	}

	err := g.Wait()
	return deleted.Load(), domain.WrapOp("partition.ClearData", err)
}

// clearCookies deletes cookies created in range. Cookies are not separated by
// origin protection, so only an explicit origin narrows the deletion.
func (s *Store) clearCookies(ctx context.Context, req domain.PartitionClearRequest) (int64, error) {
	lo, hi := sqlitedb.Bounds(req.Begin, req.End)
	query := "DELETE FROM cookies WHERE creation_time >= ? AND creation_time < ?"
	args := []any{lo, hi}
	if !req.Origin.IsZero() {
		host := req.Origin.Host()
		alt := "." + host
		if strings.Contains(host, ":") {
			// IPv6 literals are stored with or without brackets and never as domain cookies.
			alt = "[" + host + "]"
		}
		query += " AND (host = ? OR host = ?)"
		args = append(args, host, alt)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete cookies: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) clearLocalStorage(ctx context.Context, req domain.PartitionClearRequest) (int64, error) {
	return s.clearByOrigin(ctx, req, "local_storage", "", nil)
}

func (s *Store) clearMediaLicenses(ctx context.Context, req domain.PartitionClearRequest) (int64, error) {
	return s.clearByOrigin(ctx, req, "media_licenses", "", nil)
}

func (s *Store) clearQuotaStorage(ctx context.Context, req domain.PartitionClearRequest, kinds []string) (int64, error) {
	quotaTypes := quotaTypesFor(req.QuotaMask)
	if len(quotaTypes) == 0 {
		return 0, nil
	}
	filter := fmt.Sprintf(" AND kind IN (%s) AND quota_type IN (%s)",
		sqlitedb.Placeholders(len(kinds)), sqlitedb.Placeholders(len(quotaTypes)))
	args := make([]any, 0, len(kinds)+len(quotaTypes))
	for _, k := range kinds {
		args = append(args, k)
	}
	for _, q := range quotaTypes {
		args = append(args, q)
	}
	return s.clearByOrigin(ctx, req, "quota_storage", filter, args)
}

// clearByOrigin deletes rows modified in range for every origin the request
// selects. table is one of the package's own table names.
func (s *Store) clearByOrigin(ctx context.Context, req domain.PartitionClearRequest, table, filter string, filterArgs []any) (int64, error) {
	lo, hi := sqlitedb.Bounds(req.Begin, req.End)
	rangeArgs := append([]any{lo, hi}, filterArgs...)

	origins, err := s.selectOrigins(ctx, req,
		"SELECT DISTINCT origin FROM "+table+" WHERE last_modified >= ? AND last_modified < ?"+filter, rangeArgs)
	if err != nil {
		return 0, fmt.Errorf("list %s origins: %w", table, err)
	}
	if len(origins) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin %s: %w", table, err)
	}
	defer tx.Rollback()

	stmt := "DELETE FROM " + table + " WHERE origin = ? AND last_modified >= ? AND last_modified < ?" + filter
	var total int64
	for _, o := range origins {
		res, err := tx.ExecContext(ctx, stmt, append([]any{o}, rangeArgs...)...)
		if err != nil {
			return 0, fmt.Errorf("delete %s for %s: %w", table, o, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s: %w", table, err)
	}
	return total, nil
}

// selectOrigins returns the stored origin strings selected by req. Stored
// values are compared in canonical form but returned as stored.
func (s *Store) selectOrigins(ctx context.Context, req domain.PartitionClearRequest, query string, args []any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		o, err := domain.ParseOrigin(raw)
		if err != nil {
			o = domain.Origin(raw)
		}
		if s.selects(req, o) {
			out = append(out, raw)
		}
	}
	return out, rows.Err()
}

func (s *Store) selects(req domain.PartitionClearRequest, o domain.Origin) bool {
	if !req.Origin.IsZero() && o != req.Origin {
		return false
	}
	if req.Matcher != nil && !req.Matcher(o, s.policy) {
		return false
	}
	return true
}

func quotaKindsFor(mask domain.PartitionMask) []string {
	var out []string
	for _, q := range quotaKinds {
		if mask.Has(q.mask) {
			out = append(out, q.kind)
		}
	}
	return out
}

func quotaTypesFor(mask domain.QuotaStorageMask) []string {
	var out []string
	for _, t := range []domain.QuotaType{domain.QuotaTypeTemporary, domain.QuotaTypePersistent, domain.QuotaTypeSyncable} {
		if mask.Has(t.Mask()) {
			out = append(out, string(t))
		}
	}
	return out
}
