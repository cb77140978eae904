// Package profile is the SQLite-backed profile database: history, downloads,
// autofill, saved logins and server-bound certificates.
package profile

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/juju/clock"

	"browsing-data/internal/adapter/sqlitedb"
	"browsing-data/internal/domain"
	"browsing-data/internal/infra/logger"
	"browsing-data/internal/infra/metrics"
)

const subsystem = "profile"

const schema = `
	CREATE TABLE IF NOT EXISTS visits (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		url        TEXT NOT NULL,
		origin     TEXT NOT NULL,
		visit_time INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS visits_time ON visits (visit_time);

	CREATE TABLE IF NOT EXISTS keyword_search_terms (
		visit_id INTEGER NOT NULL,
		term     TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS downloads (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		url         TEXT NOT NULL,
		target_path TEXT NOT NULL DEFAULT '',
		start_time  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS autofill (
		name           TEXT NOT NULL,
		value          TEXT NOT NULL,
		date_created   INTEGER NOT NULL,
		date_last_used INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS autofill_profiles (
		guid          TEXT PRIMARY KEY,
		full_name     TEXT NOT NULL DEFAULT '',
		origin        TEXT NOT NULL DEFAULT '',
		date_modified INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS credit_cards (
		guid          TEXT PRIMARY KEY,
		name_on_card  TEXT NOT NULL DEFAULT '',
		origin        TEXT NOT NULL DEFAULT '',
		date_modified INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS logins (
		origin_url     TEXT NOT NULL,
		username       TEXT NOT NULL DEFAULT '',
		password_value BLOB,
		date_created   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS server_bound_certs (
		origin        TEXT PRIMARY KEY,
		private_key   BLOB,
		cert          BLOB,
		creation_time INTEGER NOT NULL
	);
`

// PersonalDataObserver is told after autofill data changed underneath it.
type PersonalDataObserver interface {
	OnPersonalDataChanged()
}

// Store implements the history, download, autofill, password and certificate
// backends over one database.
type Store struct {
	db              *sql.DB
	allowDeletion   bool
	clock           clock.Clock
	logger          *slog.Logger
	metrics         *metrics.Metrics
	bus             domain.EventBus
	wg              sync.WaitGroup
	mu              sync.Mutex
	personalData    []PersonalDataObserver
	configObservers []domain.ConfigChangeObserver
}

var (
	_ domain.HistoryBackend  = (*Store)(nil)
	_ domain.DownloadBackend = (*Store)(nil)
	_ domain.AutofillBackend = (*Store)(nil)
	_ domain.PasswordBackend = (*Store)(nil)
	_ domain.CertBackend     = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithHistoryDeletionAllowed sets the administrator policy for deleting history
// and downloads. The default allows it.
func WithHistoryDeletionAllowed(allowed bool) Option {
	return func(s *Store) { s.allowDeletion = allowed }
}

// WithClock sets the clock used to stamp published events.
func WithClock(c clock.Clock) Option { return func(s *Store) { s.clock = c } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithMetrics records deleted rows and failures on m.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Store) { s.metrics = m } }

// WithEventBus publishes personal-data and SSL-config changes on bus.
func WithEventBus(bus domain.EventBus) Option { return func(s *Store) { s.bus = bus } }

// Open opens (or creates) the profile database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sqlitedb.Open(path, schema)
	if err != nil {
		return nil, domain.NewSubSystemError(subsystem, "profile.Open", domain.ErrBackendFailure, err.Error())
	}
	s := &Store{
		db:            db,
		allowDeletion: true,
		clock:         clock.WallClock,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.Component(s.logger, subsystem)
	return s, nil
}

// Close waits for in-flight deletions and closes the database.
func (s *Store) Close() error {
	s.wg.Wait()
	return s.db.Close()
}

// AddPersonalDataObserver registers o for autofill change notifications.
func (s *Store) AddPersonalDataObserver(o PersonalDataObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personalData = append(s.personalData, o)
}

// AddConfigObserver registers o for the per-pass certificate change notification.
func (s *Store) AddConfigObserver(o domain.ConfigChangeObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configObservers = append(s.configObservers, o)
}

// HistoryDeletionAllowed reports the administrator policy.
func (s *Store) HistoryDeletionAllowed() bool { return s.allowDeletion }

// run executes one deletion in the background. done is called exactly once,
// after fn and any follow-up notification, whether or not fn failed.
func (s *Store) run(ctx context.Context, backend string, fn func(context.Context) (int64, error), after func(n int64), done domain.DoneFunc) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer done()

		n, err := fn(ctx)
		if err != nil {
			err = domain.NewSubSystemError(subsystem, backend, domain.ErrBackendFailure, err.Error())
			s.logger.Error("profile deletion failed",
				"backend", backend,
				"code", string(domain.ErrorCodeOf(err)),
				"error", err,
			)
			s.metrics.ObserveBackendFailure(backend)
		}
		s.metrics.ObserveDeleted(backend, n)
		s.logger.Debug("profile deletion finished", "backend", backend, "rows", n)
		if after != nil {
			after(n)
		}
	}()
}

// deleteRange runs one statement bounded by [lo, hi) and returns the affected row count.
func (s *Store) deleteRange(ctx context.Context, q sqlExecer, stmt string, lo, hi int64) (int64, error) {
	res, err := q.ExecContext(ctx, stmt, lo, hi)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) notifyPersonalDataChanged(ctx context.Context) {
	s.mu.Lock()
	observers := append([]PersonalDataObserver(nil), s.personalData...)
	s.mu.Unlock()
	for _, o := range observers {
		o.OnPersonalDataChanged()
	}
	if s.bus != nil {
		s.bus.Publish(ctx, domain.NewEvent(domain.EventPersonalDataChanged, "", s.clock.Now(), nil))
	}
}

func (s *Store) notifyConfigChanged(ctx context.Context) {
	s.mu.Lock()
	observers := append([]domain.ConfigChangeObserver(nil), s.configObservers...)
	s.mu.Unlock()
	for _, o := range observers {
		o.OnConfigChanged()
	}
	if s.bus != nil {
		s.bus.Publish(ctx, domain.NewEvent(domain.EventSSLConfigChanged, "", s.clock.Now(), nil))
	}
}
