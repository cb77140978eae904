package profile

import (
	"context"
	"time"

	"browsing-data/internal/adapter/sqlitedb"
	"browsing-data/internal/domain"
)

// RemoveLoginsCreatedBetween deletes saved logins created in range.
func (s *Store) RemoveLoginsCreatedBetween(ctx context.Context, begin, end time.Time, done domain.DoneFunc) {
	s.run(ctx, "passwords", func(ctx context.Context) (int64, error) {
		lo, hi := sqlitedb.Bounds(begin, end)
		return s.deleteRange(ctx, s.db, "DELETE FROM logins WHERE date_created >= ? AND date_created < ?", lo, hi)
	}, nil, done)
}

// DeleteCertsBetween deletes server-bound certificates created in range. Config
// observers are told once per pass, since open connections may still hold a
// deleted credential.
func (s *Store) DeleteCertsBetween(ctx context.Context, begin, end time.Time, done domain.DoneFunc) {
	s.run(ctx, "server_bound_certs", func(ctx context.Context) (int64, error) {
		lo, hi := sqlitedb.Bounds(begin, end)
		return s.deleteRange(ctx, s.db,
			"DELETE FROM server_bound_certs WHERE creation_time >= ? AND creation_time < ?", lo, hi)
	}, func(int64) {
		s.notifyConfigChanged(ctx)
	}, done)
}
