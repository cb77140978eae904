package profile

import (
	"context"
	"fmt"
	"time"

	"browsing-data/internal/adapter/sqlitedb"
	"browsing-data/internal/domain"
)

// ExpireHistoryBetween deletes visits and their keyword search terms in range.
// An unrestricted pass also forgets the origin URLs autofill learned in range.
func (s *Store) ExpireHistoryBetween(ctx context.Context, origins []domain.Origin, begin, end time.Time, done domain.DoneFunc) {
	var forgotOrigins bool
	s.run(ctx, "history", func(ctx context.Context) (int64, error) {
		n, cleared, err := s.expireHistory(ctx, origins, begin, end)
		forgotOrigins = cleared > 0
		return n, err
	}, func(int64) {
		if forgotOrigins {
			s.notifyPersonalDataChanged(ctx)
		}
	}, done)
}

func (s *Store) expireHistory(ctx context.Context, origins []domain.Origin, begin, end time.Time) (visits, autofillOrigins int64, err error) {
	lo, hi := sqlitedb.Bounds(begin, end)

	where := "visit_time >= ? AND visit_time < ?"
	args := []any{lo, hi}
	if len(origins) > 0 {
		where += fmt.Sprintf(" AND origin IN (%s)", sqlitedb.Placeholders(len(origins)))
		for _, o := range origins {
			args = append(args, o.String())
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin history: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM keyword_search_terms WHERE visit_id IN (SELECT id FROM visits WHERE "+where+")", args...); err != nil {
		return 0, 0, fmt.Errorf("delete keyword terms: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM visits WHERE "+where, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("delete visits: %w", err)
	}
	visits, _ = res.RowsAffected()

	if len(origins) == 0 {
		for _, table := range []string{"autofill_profiles", "credit_cards"} {
			n, err := s.deleteRange(ctx, tx,
				"UPDATE "+table+" SET origin = '' WHERE origin != '' AND date_modified >= ? AND date_modified < ?", lo, hi)
			if err != nil {
				return 0, 0, fmt.Errorf("clear %s origins: %w", table, err)
			}
			autofillOrigins += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit history: %w", err)
	}
	return visits, autofillOrigins, nil
}

// RemoveDownloadsBetween deletes download entries started in range.
func (s *Store) RemoveDownloadsBetween(ctx context.Context, begin, end time.Time, done domain.DoneFunc) {
	s.run(ctx, "downloads", func(ctx context.Context) (int64, error) {
		lo, hi := sqlitedb.Bounds(begin, end)
		return s.deleteRange(ctx, s.db, "DELETE FROM downloads WHERE start_time >= ? AND start_time < ?", lo, hi)
	}, nil, done)
}
