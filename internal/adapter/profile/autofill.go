package profile

import (
	"context"
	"fmt"
	"time"

	"browsing-data/internal/adapter/sqlitedb"
	"browsing-data/internal/domain"
)

// RemoveFormDataBetween deletes form entries created in range together with
// addresses and payment cards modified in range, then tells personal-data
// observers to reload.
func (s *Store) RemoveFormDataBetween(ctx context.Context, begin, end time.Time, done domain.DoneFunc) {
	s.run(ctx, "autofill", func(ctx context.Context) (int64, error) {
		return s.removeFormData(ctx, begin, end)
	}, func(int64) {
		s.notifyPersonalDataChanged(ctx)
	}, done)
}

func (s *Store) removeFormData(ctx context.Context, begin, end time.Time) (int64, error) {
	lo, hi := sqlitedb.Bounds(begin, end)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin autofill: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		"DELETE FROM autofill WHERE date_created >= ? AND date_created < ?",
		"DELETE FROM autofill_profiles WHERE date_modified >= ? AND date_modified < ?",
		"DELETE FROM credit_cards WHERE date_modified >= ? AND date_modified < ?",
	}
	var total int64
	for _, stmt := range stmts {
		n, err := s.deleteRange(ctx, tx, stmt, lo, hi)
		if err != nil {
			return 0, err
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit autofill: %w", err)
	}
	return total, nil
}
