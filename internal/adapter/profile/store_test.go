package profile

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsing-data/internal/adapter/sqlitedb"
	"browsing-data/internal/domain"
	"browsing-data/internal/infra/logger"
	"browsing-data/internal/infra/metrics"
	"browsing-data/internal/usecase/eventbus"
)

var (
	now    = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	recent = now.Add(-10 * time.Minute)
	old    = now.Add(-48 * time.Hour)
	begin  = now.Add(-time.Hour)

	siteA = domain.MustParseOrigin("https://a.example")
	siteB = domain.MustParseOrigin("https://b.example")
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(logger.Discard()), WithClock(testclock.NewClock(now))}, opts...)
	s, err := Open(filepath.Join(t.TempDir(), "profile.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func exec(t *testing.T, s *Store, q string, args ...any) {
	t.Helper()
	_, err := s.db.Exec(q, args...)
	require.NoError(t, err)
}

func count(t *testing.T, s *Store, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow(query, args...).Scan(&n))
	return n
}

// wait calls start with a completion signal and blocks until it fires.
func wait(t *testing.T, start func(domain.DoneFunc)) int32 {
	t.Helper()
	var calls atomic.Int32
	ch := make(chan struct{})
	start(func() {
		if calls.Add(1) == 1 {
			close(ch)
		}
	})
	select {
	case <-ch:
	case <-time.After(10 * time.Second):
		t.Fatal("completion never signalled")
	}
	return calls.Load()
}

func seedHistory(t *testing.T, s *Store) {
	t.Helper()
	for _, o := range []domain.Origin{siteA, siteB} {
		for _, at := range []time.Time{recent, old} {
			exec(t, s, "INSERT INTO visits (url, origin, visit_time) VALUES (?, ?, ?)", o.String()+"/page", o, sqlitedb.Micros(at))
			exec(t, s, "INSERT INTO keyword_search_terms (visit_id, term) VALUES (last_insert_rowid(), 'term')")
		}
	}
	exec(t, s, "INSERT INTO autofill_profiles (guid, origin, date_modified) VALUES ('p-recent', ?, ?)", siteA, sqlitedb.Micros(recent))
	exec(t, s, "INSERT INTO autofill_profiles (guid, origin, date_modified) VALUES ('p-old', ?, ?)", siteA, sqlitedb.Micros(old))
	exec(t, s, "INSERT INTO credit_cards (guid, origin, date_modified) VALUES ('c-recent', ?, ?)", siteB, sqlitedb.Micros(recent))
}

type personalDataCounter struct{ n atomic.Int32 }

func (c *personalDataCounter) OnPersonalDataChanged() { c.n.Add(1) }

type configCounter struct{ n atomic.Int32 }

func (c *configCounter) OnConfigChanged() { c.n.Add(1) }

func TestExpireHistoryBetween(t *testing.T) {
	s := newTestStore(t)
	seedHistory(t, s)
	pd := &personalDataCounter{}
	s.AddPersonalDataObserver(pd)

	calls := wait(t, func(done domain.DoneFunc) {
		s.ExpireHistoryBetween(context.Background(), nil, begin, now, done)
	})
	assert.Equal(t, int32(1), calls)

	assert.Equal(t, 2, count(t, s, "SELECT COUNT(*) FROM visits"))
	assert.Equal(t, 0, count(t, s, "SELECT COUNT(*) FROM visits WHERE visit_time >= ?", sqlitedb.Micros(begin)))
	assert.Equal(t, 2, count(t, s, "SELECT COUNT(*) FROM keyword_search_terms"), "terms of deleted visits removed")

	assert.Equal(t, "", originOf(t, s, "autofill_profiles", "p-recent"))
	assert.Equal(t, siteA.String(), originOf(t, s, "autofill_profiles", "p-old"))
	assert.Equal(t, "", originOf(t, s, "credit_cards", "c-recent"))
	assert.Equal(t, 3, count(t, s, "SELECT COUNT(*) FROM autofill_profiles")+count(t, s, "SELECT COUNT(*) FROM credit_cards"),
		"history only forgets origins, it keeps the entries")
	assert.Equal(t, int32(1), pd.n.Load())
}

func TestExpireHistoryBetween_ForOrigin(t *testing.T) {
	s := newTestStore(t)
	seedHistory(t, s)
	pd := &personalDataCounter{}
	s.AddPersonalDataObserver(pd)

	wait(t, func(done domain.DoneFunc) {
		s.ExpireHistoryBetween(context.Background(), []domain.Origin{siteA}, time.Time{}, now, done)
	})

	assert.Equal(t, 0, count(t, s, "SELECT COUNT(*) FROM visits WHERE origin = ?", siteA))
	assert.Equal(t, 2, count(t, s, "SELECT COUNT(*) FROM visits WHERE origin = ?", siteB))
	assert.Equal(t, siteA.String(), originOf(t, s, "autofill_profiles", "p-recent"), "origin-restricted pass keeps autofill origins")
	assert.Zero(t, pd.n.Load())
}

func originOf(t *testing.T, s *Store, table, guid string) string {
	t.Helper()
	var o string
	require.NoError(t, s.db.QueryRow("SELECT origin FROM "+table+" WHERE guid = ?", guid).Scan(&o))
	return o
}

func TestHistoryDeletionAllowed(t *testing.T) {
	assert.True(t, newTestStore(t).HistoryDeletionAllowed())
	assert.False(t, newTestStore(t, WithHistoryDeletionAllowed(false)).HistoryDeletionAllowed())
}

func TestRemoveDownloadsBetween(t *testing.T) {
	s := newTestStore(t)
	exec(t, s, "INSERT INTO downloads (url, start_time) VALUES ('https://a.example/f.zip', ?)", sqlitedb.Micros(recent))
	exec(t, s, "INSERT INTO downloads (url, start_time) VALUES ('https://a.example/g.zip', ?)", sqlitedb.Micros(old))

	wait(t, func(done domain.DoneFunc) {
		s.RemoveDownloadsBetween(context.Background(), begin, now, done)
	})
	assert.Equal(t, 1, count(t, s, "SELECT COUNT(*) FROM downloads"))

	wait(t, func(done domain.DoneFunc) {
		s.RemoveDownloadsBetween(context.Background(), time.Time{}, now, done)
	})
	assert.Equal(t, 0, count(t, s, "SELECT COUNT(*) FROM downloads"))
}

func TestRemoveFormDataBetween(t *testing.T) {
	bus := eventbus.New(logger.Discard())
	var mu sync.Mutex
	var events []domain.Event
	bus.Subscribe(domain.EventPersonalDataChanged, func(_ context.Context, e domain.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	s := newTestStore(t, WithEventBus(bus))
	pd := &personalDataCounter{}
	s.AddPersonalDataObserver(pd)

	exec(t, s, "INSERT INTO autofill (name, value, date_created, date_last_used) VALUES ('email', 'x@a.example', ?, ?)",
		sqlitedb.Micros(recent), sqlitedb.Micros(recent))
	exec(t, s, "INSERT INTO autofill (name, value, date_created, date_last_used) VALUES ('email', 'y@a.example', ?, ?)",
		sqlitedb.Micros(old), sqlitedb.Micros(recent))
	seedHistory(t, s)

	wait(t, func(done domain.DoneFunc) {
		s.RemoveFormDataBetween(context.Background(), begin, now, done)
	})
	bus.Close()

	assert.Equal(t, 1, count(t, s, "SELECT COUNT(*) FROM autofill"))
	assert.Equal(t, 1, count(t, s, "SELECT COUNT(*) FROM autofill_profiles"))
	assert.Equal(t, 0, count(t, s, "SELECT COUNT(*) FROM credit_cards"))
	assert.Equal(t, int32(1), pd.n.Load())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, now, events[0].Timestamp)
}

func TestRemoveLoginsCreatedBetween(t *testing.T) {
	m := metrics.New(false)
	s := newTestStore(t, WithMetrics(m))
	exec(t, s, "INSERT INTO logins (origin_url, username, date_created) VALUES (?, 'alice', ?)", siteA, sqlitedb.Micros(recent))
	exec(t, s, "INSERT INTO logins (origin_url, username, date_created) VALUES (?, 'bob', ?)", siteB, sqlitedb.Micros(recent))
	exec(t, s, "INSERT INTO logins (origin_url, username, date_created) VALUES (?, 'carol', ?)", siteB, sqlitedb.Micros(old))

	wait(t, func(done domain.DoneFunc) {
		s.RemoveLoginsCreatedBetween(context.Background(), begin, now, done)
	})
	s.wg.Wait()

	assert.Equal(t, 1, count(t, s, "SELECT COUNT(*) FROM logins"))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ItemsDeleted.WithLabelValues("passwords")))
}

func TestDeleteCertsBetween_NotifiesOncePerPass(t *testing.T) {
	s := newTestStore(t)
	cc := &configCounter{}
	s.AddConfigObserver(cc)
	exec(t, s, "INSERT INTO server_bound_certs (origin, creation_time) VALUES (?, ?)", siteA, sqlitedb.Micros(recent))
	exec(t, s, "INSERT INTO server_bound_certs (origin, creation_time) VALUES (?, ?)", siteB, sqlitedb.Micros(recent))

	wait(t, func(done domain.DoneFunc) {
		s.DeleteCertsBetween(context.Background(), begin, now, done)
	})
	assert.Equal(t, 0, count(t, s, "SELECT COUNT(*) FROM server_bound_certs"))
	assert.Equal(t, int32(1), cc.n.Load())

	wait(t, func(done domain.DoneFunc) {
		s.DeleteCertsBetween(context.Background(), begin, now, done)
	})
	assert.Equal(t, int32(2), cc.n.Load(), "an empty pass still signals")
}

func TestDeletionFailureStillSignals(t *testing.T) {
	m := metrics.New(false)
	s := newTestStore(t, WithMetrics(m))
	exec(t, s, "DROP TABLE logins")

	calls := wait(t, func(done domain.DoneFunc) {
		s.RemoveLoginsCreatedBetween(context.Background(), begin, now, done)
	})
	s.wg.Wait()

	assert.Equal(t, int32(1), calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendFailures.WithLabelValues("passwords")))
}
