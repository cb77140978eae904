package remover

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsing-data/internal/domain"
	"browsing-data/internal/infra/logger"
	"browsing-data/internal/infra/metrics"
	"browsing-data/internal/usecase/eventbus"
)

func TestRemove_WaitsForEveryTask(t *testing.T) {
	b := &fakeBackend{deferred: true}
	p := &fakePartition{deferred: true}
	obs := &countingObserver{}

	r := newTestRemover(fullDeps(b, p), domain.PeriodEverything)
	r.AddObserver(obs)
	r.Remove(context.Background(), domain.DataAll, domain.ScopeAll)

	assert.False(t, isDone(r), "completed while every task is outstanding")

	b.release(3)
	assert.False(t, isDone(r))
	p.release()
	assert.False(t, isDone(r))
	assert.Equal(t, 0, obs.count())

	b.release(-1)
	require.True(t, isDone(r))
	assert.Equal(t, 1, obs.count())

	d, ok := r.Details()
	require.True(t, ok)
	assert.Equal(t, 9, d.TaskCount)
	assert.True(t, d.Skipped.IsEmpty())
}

func TestRemove_SynchronousTasksCompleteDuringDispatch(t *testing.T) {
	b := &fakeBackend{}
	p := &fakePartition{}
	obs := &countingObserver{}

	r := newTestRemover(fullDeps(b, p), domain.PeriodLastDay)
	r.AddObserver(obs)
	r.Remove(context.Background(), domain.DataAll, domain.ScopeAll)

	require.True(t, isDone(r))
	assert.Equal(t, 1, obs.count())
	assert.Equal(t, 9, obs.details.TaskCount)
}

func TestRemove_DispatchesOneTaskPerBackend(t *testing.T) {
	tests := []struct {
		name      string
		types     domain.DataTypeSet
		wantCalls []string
		wantParts int
		wantMask  domain.PartitionMask
	}{
		{
			name:      "history only",
			types:     domain.NewDataTypeSet(domain.DataHistory),
			wantCalls: []string{backendHistory},
		},
		{
			name:      "partition types coalesce",
			types:     domain.NewDataTypeSet(domain.DataCookies, domain.DataLocalStorage, domain.DataIndexedDB),
			wantParts: 1,
			wantMask:  domain.PartitionCookies | domain.PartitionLocalStorage | domain.PartitionIndexedDB,
		},
		{
			name:      "quota managed",
			types:     domain.DataQuotaManaged,
			wantParts: 1,
			wantMask: domain.PartitionAppCache | domain.PartitionFileSystems |
				domain.PartitionIndexedDB | domain.PartitionWebSQL,
		},
		{
			name:      "media licenses go to the partition",
			types:     domain.NewDataTypeSet(domain.DataMediaLicenses, domain.DataContentLicenses),
			wantCalls: []string{backendContentLicenses},
			wantParts: 1,
			wantMask:  domain.PartitionMediaLicenses,
		},
		{
			name:      "mixed",
			types:     domain.NewDataTypeSet(domain.DataCache, domain.DataPasswords, domain.DataFormData, domain.DataDownloads),
			wantCalls: []string{backendDownloads, backendPasswords, backendAutofill, backendCache},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{}
			p := &fakePartition{}
			r := newTestRemover(fullDeps(b, p), domain.PeriodLastHour)
			r.Remove(context.Background(), tt.types, domain.ScopeUnprotectedWeb)

			require.True(t, isDone(r))
			assert.ElementsMatch(t, tt.wantCalls, b.names())
			require.Equal(t, tt.wantParts, p.count())
			if tt.wantParts > 0 {
				assert.Equal(t, tt.wantMask, p.only(t).RemoveMask)
			}

			d, _ := r.Details()
			assert.Equal(t, len(tt.wantCalls)+tt.wantParts, d.TaskCount)
		})
	}
}

func TestRemove_TimeRange(t *testing.T) {
	tests := []struct {
		period     domain.TimePeriod
		wantBegin  time.Time
		persistent bool
	}{
		{domain.PeriodLastHour, testNow.Add(-time.Hour), false},
		{domain.PeriodLastDay, testNow.Add(-24 * time.Hour), false},
		{domain.PeriodLastWeek, testNow.Add(-7 * 24 * time.Hour), false},
		{domain.PeriodFourWeeks, testNow.Add(-28 * 24 * time.Hour), false},
		{domain.PeriodEverything, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.period.String(), func(t *testing.T) {
			b := &fakeBackend{}
			p := &fakePartition{}
			r := newTestRemover(fullDeps(b, p), tt.period)
			r.Remove(context.Background(),
				domain.NewDataTypeSet(domain.DataHistory, domain.DataLocalStorage), domain.ScopeUnprotectedWeb)

			req := p.only(t)
			assert.Equal(t, tt.wantBegin, req.Begin)
			assert.Equal(t, testNow, req.End)
			assert.Equal(t, tt.persistent, req.QuotaMask.Has(domain.QuotaPersistent))
			assert.True(t, req.QuotaMask.Has(domain.QuotaTemporary|domain.QuotaSyncable))

			h, ok := b.call(backendHistory)
			require.True(t, ok)
			assert.Equal(t, tt.wantBegin, h.begin)
			assert.Equal(t, testNow, h.end)

			d, _ := r.Details()
			assert.Equal(t, tt.wantBegin, d.Begin)
			assert.Equal(t, testNow, d.End)
		})
	}
}

func TestNewForRange(t *testing.T) {
	begin := testNow.Add(-90 * time.Minute)
	end := testNow.Add(-30 * time.Minute)

	p := &fakePartition{}
	r := NewForRange(Deps{Partition: p}, begin, end, WithClock(newTestClock()), WithLogger(logger.Discard()))
	r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataCookies), domain.ScopeUnprotectedWeb)

	req := p.only(t)
	assert.Equal(t, begin, req.Begin)
	assert.Equal(t, end, req.End)
	assert.False(t, req.QuotaMask.Has(domain.QuotaPersistent))
	assert.Equal(t, "custom", r.periodLabel())

	t.Run("zero end means now", func(t *testing.T) {
		p := &fakePartition{}
		r := NewForRange(Deps{Partition: p}, time.Time{}, time.Time{}, WithClock(newTestClock()), WithLogger(logger.Discard()))
		r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataCookies), domain.ScopeUnprotectedWeb)

		req := p.only(t)
		assert.True(t, req.Begin.IsZero())
		assert.Equal(t, testNow, req.End)
		assert.True(t, req.QuotaMask.Has(domain.QuotaPersistent))
		assert.Equal(t, "everything", r.periodLabel())
	})
}

func TestRemoveForOrigin(t *testing.T) {
	origin := domain.MustParseOrigin("https://example.com")
	b := &fakeBackend{}
	p := &fakePartition{}

	r := newTestRemover(fullDeps(b, p), domain.PeriodLastHour)
	r.RemoveForOrigin(context.Background(),
		domain.NewDataTypeSet(domain.DataHistory, domain.DataLocalStorage, domain.DataCookies),
		origin, domain.ScopeUnprotectedWeb)

	require.True(t, isDone(r))

	req := p.only(t)
	assert.Equal(t, origin, req.Origin)
	require.NotNil(t, req.Matcher)
	assert.True(t, req.Matcher(origin, nil))
	assert.False(t, req.Matcher(domain.MustParseOrigin("https://other.example"), nil))

	h, ok := b.call(backendHistory)
	require.True(t, ok)
	assert.Equal(t, []domain.Origin{origin}, h.origins)

	d, _ := r.Details()
	assert.Equal(t, origin, d.Origin)
}

func TestRemove_HistoryUnrestrictedWithoutOrigin(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRemover(Deps{History: b}, domain.PeriodLastHour)
	r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataHistory), domain.ScopeUnprotectedWeb)

	h, ok := b.call(backendHistory)
	require.True(t, ok)
	assert.Empty(t, h.origins)
}

func TestRemove_ProtectedScopeSkipsUnprotectedOnlyTypes(t *testing.T) {
	b := &fakeBackend{}
	p := &fakePartition{}

	r := newTestRemover(fullDeps(b, p), domain.PeriodEverything)
	r.Remove(context.Background(), domain.DataSiteData, domain.ScopeProtectedWeb)
	require.True(t, isDone(r))

	assert.NotContains(t, b.names(), backendCerts)
	assert.NotContains(t, b.names(), backendPluginData)

	req := p.only(t)
	assert.False(t, req.RemoveMask.Has(domain.PartitionCookies))
	assert.True(t, req.RemoveMask.Has(domain.PartitionLocalStorage))

	d, _ := r.Details()
	want := domain.NewDataTypeSet(domain.DataCookies, domain.DataServerBoundCerts, domain.DataPluginData)
	assert.Equal(t, want, d.Skipped)
}

func TestRemove_AllScopeIncludesCookies(t *testing.T) {
	b := &fakeBackend{}
	p := &fakePartition{}

	r := newTestRemover(fullDeps(b, p), domain.PeriodEverything)
	r.Remove(context.Background(), domain.DataSiteData, domain.ScopeAll)

	assert.True(t, p.only(t).RemoveMask.Has(domain.PartitionCookies))
	assert.Contains(t, b.names(), backendCerts)
	assert.Contains(t, b.names(), backendPluginData)
}

func TestRemove_PartitionMatcherHonoursScope(t *testing.T) {
	app := domain.MustParseOrigin("https://app.example")
	web := domain.MustParseOrigin("https://web.example")
	policy := fakePolicy{app: true}

	tests := []struct {
		scope   domain.OriginScope
		wantApp bool
		wantWeb bool
	}{
		{domain.ScopeUnprotectedWeb, false, true},
		{domain.ScopeProtectedWeb, true, false},
		{domain.ScopeAll, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.scope.String(), func(t *testing.T) {
			p := &fakePartition{}
			deps := Deps{Partition: p, Policy: policy}
			r := newTestRemover(deps, domain.PeriodEverything)
			r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataLocalStorage), tt.scope)

			m := p.only(t).Matcher
			assert.Equal(t, tt.wantApp, m(app, nil), "default policy")
			assert.Equal(t, tt.wantWeb, m(web, nil))
			assert.False(t, m(domain.MustParseOrigin("chrome-extension://abcdef"), nil))
		})
	}
}

func TestRemove_HistoryPolicyDenied(t *testing.T) {
	b := &fakeBackend{denyHistory: true}
	p := &fakePartition{}
	audit := &fakeAudit{}

	r := newTestRemover(fullDeps(b, p), domain.PeriodEverything, WithAudit(audit), WithRequestID("req-1"))
	r.Remove(context.Background(), domain.DataAll, domain.ScopeAll)
	require.True(t, isDone(r))

	assert.NotContains(t, b.names(), backendHistory)
	assert.NotContains(t, b.names(), backendDownloads)
	assert.Contains(t, b.names(), backendCache)
	assert.Equal(t, 1, b.policyChecks)

	d, _ := r.Details()
	assert.Equal(t, domain.NewDataTypeSet(domain.DataHistory, domain.DataDownloads), d.Skipped)
	assert.Equal(t, 7, d.TaskCount)

	audit.mu.Lock()
	defer audit.mu.Unlock()
	assert.Equal(t, []deniedEntry{
		{requestID: "req-1", dt: domain.DataHistory},
		{requestID: "req-1", dt: domain.DataDownloads},
	}, audit.denied)
	require.Len(t, audit.removals, 1)
}

func TestRemove_HistoryPolicyDeniedWithDebugChecksPanics(t *testing.T) {
	b := &fakeBackend{denyHistory: true}
	r := newTestRemover(Deps{History: b}, domain.PeriodEverything, WithDebugChecks(true))

	assert.Panics(t, func() {
		r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataHistory), domain.ScopeUnprotectedWeb)
	})
	assert.Empty(t, b.names())
}

func TestRemove_PolicyNotConsultedWithoutHistoryTypes(t *testing.T) {
	b := &fakeBackend{denyHistory: true}
	r := newTestRemover(fullDeps(b, &fakePartition{}), domain.PeriodEverything, WithDebugChecks(true))

	assert.NotPanics(t, func() {
		r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataCache), domain.ScopeUnprotectedWeb)
	})
	assert.Zero(t, b.policyChecks)
}

func TestRemove_MissingBackendsAreSkipped(t *testing.T) {
	obs := &countingObserver{}
	r := newTestRemover(Deps{}, domain.PeriodEverything)
	r.AddObserver(obs)
	r.Remove(context.Background(), domain.DataAll, domain.ScopeAll)

	require.True(t, isDone(r))
	assert.Equal(t, 1, obs.count())
	assert.Equal(t, 0, obs.details.TaskCount)
	assert.Equal(t, domain.DataAll, obs.details.Skipped)
}

func TestRemove_DoubleDoneIsIgnored(t *testing.T) {
	slow := &fakeBackend{deferred: true}
	deps := Deps{
		History: slow,
		Cache:   doubleDoneCache{},
	}
	obs := &countingObserver{}

	r := newTestRemover(deps, domain.PeriodEverything)
	r.AddObserver(obs)
	r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataHistory, domain.DataCache), domain.ScopeUnprotectedWeb)

	assert.False(t, isDone(r), "a repeated signal retired another task")

	slow.release(-1)
	require.True(t, isDone(r))
	assert.Equal(t, 1, obs.count())
}

type doubleDoneCache struct{}

func (doubleDoneCache) ClearCache(_ context.Context, _, _ time.Time, done domain.DoneFunc) {
	done()
	done()
}

func TestRemove_CompletionFromOtherGoroutines(t *testing.T) {
	b := &fakeBackend{deferred: true}
	p := &fakePartition{deferred: true}
	obs := &countingObserver{}

	r := newTestRemover(fullDeps(b, p), domain.PeriodEverything)
	r.AddObserver(obs)
	r.Remove(context.Background(), domain.DataAll, domain.ScopeAll)

	b.mu.Lock()
	pending := append([]domain.DoneFunc(nil), b.pending...)
	b.pending = nil
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, done := range pending {
		wg.Add(1)
		go func() {
			defer wg.Done()
			done()
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.release()
	}()
	wg.Wait()

	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("removal never completed")
	}
	assert.Equal(t, 1, obs.count())
}

func TestRemove_CancelledContextStillRunsToCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := &fakeBackend{}
	r := newTestRemover(Deps{Cache: b}, domain.PeriodEverything)
	r.Remove(ctx, domain.NewDataTypeSet(domain.DataCache), domain.ScopeUnprotectedWeb)

	require.True(t, isDone(r))
	c, ok := b.call(backendCache)
	require.True(t, ok)
	assert.NoError(t, c.ctxErr)
}

func TestRemove_MisusePanics(t *testing.T) {
	one := domain.NewDataTypeSet(domain.DataCache)
	origin := domain.MustParseOrigin("https://example.com")

	t.Run("empty types", func(t *testing.T) {
		r := newTestRemover(Deps{}, domain.PeriodEverything)
		assert.Panics(t, func() { r.Remove(context.Background(), 0, domain.ScopeAll) })
	})

	t.Run("remove twice", func(t *testing.T) {
		r := newTestRemover(Deps{}, domain.PeriodEverything)
		r.Remove(context.Background(), one, domain.ScopeAll)
		assert.Panics(t, func() { r.Remove(context.Background(), one, domain.ScopeAll) })
	})

	t.Run("remove for origin after remove", func(t *testing.T) {
		r := newTestRemover(Deps{Cache: &fakeBackend{deferred: true}}, domain.PeriodEverything)
		r.Remove(context.Background(), one, domain.ScopeUnprotectedWeb)
		assert.Panics(t, func() {
			r.RemoveForOrigin(context.Background(), one, origin, domain.ScopeUnprotectedWeb)
		})
	})

	t.Run("zero origin", func(t *testing.T) {
		r := newTestRemover(Deps{}, domain.PeriodEverything)
		assert.Panics(t, func() {
			r.RemoveForOrigin(context.Background(), one, "", domain.ScopeUnprotectedWeb)
		})
	})

	for _, scope := range []domain.OriginScope{domain.ScopeProtectedWeb, domain.ScopeAll} {
		t.Run("single origin with scope "+scope.String(), func(t *testing.T) {
			r := newTestRemover(Deps{}, domain.PeriodEverything)
			assert.Panics(t, func() { r.RemoveForOrigin(context.Background(), one, origin, scope) })
		})
	}

	t.Run("invalid period", func(t *testing.T) {
		assert.Panics(t, func() { New(Deps{}, domain.TimePeriod(42)) })
	})

	t.Run("range end before begin", func(t *testing.T) {
		assert.Panics(t, func() { NewForRange(Deps{}, testNow, testNow.Add(-time.Second)) })
	})

	t.Run("partition override after remove", func(t *testing.T) {
		r := newTestRemover(Deps{}, domain.PeriodEverything)
		r.Remove(context.Background(), one, domain.ScopeAll)
		assert.Panics(t, func() { r.OverrideStoragePartitionForTesting(&fakePartition{}) })
	})
}

func TestOverrideStoragePartitionForTesting(t *testing.T) {
	original := &fakePartition{}
	override := &fakePartition{}

	r := newTestRemover(Deps{Partition: original}, domain.PeriodEverything)
	r.OverrideStoragePartitionForTesting(override)
	r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataWebSQL), domain.ScopeUnprotectedWeb)

	assert.Zero(t, original.count())
	assert.Equal(t, domain.PartitionWebSQL, override.only(t).RemoveMask)
}

func TestObservers(t *testing.T) {
	t.Run("removed observer is not notified", func(t *testing.T) {
		kept := &countingObserver{}
		removed := &countingObserver{}

		r := newTestRemover(Deps{}, domain.PeriodEverything)
		r.AddObserver(kept)
		r.AddObserver(removed)
		r.RemoveObserver(removed)
		r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataCache), domain.ScopeAll)

		assert.Equal(t, 1, kept.count())
		assert.Equal(t, 0, removed.count())
	})

	t.Run("func observer", func(t *testing.T) {
		var got []domain.RemovalDetails
		f := domain.RemovalObserverFunc(func(d domain.RemovalDetails) { got = append(got, d) })

		r := newTestRemover(Deps{}, domain.PeriodEverything, WithRequestID("fn"))
		r.AddObserver(f)
		assert.NotPanics(t, func() { r.RemoveObserver(f) })
		r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataCache), domain.ScopeAll)

		require.Len(t, got, 1, "func observers stay registered")
		assert.Equal(t, "fn", got[0].RequestID)
	})

	t.Run("panicking observer does not block others", func(t *testing.T) {
		after := &countingObserver{}
		r := newTestRemover(Deps{}, domain.PeriodEverything)
		r.AddObserver(domain.RemovalObserverFunc(func(domain.RemovalDetails) { panic("boom") }))
		r.AddObserver(after)

		assert.NotPanics(t, func() {
			r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataCache), domain.ScopeAll)
		})
		assert.Equal(t, 1, after.count())
		assert.True(t, isDone(r))
	})

	t.Run("observer added after completion is ignored", func(t *testing.T) {
		late := &countingObserver{}
		r := newTestRemover(Deps{}, domain.PeriodEverything)
		r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataCache), domain.ScopeAll)
		r.AddObserver(late)
		assert.Equal(t, 0, late.count())
	})
}

func TestRemove_InertAfterCompletion(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRemover(fullDeps(b, &fakePartition{}), domain.PeriodEverything,
		WithAudit(&fakeAudit{}), WithEventBus(eventbus.New(logger.Discard())))
	r.AddObserver(&countingObserver{})
	r.Remove(context.Background(), domain.DataAll, domain.ScopeAll)
	require.True(t, isDone(r))

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, Deps{}, r.deps)
	assert.Nil(t, r.observers)
	assert.Nil(t, r.bus)
	assert.Nil(t, r.audit)
	assert.Nil(t, r.ctx)
}

func TestRemove_DetailsTiming(t *testing.T) {
	clk := newTestClock()
	b := &fakeBackend{deferred: true}
	r := New(Deps{Cache: b}, domain.PeriodLastHour, WithClock(clk), WithLogger(logger.Discard()))
	r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataCache), domain.ScopeUnprotectedWeb)

	_, done := r.Details()
	assert.False(t, done)

	clk.Advance(1500 * time.Millisecond)
	b.release(-1)

	d, done := r.Details()
	require.True(t, done)
	assert.Equal(t, testNow, d.StartedAt)
	assert.Equal(t, testNow.Add(1500*time.Millisecond), d.FinishedAt)
	assert.Equal(t, 1500*time.Millisecond, d.Duration())
	assert.Equal(t, testNow.Add(-time.Hour), d.Begin, "range fixed when Remove was called")
}

func TestWait(t *testing.T) {
	b := &fakeBackend{deferred: true}
	r := newTestRemover(Deps{Cache: b}, domain.PeriodEverything)
	r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataCache), domain.ScopeUnprotectedWeb)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go b.release(-1)
	d, err := r.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, d.TaskCount)
}

func TestRequestID(t *testing.T) {
	a := newTestRemover(Deps{}, domain.PeriodEverything)
	b := newTestRemover(Deps{}, domain.PeriodEverything)
	assert.Len(t, a.RequestID(), 26)
	assert.NotEmpty(t, b.RequestID())

	c := newTestRemover(Deps{}, domain.PeriodEverything, WithRequestID("fixed"))
	assert.Equal(t, "fixed", c.RequestID())
}

func TestRemove_PublishesEvents(t *testing.T) {
	bus := eventbus.New(logger.Discard())

	var mu sync.Mutex
	var events []domain.Event
	bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	b := &fakeBackend{}
	r := newTestRemover(Deps{Cache: b}, domain.PeriodLastWeek, WithEventBus(bus), WithRequestID("evt"))
	r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataCache, domain.DataHistory), domain.ScopeUnprotectedWeb)
	require.True(t, isDone(r))
	bus.Close()

	mu.Lock()
	defer mu.Unlock()

	byType := map[domain.EventType]domain.Event{}
	for _, e := range events {
		assert.Equal(t, "evt", e.RequestID)
		byType[e.Type] = e
	}
	require.Contains(t, byType, domain.EventRemovalStarted)
	require.Contains(t, byType, domain.EventCategorySkipped)
	require.Contains(t, byType, domain.EventBrowsingDataRemoved)

	var skipped map[string]string
	require.NoError(t, json.Unmarshal(byType[domain.EventCategorySkipped].Payload, &skipped))
	assert.Equal(t, map[string]string{"data_type": "history", "reason": "no_backend"}, skipped)

	var d domain.RemovalDetails
	require.NoError(t, json.Unmarshal(byType[domain.EventBrowsingDataRemoved].Payload, &d))
	assert.Equal(t, "evt", d.RequestID)
	assert.Equal(t, 1, d.TaskCount)
	assert.Equal(t, domain.NewDataTypeSet(domain.DataHistory), d.Skipped)
}

func TestRemove_AuditsCompletion(t *testing.T) {
	audit := &fakeAudit{}
	r := newTestRemover(Deps{Cache: &fakeBackend{}}, domain.PeriodEverything,
		WithAudit(audit), WithActor("scheduler:nightly"))
	r.Remove(context.Background(), domain.NewDataTypeSet(domain.DataCache), domain.ScopeUnprotectedWeb)

	audit.mu.Lock()
	defer audit.mu.Unlock()
	require.Len(t, audit.removals, 1)
	assert.Equal(t, []string{"scheduler:nightly"}, audit.actors)
	assert.Equal(t, r.RequestID(), audit.removals[0].RequestID)
	assert.Empty(t, audit.denied)
}

func TestRemove_RecordsMetrics(t *testing.T) {
	m := metrics.New(false)
	b := &fakeBackend{}
	p := &fakePartition{}

	r := newTestRemover(Deps{Partition: p, Cache: b}, domain.PeriodLastHour, WithMetrics(m))
	r.Remove(context.Background(),
		domain.NewDataTypeSet(domain.DataCache, domain.DataCookies, domain.DataLocalStorage, domain.DataPasswords),
		domain.ScopeUnprotectedWeb)
	require.True(t, isDone(r))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemovalsStarted.WithLabelValues("last_hour", "unprotected_web")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemovalsCompleted.WithLabelValues("last_hour", "unprotected_web")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RemovalsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CategoryDispatched.WithLabelValues(backendPartition)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CategoryDispatched.WithLabelValues(backendCache)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CategorySkipped.WithLabelValues("passwords", skipNoBackend)))
}
