// Package remover orchestrates one "clear browsing data" request: it fans the
// request out to one deletion task per backend, waits for every task's
// completion signal, and then notifies observers exactly once.
package remover

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"browsing-data/internal/domain"
	"browsing-data/internal/infra/metrics"
	"browsing-data/internal/infra/tracer"
)

// Backend labels used in logs, traces and metrics.
const (
	backendPartition       = "partition"
	backendHistory         = "history"
	backendDownloads       = "downloads"
	backendAutofill        = "autofill"
	backendPasswords       = "passwords"
	backendCerts           = "server_bound_certs"
	backendCache           = "cache"
	backendPluginData      = "plugin_data"
	backendContentLicenses = "content_licenses"
)

// Reasons a requested data type is not dispatched.
const (
	skipNoBackend = "no_backend"
	skipScope     = "scope"
	skipPolicy    = "policy"
)

// partitionTypes maps data types owned by the storage partition to their mask bit.
var partitionTypes = []struct {
	dt   domain.DataType
	mask domain.PartitionMask
}{
	{domain.DataCookies, domain.PartitionCookies},
	{domain.DataLocalStorage, domain.PartitionLocalStorage},
	{domain.DataIndexedDB, domain.PartitionIndexedDB},
	{domain.DataWebSQL, domain.PartitionWebSQL},
	{domain.DataAppCache, domain.PartitionAppCache},
	{domain.DataFileSystems, domain.PartitionFileSystems},
	{domain.DataMediaLicenses, domain.PartitionMediaLicenses},
}

// Deps are the deletion backends a Remover fans out to. A nil backend means the
// profile has no such store; its data types are skipped.
type Deps struct {
	Partition       domain.StoragePartition
	History         domain.HistoryBackend
	Downloads       domain.DownloadBackend
	Autofill        domain.AutofillBackend
	Passwords       domain.PasswordBackend
	Certs           domain.CertBackend
	Cache           domain.CacheBackend
	PluginData      domain.PluginDataBackend
	ContentLicenses domain.ContentLicenseBackend
	// Policy classifies protected origins for the origin matcher.
	Policy domain.OriginPolicy
}

// AuditRecorder persists removal outcomes. *security.FileAuditLogger implements it.
type AuditRecorder interface {
	LogRemoval(ctx context.Context, actor string, d domain.RemovalDetails) error
	LogDenied(ctx context.Context, requestID string, dt domain.DataType, reason string) error
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateDone
)

// Remover runs exactly one removal request. Create one per request, call
// Remove or RemoveForOrigin once, then wait on Done. After completion every
// backend and observer reference is dropped and the Remover is inert.
type Remover struct {
	mu        sync.Mutex
	state     state
	deps      Deps
	observers []domain.RemovalObserver

	period    domain.TimePeriod
	fixed     *domain.TimeRange
	requestID string
	actor     string

	clock       clock.Clock
	logger      *slog.Logger
	metrics     *metrics.Metrics
	bus         domain.EventBus
	audit       AuditRecorder
	debugChecks bool

	// finished runs after every completion side effect, just before done closes.
	finished func()

	counter taskCounter
	details domain.RemovalDetails
	span    trace.Span
	ctx     context.Context
	done    chan struct{}
}

// Option configures a Remover.
type Option func(*Remover)

// WithClock sets the clock used to resolve the time range and stamp details.
func WithClock(c clock.Clock) Option { return func(r *Remover) { r.clock = c } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(r *Remover) { r.logger = l } }

// WithMetrics records dispatches and completions on m.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Remover) { r.metrics = m } }

// WithEventBus publishes the completion notification on bus.
func WithEventBus(bus domain.EventBus) Option { return func(r *Remover) { r.bus = bus } }

// WithAudit records completions and policy denials.
func WithAudit(a AuditRecorder) Option { return func(r *Remover) { r.audit = a } }

// WithRequestID overrides the generated request ID.
func WithRequestID(id string) Option { return func(r *Remover) { r.requestID = id } }

// WithActor names who asked for the removal in the audit trail.
func WithActor(actor string) Option { return func(r *Remover) { r.actor = actor } }

// WithDebugChecks makes policy-denied history deletion panic instead of being skipped.
func WithDebugChecks(on bool) Option { return func(r *Remover) { r.debugChecks = on } }

// New returns a Remover for a named period. The absolute range is resolved when
// Remove is called.
func New(deps Deps, period domain.TimePeriod, opts ...Option) *Remover {
	if !period.Valid() {
		panic(fmt.Sprintf("remover: unknown time period %d", period))
	}
	return newRemover(deps, period, nil, opts)
}

// NewForRange returns a Remover for an explicit range. A zero begin deletes
// everything; a zero end means "now" at the time Remove is called.
func NewForRange(deps Deps, begin, end time.Time, opts ...Option) *Remover {
	if !end.IsZero() && end.Before(begin) {
		panic(fmt.Sprintf("remover: range end %s before begin %s", end, begin))
	}
	return newRemover(deps, domain.PeriodEverything, &domain.TimeRange{Begin: begin, End: end}, opts)
}

func newRemover(deps Deps, period domain.TimePeriod, fixed *domain.TimeRange, opts []Option) *Remover {
	r := &Remover{
		deps:   deps,
		period: period,
		fixed:  fixed,
		actor:  "user",
		clock:  clock.WallClock,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.requestID == "" {
		r.requestID = NewRequestID(r.clock.Now())
	}
	r.logger = r.logger.With("component", "remover", "request_id", r.requestID)
	return r
}

// NewRequestID returns a ULID for a removal started at t. Pass it with
// WithRequestID to know a request's ID before it is dispatched.
func NewRequestID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// RequestID identifies this removal in logs, events and the audit trail.
func (r *Remover) RequestID() string { return r.requestID }

// AddObserver registers o for the completion notification. Observers added
// after completion are ignored.
func (r *Remover) AddObserver(o domain.RemovalObserver) {
	if o == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateDone {
		return
	}
	r.observers = append(r.observers, o)
}

// RemoveObserver unregisters o. Observers of non-comparable types (such as
// RemovalObserverFunc) cannot be matched and stay registered.
func (r *Remover) RemoveObserver(o domain.RemovalObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.observers {
		if sameObserver(existing, o) {
			r.observers = append(r.observers[:i:i], r.observers[i+1:]...)
			return
		}
	}
}

func sameObserver(a, b domain.RemovalObserver) bool {
	ta := reflect.TypeOf(a)
	if ta == nil || ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

// OverrideStoragePartitionForTesting replaces the storage partition backend.
// Must be called before Remove.
func (r *Remover) OverrideStoragePartitionForTesting(p domain.StoragePartition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateIdle {
		panic("remover: storage partition overridden after Remove")
	}
	r.deps.Partition = p
}

// Done is closed once the completion notification has been delivered.
func (r *Remover) Done() <-chan struct{} { return r.done }

// Wait blocks until the removal completes or ctx ends.
func (r *Remover) Wait(ctx context.Context) (domain.RemovalDetails, error) {
	select {
	case <-r.done:
		d, _ := r.Details()
		return d, nil
	case <-ctx.Done():
		return domain.RemovalDetails{}, ctx.Err()
	}
}

// Details returns the completion notification and whether the removal is done.
func (r *Remover) Details() (domain.RemovalDetails, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.details, r.state == stateDone
}

// Remove deletes types for every origin in scope.
//
// It panics if types is empty or if Remove/RemoveForOrigin was already called.
// Completion is signalled through observers, Done and Wait; there is no error
// return because backend failures are not part of the contract.
func (r *Remover) Remove(ctx context.Context, types domain.DataTypeSet, scope domain.OriginScope) {
	r.start(ctx, types, scope, "")
}

// RemoveForOrigin restricts quota-managed storage and history deletion to
// origin. Scope must be exactly ScopeUnprotectedWeb; protected origins cannot be
// targeted individually and violating that panics.
func (r *Remover) RemoveForOrigin(ctx context.Context, types domain.DataTypeSet, origin domain.Origin, scope domain.OriginScope) {
	if origin.IsZero() {
		panic("remover: RemoveForOrigin called with an empty origin")
	}
	if scope != domain.ScopeUnprotectedWeb {
		panic(fmt.Sprintf("remover: single-origin removal requires scope %s, got %s",
			domain.ScopeUnprotectedWeb, scope))
	}
	r.start(ctx, types, scope, origin)
}

func (r *Remover) start(ctx context.Context, types domain.DataTypeSet, scope domain.OriginScope, origin domain.Origin) {
	if types.IsEmpty() {
		panic("remover: Remove called with an empty data type set")
	}

	r.mu.Lock()
	if r.state != stateIdle {
		r.mu.Unlock()
		panic("remover: Remove called twice on the same Remover")
	}
	r.state = stateRunning

	now := r.clock.Now()
	tr := r.resolveRange(now)
	r.details = domain.RemovalDetails{
		RequestID: r.requestID,
		Begin:     tr.Begin,
		End:       tr.End,
		DataTypes: types,
		Scope:     scope,
		Origin:    origin,
		StartedAt: now,
	}
	started := r.details
	deps := r.deps
	r.mu.Unlock()

	// Once started the request always runs to completion.
	ctx = context.WithoutCancel(ctx)
	ctx, r.span = tracer.StartSpan(ctx, "remover.Remove")
	r.span.SetAttributes(
		tracer.StringAttr("removal.request_id", r.requestID),
		tracer.StringAttr("removal.period", r.periodLabel()),
		tracer.StringAttr("removal.types", types.String()),
		tracer.StringAttr("removal.scope", scope.String()),
		tracer.StringAttr("removal.origin", origin.String()),
		tracer.BoolAttr("removal.everything", tr.IsUnbounded()),
	)
	r.ctx = ctx

	r.logger.Info("browsing data removal started",
		"period", r.periodLabel(),
		"types", types.String(),
		"scope", scope.String(),
		"origin", origin.String(),
	)
	r.metrics.ObserveRemovalStarted(r.periodLabel(), scope.String())
	if r.bus != nil {
		r.bus.Publish(ctx, domain.NewEvent(domain.EventRemovalStarted, r.requestID, now, started))
	}

	r.counter.begin()
	r.dispatchAll(ctx, deps, tr, types, scope, origin)
	if r.counter.release() {
		r.complete()
	}
}

func (r *Remover) resolveRange(now time.Time) domain.TimeRange {
	if r.fixed != nil {
		tr := *r.fixed
		if tr.End.IsZero() {
			tr.End = now
		}
		return tr
	}
	return ResolveTimeRange(r.period, now)
}

func (r *Remover) periodLabel() string {
	if r.fixed != nil && !r.fixed.IsUnbounded() {
		return "custom"
	}
	return r.period.String()
}

// dispatchAll issues one task per backend. Partition-owned types share a single
// coalesced call.
func (r *Remover) dispatchAll(ctx context.Context, deps Deps, tr domain.TimeRange, types domain.DataTypeSet, scope domain.OriginScope, origin domain.Origin) {
	unprotected := scope.Has(domain.ScopeUnprotectedWeb)
	begin, end := tr.Begin, tr.End

	historyAllowed := true
	if deps.History != nil && types&domain.NewDataTypeSet(domain.DataHistory, domain.DataDownloads) != 0 {
		historyAllowed = deps.History.HistoryDeletionAllowed()
	}

	if types.Has(domain.DataHistory) {
		switch {
		case deps.History == nil:
			r.skip(ctx, domain.DataHistory, skipNoBackend)
		case !historyAllowed:
			r.deny(ctx, domain.DataHistory)
		default:
			var origins []domain.Origin
			if !origin.IsZero() {
				origins = []domain.Origin{origin}
			}
			r.dispatch(ctx, backendHistory, func(done domain.DoneFunc) {
				deps.History.ExpireHistoryBetween(ctx, origins, begin, end, done)
			})
		}
	}

	if types.Has(domain.DataDownloads) {
		switch {
		case deps.Downloads == nil:
			r.skip(ctx, domain.DataDownloads, skipNoBackend)
		case !historyAllowed:
			r.deny(ctx, domain.DataDownloads)
		default:
			r.dispatch(ctx, backendDownloads, func(done domain.DoneFunc) {
				deps.Downloads.RemoveDownloadsBetween(ctx, begin, end, done)
			})
		}
	}

	var partitionMask domain.PartitionMask
	for _, pt := range partitionTypes {
		if !types.Has(pt.dt) {
			continue
		}
		switch {
		case deps.Partition == nil:
			r.skip(ctx, pt.dt, skipNoBackend)
		case pt.dt == domain.DataCookies && !unprotected:
			r.skip(ctx, pt.dt, skipScope)
		default:
			partitionMask |= pt.mask
		}
	}
	if partitionMask != 0 {
		req := domain.PartitionClearRequest{
			RemoveMask: partitionMask,
			QuotaMask:  QuotaMaskFor(tr),
			Origin:     origin,
			Matcher:    withDefaultPolicy(NewOriginMatcher(scope, origin), deps.Policy),
			Begin:      begin,
			End:        end,
		}
		r.dispatch(ctx, backendPartition, func(done domain.DoneFunc) {
			deps.Partition.ClearData(ctx, req, done)
		})
	}

	if types.Has(domain.DataServerBoundCerts) {
		switch {
		case deps.Certs == nil:
			r.skip(ctx, domain.DataServerBoundCerts, skipNoBackend)
		case !unprotected:
			r.skip(ctx, domain.DataServerBoundCerts, skipScope)
		default:
			r.dispatch(ctx, backendCerts, func(done domain.DoneFunc) {
				deps.Certs.DeleteCertsBetween(ctx, begin, end, done)
			})
		}
	}

	if types.Has(domain.DataPluginData) {
		switch {
		case deps.PluginData == nil:
			r.skip(ctx, domain.DataPluginData, skipNoBackend)
		case !unprotected:
			r.skip(ctx, domain.DataPluginData, skipScope)
		default:
			r.dispatch(ctx, backendPluginData, func(done domain.DoneFunc) {
				deps.PluginData.RemovePluginData(ctx, begin, done)
			})
		}
	}

	if types.Has(domain.DataPasswords) {
		if deps.Passwords == nil {
			r.skip(ctx, domain.DataPasswords, skipNoBackend)
		} else {
			r.dispatch(ctx, backendPasswords, func(done domain.DoneFunc) {
				deps.Passwords.RemoveLoginsCreatedBetween(ctx, begin, end, done)
			})
		}
	}

	if types.Has(domain.DataFormData) {
		if deps.Autofill == nil {
			r.skip(ctx, domain.DataFormData, skipNoBackend)
		} else {
			r.dispatch(ctx, backendAutofill, func(done domain.DoneFunc) {
				deps.Autofill.RemoveFormDataBetween(ctx, begin, end, done)
			})
		}
	}

	if types.Has(domain.DataCache) {
		if deps.Cache == nil {
			r.skip(ctx, domain.DataCache, skipNoBackend)
		} else {
			r.dispatch(ctx, backendCache, func(done domain.DoneFunc) {
				deps.Cache.ClearCache(ctx, begin, end, done)
			})
		}
	}

	if types.Has(domain.DataContentLicenses) {
		if deps.ContentLicenses == nil {
			r.skip(ctx, domain.DataContentLicenses, skipNoBackend)
		} else {
			r.dispatch(ctx, backendContentLicenses, func(done domain.DoneFunc) {
				deps.ContentLicenses.ClearContentLicenses(ctx, done)
			})
		}
	}
}

// dispatch counts one task before handing call its single-shot completion signal.
func (r *Remover) dispatch(ctx context.Context, backend string, call func(done domain.DoneFunc)) {
	r.counter.add()
	pending, total := r.counter.snapshot()
	r.logger.Debug("dispatching deletion task", "backend", backend, "task", total)
	r.metrics.ObserveDispatch(backend)
	tracer.AddEvent(ctx, "dispatch",
		tracer.StringAttr("backend", backend),
		tracer.IntAttr("pending", pending-1),
	)
	call(r.doneFunc(ctx, backend))
}

// doneFunc wraps the counter release so a backend signalling twice cannot
// retire someone else's task.
func (r *Remover) doneFunc(ctx context.Context, backend string) domain.DoneFunc {
	var fired atomic.Bool
	return func() {
		if fired.Swap(true) {
			r.logger.Warn("backend signalled completion more than once", "backend", backend)
			return
		}
		tracer.AddEvent(ctx, "task done", tracer.StringAttr("backend", backend))
		if r.counter.release() {
			r.complete()
		}
	}
}

func (r *Remover) skip(ctx context.Context, dt domain.DataType, reason string) {
	r.mu.Lock()
	r.details.Skipped = r.details.Skipped.With(dt)
	r.mu.Unlock()

	level := slog.LevelWarn
	if reason == skipNoBackend {
		level = slog.LevelDebug
	}
	r.logger.Log(ctx, level, "data type skipped", "data_type", dt.String(), "reason", reason)
	r.metrics.ObserveSkipped(dt.String(), reason)
	tracer.AddEvent(ctx, "skip",
		tracer.StringAttr("data_type", dt.String()),
		tracer.StringAttr("reason", reason),
	)
	if r.bus != nil {
		r.bus.Publish(ctx, domain.NewEvent(domain.EventCategorySkipped, r.requestID, r.clock.Now(),
			map[string]string{"data_type": dt.String(), "reason": reason}))
	}
}

// deny handles a data type refused by the history deletion policy. With debug
// checks on this is a programming error; otherwise the type is skipped and the
// rest of the request proceeds.
func (r *Remover) deny(ctx context.Context, dt domain.DataType) {
	if r.debugChecks {
		panic(fmt.Sprintf("remover: %s deletion requested but %v", dt, domain.ErrHistoryDeletionDisallowed))
	}
	r.skip(ctx, dt, skipPolicy)
	if r.audit != nil {
		if err := r.audit.LogDenied(ctx, r.requestID, dt, domain.ErrHistoryDeletionDisallowed.Error()); err != nil {
			r.logger.Warn("audit write failed", "error", err)
		}
	}
}

// complete delivers the notification and then drops every collaborator.
func (r *Remover) complete() {
	r.mu.Lock()
	r.state = stateDone
	_, total := r.counter.snapshot()
	r.details.TaskCount = total
	r.details.FinishedAt = r.clock.Now()
	details := r.details
	observers := append([]domain.RemovalObserver(nil), r.observers...)
	r.mu.Unlock()

	ctx := r.ctx
	for _, o := range observers {
		r.notify(o, details)
	}
	if r.bus != nil {
		r.bus.Publish(ctx, domain.NewEvent(domain.EventBrowsingDataRemoved, r.requestID, details.FinishedAt, details))
	}
	if r.audit != nil {
		if err := r.audit.LogRemoval(ctx, r.actor, details); err != nil {
			r.logger.Warn("audit write failed", "error", err)
		}
	}
	r.metrics.ObserveRemovalCompleted(r.periodLabel(), details.Scope.String(), details.Duration())

	r.span.SetAttributes(
		tracer.IntAttr("removal.tasks", details.TaskCount),
		tracer.StringAttr("removal.skipped", details.Skipped.String()),
	)
	tracer.SetOK(r.span)
	r.span.End()

	r.logger.Info("browsing data removal complete",
		"tasks", details.TaskCount,
		"skipped", details.Skipped.String(),
		"duration", details.Duration(),
	)

	r.mu.Lock()
	r.deps = Deps{}
	r.observers = nil
	r.bus = nil
	r.audit = nil
	r.ctx = nil
	finished := r.finished
	r.finished = nil
	r.mu.Unlock()

	if finished != nil {
		finished()
	}
	close(r.done)
}

// notify isolates observers from each other: a panicking observer is logged
// and the rest still run.
func (r *Remover) notify(o domain.RemovalObserver, d domain.RemovalDetails) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("removal observer panicked", "panic", p)
		}
	}()
	o.OnBrowsingDataRemoved(d)
}
