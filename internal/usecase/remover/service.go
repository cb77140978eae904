package remover

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"browsing-data/internal/domain"
)

// Request is a removal as asked for by a caller outside the package.
type Request struct {
	Period domain.TimePeriod
	// Range, when set, overrides Period with an explicit [Begin, End).
	Range  *domain.TimeRange
	Types  domain.DataTypeSet
	Scope  domain.OriginScope
	Origin domain.Origin
	Actor  string
}

// Validate reports caller mistakes as errors instead of the panics Remover uses.
func (r Request) Validate() error {
	if r.Types.IsEmpty() {
		return domain.NewDomainError("Request.Validate", domain.ErrInvalidInput, "no data types requested")
	}
	if r.Range == nil && !r.Period.Valid() {
		return domain.NewDomainError("Request.Validate", domain.ErrInvalidPeriod, r.Period.String())
	}
	if r.Range != nil && !r.Range.End.IsZero() && r.Range.End.Before(r.Range.Begin) {
		return domain.NewDomainError("Request.Validate", domain.ErrInvalidInput, "range end before begin")
	}
	if r.Scope == 0 {
		return domain.NewDomainError("Request.Validate", domain.ErrInvalidInput, "empty origin scope")
	}
	if !r.Origin.IsZero() && r.Scope != domain.ScopeUnprotectedWeb {
		return domain.NewDomainError("Request.Validate", domain.ErrInvalidOrigin,
			"single-origin removal requires scope unprotected_web")
	}
	return nil
}

// Service creates one Remover per request over a shared set of backends and
// allows a single removal at a time.
type Service struct {
	deps   Deps
	opts   []Option
	logger *slog.Logger

	removing atomic.Bool
	wg       sync.WaitGroup
}

// NewService returns a Service. opts are applied to every Remover it creates.
func NewService(deps Deps, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		deps:   deps,
		opts:   append([]Option{WithLogger(logger)}, opts...),
		logger: logger.With("component", "remover_service"),
	}
}

// IsRemoving reports whether a removal is currently in flight.
func (s *Service) IsRemoving() bool { return s.removing.Load() }

// Start dispatches req and returns its Remover without waiting for completion.
// It fails with ErrRemovalInProgress while another removal is running.
func (s *Service) Start(ctx context.Context, req Request, opts ...Option) (*Remover, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !s.removing.CompareAndSwap(false, true) {
		return nil, domain.NewDomainError("Service.Start", domain.ErrRemovalInProgress, "")
	}

	all := append(append([]Option(nil), s.opts...), opts...)
	if req.Actor != "" {
		all = append(all, WithActor(req.Actor))
	}

	var r *Remover
	if req.Range != nil {
		r = NewForRange(s.deps, req.Range.Begin, req.Range.End, all...)
	} else {
		r = New(s.deps, req.Period, all...)
	}

	s.wg.Add(1)
	r.finished = func() {
		s.removing.Store(false)
		s.wg.Done()
	}

	if req.Origin.IsZero() {
		r.Remove(ctx, req.Types, req.Scope)
	} else {
		r.RemoveForOrigin(ctx, req.Types, req.Origin, req.Scope)
	}
	return r, nil
}

// Clear runs req to completion. If ctx ends first the removal keeps running in
// the background and ctx's error is returned.
func (s *Service) Clear(ctx context.Context, req Request, opts ...Option) (domain.RemovalDetails, error) {
	r, err := s.Start(ctx, req, opts...)
	if err != nil {
		return domain.RemovalDetails{}, err
	}
	return r.Wait(ctx)
}

// Drain blocks until no removal is in flight or timeout elapses, and reports
// whether it drained.
func (s *Service) Drain(timeout time.Duration) bool {
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		s.logger.Warn("removal still in flight at shutdown", "timeout", timeout)
		return false
	}
}
