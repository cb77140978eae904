package domain

import (
	"time"
)

// RemovalRequest is the immutable input of one orchestration run.
type RemovalRequest struct {
	ID        string      `json:"id"`
	Period    TimePeriod  `json:"period"`
	Range     TimeRange   `json:"range"`
	DataTypes DataTypeSet `json:"data_types"`
	Scope     OriginScope `json:"scope"`
	// Origin, when set, restricts quota-managed and history deletion to this origin.
	Origin Origin `json:"origin,omitempty"`
}

// RemovalDetails is the completion notification delivered once per request.
type RemovalDetails struct {
	RequestID string      `json:"request_id"`
	Begin     time.Time   `json:"begin"`
	End       time.Time   `json:"end"`
	DataTypes DataTypeSet `json:"data_types"`
	Scope     OriginScope `json:"scope"`
	Origin    Origin      `json:"origin,omitempty"`
	// Skipped lists requested categories that were not dispatched (policy or scope gated,
	// or no backend configured).
	Skipped    DataTypeSet `json:"skipped,omitempty"`
	TaskCount  int         `json:"task_count"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Duration returns how long the removal took.
func (d RemovalDetails) Duration() time.Duration { return d.FinishedAt.Sub(d.StartedAt) }

// RemovalObserver is notified exactly once when a removal completes.
// Observers must not call Remove on the remover that notified them.
type RemovalObserver interface {
	OnBrowsingDataRemoved(details RemovalDetails)
}

// RemovalObserverFunc adapts a function to RemovalObserver.
// Function observers cannot be removed with RemoveObserver; use a pointer type for that.
type RemovalObserverFunc func(details RemovalDetails)

func (f RemovalObserverFunc) OnBrowsingDataRemoved(details RemovalDetails) { f(details) }

// DoneFunc is the single-shot completion signal handed to every deletion backend.
// A backend must call it exactly once, from any goroutine, whether or not its
// deletion succeeded.
type DoneFunc func()
