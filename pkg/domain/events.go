package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStateChange EventType = "state_change"
	EventPipeline    EventType = "pipeline_step"
	EventAction      EventType = "action"
	EventAutosave    EventType = "autosave"
	EventRecovery    EventType = "recovery"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// StateEvent represents a session state transition.
type StateEvent struct {
	EventBase
	MediaType MediaType    `json:"media_type"`
	From      SessionState `json:"from"`
	To        SessionState `json:"to"`
}

// PipelineEvent represents one asset or plugin registration step.
type PipelineEvent struct {
	EventBase
	Step string `json:"step"`
	Err  error  `json:"-"`
}

// ActionEvent represents an action invocation.
type ActionEvent struct {
	EventBase
	Name string `json:"name"`
	Err  error  `json:"-"`
}

// AutosaveOutcome describes what a save attempt did.
type AutosaveOutcome string

const (
	AutosaveWritten AutosaveOutcome = "written"
	AutosaveSkipped AutosaveOutcome = "skipped"
	AutosaveFailed  AutosaveOutcome = "failed"
)

// AutosaveEvent represents one autosave attempt.
type AutosaveEvent struct {
	EventBase
	Trigger SaveTrigger     `json:"trigger"`
	Outcome AutosaveOutcome `json:"outcome"`
	Bytes   int             `json:"bytes"`
	Err     error           `json:"-"`
}

// RecoveryEvent represents a recovery decision update.
type RecoveryEvent struct {
	EventBase
	Decision RecoveryDecision `json:"decision"`
}

// LifecycleHooks defines callbacks for session observability.
type LifecycleHooks struct {
	OnStateChange func(context.Context, *StateEvent)
	OnPipeline    func(context.Context, *PipelineEvent)
	OnAction      func(context.Context, *ActionEvent)
	OnAutosave    func(context.Context, *AutosaveEvent)
	OnRecovery    func(context.Context, *RecoveryEvent)
}

// Merge returns hooks that call h first and then other, for every callback set on either.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStateChange: chain(h.OnStateChange, other.OnStateChange),
		OnPipeline:    chain(h.OnPipeline, other.OnPipeline),
		OnAction:      chain(h.OnAction, other.OnAction),
		OnAutosave:    chain(h.OnAutosave, other.OnAutosave),
		OnRecovery:    chain(h.OnRecovery, other.OnRecovery),
	}
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}
