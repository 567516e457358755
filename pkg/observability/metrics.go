package observability

import (
	"context"

	"github.com/aretw0/moments/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "moments"

// Metrics collects counters and histograms for editor sessions.
type Metrics struct {
	Transitions   *prometheus.CounterVec
	ActiveByState *prometheus.GaugeVec
	PipelineSteps *prometheus.CounterVec
	Actions       *prometheus.CounterVec
	Autosaves     *prometheus.CounterVec
	AutosaveBytes *prometheus.HistogramVec
	Recoveries    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions.",
		}, []string{"media_type", "to"}),
		ActiveByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Sessions currently in each state.",
		}, []string{"state"}),
		PipelineSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_steps_total",
			Help:      "Asset and plugin registration steps by result.",
		}, []string{"step", "result"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Editor action invocations by result.",
		}, []string{"action", "result"}),
		Autosaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosaves_total",
			Help:      "Autosave attempts by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		AutosaveBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "autosave_bytes",
			Help:      "Size of written scene snapshots.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}, []string{"trigger"}),
		Recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_decisions_total",
			Help:      "Draft recovery decisions.",
		}, []string{"decision"}),
	}
	if reg != nil {
		reg.MustRegister(m.Transitions, m.ActiveByState, m.PipelineSteps,
			m.Actions, m.Autosaves, m.AutosaveBytes, m.Recoveries)
	}
	return m
}

// Hooks returns lifecycle hooks feeding m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, e *domain.StateEvent) {
			m.Transitions.WithLabelValues(string(e.MediaType), e.To.String()).Inc()
			if e.From != e.To {
				if e.From != domain.StateUninitialized {
					m.ActiveByState.WithLabelValues(e.From.String()).Dec()
				}
				if e.To != domain.StateDisposed {
					m.ActiveByState.WithLabelValues(e.To.String()).Inc()
				}
			}
		},
		OnPipeline: func(_ context.Context, e *domain.PipelineEvent) {
			m.PipelineSteps.WithLabelValues(e.Step, result(e.Err)).Inc()
		},
		OnAction: func(_ context.Context, e *domain.ActionEvent) {
			m.Actions.WithLabelValues(e.Name, result(e.Err)).Inc()
		},
		OnAutosave: func(_ context.Context, e *domain.AutosaveEvent) {
			m.Autosaves.WithLabelValues(string(e.Trigger), string(e.Outcome)).Inc()
			if e.Outcome == domain.AutosaveWritten {
				m.AutosaveBytes.WithLabelValues(string(e.Trigger)).Observe(float64(e.Bytes))
			}
		},
		OnRecovery: func(_ context.Context, e *domain.RecoveryEvent) {
			m.Recoveries.WithLabelValues(string(e.Decision)).Inc()
		},
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
