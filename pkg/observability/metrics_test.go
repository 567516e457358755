package observability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_StateTransitions(t *testing.T) {
	m := observability.NewMetrics(nil)
	hooks := m.Hooks()
	ctx := context.Background()

	step := func(from, to domain.SessionState) {
		hooks.OnStateChange(ctx, &domain.StateEvent{MediaType: domain.MediaImage, From: from, To: to})
	}
	step(domain.StateUninitialized, domain.StateInitializing)
	step(domain.StateInitializing, domain.StateReady)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("image", "ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveByState.WithLabelValues("ready")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveByState.WithLabelValues("initializing")))

	step(domain.StateReady, domain.StateDisposed)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveByState.WithLabelValues("ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("image", "disposed")))
}

func TestMetrics_Outcomes(t *testing.T) {
	m := observability.NewMetrics(nil)
	hooks := m.Hooks()
	ctx := context.Background()
	boom := errors.New("boom")

	hooks.OnPipeline(ctx, &domain.PipelineEvent{Step: "stickers", Err: boom})
	hooks.OnPipeline(ctx, &domain.PipelineEvent{Step: "ui"})
	hooks.OnAction(ctx, &domain.ActionEvent{Name: "export"})
	hooks.OnAutosave(ctx, &domain.AutosaveEvent{Trigger: domain.TriggerAutoSave, Outcome: domain.AutosaveWritten, Bytes: 2048})
	hooks.OnAutosave(ctx, &domain.AutosaveEvent{Trigger: domain.TriggerAutoSave, Outcome: domain.AutosaveSkipped})
	hooks.OnRecovery(ctx, &domain.RecoveryEvent{Decision: domain.RecoveryDiscarded})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineSteps.WithLabelValues("stickers", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineSteps.WithLabelValues("ui", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("export", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Autosaves.WithLabelValues("auto-save", "written")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Autosaves.WithLabelValues("auto-save", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Recoveries.WithLabelValues("discarded")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.AutosaveBytes))
}

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := observability.NewMetrics(reg)
	m.Hooks().OnAction(context.Background(), &domain.ActionEvent{Name: "save"})

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "moments_actions_total")
}
