package history_test

import (
	"context"
	"testing"

	"github.com/aretw0/moments/pkg/adapters/headless"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/history"
	"github.com/aretw0/moments/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScene(t *testing.T) (*headless.Engine, ports.BlockID) {
	t.Helper()
	e, err := headless.NewFactory().Create(context.Background(), "#editor", ports.EngineConfig{})
	require.NoError(t, err)
	eng := e.(*headless.Engine)
	scene, err := eng.Scene().CreateImageScene(context.Background())
	require.NoError(t, err)
	return eng, scene
}

func TestCoordinator_TracksAvailability(t *testing.T) {
	ctx := context.Background()
	eng, scene := newScene(t)
	c := history.New(eng.History(), eng.Events())

	var seen []domain.HistoryState
	c.OnChange(func(s domain.HistoryState) { seen = append(seen, s) })
	c.Attach()
	assert.Equal(t, domain.HistoryState{}, c.State())

	_, err := eng.Block().InsertMedia(ctx, scene, ports.MediaSpec{URL: "a.png"})
	require.NoError(t, err)
	assert.Equal(t, domain.HistoryState{CanUndo: true}, c.State())

	c.Undo()
	assert.Equal(t, domain.HistoryState{CanRedo: true}, c.State())

	c.Redo()
	assert.Equal(t, domain.HistoryState{CanUndo: true}, c.State())

	assert.Equal(t, []domain.HistoryState{
		{CanUndo: true},
		{CanRedo: true},
		{CanUndo: true},
	}, seen)
}

func TestCoordinator_NoOpWhenUnavailable(t *testing.T) {
	eng, _ := newScene(t)
	c := history.New(eng.History(), eng.Events())
	c.Attach()

	c.Undo()
	c.Redo()
	assert.Zero(t, eng.CallCount("Undo"))
	assert.Zero(t, eng.CallCount("Redo"))
}

func TestCoordinator_DetachReleasesSubscriptions(t *testing.T) {
	ctx := context.Background()
	eng, scene := newScene(t)
	c := history.New(eng.History(), eng.Events())

	c.Attach()
	c.Attach()
	assert.Equal(t, 2, eng.Subscribers())

	c.Detach()
	c.Detach()
	assert.Zero(t, eng.Subscribers())

	_, err := eng.Block().InsertMedia(ctx, scene, ports.MediaSpec{URL: "a.png"})
	require.NoError(t, err)
	assert.False(t, c.State().CanUndo, "detached coordinator stops tracking")
}
