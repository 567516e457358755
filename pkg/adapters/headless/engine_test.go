package headless_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/moments/pkg/adapters/headless"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *headless.Engine {
	t.Helper()
	f := headless.NewFactory()
	e, err := f.Create(context.Background(), "#editor", ports.EngineConfig{UserID: "u1"})
	require.NoError(t, err)
	return e.(*headless.Engine)
}

func TestEngine_SceneRoundTripResetsHistory(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	scene, err := e.Scene().CreateImageScene(ctx)
	require.NoError(t, err)
	assert.Equal(t, ports.SceneModeDesign, e.Scene().Mode())

	size, err := e.Scene().CanvasSize(scene)
	require.NoError(t, err)
	assert.Equal(t, headless.ImagePageSize, size)

	img, err := e.Block().InsertMedia(ctx, scene, ports.MediaSpec{URL: "https://x/img.png", Kind: domain.MediaImage})
	require.NoError(t, err)
	assert.True(t, e.History().CanUndo())

	content, err := e.Scene().SaveToString(ctx)
	require.NoError(t, err)

	other := newEngine(t)
	require.NoError(t, other.Scene().LoadFromString(ctx, content))
	assert.False(t, other.History().CanUndo())
	b, ok := other.BlockByID(img)
	require.True(t, ok)
	assert.Equal(t, "https://x/img.png", b.URL)

	again, err := other.Scene().SaveToString(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, content, again)
}

func TestEngine_UndoRedo(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	scene, err := e.Scene().CreateVideoScene(ctx)
	require.NoError(t, err)

	var updates int
	unsub := e.History().OnUpdated(func() { updates++ })
	defer unsub()

	blk, err := e.Block().InsertMedia(ctx, scene, ports.MediaSpec{URL: "v.mp4", Kind: domain.MediaVideo})
	require.NoError(t, err)
	require.NoError(t, e.Block().SetPosition(blk, 10, 20, ports.LayoutAbsolute))

	require.NoError(t, e.History().Undo())
	b, _ := e.BlockByID(blk)
	assert.Zero(t, b.X)
	assert.True(t, e.History().CanRedo())

	require.NoError(t, e.History().Redo())
	b, _ = e.BlockByID(blk)
	assert.Equal(t, 10.0, b.X)
	assert.Equal(t, 4, updates)

	require.NoError(t, e.History().Undo())
	require.NoError(t, e.History().Undo())
	assert.Error(t, e.History().Undo())
}

func TestEngine_SendToBack(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	scene, _ := e.Scene().CreateImageScene(ctx)
	first, _ := e.Block().InsertMedia(ctx, scene, ports.MediaSpec{URL: "a"})
	second, _ := e.Block().InsertMedia(ctx, scene, ports.MediaSpec{URL: "b"})

	require.NoError(t, e.Block().SendToBack(second))
	page, ok := e.Page()
	require.True(t, ok)
	assert.Equal(t, []ports.BlockID{second, first}, page.Children)
}

func TestEngine_EventFilter(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	scene, _ := e.Scene().CreateImageScene(ctx)
	page, _ := e.Page()

	var all, scoped []ports.BlockEvent
	unsubAll := e.Events().Subscribe(nil, func(evs []ports.BlockEvent) { all = append(all, evs...) })
	unsubScoped := e.Events().Subscribe([]ports.BlockID{page.ID}, func(evs []ports.BlockEvent) { scoped = append(scoped, evs...) })
	assert.Equal(t, 2, e.Subscribers())

	_, err := e.Block().InsertMedia(ctx, scene, ports.MediaSpec{URL: "a"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, []ports.BlockEvent{{Block: page.ID, Type: ports.BlockUpdated}}, scoped)

	unsubAll()
	unsubScoped()
	assert.Zero(t, e.Subscribers())
}

func TestEngine_FailuresAndDispose(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	boom := errors.New("boom")

	e.FailOn(headless.OpAddPlugin, boom)
	assert.ErrorIs(t, e.AddPlugin(ctx, namedPlugin("p")), boom)
	e.FailOn(headless.OpAddPlugin, nil)
	require.NoError(t, e.AddPlugin(ctx, namedPlugin("p")))
	assert.Equal(t, []string{"p"}, e.Plugins())

	e.Dispose()
	assert.Equal(t, 1, e.DisposeCount())
	_, err := e.Scene().CreateImageScene(ctx)
	assert.Error(t, err)
}

func TestEngine_Actions(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	err := e.Actions().RunAction(ctx, "missing", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownAction)

	var got map[string]any
	require.NoError(t, e.Actions().RegisterAction("save", func(_ context.Context, args map[string]any) error {
		got = args
		return nil
	}))
	require.NoError(t, e.Actions().RunAction(ctx, "save", map[string]any{"k": 1}))
	assert.Equal(t, map[string]any{"k": 1}, got)
}

func TestFactory_Options(t *testing.T) {
	f := headless.NewFactory(headless.WithVideoSupport(false), headless.WithCreateError(errors.New("no gpu")))
	assert.False(t, f.SupportsVideo())
	_, err := f.Create(context.Background(), "#x", ports.EngineConfig{})
	assert.EqualError(t, err, "no gpu")
	assert.Nil(t, f.Last())
}

type namedPlugin string

func (p namedPlugin) Name() string { return string(p) }
