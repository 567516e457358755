package moments_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/moments"
	"github.com/aretw0/moments/pkg/actions"
	"github.com/aretw0/moments/pkg/adapters/headless"
	"github.com/aretw0/moments/pkg/adapters/memory"
	"github.com/aretw0/moments/pkg/device"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/draft"
	"github.com/aretw0/moments/pkg/ports"
	"github.com/aretw0/moments/pkg/recovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

var fixedNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func newEditor(t *testing.T, f *headless.Factory, store *memory.Store, opts ...moments.Option) *moments.Editor {
	t.Helper()
	base := []moments.Option{
		moments.WithAutosaveDebounce(10 * time.Millisecond),
		moments.WithClock(func() time.Time { return fixedNow }),
	}
	return moments.New(f, store, append(base, opts...)...)
}

func TestSession_ImageWithInitialMedia(t *testing.T) {
	ctx := context.Background()
	f := headless.NewFactory()
	store := memory.NewStore()
	ed := newEditor(t, f, store)

	sess, err := ed.Open(ctx, moments.Host{
		UserID:          "u1",
		MediaType:       domain.MediaImage,
		InitialMediaURL: "https://cdn/photo.jpg",
	}, device.Environment{UserAgent: desktopUA})
	require.NoError(t, err)
	t.Cleanup(sess.Dispose)

	assert.Equal(t, domain.StateReady, sess.State())
	assert.Equal(t, domain.DesktopMaxRasterDimension, sess.Profile().MaxRasterDimension)
	assert.True(t, sess.Report().OK())
	assert.Equal(t, domain.RecoveryNotApplicable, sess.Recovery())

	eng := f.Last()
	assert.Equal(t, 1, eng.CallCount(headless.OpCreateImageScene))
	assert.Zero(t, eng.CallCount(headless.OpCreateVideoScene))
	assert.Equal(t, 1, eng.CallCount(headless.OpInsertMedia))
	page, ok := eng.Page()
	require.True(t, ok)
	require.Len(t, page.Children, 1)
	b, _ := eng.BlockByID(page.Children[0])
	assert.Equal(t, "https://cdn/photo.jpg", b.URL)
	assert.Equal(t, page.Size, b.Size, "initial media fills the canvas")

	assert.True(t, sess.History().CanUndo)
	require.NoError(t, sess.Undo(ctx))
	assert.True(t, sess.History().CanRedo)
	require.NoError(t, sess.Redo(ctx))

	// The mutation from Redo arms autosave.
	require.Eventually(t, func() bool { return store.Len() == 5 }, time.Second, 5*time.Millisecond)
	rec, err := ed.Repository().Load(ctx, sess.DraftKey())
	require.NoError(t, err)
	assert.Equal(t, domain.TriggerAutoSave, rec.SavedBy)
	assert.Contains(t, rec.SceneContent, "photo.jpg")
}

func TestSession_RecentDraftDiscarded(t *testing.T) {
	ctx := context.Background()
	f := headless.NewFactory()
	store := memory.NewStore()
	old := draft.NewRepository(store, draft.WithClock(func() time.Time { return fixedNow.Add(-30 * time.Minute) }))
	_, err := old.Write(ctx, domain.DraftKey{UserID: "u1", MediaType: domain.MediaImage}, `{"old":true}`, domain.TriggerAutoSave)
	require.NoError(t, err)
	require.True(t, store.Has("moment-draft-u1-latest"))

	ed := newEditor(t, f, store)
	sess := ed.NewSession(moments.Host{UserID: "u1"}, device.Environment{})
	t.Cleanup(sess.Dispose)

	done := make(chan error, 1)
	go func() { done <- sess.Start(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := sess.PendingDraft()
		return ok
	}, time.Second, time.Millisecond)
	assert.Equal(t, domain.RecoveryPending, sess.Recovery())
	pending, _ := sess.PendingDraft()
	assert.Equal(t, `{"old":true}`, pending.SceneContent)

	require.NoError(t, sess.ResolveRecovery(domain.ChoiceDiscard))
	require.NoError(t, <-done)

	assert.Equal(t, domain.RecoveryDiscarded, sess.Recovery())
	for _, k := range []string{
		"moment-draft-u1-latest",
		"moment-draft-u1-latest-timestamp",
		"moment-draft-u1-latest-savedBy",
		"moment-draft-u1-latest-hash",
		"moment-draft-u1-latest-size",
	} {
		assert.False(t, store.Has(k), k)
	}
}

func TestSession_RecentDraftRecovered(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	// First session writes a draft.
	f1 := headless.NewFactory()
	first, err := newEditor(t, f1, store).Open(ctx, moments.Host{UserID: "u1", InitialMediaURL: "https://cdn/a.png"}, device.Environment{})
	require.NoError(t, err)
	_, err = first.Save(ctx)
	require.NoError(t, err)
	first.Dispose()

	// Second session recovers it.
	f2 := headless.NewFactory()
	second, err := newEditor(t, f2, store).Open(ctx, moments.Host{UserID: "u1", Prompter: recovery.Always(domain.ChoiceRecover)}, device.Environment{})
	require.NoError(t, err)
	t.Cleanup(second.Dispose)

	assert.Equal(t, domain.RecoveryRecovered, second.Recovery())
	content, err := f2.Last().Scene().SaveToString(ctx)
	require.NoError(t, err)
	assert.Contains(t, content, "https://cdn/a.png")

	out, err := second.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.AutosaveSkipped, out, "recovered content matches the stored hash")
}

func TestSession_StaleDraftDroppedSilently(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	old := draft.NewRepository(store, draft.WithClock(func() time.Time { return fixedNow.Add(-25 * time.Hour) }))
	_, err := old.Write(ctx, domain.DraftKey{UserID: "u1", MediaType: domain.MediaImage}, `{"old":true}`, domain.TriggerAutoSave)
	require.NoError(t, err)

	prompted := false
	sess, err := newEditor(t, headless.NewFactory(), store).Open(ctx, moments.Host{
		UserID: "u1",
		Prompter: recovery.PromptFunc(func(context.Context, domain.DraftRecord) (domain.RecoveryChoice, error) {
			prompted = true
			return domain.ChoiceRecover, nil
		}),
	}, device.Environment{})
	require.NoError(t, err)
	t.Cleanup(sess.Dispose)

	assert.False(t, prompted)
	assert.Zero(t, store.Len())
}

func TestSession_DisposeBeforeCreationResolves(t *testing.T) {
	gate := make(chan struct{})
	f := headless.NewFactory(headless.WithCreateGate(gate))
	ed := newEditor(t, f, memory.NewStore())
	sess := ed.NewSession(moments.Host{UserID: "u1"}, device.Environment{})

	done := make(chan error, 1)
	go func() { done <- sess.Start(context.Background()) }()
	require.Eventually(t, func() bool { return sess.State() == domain.StateInitializing }, time.Second, time.Millisecond)

	sess.Dispose()
	close(gate)

	assert.ErrorIs(t, <-done, domain.ErrSessionDisposed)
	assert.Equal(t, 1, f.Last().DisposeCount())
	assert.Zero(t, f.Last().Subscribers())
	_, ok := ed.Session(sess.ID())
	assert.False(t, ok)
}

func TestSession_DisposeWhilePrompting(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	old := draft.NewRepository(store, draft.WithClock(func() time.Time { return fixedNow.Add(-time.Minute) }))
	_, err := old.Write(ctx, domain.DraftKey{UserID: "u1", MediaType: domain.MediaImage}, `{"old":true}`, domain.TriggerAutoSave)
	require.NoError(t, err)

	f := headless.NewFactory()
	sess := newEditor(t, f, store).NewSession(moments.Host{UserID: "u1"}, device.Environment{})
	done := make(chan error, 1)
	go func() { done <- sess.Start(ctx) }()
	require.Eventually(t, func() bool { return sess.Recovery() == domain.RecoveryPending }, time.Second, time.Millisecond)

	sess.Dispose()
	assert.ErrorIs(t, <-done, domain.ErrSessionDisposed)
	assert.Equal(t, 1, f.Last().DisposeCount())
	assert.Equal(t, 5, store.Len(), "unanswered draft is kept")
}

func TestSession_VideoUnsupported(t *testing.T) {
	f := headless.NewFactory(headless.WithVideoSupport(false))
	sess, err := newEditor(t, f, memory.NewStore()).Open(context.Background(), moments.Host{UserID: "u1", MediaType: domain.MediaVideo}, device.Environment{})

	var serr *domain.SessionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, domain.KindVideoUnavailable, serr.Kind)
	assert.Equal(t, domain.StateError, sess.State())
	assert.Empty(t, f.Engines())

	assert.ErrorIs(t, sess.Undo(context.Background()), domain.ErrVideoUnsupported)
	sess.Dispose()
}

func TestSession_VideoInitialMedia(t *testing.T) {
	f := headless.NewFactory()
	sess, err := newEditor(t, f, memory.NewStore()).Open(context.Background(), moments.Host{
		UserID:          "u1",
		MediaType:       domain.MediaVideo,
		InitialMediaURL: "https://cdn/clip.mp4",
	}, device.Environment{UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148"})
	require.NoError(t, err)
	t.Cleanup(sess.Dispose)

	assert.True(t, sess.Profile().Mobile)
	assert.Equal(t, domain.MobileMaxRasterDimension, f.Last().Config().MaxRasterDimension)
	page, _ := f.Last().Page()
	b, _ := f.Last().BlockByID(page.Children[0])
	assert.Equal(t, ports.LayoutAbsolute, b.SizeMode)
	assert.Equal(t, domain.DraftKey{UserID: "u1", MediaType: domain.MediaVideo}, sess.DraftKey())
}

func TestSession_ActionsAndNotifications(t *testing.T) {
	ctx := context.Background()
	var exported []string
	f := headless.NewFactory()
	sess, err := newEditor(t, f, memory.NewStore()).Open(ctx, moments.Host{
		UserID: "u1",
		Actions: actions.Callbacks{OnExport: func(_ context.Context, _ []byte, mime string) error {
			exported = append(exported, mime)
			return nil
		}},
	}, device.Environment{})
	require.NoError(t, err)
	t.Cleanup(sess.Dispose)

	require.NoError(t, sess.RunAction(ctx, actions.Export, nil))
	require.NoError(t, sess.RunAction(ctx, actions.ShareScene, nil))
	assert.Equal(t, []string{"image/png"}, exported)

	notes := sess.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotifyInfo, notes[0].Level)
	assert.Empty(t, sess.Notifications())

	assert.ErrorIs(t, sess.RunAction(ctx, "rotate", nil), domain.ErrUnknownAction)
}

func TestSession_HideAndClose(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	f := headless.NewFactory()
	closed := 0
	sess, err := newEditor(t, f, store).Open(ctx, moments.Host{
		UserID:  "u1",
		OnClose: func(context.Context) { closed++ },
	}, device.Environment{})
	require.NoError(t, err)

	require.NoError(t, sess.Hide(ctx))
	rec, err := draft.NewRepository(store).Load(ctx, sess.DraftKey())
	require.NoError(t, err)
	assert.Equal(t, domain.TriggerBeforeUnload, rec.SavedBy)

	require.NoError(t, sess.ClearDrafts(ctx))
	assert.Zero(t, store.Len())

	sess.Close(ctx)
	sess.Close(ctx)
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, f.Last().DisposeCount())
	assert.Zero(t, f.Last().Subscribers())
	assert.ErrorIs(t, sess.Hide(ctx), domain.ErrSessionDisposed)
}

func TestSession_DeferReleasesListeners(t *testing.T) {
	ctx := context.Background()
	sess, err := newEditor(t, headless.NewFactory(), memory.NewStore()).Open(ctx, moments.Host{UserID: "u1"}, device.Environment{})
	require.NoError(t, err)

	unregister, err := sess.OnHistoryChange(func(domain.HistoryState) {})
	require.NoError(t, err)
	released := 0
	sess.Defer(func() {
		released++
		unregister()
	})

	sess.Close(ctx)
	assert.Equal(t, 1, released)

	late := false
	sess.Defer(func() { late = true })
	assert.True(t, late, "runs immediately once disposed")
	assert.Equal(t, 1, released)
}

func TestSession_StorageFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := &brokenStorage{Store: memory.NewStore()}
	sess, err := moments.New(headless.NewFactory(), store).Open(ctx, moments.Host{UserID: "u1"}, device.Environment{})
	require.NoError(t, err)
	t.Cleanup(sess.Dispose)

	_, err = sess.Save(ctx)
	assert.Error(t, err)
	assert.Equal(t, domain.StateReady, sess.State())
	assert.False(t, sess.Autosave().IsSaving)
}

func TestEditor_Shutdown(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	f := headless.NewFactory()
	ed := newEditor(t, f, store)
	for _, u := range []string{"a", "b"} {
		_, err := ed.Open(ctx, moments.Host{UserID: u}, device.Environment{})
		require.NoError(t, err)
	}
	require.Len(t, ed.Sessions(), 2)

	ed.Shutdown(ctx)
	assert.Empty(t, ed.Sessions())
	assert.Equal(t, 10, store.Len(), "each session saved before disposal")
	for _, e := range f.Engines() {
		assert.Equal(t, 1, e.DisposeCount())
	}
}

type brokenStorage struct {
	*memory.Store
}

func (b *brokenStorage) SetMany(context.Context, map[string]string) error {
	return errors.New("quota exceeded")
}
