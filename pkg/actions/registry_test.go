package actions_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/moments/pkg/actions"
	"github.com/aretw0/moments/pkg/adapters/headless"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note domain.Notification) {
	n.mu.Lock()
	n.sent = append(n.sent, note)
	n.mu.Unlock()
}

func (n *recordingNotifier) levels() []domain.NotificationLevel {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.NotificationLevel
	for _, s := range n.sent {
		out = append(out, s.Level)
	}
	return out
}

type fakeSaver struct {
	calls int
	err   error
}

func (f *fakeSaver) Save(context.Context) (domain.AutosaveOutcome, error) {
	f.calls++
	if f.err != nil {
		return domain.AutosaveFailed, f.err
	}
	return domain.AutosaveWritten, nil
}

type fixture struct {
	engine   *headless.Engine
	saver    *fakeSaver
	notifier *recordingNotifier
	registry *actions.Registry
}

func setup(t *testing.T, media domain.MediaType, cb actions.Callbacks) fixture {
	t.Helper()
	ctx := context.Background()
	e, err := headless.NewFactory().Create(ctx, "#editor", ports.EngineConfig{})
	require.NoError(t, err)
	eng := e.(*headless.Engine)
	if media == domain.MediaVideo {
		_, err = eng.Scene().CreateVideoScene(ctx)
	} else {
		_, err = eng.Scene().CreateImageScene(ctx)
	}
	require.NoError(t, err)
	require.NoError(t, eng.Assets().AddDemoAssetSources(ctx, ports.DemoAssetConfig{SceneMode: eng.Scene().Mode(), WithUploadAssetSources: true}))

	f := fixture{engine: eng, saver: &fakeSaver{}, notifier: &recordingNotifier{}}
	f.registry = actions.New(eng, media, f.saver, cb, actions.WithNotifier(f.notifier))
	require.NoError(t, f.registry.Register())
	return f
}

func TestRegistry_RegistersOnce(t *testing.T) {
	f := setup(t, domain.MediaImage, actions.Callbacks{})
	require.NoError(t, f.registry.Register())

	var registered int
	for _, c := range f.engine.Calls() {
		if strings.HasPrefix(c, "RegisterAction:") {
			registered++
		}
	}
	assert.Equal(t, len(actions.Names), registered)
}

func TestRegistry_Export(t *testing.T) {
	tests := []struct {
		media domain.MediaType
		mime  string
	}{
		{domain.MediaImage, "image/png"},
		{domain.MediaVideo, "video/mp4"},
	}
	for _, tt := range tests {
		t.Run(string(tt.media), func(t *testing.T) {
			var gotMIME string
			var gotBlob []byte
			f := setup(t, tt.media, actions.Callbacks{OnExport: func(_ context.Context, blob []byte, mime string) error {
				gotBlob, gotMIME = blob, mime
				return nil
			}})
			require.NoError(t, f.registry.Run(context.Background(), actions.Export, nil))
			assert.Equal(t, tt.mime, gotMIME)
			assert.NotEmpty(t, gotBlob)
			assert.Empty(t, f.notifier.levels())
		})
	}
}

func TestRegistry_SaveAndSaveSceneFallback(t *testing.T) {
	f := setup(t, domain.MediaImage, actions.Callbacks{})
	ctx := context.Background()

	require.NoError(t, f.registry.Run(ctx, actions.Save, nil))
	require.NoError(t, f.registry.Run(ctx, actions.SaveScene, nil))
	assert.Equal(t, 2, f.saver.calls)
	assert.Equal(t, []domain.NotificationLevel{domain.NotifySuccess, domain.NotifySuccess}, f.notifier.levels())
}

func TestRegistry_SaveSceneToHost(t *testing.T) {
	var saved string
	f := setup(t, domain.MediaImage, actions.Callbacks{OnSaveScene: func(_ context.Context, scene string) error {
		saved = scene
		return nil
	}})
	require.NoError(t, f.registry.Run(context.Background(), actions.SaveScene, nil))
	assert.Zero(t, f.saver.calls)
	assert.Contains(t, saved, `"mode":"Design"`)
}

func TestRegistry_ShareSceneUnavailable(t *testing.T) {
	f := setup(t, domain.MediaImage, actions.Callbacks{})
	require.NoError(t, f.registry.Run(context.Background(), actions.ShareScene, nil))
	assert.Equal(t, []domain.NotificationLevel{domain.NotifyInfo}, f.notifier.levels())
}

func TestRegistry_ImportExportScene(t *testing.T) {
	var exported []byte
	var mime string
	src := setup(t, domain.MediaImage, actions.Callbacks{OnExport: func(_ context.Context, blob []byte, m string) error {
		exported, mime = blob, m
		return nil
	}})
	ctx := context.Background()
	scene, _ := src.engine.Scene().Active()
	_, err := src.engine.Block().InsertMedia(ctx, scene, ports.MediaSpec{URL: "sticker.png"})
	require.NoError(t, err)

	require.NoError(t, src.registry.Run(ctx, actions.ExportScene, nil))
	assert.Equal(t, actions.SceneMIMEType, mime)

	dst := setup(t, domain.MediaImage, actions.Callbacks{})
	require.NoError(t, dst.registry.Run(ctx, actions.ImportScene, map[string]any{"scene": string(exported)}))
	assert.Empty(t, dst.notifier.levels())
	content, err := dst.engine.Scene().SaveToString(ctx)
	require.NoError(t, err)
	assert.Contains(t, content, "sticker.png")
}

func TestRegistry_UploadFile(t *testing.T) {
	f := setup(t, domain.MediaVideo, actions.Callbacks{OnUpload: func(_ context.Context, file actions.Upload) (string, error) {
		return "https://cdn/" + file.Name, nil
	}})
	err := f.registry.Run(context.Background(), actions.UploadFile, map[string]any{
		"file": actions.Upload{Name: "clip.mp4", MimeType: "video/mp4", Data: []byte{1}},
	})
	require.NoError(t, err)

	assets := f.engine.Sources()[ports.VideoUploadSourceID]
	require.Len(t, assets, 1)
	assert.Equal(t, "https://cdn/clip.mp4", assets[0].URI)
}

func TestRegistry_FailuresBecomeNotifications(t *testing.T) {
	ctx := context.Background()
	f := setup(t, domain.MediaImage, actions.Callbacks{
		OnExport: func(context.Context, []byte, string) error { panic("host exploded") },
	})
	f.saver.err = errors.New("quota")

	assert.NoError(t, f.registry.Run(ctx, actions.Export, nil))
	assert.NoError(t, f.registry.Run(ctx, actions.Save, nil))
	assert.NoError(t, f.registry.Run(ctx, actions.ImportScene, nil))
	assert.NoError(t, f.registry.Run(ctx, actions.UploadFile, nil))

	assert.Equal(t, []domain.NotificationLevel{
		domain.NotifyError, domain.NotifyError, domain.NotifyError, domain.NotifyError,
	}, f.notifier.levels())
}

func TestRegistry_HooksObserveOutcome(t *testing.T) {
	ctx := context.Background()
	e, err := headless.NewFactory().Create(ctx, "#editor", ports.EngineConfig{})
	require.NoError(t, err)
	eng := e.(*headless.Engine)

	var names []string
	var errs []error
	reg := actions.New(eng, domain.MediaImage, &fakeSaver{}, actions.Callbacks{},
		actions.WithHooks(domain.LifecycleHooks{OnAction: func(_ context.Context, ev *domain.ActionEvent) {
			names = append(names, ev.Name)
			errs = append(errs, ev.Err)
		}}, "s1"))
	require.NoError(t, reg.Register())

	require.NoError(t, reg.Run(ctx, actions.Save, nil))
	require.NoError(t, reg.Run(ctx, actions.ExportScene, nil))

	assert.Equal(t, []string{actions.Save, actions.ExportScene}, names)
	assert.NoError(t, errs[0])
	assert.Error(t, errs[1])
}

func TestRegistry_UnknownAction(t *testing.T) {
	f := setup(t, domain.MediaImage, actions.Callbacks{})
	err := f.registry.Run(context.Background(), "rotate", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownAction)
}
