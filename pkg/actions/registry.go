// Package actions binds the editor's named commands to session behaviour.
//
// Handlers never return an error to the engine: failures and panics are
// logged and surfaced to the user as notifications.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/moments/internal/logging"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/ports"
)

// Action names registered on the engine.
const (
	Export      = "export"
	Save        = "save"
	SaveScene   = "save-scene"
	ShareScene  = "share-scene"
	ImportScene = "import-scene"
	ExportScene = "export-scene"
	UploadFile  = "upload-file"
)

// Names lists every action in registration order.
var Names = []string{Export, Save, SaveScene, ShareScene, ImportScene, ExportScene, UploadFile}

// SceneMIMEType is the media type of an exported scene blob.
const SceneMIMEType = "application/vnd.moments.scene+json"

// Upload is a user file handed to the upload-file action under the "file" argument.
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

// Callbacks are the host handlers an action may delegate to. Any may be nil.
type Callbacks struct {
	OnExport     func(ctx context.Context, blob []byte, mimeType string) error
	OnSaveScene  func(ctx context.Context, scene string) error
	OnShareScene func(ctx context.Context, scene string) error
	OnUpload     func(ctx context.Context, file Upload) (string, error)
}

// Saver performs a manual draft save.
type Saver interface {
	Save(ctx context.Context) (domain.AutosaveOutcome, error)
}

// Engine is the slice of the engine actions operate on.
type Engine interface {
	ports.Exporter
	Actions() ports.ActionAPI
	Scene() ports.SceneAPI
	Assets() ports.AssetAPI
}

// Registry registers the actions of one session.
type Registry struct {
	engine    Engine
	media     domain.MediaType
	saver     Saver
	notifier  ports.Notifier
	callbacks Callbacks
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	sessionID string

	once sync.Once
	err  error
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for the Registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithNotifier sets where failures are surfaced.
func WithNotifier(n ports.Notifier) Option {
	return func(r *Registry) {
		r.notifier = n
	}
}

// WithHooks registers lifecycle hooks; sessionID tags the emitted events.
func WithHooks(hooks domain.LifecycleHooks, sessionID string) Option {
	return func(r *Registry) {
		r.hooks = hooks
		r.sessionID = sessionID
	}
}

// New creates a Registry.
func New(engine Engine, media domain.MediaType, saver Saver, callbacks Callbacks, opts ...Option) *Registry {
	r := &Registry{
		engine:    engine,
		media:     media,
		saver:     saver,
		callbacks: callbacks,
		logger:    logging.NewNop(),
		notifier:  ports.NotifierFunc(func(context.Context, domain.Notification) {}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds every action on the engine. Only the first call has an effect.
func (r *Registry) Register() error {
	r.once.Do(func() {
		handlers := map[string]func(context.Context, map[string]any) error{
			Export:      r.export,
			Save:        r.save,
			SaveScene:   r.saveScene,
			ShareScene:  r.shareScene,
			ImportScene: r.importScene,
			ExportScene: r.exportScene,
			UploadFile:  r.uploadFile,
		}
		for _, name := range Names {
			if err := r.engine.Actions().RegisterAction(name, r.guard(name, handlers[name])); err != nil {
				r.err = fmt.Errorf("failed to register action %s: %w", name, err)
				return
			}
		}
	})
	return r.err
}

// Run triggers an action through the engine.
func (r *Registry) Run(ctx context.Context, name string, args map[string]any) error {
	return r.engine.Actions().RunAction(ctx, name, args)
}

// guard converts handler errors and panics into notifications.
func (r *Registry) guard(name string, fn func(context.Context, map[string]any) error) ports.ActionHandler {
	return func(ctx context.Context, args map[string]any) error {
		var err error
		func() {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("action %s panicked: %v", name, p)
				}
			}()
			err = fn(ctx, args)
		}()

		if err != nil {
			r.logger.Warn("Action failed", "action", name, "err", err)
			r.notifier.Notify(ctx, domain.Notification{
				Level:   domain.NotifyError,
				Title:   name,
				Message: domain.KindActionFailed.Message(),
			})
		}
		if r.hooks.OnAction != nil {
			r.hooks.OnAction(ctx, &domain.ActionEvent{
				EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventAction, SessionID: r.sessionID},
				Name:      name,
				Err:       err,
			})
		}
		return nil
	}
}

func (r *Registry) exportMIME() string {
	if r.media == domain.MediaVideo {
		return "video/mp4"
	}
	return "image/png"
}

func (r *Registry) export(ctx context.Context, _ map[string]any) error {
	if r.callbacks.OnExport == nil {
		return errors.New("host has no export handler")
	}
	mime := r.exportMIME()
	blob, err := r.engine.Export(ctx, mime)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	return r.callbacks.OnExport(ctx, blob, mime)
}

func (r *Registry) save(ctx context.Context, _ map[string]any) error {
	if _, err := r.saver.Save(ctx); err != nil {
		return err
	}
	r.notifier.Notify(ctx, domain.Notification{Level: domain.NotifySuccess, Title: Save, Message: "Draft saved."})
	return nil
}

func (r *Registry) saveScene(ctx context.Context, args map[string]any) error {
	if r.callbacks.OnSaveScene == nil {
		return r.save(ctx, args)
	}
	scene, err := r.engine.Scene().SaveToString(ctx)
	if err != nil {
		return err
	}
	return r.callbacks.OnSaveScene(ctx, scene)
}

func (r *Registry) shareScene(ctx context.Context, _ map[string]any) error {
	if r.callbacks.OnShareScene == nil {
		r.notifier.Notify(ctx, domain.Notification{Level: domain.NotifyInfo, Title: ShareScene, Message: "Sharing is not available here."})
		return nil
	}
	scene, err := r.engine.Scene().SaveToString(ctx)
	if err != nil {
		return err
	}
	return r.callbacks.OnShareScene(ctx, scene)
}

func (r *Registry) importScene(ctx context.Context, args map[string]any) error {
	scene, ok := args["scene"].(string)
	if !ok || scene == "" {
		return errors.New("import-scene requires a scene argument")
	}
	return r.engine.Scene().LoadFromString(ctx, scene)
}

func (r *Registry) exportScene(ctx context.Context, _ map[string]any) error {
	if r.callbacks.OnExport == nil {
		return errors.New("host has no export handler")
	}
	scene, err := r.engine.Scene().SaveToString(ctx)
	if err != nil {
		return err
	}
	return r.callbacks.OnExport(ctx, []byte(scene), SceneMIMEType)
}

func (r *Registry) uploadFile(ctx context.Context, args map[string]any) error {
	if r.callbacks.OnUpload == nil {
		return errors.New("host has no upload handler")
	}
	file, ok := args["file"].(Upload)
	if !ok {
		return errors.New("upload-file requires a file argument")
	}
	url, err := r.callbacks.OnUpload(ctx, file)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	source := ports.UploadSourceID(r.engine.Scene().Mode())
	return r.engine.Assets().AddAssetToSource(ctx, source, ports.Asset{
		ID:       url,
		Label:    file.Name,
		URI:      url,
		ThumbURI: url,
		MimeType: file.MimeType,
		Tags:     []string{"upload"},
	})
}
