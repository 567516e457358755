// Package pipeline prepares a ready engine: asset catalogs, plugins and editor chrome.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/moments/internal/logging"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/ports"
)

// Step names, in execution order.
const (
	StepDefaultAssets     = "default-assets"
	StepDemoAssets        = "demo-assets"
	StepStickers          = "stickers"
	StepBackgroundRemoval = "background-removal"
	StepUI                = "ui"
)

// Engine is the slice of the engine the pipeline configures.
type Engine interface {
	ports.PluginHost
	Scene() ports.SceneAPI
	Block() ports.BlockAPI
	Assets() ports.AssetAPI
	UI() ports.UIAPI
}

// StepResult is the outcome of one step.
type StepResult struct {
	Name string `json:"name"`
	Err  error  `json:"-"`
}

// Report lists every step that ran.
type Report struct {
	Steps []StepResult
}

// Failed returns the steps that returned an error.
func (r Report) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// OK reports whether every step succeeded.
func (r Report) OK() bool {
	return len(r.Failed()) == 0
}

// Pipeline runs the registration steps against one engine.
type Pipeline struct {
	engine    Engine
	cfg       Config
	plugin    ports.Plugin
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	sessionID string
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithLogger configures a logger for the Pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithHooks registers lifecycle hooks; sessionID tags the emitted events.
func WithHooks(hooks domain.LifecycleHooks, sessionID string) Option {
	return func(p *Pipeline) {
		p.hooks = hooks
		p.sessionID = sessionID
	}
}

// WithPlugin replaces the background-removal plugin.
func WithPlugin(plugin ports.Plugin) Option {
	return func(p *Pipeline) {
		p.plugin = plugin
	}
}

// New creates a Pipeline for engine.
func New(engine Engine, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine: engine,
		cfg:    cfg,
		plugin: BackgroundRemoval{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every step in order. A failing step does not stop later ones.
func (p *Pipeline) Run(ctx context.Context) Report {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StepDefaultAssets, p.defaultAssets},
		{StepDemoAssets, p.demoAssets},
		{StepStickers, p.stickers},
		{StepBackgroundRemoval, p.backgroundRemoval},
		{StepUI, p.customizeUI},
	}

	var report Report
	for _, s := range steps {
		err := p.safely(ctx, s.name, s.fn)
		if err != nil {
			p.logger.Warn("Pipeline step failed", "step", s.name, "err", err)
		} else {
			p.logger.Debug("Pipeline step done", "step", s.name)
		}
		report.Steps = append(report.Steps, StepResult{Name: s.name, Err: err})
		p.emit(ctx, s.name, err)
	}
	return report
}

func (p *Pipeline) safely(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked: %v", name, r)
		}
	}()
	return fn(ctx)
}

func (p *Pipeline) emit(ctx context.Context, step string, err error) {
	if p.hooks.OnPipeline == nil {
		return
	}
	p.hooks.OnPipeline(ctx, &domain.PipelineEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventPipeline, SessionID: p.sessionID},
		Step:      step,
		Err:       err,
	})
}

func (p *Pipeline) defaultAssets(ctx context.Context) error {
	return p.engine.Assets().AddDefaultAssetSources(ctx, ports.DefaultAssetConfig{
		BaseURL:          p.cfg.BaseURL,
		ExcludeSourceIDs: p.cfg.ExcludeSourceIDs,
	})
}

func (p *Pipeline) demoAssets(ctx context.Context) error {
	mode := p.engine.Scene().Mode()
	if mode == "" {
		return domain.ErrNoActiveScene
	}
	return p.engine.Assets().AddDemoAssetSources(ctx, ports.DemoAssetConfig{
		BaseURL:                p.cfg.BaseURL,
		SceneMode:              mode,
		WithUploadAssetSources: true,
	})
}

func (p *Pipeline) stickers(ctx context.Context) error {
	assets := p.engine.Assets()
	if err := assets.AddLocalSource(ctx, StickerSourceID); err != nil {
		return err
	}
	for _, s := range p.cfg.Stickers {
		if err := assets.AddAssetToSource(ctx, StickerSourceID, s); err != nil {
			return fmt.Errorf("sticker %s: %w", s.ID, err)
		}
	}
	return p.engine.UI().AddAssetLibraryEntry(ports.LibraryEntry{
		ID:        StickerLibraryEntryID,
		Title:     p.cfg.StickerTitle,
		SourceIDs: []string{StickerSourceID},
	})
}

func (p *Pipeline) backgroundRemoval(ctx context.Context) error {
	return p.engine.AddPlugin(ctx, p.plugin)
}

func (p *Pipeline) customizeUI(ctx context.Context) error {
	ui := p.engine.UI()
	if err := ui.SetDockOrder(p.cfg.DockOrder); err != nil {
		return fmt.Errorf("dock order: %w", err)
	}
	if err := ui.SetCanvasMenuOrder(p.cfg.CanvasMenuOrder); err != nil {
		return fmt.Errorf("canvas menu order: %w", err)
	}
	if err := ui.SetInspectorBar(p.cfg.InspectorBar); err != nil {
		return fmt.Errorf("inspector bar: %w", err)
	}
	if err := ui.MountComponent(BackgroundRemovalComponentID, "inspectorBar"); err != nil {
		return fmt.Errorf("background removal control: %w", err)
	}
	return nil
}

// InsertInitialMedia places url on the page of the active scene, sized to the
// full canvas and sent to the back. Video uses absolute size and position;
// images keep the engine's default placement. It returns
// domain.ErrNoActiveScene when the engine has no scene.
func (p *Pipeline) InsertInitialMedia(ctx context.Context, url string, media domain.MediaType) (ports.BlockID, error) {
	scene, ok := p.engine.Scene().Active()
	if !ok {
		p.logger.Warn("Initial media skipped", "url", url, "err", domain.ErrNoActiveScene)
		return 0, domain.ErrNoActiveScene
	}

	blocks := p.engine.Block()
	id, err := blocks.InsertMedia(ctx, scene, ports.MediaSpec{URL: url, Kind: media})
	if err != nil {
		return 0, fmt.Errorf("failed to insert initial media: %w", err)
	}

	size, err := p.engine.Scene().CanvasSize(scene)
	if err != nil {
		return id, fmt.Errorf("failed to read canvas size: %w", err)
	}
	mode := ports.LayoutAuto
	if media == domain.MediaVideo {
		mode = ports.LayoutAbsolute
	}
	if err := blocks.SetSize(id, size, mode); err != nil {
		return id, err
	}
	if media == domain.MediaVideo {
		if err := blocks.SetPosition(id, 0, 0, ports.LayoutAbsolute); err != nil {
			return id, err
		}
	}

	if err := blocks.SendToBack(id); err != nil {
		return id, err
	}
	return id, nil
}
