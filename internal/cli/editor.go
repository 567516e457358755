package cli

import (
	"log/slog"

	"github.com/aretw0/moments"
	"github.com/aretw0/moments/internal/config"
	"github.com/aretw0/moments/pkg/adapters/headless"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/ports"
)

// NewEditor creates an Editor over backend with the configured policy.
// A nil factory selects the in-memory headless engine.
func NewEditor(cfg config.Config, backend *Backend, factory ports.EngineFactory, logger *slog.Logger, hooks domain.LifecycleHooks) (*moments.Editor, error) {
	theme, err := cfg.ThemeConfig()
	if err != nil {
		return nil, err
	}
	if factory == nil {
		factory = headless.NewFactory(headless.WithVideoSupport(cfg.Engine.Video))
	}
	opts := []moments.Option{
		moments.WithLogger(logger),
		moments.WithLifecycleHooks(hooks),
		moments.WithPipelineConfig(cfg.Pipeline),
		moments.WithAutosaveDebounce(cfg.Autosave.Debounce),
		moments.WithStalenessThreshold(cfg.Recovery.StalenessThreshold),
		moments.WithLicense(cfg.Engine.License),
		moments.WithBaseURL(cfg.Engine.BaseURL),
		moments.WithDefaultTheme(theme),
	}
	if backend.Locker != nil {
		opts = append(opts, moments.WithLocker(backend.Locker))
	}
	return moments.New(factory, backend.Storage, opts...), nil
}
