package moments

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/moments/internal/logging"
	"github.com/aretw0/moments/pkg/device"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/draft"
	"github.com/aretw0/moments/pkg/pipeline"
	"github.com/aretw0/moments/pkg/ports"
	"github.com/aretw0/moments/pkg/session"
	"github.com/google/uuid"
)

// Editor is the high-level entry point of the library.
// It holds the engine factory, the draft storage and the policy shared by every Session.
type Editor struct {
	factory  ports.EngineFactory
	storage  ports.Storage
	repo     *draft.Repository
	guard    *session.Guard
	locker   ports.DistributedLocker
	notifier ports.Notifier
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	now      func() time.Time

	pipeline  pipeline.Config
	debounce  time.Duration
	threshold time.Duration
	license   string
	baseURL   string
	theme     domain.Theme

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option defines a functional option for configuring the Editor.
type Option func(*Editor)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Editor) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Editor) {
		e.hooks = hooks
	}
}

// WithPipelineConfig replaces the asset and UI setup applied to every engine.
func WithPipelineConfig(cfg pipeline.Config) Option {
	return func(e *Editor) {
		e.pipeline = cfg
	}
}

// WithAutosaveDebounce sets the quiet period before an autosave.
func WithAutosaveDebounce(d time.Duration) Option {
	return func(e *Editor) {
		e.debounce = d
	}
}

// WithStalenessThreshold sets the age after which drafts are discarded silently.
func WithStalenessThreshold(d time.Duration) Option {
	return func(e *Editor) {
		e.threshold = d
	}
}

// WithLicense sets the engine license passed on creation.
func WithLicense(license string) Option {
	return func(e *Editor) {
		e.license = license
	}
}

// WithBaseURL sets where the engine loads its assets from.
func WithBaseURL(url string) Option {
	return func(e *Editor) {
		e.baseURL = url
	}
}

// WithDefaultTheme sets the theme of sessions whose host supplies none.
func WithDefaultTheme(theme domain.Theme) Option {
	return func(e *Editor) {
		e.theme = theme
	}
}

// WithLocker serializes draft writes and session operations across instances.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Editor) {
		e.locker = locker
	}
}

// WithNotifier sets the default notification sink for hosts without one.
func WithNotifier(n ports.Notifier) Option {
	return func(e *Editor) {
		e.notifier = n
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Editor) {
		e.now = now
	}
}

// New creates an Editor creating engines with factory and persisting drafts in storage.
func New(factory ports.EngineFactory, storage ports.Storage, opts ...Option) *Editor {
	e := &Editor{
		factory:   factory,
		storage:   storage,
		logger:    logging.NewNop(),
		now:       time.Now,
		pipeline:  pipeline.DefaultConfig(),
		debounce:  domain.DefaultAutosaveDebounce,
		threshold: domain.DefaultStalenessThreshold,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pipeline.BaseURL == "" {
		e.pipeline.BaseURL = e.baseURL
	}

	repoOpts := []draft.Option{draft.WithLogger(e.logger), draft.WithClock(e.now)}
	guardOpts := []session.GuardOption{session.WithGuardLogger(e.logger)}
	if e.locker != nil {
		repoOpts = append(repoOpts, draft.WithLocker(e.locker))
		guardOpts = append(guardOpts, session.WithLocker(e.locker))
	}
	e.repo = draft.NewRepository(storage, repoOpts...)
	e.guard = session.NewGuard(guardOpts...)
	return e
}

// Repository returns the draft repository shared by every session.
func (e *Editor) Repository() *draft.Repository {
	return e.repo
}

// Storage returns the underlying storage.
func (e *Editor) Storage() ports.Storage {
	return e.storage
}

// NewSession registers a session for host without starting it.
func (e *Editor) NewSession(host Host, env device.Environment) *Session {
	s := newSession(e, uuid.NewString(), host, env)
	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()
	return s
}

// Open creates and starts a session.
func (e *Editor) Open(ctx context.Context, host Host, env device.Environment) (*Session, error) {
	s := e.NewSession(host, env)
	if err := s.Start(ctx); err != nil {
		return s, err
	}
	return s, nil
}

// Session returns a live session by ID.
func (e *Editor) Session(id string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	return s, ok
}

// Sessions returns every live session, ordered by ID.
func (e *Editor) Sessions() []*Session {
	e.mu.Lock()
	out := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Shutdown saves and disposes every live session.
func (e *Editor) Shutdown(ctx context.Context) {
	for _, s := range e.Sessions() {
		if s.State() == domain.StateReady {
			if err := s.Hide(ctx); err != nil {
				e.logger.Warn("Final save failed", "session_id", s.id, "err", err)
			}
		}
		s.Dispose()
	}
}

func (e *Editor) forget(id string) {
	e.mu.Lock()
	delete(e.sessions, id)
	e.mu.Unlock()
}
