package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/moments/internal/logging"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/ports"
)

// CreateParams describes the engine a Controller should bring up.
type CreateParams struct {
	MediaType domain.MediaType
	UserID    string
	Role      string
	Profile   domain.DeviceProfile
	Theme     domain.Theme
	Anchor    string
	License   string
	BaseURL   string
}

// Controller owns one engine instance and its lifecycle state machine.
type Controller struct {
	factory   ports.EngineFactory
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	sessionID string
	now       func() time.Time

	mu        sync.Mutex
	state     domain.SessionState
	media     domain.MediaType
	err       *domain.SessionError
	engine    ports.Engine
	teardowns []func()
}

// Option configures the Controller.
type Option func(*Controller)

// WithLogger configures a logger for the Controller.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithHooks registers lifecycle hooks; sessionID tags the emitted events.
func WithHooks(hooks domain.LifecycleHooks, sessionID string) Option {
	return func(c *Controller) {
		c.hooks = hooks
		c.sessionID = sessionID
	}
}

// WithClock overrides the time source used for events.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates an uninitialized Controller.
func NewController(factory ports.EngineFactory, opts ...Option) *Controller {
	c := &Controller{
		factory: factory,
		logger:  logging.NewNop(),
		now:     time.Now,
		state:   domain.StateUninitialized,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create instantiates the engine and its single scene.
//
// On failure the Controller moves to StateError and the returned error is a
// *domain.SessionError. If Dispose is called while the engine is still being
// created, the engine is released as soon as creation returns and Create
// reports domain.ErrSessionDisposed.
func (c *Controller) Create(ctx context.Context, p CreateParams) error {
	c.mu.Lock()
	if c.state != domain.StateUninitialized {
		st := c.state
		c.mu.Unlock()
		if st == domain.StateDisposed {
			return domain.ErrSessionDisposed
		}
		return fmt.Errorf("%w: create from %s", domain.ErrInvalidTransition, st)
	}
	c.state = domain.StateInitializing
	c.media = p.MediaType
	c.mu.Unlock()
	c.emit(ctx, domain.StateUninitialized, domain.StateInitializing)

	if p.MediaType == domain.MediaVideo && !c.factory.SupportsVideo() {
		return c.fail(ctx, domain.KindVideoUnavailable, domain.ErrVideoUnsupported)
	}

	eng, err := c.instantiate(ctx, p)
	if err != nil {
		return c.fail(ctx, domain.KindStartFailed, err)
	}

	c.mu.Lock()
	if c.state == domain.StateDisposed {
		c.mu.Unlock()
		c.logger.Info("Session disposed during engine creation, releasing engine")
		c.release(eng)
		return domain.ErrSessionDisposed
	}
	c.engine = eng
	c.mu.Unlock()

	if err := c.configure(ctx, eng, p); err != nil {
		c.mu.Lock()
		owned := c.engine == eng
		if owned {
			c.engine = nil
		}
		disposed := c.state == domain.StateDisposed
		c.mu.Unlock()
		if owned {
			c.release(eng)
		}
		if disposed {
			return domain.ErrSessionDisposed
		}
		return c.fail(ctx, domain.KindStartFailed, err)
	}

	c.mu.Lock()
	if c.state != domain.StateInitializing {
		c.mu.Unlock()
		return domain.ErrSessionDisposed
	}
	c.state = domain.StateReady
	c.mu.Unlock()
	c.emit(ctx, domain.StateInitializing, domain.StateReady)
	c.logger.Info("Engine ready", "media_type", p.MediaType, "max_raster", p.Profile.MaxRasterDimension)
	return nil
}

func (c *Controller) instantiate(ctx context.Context, p CreateParams) (eng ports.Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			eng, err = nil, fmt.Errorf("engine creation panicked: %v", r)
		}
	}()

	maxRaster := p.Profile.MaxRasterDimension
	if maxRaster <= 0 {
		maxRaster = domain.MobileMaxRasterDimension
	}
	eng, err = c.factory.Create(ctx, p.Anchor, ports.EngineConfig{
		License:            p.License,
		BaseURL:            p.BaseURL,
		UserID:             p.UserID,
		Role:               p.Role,
		MaxRasterDimension: maxRaster,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return eng, nil
}

func (c *Controller) configure(ctx context.Context, eng ports.Engine, p CreateParams) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine setup panicked: %v", r)
		}
	}()

	if err := eng.ApplyTheme(ctx, p.Theme); err != nil {
		return fmt.Errorf("failed to apply theme: %w", err)
	}

	switch p.MediaType {
	case domain.MediaVideo:
		_, err = eng.Scene().CreateVideoScene(ctx)
	default:
		_, err = eng.Scene().CreateImageScene(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s scene: %w", p.MediaType, err)
	}
	return nil
}

func (c *Controller) fail(ctx context.Context, kind domain.ErrorKind, cause error) error {
	serr := domain.NewSessionError(kind, cause)

	c.mu.Lock()
	from := c.state
	if !domain.CanTransition(from, domain.StateError) {
		c.mu.Unlock()
		if from == domain.StateDisposed {
			return domain.ErrSessionDisposed
		}
		return serr
	}
	c.state = domain.StateError
	c.err = serr
	c.mu.Unlock()

	c.logger.Error("Session failed", "kind", kind, "err", cause)
	c.emit(ctx, from, domain.StateError)
	return serr
}

// Dispose releases every registered teardown, newest first, then the engine.
// It is idempotent and valid from any state.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.state == domain.StateDisposed {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = domain.StateDisposed
	eng := c.engine
	c.engine = nil
	teardowns := c.teardowns
	c.teardowns = nil
	c.mu.Unlock()

	for i := len(teardowns) - 1; i >= 0; i-- {
		c.runTeardown(teardowns[i])
	}
	if eng != nil {
		c.release(eng)
	}
	c.emit(context.Background(), from, domain.StateDisposed)
}

// Defer registers fn to run on Dispose. After disposal fn runs immediately.
func (c *Controller) Defer(fn func()) {
	c.mu.Lock()
	if c.state == domain.StateDisposed {
		c.mu.Unlock()
		c.runTeardown(fn)
		return
	}
	c.teardowns = append(c.teardowns, fn)
	c.mu.Unlock()
}

// Subscribe calls subscribe with the ready engine and registers the returned
// unsubscribe for Dispose. Both happen under the controller lock, so a concurrent
// Dispose either runs first (and subscribe is never called) or releases the
// subscription with the engine.
func (c *Controller) Subscribe(subscribe func(ports.Engine) func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.state == domain.StateDisposed:
		return domain.ErrSessionDisposed
	case c.state != domain.StateReady || c.engine == nil:
		return domain.ErrNotStarted
	}
	if unsubscribe := subscribe(c.engine); unsubscribe != nil {
		c.teardowns = append(c.teardowns, unsubscribe)
	}
	return nil
}

func (c *Controller) runTeardown(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Teardown panicked", "panic", r)
		}
	}()
	fn()
}

func (c *Controller) release(eng ports.Engine) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Engine dispose panicked", "panic", r)
		}
	}()
	eng.Dispose()
}

// State returns the current lifecycle state.
func (c *Controller) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure that moved the Controller to StateError, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return nil
	}
	return c.err
}

// Engine returns the engine while the Controller is ready.
func (c *Controller) Engine() (ports.Engine, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateReady || c.engine == nil {
		return nil, false
	}
	return c.engine, true
}

// MediaType returns the media type requested by Create.
func (c *Controller) MediaType() domain.MediaType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.media
}

func (c *Controller) emit(ctx context.Context, from, to domain.SessionState) {
	if c.hooks.OnStateChange == nil {
		return
	}
	c.hooks.OnStateChange(ctx, &domain.StateEvent{
		EventBase: domain.EventBase{
			Timestamp: c.now(),
			Type:      domain.EventStateChange,
			SessionID: c.sessionID,
		},
		MediaType: c.MediaType(),
		From:      from,
		To:        to,
	})
}
