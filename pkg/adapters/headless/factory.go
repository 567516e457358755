// Package headless provides an in-memory Capability Engine.
//
// It keeps a scene graph, undo history, asset sources and editor chrome state
// without rendering anything. The server uses it as its runtime and the test
// suites use it as an observable double.
package headless

import (
	"context"
	"sync"

	"github.com/aretw0/moments/pkg/ports"
)

// Factory creates headless engines.
type Factory struct {
	mu        sync.Mutex
	video     bool
	gate      <-chan struct{}
	createErr error
	prepare   func(*Engine)
	engines   []*Engine
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithVideoSupport sets whether video scenes can be hosted. Defaults to true.
func WithVideoSupport(ok bool) FactoryOption {
	return func(f *Factory) { f.video = ok }
}

// WithCreateGate delays Create until gate is closed.
// Creation does not observe context cancellation while waiting, matching an
// engine whose instantiation cannot be aborted once started.
func WithCreateGate(gate <-chan struct{}) FactoryOption {
	return func(f *Factory) { f.gate = gate }
}

// WithCreateError makes every Create fail with err.
func WithCreateError(err error) FactoryOption {
	return func(f *Factory) { f.createErr = err }
}

// WithPrepare runs fn on each engine before it is returned, e.g. to inject failures.
func WithPrepare(fn func(*Engine)) FactoryOption {
	return func(f *Factory) { f.prepare = fn }
}

// NewFactory returns a Factory.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{video: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SupportsVideo implements ports.EngineFactory.
func (f *Factory) SupportsVideo() bool {
	return f.video
}

// Create implements ports.EngineFactory.
func (f *Factory) Create(ctx context.Context, anchor string, cfg ports.EngineConfig) (ports.Engine, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	e := newEngine(anchor, cfg)
	if f.prepare != nil {
		f.prepare(e)
	}
	f.mu.Lock()
	f.engines = append(f.engines, e)
	f.mu.Unlock()
	return e, nil
}

// Engines returns every engine created so far.
func (f *Factory) Engines() []*Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Engine(nil), f.engines...)
}

// Last returns the most recently created engine, or nil.
func (f *Factory) Last() *Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}
