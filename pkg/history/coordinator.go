// Package history mirrors the engine's undo/redo availability for the host.
package history

import (
	"log/slog"
	"sync"

	"github.com/aretw0/moments/internal/logging"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/ports"
)

// Coordinator tracks HistoryState and forwards undo/redo to the engine.
type Coordinator struct {
	history ports.HistoryAPI
	events  ports.EventAPI
	logger  *slog.Logger

	mu        sync.Mutex
	state     domain.HistoryState
	attached  bool
	unsubs    []ports.Unsubscribe
	listeners map[int]func(domain.HistoryState)
	nextID    int
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLogger configures a logger for the Coordinator.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New creates a detached Coordinator.
func New(history ports.HistoryAPI, events ports.EventAPI, opts ...Option) *Coordinator {
	c := &Coordinator{
		history:   history,
		events:    events,
		logger:    logging.NewNop(),
		listeners: make(map[int]func(domain.HistoryState)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach subscribes to history updates and to block events of every block.
// Attaching twice is a no-op.
func (c *Coordinator) Attach() {
	c.mu.Lock()
	if c.attached {
		c.mu.Unlock()
		return
	}
	c.attached = true
	c.mu.Unlock()

	onHistory := c.history.OnUpdated(c.refresh)
	onBlocks := c.events.Subscribe(nil, func([]ports.BlockEvent) { c.refresh() })

	c.mu.Lock()
	c.unsubs = append(c.unsubs, onHistory, onBlocks)
	c.mu.Unlock()

	c.refresh()
}

// Detach releases both subscriptions exactly once.
func (c *Coordinator) Detach() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// State returns the last computed availability.
func (c *Coordinator) State() domain.HistoryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnChange registers fn for availability changes. The returned func unregisters it.
func (c *Coordinator) OnChange(fn func(domain.HistoryState)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Undo reverts the last step. It does nothing when undo is unavailable.
func (c *Coordinator) Undo() {
	if !c.history.CanUndo() {
		return
	}
	if err := c.history.Undo(); err != nil {
		c.logger.Warn("Undo failed", "err", err)
	}
	c.refresh()
}

// Redo reapplies the last undone step. It does nothing when redo is unavailable.
func (c *Coordinator) Redo() {
	if !c.history.CanRedo() {
		return
	}
	if err := c.history.Redo(); err != nil {
		c.logger.Warn("Redo failed", "err", err)
	}
	c.refresh()
}

func (c *Coordinator) refresh() {
	next := domain.HistoryState{CanUndo: c.history.CanUndo(), CanRedo: c.history.CanRedo()}

	c.mu.Lock()
	changed := next != c.state
	c.state = next
	var fns []func(domain.HistoryState)
	if changed {
		for _, fn := range c.listeners {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}
