// Package autosave persists the scene of a session in the background.
//
// Saves are debounced after mutations, deduplicated by content hash and
// serialized through a single in-flight guard, so writes to a slot are
// totally ordered.
package autosave

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/moments/internal/logging"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/draft"
	"github.com/aretw0/moments/pkg/ports"
)

// Status is the observable save state of a session.
type Status struct {
	HasUnsavedChanges bool      `json:"has_unsaved_changes"`
	LastSaved         time.Time `json:"last_saved,omitempty"`
	IsSaving          bool      `json:"is_saving"`
}

// Scheduler drives autosave for one draft slot.
type Scheduler struct {
	repo      *draft.Repository
	key       domain.DraftKey
	scene     ports.SceneSerializer
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	sessionID string
	now       func() time.Time
	debounce  *debouncer

	// write is the single in-flight guard.
	write sync.Mutex
	timed sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	lastHash  string
	gen       uint64
	status    Status
	listeners map[int]func(Status)
	nextID    int
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithDebounce sets the quiet period after the last change. Non-positive values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.debounce = newDebouncer(d)
		}
	}
}

// WithLogger configures a logger for the Scheduler.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithHooks registers lifecycle hooks; sessionID tags the emitted events.
func WithHooks(hooks domain.LifecycleHooks, sessionID string) Option {
	return func(s *Scheduler) {
		s.hooks = hooks
		s.sessionID = sessionID
	}
}

// WithClock overrides the time source used for events.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates a Scheduler that saves scene into the slot key of repo.
func New(repo *draft.Repository, key domain.DraftKey, scene ports.SceneSerializer, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:      repo,
		key:       key,
		scene:     scene,
		logger:    logging.NewNop(),
		now:       time.Now,
		debounce:  newDebouncer(domain.DefaultAutosaveDebounce),
		listeners: make(map[int]func(Status)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start arms the scheduler. The last-written hash is seeded from storage so an
// unchanged scene is not rewritten.
func (s *Scheduler) Start(ctx context.Context) error {
	hash, err := s.repo.StoredHash(ctx, s.key)
	if err != nil {
		s.logger.Warn("Failed to read stored draft hash", "key", s.key.String(), "err", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return domain.ErrSessionDisposed
	}
	s.lastHash = hash
	s.started = true
	return nil
}

// Stop cancels the pending debounced save and waits for an in-flight timed save.
// Later triggers are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.debounce.Cancel()
	s.timed.Wait()
}

// NotifyChange records a scene mutation and (re)arms the debounce timer.
func (s *Scheduler) NotifyChange() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.gen++
	changed := !s.status.HasUnsavedChanges
	s.status.HasUnsavedChanges = true
	st := s.status
	s.mu.Unlock()

	if changed {
		s.publish(st)
	}
	s.debounce.Debounce(s.fire)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.timed.Add(1)
	s.mu.Unlock()
	defer s.timed.Done()

	if _, err := s.save(context.Background(), domain.TriggerAutoSave); err != nil {
		s.logger.Warn("Autosave failed", "key", s.key.String(), "err", err)
	}
}

// Save writes the scene immediately as a manual save.
func (s *Scheduler) Save(ctx context.Context) (domain.AutosaveOutcome, error) {
	if !s.running() {
		return "", domain.ErrNotStarted
	}
	s.debounce.Cancel()
	return s.save(ctx, domain.TriggerManualSave)
}

// SaveBeforeUnload is the best-effort save performed when the page is hidden.
func (s *Scheduler) SaveBeforeUnload(ctx context.Context) (domain.AutosaveOutcome, error) {
	if !s.running() {
		return "", domain.ErrNotStarted
	}
	s.debounce.Cancel()
	return s.save(ctx, domain.TriggerBeforeUnload)
}

// ClearDrafts deletes the stored record and all its sidecars.
func (s *Scheduler) ClearDrafts(ctx context.Context) error {
	s.write.Lock()
	defer s.write.Unlock()

	if err := s.repo.Delete(ctx, s.key); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastHash = ""
	s.status.LastSaved = time.Time{}
	st := s.status
	s.mu.Unlock()
	s.publish(st)
	return nil
}

// Status returns the current save state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// OnStatus registers fn for status changes. The returned func unregisters it.
func (s *Scheduler) OnStatus(fn func(Status)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Scheduler) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

func (s *Scheduler) save(ctx context.Context, trigger domain.SaveTrigger) (outcome domain.AutosaveOutcome, err error) {
	s.write.Lock()
	defer s.write.Unlock()

	s.mu.Lock()
	gen := s.gen
	s.status.IsSaving = true
	st := s.status
	s.mu.Unlock()
	s.publish(st)

	var bytes int
	defer func() {
		s.mu.Lock()
		s.status.IsSaving = false
		st := s.status
		s.mu.Unlock()
		s.publish(st)
		s.emit(ctx, trigger, outcome, bytes, err)
	}()

	content, err := s.scene.SaveToString(ctx)
	if err != nil {
		return domain.AutosaveFailed, fmt.Errorf("failed to serialize scene: %w", err)
	}
	bytes = len(content)
	hash := domain.HashContent(content)

	s.mu.Lock()
	unchanged := hash == s.lastHash
	if unchanged && s.gen == gen {
		s.status.HasUnsavedChanges = false
	}
	s.mu.Unlock()
	if unchanged {
		s.logger.Debug("Draft unchanged, skipping write", "key", s.key.String(), "trigger", trigger)
		return domain.AutosaveSkipped, nil
	}

	rec, err := s.repo.Write(ctx, s.key, content, trigger)
	if err != nil {
		return domain.AutosaveFailed, err
	}

	s.mu.Lock()
	s.lastHash = rec.ContentHash
	s.status.LastSaved = rec.SavedAt
	if s.gen == gen {
		s.status.HasUnsavedChanges = false
	}
	s.mu.Unlock()
	s.logger.Debug("Draft saved", "key", s.key.String(), "trigger", trigger, "bytes", rec.ByteSize)
	return domain.AutosaveWritten, nil
}

func (s *Scheduler) publish(st Status) {
	s.mu.Lock()
	fns := make([]func(Status), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func (s *Scheduler) emit(ctx context.Context, trigger domain.SaveTrigger, outcome domain.AutosaveOutcome, bytes int, err error) {
	if s.hooks.OnAutosave == nil {
		return
	}
	s.hooks.OnAutosave(ctx, &domain.AutosaveEvent{
		EventBase: domain.EventBase{
			Timestamp: s.now(),
			Type:      domain.EventAutosave,
			SessionID: s.sessionID,
		},
		Trigger: trigger,
		Outcome: outcome,
		Bytes:   bytes,
		Err:     err,
	})
}
