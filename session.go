package moments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/moments/pkg/actions"
	"github.com/aretw0/moments/pkg/autosave"
	"github.com/aretw0/moments/pkg/device"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/history"
	"github.com/aretw0/moments/pkg/pipeline"
	"github.com/aretw0/moments/pkg/ports"
	"github.com/aretw0/moments/pkg/recovery"
	"github.com/aretw0/moments/pkg/session"
)

// maxNotifications bounds the per-session notification backlog.
const maxNotifications = 50

// Host is what the embedding application supplies for one editor mount.
type Host struct {
	UserID          string
	Role            string
	MediaType       domain.MediaType
	InitialMediaURL string
	Theme           domain.Theme
	Anchor          string

	// Actions are the host handlers for export, save, share and upload.
	Actions actions.Callbacks

	// OnClose is called by Session.Close after disposal.
	OnClose func(ctx context.Context)

	// Prompter answers the draft recovery prompt. Defaults to a
	// recovery.ChannelPrompter resolved through Session.ResolveRecovery.
	Prompter ports.RecoveryPrompter

	// Notifier receives user notifications in addition to the session backlog.
	Notifier ports.Notifier
}

// Session is one mounted editor.
type Session struct {
	id     string
	editor *Editor
	host   Host
	env    device.Environment
	key    domain.DraftKey
	logger *slog.Logger

	controller *session.Controller
	prompter   ports.RecoveryPrompter
	channel    *recovery.ChannelPrompter

	startOnce sync.Once
	startErr  error

	mu            sync.Mutex
	started       bool
	profile       domain.DeviceProfile
	report        pipeline.Report
	registry      *actions.Registry
	coordinator   *history.Coordinator
	scheduler     *autosave.Scheduler
	recovery      *recovery.Manager
	notifications []domain.Notification
}

func newSession(e *Editor, id string, host Host, env device.Environment) *Session {
	if host.MediaType == "" {
		host.MediaType = domain.MediaImage
	}
	if host.Anchor == "" {
		host.Anchor = "#moments-editor"
	}
	if host.Theme.IsZero() {
		host.Theme = e.theme
	}
	s := &Session{
		id:     id,
		editor: e,
		host:   host,
		env:    env,
		key:    domain.DraftKey{UserID: host.UserID, MediaType: host.MediaType},
		logger: e.logger.With("session_id", id, "media_type", host.MediaType.String()),
	}
	s.controller = session.NewController(e.factory,
		session.WithLogger(s.logger),
		session.WithHooks(e.hooks, id),
		session.WithClock(e.now),
	)
	s.prompter = host.Prompter
	if s.prompter == nil {
		s.channel = recovery.NewChannelPrompter()
		s.prompter = s.channel
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Host returns the host configuration.
func (s *Session) Host() Host { return s.host }

// DraftKey returns the slot this session saves into.
func (s *Session) DraftKey() domain.DraftKey { return s.key }

// State returns the lifecycle state of the engine.
// The engine being ready is reported as initializing until every component is wired.
func (s *Session) State() domain.SessionState {
	st := s.controller.State()
	if st == domain.StateReady {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.started {
			return domain.StateInitializing
		}
	}
	return st
}

// Err returns the failure that stopped the session, if any.
func (s *Session) Err() error { return s.controller.Err() }

// Profile returns the device profile resolved on Start.
func (s *Session) Profile() domain.DeviceProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Report returns the outcome of the asset and plugin pipeline.
func (s *Session) Report() pipeline.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Start brings the engine up and wires every component.
// It blocks while the recovery prompt is pending. Only the first call has an effect.
func (s *Session) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		s.startErr = s.start(ctx)
	})
	return s.startErr
}

func (s *Session) start(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	s.controller.Defer(cancel)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Session start panicked", "panic", r)
			err = domain.NewSessionError(domain.KindStartFailed, fmt.Errorf("panic: %v", r))
			s.controller.Dispose()
		}
	}()

	e := s.editor
	profile := device.Resolve(s.env)
	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()

	if err := s.controller.Create(ctx, session.CreateParams{
		MediaType: s.host.MediaType,
		UserID:    s.host.UserID,
		Role:      s.host.Role,
		Profile:   profile,
		Theme:     s.host.Theme,
		Anchor:    s.host.Anchor,
		License:   e.license,
		BaseURL:   e.baseURL,
	}); err != nil {
		return err
	}
	eng, ok := s.controller.Engine()
	if !ok {
		return domain.ErrSessionDisposed
	}

	p := pipeline.New(eng, e.pipeline, pipeline.WithLogger(s.logger), pipeline.WithHooks(e.hooks, s.id))
	report := p.Run(ctx)
	if s.host.InitialMediaURL != "" {
		if _, err := p.InsertInitialMedia(ctx, s.host.InitialMediaURL, s.host.MediaType); err != nil {
			s.logger.Warn("Failed to insert initial media", "url", s.host.InitialMediaURL, "err", err)
		}
	}

	scheduler := autosave.New(e.repo, s.key, eng.Scene(),
		autosave.WithDebounce(e.debounce),
		autosave.WithLogger(s.logger),
		autosave.WithHooks(e.hooks, s.id),
		autosave.WithClock(e.now),
	)

	registry := actions.New(eng, s.host.MediaType, scheduler, s.host.Actions,
		actions.WithLogger(s.logger),
		actions.WithNotifier(ports.NotifierFunc(s.notify)),
		actions.WithHooks(e.hooks, s.id),
	)
	if err := registry.Register(); err != nil {
		s.logger.Warn("Failed to register actions", "err", err)
	}

	coordinator := history.New(eng.History(), eng.Events(), history.WithLogger(s.logger))
	coordinator.Attach()
	s.controller.Defer(coordinator.Detach)

	manager := recovery.NewManager(e.repo, s.key, eng.Scene(), s.prompter,
		recovery.WithThreshold(e.threshold),
		recovery.WithClock(e.now),
		recovery.WithLogger(s.logger),
		recovery.WithHooks(e.hooks, s.id),
	)

	s.mu.Lock()
	s.report = report
	s.scheduler = scheduler
	s.registry = registry
	s.coordinator = coordinator
	s.recovery = manager
	s.mu.Unlock()

	if _, err := manager.Check(ctx); err != nil {
		if s.controller.State() == domain.StateDisposed {
			return domain.ErrSessionDisposed
		}
		s.logger.Warn("Draft recovery failed", "err", err)
	}

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	s.controller.Defer(scheduler.Stop)

	err = s.controller.Subscribe(func(eng ports.Engine) func() {
		return eng.Events().Subscribe(nil, func([]ports.BlockEvent) {
			scheduler.NotifyChange()
		})
	})
	if err != nil {
		return domain.ErrSessionDisposed
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.logger.Info("Session started", "user_id", s.host.UserID, "mobile", profile.Mobile)
	return nil
}

func (s *Session) notify(ctx context.Context, n domain.Notification) {
	s.mu.Lock()
	s.notifications = append(s.notifications, n)
	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[len(s.notifications)-maxNotifications:]
	}
	s.mu.Unlock()

	switch {
	case s.host.Notifier != nil:
		s.host.Notifier.Notify(ctx, n)
	case s.editor.notifier != nil:
		s.editor.notifier.Notify(ctx, n)
	}
}

// Notifications returns and clears the notification backlog.
func (s *Session) Notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notifications
	s.notifications = nil
	return out
}

func (s *Session) components() (*actions.Registry, *history.Coordinator, *autosave.Scheduler, *recovery.Manager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry, s.coordinator, s.scheduler, s.recovery
}

// ready returns ErrNotStarted or ErrSessionDisposed when the engine cannot be used.
func (s *Session) ready() error {
	switch s.State() {
	case domain.StateReady:
		return nil
	case domain.StateDisposed:
		return domain.ErrSessionDisposed
	case domain.StateError:
		return s.controller.Err()
	default:
		return domain.ErrNotStarted
	}
}

// withEngine serializes fn with the other operations of the session.
func (s *Session) withEngine(ctx context.Context, fn func(context.Context) error) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.editor.guard.WithLock(ctx, s.id, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Session operation panicked", "panic", r)
				err = fmt.Errorf("operation panicked: %v", r)
			}
		}()
		return fn(ctx)
	})
}

// History returns undo/redo availability.
func (s *Session) History() domain.HistoryState {
	_, c, _, _ := s.components()
	if c == nil {
		return domain.HistoryState{}
	}
	return c.State()
}

// Defer registers fn to run when the session is disposed. On a disposed
// session fn runs immediately.
func (s *Session) Defer(fn func()) {
	s.controller.Defer(fn)
}

// OnHistoryChange registers fn for availability changes once the session has started.
// The returned func unregisters it.
func (s *Session) OnHistoryChange(fn func(domain.HistoryState)) (func(), error) {
	_, c, _, _ := s.components()
	if c == nil {
		return nil, domain.ErrNotStarted
	}
	return c.OnChange(fn), nil
}

// Undo reverts the last step. Unavailable undo is a no-op.
func (s *Session) Undo(ctx context.Context) error {
	return s.withEngine(ctx, func(context.Context) error {
		_, c, _, _ := s.components()
		c.Undo()
		return nil
	})
}

// Redo reapplies the last undone step. Unavailable redo is a no-op.
func (s *Session) Redo(ctx context.Context) error {
	return s.withEngine(ctx, func(context.Context) error {
		_, c, _, _ := s.components()
		c.Redo()
		return nil
	})
}

// RunAction triggers a named editor action.
func (s *Session) RunAction(ctx context.Context, name string, args map[string]any) error {
	return s.withEngine(ctx, func(ctx context.Context) error {
		r, _, _, _ := s.components()
		return r.Run(ctx, name, args)
	})
}

// Save writes the scene as a manual save.
func (s *Session) Save(ctx context.Context) (domain.AutosaveOutcome, error) {
	var out domain.AutosaveOutcome
	err := s.withEngine(ctx, func(ctx context.Context) error {
		_, _, sch, _ := s.components()
		var err error
		out, err = sch.Save(ctx)
		return err
	})
	return out, err
}

// Hide performs the best-effort save of a page being hidden or unloaded.
func (s *Session) Hide(ctx context.Context) error {
	return s.withEngine(ctx, func(ctx context.Context) error {
		_, _, sch, _ := s.components()
		_, err := sch.SaveBeforeUnload(ctx)
		return err
	})
}

// Autosave returns the save state. The zero Status is returned before Start.
func (s *Session) Autosave() autosave.Status {
	_, _, sch, _ := s.components()
	if sch == nil {
		return autosave.Status{}
	}
	return sch.Status()
}

// Recovery returns the draft recovery decision.
func (s *Session) Recovery() domain.RecoveryDecision {
	_, _, _, m := s.components()
	if m == nil {
		return domain.RecoveryNotApplicable
	}
	return m.Decision()
}

// PendingDraft returns the draft awaiting a recovery decision, if any.
func (s *Session) PendingDraft() (domain.DraftRecord, bool) {
	if s.channel == nil {
		return domain.DraftRecord{}, false
	}
	return s.channel.Pending()
}

// ResolveRecovery answers the pending recovery prompt.
// It fails when the host supplied its own prompter.
func (s *Session) ResolveRecovery(choice domain.RecoveryChoice) error {
	if s.channel == nil {
		return errors.New("session uses a host recovery prompter")
	}
	return s.channel.Resolve(choice)
}

// ClearDrafts removes the saved draft of this session's slot.
func (s *Session) ClearDrafts(ctx context.Context) error {
	_, _, sch, _ := s.components()
	if sch != nil {
		return sch.ClearDrafts(ctx)
	}
	return s.editor.repo.Delete(ctx, s.key)
}

// Dispose releases every subscription and the engine. It is idempotent.
func (s *Session) Dispose() {
	s.controller.Dispose()
	s.editor.forget(s.id)
}

// Close disposes the session and notifies the host.
func (s *Session) Close(ctx context.Context) {
	first := s.controller.State() != domain.StateDisposed
	s.Dispose()
	if first && s.host.OnClose != nil {
		s.host.OnClose(ctx)
	}
}
