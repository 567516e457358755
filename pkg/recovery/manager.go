// Package recovery decides, once per session, what to do with a previously saved draft.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/moments/internal/logging"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/draft"
	"github.com/aretw0/moments/pkg/ports"
)

// Manager runs the recovery check for one draft slot.
type Manager struct {
	repo      *draft.Repository
	key       domain.DraftKey
	loader    ports.SceneLoader
	prompter  ports.RecoveryPrompter
	threshold time.Duration
	now       func() time.Time
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	sessionID string

	run      sync.Mutex
	mu       sync.Mutex
	checked  bool
	decision domain.RecoveryDecision
}

// Option configures the Manager.
type Option func(*Manager)

// WithThreshold sets the staleness threshold. Non-positive values are ignored.
func WithThreshold(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.threshold = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithHooks registers lifecycle hooks; sessionID tags the emitted events.
func WithHooks(hooks domain.LifecycleHooks, sessionID string) Option {
	return func(m *Manager) {
		m.hooks = hooks
		m.sessionID = sessionID
	}
}

// NewManager creates a Manager for key.
func NewManager(repo *draft.Repository, key domain.DraftKey, loader ports.SceneLoader, prompter ports.RecoveryPrompter, opts ...Option) *Manager {
	m := &Manager{
		repo:      repo,
		key:       key,
		loader:    loader,
		prompter:  prompter,
		threshold: domain.DefaultStalenessThreshold,
		now:       time.Now,
		logger:    logging.NewNop(),
		decision:  domain.RecoveryNotApplicable,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Decision returns the current decision.
func (m *Manager) Decision() domain.RecoveryDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decision
}

// Check inspects the slot and, for a fresh draft, prompts the user exactly once.
// Later calls return the decision of the first without touching storage.
func (m *Manager) Check(ctx context.Context) (domain.RecoveryDecision, error) {
	m.run.Lock()
	defer m.run.Unlock()

	m.mu.Lock()
	if m.checked {
		d := m.decision
		m.mu.Unlock()
		return d, nil
	}
	m.checked = true
	m.mu.Unlock()

	rec, err := m.repo.Load(ctx, m.key)
	if err != nil {
		if errors.Is(err, domain.ErrDraftNotFound) {
			m.set(ctx, domain.RecoveryNotApplicable)
			return domain.RecoveryNotApplicable, nil
		}
		m.set(ctx, domain.RecoveryNotApplicable)
		return domain.RecoveryNotApplicable, fmt.Errorf("recovery check failed: %w", err)
	}

	if m.stale(rec) {
		m.logger.Info("Discarding stale draft", "key", m.key.String(), "saved_at", rec.SavedAt)
		if err := m.repo.Delete(ctx, m.key); err != nil {
			m.logger.Warn("Failed to delete stale draft", "key", m.key.String(), "err", err)
		}
		m.set(ctx, domain.RecoveryNotApplicable)
		return domain.RecoveryNotApplicable, nil
	}

	m.set(ctx, domain.RecoveryPending)
	choice, err := m.prompter.Prompt(ctx, *rec)
	if err != nil {
		m.set(ctx, domain.RecoveryNotApplicable)
		return domain.RecoveryNotApplicable, fmt.Errorf("recovery prompt failed: %w", err)
	}

	switch choice {
	case domain.ChoiceRecover:
		if err := m.loader.LoadFromString(ctx, rec.SceneContent); err != nil {
			m.set(ctx, domain.RecoveryNotApplicable)
			return domain.RecoveryNotApplicable, fmt.Errorf("failed to load recovered draft: %w", err)
		}
		m.set(ctx, domain.RecoveryRecovered)
		return domain.RecoveryRecovered, nil
	case domain.ChoiceDiscard:
		m.set(ctx, domain.RecoveryDiscarded)
		if err := m.repo.Delete(ctx, m.key); err != nil {
			return domain.RecoveryDiscarded, fmt.Errorf("failed to discard draft: %w", err)
		}
		return domain.RecoveryDiscarded, nil
	default:
		m.set(ctx, domain.RecoveryNotApplicable)
		return domain.RecoveryNotApplicable, fmt.Errorf("unknown recovery choice %q", choice)
	}
}

func (m *Manager) stale(rec *domain.DraftRecord) bool {
	if rec.SavedAt.IsZero() {
		return true
	}
	return rec.Age(m.now()) >= m.threshold
}

func (m *Manager) set(ctx context.Context, d domain.RecoveryDecision) {
	m.mu.Lock()
	m.decision = d
	m.mu.Unlock()

	if m.hooks.OnRecovery != nil {
		m.hooks.OnRecovery(ctx, &domain.RecoveryEvent{
			EventBase: domain.EventBase{
				Timestamp: m.now(),
				Type:      domain.EventRecovery,
				SessionID: m.sessionID,
			},
			Decision: d,
		})
	}
}
