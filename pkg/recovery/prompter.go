package recovery

import (
	"context"
	"errors"
	"sync"

	"github.com/aretw0/moments/pkg/domain"
)

// ErrNoPendingPrompt is returned by Resolve when nobody is waiting for a decision.
var ErrNoPendingPrompt = errors.New("no recovery prompt pending")

// PromptFunc adapts a function to ports.RecoveryPrompter.
type PromptFunc func(ctx context.Context, rec domain.DraftRecord) (domain.RecoveryChoice, error)

// Prompt calls f.
func (f PromptFunc) Prompt(ctx context.Context, rec domain.DraftRecord) (domain.RecoveryChoice, error) {
	return f(ctx, rec)
}

// Always returns a prompter that answers choice without asking.
func Always(choice domain.RecoveryChoice) PromptFunc {
	return func(context.Context, domain.DraftRecord) (domain.RecoveryChoice, error) {
		return choice, nil
	}
}

// ChannelPrompter parks a prompt until a remote surface resolves it.
type ChannelPrompter struct {
	mu      sync.Mutex
	pending *domain.DraftRecord
	answer  chan domain.RecoveryChoice
}

// NewChannelPrompter returns an idle ChannelPrompter.
func NewChannelPrompter() *ChannelPrompter {
	return &ChannelPrompter{answer: make(chan domain.RecoveryChoice, 1)}
}

// Prompt blocks until Resolve is called or ctx is done.
func (p *ChannelPrompter) Prompt(ctx context.Context, rec domain.DraftRecord) (domain.RecoveryChoice, error) {
	p.mu.Lock()
	p.pending = &rec
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.pending = nil
		p.mu.Unlock()
	}()

	select {
	case choice := <-p.answer:
		return choice, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Pending returns the draft awaiting a decision, if any.
func (p *ChannelPrompter) Pending() (domain.DraftRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return domain.DraftRecord{}, false
	}
	return *p.pending, true
}

// Resolve answers the pending prompt.
func (p *ChannelPrompter) Resolve(choice domain.RecoveryChoice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return ErrNoPendingPrompt
	}
	select {
	case p.answer <- choice:
		p.pending = nil
		return nil
	default:
		return ErrNoPendingPrompt
	}
}
