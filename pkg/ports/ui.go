package ports

import (
	"context"

	"github.com/aretw0/moments/pkg/domain"
)

// Notifier surfaces transient notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n domain.Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n domain.Notification) {
	f(ctx, n)
}

// RecoveryPrompter asks the user whether to recover a draft.
// Prompt blocks until the user decides or ctx is done.
type RecoveryPrompter interface {
	Prompt(ctx context.Context, draft domain.DraftRecord) (domain.RecoveryChoice, error)
}
