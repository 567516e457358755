package domain

import "fmt"

// RecoveryDecision is the outcome of the draft recovery phase of a session.
type RecoveryDecision string

const (
	RecoveryPending       RecoveryDecision = "pending"
	RecoveryRecovered     RecoveryDecision = "recovered"
	RecoveryDiscarded     RecoveryDecision = "discarded"
	RecoveryNotApplicable RecoveryDecision = "not-applicable"
)

// Resolved reports whether the decision is final.
func (d RecoveryDecision) Resolved() bool {
	return d == RecoveryRecovered || d == RecoveryDiscarded || d == RecoveryNotApplicable
}

// RecoveryChoice is what the user picked in the recovery prompt.
type RecoveryChoice string

const (
	ChoiceRecover RecoveryChoice = "recover"
	ChoiceDiscard RecoveryChoice = "discard"
)

// ParseRecoveryChoice validates a choice received from a UI surface.
func ParseRecoveryChoice(s string) (RecoveryChoice, error) {
	switch RecoveryChoice(s) {
	case ChoiceRecover, ChoiceDiscard:
		return RecoveryChoice(s), nil
	}
	return "", fmt.Errorf("unknown recovery choice %q", s)
}
