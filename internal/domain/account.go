package domain

import (
	"time"
)

// AccountStatus is the escalation state of an account.
type AccountStatus string

const (
	// AccountActive is the initial state.
	AccountActive AccountStatus = "ACTIVE"

	// AccountWarned is entered after repeated verification failures. It is
	// a recorded warning, not a halt: transactions continue to be accepted.
	AccountWarned AccountStatus = "WARNED"

	// AccountFrozen is terminal. Reached via the verification failure
	// counter or via accumulated flagged decisions.
	AccountFrozen AccountStatus = "FROZEN"

	// AccountBlocked is terminal. Reached only by the verification failure
	// counter climbing past the freeze threshold.
	AccountBlocked AccountStatus = "BLOCKED"
)

// Terminal reports whether the status halts all further processing.
func (s AccountStatus) Terminal() bool {
	return s == AccountFrozen || s == AccountBlocked
}

// AccountState is the cumulative per-account state mutated by the
// escalation automaton and the session orchestrator. All mutation must be
// serialized per account; counters and the terminal transition are not safe
// under concurrent increment.
type AccountState struct {
	AccountID string        `json:"accountId"`
	Status    AccountStatus `json:"status"`

	// FlaggedCount increments for every transaction whose decision is not
	// APPROVED. It never resets.
	FlaggedCount int `json:"flaggedCount"`

	// VerificationFailureCount increments per failed verification and
	// resets to zero on a successful one.
	VerificationFailureCount int `json:"verificationFailureCount"`

	LastTransactionTime *time.Time `json:"lastTransactionTime,omitempty"`
	LastRegion          string     `json:"lastRegion,omitempty"`

	// Blocked transitions exactly once, false to true, and only via the
	// escalation automaton. It covers both terminal states.
	Blocked bool `json:"blocked"`

	// History is the append-only chronological transaction record that
	// feeds the behavioral analyzer.
	History []HistoryEntry `json:"history"`
}

// NewAccountState returns a fresh active state for an account.
func NewAccountState(accountID string) *AccountState {
	return &AccountState{
		AccountID: accountID,
		Status:    AccountActive,
	}
}

// Halted reports whether the account accepts further transactions.
func (s *AccountState) Halted() bool {
	return s.Blocked || s.Status.Terminal()
}
