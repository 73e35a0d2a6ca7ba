// Package escalation implements the per-account escalation automaton: the
// counter thresholds that move an account from ACTIVE through WARNED into
// the terminal FROZEN and BLOCKED states.
package escalation

import "github.com/opensource-finance/kite/internal/domain"

// Escalation thresholds. The block threshold sits above the freeze
// threshold, so under normal sequencing an account freezes (and halts)
// before it can reach the block count. The branch is kept because replayed
// or imported state can arrive with counters already past freeze.
const (
	warnThreshold   = 3
	freezeThreshold = 5
	blockThreshold  = 7

	flaggedFreezeThreshold = 5
)

// Outcome describes the effect of one recorded event on the account state.
type Outcome struct {
	Status domain.AccountStatus `json:"status"`

	// Changed reports whether this event moved the account to a new status.
	Changed bool `json:"changed"`

	// Halt reports whether the account stopped accepting transactions.
	Halt bool `json:"halt"`

	// Message is the operator-facing remediation line, empty when nothing
	// escalated.
	Message string `json:"message,omitempty"`
}

// Remediation messages surfaced by the session and the simulator.
const (
	MsgWarned        = "Warning: repeated verification failures recorded on this account."
	MsgFrozenFailure = "Account frozen after repeated verification failures. Contact your bank to restore access."
	MsgFrozenFlagged = "Account frozen after repeated flagged transactions. Contact your bank to restore access."
	MsgBlocked       = "Account blocked. Visit your branch with identification to restore access."
)

// RecordVerificationFailure applies one failed verification. Both counters
// advance: a failed verification is also a flagged transaction. The
// verification thresholds are checked first, then the flagged threshold, so
// a single event can only escalate once but both paths are considered.
func RecordVerificationFailure(state *domain.AccountState) Outcome {
	state.VerificationFailureCount++
	state.FlaggedCount++

	switch {
	case state.VerificationFailureCount >= blockThreshold:
		return transition(state, domain.AccountBlocked, MsgBlocked)
	case state.VerificationFailureCount >= freezeThreshold:
		return transition(state, domain.AccountFrozen, MsgFrozenFailure)
	case state.VerificationFailureCount >= warnThreshold && state.Status == domain.AccountActive:
		state.Status = domain.AccountWarned
		return Outcome{Status: state.Status, Changed: true, Message: MsgWarned}
	case state.FlaggedCount >= flaggedFreezeThreshold:
		return transition(state, domain.AccountFrozen, MsgFrozenFlagged)
	}

	return Outcome{Status: state.Status}
}

// RecordVerificationPass resets the failure streak. The flagged counter and
// any WARNED status are left alone; only terminal states are irreversible
// and a pass never un-freezes.
func RecordVerificationPass(state *domain.AccountState) Outcome {
	state.VerificationFailureCount = 0
	return Outcome{Status: state.Status}
}

// RecordFlagged applies one non-approved decision that did not come from a
// failed verification.
func RecordFlagged(state *domain.AccountState) Outcome {
	state.FlaggedCount++

	if state.FlaggedCount >= flaggedFreezeThreshold {
		return transition(state, domain.AccountFrozen, MsgFrozenFlagged)
	}

	return Outcome{Status: state.Status}
}

// transition moves the account into a terminal status. Blocked latches true
// exactly once; re-entering a terminal state reports no change.
func transition(state *domain.AccountState, status domain.AccountStatus, msg string) Outcome {
	if state.Status == status {
		return Outcome{Status: state.Status, Halt: true}
	}

	state.Status = status
	state.Blocked = true
	return Outcome{Status: status, Changed: true, Halt: true, Message: msg}
}
