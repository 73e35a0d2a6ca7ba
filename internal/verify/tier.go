// Package verify implements the identity verification gate: the tier
// selector and the challenge state machine.
package verify

import "github.com/opensource-finance/kite/internal/domain"

// Verification trigger and tier boundaries. Amount and score act as
// independent OR conditions at every level.
const (
	triggerAmount = 1000.0
	triggerScore  = 0.50

	partialAmount = 2000.0
	partialScore  = 0.70

	fullAmount = 5000.0
	fullScore  = 0.90
)

// Required reports whether a transaction needs identity verification.
func Required(amount, score float64) bool {
	return amount > triggerAmount || score >= triggerScore
}

// SelectTier picks the challenge tier for a transaction. Tiers are checked
// strictest first so a transaction always lands in the single strictest tier
// it qualifies for. Returns TierNone when verification is not required.
func SelectTier(amount, score float64) domain.VerificationTier {
	if !Required(amount, score) {
		return domain.TierNone
	}
	switch {
	case amount > fullAmount || score >= fullScore:
		return domain.TierFull
	case amount > partialAmount || score >= partialScore:
		return domain.TierPartial
	default:
		return domain.TierPINOnly
	}
}
