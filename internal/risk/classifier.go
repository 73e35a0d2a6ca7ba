package risk

import "github.com/opensource-finance/kite/internal/domain"

// Decision band boundaries over the clamped composite score.
const (
	flagThreshold     = 0.50
	callBankThreshold = 0.80
	reviewThreshold   = 0.90
)

// Classify maps a clamped composite score onto a decision. Bands partition
// [0, 1] exactly: boundary scores land in the lower band except 1.0, which
// is its own critical band.
func Classify(score float64) domain.Decision {
	switch {
	case score < flagThreshold:
		return domain.DecisionApproved
	case score <= callBankThreshold:
		return domain.DecisionApprovedFlagged
	case score <= reviewThreshold:
		return domain.DecisionCallBank
	case score < 1.0:
		return domain.DecisionUnderReview
	default:
		return domain.DecisionCriticalReview
	}
}
