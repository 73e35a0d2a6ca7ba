package risk

import (
	"github.com/opensource-finance/kite/internal/domain"
)

// FactorCount is the number of built-in factors evaluated per transaction.
const FactorCount = 8

// Aggregate runs the built-in factor library in fixed order, folds in any
// custom rule contributions, and clamps the composite score to [0, 1].
//
// Reason ordering is part of the contract: factor reasons in evaluation
// order, then triggered custom-rule reasons, then the location resolution
// message last. Clamping applies to the final score only, never to the
// individual contributions.
func Aggregate(in *FactorInput, ruleResults []domain.RuleResult, locationMessage string) (float64, []string) {
	var score float64
	reasons := make([]string, 0, FactorCount)

	score += amountZoneRisk(in.Amount, &reasons)
	score += offRegionRiskFactor(in.RegionCode, &reasons)
	score += unknownLocationRiskFactor(in.LocationKnown, &reasons)
	score += lateNightRiskFactor(in.Hour, &reasons)
	score += merchantRiskFactor(in.Merchant, &reasons)
	score += velocityRiskFactor(in.LastTransactionTime, in.Now, &reasons)
	score += locationJumpRiskFactor(in.LastRegion, in.region(), &reasons)
	score += behavioralRiskFactor(in, &reasons)

	for _, rr := range ruleResults {
		if rr.Err != "" || !rr.Triggered {
			continue
		}
		score += rr.Contribution
		if rr.Reason != "" {
			reasons = append(reasons, rr.Reason)
		}
	}

	if locationMessage != "" {
		reasons = append(reasons, locationMessage)
	}

	return clamp(score), reasons
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
