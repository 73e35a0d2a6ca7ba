// Package risk implements the fixed risk-factor library, the composite
// score aggregator and the decision classifier.
package risk

import (
	"fmt"
	"time"

	"github.com/opensource-finance/kite/internal/behavior"
	"github.com/opensource-finance/kite/internal/domain"
)

// FactorInput holds the transaction and account-state slices the factor
// library reads. It is assembled once per transaction by the session.
type FactorInput struct {
	Amount   float64
	Merchant domain.MerchantCategory

	// RegionCode is the resolver output, "" when unresolved.
	RegionCode    string
	LocationKnown bool

	Now  time.Time
	Hour int

	LastTransactionTime *time.Time
	LastRegion          string // "" when no prior transaction

	History []domain.HistoryEntry
}

// region returns the history form of the region token.
func (in *FactorInput) region() string {
	if in.RegionCode == "" {
		return domain.UnknownRegion
	}
	return in.RegionCode
}

// Factor thresholds. These are load-bearing for compatibility and must not
// drift: scores and reason output are compared bit-for-bit downstream.
const (
	velocityWindow = 60 * time.Second
	velocityRisk   = 0.15

	offRegionRisk       = 0.30
	unknownLocationRisk = 0.10
	lateNightRisk       = 0.10
	locationJumpRisk    = 0.10

	lateNightEndHour = 5
)

// amountZoneRisk scores the tiered spend zones. Zones are mutually
// exclusive; amounts at or below 500 contribute nothing and no reason.
func amountZoneRisk(amount float64, reasons *[]string) float64 {
	switch {
	case amount <= 500:
		return 0.0
	case amount <= 2000:
		*reasons = append(*reasons, "Caution spend zone ($501-$2,000)")
		return 0.10
	case amount <= 5000:
		*reasons = append(*reasons, "Risk spend zone ($2,001-$5,000)")
		return 0.20
	case amount <= 10000:
		*reasons = append(*reasons, "High-risk spend zone ($5,001-$10,000)")
		return 0.30
	case amount <= 20000:
		*reasons = append(*reasons, "Severe spend zone ($10,001-$20,000)")
		return 0.40
	default:
		*reasons = append(*reasons, "Critical spend zone (>$20,000)")
		return 0.50
	}
}

// offRegionRiskFactor triggers whenever the region token differs from the
// home region. An unresolved region counts as off-home.
func offRegionRiskFactor(regionCode string, reasons *[]string) float64 {
	if regionCode != domain.HomeRegion {
		*reasons = append(*reasons, "Transaction outside normal Alberta activity zone")
		return offRegionRisk
	}
	return 0.0
}

func unknownLocationRiskFactor(known bool, reasons *[]string) float64 {
	if !known {
		*reasons = append(*reasons, "Unknown / unverified location")
		return unknownLocationRisk
	}
	return 0.0
}

// lateNightRiskFactor triggers for local hours in [00:00, 05:00).
func lateNightRiskFactor(hour int, reasons *[]string) float64 {
	if hour >= 0 && hour < lateNightEndHour {
		*reasons = append(*reasons, "Late-night transaction (00:00-05:00)")
		return lateNightRisk
	}
	return 0.0
}

// merchantRiskFactor scores the category table weight. The category reason
// is always appended, even for zero-weight categories.
func merchantRiskFactor(category domain.MerchantCategory, reasons *[]string) float64 {
	info := category.Info()
	*reasons = append(*reasons, fmt.Sprintf("Merchant category: %s", info.Label))
	return info.Weight
}

// velocityRiskFactor triggers when the previous transaction landed within
// 60 seconds of the current one.
func velocityRiskFactor(last *time.Time, now time.Time, reasons *[]string) float64 {
	if last == nil {
		return 0.0
	}
	if now.Sub(*last) <= velocityWindow {
		*reasons = append(*reasons, "High transaction velocity (within 60 seconds)")
		return velocityRisk
	}
	return 0.0
}

// locationJumpRiskFactor triggers when the region differs from the
// immediately preceding transaction's region. Only evaluated when a
// preceding transaction exists.
func locationJumpRiskFactor(lastRegion, region string, reasons *[]string) float64 {
	if lastRegion == "" {
		return 0.0
	}
	if region != lastRegion {
		*reasons = append(*reasons, "Sudden change in transaction region")
		return locationJumpRisk
	}
	return 0.0
}

// behavioralRiskFactor consults the pattern analyzer. With fewer than
// behavior.MinHistory entries it is skipped entirely: zero contribution and
// no reason.
func behavioralRiskFactor(in *FactorInput, reasons *[]string) float64 {
	profile := behavior.Analyze(in.History)
	if profile == nil {
		return 0.0
	}

	risk, devReasons := profile.Deviation(in.Amount, in.Merchant.Label(), in.Hour, in.region())
	*reasons = append(*reasons, devReasons...)
	return risk
}
