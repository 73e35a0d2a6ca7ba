// Package behavior derives a rolling spending profile from account history
// and measures how far a proposed transaction deviates from it.
package behavior

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kite/internal/domain"
)

// MinHistory is the minimum number of history entries required before a
// profile is meaningful. Below this the analyzer contributes nothing and
// emits no reason.
const MinHistory = 5

// Profile is the aggregate statistical picture of prior transactions.
type Profile struct {
	AvgAmount float64 `json:"avgAmount"`

	// DominantMerchant and DominantRegion are modes over history. Ties
	// break to the first-encountered value in append order, so the result
	// is deterministic for a given history.
	DominantMerchant string `json:"dominantMerchant"`
	DominantRegion   string `json:"dominantRegion"`

	// AvgHour is the un-rounded arithmetic mean of transaction hours.
	AvgHour float64 `json:"avgHour"`

	SampleSize int `json:"sampleSize"`
}

// Analyze computes a profile over the full history. Returns nil when the
// history is too short.
func Analyze(history []domain.HistoryEntry) *Profile {
	if len(history) < MinHistory {
		return nil
	}

	var amountSum, hourSum float64
	merchants := make([]string, 0, len(history))
	regions := make([]string, 0, len(history))

	for _, e := range history {
		amountSum += e.Amount
		hourSum += float64(e.Hour)
		merchants = append(merchants, e.Merchant)
		regions = append(regions, e.Region)
	}

	n := float64(len(history))
	return &Profile{
		AvgAmount:        amountSum / n,
		AvgHour:          hourSum / n,
		DominantMerchant: mode(merchants),
		DominantRegion:   mode(regions),
		SampleSize:       len(history),
	}
}

// mode returns the most frequent value; ties break to the value whose first
// occurrence comes earliest.
func mode(values []string) string {
	counts := make(map[string]int, len(values))
	for _, v := range values {
		counts[v]++
	}

	best := ""
	bestCount := 0
	for _, v := range values {
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}

// Deviation sub-check contributions.
const (
	amountDeviationRisk   = 0.20
	merchantDeviationRisk = 0.10
	hourDeviationRisk     = 0.10
	regionDeviationRisk   = 0.10

	amountDeviationFactor = 3.0
	hourDeviationWindow   = 6.0
)

// Deviation scores a proposed transaction against the profile. Sub-checks
// are independently additive and evaluated in fixed order: amount,
// merchant, hour, region. The returned sum is unclamped; the aggregator
// clamps the overall score, not this sub-total.
func (p *Profile) Deviation(amount float64, merchant string, hour int, region string) (float64, []string) {
	var risk float64
	var reasons []string

	if amount > p.AvgAmount*amountDeviationFactor {
		reasons = append(reasons, fmt.Sprintf("Unusually high amount vs normal ($%.2f avg)", p.AvgAmount))
		risk += amountDeviationRisk
	}

	if merchant != p.DominantMerchant {
		reasons = append(reasons, fmt.Sprintf("Merchant differs from usual (%s)", p.DominantMerchant))
		risk += merchantDeviationRisk
	}

	if math.Abs(float64(hour)-p.AvgHour) > hourDeviationWindow {
		reasons = append(reasons, "Transaction time unusual vs typical behaviour")
		risk += hourDeviationRisk
	}

	if region != p.DominantRegion {
		reasons = append(reasons, fmt.Sprintf("Region unusual vs typical region: %s", p.DominantRegion))
		risk += regionDeviationRisk
	}

	return risk, reasons
}
