package domain

import (
	"time"
)

// Transaction represents a proposed card transaction to be risk-scored.
// It is constructed once per submission, after location resolution, and is
// immutable from then on.
type Transaction struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`

	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`

	Merchant MerchantCategory `json:"merchantCategory"`

	// Raw location text as entered, plus the resolver output.
	LocationText  string `json:"locationText"`
	RegionCode    string `json:"regionCode,omitempty"`
	LocationKnown bool   `json:"locationKnown"`
}

// Hour returns the local hour of submission, 0-23.
func (t *Transaction) Hour() int {
	return t.Timestamp.Hour()
}

// Region returns the resolved region code, or "unknown" when the location
// could not be resolved. All history and jump comparisons use this form.
func (t *Transaction) Region() string {
	if t.RegionCode == "" {
		return UnknownRegion
	}
	return t.RegionCode
}

// UnknownRegion is the placeholder region recorded for unresolved locations.
const UnknownRegion = "unknown"

// HomeRegion is the reference region against which off-region risk is
// measured.
const HomeRegion = "ab"

// MerchantCategory identifies one of the fixed merchant categories.
type MerchantCategory int

const (
	MerchantGroceries MerchantCategory = iota + 1
	MerchantRestaurants
	MerchantElectronics
	MerchantTravel
	MerchantOnline
	MerchantGiftCards
	MerchantOther
)

// MerchantInfo holds the display label and base risk weight for a category.
type MerchantInfo struct {
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// merchantTable is the closed category table. Indexed by MerchantCategory-1.
var merchantTable = [...]MerchantInfo{
	{Label: "Groceries / Essentials", Weight: 0.00},
	{Label: "Restaurants / Food", Weight: 0.05},
	{Label: "Electronics / Tech", Weight: 0.10},
	{Label: "Travel / Airline / Hotel", Weight: 0.15},
	{Label: "Online / E-commerce / Marketplace", Weight: 0.20},
	{Label: "Gift Cards / Crypto / Reloadables", Weight: 0.30},
	{Label: "Other / Misc", Weight: 0.05},
}

// Valid reports whether c is a known category.
func (c MerchantCategory) Valid() bool {
	return c >= MerchantGroceries && c <= MerchantOther
}

// Info returns the label and weight for the category. Unknown categories
// degrade to Other rather than failing: bad input is never fatal.
func (c MerchantCategory) Info() MerchantInfo {
	if !c.Valid() {
		return merchantTable[MerchantOther-1]
	}
	return merchantTable[c-1]
}

// Label returns the display label for the category.
func (c MerchantCategory) Label() string {
	return c.Info().Label
}

// MerchantCategories returns all categories in menu order.
func MerchantCategories() []MerchantCategory {
	out := make([]MerchantCategory, 0, len(merchantTable))
	for i := range merchantTable {
		out = append(out, MerchantCategory(i+1))
	}
	return out
}

// HistoryEntry is one appended record of a processed transaction. Entries
// are append-only and chronological; the behavioral analyzer never reorders
// them.
type HistoryEntry struct {
	Amount   float64 `json:"amount"`
	Merchant string  `json:"merchant"`
	Hour     int     `json:"hour"`
	Region   string  `json:"region"`
}

// AutoApproveMerchant is the merchant label recorded for low-value
// auto-approved transactions, which skip the merchant prompt entirely.
const AutoApproveMerchant = "Low-Value Auto-Approved"
