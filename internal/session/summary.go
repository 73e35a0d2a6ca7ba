package session

import (
	"context"
	"time"

	"github.com/opensource-finance/kite/internal/behavior"
	"github.com/opensource-finance/kite/internal/domain"
)

// Record is one session-log line for a processed transaction.
type Record struct {
	TxID     string          `json:"txId"`
	Amount   float64         `json:"amount"`
	Merchant string          `json:"merchant"`
	Score    float64         `json:"score"`
	Decision domain.Decision `json:"decision"`

	Tier               domain.VerificationTier `json:"tier,omitempty"`
	VerificationRan    bool                    `json:"verificationRan"`
	VerificationPassed bool                    `json:"verificationPassed"`

	Timestamp time.Time `json:"timestamp"`
}

// Summary aggregates one account's session activity.
type Summary struct {
	AccountID string `json:"accountId"`

	Processed int `json:"processed"`
	Approved  int `json:"approved"`
	Flagged   int `json:"flagged"`
	Declined  int `json:"declined"`

	FinalStatus              domain.AccountStatus `json:"finalStatus"`
	FlaggedCount             int                  `json:"flaggedCount"`
	VerificationFailureCount int                  `json:"verificationFailureCount"`

	// Profile is the behavioral picture at session end, nil when the
	// account history is still too short.
	Profile *behavior.Profile `json:"profile,omitempty"`

	Records []Record `json:"records"`
}

func (o *Orchestrator) appendRecord(accountID string, r Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records[accountID] = append(o.records[accountID], r)
}

// Records returns a copy of the session log for an account.
func (o *Orchestrator) Records(accountID string) []Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Record, len(o.records[accountID]))
	copy(out, o.records[accountID])
	return out
}

// Summarize builds the end-of-session summary for an account.
func (o *Orchestrator) Summarize(ctx context.Context, accountID string) (*Summary, error) {
	state, err := o.loadState(ctx, accountID)
	if err != nil {
		return nil, err
	}

	records := o.Records(accountID)

	s := &Summary{
		AccountID:                accountID,
		Processed:                len(records),
		FinalStatus:              state.Status,
		FlaggedCount:             state.FlaggedCount,
		VerificationFailureCount: state.VerificationFailureCount,
		Profile:                  behavior.Analyze(state.History),
		Records:                  records,
	}

	for _, r := range records {
		switch r.Decision {
		case domain.DecisionApproved:
			s.Approved++
		case domain.DecisionDeclined:
			s.Declined++
		default:
			s.Flagged++
		}
	}

	return s, nil
}
