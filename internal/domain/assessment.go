package domain

import (
	"time"
)

// RiskAssessment is the scored result for a single transaction.
type RiskAssessment struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	TxID      string    `json:"txId"`
	Score     float64   `json:"score"`
	Decision  Decision  `json:"decision"`
	Timestamp time.Time `json:"timestamp"`

	// Reasons in evaluation order. The order is user-visible and stable:
	// factor reasons first, then any custom rule reasons, then the location
	// resolution message.
	Reasons []string `json:"reasons"`

	Metadata AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata carries processing information.
type AssessmentMetadata struct {
	TraceID          string `json:"traceId,omitempty"`
	ScoreMs          int64  `json:"scoreMs"`
	TotalMs          int64  `json:"totalMs"`
	FactorsEvaluated int    `json:"factorsEvaluated"`
	RulesEvaluated   int    `json:"rulesEvaluated"`
	EngineVersion    string `json:"engineVersion"`
}

// Decision is the advisory classification of a composite score. It does not
// by itself block an account; blocking comes solely from escalation.
type Decision string

const (
	DecisionApproved        Decision = "APPROVED"
	DecisionApprovedFlagged Decision = "APPROVED_FLAGGED"
	DecisionCallBank        Decision = "CALL_BANK"
	DecisionUnderReview     Decision = "UNDER_REVIEW"
	DecisionCriticalReview  Decision = "CRITICAL_REVIEW"

	// DecisionDeclined is the session outcome for a transaction that failed
	// verification. It is never produced by the score classifier.
	DecisionDeclined Decision = "DECLINED"
)
