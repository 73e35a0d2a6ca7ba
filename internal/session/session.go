// Package session orchestrates the full assessment pipeline for one
// submitted transaction: location resolution, scoring, classification,
// identity verification and escalation, with all account state mutation
// serialized per account.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/escalation"
	"github.com/opensource-finance/kite/internal/geo"
	"github.com/opensource-finance/kite/internal/repository"
	"github.com/opensource-finance/kite/internal/risk"
	"github.com/opensource-finance/kite/internal/rules"
	"github.com/opensource-finance/kite/internal/velocity"
	"github.com/opensource-finance/kite/internal/verify"
)

var (
	// ErrAccountHalted is returned when a frozen or blocked account submits
	// a transaction.
	ErrAccountHalted = errors.New("account is halted")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// AutoApproveBelow is the amount under which transactions bypass scoring
// entirely.
const AutoApproveBelow = 150.0

// AutoApproveReason is the single reason attached to auto-approved
// transactions.
const AutoApproveReason = "Low-value transaction auto-approved"

// PassReason is appended to the assessment when identity verification
// succeeds.
const PassReason = "Verification passed successfully."

const (
	engineVersion         = "kite-1.0"
	defaultVelocityWindow = 3600 // seconds, for custom rules
	assessmentCacheTTL    = 5 * time.Minute
)

// Submission is one proposed transaction.
type Submission struct {
	AccountID string
	Amount    float64
	Location  string
	Merchant  domain.MerchantCategory
	Timestamp time.Time // zero means now
	TraceID   string

	// Responder answers verification challenges. When verification is
	// required and no responder is supplied, the submission is returned
	// pending and no account state changes.
	Responder domain.ChallengeResponder
}

// Result is the outcome of processing one submission.
type Result struct {
	Transaction *domain.Transaction    `json:"transaction"`
	Assessment  *domain.RiskAssessment `json:"assessment"`

	AutoApproved bool `json:"autoApproved"`

	VerificationRequired bool                    `json:"verificationRequired"`
	Tier                 domain.VerificationTier `json:"tier,omitempty"`
	VerificationPassed   bool                    `json:"verificationPassed"`

	// PendingVerification means verification is required but no responder
	// was available. Nothing was persisted.
	PendingVerification bool `json:"pendingVerification"`

	AccountStatus domain.AccountStatus `json:"accountStatus"`
	Halted        bool                 `json:"halted"`

	// Messages are remediation lines from the escalation automaton.
	Messages []string `json:"messages,omitempty"`
}

// Orchestrator runs submissions through the pipeline.
type Orchestrator struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *rules.Engine
	resolver *geo.Resolver
	verifier *verify.Verifier
	velocity *velocity.Service

	mu       sync.Mutex
	accounts map[string]*sync.Mutex
	records  map[string][]Record
}

// New creates a session orchestrator. The rules engine, bus, cache and
// velocity service are optional; the repository, resolver and verifier are
// not.
func New(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, resolver *geo.Resolver, verifier *verify.Verifier, vel *velocity.Service) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   engine,
		resolver: resolver,
		verifier: verifier,
		velocity: vel,
		accounts: make(map[string]*sync.Mutex),
		records:  make(map[string][]Record),
	}
}

// lockAccount returns the mutex serializing one account's state.
func (o *Orchestrator) lockAccount(accountID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.accounts[accountID]
	if !ok {
		m = &sync.Mutex{}
		o.accounts[accountID] = m
	}
	return m
}

// loadState fetches or initializes the account state.
func (o *Orchestrator) loadState(ctx context.Context, accountID string) (*domain.AccountState, error) {
	state, err := o.repo.GetAccountState(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NewAccountState(accountID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account state: %w", err)
	}
	return state, nil
}

// Process runs one submission through the full pipeline.
func (o *Orchestrator) Process(ctx context.Context, sub *Submission) (*Result, error) {
	start := time.Now()

	if sub.AccountID == "" {
		return nil, fmt.Errorf("accountID is required")
	}
	if sub.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	lock := o.lockAccount(sub.AccountID)
	lock.Lock()
	defer lock.Unlock()

	state, err := o.loadState(ctx, sub.AccountID)
	if err != nil {
		return nil, err
	}

	if state.Halted() {
		return &Result{
			AccountStatus: state.Status,
			Halted:        true,
		}, ErrAccountHalted
	}

	when := sub.Timestamp
	if when.IsZero() {
		when = time.Now().UTC()
	}

	if sub.Amount < AutoApproveBelow {
		return o.autoApprove(ctx, sub, state, when, start)
	}

	loc := o.resolver.Resolve(sub.Location)

	tx := &domain.Transaction{
		ID:            uuid.New().String(),
		AccountID:     sub.AccountID,
		Amount:        sub.Amount,
		Timestamp:     when,
		Merchant:      sub.Merchant,
		LocationText:  sub.Location,
		RegionCode:    loc.RegionCode,
		LocationKnown: loc.Known,
	}

	ruleResults := o.evaluateRules(ctx, tx, state)

	scoreStart := time.Now()
	in := &risk.FactorInput{
		Amount:              tx.Amount,
		Merchant:            tx.Merchant,
		RegionCode:          tx.RegionCode,
		LocationKnown:       tx.LocationKnown,
		Now:                 tx.Timestamp,
		Hour:                tx.Hour(),
		LastTransactionTime: state.LastTransactionTime,
		LastRegion:          state.LastRegion,
		History:             state.History,
	}
	score, reasons := risk.Aggregate(in, ruleResults, loc.Message)
	decision := risk.Classify(score)
	scoreMs := time.Since(scoreStart).Milliseconds()

	result := &Result{Transaction: tx}

	// Identity verification gate
	tier := verify.SelectTier(tx.Amount, score)
	if tier != domain.TierNone {
		result.VerificationRequired = true
		result.Tier = tier

		if sub.Responder == nil {
			result.PendingVerification = true
			result.AccountStatus = state.Status
			result.Assessment = o.buildAssessment(tx, score, decision, reasons, sub.TraceID, scoreMs, start, len(ruleResults))
			return result, nil
		}

		outcome := o.verifier.Run(ctx, tier, sub.Responder)
		result.VerificationPassed = outcome.Passed

		if !outcome.Passed {
			return o.finalizeDeclined(ctx, sub, state, tx, score, reasons, result, scoreMs, start, len(ruleResults))
		}

		escalation.RecordVerificationPass(state)
		reasons = append(reasons, PassReason)
	}

	// Flagged escalation for every non-approved decision
	var messages []string
	if decision != domain.DecisionApproved {
		out := escalation.RecordFlagged(state)
		if out.Message != "" {
			messages = append(messages, out.Message)
		}
	}

	assessment := o.buildAssessment(tx, score, decision, reasons, sub.TraceID, scoreMs, start, len(ruleResults))

	state.History = append(state.History, domain.HistoryEntry{
		Amount:   tx.Amount,
		Merchant: tx.Merchant.Label(),
		Hour:     tx.Hour(),
		Region:   tx.Region(),
	})
	state.LastTransactionTime = &tx.Timestamp
	state.LastRegion = tx.Region()

	if err := o.persist(ctx, sub.AccountID, tx, assessment, state); err != nil {
		return nil, err
	}
	o.publishAssessment(ctx, sub.AccountID, assessment, state)

	result.Assessment = assessment
	result.AccountStatus = state.Status
	result.Halted = state.Halted()
	result.Messages = messages

	o.appendRecord(sub.AccountID, Record{
		TxID:               tx.ID,
		Amount:             tx.Amount,
		Merchant:           tx.Merchant.Label(),
		Score:              score,
		Decision:           decision,
		Tier:               tier,
		VerificationRan:    tier != domain.TierNone,
		VerificationPassed: result.VerificationPassed || tier == domain.TierNone,
		Timestamp:          tx.Timestamp,
	})

	slog.Info("transaction processed",
		"tx_id", tx.ID,
		"account_id", sub.AccountID,
		"decision", decision,
		"score", score,
		"tier", tier,
		"status", state.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

// autoApprove handles the low-value bypass: no scoring, no verification, no
// merchant prompt. The transaction still advances history and recency state.
func (o *Orchestrator) autoApprove(ctx context.Context, sub *Submission, state *domain.AccountState, when time.Time, start time.Time) (*Result, error) {
	tx := &domain.Transaction{
		ID:            uuid.New().String(),
		AccountID:     sub.AccountID,
		Amount:        sub.Amount,
		Timestamp:     when,
		LocationText:  sub.Location,
		RegionCode:    domain.HomeRegion,
		LocationKnown: true,
	}

	assessment := &domain.RiskAssessment{
		ID:        uuid.New().String(),
		AccountID: sub.AccountID,
		TxID:      tx.ID,
		Score:     0.0,
		Decision:  domain.DecisionApproved,
		Timestamp: time.Now().UTC(),
		Reasons:   []string{AutoApproveReason},
		Metadata: domain.AssessmentMetadata{
			TraceID:       sub.TraceID,
			TotalMs:       time.Since(start).Milliseconds(),
			EngineVersion: engineVersion,
		},
	}

	state.History = append(state.History, domain.HistoryEntry{
		Amount:   tx.Amount,
		Merchant: domain.AutoApproveMerchant,
		Hour:     tx.Hour(),
		Region:   domain.HomeRegion,
	})
	state.LastTransactionTime = &tx.Timestamp
	state.LastRegion = domain.HomeRegion

	if err := o.persist(ctx, sub.AccountID, tx, assessment, state); err != nil {
		return nil, err
	}
	o.publishAssessment(ctx, sub.AccountID, assessment, state)

	o.appendRecord(sub.AccountID, Record{
		TxID:               tx.ID,
		Amount:             tx.Amount,
		Merchant:           domain.AutoApproveMerchant,
		Decision:           domain.DecisionApproved,
		VerificationPassed: true,
		Timestamp:          tx.Timestamp,
	})

	slog.Info("transaction auto-approved",
		"tx_id", tx.ID,
		"account_id", sub.AccountID,
		"amount", sub.Amount,
	)

	return &Result{
		Transaction:   tx,
		Assessment:    assessment,
		AutoApproved:  true,
		AccountStatus: state.Status,
	}, nil
}

// finalizeDeclined handles a failed verification. The decision becomes
// DECLINED, both escalation counters advance, and the transaction is kept
// out of history so a declined attempt never trains the behavioral profile.
// Recency state still advances: a rapid retry after a decline is still a
// velocity signal.
func (o *Orchestrator) finalizeDeclined(ctx context.Context, sub *Submission, state *domain.AccountState, tx *domain.Transaction, score float64, reasons []string, result *Result, scoreMs int64, start time.Time, rulesEvaluated int) (*Result, error) {
	out := escalation.RecordVerificationFailure(state)

	assessment := o.buildAssessment(tx, score, domain.DecisionDeclined, reasons, sub.TraceID, scoreMs, start, rulesEvaluated)

	state.LastTransactionTime = &tx.Timestamp
	state.LastRegion = tx.Region()

	if err := o.persist(ctx, sub.AccountID, tx, assessment, state); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(assessment)
	o.publish(ctx, sub.AccountID, domain.TopicVerificationFailed, payload)
	if state.Halted() {
		o.publish(ctx, sub.AccountID, domain.TopicAccountFrozen, payload)
	}

	result.Assessment = assessment
	result.AccountStatus = state.Status
	result.Halted = state.Halted()
	if out.Message != "" {
		result.Messages = append(result.Messages, out.Message)
	}

	o.appendRecord(sub.AccountID, Record{
		TxID:            tx.ID,
		Amount:          tx.Amount,
		Merchant:        tx.Merchant.Label(),
		Score:           score,
		Decision:        domain.DecisionDeclined,
		Tier:            result.Tier,
		VerificationRan: true,
		Timestamp:       tx.Timestamp,
	})

	slog.Warn("verification failed",
		"tx_id", tx.ID,
		"account_id", sub.AccountID,
		"tier", result.Tier,
		"failures", state.VerificationFailureCount,
		"status", state.Status,
	)

	return result, nil
}

// evaluateRules runs the custom rule engine, tolerating its absence.
func (o *Orchestrator) evaluateRules(ctx context.Context, tx *domain.Transaction, state *domain.AccountState) []domain.RuleResult {
	if o.engine == nil || o.engine.RulesCount() == 0 {
		return nil
	}

	results, err := o.engine.EvaluateAll(ctx, &rules.EvaluateInput{
		AccountID:      tx.AccountID,
		TxID:           tx.ID,
		Amount:         tx.Amount,
		Hour:           tx.Hour(),
		Region:         tx.Region(),
		Merchant:       tx.Merchant.Label(),
		HistoryCount:   len(state.History),
		VelocityWindow: defaultVelocityWindow,
	})
	if err != nil {
		slog.Error("custom rule evaluation failed",
			"tx_id", tx.ID,
			"error", err,
		)
		return nil
	}
	return results
}

func (o *Orchestrator) buildAssessment(tx *domain.Transaction, score float64, decision domain.Decision, reasons []string, traceID string, scoreMs int64, start time.Time, rulesEvaluated int) *domain.RiskAssessment {
	return &domain.RiskAssessment{
		ID:        uuid.New().String(),
		AccountID: tx.AccountID,
		TxID:      tx.ID,
		Score:     score,
		Decision:  decision,
		Timestamp: time.Now().UTC(),
		Reasons:   reasons,
		Metadata: domain.AssessmentMetadata{
			TraceID:          traceID,
			ScoreMs:          scoreMs,
			TotalMs:          time.Since(start).Milliseconds(),
			FactorsEvaluated: risk.FactorCount,
			RulesEvaluated:   rulesEvaluated,
			EngineVersion:    engineVersion,
		},
	}
}

// persist saves the transaction, its assessment and the mutated account
// state, and records the velocity tick.
func (o *Orchestrator) persist(ctx context.Context, accountID string, tx *domain.Transaction, a *domain.RiskAssessment, state *domain.AccountState) error {
	if err := o.repo.SaveTransaction(ctx, accountID, tx); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	if err := o.repo.SaveAssessment(ctx, accountID, a); err != nil {
		return fmt.Errorf("failed to save assessment: %w", err)
	}
	if err := o.repo.SaveAccountState(ctx, state); err != nil {
		return fmt.Errorf("failed to save account state: %w", err)
	}

	if o.cache != nil {
		if err := o.cache.SetAssessment(ctx, accountID, a, assessmentCacheTTL); err != nil {
			slog.Error("failed to cache assessment",
				"assessment_id", a.ID,
				"error", err,
			)
		}
	}
	if o.velocity != nil {
		o.velocity.Record(ctx, accountID, defaultVelocityWindow)
	}

	return nil
}

// publishAssessment emits the completed assessment, the alert topic for
// review-band decisions, and the frozen topic when this event halted the
// account.
func (o *Orchestrator) publishAssessment(ctx context.Context, accountID string, a *domain.RiskAssessment, state *domain.AccountState) {
	payload, _ := json.Marshal(a)

	o.publish(ctx, accountID, domain.TopicAssessmentCompleted, payload)

	switch a.Decision {
	case domain.DecisionCallBank, domain.DecisionUnderReview, domain.DecisionCriticalReview:
		o.publish(ctx, accountID, domain.TopicAlert, payload)
	}

	if state.Halted() {
		o.publish(ctx, accountID, domain.TopicAccountFrozen, payload)
	}
}

func (o *Orchestrator) publish(ctx context.Context, accountID, topic string, payload []byte) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, accountID, topic, payload); err != nil {
		slog.Error("failed to publish event",
			"topic", topic,
			"account_id", accountID,
			"error", err,
		)
	}
}
