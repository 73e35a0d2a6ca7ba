package rules

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kite/internal/domain"
)

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(nil, 5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "test-rule-001",
		Name:       "Test Rule",
		Expression: "amount > 100.0",
		Weight:     1.0,
		Enabled:    true,
	}

	err := engine.LoadRule(rule)
	if err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "invalid-rule",
		Name:       "Invalid Rule",
		Expression: "this is not valid CEL !!!",
		Enabled:    true,
	}

	err := engine.LoadRule(rule)
	if err == nil {
		t.Error("expected error for invalid CEL expression")
	}
}

func TestEvaluateAmountRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "amount-check",
		Name:       "Amount Check",
		Expression: "amount > 1000.0 ? 1.0 : 0.0",
		Weight:     0.25,
		Reason:     "High custom amount threshold",
		Enabled:    true,
	}

	engine.LoadRule(rule)

	ctx := context.Background()

	// Low amount should not trigger
	input := &EvaluateInput{
		AccountID: "acct-001",
		TxID:      "tx-001",
		Amount:    500.0,
	}

	results, err := engine.EvaluateAll(ctx, input)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	if results[0].Triggered {
		t.Error("expected rule not triggered for low amount")
	}
	if results[0].Contribution != 0.0 {
		t.Errorf("expected contribution 0.0, got %.2f", results[0].Contribution)
	}

	// High amount triggers at score * weight
	input.Amount = 5000.0
	results, _ = engine.EvaluateAll(ctx, input)

	if !results[0].Triggered {
		t.Fatal("expected rule triggered for high amount")
	}
	if results[0].Contribution != 0.25 {
		t.Errorf("expected contribution 0.25, got %.2f", results[0].Contribution)
	}
	if results[0].Reason != "High custom amount threshold" {
		t.Errorf("unexpected reason: %q", results[0].Reason)
	}
}

func TestEvaluateBooleanRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "region-check",
		Name:       "Region Check",
		Expression: "region == 'nigeria'",
		Weight:     0.40,
		Reason:     "Watchlist region",
		Enabled:    true,
	}

	engine.LoadRule(rule)

	ctx := context.Background()

	input := &EvaluateInput{
		AccountID: "acct-001",
		TxID:      "tx-001",
		Region:    "ab",
	}

	results, _ := engine.EvaluateAll(ctx, input)
	if results[0].Triggered {
		t.Error("expected rule not triggered for home region")
	}

	input.Region = "nigeria"
	results, _ = engine.EvaluateAll(ctx, input)
	if !results[0].Triggered {
		t.Fatal("expected rule triggered for watchlist region")
	}
	if results[0].Contribution != 0.40 {
		t.Errorf("expected contribution 0.40, got %.2f", results[0].Contribution)
	}
}

func TestVelocityRule(t *testing.T) {
	// Mock velocity getter that returns a fixed count
	velocityGetter := func(ctx context.Context, accountID string, windowSecs int) (int64, error) {
		return 15, nil // Simulates 15 transactions in window
	}

	engine, _ := NewEngine(velocityGetter, 5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:          "velocity-check-001",
		Name:        "Transaction Velocity Check",
		Description: "Flags accounts with unusually high transaction frequency",
		Version:     "1.0.0",
		Expression:  "velocity_count > 10 ? 1.0 : (velocity_count > 5 ? 0.5 : 0.0)",
		Weight:      0.20,
		Reason:      "Burst of transactions",
		Enabled:     true,
	}
	engine.LoadRule(rule)

	ctx := context.Background()
	input := &EvaluateInput{
		AccountID:      "acct-001",
		TxID:           "tx-001",
		VelocityWindow: 3600, // 1 hour
	}

	results, _ := engine.EvaluateAll(ctx, input)

	// 15 transactions (> 10) scores 1.0, contributing the full weight
	if !results[0].Triggered {
		t.Fatal("expected rule triggered for high velocity")
	}
	if results[0].Contribution != 0.20 {
		t.Errorf("expected contribution 0.20, got %.2f", results[0].Contribution)
	}
}

func TestParallelExecution(t *testing.T) {
	engine, _ := NewEngine(nil, 3)
	defer engine.Close()

	// Load multiple rules
	for i := 0; i < 10; i++ {
		rule := &domain.RuleConfig{
			ID:         fmt.Sprintf("rule-%d", i),
			Name:       fmt.Sprintf("Rule %d", i),
			Expression: "amount > 0.0",
			Weight:     1.0,
			Enabled:    true,
		}
		engine.LoadRule(rule)
	}

	if engine.RulesCount() != 10 {
		t.Fatalf("expected 10 rules, got %d", engine.RulesCount())
	}

	ctx := context.Background()
	input := &EvaluateInput{
		AccountID: "acct-001",
		TxID:      "tx-001",
		Amount:    100.0,
	}

	results, err := engine.EvaluateAll(ctx, input)
	if err != nil {
		t.Fatalf("parallel evaluation failed: %v", err)
	}

	if len(results) != 10 {
		t.Errorf("expected 10 results, got %d", len(results))
	}

	for i, r := range results {
		if !r.Triggered {
			t.Errorf("rule %d: expected triggered", i)
		}
		if r.Contribution != 1.0 {
			t.Errorf("rule %d: expected contribution 1.0, got %.2f", i, r.Contribution)
		}
	}
}

func TestConcurrencyLimit(t *testing.T) {
	var concurrentCount int32
	var maxConcurrent int32

	// Velocity getter that tracks concurrent executions
	velocityGetter := func(ctx context.Context, accountID string, windowSecs int) (int64, error) {
		current := atomic.AddInt32(&concurrentCount, 1)
		defer atomic.AddInt32(&concurrentCount, -1)

		for {
			old := atomic.LoadInt32(&maxConcurrent)
			if current <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, current) {
				break
			}
		}

		time.Sleep(10 * time.Millisecond) // Simulate work
		return 5, nil
	}

	engine, _ := NewEngine(velocityGetter, 2) // Max 2 workers
	defer engine.Close()

	for i := 0; i < 10; i++ {
		rule := &domain.RuleConfig{
			ID:         fmt.Sprintf("rule-%d", i),
			Expression: "velocity_count > 10 ? 1.0 : 0.0",
			Weight:     1.0,
			Enabled:    true,
		}
		engine.LoadRule(rule)
	}

	ctx := context.Background()
	input := &EvaluateInput{
		AccountID:      "acct-001",
		TxID:           "tx-001",
		VelocityWindow: 3600,
	}

	engine.EvaluateAll(ctx, input)

	// Note: velocity is fetched once before parallel execution; the semaphore
	// bounds rule evaluation. This test mainly verifies the pool doesn't crash.
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{
		ID:         "old-rule",
		Expression: "amount > 0.0",
		Weight:     1.0,
		Enabled:    true,
	})

	err := engine.ReloadRules([]*domain.RuleConfig{
		{ID: "new-rule-1", Expression: "hour < 6", Weight: 0.1, Enabled: true},
		{ID: "new-rule-2", Expression: "merchant == 'Gift Cards'", Weight: 0.3, Enabled: true},
		{ID: "disabled-rule", Expression: "amount > 0.0", Weight: 1.0, Enabled: false},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if engine.RulesCount() != 2 {
		t.Errorf("expected 2 rules after reload, got %d", engine.RulesCount())
	}

	for _, r := range engine.GetLoadedRules() {
		if r.ID == "old-rule" {
			t.Error("old rule survived reload")
		}
	}
}

func TestRuleEvaluationError(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	// Compiles fine but fails at runtime: key missing from the tx map
	rule := &domain.RuleConfig{
		ID:         "runtime-error",
		Expression: "tx['missing'] == 'x' ? 1.0 : 0.0",
		Weight:     1.0,
		Enabled:    true,
	}
	engine.LoadRule(rule)

	ctx := context.Background()
	results, err := engine.EvaluateAll(ctx, &EvaluateInput{AccountID: "a", TxID: "t"})
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if results[0].Err == "" {
		t.Error("expected evaluation error recorded on result")
	}
	if results[0].Triggered {
		t.Error("errored rule must not trigger")
	}
}
