package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kite/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kite-repo-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestTransactionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := &domain.Transaction{
		ID:            "tx-001",
		AccountID:     "acct-001",
		Amount:        1250.0,
		Timestamp:     time.Now().UTC().Truncate(time.Second),
		Merchant:      domain.MerchantTravel,
		LocationText:  "Toronto, Ontario",
		RegionCode:    "ontario",
		LocationKnown: true,
	}

	if err := repo.SaveTransaction(ctx, "acct-001", tx); err != nil {
		t.Fatalf("failed to save transaction: %v", err)
	}

	got, err := repo.GetTransaction(ctx, "acct-001", "tx-001")
	if err != nil {
		t.Fatalf("failed to get transaction: %v", err)
	}

	if got.Amount != tx.Amount {
		t.Errorf("expected amount %.2f, got %.2f", tx.Amount, got.Amount)
	}
	if got.Merchant != domain.MerchantTravel {
		t.Errorf("expected merchant %d, got %d", domain.MerchantTravel, got.Merchant)
	}
	if got.RegionCode != "ontario" || !got.LocationKnown {
		t.Errorf("location fields did not round-trip: %+v", got)
	}
}

func TestGetTransactionAccountIsolation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := &domain.Transaction{
		ID:        "tx-001",
		AccountID: "acct-001",
		Amount:    100.0,
		Timestamp: time.Now().UTC(),
		Merchant:  domain.MerchantGroceries,
	}
	if err := repo.SaveTransaction(ctx, "acct-001", tx); err != nil {
		t.Fatalf("failed to save transaction: %v", err)
	}

	_, err := repo.GetTransaction(ctx, "acct-002", "tx-001")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound for different account, got: %v", err)
	}
}

func TestGetTransactionsSince(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := &domain.Transaction{
		ID: "tx-old", AccountID: "acct-001", Amount: 10,
		Timestamp: now.Add(-2 * time.Hour), Merchant: domain.MerchantGroceries,
	}
	recent := &domain.Transaction{
		ID: "tx-recent", AccountID: "acct-001", Amount: 20,
		Timestamp: now.Add(-2 * time.Minute), Merchant: domain.MerchantGroceries,
	}
	repo.SaveTransaction(ctx, "acct-001", old)
	repo.SaveTransaction(ctx, "acct-001", recent)

	txs, err := repo.GetTransactionsSince(ctx, "acct-001", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != "tx-recent" {
		t.Errorf("expected only the recent transaction, got %d", len(txs))
	}
}

func TestAssessmentRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := &domain.RiskAssessment{
		ID:        "assess-001",
		AccountID: "acct-001",
		TxID:      "tx-001",
		Score:     0.65,
		Decision:  domain.DecisionApprovedFlagged,
		Timestamp: time.Now().UTC(),
		Reasons:   []string{"Risk spend zone ($2,001-$5,000)", "Valid Alberta location"},
		Metadata: domain.AssessmentMetadata{
			TraceID:          "trace-001",
			FactorsEvaluated: 8,
			EngineVersion:    "kite-1.0",
		},
	}

	if err := repo.SaveAssessment(ctx, "acct-001", a); err != nil {
		t.Fatalf("failed to save assessment: %v", err)
	}

	got, err := repo.GetAssessment(ctx, "acct-001", "assess-001")
	if err != nil {
		t.Fatalf("failed to get assessment: %v", err)
	}

	if got.Decision != domain.DecisionApprovedFlagged {
		t.Errorf("expected decision APPROVED_FLAGGED, got %s", got.Decision)
	}
	if len(got.Reasons) != 2 || got.Reasons[0] != a.Reasons[0] {
		t.Errorf("reasons did not round-trip: %v", got.Reasons)
	}
	if got.Metadata.TraceID != "trace-001" {
		t.Errorf("metadata did not round-trip: %+v", got.Metadata)
	}

	_, err = repo.GetAssessment(ctx, "acct-001", "missing")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestAccountStateUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetAccountState(ctx, "acct-001")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for fresh account, got: %v", err)
	}

	lastTx := time.Now().UTC().Truncate(time.Second)
	state := &domain.AccountState{
		AccountID:                "acct-001",
		Status:                   domain.AccountWarned,
		FlaggedCount:             2,
		VerificationFailureCount: 3,
		LastTransactionTime:      &lastTx,
		LastRegion:               "ontario",
		History: []domain.HistoryEntry{
			{Amount: 100, Merchant: "Groceries / Essentials", Hour: 12, Region: "ab"},
		},
	}

	if err := repo.SaveAccountState(ctx, state); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}

	got, err := repo.GetAccountState(ctx, "acct-001")
	if err != nil {
		t.Fatalf("failed to get state: %v", err)
	}
	if got.Status != domain.AccountWarned || got.VerificationFailureCount != 3 {
		t.Errorf("state did not round-trip: %+v", got)
	}
	if got.LastTransactionTime == nil || !got.LastTransactionTime.Equal(lastTx) {
		t.Errorf("last transaction time did not round-trip: %v", got.LastTransactionTime)
	}
	if len(got.History) != 1 || got.History[0].Region != "ab" {
		t.Errorf("history did not round-trip: %v", got.History)
	}

	// Upsert path
	state.Status = domain.AccountFrozen
	state.Blocked = true
	state.FlaggedCount = 5
	if err := repo.SaveAccountState(ctx, state); err != nil {
		t.Fatalf("failed to upsert state: %v", err)
	}

	got, _ = repo.GetAccountState(ctx, "acct-001")
	if got.Status != domain.AccountFrozen || !got.Blocked || got.FlaggedCount != 5 {
		t.Errorf("upsert did not apply: %+v", got)
	}
}

func TestRuleConfigVersioning(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rule := &domain.RuleConfig{
		ID:         "rule-001",
		Name:       "Watchlist Region",
		Version:    "1.0.0",
		Expression: "region == 'nigeria'",
		Weight:     0.4,
		Reason:     "Watchlist region",
		Enabled:    true,
	}
	if err := repo.SaveRuleConfig(ctx, rule); err != nil {
		t.Fatalf("failed to save rule: %v", err)
	}

	rule.Version = "1.1.0"
	rule.Weight = 0.5
	if err := repo.SaveRuleConfig(ctx, rule); err != nil {
		t.Fatalf("failed to save new version: %v", err)
	}

	got, err := repo.GetRuleConfig(ctx, "rule-001")
	if err != nil {
		t.Fatalf("failed to get rule: %v", err)
	}
	if got.Version != "1.1.0" || got.Weight != 0.5 {
		t.Errorf("expected latest version, got %+v", got)
	}

	list, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		t.Fatalf("failed to list rules: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 enabled versions, got %d", len(list))
	}
}

func TestPing(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}
}
