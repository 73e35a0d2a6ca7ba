// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kite/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction partitioned by account.
func (r *SQLRepository) SaveTransaction(ctx context.Context, accountID string, tx *domain.Transaction) error {
	if accountID == "" {
		return fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	known := 0
	if tx.LocationKnown {
		known = 1
	}

	query := `
		INSERT INTO transactions (
			id, account_id, amount, timestamp, merchant,
			location_text, region_code, location_known, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, accountID, tx.Amount, tx.Timestamp, int(tx.Merchant),
		tx.LocationText, tx.RegionCode, known, time.Now().UTC(),
	)
	return err
}

// GetTransaction retrieves a transaction by ID within an account.
func (r *SQLRepository) GetTransaction(ctx context.Context, accountID string, txID string) (*domain.Transaction, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, account_id, amount, timestamp, merchant,
			   location_text, region_code, location_known
		FROM transactions
		WHERE account_id = ? AND id = ?
	`

	var tx domain.Transaction
	var merchant, known int

	err := r.db.QueryRowContext(ctx, r.rebind(query), accountID, txID).Scan(
		&tx.ID, &tx.AccountID, &tx.Amount, &tx.Timestamp, &merchant,
		&tx.LocationText, &tx.RegionCode, &known,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.Merchant = domain.MerchantCategory(merchant)
	tx.LocationKnown = known == 1

	return &tx, nil
}

// GetTransactionsSince retrieves an account's transactions newer than a
// point in time, most recent first.
func (r *SQLRepository) GetTransactionsSince(ctx context.Context, accountID string, since time.Time) ([]*domain.Transaction, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, account_id, amount, timestamp, merchant,
			   location_text, region_code, location_known
		FROM transactions
		WHERE account_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var merchant, known int

		if err := rows.Scan(
			&tx.ID, &tx.AccountID, &tx.Amount, &tx.Timestamp, &merchant,
			&tx.LocationText, &tx.RegionCode, &known,
		); err != nil {
			return nil, err
		}

		tx.Merchant = domain.MerchantCategory(merchant)
		tx.LocationKnown = known == 1
		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// SaveAssessment stores an assessment result.
func (r *SQLRepository) SaveAssessment(ctx context.Context, accountID string, a *domain.RiskAssessment) error {
	if accountID == "" {
		return fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	reasons, _ := json.Marshal(a.Reasons)
	metadata, _ := json.Marshal(a.Metadata)

	query := `
		INSERT INTO assessments (
			id, account_id, tx_id, score, decision, timestamp, reasons, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, accountID, a.TxID, a.Score, string(a.Decision), a.Timestamp,
		string(reasons), string(metadata),
	)
	return err
}

// GetAssessment retrieves an assessment by ID within an account.
func (r *SQLRepository) GetAssessment(ctx context.Context, accountID string, assessmentID string) (*domain.RiskAssessment, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, account_id, tx_id, score, decision, timestamp, reasons, metadata
		FROM assessments
		WHERE account_id = ? AND id = ?
	`

	var a domain.RiskAssessment
	var decision, reasons, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), accountID, assessmentID).Scan(
		&a.ID, &a.AccountID, &a.TxID, &a.Score, &decision, &a.Timestamp,
		&reasons, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Decision = domain.Decision(decision)
	json.Unmarshal([]byte(reasons), &a.Reasons)
	json.Unmarshal([]byte(metadata), &a.Metadata)

	return &a, nil
}

// SaveAccountState upserts the escalation state for an account.
func (r *SQLRepository) SaveAccountState(ctx context.Context, state *domain.AccountState) error {
	if state == nil || state.AccountID == "" {
		return fmt.Errorf("%w: account state with accountID is required", ErrInvalidInput)
	}

	history, _ := json.Marshal(state.History)

	blocked := 0
	if state.Blocked {
		blocked = 1
	}

	var lastTx any
	if state.LastTransactionTime != nil {
		lastTx = *state.LastTransactionTime
	}

	query := `
		INSERT INTO account_states (
			account_id, status, flagged_count, verification_failure_count,
			last_transaction_time, last_region, blocked, history, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			status = excluded.status,
			flagged_count = excluded.flagged_count,
			verification_failure_count = excluded.verification_failure_count,
			last_transaction_time = excluded.last_transaction_time,
			last_region = excluded.last_region,
			blocked = excluded.blocked,
			history = excluded.history,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		state.AccountID, string(state.Status),
		state.FlaggedCount, state.VerificationFailureCount,
		lastTx, state.LastRegion, blocked, string(history),
		time.Now().UTC(),
	)
	return err
}

// GetAccountState retrieves the escalation state for an account.
func (r *SQLRepository) GetAccountState(ctx context.Context, accountID string) (*domain.AccountState, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `
		SELECT account_id, status, flagged_count, verification_failure_count,
			   last_transaction_time, last_region, blocked, history
		FROM account_states
		WHERE account_id = ?
	`

	var state domain.AccountState
	var status, history string
	var lastTx sql.NullTime
	var lastRegion sql.NullString
	var blocked int

	err := r.db.QueryRowContext(ctx, r.rebind(query), accountID).Scan(
		&state.AccountID, &status,
		&state.FlaggedCount, &state.VerificationFailureCount,
		&lastTx, &lastRegion, &blocked, &history,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	state.Status = domain.AccountStatus(status)
	state.Blocked = blocked == 1
	if lastTx.Valid {
		t := lastTx.Time
		state.LastTransactionTime = &t
	}
	if lastRegion.Valid {
		state.LastRegion = lastRegion.String
	}
	if err := json.Unmarshal([]byte(history), &state.History); err != nil {
		return nil, fmt.Errorf("failed to parse account history: %w", err)
	}

	return &state, nil
}

// SaveRuleConfig upserts a custom rule configuration by id and version.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule with ID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, name, description, version, expression, weight, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			weight = excluded.weight,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		rule.Version, rule.Expression, rule.Weight, rule.Reason, enabled,
		now, now,
	)
	return err
}

// GetRuleConfig retrieves the latest enabled version of a rule.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, ruleID string) (*domain.RuleConfig, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("%w: ruleID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, version, expression, weight, reason, enabled
		FROM rule_configs
		WHERE id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.RuleConfig
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&cfg.ID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &cfg.Weight, &cfg.Reason, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1

	return &cfg, nil
}

// ListRuleConfigs retrieves all enabled rule configurations.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, weight, reason, enabled
		FROM rule_configs
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &cfg.Weight, &cfg.Reason, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
