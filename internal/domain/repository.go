// Package domain defines the core interfaces and types for Kite.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. All methods take
// the owning account ID so storage stays partitioned per account.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, accountID string, tx *Transaction) error
	GetTransaction(ctx context.Context, accountID string, txID string) (*Transaction, error)
	GetTransactionsSince(ctx context.Context, accountID string, since time.Time) ([]*Transaction, error)

	// Assessment results
	SaveAssessment(ctx context.Context, accountID string, a *RiskAssessment) error
	GetAssessment(ctx context.Context, accountID string, assessmentID string) (*RiskAssessment, error)

	// Account escalation state
	SaveAccountState(ctx context.Context, state *AccountState) error
	GetAccountState(ctx context.Context, accountID string) (*AccountState, error)

	// Custom risk rule configuration
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
