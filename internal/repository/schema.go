package repository

// Schema definitions for the Kite database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    amount REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    merchant INTEGER NOT NULL,
    location_text TEXT,
    region_code TEXT,
    location_known INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(account_id, timestamp);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    score REAL NOT NULL,
    decision TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    reasons TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_account ON assessments(account_id);
CREATE INDEX IF NOT EXISTS idx_assessments_tx ON assessments(account_id, tx_id);
CREATE INDEX IF NOT EXISTS idx_assessments_decision ON assessments(account_id, decision);
`

const schemaAccountStates = `
CREATE TABLE IF NOT EXISTS account_states (
    account_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    flagged_count INTEGER NOT NULL DEFAULT 0,
    verification_failure_count INTEGER NOT NULL DEFAULT 0,
    last_transaction_time TIMESTAMP,
    last_region TEXT,
    blocked INTEGER NOT NULL DEFAULT 0,
    history TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    reason TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAssessments,
		schemaAccountStates,
		schemaRuleConfigs,
	}
}
