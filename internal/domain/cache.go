package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations. Supports two-phase
// caching: local LRU (Community) + Redis (Pro). Keys are namespaced per
// account.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, accountID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, accountID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, accountID string, key string) error

	// GetAssessment retrieves a cached assessment.
	GetAssessment(ctx context.Context, accountID string, assessmentID string) (*RiskAssessment, error)

	// SetAssessment caches an assessment for fast reads.
	SetAssessment(ctx context.Context, accountID string, a *RiskAssessment, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for windowed velocity counts.
	IncrementCounter(ctx context.Context, accountID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
