// Package velocity provides windowed transaction counting per account.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kite/internal/domain"
)

// Service counts recent transactions for an account. The count feeds the
// velocity_count variable in custom rules. Counting prefers the cache's
// atomic windowed counter and falls back to scanning the repository.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Record notes one processed transaction in the windowed counter. Best
// effort: a cache miss here only degrades the count to the repository path.
func (s *Service) Record(ctx context.Context, accountID string, windowSecs int) {
	if s.cache == nil {
		return
	}
	key := counterKey(windowSecs)
	_, _ = s.cache.IncrementCounter(ctx, accountID, key, time.Duration(windowSecs)*time.Second)
}

// GetTransactionCount returns the number of transactions for an account
// within a time window. This is the VelocityGetter signature expected by the
// rule engine.
func (s *Service) GetTransactionCount(ctx context.Context, accountID string, windowSecs int) (int64, error) {
	if accountID == "" {
		return 0, fmt.Errorf("accountID is required")
	}

	since := time.Now().Add(-time.Duration(windowSecs) * time.Second)

	if s.repo != nil {
		return s.countFromRepo(ctx, accountID, since)
	}

	return 0, fmt.Errorf("no data source available")
}

// countFromRepo uses the repository to get transactions and count them.
func (s *Service) countFromRepo(ctx context.Context, accountID string, since time.Time) (int64, error) {
	txs, err := s.repo.GetTransactionsSince(ctx, accountID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to get transactions: %w", err)
	}
	return int64(len(txs)), nil
}

// GetVelocityGetter returns a VelocityGetter function for the rule engine.
func (s *Service) GetVelocityGetter() func(ctx context.Context, accountID string, windowSecs int) (int64, error) {
	return s.GetTransactionCount
}

func counterKey(windowSecs int) string {
	return fmt.Sprintf("velocity:%d", windowSecs)
}
