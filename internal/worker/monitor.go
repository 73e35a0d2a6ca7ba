// Package worker provides async consumption of risk events from the event
// bus. The monitor mirrors what a downstream fraud-operations consumer would
// do with the published topics: log them and keep running counts.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/opensource-finance/kite/internal/domain"
)

// Monitor subscribes to risk event topics for a set of accounts.
type Monitor struct {
	bus domain.EventBus

	mu            sync.Mutex
	subscriptions []domain.Subscription
	counts        map[string]int64

	ctx    context.Context
	cancel context.CancelFunc
}

// watchedTopics are the topics a monitor consumes per account.
var watchedTopics = []string{
	domain.TopicAssessmentCompleted,
	domain.TopicAlert,
	domain.TopicVerificationFailed,
	domain.TopicAccountFrozen,
}

// NewMonitor creates a monitor on the given bus.
func NewMonitor(bus domain.EventBus) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		bus:    bus,
		counts: make(map[string]int64),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Watch subscribes to all risk event topics for one account.
func (m *Monitor) Watch(accountID string) error {
	for _, topic := range watchedTopics {
		sub, err := m.bus.Subscribe(m.ctx, accountID, topic, m.handleMessage)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.subscriptions = append(m.subscriptions, sub)
		m.mu.Unlock()
	}

	slog.Info("monitor watching account",
		"account_id", accountID,
		"topics", len(watchedTopics),
	)
	return nil
}

// handleMessage logs one consumed event and bumps its topic counter.
func (m *Monitor) handleMessage(ctx context.Context, msg *domain.Message) error {
	m.mu.Lock()
	m.counts[msg.Topic]++
	m.mu.Unlock()

	var a domain.RiskAssessment
	if err := json.Unmarshal(msg.Payload, &a); err != nil {
		slog.Error("failed to parse event payload",
			"message_id", msg.ID,
			"topic", msg.Topic,
			"error", err,
		)
		return err
	}

	switch msg.Topic {
	case domain.TopicAccountFrozen:
		slog.Warn("account frozen event",
			"account_id", msg.AccountID,
			"tx_id", a.TxID,
			"score", a.Score,
		)
	case domain.TopicAlert, domain.TopicVerificationFailed:
		slog.Warn("risk event",
			"topic", msg.Topic,
			"account_id", msg.AccountID,
			"tx_id", a.TxID,
			"decision", a.Decision,
			"score", a.Score,
		)
	default:
		slog.Debug("assessment event",
			"account_id", msg.AccountID,
			"tx_id", a.TxID,
			"decision", a.Decision,
			"score", a.Score,
		)
	}

	return nil
}

// Stop unsubscribes everything and stops handling.
func (m *Monitor) Stop() error {
	m.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	m.subscriptions = nil

	slog.Info("monitor stopped")
	return nil
}

// Stats returns subscription and per-topic consumption counts.
type Stats struct {
	SubscriptionCount int              `json:"subscriptionCount"`
	Consumed          map[string]int64 `json:"consumed"`
}

// GetStats returns a snapshot of monitor statistics.
func (m *Monitor) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	consumed := make(map[string]int64, len(m.counts))
	for topic, n := range m.counts {
		consumed[topic] = n
	}
	return Stats{
		SubscriptionCount: len(m.subscriptions),
		Consumed:          consumed,
	}
}
