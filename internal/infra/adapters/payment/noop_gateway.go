package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"payuz/internal/domain/model"
	"payuz/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopGateway)(nil)

// NoopGateway is a simple in-memory gateway to use in tests and dev mode.
type NoopGateway struct {
	mu      sync.Mutex
	intents map[string]int64 // account id -> amount (tiyin)
}

func NewNoopGateway() *NoopGateway {
	return &NoopGateway{intents: make(map[string]int64)}
}

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) CreatePayment(id string, amount int64, params adapter.CreateParams) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("noop: amount must be positive, got %d", amount)
	}
	g.mu.Lock()
	g.intents[id] = amount
	g.mu.Unlock()
	return "https://example.test/pay/" + id, nil
}

func (g *NoopGateway) CheckPayment(ctx context.Context, transactionID string) (*model.PaymentResult, error) {
	accountID, _, err := parseTransactionID("noop", transactionID)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	amount, ok := g.intents[accountID]
	g.mu.Unlock()
	status := model.OrderStatusWaiting
	if !ok {
		status = model.OrderStatusUnknown
	}
	return &model.PaymentResult{TransactionID: transactionID, Status: status, Amount: amount}, nil
}

func (g *NoopGateway) CancelPayment(ctx context.Context, transactionID, reason string) (*model.PaymentResult, error) {
	_, _, err := parseTransactionID("noop", transactionID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &model.PaymentResult{
		TransactionID: transactionID,
		Status:        model.OrderStatusCancelled,
		CancelledAt:   &now,
	}, nil
}
