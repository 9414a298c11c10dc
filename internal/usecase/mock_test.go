package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"payuz/internal/domain"
	"payuz/internal/domain/model"
	"payuz/internal/domain/ports/adapter"
	"payuz/internal/domain/ports/repository"
)

// MockOrderRepo is an in-memory OrderRepository with per-method overrides.
type MockOrderRepo struct {
	mu     sync.Mutex
	Orders map[int64]*model.Order

	FindByIDFunc     func(ctx context.Context, qx repository.Tx, id int64) (*model.Order, error)
	UpdateStatusFunc func(ctx context.Context, qx repository.Tx, id int64, status model.OrderStatus) error

	StatusUpdates []model.OrderStatus
}

func NewMockOrderRepo(orders ...*model.Order) *MockOrderRepo {
	m := &MockOrderRepo{Orders: make(map[int64]*model.Order)}
	for _, o := range orders {
		m.Orders[o.ID] = o
	}
	return m
}

func (m *MockOrderRepo) Save(ctx context.Context, qx repository.Tx, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Orders[o.ID] = o
	return nil
}

func (m *MockOrderRepo) FindByID(ctx context.Context, qx repository.Tx, id int64) (*model.Order, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, qx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrderRepo) UpdateStatus(ctx context.Context, qx repository.Tx, id int64, status model.OrderStatus) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, qx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[id]
	if !ok {
		return fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	o.Status = status
	m.StatusUpdates = append(m.StatusUpdates, status)
	return nil
}

// MockGateway is a scripted PaymentGateway.
type MockGateway struct {
	GatewayName       string
	CreatePaymentFunc func(id string, amount int64, params adapter.CreateParams) (string, error)
	CheckPaymentFunc  func(ctx context.Context, transactionID string) (*model.PaymentResult, error)
	CancelPaymentFunc func(ctx context.Context, transactionID, reason string) (*model.PaymentResult, error)
}

func (m *MockGateway) Name() string { return m.GatewayName }

func (m *MockGateway) CreatePayment(id string, amount int64, params adapter.CreateParams) (string, error) {
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(id, amount, params)
	}
	return fmt.Sprintf("https://pay.example/%s/%s/%d", m.GatewayName, id, amount), nil
}

func (m *MockGateway) CheckPayment(ctx context.Context, transactionID string) (*model.PaymentResult, error) {
	if m.CheckPaymentFunc != nil {
		return m.CheckPaymentFunc(ctx, transactionID)
	}
	return &model.PaymentResult{TransactionID: transactionID, Status: model.OrderStatusUnknown}, nil
}

func (m *MockGateway) CancelPayment(ctx context.Context, transactionID, reason string) (*model.PaymentResult, error) {
	if m.CancelPaymentFunc != nil {
		return m.CancelPaymentFunc(ctx, transactionID, reason)
	}
	return &model.PaymentResult{TransactionID: transactionID, Status: model.OrderStatusCancelled}, nil
}

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
