package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"payuz/internal/domain"
	"payuz/internal/domain/model"
	"payuz/internal/domain/ports/repository"
	"payuz/internal/infra/events"
)

// MockOrderRepo is an in-memory OrderRepository with per-method overrides.
type MockOrderRepo struct {
	mu     sync.Mutex
	Orders map[int64]*model.Order

	SaveFunc         func(ctx context.Context, qx repository.Tx, o *model.Order) error
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
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, qx, o)
	}
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

// MockPaymeTxRepo is an in-memory PaymeTransactionRepository keyed by the
// gateway-issued id.
type MockPaymeTxRepo struct {
	mu  sync.Mutex
	Txs map[string]*model.PaymeTransaction

	SaveFunc            func(ctx context.Context, qx repository.Tx, t *model.PaymeTransaction) error
	FindByGatewayIDFunc func(ctx context.Context, qx repository.Tx, gatewayID string) (*model.PaymeTransaction, error)
}

func NewMockPaymeTxRepo(txs ...*model.PaymeTransaction) *MockPaymeTxRepo {
	m := &MockPaymeTxRepo{Txs: make(map[string]*model.PaymeTransaction)}
	for _, t := range txs {
		m.Txs[t.GatewayID] = t
	}
	return m
}

func (m *MockPaymeTxRepo) Save(ctx context.Context, qx repository.Tx, t *model.PaymeTransaction) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, qx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Txs[t.GatewayID] = t
	return nil
}

func (m *MockPaymeTxRepo) FindByGatewayID(ctx context.Context, qx repository.Tx, gatewayID string) (*model.PaymeTransaction, error) {
	if m.FindByGatewayIDFunc != nil {
		return m.FindByGatewayIDFunc(ctx, qx, gatewayID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Txs[gatewayID]
	if !ok {
		return nil, fmt.Errorf("%w: payme tx %s", domain.ErrNotFound, gatewayID)
	}
	cp := *t
	return &cp, nil
}

func (m *MockPaymeTxRepo) FindActiveByOrderID(ctx context.Context, qx repository.Tx, orderID int64) (*model.PaymeTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Txs {
		if t.OrderID == orderID && t.State == model.PaymeStateCreated {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: no active tx for order %d", domain.ErrNotFound, orderID)
}

func (m *MockPaymeTxRepo) UpdateState(ctx context.Context, qx repository.Tx, gatewayID string, state int, performTime, cancelTime int64, reason *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Txs[gatewayID]
	if !ok {
		return fmt.Errorf("%w: payme tx %s", domain.ErrNotFound, gatewayID)
	}
	t.State = state
	t.PerformTime = performTime
	t.CancelTime = cancelTime
	t.Reason = reason
	return nil
}

func (m *MockPaymeTxRepo) ListByCreateTime(ctx context.Context, qx repository.Tx, from, to int64) ([]*model.PaymeTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymeTransaction
	for _, t := range m.Txs {
		if t.CreateTime >= from && t.CreateTime <= to {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MockTxManager runs the function with a nil handle: repositories take the
// non-transactional path, which is what the mocks model anyway.
type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

// MockLocker records lock activity; TryLockFunc simulates contention.
type MockLocker struct {
	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
	Locked      []string
	Unlocked    []string
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	m.Locked = append(m.Locked, key)
	return "token", nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.Unlocked = append(m.Unlocked, key)
	return nil
}

// MockPublisher collects emitted order events.
type MockPublisher struct {
	mu     sync.Mutex
	Events []events.OrderStatusChanged
}

func (m *MockPublisher) PublishStatusChange(ctx context.Context, ev events.OrderStatusChanged) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
