package repository

import (
	"context"

	"payuz/internal/domain/model"
)

// OrderRepository is the persistence collaborator the host application plugs
// in. Which columns hold the account key and the amount is the
// implementation's concern; the webhook handlers only see orders by id.
type OrderRepository interface {
	Save(ctx context.Context, qx Tx, o *model.Order) error
	FindByID(ctx context.Context, qx Tx, id int64) (*model.Order, error)
	UpdateStatus(ctx context.Context, qx Tx, id int64, status model.OrderStatus) error
}

// PaymeTransactionRepository stores gateway-issued Payme transactions so the
// RPC webhook can answer CheckTransaction/GetStatement and enforce the
// one-active-transaction-per-order rule.
type PaymeTransactionRepository interface {
	Save(ctx context.Context, qx Tx, t *model.PaymeTransaction) error
	FindByGatewayID(ctx context.Context, qx Tx, gatewayID string) (*model.PaymeTransaction, error)
	FindActiveByOrderID(ctx context.Context, qx Tx, orderID int64) (*model.PaymeTransaction, error)
	UpdateState(ctx context.Context, qx Tx, gatewayID string, state int, performTime, cancelTime int64, reason *int) error
	ListByCreateTime(ctx context.Context, qx Tx, from, to int64) ([]*model.PaymeTransaction, error)
}
