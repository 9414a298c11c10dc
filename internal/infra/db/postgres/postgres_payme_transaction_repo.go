package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"payuz/internal/domain"
	"payuz/internal/domain/model"
	"payuz/internal/domain/ports/repository"
)

var _ repository.PaymeTransactionRepository = (*paymeTxRepo)(nil)

type paymeTxRepo struct{ pool *pgxpool.Pool }

func NewPaymeTransactionRepo(pool *pgxpool.Pool) *paymeTxRepo {
	return &paymeTxRepo{pool: pool}
}

const paymeTxColumns = `id, gateway_id, order_id, amount, state, create_time, perform_time, cancel_time, reason, created_at`

func (r *paymeTxRepo) Save(ctx context.Context, tx repository.Tx, t *model.PaymeTransaction) error {
	const q = `
INSERT INTO payme_transactions (id, gateway_id, order_id, amount, state, create_time, perform_time, cancel_time, reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (gateway_id) DO UPDATE SET
  state=$5, perform_time=$7, cancel_time=$8, reason=$9;`

	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.GatewayID, t.OrderID, t.Amount, t.State, t.CreateTime, t.PerformTime, t.CancelTime, t.Reason, t.CreatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymeTxRepo) FindByGatewayID(ctx context.Context, tx repository.Tx, gatewayID string) (*model.PaymeTransaction, error) {
	q := `SELECT ` + paymeTxColumns + ` FROM payme_transactions WHERE gateway_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, gatewayID)
	if err != nil {
		return nil, err
	}
	return scanPaymeTx(row)
}

func (r *paymeTxRepo) FindActiveByOrderID(ctx context.Context, tx repository.Tx, orderID int64) (*model.PaymeTransaction, error) {
	q := `SELECT ` + paymeTxColumns + ` FROM payme_transactions WHERE order_id=$1 AND state=1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, err
	}
	return scanPaymeTx(row)
}

func (r *paymeTxRepo) UpdateState(ctx context.Context, tx repository.Tx, gatewayID string, state int, performTime, cancelTime int64, reason *int) error {
	const q = `UPDATE payme_transactions SET state=$2, perform_time=$3, cancel_time=$4, reason=$5 WHERE gateway_id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, gatewayID, state, performTime, cancelTime, reason)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymeTxRepo) ListByCreateTime(ctx context.Context, tx repository.Tx, from, to int64) ([]*model.PaymeTransaction, error) {
	const q = `SELECT ` + paymeTxColumns + ` FROM payme_transactions WHERE create_time >= $1 AND create_time <= $2 ORDER BY create_time;`
	rows, err := queryRows(ctx, r.pool, tx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PaymeTransaction
	for rows.Next() {
		t := &model.PaymeTransaction{}
		if err := rows.Scan(&t.ID, &t.GatewayID, &t.OrderID, &t.Amount, &t.State, &t.CreateTime, &t.PerformTime, &t.CancelTime, &t.Reason, &t.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanPaymeTx(row pgx.Row) (*model.PaymeTransaction, error) {
	t := &model.PaymeTransaction{}
	if err := row.Scan(&t.ID, &t.GatewayID, &t.OrderID, &t.Amount, &t.State, &t.CreateTime, &t.PerformTime, &t.CancelTime, &t.Reason, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}
