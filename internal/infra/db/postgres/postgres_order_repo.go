package postgres

import (
	"errors"

	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"payuz/internal/domain"
	"payuz/internal/domain/model"
	"payuz/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

func (r *orderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `
INSERT INTO orders (id, product_name, amount, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  product_name=$2, amount=$3, status=$4, updated_at=$6;`

	_, err := execSQL(ctx, r.pool, tx, q, o.ID, o.ProductName, o.Amount, o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Order, error) {
	q := `SELECT id, product_name, amount, status, created_at, updated_at FROM orders WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	o := &model.Order{}
	if err := row.Scan(&o.ID, &o.ProductName, &o.Amount, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return o, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, status model.OrderStatus) error {
	const q = `UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, status)
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
