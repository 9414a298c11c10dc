package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes a function within a database transaction,
// passing the underlying transaction handle via the Tx argument.
//
// Repositories accept the same handle and, when they detect a real
// transaction, use tx-bound Exec/Query and SELECT ... FOR UPDATE. This is what
// serializes concurrent webhook deliveries for the same transaction: the
// handlers wrap each delivery in WithTx so duplicate callbacks observe
// committed state, not each other's half-applied writes. A nil handle means
// the non-transactional path.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
