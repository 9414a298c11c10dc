package model

import "time"

// PaymentResult is the transient outcome of a merchant-initiated check or
// cancel call. It is not persisted here; the caller decides whether to keep it.
type PaymentResult struct {
	TransactionID string
	Status        OrderStatus // canonical, never a raw vendor value
	Amount        int64       // tiyin
	PaidAt        *time.Time
	CancelledAt   *time.Time
	CreatedAt     *time.Time
	Raw           map[string]any // vendor response as received
}

// Payme transaction states as defined by the vendor protocol.
const (
	PaymeStateCreated               = 1
	PaymeStatePerformed             = 2
	PaymeStateCancelled             = -1
	PaymeStateCancelledAfterPerform = -2
)

// Payme cancel reason codes (subset the webhook handler emits).
const (
	PaymeReasonReceiverNotFound   = 1
	PaymeReasonProcessingError    = 3
	PaymeReasonRefund             = 5
	PaymeReasonUnknownTransaction = 6
)

// PaymeTransaction records a gateway-issued Payme transaction tied to a local
// order. Vendor timestamps are unix milliseconds, as on the wire.
type PaymeTransaction struct {
	ID          string // merchant-side id returned in RPC results
	GatewayID   string // Payme-issued transaction id from CreateTransaction
	OrderID     int64
	Amount      int64 // tiyin
	State       int
	CreateTime  int64
	PerformTime int64
	CancelTime  int64
	Reason      *int
	CreatedAt   time.Time
}
