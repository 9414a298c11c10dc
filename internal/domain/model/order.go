package model

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"   // order created, no gateway activity yet
	OrderStatusWaiting   OrderStatus = "waiting"   // gateway opened a transaction; awaiting confirmation
	OrderStatusPaid      OrderStatus = "paid"      // gateway confirmed the payment
	OrderStatusCancelled OrderStatus = "cancelled" // cancelled by gateway, merchant or user
	OrderStatusFailed    OrderStatus = "failed"    // gateway reported an error or timeout
	OrderStatusUnknown   OrderStatus = "unknown"   // unrecognized vendor status; safe default
)

// Terminal reports whether no further transition out of s is allowed.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusPaid, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to "to" is a legal transition.
// Re-entering the current state is always allowed so replayed webhooks stay
// idempotent; everything out of a terminal state is rejected.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if s == to {
		return true
	}
	if s.Terminal() {
		return false
	}
	switch s {
	case OrderStatusPending:
		return to == OrderStatusWaiting || to == OrderStatusCancelled
	case OrderStatusWaiting:
		return to == OrderStatusPending || to == OrderStatusPaid ||
			to == OrderStatusFailed || to == OrderStatusCancelled
	case OrderStatusUnknown:
		// recovery path: an order whose status was lost may settle anywhere
		return true
	}
	return false
}

// Order is the merchant-side purchase record. The library only ever reads
// ID/Amount to build gateway requests and writes Status in response to webhook
// events or explicit check calls; it never deletes an order.
type Order struct {
	ID          int64
	ProductName string
	Amount      int64 // tiyin (minor currency unit); callers convert from som
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
