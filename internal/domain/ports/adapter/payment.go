package adapter

import (
	"context"

	"payuz/internal/domain/model"
)

// CreateParams carries the optional knobs of a hosted-checkout link.
type CreateParams struct {
	ReturnURL   string // where the gateway sends the user after payment
	CallbackURL string // where the gateway posts status notifications
	Description string // human-readable purchase description
}

// PaymentGateway is the hex port for payment providers (Click, Payme).
//
// All amounts are tiyin (minor currency unit). CreatePayment does not rescale;
// callers convert before calling.
type PaymentGateway interface {
	Name() string

	// CreatePayment deterministically assembles the hosted-checkout redirect URL
	// for the given order id and amount. Pure: no network call, no state, same
	// inputs always produce the same URL.
	CreatePayment(id string, amount int64, params CreateParams) (string, error)

	// CheckPayment resolves a composite "<gateway>_<account>_<amount>" id,
	// queries the vendor merchant API and maps the native status to the
	// canonical vocabulary. Unrecognized vendor statuses come back as
	// model.OrderStatusUnknown, never as an error.
	CheckPayment(ctx context.Context, transactionID string) (*model.PaymentResult, error)

	// CancelPayment cancels the referenced payment. Fails with
	// domain.ErrInvalidState when the vendor reports the transaction is not
	// cancellable.
	CancelPayment(ctx context.Context, transactionID, reason string) (*model.PaymentResult, error)
}
