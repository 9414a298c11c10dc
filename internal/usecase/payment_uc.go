package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"payuz/internal/domain"
	"payuz/internal/domain/model"
	"payuz/internal/domain/ports/adapter"
	"payuz/internal/domain/ports/repository"
	"payuz/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// CreatePayment returns the hosted-checkout redirect URL for the order on
	// the named gateway. No network call is made.
	CreatePayment(ctx context.Context, gateway string, orderID int64, params adapter.CreateParams) (string, error)
	// CheckPayment queries the owning gateway (derived from the composite id)
	// and syncs the order status when the result implies a legal transition.
	CheckPayment(ctx context.Context, transactionID string) (*model.PaymentResult, error)
	// CancelPayment cancels on the owning gateway and marks the order cancelled.
	CancelPayment(ctx context.Context, transactionID, reason string) (*model.PaymentResult, error)
}

type paymentUC struct {
	orders   repository.OrderRepository
	gateways map[string]adapter.PaymentGateway
	log      *zerolog.Logger
}

func NewPaymentUseCase(orders repository.OrderRepository, gateways []adapter.PaymentGateway, log *zerolog.Logger) *paymentUC {
	byName := make(map[string]adapter.PaymentGateway, len(gateways))
	for _, g := range gateways {
		byName[g.Name()] = g
	}
	return &paymentUC{orders: orders, gateways: byName, log: log}
}

func (u *paymentUC) CreatePayment(ctx context.Context, gateway string, orderID int64, params adapter.CreateParams) (string, error) {
	gw, ok := u.gateways[gateway]
	if !ok {
		return "", fmt.Errorf("%w: unknown gateway %q", domain.ErrInvalidArgument, gateway)
	}
	order, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return "", err
	}
	if order.Amount <= 0 {
		return "", fmt.Errorf("%w: order %d has non-positive amount", domain.ErrInvalidAmount, orderID)
	}

	amount := order.Amount // tiyin; Payme takes it as-is
	if gateway == "click" {
		// Click's checkout URL is denominated in som.
		if order.Amount%100 != 0 {
			return "", fmt.Errorf("%w: click amounts must be whole som, order %d has %d tiyin", domain.ErrInvalidAmount, orderID, order.Amount)
		}
		amount = order.Amount / 100
	}

	url, err := gw.CreatePayment(strconv.FormatInt(order.ID, 10), amount, params)
	if err != nil {
		return "", err
	}
	metrics.IncPayment(gateway, "initiated")
	u.log.Info().Str("gateway", gateway).Int64("order_id", orderID).Msg("payment link created")
	return url, nil
}

func (u *paymentUC) CheckPayment(ctx context.Context, transactionID string) (*model.PaymentResult, error) {
	gw, err := u.owner(transactionID)
	if err != nil {
		return nil, err
	}
	result, err := gw.CheckPayment(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	u.syncOrder(ctx, transactionID, result.Status)
	return result, nil
}

func (u *paymentUC) CancelPayment(ctx context.Context, transactionID, reason string) (*model.PaymentResult, error) {
	gw, err := u.owner(transactionID)
	if err != nil {
		return nil, err
	}
	result, err := gw.CancelPayment(ctx, transactionID, reason)
	if err != nil {
		return nil, err
	}
	u.syncOrder(ctx, transactionID, model.OrderStatusCancelled)
	return result, nil
}

// owner picks the gateway named by the composite id's first segment.
func (u *paymentUC) owner(transactionID string) (adapter.PaymentGateway, error) {
	name, _, found := strings.Cut(transactionID, "_")
	if !found {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTransactionID, transactionID)
	}
	gw, ok := u.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTransactionID, transactionID)
	}
	return gw, nil
}

// syncOrder writes the checked status back when that is a legal transition.
// Unknown results and illegal transitions leave the order untouched.
func (u *paymentUC) syncOrder(ctx context.Context, transactionID string, status model.OrderStatus) {
	if status == model.OrderStatusUnknown {
		return
	}
	parts := strings.Split(transactionID, "_")
	if len(parts) < 3 {
		return
	}
	orderID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return
	}
	order, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return
	}
	if order.Status == status || !order.Status.CanTransition(status) {
		return
	}
	if err := u.orders.UpdateStatus(ctx, repository.NoTX, orderID, status); err != nil {
		u.log.Error().Err(err).Int64("order_id", orderID).Msg("order status sync failed")
		return
	}
	metrics.IncPayment(parts[0], string(status))
}
