package payment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"payuz/internal/domain/model"
	"payuz/internal/domain/ports/adapter"
)

const (
	GatewayPayme = "payme"

	paymeProdCheckout = "https://checkout.paycom.uz"
	paymeTestCheckout = "https://checkout.test.paycom.uz"
)

var _ adapter.PaymentGateway = (*PaymeGateway)(nil)

// PaymeGateway implements the Payme hosted-checkout link and the receipts
// merchant API.
type PaymeGateway struct {
	paymeID      string
	accountField string
	checkoutBase string
	merchant     *paymeMerchantAPI
}

func NewPaymeGateway(paymeID, paymeKey, accountField string, testMode bool) (*PaymeGateway, error) {
	if paymeID == "" || paymeKey == "" {
		return nil, errors.New("payme: merchant id and key required")
	}
	if accountField == "" {
		accountField = "order_id"
	}
	base := paymeProdCheckout
	if testMode {
		base = paymeTestCheckout
	}
	client := newHTTPClient(base, 15*time.Second)
	return &PaymeGateway{
		paymeID:      paymeID,
		accountField: accountField,
		checkoutBase: base,
		merchant:     newPaymeMerchantAPI(client, paymeID, paymeKey, accountField),
	}, nil
}

func (g *PaymeGateway) Name() string { return GatewayPayme }

// CreatePayment builds the checkout link: the base64 of
// "m=<id>;ac.<field>=<order>;a=<amount>[;c=<return_url>]" appended to the
// checkout host. Amount is tiyin, as Payme expects. Pure and deterministic.
func (g *PaymeGateway) CreatePayment(id string, amount int64, params adapter.CreateParams) (string, error) {
	if id == "" {
		return "", errors.New("payme: payment id required")
	}
	if amount <= 0 {
		return "", fmt.Errorf("payme: amount must be positive, got %d", amount)
	}

	raw := "m=" + g.paymeID +
		";ac." + g.accountField + "=" + id +
		";a=" + strconv.FormatInt(amount, 10)
	if params.ReturnURL != "" {
		raw += ";c=" + params.ReturnURL
	}
	return g.checkoutBase + "/" + base64.StdEncoding.EncodeToString([]byte(raw)), nil
}

// CheckPayment resolves a "payme_<account>_<amount>" id and maps the newest
// receipt's state to the canonical vocabulary.
func (g *PaymeGateway) CheckPayment(ctx context.Context, transactionID string) (*model.PaymentResult, error) {
	accountID, _, err := parseTransactionID(GatewayPayme, transactionID)
	if err != nil {
		return nil, err
	}
	receipt, err := g.merchant.CheckPayment(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &model.PaymentResult{
		TransactionID: transactionID,
		Status:        paymeReceiptStatus(receipt["state"]),
		Amount:        int64FromAny(receipt["amount"]),
		PaidAt:        paymeMillis(receipt["pay_time"]),
		CreatedAt:     paymeMillis(receipt["create_time"]),
		Raw:           receipt,
	}, nil
}

// CancelPayment cancels the newest receipt attached to the account.
func (g *PaymeGateway) CancelPayment(ctx context.Context, transactionID, reason string) (*model.PaymentResult, error) {
	accountID, _, err := parseTransactionID(GatewayPayme, transactionID)
	if err != nil {
		return nil, err
	}
	receipt, err := g.merchant.CancelPayment(ctx, accountID, reason)
	if err != nil {
		return nil, err
	}

	cancelledAt := paymeMillis(receipt["cancel_time"])
	if cancelledAt == nil {
		now := time.Now()
		cancelledAt = &now
	}
	return &model.PaymentResult{
		TransactionID: transactionID,
		Status:        model.OrderStatusCancelled,
		Amount:        int64FromAny(receipt["amount"]),
		CancelledAt:   cancelledAt,
		Raw:           receipt,
	}, nil
}

// paymeReceiptStatus maps receipt states onto the canonical set, degrading to
// unknown for values the table does not cover.
func paymeReceiptStatus(v any) model.OrderStatus {
	switch int64FromAny(v) {
	case 4:
		return model.OrderStatusPaid
	case 0, 1, 2, 3:
		return model.OrderStatusWaiting
	case -1, -2, 21, 50:
		return model.OrderStatusCancelled
	}
	return model.OrderStatusUnknown
}

func int64FromAny(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

func paymeMillis(v any) *time.Time {
	ms := int64FromAny(v)
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}
