package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"payuz/internal/domain/model"
	"payuz/internal/domain/ports/adapter"
)

const (
	GatewayClick = "click"

	clickCheckoutURL = "https://my.click.uz/services/pay"
	clickProdAPI     = "https://api.click.uz/v2/merchant"
	clickTestAPI     = "https://testmerchant.click.uz/v2/merchant"
)

// clickStatusMap translates the vendor's native status vocabulary to the
// canonical set. Anything missing degrades to "unknown" so a new vendor value
// never crashes the caller.
var clickStatusMap = map[string]model.OrderStatus{
	"success":    model.OrderStatusPaid,
	"processing": model.OrderStatusWaiting,
	"failed":     model.OrderStatusFailed,
	"cancelled":  model.OrderStatusCancelled,
}

var _ adapter.PaymentGateway = (*ClickGateway)(nil)

// ClickGateway implements the Click hosted-checkout and merchant API.
type ClickGateway struct {
	serviceID  string
	merchantID string
	merchant   *clickMerchantAPI
}

func NewClickGateway(serviceID, merchantID, merchantUserID, secretKey string, testMode bool) (*ClickGateway, error) {
	if serviceID == "" || merchantID == "" {
		return nil, errors.New("click: service id and merchant id required")
	}
	base := clickProdAPI
	if testMode {
		base = clickTestAPI
	}
	client := newHTTPClient(base, 15*time.Second)
	return &ClickGateway{
		serviceID:  serviceID,
		merchantID: merchantID,
		merchant:   newClickMerchantAPI(client, serviceID, merchantUserID, secretKey),
	}, nil
}

func (g *ClickGateway) Name() string { return GatewayClick }

// CreatePayment assembles the hosted-checkout URL. Parameter names and order
// are fixed by the vendor; the amount is rendered verbatim in the unit Click
// expects (som), so callers convert before calling. Pure and deterministic.
func (g *ClickGateway) CreatePayment(id string, amount int64, params adapter.CreateParams) (string, error) {
	if id == "" {
		return "", errors.New("click: payment id required")
	}
	if amount <= 0 {
		return "", fmt.Errorf("click: amount must be positive, got %d", amount)
	}

	var b strings.Builder
	b.WriteString(clickCheckoutURL)
	b.WriteString("?service_id=" + g.serviceID)
	b.WriteString("&merchant_id=" + g.merchantID)
	b.WriteString("&amount=" + strconv.FormatInt(amount, 10))
	b.WriteString("&transaction_param=" + id)
	if params.ReturnURL != "" {
		b.WriteString("&return_url=" + params.ReturnURL)
	}
	if params.CallbackURL != "" {
		b.WriteString("&callback_url=" + params.CallbackURL)
	}
	if params.Description != "" {
		b.WriteString("&description=" + params.Description)
	}
	return b.String(), nil
}

// CheckPayment queries the merchant API for the order referenced by a
// "click_<account>_<amount>" composite id and maps the vendor status.
func (g *ClickGateway) CheckPayment(ctx context.Context, transactionID string) (*model.PaymentResult, error) {
	accountID, _, err := parseTransactionID(GatewayClick, transactionID)
	if err != nil {
		return nil, err
	}
	payload, err := g.merchant.CheckPayment(ctx, accountID)
	if err != nil {
		return nil, err
	}

	native, _ := payload["status"].(string)
	status, ok := clickStatusMap[native]
	if !ok {
		status = model.OrderStatusUnknown
	}

	return &model.PaymentResult{
		TransactionID: transactionID,
		Status:        status,
		Amount:        somToTiyin(payload["amount"]),
		PaidAt:        clickTime(payload["paid_at"]),
		CreatedAt:     clickTime(payload["created_at"]),
		Raw:           payload,
	}, nil
}

// CancelPayment reverses the payment referenced by the composite id.
func (g *ClickGateway) CancelPayment(ctx context.Context, transactionID, reason string) (*model.PaymentResult, error) {
	accountID, _, err := parseTransactionID(GatewayClick, transactionID)
	if err != nil {
		return nil, err
	}
	payload, err := g.merchant.CancelPayment(ctx, accountID, reason)
	if err != nil {
		return nil, err
	}

	cancelledAt := clickTime(payload["cancelled_at"])
	if cancelledAt == nil {
		now := time.Now()
		cancelledAt = &now
	}
	return &model.PaymentResult{
		TransactionID: transactionID,
		Status:        model.OrderStatusCancelled,
		Amount:        somToTiyin(payload["amount"]),
		CancelledAt:   cancelledAt,
		Raw:           payload,
	}, nil
}

// somToTiyin converts the som amounts Click reports (number or decimal
// string) to tiyin.
func somToTiyin(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(math.Round(t * 100))
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return int64(math.Round(f * 100))
	}
	return 0
}

func clickTime(v any) *time.Time {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
