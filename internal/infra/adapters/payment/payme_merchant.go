package payment

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"payuz/internal/domain"
)

// paymeMerchantAPI speaks the Payme receipts JSON-RPC. Requests authenticate
// with the X-Auth header "<payme_id>:<payme_key>".
type paymeMerchantAPI struct {
	client       *httpClient
	paymeID      string
	paymeKey     string
	accountField string
	rpcID        atomic.Int64
}

func newPaymeMerchantAPI(client *httpClient, paymeID, paymeKey, accountField string) *paymeMerchantAPI {
	return &paymeMerchantAPI{
		client:       client,
		paymeID:      paymeID,
		paymeKey:     paymeKey,
		accountField: accountField,
	}
}

func (m *paymeMerchantAPI) call(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	body := map[string]any{
		"id":     m.rpcID.Add(1),
		"method": method,
		"params": params,
	}
	headers := map[string]string{"X-Auth": m.paymeID + ":" + m.paymeKey}
	payload, err := m.client.doJSON(ctx, http.MethodPost, "/api", headers, body)
	if err != nil {
		return nil, err
	}
	if errObj, ok := payload["error"].(map[string]any); ok {
		return nil, paymeRPCError(errObj)
	}
	result, _ := payload["result"].(map[string]any)
	if result == nil {
		return nil, &GatewayError{Status: http.StatusOK, Body: "payme: reply carries neither result nor error"}
	}
	return result, nil
}

// CheckPayment finds the newest receipt attached to the account.
func (m *paymeMerchantAPI) CheckPayment(ctx context.Context, accountID string) (map[string]any, error) {
	result, err := m.call(ctx, "receipts.get_all", map[string]any{
		"account": map[string]any{m.accountField: accountID},
		"count":   1,
		"offset":  0,
	})
	if err != nil {
		return nil, err
	}
	receipts, _ := result["receipts"].([]any)
	if len(receipts) == 0 {
		return nil, fmt.Errorf("%w: no receipt for account %s", domain.ErrNotFound, accountID)
	}
	receipt, _ := receipts[0].(map[string]any)
	if receipt == nil {
		return nil, &GatewayError{Status: http.StatusOK, Body: "payme: malformed receipt entry"}
	}
	return receipt, nil
}

// CancelPayment cancels the newest receipt attached to the account.
func (m *paymeMerchantAPI) CancelPayment(ctx context.Context, accountID, reason string) (map[string]any, error) {
	receipt, err := m.CheckPayment(ctx, accountID)
	if err != nil {
		return nil, err
	}
	params := map[string]any{"id": numberAsString(receipt["_id"])}
	if reason != "" {
		params["reason"] = reason
	}
	result, err := m.call(ctx, "receipts.cancel", params)
	if err != nil {
		return nil, err
	}
	cancelled, _ := result["receipt"].(map[string]any)
	if cancelled == nil {
		cancelled = result
	}
	return cancelled, nil
}

// paymeRPCError maps Payme's numeric error vocabulary onto the domain set.
func paymeRPCError(errObj map[string]any) error {
	code, _ := strconv.Atoi(numberAsString(errObj["code"]))
	msg := paymeErrorMessage(errObj["message"])
	switch {
	case code == -32504:
		return fmt.Errorf("%w: %s", domain.ErrAuth, msg)
	case code == -31003 || (code <= -31050 && code >= -31099):
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case code == -31008 || code == -31007:
		return fmt.Errorf("%w: %s", domain.ErrInvalidState, msg)
	}
	return fmt.Errorf("payme rpc error %d: %s", code, msg)
}

// paymeErrorMessage handles both the plain-string and localized-object forms.
func paymeErrorMessage(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		for _, lang := range []string{"en", "ru", "uz"} {
			if s, ok := t[lang].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
