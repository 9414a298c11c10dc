package payment

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"payuz/internal/domain"
)

// clickMerchantAPI talks to the Click merchant/management endpoint. Every
// request carries the digest header the vendor requires:
//
//	Auth: <merchant_user_id>:sha1(<timestamp><secret_key>):<timestamp>
type clickMerchantAPI struct {
	client         *httpClient
	serviceID      string
	merchantUserID string
	secretKey      string
	now            func() time.Time // injectable for signature tests
}

func newClickMerchantAPI(client *httpClient, serviceID, merchantUserID, secretKey string) *clickMerchantAPI {
	return &clickMerchantAPI{
		client:         client,
		serviceID:      serviceID,
		merchantUserID: merchantUserID,
		secretKey:      secretKey,
		now:            time.Now,
	}
}

func (m *clickMerchantAPI) authHeader() map[string]string {
	ts := strconv.FormatInt(m.now().Unix(), 10)
	sum := sha1.Sum([]byte(ts + m.secretKey))
	digest := hex.EncodeToString(sum[:])
	return map[string]string{
		"Auth": m.merchantUserID + ":" + digest + ":" + ts,
	}
}

// CheckPayment fetches payment status by merchant transaction id.
func (m *clickMerchantAPI) CheckPayment(ctx context.Context, accountID string) (map[string]any, error) {
	path := fmt.Sprintf("/payment/status_by_mti/%s/%s", m.serviceID, accountID)
	payload, err := m.client.doJSON(ctx, http.MethodGet, path, m.authHeader(), nil)
	if err != nil {
		return nil, err
	}
	if err := clickAPIError(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// CancelPayment reverses a payment. Click's reversal endpoint is keyed by the
// vendor payment id, so the merchant transaction id is resolved first.
func (m *clickMerchantAPI) CancelPayment(ctx context.Context, accountID, reason string) (map[string]any, error) {
	status, err := m.CheckPayment(ctx, accountID)
	if err != nil {
		return nil, err
	}
	paymentID := numberAsString(status["payment_id"])
	if paymentID == "" {
		return nil, fmt.Errorf("%w: no payment for account %s", domain.ErrNotFound, accountID)
	}

	path := fmt.Sprintf("/payment/reversal/%s/%s", m.serviceID, paymentID)
	payload, err := m.client.doJSON(ctx, http.MethodDelete, path, m.authHeader(), nil)
	if err != nil {
		return nil, err
	}
	if err := clickAPIError(payload); err != nil {
		return nil, err
	}
	if reason != "" {
		payload["cancel_reason"] = reason
	}
	return payload, nil
}

// clickAPIError translates the vendor's error_code vocabulary.
func clickAPIError(payload map[string]any) error {
	code, ok := payload["error_code"]
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(numberAsString(code))
	if err != nil || n == 0 {
		return nil
	}
	note, _ := payload["error_note"].(string)
	switch n {
	case -1:
		return fmt.Errorf("%w: %s", domain.ErrAuth, note)
	case -5, -6:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, note)
	case -4, -9:
		return fmt.Errorf("%w: %s", domain.ErrInvalidState, note)
	}
	return fmt.Errorf("click merchant api error %d: %s", n, note)
}

// numberAsString renders the mixed numeric/string ids Click returns.
func numberAsString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case json.Number:
		return t.String()
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	}
	return ""
}
