package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"payuz/internal/domain"
	"payuz/internal/domain/model"
	"payuz/internal/domain/ports/repository"
	"payuz/internal/infra/events"
	"payuz/internal/infra/logging"
	"payuz/internal/infra/metrics"
	"payuz/internal/infra/redis"
)

// Payme RPC methods.
const (
	paymeCheckPerform = "CheckPerformTransaction"
	paymeCreate       = "CreateTransaction"
	paymePerform      = "PerformTransaction"
	paymeCancel       = "CancelTransaction"
	paymeCheck        = "CheckTransaction"
	paymeStatement    = "GetStatement"
)

// Payme error vocabulary.
const (
	paymeErrParse          = -32700
	paymeErrMethodNotFound = -32601
	paymeErrAuth           = -32504
	paymeErrAmount         = -31001
	paymeErrTxNotFound     = -31003
	paymeErrCannotPerform  = -31008
	paymeErrAccount        = -31050
)

type paymeRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params map[string]any  `json:"params"`
}

type paymeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type paymeResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  map[string]any  `json:"result,omitempty"`
	Error   *paymeError     `json:"error,omitempty"`
}

// PaymeHandler serves the Payme merchant webhook protocol: JSON-RPC dispatch
// over a closed method set, Basic auth, numeric error objects. Every failure
// is answered with a structured RPC error on HTTP 200.
type PaymeHandler struct {
	paymeID      string
	paymeKey     string
	accountField string
	orders       repository.OrderRepository
	txs          repository.PaymeTransactionRepository
	tm           repository.TransactionManager
	locker       redis.Locker // optional
	lockTTL      time.Duration
	publisher    events.Publisher // optional
	log          *zerolog.Logger
}

func NewPaymeHandler(
	paymeID, paymeKey, accountField string,
	orders repository.OrderRepository,
	txs repository.PaymeTransactionRepository,
	tm repository.TransactionManager,
	locker redis.Locker,
	lockTTL time.Duration,
	publisher events.Publisher,
	log *zerolog.Logger,
) *PaymeHandler {
	if accountField == "" {
		accountField = "order_id"
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &PaymeHandler{
		paymeID:      paymeID,
		paymeKey:     paymeKey,
		accountField: accountField,
		orders:       orders,
		txs:          txs,
		tm:           tm,
		locker:       locker,
		lockTTL:      lockTTL,
		publisher:    publisher,
		log:          log,
	}
}

func (h *PaymeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req paymeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, nil, paymeErrParse, "Parse error")
		metrics.ObserveWebhook("payme", "parse", "error", msSince(start))
		return
	}

	ctx := logging.WithGateway(r.Context(), "payme")
	if !h.authorized(r) {
		logging.With(ctx, h.log).Warn().
			Str("method", req.Method).
			Str("authorization", logging.Redact(r.Header.Get("Authorization"))).
			Msg("payme webhook: unauthorized")
		h.respondError(w, req.ID, paymeErrAuth, "Insufficient privileges")
		metrics.ObserveWebhook("payme", req.Method, "auth_error", msSince(start))
		return
	}

	result, rpcErr := h.dispatch(ctx, req)
	if rpcErr != nil {
		h.respondError(w, req.ID, rpcErr.Code, rpcErr.Message)
		metrics.ObserveWebhook("payme", req.Method, strconv.Itoa(rpcErr.Code), msSince(start))
		return
	}
	h.respond(w, paymeResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
	metrics.ObserveWebhook("payme", req.Method, "ok", msSince(start))
}

// authorized checks HTTP Basic auth against "Paycom:<payme_key>".
func (h *PaymeHandler) authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Basic ") {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return false
	}
	expected := "Paycom:" + h.paymeKey
	return subtle.ConstantTimeCompare(decoded, []byte(expected)) == 1
}

func (h *PaymeHandler) dispatch(ctx context.Context, req paymeRequest) (map[string]any, *paymeError) {
	switch req.Method {
	case paymeCheckPerform:
		return h.checkPerform(ctx, req.Params)
	case paymeCreate:
		return h.withTxLock(ctx, req, h.create)
	case paymePerform:
		return h.withTxLock(ctx, req, h.perform)
	case paymeCancel:
		return h.withTxLock(ctx, req, h.cancel)
	case paymeCheck:
		return h.check(ctx, req.Params)
	case paymeStatement:
		return h.statement(ctx, req.Params)
	}
	return nil, &paymeError{Code: paymeErrMethodNotFound, Message: "Method not found"}
}

// A paymeOp answers with a result or a protocol error; an ordinary error means
// an internal failure and must abort the surrounding transaction.
type paymeOp func(ctx context.Context, tx repository.Tx, params map[string]any, changed **events.OrderStatusChanged) (map[string]any, *paymeError, error)

// withTxLock serializes same-transaction deliveries via the locker, then runs
// the operation inside a database transaction. The lock narrows the race
// window; FOR UPDATE row locks inside the tx are the real guarantee. An
// internal failure rolls the whole delivery back so a vendor retry sees the
// pre-delivery state, never a half-applied one.
func (h *PaymeHandler) withTxLock(ctx context.Context, req paymeRequest, op paymeOp) (map[string]any, *paymeError) {
	if h.locker != nil {
		key := "payuz:webhook:payme:" + gatewayTxID(req.Params)
		token, err := h.locker.TryLock(ctx, key, h.lockTTL)
		if err != nil {
			return nil, &paymeError{Code: paymeErrCannotPerform, Message: "Transaction busy, retry later"}
		}
		defer func() { _ = h.locker.Unlock(ctx, key, token) }()
	}

	var (
		result  map[string]any
		rpcErr  *paymeError
		changed *events.OrderStatusChanged
	)
	txErr := h.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var opErr error
		result, rpcErr, opErr = op(ctx, tx, req.Params, &changed)
		return opErr
	})
	if txErr != nil {
		logging.With(ctx, h.log).Error().Err(txErr).Str("method", req.Method).Msg("payme webhook: transaction failed")
		return nil, &paymeError{Code: paymeErrCannotPerform, Message: "Internal error"}
	}
	if rpcErr == nil && changed != nil {
		h.publish(ctx, *changed)
	}
	return result, rpcErr
}

// resolveOrder loads and validates the order referenced by params.account.
func (h *PaymeHandler) resolveOrder(ctx context.Context, tx repository.Tx, params map[string]any) (*model.Order, *paymeError, error) {
	account, _ := params["account"].(map[string]any)
	orderID, err := strconv.ParseInt(anyToString(account[h.accountField]), 10, 64)
	if err != nil {
		return nil, &paymeError{Code: paymeErrAccount, Message: "Account not found"}, nil
	}
	order, err := h.orders.FindByID(ctx, tx, orderID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, nil, err
		}
		return nil, &paymeError{Code: paymeErrAccount, Message: "Account not found"}, nil
	}
	if order == nil {
		return nil, &paymeError{Code: paymeErrAccount, Message: "Account not found"}, nil
	}
	if amount := anyToInt64(params["amount"]); amount != order.Amount {
		return nil, &paymeError{Code: paymeErrAmount, Message: "Incorrect amount"}, nil
	}
	return order, nil, nil
}

func (h *PaymeHandler) checkPerform(ctx context.Context, params map[string]any) (map[string]any, *paymeError) {
	// Not ReadOnly: FindByID locks the row with FOR UPDATE inside a tx, which
	// postgres rejects in a read-only transaction.
	var rpcErr *paymeError
	err := h.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		order, e, opErr := h.resolveOrder(ctx, tx, params)
		if opErr != nil {
			return opErr
		}
		if e != nil {
			rpcErr = e
			return nil
		}
		if order.Status.Terminal() {
			rpcErr = &paymeError{Code: paymeErrCannotPerform, Message: "Order already settled"}
		}
		return nil
	})
	if err != nil {
		return nil, &paymeError{Code: paymeErrCannotPerform, Message: "Internal error"}
	}
	if rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]any{"allow": true}, nil
}

func (h *PaymeHandler) create(ctx context.Context, tx repository.Tx, params map[string]any, changed **events.OrderStatusChanged) (map[string]any, *paymeError, error) {
	gatewayID := gatewayTxID(params)
	if gatewayID == "" {
		return nil, &paymeError{Code: paymeErrTxNotFound, Message: "Transaction id missing"}, nil
	}

	existing, err := h.txs.FindByGatewayID(ctx, tx, gatewayID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}
	if existing != nil {
		if existing.State != model.PaymeStateCreated {
			return nil, &paymeError{Code: paymeErrCannotPerform, Message: "Transaction is not active"}, nil
		}
		// replayed create: answer identically
		return map[string]any{
			"create_time": existing.CreateTime,
			"transaction": existing.ID,
			"state":       existing.State,
		}, nil, nil
	}

	order, rpcErr, err := h.resolveOrder(ctx, tx, params)
	if err != nil {
		return nil, nil, err
	}
	if rpcErr != nil {
		return nil, rpcErr, nil
	}
	if order.Status.Terminal() {
		return nil, &paymeError{Code: paymeErrCannotPerform, Message: "Order already settled"}, nil
	}
	active, err := h.txs.FindActiveByOrderID(ctx, tx, order.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}
	if active != nil && active.GatewayID != gatewayID {
		return nil, &paymeError{Code: paymeErrCannotPerform, Message: "Another transaction is in progress"}, nil
	}

	createTime := anyToInt64(params["time"])
	if createTime == 0 {
		createTime = time.Now().UnixMilli()
	}
	t := &model.PaymeTransaction{
		ID:         uuid.NewString(),
		GatewayID:  gatewayID,
		OrderID:    order.ID,
		Amount:     order.Amount,
		State:      model.PaymeStateCreated,
		CreateTime: createTime,
		CreatedAt:  time.Now(),
	}
	if err := h.txs.Save(ctx, tx, t); err != nil {
		return nil, nil, err
	}
	if order.Status != model.OrderStatusWaiting {
		if err := h.orders.UpdateStatus(ctx, tx, order.ID, model.OrderStatusWaiting); err != nil {
			return nil, nil, err
		}
		*changed = h.event(order, gatewayID, model.OrderStatusWaiting)
	}
	return map[string]any{
		"create_time": t.CreateTime,
		"transaction": t.ID,
		"state":       t.State,
	}, nil, nil
}

func (h *PaymeHandler) perform(ctx context.Context, tx repository.Tx, params map[string]any, changed **events.OrderStatusChanged) (map[string]any, *paymeError, error) {
	t, err := h.txs.FindByGatewayID(ctx, tx, gatewayTxID(params))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}
	if t == nil || err != nil {
		return nil, &paymeError{Code: paymeErrTxNotFound, Message: "Transaction not found"}, nil
	}
	switch t.State {
	case model.PaymeStatePerformed:
		// replayed perform: answer identically
		return map[string]any{
			"perform_time": t.PerformTime,
			"transaction":  t.ID,
			"state":        t.State,
		}, nil, nil
	case model.PaymeStateCreated:
	default:
		return nil, &paymeError{Code: paymeErrCannotPerform, Message: "Transaction is cancelled"}, nil
	}

	order, err := h.orders.FindByID(ctx, tx, t.OrderID)
	if err != nil || order == nil {
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, nil, err
		}
		return nil, &paymeError{Code: paymeErrAccount, Message: "Account not found"}, nil
	}
	if !order.Status.CanTransition(model.OrderStatusPaid) {
		return nil, &paymeError{Code: paymeErrCannotPerform, Message: "Order already settled"}, nil
	}

	performTime := time.Now().UnixMilli()
	if err := h.txs.UpdateState(ctx, tx, t.GatewayID, model.PaymeStatePerformed, performTime, 0, nil); err != nil {
		return nil, nil, err
	}
	if order.Status != model.OrderStatusPaid {
		if err := h.orders.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPaid); err != nil {
			return nil, nil, err
		}
		*changed = h.event(order, t.GatewayID, model.OrderStatusPaid)
		metrics.AddPaymentAmount("payme", order.Amount)
	}
	return map[string]any{
		"perform_time": performTime,
		"transaction":  t.ID,
		"state":        model.PaymeStatePerformed,
	}, nil, nil
}

func (h *PaymeHandler) cancel(ctx context.Context, tx repository.Tx, params map[string]any, changed **events.OrderStatusChanged) (map[string]any, *paymeError, error) {
	t, err := h.txs.FindByGatewayID(ctx, tx, gatewayTxID(params))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}
	if t == nil || err != nil {
		return nil, &paymeError{Code: paymeErrTxNotFound, Message: "Transaction not found"}, nil
	}
	if t.State < 0 {
		// replayed cancel: answer identically
		return map[string]any{
			"cancel_time": t.CancelTime,
			"transaction": t.ID,
			"state":       t.State,
		}, nil, nil
	}

	state := model.PaymeStateCancelled
	if t.State == model.PaymeStatePerformed {
		state = model.PaymeStateCancelledAfterPerform
	}
	reason := int(anyToInt64(params["reason"]))
	cancelTime := time.Now().UnixMilli()
	if err := h.txs.UpdateState(ctx, tx, t.GatewayID, state, t.PerformTime, cancelTime, &reason); err != nil {
		return nil, nil, err
	}

	order, err := h.orders.FindByID(ctx, tx, t.OrderID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}
	if order != nil && err == nil && order.Status != model.OrderStatusCancelled {
		if err := h.orders.UpdateStatus(ctx, tx, order.ID, model.OrderStatusCancelled); err != nil {
			return nil, nil, err
		}
		*changed = h.event(order, t.GatewayID, model.OrderStatusCancelled)
	}
	return map[string]any{
		"cancel_time": cancelTime,
		"transaction": t.ID,
		"state":       state,
	}, nil, nil
}

func (h *PaymeHandler) check(ctx context.Context, params map[string]any) (map[string]any, *paymeError) {
	// Not ReadOnly: FindByGatewayID locks the row with FOR UPDATE inside a tx,
	// which postgres rejects in a read-only transaction.
	var (
		result map[string]any
		rpcErr *paymeError
	)
	err := h.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		t, err := h.txs.FindByGatewayID(ctx, tx, gatewayTxID(params))
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if t == nil || err != nil {
			rpcErr = &paymeError{Code: paymeErrTxNotFound, Message: "Transaction not found"}
			return nil
		}
		result = paymeTxResult(t)
		return nil
	})
	if err != nil {
		return nil, &paymeError{Code: paymeErrCannotPerform, Message: "Internal error"}
	}
	return result, rpcErr
}

func (h *PaymeHandler) statement(ctx context.Context, params map[string]any) (map[string]any, *paymeError) {
	from := anyToInt64(params["from"])
	to := anyToInt64(params["to"])

	var entries []map[string]any
	err := h.tm.WithTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(ctx context.Context, tx repository.Tx) error {
		list, err := h.txs.ListByCreateTime(ctx, tx, from, to)
		if err != nil {
			return err
		}
		entries = make([]map[string]any, 0, len(list))
		for _, t := range list {
			entry := paymeTxResult(t)
			entry["id"] = t.GatewayID
			entry["time"] = t.CreateTime
			entry["amount"] = t.Amount
			entry["account"] = map[string]any{h.accountField: strconv.FormatInt(t.OrderID, 10)}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, &paymeError{Code: paymeErrCannotPerform, Message: "Internal error"}
	}
	return map[string]any{"transactions": entries}, nil
}

func paymeTxResult(t *model.PaymeTransaction) map[string]any {
	var reason any
	if t.Reason != nil {
		reason = *t.Reason
	}
	return map[string]any{
		"create_time":  t.CreateTime,
		"perform_time": t.PerformTime,
		"cancel_time":  t.CancelTime,
		"transaction":  t.ID,
		"state":        t.State,
		"reason":       reason,
	}
}

func (h *PaymeHandler) event(order *model.Order, gatewayID string, to model.OrderStatus) *events.OrderStatusChanged {
	metrics.IncPayment("payme", string(to))
	return &events.OrderStatusChanged{
		OrderID:       order.ID,
		Gateway:       "payme",
		TransactionID: gatewayID,
		From:          order.Status,
		To:            to,
		Amount:        order.Amount,
		OccurredAt:    time.Now(),
	}
}

func (h *PaymeHandler) publish(ctx context.Context, ev events.OrderStatusChanged) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishStatusChange(ctx, ev); err != nil {
		h.log.Error().Err(err).Int64("order_id", ev.OrderID).Msg("payme webhook: event publish failed")
	}
}

func (h *PaymeHandler) respond(w http.ResponseWriter, resp paymeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *PaymeHandler) respondError(w http.ResponseWriter, id json.RawMessage, code int, msg string) {
	h.respond(w, paymeResponse{JSONRPC: "2.0", ID: id, Error: &paymeError{Code: code, Message: msg}})
}

func gatewayTxID(params map[string]any) string {
	return anyToString(params["id"])
}

func anyToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case json.Number:
		return t.String()
	}
	return ""
}

func anyToInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	case json.Number:
		n, _ := t.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}
