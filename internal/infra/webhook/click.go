package webhook

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

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

// Click SHOP-API actions.
const (
	clickActionPrepare  = 0
	clickActionComplete = 1
)

// Click error vocabulary. The vendor parses these codes to decide whether to
// retry the callback, so the values are fixed.
const (
	clickOK               = 0
	clickErrSign          = -1
	clickErrAmount        = -2
	clickErrAction        = -3
	clickErrAlreadyPaid   = -4
	clickErrOrderNotFound = -5
	clickErrNotPrepared   = -6
	clickErrBadRequest    = -8
	clickErrCancelled     = -9
)

type clickRequest struct {
	ClickTransID      string
	ServiceID         string
	MerchantTransID   string
	MerchantPrepareID string
	Amount            string
	Action            string
	Error             string
	ErrorNote         string
	SignTime          string
	SignString        string
}

type clickResponse struct {
	ClickTransID      int64  `json:"click_trans_id"`
	MerchantTransID   string `json:"merchant_trans_id"`
	MerchantPrepareID int64  `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID int64  `json:"merchant_confirm_id,omitempty"`
	Error             int    `json:"error"`
	ErrorNote         string `json:"error_note"`
}

// ClickHandler validates Click callbacks and applies exactly one order state
// transition per delivery. Failures are answered with the vendor's error
// payload, never an HTTP error: an unexpected 500 triggers vendor-side retry
// storms.
type ClickHandler struct {
	serviceID string
	secretKey string
	orders    repository.OrderRepository
	tm        repository.TransactionManager
	locker    redis.Locker // optional
	lockTTL   time.Duration
	publisher events.Publisher // optional
	log       *zerolog.Logger
}

func NewClickHandler(
	serviceID, secretKey string,
	orders repository.OrderRepository,
	tm repository.TransactionManager,
	locker redis.Locker,
	lockTTL time.Duration,
	publisher events.Publisher,
	log *zerolog.Logger,
) *ClickHandler {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &ClickHandler{
		serviceID: serviceID,
		secretKey: secretKey,
		orders:    orders,
		tm:        tm,
		locker:    locker,
		lockTTL:   lockTTL,
		publisher: publisher,
		log:       log,
	}
}

func (h *ClickHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := r.ParseForm(); err != nil {
		h.respond(w, clickResponse{Error: clickErrBadRequest, ErrorNote: "Malformed request"})
		metrics.ObserveWebhook("click", "parse", "error", msSince(start))
		return
	}
	req := clickRequest{
		ClickTransID:      r.PostFormValue("click_trans_id"),
		ServiceID:         r.PostFormValue("service_id"),
		MerchantTransID:   r.PostFormValue("merchant_trans_id"),
		MerchantPrepareID: r.PostFormValue("merchant_prepare_id"),
		Amount:            r.PostFormValue("amount"),
		Action:            r.PostFormValue("action"),
		Error:             r.PostFormValue("error"),
		ErrorNote:         r.PostFormValue("error_note"),
		SignTime:          r.PostFormValue("sign_time"),
		SignString:        r.PostFormValue("sign_string"),
	}

	resp := h.handle(logging.WithGateway(r.Context(), "click"), req)
	h.respond(w, resp)
	metrics.ObserveWebhook("click", req.Action, clickResult(resp.Error), msSince(start))
}

func (h *ClickHandler) respond(w http.ResponseWriter, resp clickResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *ClickHandler) handle(ctx context.Context, req clickRequest) clickResponse {
	resp := clickResponse{MerchantTransID: req.MerchantTransID}
	resp.ClickTransID, _ = strconv.ParseInt(req.ClickTransID, 10, 64)

	if !h.verifySign(req) {
		logging.With(ctx, h.log).Warn().
			Str("click_trans_id", req.ClickTransID).
			Str("sign_string", logging.Redact(req.SignString)).
			Msg("click webhook: sign check failed")
		resp.Error, resp.ErrorNote = clickErrSign, "SIGN CHECK FAILED"
		return resp
	}

	action, err := strconv.Atoi(req.Action)
	if err != nil || (action != clickActionPrepare && action != clickActionComplete) {
		resp.Error, resp.ErrorNote = clickErrAction, "Action not found"
		return resp
	}

	orderID, err := strconv.ParseInt(req.MerchantTransID, 10, 64)
	if err != nil {
		resp.Error, resp.ErrorNote = clickErrOrderNotFound, "Order not found"
		return resp
	}
	ctx = logging.WithOrderID(ctx, orderID)

	if h.locker != nil {
		token, err := h.locker.TryLock(ctx, "payuz:webhook:click:"+req.ClickTransID, h.lockTTL)
		if err != nil {
			// vendor retries on this code
			resp.Error, resp.ErrorNote = clickErrBadRequest, "Busy, retry later"
			return resp
		}
		defer func() { _ = h.locker.Unlock(ctx, "payuz:webhook:click:"+req.ClickTransID, token) }()
	}

	var changed *events.OrderStatusChanged
	txErr := h.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		order, err := h.orders.FindByID(ctx, tx, orderID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if order == nil || err != nil {
			resp.Error, resp.ErrorNote = clickErrOrderNotFound, "Order not found"
			return nil
		}

		if !clickAmountMatches(req.Amount, order.Amount) {
			resp.Error, resp.ErrorNote = clickErrAmount, "Incorrect parameter amount"
			return nil
		}

		if vendorErr, _ := strconv.Atoi(req.Error); vendorErr < 0 {
			// Click reports its own failure: cancel what we can.
			if order.Status.CanTransition(model.OrderStatusCancelled) && order.Status != model.OrderStatusCancelled {
				if err := h.orders.UpdateStatus(ctx, tx, order.ID, model.OrderStatusCancelled); err != nil {
					return err
				}
				changed = h.event(order, req, model.OrderStatusCancelled)
			}
			resp.Error, resp.ErrorNote = clickErrCancelled, "Transaction cancelled"
			return nil
		}

		switch action {
		case clickActionPrepare:
			return h.prepare(ctx, tx, order, req, &resp, &changed)
		default:
			return h.complete(ctx, tx, order, req, &resp, &changed)
		}
	})
	if txErr != nil {
		logging.With(ctx, h.log).Error().Err(txErr).Msg("click webhook: transaction failed")
		return clickResponse{
			ClickTransID:    resp.ClickTransID,
			MerchantTransID: resp.MerchantTransID,
			Error:           clickErrBadRequest,
			ErrorNote:       "Internal error",
		}
	}

	if changed != nil {
		h.publish(ctx, *changed)
	}
	return resp
}

func (h *ClickHandler) prepare(ctx context.Context, tx repository.Tx, order *model.Order, req clickRequest, resp *clickResponse, changed **events.OrderStatusChanged) error {
	switch order.Status {
	case model.OrderStatusPaid:
		resp.Error, resp.ErrorNote = clickErrAlreadyPaid, "Already paid"
		return nil
	case model.OrderStatusCancelled, model.OrderStatusFailed:
		resp.Error, resp.ErrorNote = clickErrCancelled, "Transaction cancelled"
		return nil
	}
	if order.Status != model.OrderStatusWaiting {
		if err := h.orders.UpdateStatus(ctx, tx, order.ID, model.OrderStatusWaiting); err != nil {
			return err
		}
		*changed = h.event(order, req, model.OrderStatusWaiting)
	}
	resp.MerchantPrepareID = order.ID
	resp.Error, resp.ErrorNote = clickOK, "Success"
	return nil
}

func (h *ClickHandler) complete(ctx context.Context, tx repository.Tx, order *model.Order, req clickRequest, resp *clickResponse, changed **events.OrderStatusChanged) error {
	switch order.Status {
	case model.OrderStatusPaid:
		// replayed delivery: acknowledge again, change nothing
		resp.MerchantConfirmID = order.ID
		resp.Error, resp.ErrorNote = clickOK, "Success"
		return nil
	case model.OrderStatusCancelled, model.OrderStatusFailed:
		resp.Error, resp.ErrorNote = clickErrCancelled, "Transaction cancelled"
		return nil
	case model.OrderStatusWaiting:
	default:
		// complete without a prior prepare
		resp.Error, resp.ErrorNote = clickErrNotPrepared, "Transaction does not exist"
		return nil
	}

	if prepareID, err := strconv.ParseInt(req.MerchantPrepareID, 10, 64); err != nil || prepareID != order.ID {
		resp.Error, resp.ErrorNote = clickErrNotPrepared, "Transaction does not exist"
		return nil
	}

	if err := h.orders.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPaid); err != nil {
		return err
	}
	*changed = h.event(order, req, model.OrderStatusPaid)
	metrics.AddPaymentAmount("click", order.Amount)
	resp.MerchantConfirmID = order.ID
	resp.Error, resp.ErrorNote = clickOK, "Success"
	return nil
}

// verifySign recomputes the md5 digest over the fixed field sequence. For the
// complete action the prepare id participates as well.
func (h *ClickHandler) verifySign(req clickRequest) bool {
	payload := req.ClickTransID + h.serviceID + h.secretKey + req.MerchantTransID
	if req.Action == strconv.Itoa(clickActionComplete) {
		payload += req.MerchantPrepareID
	}
	payload += req.Amount + req.Action + req.SignTime

	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:]) == req.SignString
}

func (h *ClickHandler) event(order *model.Order, req clickRequest, to model.OrderStatus) *events.OrderStatusChanged {
	metrics.IncPayment("click", string(to))
	return &events.OrderStatusChanged{
		OrderID:       order.ID,
		Gateway:       "click",
		TransactionID: req.ClickTransID,
		From:          order.Status,
		To:            to,
		Amount:        order.Amount,
		OccurredAt:    time.Now(),
	}
}

func (h *ClickHandler) publish(ctx context.Context, ev events.OrderStatusChanged) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishStatusChange(ctx, ev); err != nil {
		h.log.Error().Err(err).Int64("order_id", ev.OrderID).Msg("click webhook: event publish failed")
	}
}

// clickAmountMatches compares the som amount on the wire against the stored
// tiyin amount with one-tiyin tolerance.
func clickAmountMatches(wire string, tiyin int64) bool {
	f, err := strconv.ParseFloat(wire, 64)
	if err != nil {
		return false
	}
	return math.Abs(f*100-float64(tiyin)) <= 1
}

func clickResult(code int) string {
	if code == clickOK {
		return "ok"
	}
	return strconv.Itoa(code)
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Milliseconds())
}
