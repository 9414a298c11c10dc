package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"payuz/internal/config"
	"payuz/internal/domain"
	"payuz/internal/domain/ports/adapter"
	"payuz/internal/infra/logging"
	"payuz/internal/infra/webhook"
	"payuz/internal/usecase"
)

// Server exposes the two gateway webhook endpoints, a small merchant-facing
// payment API, plus health and metrics.
type Server struct {
	cfg      config.ServerConfig
	click    *webhook.ClickHandler
	payme    *webhook.PaymeHandler
	payments usecase.PaymentUseCase
	log      *zerolog.Logger
	server   *http.Server
}

func NewServer(cfg config.ServerConfig, click *webhook.ClickHandler, payme *webhook.PaymeHandler, payments usecase.PaymentUseCase, log *zerolog.Logger) *Server {
	return &Server{cfg: cfg, click: click, payme: payme, payments: payments, log: log}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.cfg.Port).Msg("webhook server listening")
	return s.server.ListenAndServe()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Post("/payments/click/webhook", s.click.ServeHTTP)
	r.Post("/payments/payme/webhook", s.payme.ServeHTTP)
	r.Post("/payments/links", s.createLink)
	r.Get("/payments/{transactionID}", s.checkPayment)
	r.Delete("/payments/{transactionID}", s.cancelPayment)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type createLinkRequest struct {
	Gateway     string `json:"gateway"`
	OrderID     int64  `json:"order_id"`
	ReturnURL   string `json:"return_url,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *Server) createLink(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	url, err := s.payments.CreatePayment(r.Context(), req.Gateway, req.OrderID, adapter.CreateParams{
		ReturnURL:   req.ReturnURL,
		CallbackURL: req.CallbackURL,
		Description: req.Description,
	})
	if err != nil {
		s.writePaymentError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"url": url})
}

func (s *Server) checkPayment(w http.ResponseWriter, r *http.Request) {
	result, err := s.payments.CheckPayment(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		s.writePaymentError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) cancelPayment(w http.ResponseWriter, r *http.Request) {
	result, err := s.payments.CancelPayment(r.Context(), chi.URLParam(r, "transactionID"), r.URL.Query().Get("reason"))
	if err != nil {
		s.writePaymentError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) writePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidTransactionID):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error().Err(err).Msg("payment api call failed")
		s.writeError(w, http.StatusBadGateway, "gateway unavailable")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger tags every request with a trace id so webhook log lines can be
// correlated with the vendor's delivery attempts.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithTraceID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.With(ctx, s.log).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
