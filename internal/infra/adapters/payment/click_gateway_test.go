package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"payuz/internal/domain"
	"payuz/internal/domain/model"
	"payuz/internal/domain/ports/adapter"
)

func newTestClickGateway(t *testing.T, apiURL string) *ClickGateway {
	t.Helper()
	g, err := NewClickGateway("S", "M", "user-1", "secret", false)
	if err != nil {
		t.Fatalf("NewClickGateway: %v", err)
	}
	if apiURL != "" {
		g.merchant = newClickMerchantAPI(newHTTPClient(apiURL, 0), "S", "user-1", "secret")
	}
	return g
}

func TestClickCreatePayment(t *testing.T) {
	g := newTestClickGateway(t, "")

	t.Run("matches the documented URL byte for byte", func(t *testing.T) {
		url, err := g.CreatePayment("42", 150000, adapter.CreateParams{ReturnURL: "https://x/done"})
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		want := "https://my.click.uz/services/pay?service_id=S&merchant_id=M&amount=150000&transaction_param=42&return_url=https://x/done"
		if url != want {
			t.Errorf("url mismatch:\n got  %s\n want %s", url, want)
		}
	})

	t.Run("is deterministic", func(t *testing.T) {
		first, err := g.CreatePayment("7", 5000, adapter.CreateParams{CallbackURL: "https://x/cb", Description: "book"})
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		second, _ := g.CreatePayment("7", 5000, adapter.CreateParams{CallbackURL: "https://x/cb", Description: "book"})
		if first != second {
			t.Errorf("same inputs produced different URLs:\n %s\n %s", first, second)
		}
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		if _, err := g.CreatePayment("42", 0, adapter.CreateParams{}); err == nil {
			t.Error("expected an error for zero amount")
		}
	})
}

func TestClickCheckPayment(t *testing.T) {
	t.Run("rejects malformed transaction ids", func(t *testing.T) {
		g := newTestClickGateway(t, "")
		for _, id := range []string{"bogus", "click_123", "payme_42_150000"} {
			_, err := g.CheckPayment(context.Background(), id)
			if !errors.Is(err, domain.ErrInvalidTransactionID) {
				t.Errorf("id %q: expected ErrInvalidTransactionID, got %v", id, err)
			}
		}
	})

	t.Run("maps native statuses to canonical ones", func(t *testing.T) {
		cases := map[string]model.OrderStatus{
			"success":       model.OrderStatusPaid,
			"processing":    model.OrderStatusWaiting,
			"failed":        model.OrderStatusFailed,
			"cancelled":     model.OrderStatusCancelled,
			"half-refunded": model.OrderStatusUnknown, // unmapped vendor value degrades safely
		}
		for native, want := range cases {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, `{"error_code":0,"status":%q,"amount":"1500.00","payment_id":991}`, native)
			}))
			g := newTestClickGateway(t, srv.URL)

			res, err := g.CheckPayment(context.Background(), "click_42_150000")
			srv.Close()
			if err != nil {
				t.Fatalf("status %q: expected no error, got: %v", native, err)
			}
			if res.Status != want {
				t.Errorf("status %q mapped to %q, want %q", native, res.Status, want)
			}
			if res.Amount != 150000 {
				t.Errorf("status %q: amount = %d tiyin, want 150000", native, res.Amount)
			}
		}
	})

	t.Run("sends the digest auth header", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Auth")
			fmt.Fprint(w, `{"error_code":0,"status":"success"}`)
		}))
		defer srv.Close()
		g := newTestClickGateway(t, srv.URL)

		if _, err := g.CheckPayment(context.Background(), "click_42_150000"); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if gotAuth == "" {
			t.Fatal("expected an Auth header on the merchant request")
		}
	})

	t.Run("translates vendor not-found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"error_code":-5,"error_note":"Payment not found"}`)
		}))
		defer srv.Close()
		g := newTestClickGateway(t, srv.URL)

		_, err := g.CheckPayment(context.Background(), "click_42_150000")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestClickCancelPayment(t *testing.T) {
	t.Run("rejects malformed transaction ids", func(t *testing.T) {
		g := newTestClickGateway(t, "")
		_, err := g.CancelPayment(context.Background(), "click_123", "")
		if !errors.Is(err, domain.ErrInvalidTransactionID) {
			t.Errorf("expected ErrInvalidTransactionID, got %v", err)
		}
	})

	t.Run("reverses via the vendor payment id", func(t *testing.T) {
		var reversalPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodDelete {
				reversalPath = r.URL.Path
				fmt.Fprint(w, `{"error_code":0,"error_note":"Success"}`)
				return
			}
			fmt.Fprint(w, `{"error_code":0,"status":"processing","payment_id":991,"amount":"1500.00"}`)
		}))
		defer srv.Close()
		g := newTestClickGateway(t, srv.URL)

		res, err := g.CancelPayment(context.Background(), "click_42_150000", "customer request")
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if res.Status != model.OrderStatusCancelled {
			t.Errorf("status = %q, want cancelled", res.Status)
		}
		if reversalPath != "/payment/reversal/S/991" {
			t.Errorf("reversal path = %q", reversalPath)
		}
		if res.CancelledAt == nil {
			t.Error("expected CancelledAt to be set")
		}
	})

	t.Run("translates already-settled payments", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodDelete {
				fmt.Fprint(w, `{"error_code":-4,"error_note":"Already paid"}`)
				return
			}
			fmt.Fprint(w, `{"error_code":0,"status":"success","payment_id":991}`)
		}))
		defer srv.Close()
		g := newTestClickGateway(t, srv.URL)

		_, err := g.CancelPayment(context.Background(), "click_42_150000", "")
		if !errors.Is(err, domain.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})
}
