package usecase

import (
	"context"
	"errors"
	"testing"

	"payuz/internal/domain"
	"payuz/internal/domain/model"
	"payuz/internal/domain/ports/adapter"
)

func TestCreatePayment(t *testing.T) {
	t.Run("passes som to click and tiyin to payme", func(t *testing.T) {
		// Arrange
		orders := NewMockOrderRepo(&model.Order{ID: 42, Amount: 15000000, Status: model.OrderStatusPending})
		var clickAmount, paymeAmount int64
		click := &MockGateway{GatewayName: "click", CreatePaymentFunc: func(id string, amount int64, _ adapter.CreateParams) (string, error) {
			clickAmount = amount
			return "https://click/url", nil
		}}
		payme := &MockGateway{GatewayName: "payme", CreatePaymentFunc: func(id string, amount int64, _ adapter.CreateParams) (string, error) {
			paymeAmount = amount
			return "https://payme/url", nil
		}}
		uc := NewPaymentUseCase(orders, []adapter.PaymentGateway{click, payme}, newTestLogger())

		// Act
		if _, err := uc.CreatePayment(context.Background(), "click", 42, adapter.CreateParams{}); err != nil {
			t.Fatalf("click create: %v", err)
		}
		if _, err := uc.CreatePayment(context.Background(), "payme", 42, adapter.CreateParams{}); err != nil {
			t.Fatalf("payme create: %v", err)
		}

		// Assert
		if clickAmount != 150000 {
			t.Errorf("click amount = %d, want 150000 som", clickAmount)
		}
		if paymeAmount != 15000000 {
			t.Errorf("payme amount = %d, want 15000000 tiyin", paymeAmount)
		}
	})

	t.Run("rejects an unknown gateway", func(t *testing.T) {
		orders := NewMockOrderRepo(&model.Order{ID: 42, Amount: 100, Status: model.OrderStatusPending})
		uc := NewPaymentUseCase(orders, nil, newTestLogger())

		_, err := uc.CreatePayment(context.Background(), "stripe", 42, adapter.CreateParams{})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("rejects a fractional-som click amount", func(t *testing.T) {
		orders := NewMockOrderRepo(&model.Order{ID: 42, Amount: 150050, Status: model.OrderStatusPending})
		click := &MockGateway{GatewayName: "click"}
		uc := NewPaymentUseCase(orders, []adapter.PaymentGateway{click}, newTestLogger())

		_, err := uc.CreatePayment(context.Background(), "click", 42, adapter.CreateParams{})
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("propagates a missing order", func(t *testing.T) {
		uc := NewPaymentUseCase(NewMockOrderRepo(), []adapter.PaymentGateway{&MockGateway{GatewayName: "payme"}}, newTestLogger())

		_, err := uc.CreatePayment(context.Background(), "payme", 999, adapter.CreateParams{})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestCheckPayment(t *testing.T) {
	t.Run("routes to the owning gateway and syncs the order", func(t *testing.T) {
		orders := NewMockOrderRepo(&model.Order{ID: 42, Amount: 100, Status: model.OrderStatusWaiting})
		click := &MockGateway{GatewayName: "click", CheckPaymentFunc: func(ctx context.Context, id string) (*model.PaymentResult, error) {
			return &model.PaymentResult{TransactionID: id, Status: model.OrderStatusPaid, Amount: 100}, nil
		}}
		uc := NewPaymentUseCase(orders, []adapter.PaymentGateway{click}, newTestLogger())

		res, err := uc.CheckPayment(context.Background(), "click_42_100")
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if res.Status != model.OrderStatusPaid {
			t.Errorf("status = %q, want paid", res.Status)
		}
		if got := orders.Orders[42].Status; got != model.OrderStatusPaid {
			t.Errorf("order status = %q, want paid after sync", got)
		}
	})

	t.Run("leaves the order alone on an unknown result", func(t *testing.T) {
		orders := NewMockOrderRepo(&model.Order{ID: 42, Amount: 100, Status: model.OrderStatusWaiting})
		click := &MockGateway{GatewayName: "click"} // default check answers unknown
		uc := NewPaymentUseCase(orders, []adapter.PaymentGateway{click}, newTestLogger())

		if _, err := uc.CheckPayment(context.Background(), "click_42_100"); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if got := orders.Orders[42].Status; got != model.OrderStatusWaiting {
			t.Errorf("order status = %q, must stay waiting", got)
		}
	})

	t.Run("skips an illegal transition", func(t *testing.T) {
		orders := NewMockOrderRepo(&model.Order{ID: 42, Amount: 100, Status: model.OrderStatusCancelled})
		click := &MockGateway{GatewayName: "click", CheckPaymentFunc: func(ctx context.Context, id string) (*model.PaymentResult, error) {
			return &model.PaymentResult{TransactionID: id, Status: model.OrderStatusPaid}, nil
		}}
		uc := NewPaymentUseCase(orders, []adapter.PaymentGateway{click}, newTestLogger())

		if _, err := uc.CheckPayment(context.Background(), "click_42_100"); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if got := orders.Orders[42].Status; got != model.OrderStatusCancelled {
			t.Errorf("order status = %q, cancelled is terminal", got)
		}
		if len(orders.StatusUpdates) != 0 {
			t.Errorf("no writes expected, got %v", orders.StatusUpdates)
		}
	})

	t.Run("rejects an unroutable transaction id", func(t *testing.T) {
		uc := NewPaymentUseCase(NewMockOrderRepo(), []adapter.PaymentGateway{&MockGateway{GatewayName: "click"}}, newTestLogger())

		for _, id := range []string{"bogus", "stripe_42_100"} {
			_, err := uc.CheckPayment(context.Background(), id)
			if !errors.Is(err, domain.ErrInvalidTransactionID) {
				t.Errorf("id %q: expected ErrInvalidTransactionID, got %v", id, err)
			}
		}
	})

	t.Run("propagates gateway errors without touching the order", func(t *testing.T) {
		orders := NewMockOrderRepo(&model.Order{ID: 42, Amount: 100, Status: model.OrderStatusWaiting})
		click := &MockGateway{GatewayName: "click", CheckPaymentFunc: func(ctx context.Context, id string) (*model.PaymentResult, error) {
			return nil, domain.ErrNetwork
		}}
		uc := NewPaymentUseCase(orders, []adapter.PaymentGateway{click}, newTestLogger())

		_, err := uc.CheckPayment(context.Background(), "click_42_100")
		if !errors.Is(err, domain.ErrNetwork) {
			t.Errorf("expected ErrNetwork, got %v", err)
		}
		if got := orders.Orders[42].Status; got != model.OrderStatusWaiting {
			t.Errorf("order status = %q, must stay waiting", got)
		}
	})
}

func TestCancelPayment(t *testing.T) {
	t.Run("cancels on the gateway and marks the order cancelled", func(t *testing.T) {
		orders := NewMockOrderRepo(&model.Order{ID: 42, Amount: 100, Status: model.OrderStatusWaiting})
		var gotReason string
		payme := &MockGateway{GatewayName: "payme", CancelPaymentFunc: func(ctx context.Context, id, reason string) (*model.PaymentResult, error) {
			gotReason = reason
			return &model.PaymentResult{TransactionID: id, Status: model.OrderStatusCancelled}, nil
		}}
		uc := NewPaymentUseCase(orders, []adapter.PaymentGateway{payme}, newTestLogger())

		res, err := uc.CancelPayment(context.Background(), "payme_42_100", "customer request")
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if res.Status != model.OrderStatusCancelled {
			t.Errorf("status = %q, want cancelled", res.Status)
		}
		if gotReason != "customer request" {
			t.Errorf("reason = %q", gotReason)
		}
		if got := orders.Orders[42].Status; got != model.OrderStatusCancelled {
			t.Errorf("order status = %q, want cancelled", got)
		}
	})

	t.Run("propagates a gateway refusal", func(t *testing.T) {
		orders := NewMockOrderRepo(&model.Order{ID: 42, Amount: 100, Status: model.OrderStatusPaid})
		payme := &MockGateway{GatewayName: "payme", CancelPaymentFunc: func(ctx context.Context, id, reason string) (*model.PaymentResult, error) {
			return nil, domain.ErrInvalidState
		}}
		uc := NewPaymentUseCase(orders, []adapter.PaymentGateway{payme}, newTestLogger())

		_, err := uc.CancelPayment(context.Background(), "payme_42_100", "")
		if !errors.Is(err, domain.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
		if got := orders.Orders[42].Status; got != model.OrderStatusPaid {
			t.Errorf("order status = %q, must stay paid", got)
		}
	})
}
