package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/ticketing/internal/service/payment"
)

func TestNewPaymentGateway_Mock(t *testing.T) {
	cfg := DefaultConfig()
	gateway, breaker := newPaymentGateway(cfg, log.WithField("test", "gateway"))

	if gateway == nil || breaker == nil {
		t.Fatal("gateway and breaker must be initialized")
	}
	if _, ok := gateway.(*payment.BreakerGateway); !ok {
		t.Fatalf("expected gateway wrapped with circuit breaker, got %T", gateway)
	}

	desc, err := gateway.CreatePaymentLink(context.Background(), domain.PaymentLinkRequest{OrderID: "AB12C", Amount: 1000})
	if err != nil {
		t.Fatalf("mock gateway failed: %v", err)
	}
	if desc.Token == "" || desc.RedirectURL == "" {
		t.Errorf("mock gateway must return a descriptor, got %+v", desc)
	}
	if breaker.State() != payment.CircuitClosed {
		t.Errorf("expected closed breaker, got %s", breaker.State())
	}
}

func TestNewPaymentGateway_Snap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PaymentMock = false
	cfg.PaymentBaseURL = "http://127.0.0.1:1"

	gateway, breaker := newPaymentGateway(cfg, log.WithField("test", "gateway"))
	if gateway == nil || breaker == nil {
		t.Fatal("gateway and breaker must be initialized")
	}
}

func TestNewLifecycleService(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompletionRetryAttempts = 5
	logger := log.WithField("test", "lifecycle")

	storage := memoryStorage()
	ctx := context.Background()
	if err := storage.tickets.Create(ctx, domain.Ticket{ID: "vip", Price: 1000, Quantity: 2}); err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	gateway, _ := newPaymentGateway(cfg, logger)
	svc, err := newLifecycleService(storage, gateway, nil, cfg, logger)
	if err != nil {
		t.Fatalf("newLifecycleService failed: %v", err)
	}

	order, err := svc.Create(ctx, lifecycle.CreateInput{UserID: "user-1", TicketID: "vip", Quantity: 2})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Total != 2000 {
		t.Errorf("expected total 2000, got %d", order.Total)
	}
}
