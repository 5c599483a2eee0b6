package funding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/bizbank/bizbank/internal/apperr"
	"github.com/bizbank/bizbank/internal/auth"
	"github.com/bizbank/bizbank/internal/ledger"
	"github.com/bizbank/bizbank/internal/logging"
	"github.com/bizbank/bizbank/internal/metrics"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	service, err := NewService(ledger.NewInMemory(), metrics.NoOp{}, logging.Discard())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestServiceTopUpIsIdempotentPerCorrelation(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	res, err := service.TopUp(ctx, TopUpInput{UserID: "user-1", AmountMinor: 1_000, Currency: "eur", CorrelationID: "K1"})
	if err != nil {
		t.Fatalf("top-up: %v", err)
	}
	if res.Status != ledger.StatusApplied || res.BalanceMinor != 1_000 {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = service.TopUp(ctx, TopUpInput{UserID: "user-1", AmountMinor: 1_000, Currency: "EUR", CorrelationID: "K1"})
	if err != nil {
		t.Fatalf("repeat top-up: %v", err)
	}
	if res.Status != ledger.StatusIdempotent || res.BalanceMinor != 1_000 {
		t.Fatalf("expected idempotent with unchanged balance, got %+v", res)
	}

	res, err = service.TopUp(ctx, TopUpInput{UserID: "user-1", AmountMinor: 500, Currency: "EUR", CorrelationID: "K2"})
	if err != nil {
		t.Fatalf("second top-up: %v", err)
	}
	if res.BalanceMinor != 1_500 {
		t.Fatalf("expected 1500, got %d", res.BalanceMinor)
	}
}

func TestServiceTopUpRejectsInvalidInput(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.TopUp(ctx, TopUpInput{UserID: "user-1", AmountMinor: 0, Currency: "EUR"}); !errors.Is(err, ledger.ErrInvalidRequest) {
		t.Fatalf("expected invalid request for zero amount, got %v", err)
	}
	if _, err := service.TopUp(ctx, TopUpInput{UserID: "user-1", AmountMinor: 10, Currency: "XAF"}); !errors.Is(err, ledger.ErrInvalidRequest) {
		t.Fatalf("expected invalid request for unknown currency, got %v", err)
	}
}

func TestHandlerTopUpRequiresCapability(t *testing.T) {
	service := newTestService(t)
	newApp := func(p auth.Principal) *fiber.App {
		app := fiber.New(fiber.Config{ErrorHandler: apperr.Handler})
		app.Use(func(c *fiber.Ctx) error {
			auth.SetPrincipal(c, p)
			return c.Next()
		})
		app.Post("/wallets/:userId/topup", NewHandler(service).TopUp)
		return app
	}
	body := `{"amount_minor":250,"currency":"USD","correlation_id":"op-1"}`

	req := httptest.NewRequest(http.MethodPost, "/wallets/user-7/topup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := newApp(auth.Principal{UserID: "user-7"}).Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	operator := newApp(auth.Principal{UserID: "ops", Capabilities: []string{auth.CapPaymentsConfirm}})
	req = httptest.NewRequest(http.MethodPost, "/wallets/user-7/topup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = operator.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var out TopUpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "applied" || out.UserID != "user-7" || out.BalanceMinor != 250 || out.CorrelationID != "op-1" {
		t.Fatalf("unexpected response %+v", out)
	}

	req = httptest.NewRequest(http.MethodPost, "/wallets/user-7/topup", strings.NewReader(`{"amount_minor":-5,"currency":"USD"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = operator.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
