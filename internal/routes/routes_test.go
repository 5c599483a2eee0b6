package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bizbank/bizbank/internal/apperr"
	"github.com/bizbank/bizbank/internal/auth"
	"github.com/bizbank/bizbank/internal/config"
	"github.com/bizbank/bizbank/internal/logging"
	"github.com/bizbank/bizbank/internal/metrics"
	"github.com/bizbank/bizbank/internal/notification"
)

const (
	testSecret      = "test-secret"
	testInternalKey = "internal-key"
)

type capture struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (c *capture) Send(_ context.Context, m notification.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	return nil
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: apperr.Handler})
	err := Setup(app, Deps{
		Cfg: config.Config{
			AppEnv:           "test",
			JWTSecret:        testSecret,
			InternalAPIKey:   testInternalKey,
			DecisionAttempts: 5,
			DecisionWindow:   time.Minute,
			DefaultRoleID:    "member",
		},
		Logger:   logging.Discard(),
		Metrics:  metrics.NewPrometheus("bizbank_test"),
		Notifier: &capture{},
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app
}

func token(t *testing.T, userID string, caps ...string) string {
	t.Helper()
	tok, err := auth.Sign(testSecret, "", auth.Principal{UserID: userID, Capabilities: caps}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func call(t *testing.T, app *fiber.App, method, path, bearer string, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestTopUpThenReadOwnWallet(t *testing.T) {
	app := newTestApp(t)
	operator := token(t, "operator", auth.CapPaymentsConfirm)
	alice := token(t, "alice")

	status, body := call(t, app, fiber.MethodPost, "/api/v1/wallets/alice/topup", operator,
		`{"amount_minor":5000,"currency":"EUR","correlation_id":"k1"}`, nil)
	if status != fiber.StatusCreated || body["balance_minor"] != float64(5000) {
		t.Fatalf("top-up: %d %v", status, body)
	}

	status, body = call(t, app, fiber.MethodPost, "/api/v1/wallets/alice/topup", alice,
		`{"amount_minor":5000,"currency":"EUR","correlation_id":"k2"}`, nil)
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for self top-up, got %d %v", status, body)
	}

	status, body = call(t, app, fiber.MethodGet, "/api/v1/wallets/me", alice, "", nil)
	if status != fiber.StatusOK || body["user_id"] != "alice" {
		t.Fatalf("overview: %d %v", status, body)
	}
	balances, _ := body["balances"].([]any)
	if len(balances) != 1 || balances[0].(map[string]any)["balance_minor"] != float64(5000) {
		t.Fatalf("unexpected balances %v", body["balances"])
	}
}

func TestInternalRoutesRequireKey(t *testing.T) {
	app := newTestApp(t)
	event := `{"intent_id":"pi-1","payer_user_id":"alice","amount_minor":100,"currency":"EUR","kind":"payment_captured"}`

	if status, _ := call(t, app, fiber.MethodPost, "/api/v1/internal/events/payment", "", event, nil); status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", status)
	}
	status, body := call(t, app, fiber.MethodPost, "/api/v1/internal/events/payment", "", event, map[string]string{"X-Internal-ApiKey": testInternalKey})
	if status != fiber.StatusOK || body["status"] != "applied" {
		t.Fatalf("ingest: %d %v", status, body)
	}
	status, body = call(t, app, fiber.MethodPost, "/api/v1/internal/events/payment", "", event, map[string]string{"X-Internal-ApiKey": testInternalKey})
	if status != fiber.StatusOK || body["status"] != "idempotent" {
		t.Fatalf("replay: %d %v", status, body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newTestApp(t)
	for _, path := range []string{"/api/v1/payments/my", "/api/v1/cards", "/api/v1/accounts/my", "/api/v1/wallets/me"} {
		if status, _ := call(t, app, fiber.MethodGet, path, "", "", nil); status != fiber.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, status)
		}
	}
	if status, body := call(t, app, fiber.MethodGet, "/api/v1/payments/my", token(t, "bob"), "", nil); status != fiber.StatusOK {
		t.Fatalf("payments/my should not be routed as an id: %d %v", status, body)
	}
}

func TestUnknownVerificationIsNotFound(t *testing.T) {
	app := newTestApp(t)
	status, body := call(t, app, fiber.MethodPost, "/api/v1/cards/verifications/missing/decision", token(t, "bob"), `{"code":"123456","accept":true}`, nil)
	if status != fiber.StatusNotFound || body["error"] != "verification_not_found" {
		t.Fatalf("expected 404, got %d %v", status, body)
	}
}

func TestOpsEndpoints(t *testing.T) {
	app := newTestApp(t)
	if status, body := call(t, app, fiber.MethodGet, "/healthz", "", "", nil); status != fiber.StatusOK {
		t.Fatalf("healthz: %d %v", status, body)
	}
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("metrics: expected 200 got %d", resp.StatusCode)
	}
}
