package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/bizbank/bizbank/internal/auth"
	"github.com/bizbank/bizbank/internal/logging"
)

type idempotencyHarness struct {
	app   *fiber.App
	calls int
}

func newIdempotencyHarness(t *testing.T) *idempotencyHarness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	h := &idempotencyHarness{app: fiber.New()}
	h.app.Use(func(c *fiber.Ctx) error {
		if user := c.Get("X-Test-User"); user != "" {
			auth.SetPrincipal(c, auth.Principal{UserID: user})
		}
		return c.Next()
	})
	h.app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	h.app.Post("/resource", func(c *fiber.Ctx) error {
		h.calls++
		if c.Get("X-Fail") != "" {
			return errors.New("boom")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "call": h.calls})
	})
	return h
}

func (h *idempotencyHarness) send(t *testing.T, key, user, body string, extra ...string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/resource", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	for i := 0; i+1 < len(extra); i += 2 {
		req.Header.Set(extra[i], extra[i+1])
	}
	resp, err := h.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(payload)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	h := newIdempotencyHarness(t)
	resp, _ := h.send(t, "", "", "{}")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, resp.StatusCode)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	h := newIdempotencyHarness(t)

	first, payload := h.send(t, "abc123", "", "{}")
	if first.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, first.StatusCode)
	}
	second, cached := h.send(t, "abc123", "", "{}")
	if second.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, second.StatusCode)
	}
	if cached != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cached)
	}
	if h.calls != 1 {
		t.Fatalf("handler ran %d times", h.calls)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(cached), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	h := newIdempotencyHarness(t)
	h.send(t, "k", "", `{"amount":1}`)
	resp, _ := h.send(t, "k", "", `{"amount":2}`)
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.StatusCode)
	}
}

func TestIdempotencyReleasesKeyOnError(t *testing.T) {
	h := newIdempotencyHarness(t)
	if resp, _ := h.send(t, "k", "", "{}", "X-Fail", "1"); resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected failing handler, got %d", resp.StatusCode)
	}
	if resp, _ := h.send(t, "k", "", "{}"); resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected retry to reach the handler, got %d", resp.StatusCode)
	}
	if h.calls != 2 {
		t.Fatalf("handler ran %d times", h.calls)
	}
}

func TestIdempotencyKeysAreScopedToCaller(t *testing.T) {
	h := newIdempotencyHarness(t)
	_, alice := h.send(t, "shared-key", "alice", "{}")
	_, bob := h.send(t, "shared-key", "bob", "{}")
	_, replay := h.send(t, "shared-key", "alice", "{}")

	if alice == bob {
		t.Fatalf("expected bob's request to reach the handler, got %s twice", alice)
	}
	if replay != alice {
		t.Fatalf("expected alice's retry to replay %s, got %s", alice, replay)
	}
}
