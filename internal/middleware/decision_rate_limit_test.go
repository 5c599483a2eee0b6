package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/bizbank/bizbank/internal/logging"
)

func TestDecisionRateLimitPerVerification(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/verifications/:id/decision", DecisionRateLimit(cache, 2, time.Minute, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	do := func(id string) int {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/verifications/"+id+"/decision", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if got := do("v1"); got != fiber.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d", i+1, got)
		}
	}
	if got := do("v1"); got != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", got)
	}
	if got := do("v2"); got != fiber.StatusOK {
		t.Fatalf("other verification should not be limited, got %d", got)
	}

	mr.FastForward(time.Minute + time.Second)
	if got := do("v1"); got != fiber.StatusOK {
		t.Fatalf("expected window reset, got %d", got)
	}
}

func TestDecisionRateLimitWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Post("/verifications/:id/decision", DecisionRateLimit(nil, 1, time.Minute, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/verifications/v1/decision", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected pass-through, got %d", resp.StatusCode)
		}
	}
}

func TestDecisionRateLimitCounterAlwaysExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	// A counter left without a TTL must pick one up on the next attempt
	// instead of locking the verification forever.
	key := decisionLimitPrefix + "v1"
	if err := mr.Set(key, "9"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	app := fiber.New()
	app.Post("/verifications/:id/decision", DecisionRateLimit(cache, 2, time.Minute, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	do := func() int {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/verifications/v1/decision", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	if got := do(); got != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", got)
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected the counter to expire within the window, ttl %s", ttl)
	}
	first := mr.TTL(key)
	mr.FastForward(10 * time.Second)
	do()
	if ttl := mr.TTL(key); ttl >= first {
		t.Fatalf("later attempts must not extend the window, ttl %s", ttl)
	}

	mr.FastForward(time.Minute)
	if got := do(); got != fiber.StatusOK {
		t.Fatalf("expected window reset, got %d", got)
	}
}
