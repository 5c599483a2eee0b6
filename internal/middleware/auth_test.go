package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bizbank/bizbank/internal/auth"
)

func TestJWTAuthStoresPrincipal(t *testing.T) {
	verifier := auth.NewVerifier("secret", "bizbank")
	app := fiber.New()
	app.Get("/me", JWTAuth(verifier), func(c *fiber.Ctx) error {
		p, ok := auth.FromCtx(c)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.SendString(p.UserID)
	})

	token, err := auth.Sign("secret", "bizbank", auth.Principal{UserID: "u-1"}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}

	forged, _ := auth.Sign("other", "bizbank", auth.Principal{UserID: "u-1"}, time.Minute)
	for _, header := range []string{"", "Bearer ", "Bearer " + forged, "Basic abc"} {
		req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set(fiber.HeaderAuthorization, header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Fatalf("header %q: expected 401 got %d", header, resp.StatusCode)
		}
	}
}

func TestInternalKey(t *testing.T) {
	app := fiber.New()
	app.Post("/internal", InternalKey("k3y"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	cases := map[string]int{"k3y": fiber.StatusNoContent, "nope": fiber.StatusUnauthorized, "": fiber.StatusUnauthorized}
	for key, want := range cases {
		req := httptest.NewRequest(fiber.MethodPost, "/internal", nil)
		if key != "" {
			req.Header.Set(internalKeyHeader, key)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != want {
			t.Fatalf("key %q: expected %d got %d", key, want, resp.StatusCode)
		}
	}
}
