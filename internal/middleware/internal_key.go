package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

const internalKeyHeader = "X-Internal-ApiKey"

// InternalKey admits trusted service callers presenting the shared key.
func InternalKey(key string) fiber.Handler {
	expected := []byte(key)
	return func(c *fiber.Ctx) error {
		given := []byte(c.Get(internalKeyHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(given, expected) != 1 {
			return fiber.NewError(http.StatusUnauthorized, "invalid internal api key")
		}
		return c.Next()
	}
}
