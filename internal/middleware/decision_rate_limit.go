package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const decisionLimitPrefix = "rl:decision:"

// DecisionRateLimit caps decision attempts per verification id within window,
// so a six digit code cannot be brute forced. Without Redis, or when Redis
// fails, requests pass through.
func DecisionRateLimit(cache *redis.Client, attempts int, window time.Duration, logger *slog.Logger) fiber.Handler {
	if attempts <= 0 {
		attempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if cache == nil || id == "" {
			return c.Next()
		}
		key := decisionLimitPrefix + id
		ctx := c.UserContext()

		// The TTL is set in the same MULTI as the increment and only when
		// missing, so a counter can never outlive its window.
		var incr *redis.IntCmd
		_, err := cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.ExpireNX(ctx, key, window)
			return nil
		})
		if err != nil {
			logger.Warn("decision rate limit unavailable", slog.String("verification_id", id), slog.Any("error", err))
			return c.Next()
		}
		if cnt := incr.Val(); cnt > int64(attempts) {
			if ttl, err := cache.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Seconds())+1))
			}
			return fiber.NewError(http.StatusTooManyRequests, "too many decision attempts, try again later")
		}
		return c.Next()
	}
}
