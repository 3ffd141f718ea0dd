package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis/v3"

	"leadpilot/config"
)

// RateLimiter throttles requests per user (falling back to IP before auth).
// With Redis enabled the counters are shared across instances.
func RateLimiter(cfg *config.Config) fiber.Handler {
	limiterCfg := limiter.Config{
		Max:        cfg.RateLimitMax,
		Expiration: time.Duration(cfg.RateLimitWindow) * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals("userID").(uint); ok {
				return fmt.Sprintf("user:%d", userID)
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded, slow down",
			})
		},
	}

	if cfg.Redis.Enabled {
		limiterCfg.Storage = redis.New(redis.Config{
			URL: fmt.Sprintf("redis://:%s@%s/%d", cfg.Redis.Password, cfg.Redis.Address, cfg.Redis.DB),
		})
	}

	return limiter.New(limiterCfg)
}
