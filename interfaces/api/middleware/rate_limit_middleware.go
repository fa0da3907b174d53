package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"facemanager/infrastructure/redis"
	"facemanager/pkg/config"
	"facemanager/pkg/logger"
)

// RateLimiter counts requests per client IP in Redis so the limit holds
// across replicas. When Redis is down the limiter fails open; grouping
// traffic matters more than throttling it.
func RateLimiter(cfg *config.RateLimitConfig, redisClient *redis.RedisClient) fiber.Handler {
	if !cfg.Enabled || redisClient == nil {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	window := time.Duration(cfg.WindowSeconds) * time.Second

	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("ratelimit:%s:%d", c.IP(), time.Now().Unix()/int64(cfg.WindowSeconds))

		count, err := redisClient.IncrWithExpiry(c.UserContext(), key, window)
		if err != nil {
			logger.APIError("rate_limit_redis", "Rate limit counter unavailable, failing open", err, map[string]interface{}{
				"ip": c.IP(),
			})
			return c.Next()
		}

		if count > int64(cfg.MaxRequests) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error": fiber.Map{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Too many requests. Please try again later.",
				},
			})
		}
		return c.Next()
	}
}
