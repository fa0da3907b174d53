package routes

import (
	"github.com/gofiber/fiber/v2"

	"facemanager/infrastructure/redis"
	"facemanager/interfaces/api/handlers"
	"facemanager/interfaces/api/middleware"
	"facemanager/pkg/config"
)

func SetupRoutes(app *fiber.App, h *handlers.Handlers, cfg *config.Config, redisClient *redis.RedisClient) {
	SetupHealthRoutes(app, h.Health)

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimiter(&cfg.RateLimit, redisClient))

	SetupGroupRoutes(api, h)

	// WebSocket routes live on the app, not the api group
	SetupWebSocketRoutes(app)
}
