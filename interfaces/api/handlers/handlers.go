package handlers

import (
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"facemanager/domain/services"
	"facemanager/infrastructure/redis"
	"facemanager/infrastructure/worker"
	"facemanager/pkg/config"
)

// Services contains all the services needed for handlers
type Services struct {
	GroupService services.GroupService
}

// Infrastructure carries infra the health handler inspects directly.
type Infrastructure struct {
	DB              *gorm.DB
	RedisClient     *redis.RedisClient
	ReconcileWorker *worker.ReconcileWorker
}

// Handlers contains all HTTP handlers
type Handlers struct {
	Group  *GroupHandler
	Health *HealthHandler
}

// NewHandlers creates a new instance of Handlers with all dependencies
func NewHandlers(services *Services, infra *Infrastructure, cfg *config.Config) *Handlers {
	validate := validator.New()

	return &Handlers{
		Group:  NewGroupHandler(services.GroupService, validate),
		Health: NewHealthHandler(infra.DB, infra.RedisClient, infra.ReconcileWorker),
	}
}
