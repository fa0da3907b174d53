package di

import (
	"context"
	"time"

	"gorm.io/gorm"

	"facemanager/application/serviceimpl"
	"facemanager/domain/repositories"
	"facemanager/domain/services"
	"facemanager/infrastructure/imageprobe"
	"facemanager/infrastructure/postgres"
	"facemanager/infrastructure/redis"
	"facemanager/infrastructure/rekognition"
	"facemanager/infrastructure/websocket"
	"facemanager/infrastructure/worker"
	"facemanager/interfaces/api/handlers"
	"facemanager/pkg/config"
	"facemanager/pkg/logger"
	"facemanager/pkg/scheduler"
)

const reconcileJobID = "group-reconcile"

type Container struct {
	// Configuration
	Config *config.Config

	// Infrastructure
	DB                *gorm.DB
	RedisClient       *redis.RedisClient
	RekognitionClient *rekognition.Client
	ImageProber       *imageprobe.Prober
	EventScheduler    scheduler.EventScheduler

	// Repositories
	GroupRepository repositories.GroupRepository
	FaceRepository  repositories.FaceRepository
	FileRepository  repositories.FileRepository

	// Services
	GroupService services.GroupService

	// Workers
	ReconcileWorker *worker.ReconcileWorker
}

func NewContainer() *Container {
	return &Container{}
}

func (c *Container) Initialize() error {
	if err := c.initConfig(); err != nil {
		return err
	}
	if err := c.initInfrastructure(); err != nil {
		return err
	}
	if err := c.initRepositories(); err != nil {
		return err
	}
	if err := c.initServices(); err != nil {
		return err
	}
	if err := c.initScheduler(); err != nil {
		return err
	}
	return nil
}

func (c *Container) initConfig() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	c.Config = cfg
	logger.Startup("config_loaded", "Configuration loaded", nil)
	return nil
}

func (c *Container) initInfrastructure() error {
	dbConfig := postgres.DatabaseConfig{
		Host:     c.Config.Database.Host,
		Port:     c.Config.Database.Port,
		User:     c.Config.Database.User,
		Password: c.Config.Database.Password,
		DBName:   c.Config.Database.DBName,
		SSLMode:  c.Config.Database.SSLMode,
	}

	db, err := postgres.NewDatabase(dbConfig)
	if err != nil {
		return err
	}
	c.DB = db
	logger.Startup("db_connected", "Database connected", nil)

	if err := postgres.Migrate(db); err != nil {
		return err
	}
	logger.Startup("db_migrated", "Database migrated", nil)

	redisConfig := redis.RedisConfig{
		Host:     c.Config.Redis.Host,
		Port:     c.Config.Redis.Port,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	}
	c.RedisClient = redis.NewRedisClient(redisConfig)
	if err := c.RedisClient.Ping(context.Background()); err != nil {
		logger.StartupWarn("redis_connection_failed", "Redis connection failed, rate limiting fails open", map[string]interface{}{"error": err.Error()})
	} else {
		logger.Startup("redis_connected", "Redis connected", nil)
	}

	// The recognition engine is optional: batches can carry their own
	// matches, so a missing engine only disables server-side search.
	if c.Config.AWS.Enabled {
		client, err := rekognition.NewClient(context.Background(), rekognition.ClientConfig{
			Region:              c.Config.AWS.Region,
			EndpointURL:         c.Config.AWS.EndpointURL,
			SimilarityThreshold: c.Config.Grouping.SimilarityThreshold,
			MaxMatches:          c.Config.Grouping.MaxMatches,
		})
		if err != nil {
			logger.StartupWarn("rekognition_init_failed", "Rekognition unavailable, continuing without engine", map[string]interface{}{"error": err.Error()})
		} else {
			c.RekognitionClient = client
			logger.Startup("rekognition_initialized", "Rekognition client initialized", nil)
		}
	} else {
		logger.Startup("rekognition_disabled", "Recognition engine disabled by config", nil)
	}

	c.ImageProber = imageprobe.NewProber(time.Duration(c.Config.Grouping.HeadTimeoutMs) * time.Millisecond)

	return nil
}

func (c *Container) initRepositories() error {
	c.GroupRepository = postgres.NewGroupRepository(c.DB)
	c.FaceRepository = postgres.NewFaceRepository(c.DB)
	c.FileRepository = postgres.NewFileRepository(c.DB)
	logger.Startup("repositories_initialized", "Repositories initialized", nil)
	return nil
}

func (c *Container) initServices() error {
	var engine services.RecognitionEngine
	if c.RekognitionClient != nil {
		engine = c.RekognitionClient
	}

	c.GroupService = serviceimpl.NewGroupService(
		c.GroupRepository,
		c.FaceRepository,
		c.FileRepository,
		engine,
		c.ImageProber,
		websocket.Manager,
		c.Config.Grouping,
	)

	c.ReconcileWorker = worker.NewReconcileWorker(
		c.GroupRepository,
		c.FaceRepository,
		c.Config.Grouping.ReconcileConcurrency,
	)

	logger.Startup("services_initialized", "Services initialized", nil)
	return nil
}

func (c *Container) initScheduler() error {
	c.EventScheduler = scheduler.NewEventScheduler()
	c.EventScheduler.Start()

	err := c.EventScheduler.AddJob(reconcileJobID, c.Config.Grouping.ReconcileCron, func() {
		stats := c.ReconcileWorker.ReconcileAll(context.Background())
		if stats.GroupsFixed > 0 || stats.GroupsDeleted > 0 || stats.Errors > 0 {
			logger.Scheduler("reconcile_job_done", "Reconcile job completed", map[string]interface{}{
				"groups_fixed":   stats.GroupsFixed,
				"groups_deleted": stats.GroupsDeleted,
				"errors":         stats.Errors,
			})
		}
	})
	if err != nil {
		logger.StartupWarn("reconcile_schedule_failed", "Failed to schedule reconcile job", map[string]interface{}{"error": err.Error()})
	} else {
		logger.Startup("reconcile_scheduled", "Reconcile job scheduled", map[string]interface{}{
			"cron": c.Config.Grouping.ReconcileCron,
		})
	}

	return nil
}

func (c *Container) Cleanup() error {
	logger.Startup("cleanup_started", "Starting cleanup...", nil)

	if c.EventScheduler != nil && c.EventScheduler.IsRunning() {
		c.EventScheduler.Stop()
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			logger.StartupWarn("redis_close_failed", "Failed to close Redis connection", map[string]interface{}{"error": err.Error()})
		}
	}

	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				logger.StartupWarn("db_close_failed", "Failed to close database connection", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	logger.Startup("cleanup_completed", "Cleanup completed", nil)
	return nil
}

func (c *Container) GetConfig() *config.Config {
	return c.Config
}

func (c *Container) GetHandlerServices() *handlers.Services {
	return &handlers.Services{
		GroupService: c.GroupService,
	}
}

func (c *Container) GetHandlerInfrastructure() *handlers.Infrastructure {
	return &handlers.Infrastructure{
		DB:              c.DB,
		RedisClient:     c.RedisClient,
		ReconcileWorker: c.ReconcileWorker,
	}
}
