package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AWS       AWSConfig
	RateLimit RateLimitConfig
	Grouping  GroupingConfig
}

type AppConfig struct {
	Name string
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AWSConfig struct {
	Region      string
	EndpointURL string // optional override for local stacks
	Enabled     bool   // disable to run without a recognition engine
}

type RateLimitConfig struct {
	Enabled       bool
	MaxRequests   int
	WindowSeconds int
}

// GroupingConfig carries the knobs of the grouping core.
type GroupingConfig struct {
	SimilarityThreshold  float64 // engine match threshold, 0-1
	MaxMatches           int     // matches requested per face
	HeadTimeoutMs        int     // image reachability probe timeout
	BBoxTolerance        float64 // tombstone bounding box tolerance
	TestUserID           string  // only user allowed destructive test ops
	CollectionPrefix     string  // engine collection = prefix + userId
	ReconcileCron        string  // schedule of the group reconciler
	ReconcileConcurrency int     // users repaired in parallel
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists (optional for production)
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	config := &Config{
		App: AppConfig{
			Name: getEnv("APP_NAME", "Face Manager Service"),
			Port: getEnv("APP_PORT", "3000"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "facemanager"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		AWS: AWSConfig{
			Region:      getEnv("AWS_REGION", "us-east-1"),
			EndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
			Enabled:     getEnv("REKOGNITION_ENABLED", "true") == "true",
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnv("RATE_LIMIT_ENABLED", "true") == "true",
			MaxRequests:   getEnvInt("RATE_LIMIT_MAX_REQUESTS", 120),
			WindowSeconds: getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		Grouping: GroupingConfig{
			SimilarityThreshold:  getEnvFloat("SIMILARITY_THRESHOLD", 0.85),
			MaxMatches:           getEnvInt("MAX_MATCHES", 20),
			HeadTimeoutMs:        getEnvInt("HEAD_TIMEOUT_MS", 5000),
			BBoxTolerance:        getEnvFloat("BBOX_TOLERANCE", 0.05),
			TestUserID:           getEnv("TEST_USER_ID", ""),
			CollectionPrefix:     getEnv("COLLECTION_PREFIX", "face_coll_"),
			ReconcileCron:        getEnv("RECONCILE_CRON", "*/15 * * * *"),
			ReconcileConcurrency: getEnvInt("RECONCILE_CONCURRENCY", 3),
		},
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}
