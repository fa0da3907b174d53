package postgres

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"facemanager/domain/models"
)

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func NewDatabase(config DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		config.Host, config.User, config.Password, config.DBName, config.Port, config.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Group{},
		&models.Face{},
		&models.SourceFile{},
	); err != nil {
		return fmt.Errorf("failed to run auto migrations: %v", err)
	}

	// AutoMigrate cannot express these; the GIN index backs the face_ids
	// overlap lookups of group resolution.
	migrations := []string{
		`CREATE INDEX IF NOT EXISTS idx_face_groups_face_ids ON face_groups USING GIN (face_ids)`,
		`CREATE INDEX IF NOT EXISTS idx_face_groups_user_id ON face_groups(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_faces_user_group ON faces(user_id, group_id)`,
	}
	for _, sql := range migrations {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("migration failed: %s, error: %v", sql, err)
		}
	}

	return nil
}
