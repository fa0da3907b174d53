package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"facemanager/domain/models"
	"facemanager/domain/repositories"
)

type FileRepositoryImpl struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) repositories.FileRepository {
	return &FileRepositoryImpl{db: db}
}

func (r *FileRepositoryImpl) GetByID(ctx context.Context, userID, fileID string) (*models.SourceFile, error) {
	var file models.SourceFile
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND file_id = ?", userID, fileID).
		First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &file, nil
}

// UpdateGroupMapping merges mapping into the stored jsonb rather than
// replacing it, so concurrent batches over the same file never clobber
// each other's keys.
func (r *FileRepositoryImpl) UpdateGroupMapping(ctx context.Context, userID, fileID string, mapping map[string]string, processedAt time.Time) error {
	patch, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal group mapping: %w", err)
	}

	result := r.db.WithContext(ctx).
		Model(&models.SourceFile{}).
		Where("user_id = ? AND file_id = ?", userID, fileID).
		Updates(map[string]interface{}{
			"face_group_mapping":       gorm.Expr("COALESCE(face_group_mapping, '{}'::jsonb) || ?::jsonb", string(patch)),
			"face_groups_processed_at": processedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
