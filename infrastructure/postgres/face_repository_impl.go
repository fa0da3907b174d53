package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"facemanager/domain/models"
	"facemanager/domain/repositories"
)

type FaceRepositoryImpl struct {
	db *gorm.DB
}

func NewFaceRepository(db *gorm.DB) repositories.FaceRepository {
	return &FaceRepositoryImpl{db: db}
}

func (r *FaceRepositoryImpl) Upsert(ctx context.Context, face *models.Face) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "face_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"group_id", "file_id", "bounding_box", "confidence", "updated_at"}),
	}).Create(face).Error
}

func (r *FaceRepositoryImpl) GetByID(ctx context.Context, userID, faceID string) (*models.Face, error) {
	var face models.Face
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND face_id = ?", userID, faceID).
		First(&face).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &face, nil
}

func (r *FaceRepositoryImpl) GetByGroup(ctx context.Context, userID, groupID string) ([]models.Face, error) {
	var faces []models.Face
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		Order("created_at ASC").
		Find(&faces).Error
	return faces, err
}

func (r *FaceRepositoryImpl) UpdateGroupID(ctx context.Context, userID string, faceIDs []string, groupID string) error {
	if len(faceIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Face{}).
		Where("user_id = ? AND face_id IN ?", userID, faceIDs).
		Update("group_id", groupID).Error
}

func (r *FaceRepositoryImpl) Delete(ctx context.Context, userID, faceID string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND face_id = ?", userID, faceID).
		Delete(&models.Face{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *FaceRepositoryImpl) DeleteByGroup(ctx context.Context, userID, groupID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		Delete(&models.Face{})
	return result.RowsAffected, result.Error
}

func (r *FaceRepositoryImpl) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.Face{})
	return result.RowsAffected, result.Error
}
