package postgres

import (
	"context"
	"errors"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"facemanager/domain/models"
	"facemanager/domain/repositories"
)

// findChunkSize bounds the face id set of one overlap query. Mirrors the
// in-clause limit of the original store so behavior stays comparable.
const findChunkSize = 10

type GroupRepositoryImpl struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) repositories.GroupRepository {
	return &GroupRepositoryImpl{db: db}
}

func (r *GroupRepositoryImpl) Create(ctx context.Context, group *models.Group) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *GroupRepositoryImpl) GetByID(ctx context.Context, userID, groupID string) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &group, nil
}

func (r *GroupRepositoryImpl) Update(ctx context.Context, group *models.Group) error {
	return r.db.WithContext(ctx).Save(group).Error
}

func (r *GroupRepositoryImpl) Delete(ctx context.Context, userID, groupID string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		Delete(&models.Group{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *GroupRepositoryImpl) ListByUser(ctx context.Context, userID string) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&groups).Error
	return groups, err
}

func (r *GroupRepositoryImpl) FindContainingAny(ctx context.Context, userID string, faceIDs []string, interviewID *string) ([]models.Group, error) {
	if len(faceIDs) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var groups []models.Group

	for start := 0; start < len(faceIDs); start += findChunkSize {
		end := start + findChunkSize
		if end > len(faceIDs) {
			end = len(faceIDs)
		}
		chunk := faceIDs[start:end]

		query := r.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Where("face_ids && ?", pq.StringArray(chunk))
		if interviewID != nil {
			// Unscoped groups always participate.
			query = query.Where("interview_id IS NULL OR interview_id = ?", *interviewID)
		}

		var batch []models.Group
		if err := query.Find(&batch).Error; err != nil {
			return nil, err
		}
		for _, group := range batch {
			if seen[group.GroupID] {
				continue
			}
			seen[group.GroupID] = true
			groups = append(groups, group)
		}
	}

	return groups, nil
}

func (r *GroupRepositoryImpl) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.Group{})
	return result.RowsAffected, result.Error
}

func (r *GroupRepositoryImpl) ListUserIDs(ctx context.Context) ([]string, error) {
	var userIDs []string
	err := r.db.WithContext(ctx).
		Model(&models.Group{}).
		Distinct().
		Pluck("user_id", &userIDs).Error
	return userIDs, err
}
