package repositories

import (
	"context"

	"facemanager/domain/models"
)

type FaceRepository interface {
	// Upsert creates the face doc or re-points an existing one.
	Upsert(ctx context.Context, face *models.Face) error
	GetByID(ctx context.Context, userID, faceID string) (*models.Face, error)
	// GetByGroup returns the face docs whose group_id equals groupID.
	GetByGroup(ctx context.Context, userID, groupID string) ([]models.Face, error)
	// UpdateGroupID re-homes the given faces to another group in one write.
	UpdateGroupID(ctx context.Context, userID string, faceIDs []string, groupID string) error
	Delete(ctx context.Context, userID, faceID string) error
	DeleteByGroup(ctx context.Context, userID, groupID string) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
