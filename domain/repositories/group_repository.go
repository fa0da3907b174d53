package repositories

import (
	"context"
	"errors"

	"facemanager/domain/models"
)

// ErrNotFound is returned by every repository when the requested row does
// not exist. Implementations map their store's own sentinel onto it.
var ErrNotFound = errors.New("record not found")

type GroupRepository interface {
	Create(ctx context.Context, group *models.Group) error
	GetByID(ctx context.Context, userID, groupID string) (*models.Group, error)
	// Update persists the full group document and refreshes updated_at.
	Update(ctx context.Context, group *models.Group) error
	Delete(ctx context.Context, userID, groupID string) error
	ListByUser(ctx context.Context, userID string) ([]models.Group, error)

	// FindContainingAny returns every group of the user whose face_ids
	// intersect faceIDs, deduplicated by group id. When interviewID is set,
	// groups scoped to a different interview are excluded; unscoped groups
	// always participate. Inputs larger than the store's native in-clause
	// limit are batched transparently.
	FindContainingAny(ctx context.Context, userID string, faceIDs []string, interviewID *string) ([]models.Group, error)

	// DeleteByUser removes all groups of the user and returns the count.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// ListUserIDs returns the distinct user ids owning at least one group.
	ListUserIDs(ctx context.Context) ([]string, error)
}
