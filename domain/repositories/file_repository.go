package repositories

import (
	"context"
	"time"

	"facemanager/domain/models"
)

// FileRepository reads externally-owned source files. The grouping core
// writes only the face-group mapping and its processed timestamp.
type FileRepository interface {
	GetByID(ctx context.Context, userID, fileID string) (*models.SourceFile, error)
	// UpdateGroupMapping merges mapping into face_group_mapping (existing
	// keys written by other batches are preserved unless remapped) and sets
	// face_groups_processed_at.
	UpdateGroupMapping(ctx context.Context, userID, fileID string, mapping map[string]string, processedAt time.Time) error
}
