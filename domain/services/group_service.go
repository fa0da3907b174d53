package services

import (
	"context"
	"errors"

	"facemanager/domain/models"
)

// Custom errors for the group service
var (
	ErrGroupNotFound = errors.New("group not found")
	ErrFaceNotFound  = errors.New("face not found")
	ErrFileNotFound  = errors.New("file not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrForbidden     = errors.New("operation not allowed for this user")
)

// FaceInput is a face as presented to batch processing or manual group
// creation. MatchedFaceIDs, when supplied, bypasses the recognition engine.
type FaceInput struct {
	FaceID         string              `json:"faceId"`
	BoundingBox    *models.BoundingBox `json:"boundingBox"`
	Confidence     float64             `json:"confidence,omitempty"`
	MatchedFaceIDs []string            `json:"matchedFaceIds,omitempty"`
	FileID         string              `json:"fileId,omitempty"`
}

// ProcessBatchResult reports one batch: how many faces were grouped and the
// distinct groups touched.
type ProcessBatchResult struct {
	ProcessedCount int            `json:"processedCount"`
	Groups         []models.Group `json:"groups"`
}

// FaceMatch is one similar face reported by the recognition engine.
type FaceMatch struct {
	FaceID     string
	Similarity float64
}

// RecognitionEngine is the upstream similarity engine. A missing collection
// surfaces as an empty result, not an error.
type RecognitionEngine interface {
	SearchMatches(ctx context.Context, collectionID, faceID string) ([]FaceMatch, error)
}

// ImageProber checks that a source image is still reachable. Unreachable
// sources skip the whole batch because the UI cannot render them.
type ImageProber interface {
	IsReachable(ctx context.Context, url string) bool
}

// Broadcaster pushes group change events to connected clients.
type Broadcaster interface {
	BroadcastToUser(userID string, event string, payload map[string]interface{})
}

// GroupService maintains the transitive equivalence closure over face ids:
// if A<->B and B<->C were ever observed in one interview scope, A, B and C
// end up co-grouped.
type GroupService interface {
	// ProcessBatch ingests one file's worth of faces. Unreachable or missing
	// source files skip the batch with an empty result.
	ProcessBatch(ctx context.Context, userID, fileID string, faces []FaceInput, interviewID *string) (*ProcessBatchResult, error)

	ListGroups(ctx context.Context, userID string) ([]models.Group, error)
	GetGroup(ctx context.Context, userID, groupID string) (*models.Group, error)

	// CreateGroupWithFaces builds a group from explicitly chosen faces.
	// Faces already grouped elsewhere are moved; an emptied old group is kept.
	CreateGroupWithFaces(ctx context.Context, userID string, faces []FaceInput, name *string) (*models.Group, error)

	AddFaceToGroup(ctx context.Context, userID, groupID, faceID string, fileID *string) error
	RemoveFaceFromGroup(ctx context.Context, userID, groupID, faceID string) error
	RenameGroup(ctx context.Context, userID, groupID, personName string) (*models.Group, error)

	// MergeGroups folds the groups into the first id and returns it.
	MergeGroups(ctx context.Context, userID string, groupIDs []string) (string, error)

	DeleteGroup(ctx context.Context, userID, groupID string) error

	// ClearAllGroups wipes every group and face doc of the user. Restricted
	// to the configured test user.
	ClearAllGroups(ctx context.Context, userID string) (int64, error)
}
