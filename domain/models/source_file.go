package models

import (
	"time"
)

// ExtractedFace is one entry of the upstream-produced face list on a source
// file. Field names follow the recognition engine's output.
type ExtractedFace struct {
	FaceID      string       `json:"FaceId"`
	BoundingBox *BoundingBox `json:"BoundingBox,omitempty"`
	Confidence  float64      `json:"Confidence,omitempty"`
}

// DeletedFace is a tombstone: the bounding box of a face the user removed.
// Matching candidates are dropped before grouping so the face never
// reappears after re-indexing.
type DeletedFace struct {
	FaceID      string       `json:"FaceId,omitempty"`
	BoundingBox *BoundingBox `json:"BoundingBox"`
	DeletedAt   *time.Time   `json:"DeletedAt,omitempty"`
}

// SourceFile is owned by an external uploader. The grouping core reads url,
// extracted_faces and deleted_faces, and writes only face_group_mapping and
// face_groups_processed_at.
type SourceFile struct {
	FileID string `gorm:"primaryKey;column:file_id"`
	UserID string `gorm:"not null;index"`

	URL string

	ExtractedFaces []ExtractedFace `gorm:"type:jsonb;serializer:json"`
	DeletedFaces   []DeletedFace   `gorm:"type:jsonb;serializer:json"`

	FaceGroupMapping      map[string]string `gorm:"type:jsonb;serializer:json"` // faceId -> groupId
	FaceGroupsProcessedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SourceFile) TableName() string {
	return "source_files"
}
