package models

import (
	"math"
	"time"
)

// BoundingBox locates a face within its source image. Coordinates are
// normalized to [0,1] and keep the recognition engine's field names.
type BoundingBox struct {
	Left   float64 `json:"Left"`
	Top    float64 `json:"Top"`
	Width  float64 `json:"Width"`
	Height float64 `json:"Height"`
}

// Matches reports whether two boxes coincide within tolerance on every
// coordinate. The engine re-issues face ids between indexing runs, but
// bounding boxes are stable, so tombstones are compared by box.
func (b *BoundingBox) Matches(other *BoundingBox, tolerance float64) bool {
	if b == nil || other == nil {
		return false
	}
	return math.Abs(b.Left-other.Left) < tolerance &&
		math.Abs(b.Top-other.Top) < tolerance &&
		math.Abs(b.Width-other.Width) < tolerance &&
		math.Abs(b.Height-other.Height) < tolerance
}

// Face is the authoritative membership record: exactly one group per face.
type Face struct {
	FaceID string `gorm:"primaryKey;column:face_id"` // engine-issued id
	UserID string `gorm:"not null;index"`

	GroupID string `gorm:"not null;index"`
	FileID  string `gorm:"index"`

	BoundingBox *BoundingBox `gorm:"type:jsonb;serializer:json"`
	Confidence  float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Face) TableName() string {
	return "faces"
}
