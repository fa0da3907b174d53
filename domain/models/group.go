package models

import (
	"time"

	"github.com/lib/pq"
)

type GroupStatus string

const (
	GroupStatusUnreviewed GroupStatus = "unreviewed"
	GroupStatusReviewed   GroupStatus = "reviewed"
	GroupStatusNamed      GroupStatus = "named"
)

// statusRank orders the group review lifecycle. Transitions are monotonic.
var statusRank = map[GroupStatus]int{
	GroupStatusUnreviewed: 0,
	GroupStatusReviewed:   1,
	GroupStatusNamed:      2,
}

// Group is a persistent set of face ids asserted to depict the same person.
// Group docs are secondary indexes over the authoritative face docs: on
// conflict the face doc's group_id wins.
type Group struct {
	GroupID     string  `gorm:"primaryKey;column:group_id"`
	UserID      string  `gorm:"not null;index"`
	InterviewID *string `gorm:"index"` // optional scoping key; nil means global

	FaceIDs   pq.StringArray `gorm:"type:text[];not null"`
	FileIDs   pq.StringArray `gorm:"type:text[]"`
	FaceCount int            `gorm:"default:0"` // cached cardinality of face_ids

	// Leader snapshot so thumbnails render without a face doc lookup
	LeaderFaceID      string
	LeaderFileID      string
	LeaderBoundingBox *BoundingBox `gorm:"type:jsonb;serializer:json"`

	Status     GroupStatus `gorm:"default:'unreviewed';index"`
	GroupName  *string
	PersonName *string

	MergedFrom pq.StringArray `gorm:"type:text[]"` // audit of absorbed group ids

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Group) TableName() string {
	return "face_groups"
}

// HasFace reports whether faceID is a current member.
func (g *Group) HasFace(faceID string) bool {
	for _, id := range g.FaceIDs {
		if id == faceID {
			return true
		}
	}
	return false
}

// PromoteStatus advances the group's status, never moving backward.
func (g *Group) PromoteStatus(status GroupStatus) {
	if statusRank[status] > statusRank[g.Status] {
		g.Status = status
	}
}

// InScope reports whether the group participates in the given interview
// scope. Groups without an interview id are global and match every scope.
func (g *Group) InScope(interviewID *string) bool {
	if g.InterviewID == nil || interviewID == nil {
		return true
	}
	return *g.InterviewID == *interviewID
}
