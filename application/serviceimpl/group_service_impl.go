package serviceimpl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"facemanager/domain/models"
	"facemanager/domain/repositories"
	"facemanager/domain/services"
	"facemanager/pkg/config"
	"facemanager/pkg/logger"
)

type GroupServiceImpl struct {
	groupRepo   repositories.GroupRepository
	faceRepo    repositories.FaceRepository
	fileRepo    repositories.FileRepository
	engine      services.RecognitionEngine // nil when the engine is disabled
	prober      services.ImageProber
	broadcaster services.Broadcaster // nil when no live clients are served
	cfg         config.GroupingConfig
}

func NewGroupService(
	groupRepo repositories.GroupRepository,
	faceRepo repositories.FaceRepository,
	fileRepo repositories.FileRepository,
	engine services.RecognitionEngine,
	prober services.ImageProber,
	broadcaster services.Broadcaster,
	cfg config.GroupingConfig,
) services.GroupService {
	return &GroupServiceImpl{
		groupRepo:   groupRepo,
		faceRepo:    faceRepo,
		fileRepo:    fileRepo,
		engine:      engine,
		prober:      prober,
		broadcaster: broadcaster,
		cfg:         cfg,
	}
}

// batchState accumulates one ProcessBatch invocation. Later faces of the
// same batch must see groups created or merged by earlier faces.
type batchState struct {
	touched  map[string]*models.Group
	order    []string          // first-touch order of group ids
	absorbed map[string]string // secondary -> primary for merges in this batch
}

func (s *GroupServiceImpl) ProcessBatch(ctx context.Context, userID, fileID string, faces []services.FaceInput, interviewID *string) (*services.ProcessBatchResult, error) {
	if userID == "" || fileID == "" || len(faces) == 0 {
		return nil, services.ErrInvalidInput
	}
	empty := &services.ProcessBatchResult{Groups: []models.Group{}}

	file, err := s.fileRepo.GetByID(ctx, userID, fileID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logger.BatchWarn("file_missing", "Source file not found, skipping batch", map[string]interface{}{
				"user_id": userID,
				"file_id": fileID,
			})
			return empty, nil
		}
		return nil, fmt.Errorf("failed to load source file: %w", err)
	}

	if file.URL == "" || !s.prober.IsReachable(ctx, file.URL) {
		logger.Batch("source_unreachable", "Source image unreachable, skipping batch", map[string]interface{}{
			"user_id": userID,
			"file_id": fileID,
		})
		return empty, nil
	}

	candidates := s.filterTombstoned(userID, fileID, faces, file.DeletedFaces)
	if len(candidates) == 0 {
		return empty, nil
	}

	st := &batchState{
		touched:  make(map[string]*models.Group),
		absorbed: make(map[string]string),
	}
	mapping := make(map[string]string)

	for _, face := range candidates {
		group, err := s.processFace(ctx, userID, fileID, face, interviewID, st)
		if err != nil {
			return nil, err
		}
		if group == nil {
			continue // recoverable per-face condition, already logged
		}
		mapping[face.FaceID] = group.GroupID
	}

	if len(mapping) == 0 {
		return empty, nil
	}

	// A merge later in the batch may have re-homed faces mapped earlier.
	for faceID, groupID := range mapping {
		mapping[faceID] = st.resolve(groupID)
	}

	if err := s.fileRepo.UpdateGroupMapping(ctx, userID, fileID, mapping, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to update file mapping: %w", err)
	}

	groups := make([]models.Group, 0, len(st.touched))
	for _, groupID := range st.order {
		if g, ok := st.touched[groupID]; ok {
			groups = append(groups, *g)
			s.broadcastGroup(userID, "group:updated", g)
		}
	}

	logger.Batch("batch_processed", "Batch processed", map[string]interface{}{
		"user_id":       userID,
		"file_id":       fileID,
		"faces":         len(mapping),
		"groups":        len(groups),
		"has_interview": interviewID != nil,
	})

	return &services.ProcessBatchResult{
		ProcessedCount: len(mapping),
		Groups:         groups,
	}, nil
}

// processFace routes one face to its group: a fresh singleton, an existing
// group, or the survivor of a merge. Returns nil for recoverable skips.
func (s *GroupServiceImpl) processFace(ctx context.Context, userID, fileID string, face services.FaceInput, interviewID *string, st *batchState) (*models.Group, error) {
	if !validBoundingBox(face.BoundingBox) {
		logger.BatchWarn("invalid_bounding_box", "Face skipped, bounding box missing or undefined", map[string]interface{}{
			"user_id": userID,
			"face_id": face.FaceID,
		})
		return nil, nil
	}

	matches := s.resolveMatches(ctx, userID, face)

	var groups []models.Group
	if len(matches) > 0 {
		found, err := s.groupRepo.FindContainingAny(ctx, userID, matches, interviewID)
		if err != nil {
			return nil, fmt.Errorf("failed to find groups for face %s: %w", face.FaceID, err)
		}
		groups = found
	}

	// A reprocessed face keeps its group even when it arrives with no
	// matches: the face doc is authoritative.
	existing, err := s.faceRepo.GetByID(ctx, userID, face.FaceID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to load face doc %s: %w", face.FaceID, err)
	}
	if existing != nil && existing.GroupID != "" {
		if own, gerr := s.groupRepo.GetByID(ctx, userID, st.resolve(existing.GroupID)); gerr == nil {
			if own.InScope(interviewID) && !containsGroup(groups, own.GroupID) {
				groups = append(groups, *own)
			}
		} else if !errors.Is(gerr, repositories.ErrNotFound) {
			return nil, fmt.Errorf("failed to load group of face %s: %w", face.FaceID, gerr)
		}
	}

	var target *models.Group
	switch len(groups) {
	case 0:
		created, err := s.createGroupForFace(ctx, userID, fileID, face, interviewID)
		if err != nil {
			return nil, err
		}
		target = created
	case 1:
		target = s.adopt(st, &groups[0])
		if err := s.addFaceToGroupDoc(ctx, target, face, fileID, existing); err != nil {
			return nil, err
		}
	default:
		sortGroupsForMerge(groups)
		target = s.adopt(st, &groups[0])
		for i := 1; i < len(groups); i++ {
			secondary := s.adopt(st, &groups[i])
			if err := s.mergeInto(ctx, userID, target, secondary); err != nil {
				return nil, err
			}
			st.absorb(secondary.GroupID, target.GroupID)
		}
		if err := s.addFaceToGroupDoc(ctx, target, face, fileID, existing); err != nil {
			return nil, err
		}
	}

	// A reprocessed face whose old group was not folded into the target
	// (out of the batch's scope) still lists it; detach so unique
	// membership holds without waiting for the reconciler.
	if existing != nil && existing.GroupID != "" {
		if old := st.resolve(existing.GroupID); old != target.GroupID {
			if err := s.detachFromGroup(ctx, userID, old, face.FaceID); err != nil {
				return nil, err
			}
		}
	}

	st.touch(target)
	return target, nil
}

// createGroupForFace starts a new group containing only this face. Matched
// ids that were never themselves processed are deliberately not added.
func (s *GroupServiceImpl) createGroupForFace(ctx context.Context, userID, fileID string, face services.FaceInput, interviewID *string) (*models.Group, error) {
	now := time.Now()
	group := &models.Group{
		GroupID:           uuid.NewString(),
		UserID:            userID,
		InterviewID:       interviewID,
		FaceIDs:           []string{face.FaceID},
		FileIDs:           []string{fileID},
		FaceCount:         1,
		LeaderFaceID:      face.FaceID,
		LeaderFileID:      fileID,
		LeaderBoundingBox: face.BoundingBox,
		Status:            models.GroupStatusUnreviewed,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.groupRepo.Create(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create group for face %s: %w", face.FaceID, err)
	}

	if err := s.upsertFaceDoc(ctx, userID, group.GroupID, fileID, face); err != nil {
		return nil, err
	}

	logger.Group("group_created", "New group created", map[string]interface{}{
		"user_id":  userID,
		"group_id": group.GroupID,
		"face_id":  face.FaceID,
	})
	return group, nil
}

// addFaceToGroupDoc unions the face into the group. Re-adding an existing
// member is a no-op: nothing is written.
func (s *GroupServiceImpl) addFaceToGroupDoc(ctx context.Context, group *models.Group, face services.FaceInput, fileID string, existing *models.Face) error {
	changed := false
	if !group.HasFace(face.FaceID) {
		group.FaceIDs = append(group.FaceIDs, face.FaceID)
		changed = true
	}
	if fileID != "" && !containsString(group.FileIDs, fileID) {
		group.FileIDs = append(group.FileIDs, fileID)
		changed = true
	}
	group.FaceCount = len(group.FaceIDs)
	if group.LeaderFaceID == "" {
		group.LeaderFaceID = face.FaceID
		group.LeaderFileID = fileID
		group.LeaderBoundingBox = face.BoundingBox
		changed = true
	}

	if changed {
		if err := s.groupRepo.Update(ctx, group); err != nil {
			return fmt.Errorf("failed to update group %s: %w", group.GroupID, err)
		}
	}

	if existing != nil && existing.GroupID == group.GroupID && existing.FileID == fileID {
		return nil // face doc already current
	}
	return s.upsertFaceDoc(ctx, group.UserID, group.GroupID, fileID, face)
}

func (s *GroupServiceImpl) upsertFaceDoc(ctx context.Context, userID, groupID, fileID string, face services.FaceInput) error {
	doc := &models.Face{
		FaceID:      face.FaceID,
		UserID:      userID,
		GroupID:     groupID,
		FileID:      fileID,
		BoundingBox: face.BoundingBox,
		Confidence:  face.Confidence,
	}
	if err := s.faceRepo.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("failed to upsert face doc %s: %w", face.FaceID, err)
	}
	return nil
}

// resolveMatches returns the similar face ids for a face: caller-supplied
// matches verbatim, otherwise a recognition engine lookup. Engine failures
// downgrade to an empty set; a face with no matches is a valid singleton.
func (s *GroupServiceImpl) resolveMatches(ctx context.Context, userID string, face services.FaceInput) []string {
	if len(face.MatchedFaceIDs) > 0 {
		return dedupeExcluding(face.MatchedFaceIDs, face.FaceID)
	}
	if s.engine == nil {
		return nil
	}

	collection := s.cfg.CollectionPrefix + userID
	matches, err := s.engine.SearchMatches(ctx, collection, face.FaceID)
	if err != nil {
		logger.BatchWarn("match_lookup_failed", "Recognition lookup failed, treating face as unmatched", map[string]interface{}{
			"user_id": userID,
			"face_id": face.FaceID,
			"error":   err.Error(),
		})
		return nil
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.FaceID != "" && m.FaceID != face.FaceID {
			ids = append(ids, m.FaceID)
		}
	}
	ids = dedupeExcluding(ids, face.FaceID)
	if s.cfg.MaxMatches > 0 && len(ids) > s.cfg.MaxMatches {
		ids = ids[:s.cfg.MaxMatches]
	}
	return ids
}

// filterTombstoned drops candidates whose bounding box matches a tombstone.
// Faces without a box cannot be compared and pass through.
func (s *GroupServiceImpl) filterTombstoned(userID, fileID string, faces []services.FaceInput, tombstones []models.DeletedFace) []services.FaceInput {
	if len(tombstones) == 0 {
		return faces
	}

	kept := make([]services.FaceInput, 0, len(faces))
	for _, face := range faces {
		if face.BoundingBox == nil {
			kept = append(kept, face)
			continue
		}
		dropped := false
		for _, tomb := range tombstones {
			if face.BoundingBox.Matches(tomb.BoundingBox, s.cfg.BBoxTolerance) {
				dropped = true
				break
			}
		}
		if dropped {
			logger.Batch("tombstoned_face_dropped", "Face matches a deletion tombstone", map[string]interface{}{
				"user_id": userID,
				"file_id": fileID,
				"face_id": face.FaceID,
			})
			continue
		}
		kept = append(kept, face)
	}
	return kept
}

func validBoundingBox(box *models.BoundingBox) bool {
	if box == nil {
		return false
	}
	for _, v := range []float64{box.Left, box.Top, box.Width, box.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func sortGroupsForMerge(groups []models.Group) {
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].GroupID < groups[j].GroupID
		}
		return groups[i].CreatedAt.Before(groups[j].CreatedAt)
	})
}

func (st *batchState) touch(group *models.Group) {
	if _, seen := st.touched[group.GroupID]; !seen {
		st.order = append(st.order, group.GroupID)
	}
	st.touched[group.GroupID] = group
}

func (st *batchState) absorb(secondaryID, primaryID string) {
	st.absorbed[secondaryID] = primaryID
	delete(st.touched, secondaryID)
}

func (st *batchState) resolve(groupID string) string {
	for {
		primary, ok := st.absorbed[groupID]
		if !ok {
			return groupID
		}
		groupID = primary
	}
}

// adopt prefers the batch-local copy of a group over a freshly fetched one.
func (s *GroupServiceImpl) adopt(st *batchState, group *models.Group) *models.Group {
	if cur, ok := st.touched[group.GroupID]; ok {
		return cur
	}
	return group
}

func (s *GroupServiceImpl) broadcastGroup(userID, event string, group *models.Group) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastToUser(userID, event, map[string]interface{}{
		"groupId":   group.GroupID,
		"faceCount": group.FaceCount,
		"status":    string(group.Status),
	})
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func containsGroup(groups []models.Group, groupID string) bool {
	for i := range groups {
		if groups[i].GroupID == groupID {
			return true
		}
	}
	return false
}

func removeString(list []string, value string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}

func unionStrings(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func dedupeExcluding(list []string, exclude string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, v := range list {
		if v == "" || v == exclude {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
