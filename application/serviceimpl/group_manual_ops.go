package serviceimpl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"facemanager/domain/models"
	"facemanager/domain/repositories"
	"facemanager/domain/services"
	"facemanager/pkg/logger"
)

func (s *GroupServiceImpl) ListGroups(ctx context.Context, userID string) ([]models.Group, error) {
	if userID == "" {
		return nil, services.ErrInvalidInput
	}
	groups, err := s.groupRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

func (s *GroupServiceImpl) GetGroup(ctx context.Context, userID, groupID string) (*models.Group, error) {
	group, err := s.groupRepo.GetByID(ctx, userID, groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	return group, nil
}

// CreateGroupWithFaces builds a group from explicitly chosen faces, e.g. the
// UI's drag-and-drop selection. Already-grouped faces are moved; their old
// group is fixed up and kept even when it becomes empty, so the UI can drag
// faces back into it.
func (s *GroupServiceImpl) CreateGroupWithFaces(ctx context.Context, userID string, faces []services.FaceInput, name *string) (*models.Group, error) {
	if userID == "" || len(faces) == 0 {
		return nil, services.ErrInvalidInput
	}

	now := time.Now()
	group := &models.Group{
		GroupID:   uuid.NewString(),
		UserID:    userID,
		Status:    models.GroupStatusUnreviewed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if name != nil && *name != "" {
		group.GroupName = name
		group.PersonName = name
		group.Status = models.GroupStatusNamed
	}

	// Face docs first: they are authoritative, so a crash mid-way converges
	// on the new assignment once the reconciler runs.
	for _, face := range faces {
		if face.FaceID == "" {
			return nil, services.ErrInvalidInput
		}
		if group.HasFace(face.FaceID) {
			continue
		}

		existing, err := s.faceRepo.GetByID(ctx, userID, face.FaceID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("failed to load face doc %s: %w", face.FaceID, err)
		}

		fileID := face.FileID
		box := face.BoundingBox
		if existing != nil {
			if fileID == "" {
				fileID = existing.FileID
			}
			if box == nil {
				box = existing.BoundingBox
			}
		}

		if err := s.upsertFaceDoc(ctx, userID, group.GroupID, fileID, services.FaceInput{
			FaceID:      face.FaceID,
			BoundingBox: box,
			Confidence:  face.Confidence,
		}); err != nil {
			return nil, err
		}

		if existing != nil && existing.GroupID != "" && existing.GroupID != group.GroupID {
			if err := s.detachFromGroup(ctx, userID, existing.GroupID, face.FaceID); err != nil {
				return nil, err
			}
		}

		group.FaceIDs = append(group.FaceIDs, face.FaceID)
		if fileID != "" && !containsString(group.FileIDs, fileID) {
			group.FileIDs = append(group.FileIDs, fileID)
		}
		if group.LeaderFaceID == "" {
			group.LeaderFaceID = face.FaceID
			group.LeaderFileID = fileID
			group.LeaderBoundingBox = box
		}
	}

	group.FaceCount = len(group.FaceIDs)
	if err := s.groupRepo.Create(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	logger.Group("group_created_manual", "Group created from explicit faces", map[string]interface{}{
		"user_id":    userID,
		"group_id":   group.GroupID,
		"face_count": group.FaceCount,
	})
	s.broadcastGroup(userID, "group:updated", group)
	return group, nil
}

// AddFaceToGroup is idempotent; a face grouped elsewhere is moved.
func (s *GroupServiceImpl) AddFaceToGroup(ctx context.Context, userID, groupID, faceID string, fileID *string) error {
	if userID == "" || groupID == "" || faceID == "" {
		return services.ErrInvalidInput
	}

	group, err := s.groupRepo.GetByID(ctx, userID, groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrGroupNotFound
		}
		return fmt.Errorf("failed to load group: %w", err)
	}

	existing, err := s.faceRepo.GetByID(ctx, userID, faceID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("failed to load face doc %s: %w", faceID, err)
	}

	srcFileID := ""
	var box *models.BoundingBox
	if fileID != nil {
		srcFileID = *fileID
	}
	if existing != nil {
		if srcFileID == "" {
			srcFileID = existing.FileID
		}
		box = existing.BoundingBox
	}

	if existing != nil && existing.GroupID == groupID && group.HasFace(faceID) {
		return nil // already a member
	}

	if err := s.upsertFaceDoc(ctx, userID, groupID, srcFileID, services.FaceInput{
		FaceID:      faceID,
		BoundingBox: box,
	}); err != nil {
		return err
	}

	if existing != nil && existing.GroupID != "" && existing.GroupID != groupID {
		if err := s.detachFromGroup(ctx, userID, existing.GroupID, faceID); err != nil {
			return err
		}
	}

	if !group.HasFace(faceID) {
		group.FaceIDs = append(group.FaceIDs, faceID)
	}
	if srcFileID != "" && !containsString(group.FileIDs, srcFileID) {
		group.FileIDs = append(group.FileIDs, srcFileID)
	}
	group.FaceCount = len(group.FaceIDs)
	if group.LeaderFaceID == "" {
		group.LeaderFaceID = faceID
		group.LeaderFileID = srcFileID
		group.LeaderBoundingBox = box
	}

	if err := s.groupRepo.Update(ctx, group); err != nil {
		return fmt.Errorf("failed to update group %s: %w", groupID, err)
	}
	s.broadcastGroup(userID, "group:updated", group)
	return nil
}

// RemoveFaceFromGroup deletes the face doc and fixes up the group. Emptied
// groups are kept.
func (s *GroupServiceImpl) RemoveFaceFromGroup(ctx context.Context, userID, groupID, faceID string) error {
	if userID == "" || groupID == "" || faceID == "" {
		return services.ErrInvalidInput
	}

	group, err := s.groupRepo.GetByID(ctx, userID, groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrGroupNotFound
		}
		return fmt.Errorf("failed to load group: %w", err)
	}
	if !group.HasFace(faceID) {
		return services.ErrFaceNotFound
	}

	group.FaceIDs = removeString(group.FaceIDs, faceID)
	group.FaceCount = len(group.FaceIDs)
	if group.LeaderFaceID == faceID {
		s.refreshLeader(ctx, userID, group)
	}

	if err := s.groupRepo.Update(ctx, group); err != nil {
		return fmt.Errorf("failed to update group %s: %w", groupID, err)
	}

	if err := s.faceRepo.Delete(ctx, userID, faceID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("failed to delete face doc %s: %w", faceID, err)
	}

	s.broadcastGroup(userID, "group:updated", group)
	return nil
}

func (s *GroupServiceImpl) RenameGroup(ctx context.Context, userID, groupID, personName string) (*models.Group, error) {
	if userID == "" || groupID == "" || personName == "" {
		return nil, services.ErrInvalidInput
	}

	group, err := s.groupRepo.GetByID(ctx, userID, groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to load group: %w", err)
	}

	group.PersonName = &personName
	group.PromoteStatus(models.GroupStatusNamed)

	if err := s.groupRepo.Update(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to rename group %s: %w", groupID, err)
	}

	s.broadcastGroup(userID, "group:updated", group)
	return group, nil
}

// MergeGroups folds every listed group into the first one. Missing groups
// are skipped rather than failing the whole merge.
func (s *GroupServiceImpl) MergeGroups(ctx context.Context, userID string, groupIDs []string) (string, error) {
	if userID == "" || len(groupIDs) < 2 {
		return "", services.ErrInvalidInput
	}

	primary, err := s.groupRepo.GetByID(ctx, userID, groupIDs[0])
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", services.ErrGroupNotFound
		}
		return "", fmt.Errorf("failed to load primary group: %w", err)
	}

	for _, groupID := range groupIDs[1:] {
		if groupID == primary.GroupID {
			continue
		}
		secondary, err := s.groupRepo.GetByID(ctx, userID, groupID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				continue
			}
			return "", fmt.Errorf("failed to load group %s: %w", groupID, err)
		}
		if err := s.mergeInto(ctx, userID, primary, secondary); err != nil {
			return "", err
		}
	}

	s.broadcastGroup(userID, "group:updated", primary)
	return primary.GroupID, nil
}

// DeleteGroup removes the group and its member face docs.
func (s *GroupServiceImpl) DeleteGroup(ctx context.Context, userID, groupID string) error {
	if userID == "" || groupID == "" {
		return services.ErrInvalidInput
	}

	if _, err := s.groupRepo.GetByID(ctx, userID, groupID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrGroupNotFound
		}
		return fmt.Errorf("failed to load group: %w", err)
	}

	if _, err := s.faceRepo.DeleteByGroup(ctx, userID, groupID); err != nil {
		return fmt.Errorf("failed to delete face docs of group %s: %w", groupID, err)
	}
	if err := s.groupRepo.Delete(ctx, userID, groupID); err != nil {
		return fmt.Errorf("failed to delete group %s: %w", groupID, err)
	}

	logger.Group("group_deleted", "Group deleted", map[string]interface{}{
		"user_id":  userID,
		"group_id": groupID,
	})
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToUser(userID, "group:deleted", map[string]interface{}{
			"groupId": groupID,
		})
	}
	return nil
}

// ClearAllGroups wipes every group and face doc. Only the configured test
// user may do this.
func (s *GroupServiceImpl) ClearAllGroups(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, services.ErrInvalidInput
	}
	if s.cfg.TestUserID == "" || userID != s.cfg.TestUserID {
		return 0, services.ErrForbidden
	}

	deleted, err := s.groupRepo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete groups: %w", err)
	}
	if _, err := s.faceRepo.DeleteByUser(ctx, userID); err != nil {
		return deleted, fmt.Errorf("failed to delete face docs: %w", err)
	}

	logger.Group("groups_cleared", "All groups cleared for test user", map[string]interface{}{
		"user_id":       userID,
		"deleted_count": deleted,
	})
	return deleted, nil
}

// mergeInto folds secondary into primary. Face docs are re-homed before the
// group docs change so that a crash at any point leaves the authoritative
// face docs ahead of the secondary group doc; the reconciler finishes the
// job. The primary's leader is retained.
func (s *GroupServiceImpl) mergeInto(ctx context.Context, userID string, primary, secondary *models.Group) error {
	if primary.GroupID == secondary.GroupID {
		return nil
	}

	if len(secondary.FaceIDs) > 0 {
		if err := s.faceRepo.UpdateGroupID(ctx, userID, secondary.FaceIDs, primary.GroupID); err != nil {
			// Non-fatal: the reconciler repairs from face docs.
			logger.GroupError("merge_rehome_failed", "Face docs not re-homed during merge", err, map[string]interface{}{
				"user_id":   userID,
				"primary":   primary.GroupID,
				"secondary": secondary.GroupID,
			})
		}
	}

	primary.FaceIDs = unionStrings(primary.FaceIDs, secondary.FaceIDs)
	primary.FileIDs = unionStrings(primary.FileIDs, secondary.FileIDs)
	primary.FaceCount = len(primary.FaceIDs)
	primary.MergedFrom = append(primary.MergedFrom, secondary.GroupID)

	if err := s.groupRepo.Update(ctx, primary); err != nil {
		return fmt.Errorf("failed to update primary group %s: %w", primary.GroupID, err)
	}
	if err := s.groupRepo.Delete(ctx, userID, secondary.GroupID); err != nil {
		return fmt.Errorf("failed to delete merged group %s: %w", secondary.GroupID, err)
	}

	logger.Group("groups_merged", "Group absorbed", map[string]interface{}{
		"user_id":   userID,
		"primary":   primary.GroupID,
		"secondary": secondary.GroupID,
		"faces":     primary.FaceCount,
	})
	return nil
}

// detachFromGroup removes a face from a group doc when the face moves
// elsewhere. The group is kept even when emptied.
func (s *GroupServiceImpl) detachFromGroup(ctx context.Context, userID, groupID, faceID string) error {
	group, err := s.groupRepo.GetByID(ctx, userID, groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load group %s: %w", groupID, err)
	}
	if !group.HasFace(faceID) {
		return nil
	}

	group.FaceIDs = removeString(group.FaceIDs, faceID)
	group.FaceCount = len(group.FaceIDs)
	if group.LeaderFaceID == faceID {
		s.refreshLeader(ctx, userID, group)
	}

	if err := s.groupRepo.Update(ctx, group); err != nil {
		return fmt.Errorf("failed to update group %s: %w", groupID, err)
	}
	return nil
}

// refreshLeader picks the first remaining member as leader and refreshes
// the cached snapshot from its face doc.
func (s *GroupServiceImpl) refreshLeader(ctx context.Context, userID string, group *models.Group) {
	if len(group.FaceIDs) == 0 {
		group.LeaderFaceID = ""
		group.LeaderFileID = ""
		group.LeaderBoundingBox = nil
		return
	}

	leader := group.FaceIDs[0]
	group.LeaderFaceID = leader
	group.LeaderFileID = ""
	group.LeaderBoundingBox = nil

	doc, err := s.faceRepo.GetByID(ctx, userID, leader)
	if err != nil {
		logger.GroupWarn("leader_snapshot_missing", "Leader face doc unavailable", map[string]interface{}{
			"user_id":  userID,
			"group_id": group.GroupID,
			"face_id":  leader,
		})
		return
	}
	group.LeaderFileID = doc.FileID
	group.LeaderBoundingBox = doc.BoundingBox
}
