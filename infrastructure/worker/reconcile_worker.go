package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"facemanager/domain/models"
	"facemanager/domain/repositories"
	"facemanager/pkg/logger"
)

// ReconcileWorker repairs group docs from the authoritative face docs.
// Batches write face docs and group docs without a transaction, so a crash
// can leave a group doc behind the faces it claims; face docs win and the
// group doc is rebuilt to match them.
type ReconcileWorker struct {
	groupRepo repositories.GroupRepository
	faceRepo  repositories.FaceRepository

	maxConcurrent int

	mu        sync.Mutex
	isRunning bool
}

// ReconcileStats summarizes one reconcile pass.
type ReconcileStats struct {
	UsersScanned  int32
	GroupsFixed   int32
	GroupsDeleted int32
	Errors        int32
}

func NewReconcileWorker(groupRepo repositories.GroupRepository, faceRepo repositories.FaceRepository, maxConcurrent int) *ReconcileWorker {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ReconcileWorker{
		groupRepo:     groupRepo,
		faceRepo:      faceRepo,
		maxConcurrent: maxConcurrent,
	}
}

// ReconcileAll repairs every user's groups. Overlapping runs are skipped.
func (w *ReconcileWorker) ReconcileAll(ctx context.Context) *ReconcileStats {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		logger.Reconcile("reconcile_skipped", "Previous reconcile run still in progress", nil)
		return &ReconcileStats{}
	}
	w.isRunning = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.isRunning = false
		w.mu.Unlock()
	}()

	start := time.Now()
	stats := &ReconcileStats{}

	userIDs, err := w.groupRepo.ListUserIDs(ctx)
	if err != nil {
		logger.ReconcileError("reconcile_list_users", "Could not list users", err, nil)
		atomic.AddInt32(&stats.Errors, 1)
		return stats
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, w.maxConcurrent)

	for _, userID := range userIDs {
		select {
		case <-ctx.Done():
			logger.Reconcile("reconcile_cancelled", "Reconcile run cancelled", nil)
			wg.Wait()
			return stats
		case sem <- struct{}{}:
		}
		wg.Add(1)

		go func(uid string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := w.ReconcileUser(ctx, uid, stats); err != nil {
				atomic.AddInt32(&stats.Errors, 1)
				logger.ReconcileError("reconcile_user_failed", "User reconcile failed", err, map[string]interface{}{
					"user_id": uid,
				})
				return
			}
			atomic.AddInt32(&stats.UsersScanned, 1)
		}(userID)
	}
	wg.Wait()

	logger.Reconcile("reconcile_complete", "Reconcile pass finished", map[string]interface{}{
		"users_scanned":  stats.UsersScanned,
		"groups_fixed":   stats.GroupsFixed,
		"groups_deleted": stats.GroupsDeleted,
		"errors":         stats.Errors,
		"duration_ms":    time.Since(start).Milliseconds(),
	})
	return stats
}

// ReconcileUser rebuilds each of the user's group docs from its face docs,
// counting repairs and deletions into stats. A group left empty by an
// interrupted merge (its id is recorded in another group's merged_from) is
// deleted; manually emptied groups are kept.
func (w *ReconcileWorker) ReconcileUser(ctx context.Context, userID string, stats *ReconcileStats) error {
	groups, err := w.groupRepo.ListByUser(ctx, userID)
	if err != nil {
		return err
	}

	mergedAway := make(map[string]bool)
	for _, group := range groups {
		for _, absorbed := range group.MergedFrom {
			mergedAway[absorbed] = true
		}
	}

	for i := range groups {
		group := &groups[i]

		faces, err := w.faceRepo.GetByGroup(ctx, userID, group.GroupID)
		if err != nil {
			logger.ReconcileError("reconcile_faces_load", "Could not load face docs", err, map[string]interface{}{
				"user_id":  userID,
				"group_id": group.GroupID,
			})
			continue
		}

		if len(faces) == 0 && mergedAway[group.GroupID] {
			if err := w.groupRepo.Delete(ctx, userID, group.GroupID); err != nil {
				logger.ReconcileError("reconcile_delete", "Could not delete merged-away group", err, map[string]interface{}{
					"user_id":  userID,
					"group_id": group.GroupID,
				})
				continue
			}
			atomic.AddInt32(&stats.GroupsDeleted, 1)
			logger.Reconcile("group_merged_away_deleted", "Deleted empty group left by interrupted merge", map[string]interface{}{
				"user_id":  userID,
				"group_id": group.GroupID,
			})
			continue
		}

		if !w.repairGroup(group, faces) {
			continue
		}
		if err := w.groupRepo.Update(ctx, group); err != nil {
			logger.ReconcileError("reconcile_update", "Could not persist repaired group", err, map[string]interface{}{
				"user_id":  userID,
				"group_id": group.GroupID,
			})
			continue
		}
		atomic.AddInt32(&stats.GroupsFixed, 1)
		logger.Reconcile("group_repaired", "Group doc rebuilt from face docs", map[string]interface{}{
			"user_id":    userID,
			"group_id":   group.GroupID,
			"face_count": group.FaceCount,
		})
	}

	return nil
}

// repairGroup rewrites the group's membership from its face docs. Returns
// true when anything changed.
func (w *ReconcileWorker) repairGroup(group *models.Group, faces []models.Face) bool {
	faceIDs := make([]string, 0, len(faces))
	fileIDs := make([]string, 0, len(faces))
	fileSeen := make(map[string]bool)
	byID := make(map[string]*models.Face, len(faces))

	for i := range faces {
		face := &faces[i]
		faceIDs = append(faceIDs, face.FaceID)
		byID[face.FaceID] = face
		if face.FileID != "" && !fileSeen[face.FileID] {
			fileSeen[face.FileID] = true
			fileIDs = append(fileIDs, face.FileID)
		}
	}

	changed := false
	if !sameStringSet(group.FaceIDs, faceIDs) {
		group.FaceIDs = faceIDs
		changed = true
	}
	if !sameStringSet(group.FileIDs, fileIDs) {
		group.FileIDs = fileIDs
		changed = true
	}
	if group.FaceCount != len(faceIDs) {
		group.FaceCount = len(faceIDs)
		changed = true
	}

	if _, ok := byID[group.LeaderFaceID]; !ok {
		if len(faceIDs) > 0 {
			leader := byID[faceIDs[0]]
			group.LeaderFaceID = leader.FaceID
			group.LeaderFileID = leader.FileID
			group.LeaderBoundingBox = leader.BoundingBox
			changed = true
		} else if group.LeaderFaceID != "" {
			group.LeaderFaceID = ""
			group.LeaderFileID = ""
			group.LeaderBoundingBox = nil
			changed = true
		}
	}

	return changed
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}
