package serviceimpl

import (
	"context"
	"testing"
	"time"

	"facemanager/domain/models"
	"facemanager/domain/services"
	"facemanager/pkg/config"
)

const testUser = "user-1"

type fixture struct {
	svc         services.GroupService
	groups      *mockGroupRepo
	faces       *mockFaceRepo
	files       *mockFileRepo
	engine      *mockEngine
	prober      *mockProber
	broadcaster *mockBroadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		groups:      newMockGroupRepo(),
		faces:       newMockFaceRepo(),
		files:       newMockFileRepo(),
		engine:      newMockEngine(),
		prober:      newMockProber(),
		broadcaster: &mockBroadcaster{},
	}
	f.svc = NewGroupService(f.groups, f.faces, f.files, f.engine, f.prober, f.broadcaster, config.GroupingConfig{
		SimilarityThreshold: 0.85,
		MaxMatches:          20,
		BBoxTolerance:       0.05,
		TestUserID:          "test-user",
		CollectionPrefix:    "face_coll_",
	})
	return f
}

func (f *fixture) addFile(fileID string, deleted ...models.DeletedFace) {
	f.files.add(&models.SourceFile{
		FileID:       fileID,
		UserID:       testUser,
		URL:          "https://img.example.com/" + fileID + ".jpg",
		DeletedFaces: deleted,
	})
}

func box(left float64) *models.BoundingBox {
	return &models.BoundingBox{Left: left, Top: 0.2, Width: 0.1, Height: 0.1}
}

func face(id string, matched ...string) services.FaceInput {
	return services.FaceInput{
		FaceID:         id,
		BoundingBox:    box(0.1),
		Confidence:     0.99,
		MatchedFaceIDs: matched,
	}
}

// checkMembership asserts each face doc points at a live group that lists
// the face, and no group lists a face homed elsewhere.
func checkMembership(t *testing.T, f *fixture) {
	t.Helper()
	groups, err := f.groups.ListByUser(context.Background(), testUser)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	byID := make(map[string]models.Group, len(groups))
	for _, g := range groups {
		byID[g.GroupID] = g
		if g.FaceCount != len(g.FaceIDs) {
			t.Errorf("group %s: face_count %d != len(face_ids) %d", g.GroupID, g.FaceCount, len(g.FaceIDs))
		}
		for _, faceID := range g.FaceIDs {
			doc := f.faces.get(faceID)
			if doc == nil {
				t.Errorf("group %s lists %s but face doc missing", g.GroupID, faceID)
				continue
			}
			if doc.GroupID != g.GroupID {
				t.Errorf("face %s homed to %s but listed by %s", faceID, doc.GroupID, g.GroupID)
			}
		}
	}
	for _, doc := range f.faces.all() {
		if doc.UserID != testUser {
			continue
		}
		g, ok := byID[doc.GroupID]
		if !ok {
			t.Errorf("face %s homed to missing group %s", doc.FaceID, doc.GroupID)
			continue
		}
		if !g.HasFace(doc.FaceID) {
			t.Errorf("face %s homed to %s which does not list it", doc.FaceID, doc.GroupID)
		}
	}
}

func TestProcessBatchCreatesSingletonGroup(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")

	result, err := f.svc.ProcessBatch(context.Background(), testUser, "file-1", []services.FaceInput{face("A")}, nil)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.ProcessedCount != 1 {
		t.Fatalf("processed = %d, want 1", result.ProcessedCount)
	}
	if len(result.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(result.Groups))
	}

	g := result.Groups[0]
	if len(g.FaceIDs) != 1 || g.FaceIDs[0] != "A" {
		t.Errorf("face_ids = %v, want [A]", g.FaceIDs)
	}
	if g.LeaderFaceID != "A" {
		t.Errorf("leader = %q, want A", g.LeaderFaceID)
	}
	if g.Status != models.GroupStatusUnreviewed {
		t.Errorf("status = %q, want unreviewed", g.Status)
	}

	if got := f.files.mapping("file-1")["A"]; got != g.GroupID {
		t.Errorf("file mapping[A] = %q, want %q", got, g.GroupID)
	}
	checkMembership(t, f)
}

// Transitive closure over consecutive batches: A, then B~A, then C~B all
// land in one group.
func TestProcessBatchChainsAcrossBatches(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")
	f.addFile("file-2")
	f.addFile("file-3")

	ctx := context.Background()
	if _, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A")}, nil); err != nil {
		t.Fatalf("batch 1: %v", err)
	}
	if _, err := f.svc.ProcessBatch(ctx, testUser, "file-2", []services.FaceInput{face("B", "A")}, nil); err != nil {
		t.Fatalf("batch 2: %v", err)
	}
	result, err := f.svc.ProcessBatch(ctx, testUser, "file-3", []services.FaceInput{face("C", "B")}, nil)
	if err != nil {
		t.Fatalf("batch 3: %v", err)
	}

	if f.groups.count() != 1 {
		t.Fatalf("group count = %d, want 1", f.groups.count())
	}
	g := result.Groups[0]
	for _, id := range []string{"A", "B", "C"} {
		if !g.HasFace(id) {
			t.Errorf("group missing face %s: %v", id, g.FaceIDs)
		}
	}
	if len(g.FileIDs) != 3 {
		t.Errorf("file_ids = %v, want 3 entries", g.FileIDs)
	}
	checkMembership(t, f)
}

// A face matching two disjoint groups bridges them into one.
func TestProcessBatchMergesBridgedGroups(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")
	f.addFile("file-2")
	f.addFile("file-3")

	ctx := context.Background()
	if _, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A")}, nil); err != nil {
		t.Fatalf("batch 1: %v", err)
	}
	if _, err := f.svc.ProcessBatch(ctx, testUser, "file-2", []services.FaceInput{face("B")}, nil); err != nil {
		t.Fatalf("batch 2: %v", err)
	}
	if f.groups.count() != 2 {
		t.Fatalf("setup: group count = %d, want 2", f.groups.count())
	}

	result, err := f.svc.ProcessBatch(ctx, testUser, "file-3", []services.FaceInput{face("C", "A", "B")}, nil)
	if err != nil {
		t.Fatalf("bridge batch: %v", err)
	}

	if f.groups.count() != 1 {
		t.Fatalf("group count after merge = %d, want 1", f.groups.count())
	}
	g := result.Groups[0]
	for _, id := range []string{"A", "B", "C"} {
		if !g.HasFace(id) {
			t.Errorf("survivor missing %s: %v", id, g.FaceIDs)
		}
	}
	if len(g.MergedFrom) != 1 {
		t.Errorf("merged_from = %v, want one absorbed id", g.MergedFrom)
	}

	// The oldest group survives the merge.
	survivor := f.groups.get(g.GroupID)
	if survivor == nil {
		t.Fatal("survivor not persisted")
	}
	if got := f.files.mapping("file-3")["C"]; got != g.GroupID {
		t.Errorf("mapping[C] = %q, want survivor %q", got, g.GroupID)
	}
	checkMembership(t, f)
}

// An intra-batch merge must not leave earlier faces of the same batch
// mapped to the absorbed group.
func TestProcessBatchMappingSurvivesIntraBatchMerge(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")
	f.addFile("file-2")
	f.addFile("file-3")

	ctx := context.Background()
	if _, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A")}, nil); err != nil {
		t.Fatalf("batch 1: %v", err)
	}
	if _, err := f.svc.ProcessBatch(ctx, testUser, "file-2", []services.FaceInput{face("B")}, nil); err != nil {
		t.Fatalf("batch 2: %v", err)
	}

	// D joins B's group first, then C bridges both groups.
	_, err := f.svc.ProcessBatch(ctx, testUser, "file-3", []services.FaceInput{
		face("D", "B"),
		face("C", "A", "B"),
	}, nil)
	if err != nil {
		t.Fatalf("batch 3: %v", err)
	}

	if f.groups.count() != 1 {
		t.Fatalf("group count = %d, want 1", f.groups.count())
	}
	mapping := f.files.mapping("file-3")
	var survivorID string
	for _, g := range mustList(t, f) {
		survivorID = g.GroupID
	}
	if mapping["D"] != survivorID {
		t.Errorf("mapping[D] = %q, want survivor %q", mapping["D"], survivorID)
	}
	if mapping["C"] != survivorID {
		t.Errorf("mapping[C] = %q, want survivor %q", mapping["C"], survivorID)
	}
	checkMembership(t, f)
}

func mustList(t *testing.T, f *fixture) []models.Group {
	t.Helper()
	groups, err := f.groups.ListByUser(context.Background(), testUser)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	return groups
}

// Reprocessing the same batch is a no-op: same group, no duplicates.
func TestProcessBatchIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")

	ctx := context.Background()
	first, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A"), face("B", "A")}, nil)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A"), face("B", "A")}, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if f.groups.count() != 1 {
		t.Fatalf("group count = %d, want 1", f.groups.count())
	}
	if first.Groups[0].GroupID != second.Groups[0].GroupID {
		t.Errorf("group id changed on reprocess: %q -> %q", first.Groups[0].GroupID, second.Groups[0].GroupID)
	}
	g := f.groups.get(second.Groups[0].GroupID)
	if len(g.FaceIDs) != 2 {
		t.Errorf("face_ids = %v, want 2 entries", g.FaceIDs)
	}
	checkMembership(t, f)
}

// A matchless reprocessed face stays in its group instead of spawning a
// duplicate singleton.
func TestProcessBatchReprocessedFaceKeepsGroup(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")

	ctx := context.Background()
	first, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A")}, nil)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A")}, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if f.groups.count() != 1 {
		t.Fatalf("group count = %d, want 1", f.groups.count())
	}
	if first.Groups[0].GroupID != second.Groups[0].GroupID {
		t.Errorf("matchless reprocess moved the face: %q -> %q", first.Groups[0].GroupID, second.Groups[0].GroupID)
	}
}

func TestProcessBatchSkipsUnreachableSource(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")
	f.prober.unreachable["https://img.example.com/file-1.jpg"] = true

	result, err := f.svc.ProcessBatch(context.Background(), testUser, "file-1", []services.FaceInput{face("A")}, nil)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.ProcessedCount != 0 || len(result.Groups) != 0 {
		t.Errorf("unreachable source produced work: %+v", result)
	}
	if f.groups.count() != 0 {
		t.Errorf("group count = %d, want 0", f.groups.count())
	}
	if len(f.files.mapping("file-1")) != 0 {
		t.Errorf("file mapping written for skipped batch")
	}
}

func TestProcessBatchSkipsMissingFile(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.ProcessBatch(context.Background(), testUser, "no-such-file", []services.FaceInput{face("A")}, nil)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.ProcessedCount != 0 {
		t.Errorf("processed = %d, want 0", result.ProcessedCount)
	}
}

func TestProcessBatchDropsTombstonedFaces(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1", models.DeletedFace{BoundingBox: box(0.1)})

	// Same box within tolerance is dropped; a distant box passes.
	inputs := []services.FaceInput{
		{FaceID: "dead", BoundingBox: &models.BoundingBox{Left: 0.12, Top: 0.21, Width: 0.1, Height: 0.1}},
		{FaceID: "alive", BoundingBox: &models.BoundingBox{Left: 0.7, Top: 0.7, Width: 0.1, Height: 0.1}},
	}

	result, err := f.svc.ProcessBatch(context.Background(), testUser, "file-1", inputs, nil)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.ProcessedCount != 1 {
		t.Fatalf("processed = %d, want 1", result.ProcessedCount)
	}
	if f.faces.get("dead") != nil {
		t.Error("tombstoned face got a face doc")
	}
	if f.faces.get("alive") == nil {
		t.Error("surviving face missing its face doc")
	}
	if _, ok := f.files.mapping("file-1")["dead"]; ok {
		t.Error("tombstoned face present in file mapping")
	}
}

func TestProcessBatchSkipsFacesWithoutBox(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")

	result, err := f.svc.ProcessBatch(context.Background(), testUser, "file-1", []services.FaceInput{
		{FaceID: "noval"},
		face("A"),
	}, nil)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.ProcessedCount != 1 {
		t.Errorf("processed = %d, want 1", result.ProcessedCount)
	}
	if f.faces.get("noval") != nil {
		t.Error("boxless face got a face doc")
	}
}

// Groups scoped to another interview never absorb faces from this one, but
// unscoped groups always participate.
func TestProcessBatchInterviewScoping(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")
	f.addFile("file-2")
	f.addFile("file-3")

	ctx := context.Background()
	iv1 := "interview-1"
	iv2 := "interview-2"

	if _, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A")}, &iv1); err != nil {
		t.Fatalf("scoped batch: %v", err)
	}

	// Same person in a different interview starts a fresh group.
	result, err := f.svc.ProcessBatch(ctx, testUser, "file-2", []services.FaceInput{face("B", "A")}, &iv2)
	if err != nil {
		t.Fatalf("cross-scope batch: %v", err)
	}
	if f.groups.count() != 2 {
		t.Fatalf("group count = %d, want 2 (scopes must not mix)", f.groups.count())
	}
	if result.Groups[0].HasFace("A") {
		t.Error("scoped group leaked into another interview")
	}

	// An unscoped group joins any interview's batch.
	if _, err := f.svc.ProcessBatch(ctx, testUser, "file-3", []services.FaceInput{face("G")}, nil); err != nil {
		t.Fatalf("global batch: %v", err)
	}
	result, err = f.svc.ProcessBatch(ctx, testUser, "file-3", []services.FaceInput{face("H", "G")}, &iv1)
	if err != nil {
		t.Fatalf("scoped batch against global group: %v", err)
	}
	if !result.Groups[0].HasFace("G") {
		t.Error("global group did not participate in scoped batch")
	}
	checkMembership(t, f)
}

// Reprocessing a face under a different interview re-homes it to a fresh
// group and detaches it from the old one in the same batch, not lazily via
// the reconciler.
func TestProcessBatchOutOfScopeReprocessMovesFace(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")
	f.addFile("file-2")

	ctx := context.Background()
	iv1 := "interview-1"
	iv2 := "interview-2"

	r1, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A")}, &iv1)
	if err != nil {
		t.Fatalf("first scope: %v", err)
	}
	oldID := r1.Groups[0].GroupID

	r2, err := f.svc.ProcessBatch(ctx, testUser, "file-2", []services.FaceInput{face("A")}, &iv2)
	if err != nil {
		t.Fatalf("second scope: %v", err)
	}
	newID := r2.Groups[0].GroupID
	if newID == oldID {
		t.Fatal("face stayed in the out-of-scope group")
	}

	if doc := f.faces.get("A"); doc.GroupID != newID {
		t.Errorf("face A homed to %q, want %q", doc.GroupID, newID)
	}
	old := f.groups.get(oldID)
	if old == nil {
		t.Fatal("old scoped group deleted; it must be kept")
	}
	if old.HasFace("A") {
		t.Error("old group still lists the re-homed face")
	}
	if old.FaceCount != 0 || old.LeaderFaceID != "" {
		t.Errorf("old group not fixed up: count=%d leader=%q", old.FaceCount, old.LeaderFaceID)
	}
	checkMembership(t, f)
}

func TestProcessBatchEngineFallback(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")
	f.addFile("file-2")

	ctx := context.Background()
	if _, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A")}, nil); err != nil {
		t.Fatalf("seed batch: %v", err)
	}

	// No supplied matches: engine lookup used.
	f.engine.matches["B"] = []services.FaceMatch{{FaceID: "A", Similarity: 0.93}}
	result, err := f.svc.ProcessBatch(ctx, testUser, "file-2", []services.FaceInput{{FaceID: "B", BoundingBox: box(0.3)}}, nil)
	if err != nil {
		t.Fatalf("engine batch: %v", err)
	}
	if !result.Groups[0].HasFace("A") {
		t.Error("engine matches were ignored")
	}
	if f.engine.calls == 0 {
		t.Error("engine was never consulted")
	}

	// Supplied matches bypass the engine entirely.
	callsBefore := f.engine.calls
	if _, err := f.svc.ProcessBatch(ctx, testUser, "file-2", []services.FaceInput{face("C", "A")}, nil); err != nil {
		t.Fatalf("supplied-match batch: %v", err)
	}
	if f.engine.calls != callsBefore {
		t.Error("engine consulted despite supplied matches")
	}
}

func TestProcessBatchEngineErrorTreatedAsUnmatched(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")
	f.engine.err = context.DeadlineExceeded

	result, err := f.svc.ProcessBatch(context.Background(), testUser, "file-1", []services.FaceInput{{FaceID: "A", BoundingBox: box(0.1)}}, nil)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.ProcessedCount != 1 {
		t.Errorf("processed = %d, want 1 (engine failure downgrades to singleton)", result.ProcessedCount)
	}
}

func TestProcessBatchValidatesInput(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		userID string
		fileID string
		faces  []services.FaceInput
	}{
		{"empty user", "", "file-1", []services.FaceInput{face("A")}},
		{"empty file", testUser, "", []services.FaceInput{face("A")}},
		{"no faces", testUser, "file-1", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.ProcessBatch(context.Background(), tc.userID, tc.fileID, tc.faces, nil); err != services.ErrInvalidInput {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestProcessBatchBroadcastsTouchedGroups(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")

	if _, err := f.svc.ProcessBatch(context.Background(), testUser, "file-1", []services.FaceInput{face("A")}, nil); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if f.broadcaster.count() == 0 {
		t.Error("no group events broadcast")
	}
}

func TestRemoveFaceReassignsLeader(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")

	ctx := context.Background()
	result, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A"), face("B", "A")}, nil)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	groupID := result.Groups[0].GroupID
	if got := f.groups.get(groupID).LeaderFaceID; got != "A" {
		t.Fatalf("leader = %q, want A", got)
	}

	if err := f.svc.RemoveFaceFromGroup(ctx, testUser, groupID, "A"); err != nil {
		t.Fatalf("RemoveFaceFromGroup: %v", err)
	}

	g := f.groups.get(groupID)
	if g == nil {
		t.Fatal("group deleted; emptied-leader groups must be kept")
	}
	if g.LeaderFaceID != "B" {
		t.Errorf("leader = %q, want B", g.LeaderFaceID)
	}
	if g.HasFace("A") {
		t.Error("removed face still listed")
	}
	if f.faces.get("A") != nil {
		t.Error("removed face doc still exists")
	}

	// Removing the last member keeps the empty group.
	if err := f.svc.RemoveFaceFromGroup(ctx, testUser, groupID, "B"); err != nil {
		t.Fatalf("remove last member: %v", err)
	}
	g = f.groups.get(groupID)
	if g == nil {
		t.Fatal("empty group deleted; it must be kept")
	}
	if g.FaceCount != 0 || g.LeaderFaceID != "" {
		t.Errorf("empty group not cleared: count=%d leader=%q", g.FaceCount, g.LeaderFaceID)
	}
}

func TestCreateGroupWithFacesMovesGroupedFaces(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")

	ctx := context.Background()
	seeded, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A"), face("B", "A")}, nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	oldID := seeded.Groups[0].GroupID

	name := "Alice"
	created, err := f.svc.CreateGroupWithFaces(ctx, testUser, []services.FaceInput{{FaceID: "A"}}, &name)
	if err != nil {
		t.Fatalf("CreateGroupWithFaces: %v", err)
	}

	if created.Status != models.GroupStatusNamed {
		t.Errorf("status = %q, want named", created.Status)
	}
	if created.PersonName == nil || *created.PersonName != "Alice" {
		t.Errorf("person_name = %v, want Alice", created.PersonName)
	}
	if doc := f.faces.get("A"); doc.GroupID != created.GroupID {
		t.Errorf("face A homed to %q, want new group %q", doc.GroupID, created.GroupID)
	}

	// The old group lost A but survives.
	old := f.groups.get(oldID)
	if old == nil {
		t.Fatal("old group deleted; it must be kept")
	}
	if old.HasFace("A") {
		t.Error("old group still lists moved face")
	}
	checkMembership(t, f)
}

func TestAddFaceToGroupMovesAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")
	f.addFile("file-2")

	ctx := context.Background()
	r1, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A")}, nil)
	if err != nil {
		t.Fatalf("batch 1: %v", err)
	}
	r2, err := f.svc.ProcessBatch(ctx, testUser, "file-2", []services.FaceInput{face("B")}, nil)
	if err != nil {
		t.Fatalf("batch 2: %v", err)
	}
	g1, g2 := r1.Groups[0].GroupID, r2.Groups[0].GroupID

	if err := f.svc.AddFaceToGroup(ctx, testUser, g1, "B", nil); err != nil {
		t.Fatalf("AddFaceToGroup: %v", err)
	}
	if doc := f.faces.get("B"); doc.GroupID != g1 {
		t.Errorf("face B homed to %q, want %q", doc.GroupID, g1)
	}
	if f.groups.get(g2).HasFace("B") {
		t.Error("source group still lists moved face")
	}

	// Second add is a no-op.
	if err := f.svc.AddFaceToGroup(ctx, testUser, g1, "B", nil); err != nil {
		t.Fatalf("idempotent add: %v", err)
	}
	if got := len(f.groups.get(g1).FaceIDs); got != 2 {
		t.Errorf("face_ids length = %d, want 2", got)
	}
	checkMembership(t, f)
}

func TestRenameGroupPromotesStatus(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")

	ctx := context.Background()
	result, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A")}, nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	g, err := f.svc.RenameGroup(ctx, testUser, result.Groups[0].GroupID, "Bob")
	if err != nil {
		t.Fatalf("RenameGroup: %v", err)
	}
	if g.Status != models.GroupStatusNamed {
		t.Errorf("status = %q, want named", g.Status)
	}
	if g.PersonName == nil || *g.PersonName != "Bob" {
		t.Errorf("person_name = %v, want Bob", g.PersonName)
	}

	if _, err := f.svc.RenameGroup(ctx, testUser, "missing", "X"); err != services.ErrGroupNotFound {
		t.Errorf("err = %v, want ErrGroupNotFound", err)
	}
}

func TestMergeGroupsManual(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")
	f.addFile("file-2")

	ctx := context.Background()
	r1, _ := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A")}, nil)
	r2, _ := f.svc.ProcessBatch(ctx, testUser, "file-2", []services.FaceInput{face("B")}, nil)
	g1, g2 := r1.Groups[0].GroupID, r2.Groups[0].GroupID

	// Missing ids are skipped, not fatal.
	primary, err := f.svc.MergeGroups(ctx, testUser, []string{g1, g2, "missing"})
	if err != nil {
		t.Fatalf("MergeGroups: %v", err)
	}
	if primary != g1 {
		t.Errorf("primary = %q, want first id %q", primary, g1)
	}
	if f.groups.get(g2) != nil {
		t.Error("secondary group still exists")
	}
	merged := f.groups.get(g1)
	if !merged.HasFace("A") || !merged.HasFace("B") {
		t.Errorf("merged face_ids = %v, want A and B", merged.FaceIDs)
	}
	if !containsString(merged.MergedFrom, g2) {
		t.Errorf("merged_from = %v, want to record %q", merged.MergedFrom, g2)
	}
	if doc := f.faces.get("B"); doc.GroupID != g1 {
		t.Errorf("face B homed to %q, want %q", doc.GroupID, g1)
	}
	checkMembership(t, f)
}

func TestDeleteGroupRemovesFaceDocs(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")

	ctx := context.Background()
	result, _ := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A"), face("B", "A")}, nil)
	groupID := result.Groups[0].GroupID

	if err := f.svc.DeleteGroup(ctx, testUser, groupID); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	if f.groups.get(groupID) != nil {
		t.Error("group still exists")
	}
	if f.faces.get("A") != nil || f.faces.get("B") != nil {
		t.Error("member face docs survived group deletion")
	}

	if err := f.svc.DeleteGroup(ctx, testUser, groupID); err != services.ErrGroupNotFound {
		t.Errorf("second delete err = %v, want ErrGroupNotFound", err)
	}
}

func TestClearAllGroupsRestrictedToTestUser(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")

	ctx := context.Background()
	if _, err := f.svc.ProcessBatch(ctx, testUser, "file-1", []services.FaceInput{face("A")}, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := f.svc.ClearAllGroups(ctx, testUser); err != services.ErrForbidden {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
	if f.groups.count() != 1 {
		t.Error("forbidden clear removed data")
	}

	// Seed data for the configured test user, then clear it.
	f.files.add(&models.SourceFile{FileID: "tf", UserID: "test-user", URL: "https://img.example.com/tf.jpg"})
	if _, err := f.svc.ProcessBatch(ctx, "test-user", "tf", []services.FaceInput{face("T")}, nil); err != nil {
		t.Fatalf("test-user seed: %v", err)
	}
	deleted, err := f.svc.ClearAllGroups(ctx, "test-user")
	if err != nil {
		t.Fatalf("ClearAllGroups: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if f.faces.get("T") != nil {
		t.Error("test-user face docs survived clear")
	}
}

func TestGetGroupMapsNotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.GetGroup(context.Background(), testUser, "missing"); err != services.ErrGroupNotFound {
		t.Errorf("err = %v, want ErrGroupNotFound", err)
	}
}

func TestProcessBatchSetsProcessedTimestamp(t *testing.T) {
	f := newFixture(t)
	f.addFile("file-1")

	before := time.Now()
	if _, err := f.svc.ProcessBatch(context.Background(), testUser, "file-1", []services.FaceInput{face("A")}, nil); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	file, err := f.files.GetByID(context.Background(), testUser, "file-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if file.FaceGroupsProcessedAt == nil || file.FaceGroupsProcessedAt.Before(before) {
		t.Errorf("face_groups_processed_at = %v, want >= %v", file.FaceGroupsProcessedAt, before)
	}
}
