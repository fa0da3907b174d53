package serviceimpl

import (
	"context"
	"sync"
	"time"

	"facemanager/domain/models"
	"facemanager/domain/repositories"
	"facemanager/domain/services"
)

// In-memory repository fakes. Each keeps a map guarded by a mutex and an
// optional forced error per method, so tests can exercise failure paths
// without a database.

type mockGroupRepo struct {
	mu     sync.Mutex
	groups map[string]*models.Group // group_id -> group

	createErr error
	updateErr error
	deleteErr error
	findErr   error
}

func newMockGroupRepo() *mockGroupRepo {
	return &mockGroupRepo{groups: make(map[string]*models.Group)}
}

func copyGroup(g *models.Group) *models.Group {
	cp := *g
	cp.FaceIDs = append([]string(nil), g.FaceIDs...)
	cp.FileIDs = append([]string(nil), g.FileIDs...)
	cp.MergedFrom = append([]string(nil), g.MergedFrom...)
	return &cp
}

func (m *mockGroupRepo) Create(_ context.Context, group *models.Group) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[group.GroupID] = copyGroup(group)
	return nil
}

func (m *mockGroupRepo) GetByID(_ context.Context, userID, groupID string) (*models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok || g.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	return copyGroup(g), nil
}

func (m *mockGroupRepo) Update(_ context.Context, group *models.Group) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := copyGroup(group)
	cp.UpdatedAt = time.Now()
	m.groups[group.GroupID] = cp
	return nil
}

func (m *mockGroupRepo) Delete(_ context.Context, userID, groupID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok || g.UserID != userID {
		return repositories.ErrNotFound
	}
	delete(m.groups, groupID)
	return nil
}

func (m *mockGroupRepo) ListByUser(_ context.Context, userID string) ([]models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Group
	for _, g := range m.groups {
		if g.UserID == userID {
			out = append(out, *copyGroup(g))
		}
	}
	return out, nil
}

func (m *mockGroupRepo) FindContainingAny(_ context.Context, userID string, faceIDs []string, interviewID *string) ([]models.Group, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]bool, len(faceIDs))
	for _, id := range faceIDs {
		wanted[id] = true
	}

	var out []models.Group
	for _, g := range m.groups {
		if g.UserID != userID {
			continue
		}
		if interviewID != nil && g.InterviewID != nil && *g.InterviewID != *interviewID {
			continue
		}
		for _, id := range g.FaceIDs {
			if wanted[id] {
				out = append(out, *copyGroup(g))
				break
			}
		}
	}
	return out, nil
}

func (m *mockGroupRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, g := range m.groups {
		if g.UserID == userID {
			delete(m.groups, id)
			n++
		}
	}
	return n, nil
}

func (m *mockGroupRepo) ListUserIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, g := range m.groups {
		if !seen[g.UserID] {
			seen[g.UserID] = true
			out = append(out, g.UserID)
		}
	}
	return out, nil
}

func (m *mockGroupRepo) get(groupID string) *models.Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil
	}
	return copyGroup(g)
}

func (m *mockGroupRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.groups)
}

type mockFaceRepo struct {
	mu    sync.Mutex
	faces map[string]*models.Face // face_id -> face

	upsertErr      error
	updateGroupErr error
}

func newMockFaceRepo() *mockFaceRepo {
	return &mockFaceRepo{faces: make(map[string]*models.Face)}
}

func copyFace(f *models.Face) *models.Face {
	cp := *f
	return &cp
}

func (m *mockFaceRepo) Upsert(_ context.Context, face *models.Face) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces[face.FaceID] = copyFace(face)
	return nil
}

func (m *mockFaceRepo) GetByID(_ context.Context, userID, faceID string) (*models.Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.faces[faceID]
	if !ok || f.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	return copyFace(f), nil
}

func (m *mockFaceRepo) GetByGroup(_ context.Context, userID, groupID string) ([]models.Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Face
	for _, f := range m.faces {
		if f.UserID == userID && f.GroupID == groupID {
			out = append(out, *copyFace(f))
		}
	}
	return out, nil
}

func (m *mockFaceRepo) UpdateGroupID(_ context.Context, userID string, faceIDs []string, groupID string) error {
	if m.updateGroupErr != nil {
		return m.updateGroupErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range faceIDs {
		if f, ok := m.faces[id]; ok && f.UserID == userID {
			f.GroupID = groupID
		}
	}
	return nil
}

func (m *mockFaceRepo) Delete(_ context.Context, userID, faceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.faces[faceID]
	if !ok || f.UserID != userID {
		return repositories.ErrNotFound
	}
	delete(m.faces, faceID)
	return nil
}

func (m *mockFaceRepo) DeleteByGroup(_ context.Context, userID, groupID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, f := range m.faces {
		if f.UserID == userID && f.GroupID == groupID {
			delete(m.faces, id)
			n++
		}
	}
	return n, nil
}

func (m *mockFaceRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, f := range m.faces {
		if f.UserID == userID {
			delete(m.faces, id)
			n++
		}
	}
	return n, nil
}

func (m *mockFaceRepo) all() []models.Face {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Face, 0, len(m.faces))
	for _, f := range m.faces {
		out = append(out, *copyFace(f))
	}
	return out
}

func (m *mockFaceRepo) get(faceID string) *models.Face {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.faces[faceID]
	if !ok {
		return nil
	}
	return copyFace(f)
}

type mockFileRepo struct {
	mu    sync.Mutex
	files map[string]*models.SourceFile // file_id -> file

	updateErr error
}

func newMockFileRepo() *mockFileRepo {
	return &mockFileRepo{files: make(map[string]*models.SourceFile)}
}

func (m *mockFileRepo) GetByID(_ context.Context, userID, fileID string) (*models.SourceFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok || f.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *mockFileRepo) UpdateGroupMapping(_ context.Context, userID, fileID string, mapping map[string]string, processedAt time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok || f.UserID != userID {
		return repositories.ErrNotFound
	}
	if f.FaceGroupMapping == nil {
		f.FaceGroupMapping = make(map[string]string)
	}
	for k, v := range mapping {
		f.FaceGroupMapping[k] = v
	}
	f.FaceGroupsProcessedAt = &processedAt
	return nil
}

func (m *mockFileRepo) add(file *models.SourceFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[file.FileID] = file
}

func (m *mockFileRepo) mapping(fileID string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(f.FaceGroupMapping))
	for k, v := range f.FaceGroupMapping {
		out[k] = v
	}
	return out
}

// mockEngine returns canned matches per face id.
type mockEngine struct {
	mu      sync.Mutex
	matches map[string][]services.FaceMatch
	err     error
	calls   int
}

func newMockEngine() *mockEngine {
	return &mockEngine{matches: make(map[string][]services.FaceMatch)}
}

func (m *mockEngine) SearchMatches(_ context.Context, _ string, faceID string) ([]services.FaceMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.matches[faceID], nil
}

// mockProber answers reachability per URL; unknown URLs are reachable.
type mockProber struct {
	mu          sync.Mutex
	unreachable map[string]bool
}

func newMockProber() *mockProber {
	return &mockProber{unreachable: make(map[string]bool)}
}

func (m *mockProber) IsReachable(_ context.Context, url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return url != "" && !m.unreachable[url]
}

// mockBroadcaster records events for assertions.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (m *mockBroadcaster) BroadcastToUser(_ string, event string, _ map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockBroadcaster) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
