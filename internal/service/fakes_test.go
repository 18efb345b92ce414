package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/api/internal/client"
	"github.com/reelforge/api/internal/config"
	"github.com/reelforge/api/internal/logger"
	"github.com/reelforge/api/internal/model"
)

// memStore is an in-memory store.Store used by the service tests.
type memStore struct {
	mu       sync.Mutex
	projects map[string]model.Project
	scenes   map[string]model.Scene
	assets   map[string]model.Asset
	costs    []model.CostEntry
}

func newMemStore() *memStore {
	return &memStore{
		projects: make(map[string]model.Project),
		scenes:   make(map[string]model.Scene),
		assets:   make(map[string]model.Asset),
	}
}

func (s *memStore) CreateProject(ctx context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now()
	s.projects[p.ID] = *p
	return nil
}

func (s *memStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &p, nil
}

func (s *memStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	return out, nil
}

func (s *memStore) UpdateProjectCAS(ctx context.Context, p *model.Project) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.projects[p.ID]
	if !ok {
		return false, model.ErrNotFound
	}
	if cur.Version != p.Version {
		return false, nil
	}
	p.Version++
	p.CostCents = cur.CostCents // the running total only moves via RecordCost
	s.projects[p.ID] = *p
	return true, nil
}

func (s *memStore) CreateScene(ctx context.Context, sc *model.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	sc.CreatedAt = time.Now()
	s.scenes[sc.ID] = *sc
	return nil
}

func (s *memStore) GetScene(ctx context.Context, id string) (*model.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scenes[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &sc, nil
}

func (s *memStore) ListScenes(ctx context.Context, projectID string) ([]model.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Scene
	for _, sc := range s.scenes {
		if sc.ProjectID == projectID {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SegmentIndex < out[j].SegmentIndex })
	return out, nil
}

func (s *memStore) CreateAsset(ctx context.Context, a *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.assets[a.ID] = *a
	return nil
}

func (s *memStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &a, nil
}

func (s *memStore) ListAssets(ctx context.Context, projectID string) ([]model.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Asset
	for _, a := range s.assets {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) ListSlotAssets(ctx context.Context, sceneID string, t model.AssetType) ([]model.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Asset
	for _, a := range s.assets {
		if a.SceneID == sceneID && a.Type == t {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) UpdateAssetCAS(ctx context.Context, a *model.Asset) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.assets[a.ID]
	if !ok {
		return false, model.ErrNotFound
	}
	if cur.Version != a.Version {
		return false, nil
	}
	a.Version++
	s.assets[a.ID] = *a
	return true, nil
}

func (s *memStore) DeleteAssets(ctx context.Context, projectID string, types []model.AssetType, statuses []model.AssetStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wantType := make(map[model.AssetType]bool)
	for _, t := range types {
		wantType[t] = true
	}
	wantStatus := make(map[model.AssetStatus]bool)
	for _, st := range statuses {
		wantStatus[st] = true
	}
	for id, a := range s.assets {
		if a.ProjectID == projectID && wantType[a.Type] && wantStatus[a.Status] {
			delete(s.assets, id)
		}
	}
	return nil
}

func (s *memStore) RecordCost(ctx context.Context, entry *model.CostEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[entry.ProjectID]
	if !ok {
		return model.ErrNotFound
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	s.costs = append(s.costs, *entry)
	p.CostCents += entry.AmountCents
	s.projects[entry.ProjectID] = p
	return nil
}

func (s *memStore) ListCostEntries(ctx context.Context, projectID string) ([]model.CostEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CostEntry
	for _, e := range s.costs {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

// stubProvider hands out scripted poll results and records calls.
type stubProvider struct {
	mu         sync.Mutex
	submits    int
	submitErr  error
	statuses   map[string]*client.JobStatus
	cancelled  []string
	lastKind   client.JobKind
	lastInputs map[string]interface{}
}

func newStubProvider() *stubProvider {
	return &stubProvider{statuses: make(map[string]*client.JobStatus)}
}

func (p *stubProvider) SubmitJob(ctx context.Context, kind client.JobKind, payload map[string]interface{}) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return "", p.submitErr
	}
	p.submits++
	p.lastKind = kind
	p.lastInputs = payload
	taskID := fmt.Sprintf("task-%d", p.submits)
	p.statuses[taskID] = &client.JobStatus{TaskID: taskID, State: client.JobPending}
	return taskID, nil
}

func (p *stubProvider) PollJob(ctx context.Context, taskID string) (*client.JobStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.statuses[taskID]
	if !ok {
		return nil, fmt.Errorf("unknown task %s", taskID)
	}
	return st, nil
}

func (p *stubProvider) CancelJob(ctx context.Context, taskID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, taskID)
	return nil
}

func (p *stubProvider) IsConfigured() bool { return true }

// resolve scripts the next poll result for a task.
func (p *stubProvider) resolve(taskID string, status *client.JobStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[taskID] = status
}

// nopEnqueuer records scheduled task types without running anything.
type nopEnqueuer struct {
	mu    sync.Mutex
	types []string
}

func (e *nopEnqueuer) Enqueue(ctx context.Context, taskType string, payload interface{}, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, taskType)
	return nil
}

func (e *nopEnqueuer) count(taskType string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, t := range e.types {
		if t == taskType {
			n++
		}
	}
	return n
}

func testCostTable() CostTable {
	return NewCostTable(&config.CostConfig{
		KeyframeUSD: 0.35,
		VideoUSD:    1.80,
		AudioUSD:    0.25,
		BrollUSD:    0.90,
		EditUSD:     0.04,
		TextUSD:     0.02,
		AssembleUSD: 0.10,
		StageEstimate: map[string]float64{
			"scripting":        0.02,
			"casting":          2.80,
			"directing":        7.20,
			"voiceover":        1.00,
			"broll_generation": 3.60,
		},
	})
}

type lifecycleFixture struct {
	store    *memStore
	provider *stubProvider
	enq      *nopEnqueuer
	lc       *Lifecycle
	project  *model.Project
	scenes   []model.Scene
}

// newLifecycleFixture builds a lifecycle over in-memory fakes with a project
// and the given number of scenes.
func newLifecycleFixture(sceneCount int) *lifecycleFixture {
	st := newMemStore()
	provider := newStubProvider()
	enq := &nopEnqueuer{}
	lc := NewLifecycle(
		st, provider, nil, NewLedger(st, logger.NewNop()), enq, nil,
		testCostTable(), time.Millisecond, time.Hour, logger.NewNop(),
	)
	p := &model.Project{Title: "test", Status: model.StatusCasting}
	_ = st.CreateProject(context.Background(), p)
	f := &lifecycleFixture{store: st, provider: provider, enq: enq, lc: lc, project: p}
	for i := 0; i < sceneCount; i++ {
		sc := model.Scene{
			ProjectID:    p.ID,
			SegmentIndex: i,
			Version:      1,
			Section:      model.SectionHook,
			ScriptText:   fmt.Sprintf("line %d", i),
		}
		_ = st.CreateScene(context.Background(), &sc)
		f.scenes = append(f.scenes, sc)
	}
	return f
}
