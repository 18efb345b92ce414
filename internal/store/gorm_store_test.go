package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/reelforge/api/internal/model"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st, err := NewGormStoreWithDB(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func seedProject(t *testing.T, st *GormStore) *model.Project {
	t.Helper()
	p := &model.Project{Title: "run", ProductName: "Widget", Status: model.StatusCasting}
	if err := st.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return p
}

func TestGetProjectNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetProject(context.Background(), "nope")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProjectCAS(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, st)

	p.Status = model.StatusCastingReview
	ok, err := st.UpdateProjectCAS(ctx, p)
	if err != nil || !ok {
		t.Fatalf("cas failed: ok=%v err=%v", ok, err)
	}
	if p.Version != 1 {
		t.Errorf("version = %d, want 1", p.Version)
	}

	// A writer holding the old version loses and keeps its version unchanged.
	stale := &model.Project{ID: p.ID, Title: "run", ProductName: "Widget", Status: model.StatusDirecting, Version: 0}
	ok, err = st.UpdateProjectCAS(ctx, stale)
	if err != nil {
		t.Fatalf("stale cas errored: %v", err)
	}
	if ok {
		t.Fatal("stale version must not win")
	}
	if stale.Version != 0 {
		t.Errorf("losing writer's version mutated to %d", stale.Version)
	}

	stored, _ := st.GetProject(ctx, p.ID)
	if stored.Status != model.StatusCastingReview {
		t.Errorf("stored status = %s", stored.Status)
	}
}

func TestProjectCASDoesNotTouchCost(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, st)

	if err := st.RecordCost(ctx, &model.CostEntry{ProjectID: p.ID, AmountCents: 350, Reason: "keyframe"}); err != nil {
		t.Fatalf("record cost: %v", err)
	}

	// Status writers carry a possibly stale in-memory cost; the update must
	// leave the ledger-maintained column alone.
	p.Status = model.StatusCastingReview
	p.CostCents = 0
	if ok, err := st.UpdateProjectCAS(ctx, p); err != nil || !ok {
		t.Fatalf("cas failed: ok=%v err=%v", ok, err)
	}

	stored, _ := st.GetProject(ctx, p.ID)
	if stored.CostCents != 350 {
		t.Errorf("cost cents = %d, want 350", stored.CostCents)
	}
}

func TestAssetCAS(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, st)
	a := &model.Asset{ProjectID: p.ID, SceneID: "s1", Type: model.AssetVideo, Status: model.AssetGenerating}
	if err := st.CreateAsset(ctx, a); err != nil {
		t.Fatalf("create asset: %v", err)
	}

	a.Status = model.AssetCompleted
	a.URL = "https://cdn.test/v.mp4"
	if ok, err := st.UpdateAssetCAS(ctx, a); err != nil || !ok {
		t.Fatalf("cas failed: ok=%v err=%v", ok, err)
	}

	stale := &model.Asset{ID: a.ID, ProjectID: p.ID, SceneID: "s1", Type: model.AssetVideo, Status: model.AssetFailed, Version: 0}
	ok, err := st.UpdateAssetCAS(ctx, stale)
	if err != nil {
		t.Fatalf("stale cas errored: %v", err)
	}
	if ok {
		t.Fatal("stale version must not win")
	}

	stored, _ := st.GetAsset(ctx, a.ID)
	if stored.Status != model.AssetCompleted || stored.URL == "" {
		t.Errorf("stored asset = %+v", stored)
	}
}

func TestRecordCostKeepsLedgerAndTotalInStep(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, st)

	for _, cents := range []int64{350, 350, 180} {
		if err := st.RecordCost(ctx, &model.CostEntry{ProjectID: p.ID, AmountCents: cents, Reason: "generation"}); err != nil {
			t.Fatalf("record cost: %v", err)
		}
	}

	entries, err := st.ListCostEntries(ctx, p.ID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	var sum int64
	for _, e := range entries {
		sum += e.AmountCents
	}
	stored, _ := st.GetProject(ctx, p.ID)
	if sum != stored.CostCents || sum != 880 {
		t.Errorf("entries sum %d, project total %d", sum, stored.CostCents)
	}
}

func TestRecordCostUnknownProject(t *testing.T) {
	st := newTestStore(t)
	err := st.RecordCost(context.Background(), &model.CostEntry{ProjectID: "nope", AmountCents: 10, Reason: "x"})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAssetsFiltersTypeAndStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, st)

	mk := func(at model.AssetType, status model.AssetStatus) string {
		a := &model.Asset{ProjectID: p.ID, SceneID: "s1", Type: at, Status: status}
		if err := st.CreateAsset(ctx, a); err != nil {
			t.Fatalf("create asset: %v", err)
		}
		return a.ID
	}
	doomedCompleted := mk(model.AssetVideo, model.AssetCompleted)
	doomedGenerating := mk(model.AssetVideo, model.AssetGenerating)
	keptFailed := mk(model.AssetVideo, model.AssetFailed)
	keptAudio := mk(model.AssetAudio, model.AssetCompleted)

	err := st.DeleteAssets(ctx, p.ID,
		[]model.AssetType{model.AssetVideo},
		[]model.AssetStatus{model.AssetCompleted, model.AssetGenerating})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, id := range []string{doomedCompleted, doomedGenerating} {
		if _, err := st.GetAsset(ctx, id); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("asset %s should be gone, got %v", id, err)
		}
	}
	for _, id := range []string{keptFailed, keptAudio} {
		if _, err := st.GetAsset(ctx, id); err != nil {
			t.Errorf("asset %s should survive, got %v", id, err)
		}
	}
}

func TestDeleteAssetsEmptyFiltersDeleteNothing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, st)
	a := &model.Asset{ProjectID: p.ID, SceneID: "s1", Type: model.AssetVideo, Status: model.AssetCompleted}
	_ = st.CreateAsset(ctx, a)

	if err := st.DeleteAssets(ctx, p.ID, nil, []model.AssetStatus{model.AssetCompleted}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.GetAsset(ctx, a.ID); err != nil {
		t.Errorf("empty type filter must be a no-op, got %v", err)
	}
}

func TestListSlotAssetsOrderedByCreation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, st)

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		a := &model.Asset{
			ProjectID: p.ID,
			SceneID:   "s1",
			Type:      model.AssetKeyframeStart,
			Status:    model.AssetCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := st.CreateAsset(ctx, a); err != nil {
			t.Fatalf("create asset: %v", err)
		}
	}
	other := &model.Asset{ProjectID: p.ID, SceneID: "s1", Type: model.AssetKeyframeEnd, Status: model.AssetCompleted}
	_ = st.CreateAsset(ctx, other)

	got, err := st.ListSlotAssets(ctx, "s1", model.AssetKeyframeStart)
	if err != nil {
		t.Fatalf("list slot: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 slot assets, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
			t.Fatal("slot assets not in creation order")
		}
	}
}

func TestListScenesOrderedBySegmentThenVersion(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, st)

	for _, sc := range []model.Scene{
		{ProjectID: p.ID, SegmentIndex: 1, Version: 1, Section: model.SectionProblem},
		{ProjectID: p.ID, SegmentIndex: 0, Version: 2, Section: model.SectionHook},
		{ProjectID: p.ID, SegmentIndex: 0, Version: 1, Section: model.SectionHook},
	} {
		s := sc
		if err := st.CreateScene(ctx, &s); err != nil {
			t.Fatalf("create scene: %v", err)
		}
	}

	got, err := st.ListScenes(ctx, p.ID)
	if err != nil {
		t.Fatalf("list scenes: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 scenes, got %d", len(got))
	}
	if got[0].SegmentIndex != 0 || got[0].Version != 1 ||
		got[1].SegmentIndex != 0 || got[1].Version != 2 ||
		got[2].SegmentIndex != 1 {
		t.Errorf("unexpected order: %+v", got)
	}
}
