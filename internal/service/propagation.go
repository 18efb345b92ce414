package service

import (
	"context"
	"sort"

	"github.com/reelforge/api/internal/logger"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/store"
)

// Propagator reapplies an edit instruction to downstream completed keyframes
// to preserve visual continuity. Each target is an independent billable edit:
// the batch is explicitly best-effort, one failure never rolls back or blocks
// the others.
type Propagator struct {
	store     store.Store
	lifecycle *Lifecycle
	costs     CostTable
	log       *logger.Logger
}

func NewPropagator(st store.Store, lc *Lifecycle, costs CostTable, log *logger.Logger) *Propagator {
	return &Propagator{store: st, lifecycle: lc, costs: costs, log: log.With("component", "propagation")}
}

// CountSubsequent counts the completed keyframes the instruction would be
// reapplied to: keyframes of later segments, plus the end keyframe of the
// edited asset's own segment when the edited asset is its start keyframe.
// Advisory only; shown to the user before they opt in.
func (p *Propagator) CountSubsequent(ctx context.Context, editedAssetID string) (int, error) {
	targets, err := p.targets(ctx, editedAssetID)
	if err != nil {
		return 0, err
	}
	return len(targets), nil
}

// EstimateCents is count x per-edit cost.
func (p *Propagator) EstimateCents(count int) int64 {
	return int64(count) * p.costs.EditCents
}

// Propagate submits an edit job per target with the same instruction text.
// Fire-and-forget per asset: failures are logged and surfaced on the asset,
// the rest of the batch proceeds. Returns the assets whose edits were
// submitted.
func (p *Propagator) Propagate(ctx context.Context, editedAssetID, instruction string) ([]*model.Asset, error) {
	targets, err := p.targets(ctx, editedAssetID)
	if err != nil {
		return nil, err
	}
	submitted := make([]*model.Asset, 0, len(targets))
	for _, target := range targets {
		a, err := p.lifecycle.SubmitEdit(ctx, target.ID, instruction)
		if err != nil {
			p.log.Warn("propagation target skipped", "asset", target.ID, "err", err)
			continue
		}
		submitted = append(submitted, a)
	}
	p.log.Info("propagation submitted", "edited", editedAssetID, "targets", len(targets), "submitted", len(submitted))
	return submitted, nil
}

// targets resolves the propagation set: the current (latest) asset of every
// keyframe slot that is strictly downstream of the edited asset and holds a
// settled completed result. Assets still generating, editing or failed have
// no settled content to mutate and are excluded.
func (p *Propagator) targets(ctx context.Context, editedAssetID string) ([]model.Asset, error) {
	edited, err := p.store.GetAsset(ctx, editedAssetID)
	if err != nil {
		return nil, err
	}
	editedScene, err := p.store.GetScene(ctx, edited.SceneID)
	if err != nil {
		return nil, err
	}
	scenes, err := p.store.ListScenes(ctx, edited.ProjectID)
	if err != nil {
		return nil, err
	}
	segmentOf := make(map[string]int, len(scenes))
	for _, s := range scenes {
		segmentOf[s.ID] = s.SegmentIndex
	}
	assets, err := p.store.ListAssets(ctx, edited.ProjectID)
	if err != nil {
		return nil, err
	}

	// Latest asset per (scene, type) slot is the slot's current asset.
	type slot struct {
		sceneID string
		t       model.AssetType
	}
	current := make(map[slot]model.Asset)
	for _, a := range assets {
		if !a.IsKeyframe() {
			continue
		}
		k := slot{a.SceneID, a.Type}
		if cur, ok := current[k]; !ok || a.CreatedAt.After(cur.CreatedAt) {
			current[k] = a
		}
	}

	var out []model.Asset
	for k, a := range current {
		if a.ID == edited.ID || a.Status != model.AssetCompleted {
			continue
		}
		seg, ok := segmentOf[k.sceneID]
		if !ok {
			continue
		}
		switch {
		case seg > editedScene.SegmentIndex:
			out = append(out, a)
		case seg == editedScene.SegmentIndex &&
			edited.Type == model.AssetKeyframeStart && a.Type == model.AssetKeyframeEnd:
			// Within the edited segment, continuity flows start -> end.
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := segmentOf[out[i].SceneID], segmentOf[out[j].SceneID]
		if si != sj {
			return si < sj
		}
		return out[i].Type == model.AssetKeyframeStart
	})
	return out, nil
}
