// Package pipeline holds the production stage graph and the project state
// machine that advances a run through it.
package pipeline

import (
	"github.com/reelforge/api/internal/model"
)

// Graph is the canonical stage order as a first-class value: one ordered list
// of statuses (stages interleaved with their review gates) plus gate
// membership, restart points, and the per-stage generation mapping. Every
// "what's next", "is this a gate" and "progress fraction" question derives
// from it.
type Graph struct {
	order    []model.ProjectStatus
	index    map[model.ProjectStatus]int
	gates    map[model.ProjectStatus]bool
	restarts map[model.ProjectStatus]bool
	assets   map[model.ProjectStatus][]model.AssetType
}

// DefaultGraph builds the short-form ad production pipeline.
func DefaultGraph() *Graph {
	order := []model.ProjectStatus{
		model.StatusAnalyzing,
		model.StatusAnalysisReview,
		model.StatusScripting,
		model.StatusScriptReview,
		model.StatusBrollPlanning,
		model.StatusCasting,
		model.StatusCastingReview,
		model.StatusDirecting,
		model.StatusAssetReview,
		model.StatusVoiceover,
		model.StatusBrollGeneration,
		model.StatusEditing,
		model.StatusCompleted,
	}
	gates := map[model.ProjectStatus]bool{
		model.StatusAnalysisReview: true,
		model.StatusScriptReview:   true,
		model.StatusCastingReview:  true,
		model.StatusAssetReview:    true,
	}
	restarts := map[model.ProjectStatus]bool{
		model.StatusScripting:       true,
		model.StatusCasting:         true,
		model.StatusDirecting:       true,
		model.StatusVoiceover:       true,
		model.StatusBrollGeneration: true,
	}
	assets := map[model.ProjectStatus][]model.AssetType{
		model.StatusCasting:         {model.AssetKeyframeStart, model.AssetKeyframeEnd},
		model.StatusDirecting:       {model.AssetVideo},
		model.StatusVoiceover:       {model.AssetAudio},
		model.StatusBrollGeneration: {model.AssetBroll},
	}
	return NewGraph(order, gates, restarts, assets)
}

// NewGraph assembles a graph from an ordered status list and its membership maps.
func NewGraph(
	order []model.ProjectStatus,
	gates map[model.ProjectStatus]bool,
	restarts map[model.ProjectStatus]bool,
	assets map[model.ProjectStatus][]model.AssetType,
) *Graph {
	index := make(map[model.ProjectStatus]int, len(order))
	for i, s := range order {
		index[s] = i
	}
	return &Graph{order: order, index: index, gates: gates, restarts: restarts, assets: assets}
}

// Contains reports whether the status is part of the ordered pipeline.
// The failed sink is not in the order.
func (g *Graph) Contains(s model.ProjectStatus) bool {
	_, ok := g.index[s]
	return ok
}

// IsGate reports whether the status is a review gate.
func (g *Graph) IsGate(s model.ProjectStatus) bool { return g.gates[s] }

// IsRestartPoint reports whether a destructive edit can restart the run here.
func (g *Graph) IsRestartPoint(s model.ProjectStatus) bool { return g.restarts[s] }

// Next returns the immediate successor in the canonical order.
func (g *Graph) Next(s model.ProjectStatus) (model.ProjectStatus, bool) {
	i, ok := g.index[s]
	if !ok || i+1 >= len(g.order) {
		return "", false
	}
	return g.order[i+1], true
}

// GateOf returns the review gate immediately following a stage, if any.
func (g *Graph) GateOf(stage model.ProjectStatus) (model.ProjectStatus, bool) {
	next, ok := g.Next(stage)
	if !ok || !g.gates[next] {
		return "", false
	}
	return next, true
}

// Index returns the position of a status in the canonical order, -1 if absent.
func (g *Graph) Index(s model.ProjectStatus) int {
	i, ok := g.index[s]
	if !ok {
		return -1
	}
	return i
}

// Before reports whether a precedes b in the canonical order.
func (g *Graph) Before(a, b model.ProjectStatus) bool {
	return g.Index(a) < g.Index(b)
}

// AssetTypes returns the asset types a stage generates per scene. Stages with
// no entry do project-level or local work.
func (g *Graph) AssetTypes(stage model.ProjectStatus) []model.AssetType {
	return g.assets[stage]
}

// SortStages returns the subset of stages present in the graph, deduplicated
// and sorted by pipeline order.
func (g *Graph) SortStages(stages []model.ProjectStatus) []model.ProjectStatus {
	seen := make(map[model.ProjectStatus]bool, len(stages))
	out := make([]model.ProjectStatus, 0, len(stages))
	for _, s := range g.order {
		for _, in := range stages {
			if in == s && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// Progress is the display fraction index(effectiveStatus) / (stageCount - 1).
// Derived only; nothing decides on it.
func (g *Graph) Progress(p *model.Project) float64 {
	i := g.Index(p.EffectiveStatus())
	if i < 0 {
		return 0
	}
	return float64(i) / float64(len(g.order)-1)
}
