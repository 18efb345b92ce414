// Package store is the persistence boundary of the orchestration core. The
// core only depends on the Store interface; the gorm implementation lives in
// gorm_store.go.
package store

import (
	"context"

	"github.com/reelforge/api/internal/model"
)

// Store is the narrow persistence contract the core needs: CRUD plus
// compare-and-swap updates keyed on each row's version column, and an atomic
// cost recording that keeps the ledger and the project total in step.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
	// UpdateProjectCAS persists p only if the stored version still matches
	// p.Version; on success the version is bumped in place and true is
	// returned. false means a concurrent writer won.
	UpdateProjectCAS(ctx context.Context, p *model.Project) (bool, error)

	// Scenes (versioned, append-only)
	CreateScene(ctx context.Context, s *model.Scene) error
	GetScene(ctx context.Context, id string) (*model.Scene, error)
	ListScenes(ctx context.Context, projectID string) ([]model.Scene, error)

	// Assets
	CreateAsset(ctx context.Context, a *model.Asset) error
	GetAsset(ctx context.Context, id string) (*model.Asset, error)
	ListAssets(ctx context.Context, projectID string) ([]model.Asset, error)
	ListSlotAssets(ctx context.Context, sceneID string, t model.AssetType) ([]model.Asset, error)
	// UpdateAssetCAS has the same contract as UpdateProjectCAS.
	UpdateAssetCAS(ctx context.Context, a *model.Asset) (bool, error)
	// DeleteAssets removes asset rows of the given types for a project whose
	// status is in statuses (stage-boundary stale cleanup).
	DeleteAssets(ctx context.Context, projectID string, types []model.AssetType, statuses []model.AssetStatus) error

	// Cost ledger. RecordCost appends the entry and increments the project's
	// running total with an atomic in-database increment, in one transaction.
	RecordCost(ctx context.Context, entry *model.CostEntry) error
	ListCostEntries(ctx context.Context, projectID string) ([]model.CostEntry, error)
}
