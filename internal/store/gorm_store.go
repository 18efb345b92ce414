package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/reelforge/api/internal/model"
)

// GormStore implements Store on gorm. Optimistic concurrency uses each row's
// version column: updates are conditional on the version the caller read.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens a MySQL-backed store and migrates the schema.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return NewGormStoreWithDB(db)
}

// NewGormStoreWithDB wraps an already-open gorm handle (tests use sqlite here).
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(
		&model.Project{},
		&model.Scene{},
		&model.Asset{},
		&model.CostEntry{},
	); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateProject(ctx context.Context, p *model.Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *GormStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	var out []model.Project
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

func (s *GormStore) UpdateProjectCAS(ctx context.Context, p *model.Project) (bool, error) {
	prev := p.Version
	p.Version = prev + 1
	res := s.db.WithContext(ctx).
		Model(&model.Project{}).
		Where("id = ? AND version = ?", p.ID, prev).
		Select("*").
		Omit("id", "created_at", "cost_cents").
		Updates(p)
	if res.Error != nil {
		p.Version = prev
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		p.Version = prev
		return false, nil
	}
	return true, nil
}

func (s *GormStore) CreateScene(ctx context.Context, sc *model.Scene) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(sc).Error
}

func (s *GormStore) GetScene(ctx context.Context, id string) (*model.Scene, error) {
	var sc model.Scene
	err := s.db.WithContext(ctx).First(&sc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *GormStore) ListScenes(ctx context.Context, projectID string) ([]model.Scene, error) {
	var out []model.Scene
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("segment_index ASC, version ASC").
		Find(&out).Error
	return out, err
}

func (s *GormStore) CreateAsset(ctx context.Context, a *model.Asset) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *GormStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	var a model.Asset
	err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *GormStore) ListAssets(ctx context.Context, projectID string) ([]model.Asset, error) {
	var out []model.Asset
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (s *GormStore) ListSlotAssets(ctx context.Context, sceneID string, t model.AssetType) ([]model.Asset, error) {
	var out []model.Asset
	err := s.db.WithContext(ctx).
		Where("scene_id = ? AND type = ?", sceneID, t).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (s *GormStore) UpdateAssetCAS(ctx context.Context, a *model.Asset) (bool, error) {
	prev := a.Version
	a.Version = prev + 1
	res := s.db.WithContext(ctx).
		Model(&model.Asset{}).
		Where("id = ? AND version = ?", a.ID, prev).
		Select("*").
		Omit("id", "created_at").
		Updates(a)
	if res.Error != nil {
		a.Version = prev
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		a.Version = prev
		return false, nil
	}
	return true, nil
}

func (s *GormStore) DeleteAssets(ctx context.Context, projectID string, types []model.AssetType, statuses []model.AssetStatus) error {
	if len(types) == 0 || len(statuses) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("project_id = ? AND type IN ? AND status IN ?", projectID, types, statuses).
		Delete(&model.Asset{}).Error
}

// RecordCost appends a ledger entry and bumps the project total in one
// transaction. The increment happens in the database, not read-modify-write,
// so concurrent submissions cannot lose an update.
func (s *GormStore) RecordCost(ctx context.Context, entry *model.CostEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		res := tx.Model(&model.Project{}).
			Where("id = ?", entry.ProjectID).
			UpdateColumn("cost_cents", gorm.Expr("cost_cents + ?", entry.AmountCents))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return model.ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) ListCostEntries(ctx context.Context, projectID string) ([]model.CostEntry, error) {
	var out []model.CostEntry
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
