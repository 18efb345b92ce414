package model

import (
	"time"

	"gorm.io/datatypes"
)

// Metadata keys used on assets.
const (
	MetaLastError       = "lastError"
	MetaEditInstruction = "editInstruction"
	MetaSupersededBy    = "supersededBy"
)

// Asset is one generated artifact owned by a project and a scene.
type Asset struct {
	ID             string            `json:"id" gorm:"primaryKey;size:36"`
	ProjectID      string            `json:"projectId" gorm:"index;size:36"`
	SceneID        string            `json:"sceneId" gorm:"index;size:36"`
	Type           AssetType         `json:"type" gorm:"size:16;index"`
	Status         AssetStatus       `json:"status" gorm:"size:16;index"`
	ProviderTaskID string            `json:"-" gorm:"size:128"`
	URL            string            `json:"url,omitempty"`
	CostCents      int64             `json:"-"`
	Grade          *int              `json:"grade,omitempty"`
	Inputs         datatypes.JSONMap `json:"-"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
	SubmittedAt    time.Time         `json:"submittedAt"`
	Version        int64             `json:"-"` // optimistic concurrency
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// CostUSD exposes the asset's accumulated generation cost as 2-decimal USD.
func (a *Asset) CostUSD() float64 { return USD(a.CostCents) }

// LastError returns the most recent provider error recorded on the asset.
func (a *Asset) LastError() string {
	if a.Metadata == nil {
		return ""
	}
	if v, ok := a.Metadata[MetaLastError].(string); ok {
		return v
	}
	return ""
}

// SetMeta writes a metadata key, allocating the map on first use.
func (a *Asset) SetMeta(key string, value interface{}) {
	if a.Metadata == nil {
		a.Metadata = datatypes.JSONMap{}
	}
	a.Metadata[key] = value
}

// IsKeyframe reports whether the asset is a start or end keyframe image.
func (a *Asset) IsKeyframe() bool {
	return a.Type == AssetKeyframeStart || a.Type == AssetKeyframeEnd
}
