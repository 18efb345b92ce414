package model

import (
	"time"

	"gorm.io/datatypes"
)

// Project is one production run of a short-form video ad.
type Project struct {
	ID                 string            `json:"id" gorm:"primaryKey;size:36"`
	Title              string            `json:"title"`
	ProductName        string            `json:"productName"`
	ProductDescription string            `json:"productDescription"`
	TargetAudience     string            `json:"targetAudience"`
	BrandTone          string            `json:"brandTone"`
	Status             ProjectStatus     `json:"status" gorm:"index;size:32"`
	FailedAtStatus     *ProjectStatus    `json:"failedAtStatus,omitempty" gorm:"size:32"`
	FailureReason      string            `json:"failureReason,omitempty"`
	CostCents          int64             `json:"-"`
	Analysis           datatypes.JSONMap `json:"analysis,omitempty"`
	VideoURL           string            `json:"videoUrl,omitempty"`
	ProviderTaskID     string            `json:"-" gorm:"size:128"` // active project-level job, if any
	TaskSubmittedAt    *time.Time        `json:"-"`                 // when that job was handed to the provider
	CancelRequestedAt  *time.Time        `json:"cancelRequestedAt,omitempty"`
	Version            int64             `json:"-"` // optimistic concurrency
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// CostUSD exposes the accumulated cost as 2-decimal USD.
func (p *Project) CostUSD() float64 { return USD(p.CostCents) }

// CancelRequested reports whether a cooperative cancel has been asked for.
func (p *Project) CancelRequested() bool { return p.CancelRequestedAt != nil }

// EffectiveStatus substitutes the failure stage when the project is failed,
// so progress reporting points at where the run stopped.
func (p *Project) EffectiveStatus() ProjectStatus {
	if p.Status == StatusFailed && p.FailedAtStatus != nil {
		return *p.FailedAtStatus
	}
	return p.Status
}
