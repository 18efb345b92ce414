package model

// CreateProjectRequest starts a new production run.
type CreateProjectRequest struct {
	Title              string `json:"title" validate:"required,min=1,max=200"`
	ProductName        string `json:"productName" validate:"required,min=1,max=200"`
	ProductDescription string `json:"productDescription" validate:"required,min=1"`
	TargetAudience     string `json:"targetAudience" validate:"omitempty,max=500"`
	BrandTone          string `json:"brandTone" validate:"omitempty,max=200"`
}

// ProjectResponse decorates a project with derived display values.
type ProjectResponse struct {
	Project
	CostUSD  float64 `json:"costUsd"`
	Progress float64 `json:"progress"`
}

// ImpactPreviewRequest asks what a set of field edits would invalidate.
type ImpactPreviewRequest struct {
	Stage         ProjectStatus `json:"stage" validate:"required"`
	ChangedFields []string      `json:"changedFields" validate:"required,min=1,dive,required"`
}

// EditAssetRequest submits a free-text edit instruction for a completed asset.
type EditAssetRequest struct {
	Instruction string `json:"instruction" validate:"required,min=1,max=2000"`
	// Propagate opts into reapplying the instruction to downstream keyframes
	// once this edit completes.
	Propagate bool `json:"propagate"`
}

// GradeAssetRequest rates a completed asset during review.
type GradeAssetRequest struct {
	Grade int `json:"grade" validate:"required,min=1,max=5"`
}

// PropagateRequest reapplies a completed edit to downstream keyframes.
type PropagateRequest struct {
	Instruction string `json:"instruction" validate:"required,min=1,max=2000"`
}

// PropagationPreviewResponse tells the user what opting in would touch and cost.
type PropagationPreviewResponse struct {
	Count            int     `json:"count"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd"`
}

// AssetResponse decorates an asset with its display cost.
type AssetResponse struct {
	Asset
	CostUSD   float64 `json:"costUsd"`
	LastError string  `json:"lastError,omitempty"`
}

// CostResponse is the ledger read-back used by confirmation dialogs.
type CostResponse struct {
	ProjectID string             `json:"projectId"`
	TotalUSD  float64            `json:"totalUsd"`
	Entries   []CostEntryDisplay `json:"entries"`
}

// CostEntryDisplay is one ledger line with the amount in USD.
type CostEntryDisplay struct {
	ID        string  `json:"id"`
	AmountUSD float64 `json:"amountUsd"`
	Reason    string  `json:"reason"`
	CreatedAt string  `json:"createdAt"`
}

// EditSceneRequest creates a new version of a scene with updated fields.
// Empty fields keep the current value.
type EditSceneRequest struct {
	ScriptText          string                 `json:"scriptText" validate:"omitempty,max=5000"`
	ShotBreakdown       string                 `json:"shotBreakdown" validate:"omitempty,max=5000"`
	EnergyArc           string                 `json:"energyArc" validate:"omitempty,max=1000"`
	CameraSpec          string                 `json:"cameraSpec" validate:"omitempty,max=1000"`
	VideoPromptOverride map[string]interface{} `json:"videoPromptOverride"`
}
