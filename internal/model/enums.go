package model

// ProjectStatus is a production stage or the review gate that follows it.
type ProjectStatus string

const (
	StatusAnalyzing       ProjectStatus = "analyzing"
	StatusAnalysisReview  ProjectStatus = "analysis_review"
	StatusScripting       ProjectStatus = "scripting"
	StatusScriptReview    ProjectStatus = "script_review"
	StatusBrollPlanning   ProjectStatus = "broll_planning"
	StatusCasting         ProjectStatus = "casting"
	StatusCastingReview   ProjectStatus = "casting_review"
	StatusDirecting       ProjectStatus = "directing"
	StatusAssetReview     ProjectStatus = "asset_review"
	StatusVoiceover       ProjectStatus = "voiceover"
	StatusBrollGeneration ProjectStatus = "broll_generation"
	StatusEditing         ProjectStatus = "editing"
	StatusCompleted       ProjectStatus = "completed"
	StatusFailed          ProjectStatus = "failed"
)

// Asset types
type AssetType string

const (
	AssetKeyframeStart AssetType = "keyframe_start"
	AssetKeyframeEnd   AssetType = "keyframe_end"
	AssetVideo         AssetType = "video"
	AssetAudio         AssetType = "audio"
	AssetBroll         AssetType = "broll"
)

var ValidAssetTypes = []AssetType{
	AssetKeyframeStart, AssetKeyframeEnd, AssetVideo, AssetAudio, AssetBroll,
}

// Asset status
type AssetStatus string

const (
	AssetGenerating AssetStatus = "generating"
	AssetEditing    AssetStatus = "editing"
	AssetCompleted  AssetStatus = "completed"
	AssetFailed     AssetStatus = "failed"
	AssetRejected   AssetStatus = "rejected"
	AssetCancelled  AssetStatus = "cancelled"
)

// InFlight reports whether the status holds a live provider job.
func (s AssetStatus) InFlight() bool {
	return s == AssetGenerating || s == AssetEditing
}

// Terminal reports whether the status can no longer change without a new submission.
func (s AssetStatus) Terminal() bool {
	return s == AssetCompleted || s == AssetFailed || s == AssetRejected || s == AssetCancelled
}

// Scene sections
type SceneSection string

const (
	SectionHook     SceneSection = "hook"
	SectionProblem  SceneSection = "problem"
	SectionSolution SceneSection = "solution"
	SectionCTA      SceneSection = "cta"
)

var ValidSceneSections = []SceneSection{
	SectionHook, SectionProblem, SectionSolution, SectionCTA,
}
