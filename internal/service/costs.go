package service

import (
	"github.com/reelforge/api/internal/config"
	"github.com/reelforge/api/internal/model"
)

// CostTable holds the flat rates every billable operation charges, in cents.
type CostTable struct {
	KeyframeCents int64
	VideoCents    int64
	AudioCents    int64
	BrollCents    int64
	EditCents     int64
	TextCents     int64
	AssembleCents int64
	// StageEstimates feed the impact analyzer's cost previews.
	StageEstimates map[model.ProjectStatus]int64
}

// NewCostTable converts the USD config values to fixed-point cents once.
func NewCostTable(cfg *config.CostConfig) CostTable {
	estimates := make(map[model.ProjectStatus]int64, len(cfg.StageEstimate))
	for stage, usd := range cfg.StageEstimate {
		estimates[model.ProjectStatus(stage)] = model.Cents(usd)
	}
	return CostTable{
		KeyframeCents:  model.Cents(cfg.KeyframeUSD),
		VideoCents:     model.Cents(cfg.VideoUSD),
		AudioCents:     model.Cents(cfg.AudioUSD),
		BrollCents:     model.Cents(cfg.BrollUSD),
		EditCents:      model.Cents(cfg.EditUSD),
		TextCents:      model.Cents(cfg.TextUSD),
		AssembleCents:  model.Cents(cfg.AssembleUSD),
		StageEstimates: estimates,
	}
}

// ForAssetType returns the submission cost for generating one asset.
func (t CostTable) ForAssetType(at model.AssetType) int64 {
	switch at {
	case model.AssetKeyframeStart, model.AssetKeyframeEnd:
		return t.KeyframeCents
	case model.AssetVideo:
		return t.VideoCents
	case model.AssetAudio:
		return t.AudioCents
	case model.AssetBroll:
		return t.BrollCents
	default:
		return 0
	}
}
