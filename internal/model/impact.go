package model

// ImpactKind classifies what editing a field does to downstream artifacts.
type ImpactKind string

const (
	ImpactSafe        ImpactKind = "safe"
	ImpactDestructive ImpactKind = "destructive"
)

// ImpactRule is static configuration: what editing (stage, field) invalidates.
type ImpactRule struct {
	Kind           ImpactKind
	Description    string
	AffectedStages []ProjectStatus
}

// ImpactRuleSet maps stage → field name → rule.
type ImpactRuleSet map[ProjectStatus]map[string]ImpactRule

// Lookup returns the rule for (stage, field) if one is configured.
func (rs ImpactRuleSet) Lookup(stage ProjectStatus, field string) (ImpactRule, bool) {
	fields, ok := rs[stage]
	if !ok {
		return ImpactRule{}, false
	}
	rule, ok := fields[field]
	return rule, ok
}

// FieldImpact is one analyzed field in an impact report.
type FieldImpact struct {
	Field          string          `json:"field"`
	Description    string          `json:"description"`
	AffectedStages []ProjectStatus `json:"affectedStages,omitempty"`
}

// ImpactReport is the analyzer's answer to "what breaks if I edit these fields".
type ImpactReport struct {
	Safe              []FieldImpact   `json:"safe"`
	Destructive       []FieldImpact   `json:"destructive"`
	AllAffectedStages []ProjectStatus `json:"allAffectedStages"`
	RestartFrom       *ProjectStatus  `json:"restartFrom"`
	EstimatedCostUSD  float64         `json:"estimatedCostUsd"`
	WarningText       string          `json:"warningText,omitempty"`
}

// DefaultImpactRules is the shipped rule table. Unknown (stage, field) pairs
// are treated as safe by the analyzer, so this table only needs the fields
// known to invalidate downstream work.
func DefaultImpactRules() ImpactRuleSet {
	return ImpactRuleSet{
		StatusAnalyzing: {
			"product_name": {
				Kind:           ImpactDestructive,
				Description:    "Changing the product name invalidates the script and every generated asset",
				AffectedStages: []ProjectStatus{StatusScripting, StatusCasting, StatusDirecting, StatusVoiceover, StatusBrollGeneration},
			},
			"product_description": {
				Kind:           ImpactDestructive,
				Description:    "Changing the product description invalidates the script and downstream assets",
				AffectedStages: []ProjectStatus{StatusScripting, StatusCasting, StatusDirecting, StatusVoiceover},
			},
			"target_audience": {
				Kind:           ImpactDestructive,
				Description:    "A new audience changes tone, casting and voiceover",
				AffectedStages: []ProjectStatus{StatusScripting, StatusCasting, StatusVoiceover},
			},
			"brand_tone": {
				Kind:        ImpactSafe,
				Description: "Tone tweaks are applied at the next regeneration without invalidating existing assets",
			},
		},
		StatusScripting: {
			"script_text": {
				Kind:           ImpactDestructive,
				Description:    "Rewriting scene script text invalidates keyframes, video and voiceover for the scene",
				AffectedStages: []ProjectStatus{StatusCasting, StatusDirecting, StatusVoiceover},
			},
			"shot_breakdown": {
				Kind:           ImpactDestructive,
				Description:    "A new shot breakdown invalidates the generated video segments",
				AffectedStages: []ProjectStatus{StatusDirecting},
			},
			"energy_arc": {
				Kind:           ImpactDestructive,
				Description:    "Changing the energy arc invalidates keyframes and video pacing",
				AffectedStages: []ProjectStatus{StatusCasting, StatusDirecting},
			},
			"camera_spec": {
				Kind:           ImpactDestructive,
				Description:    "Camera changes invalidate the generated video segments",
				AffectedStages: []ProjectStatus{StatusDirecting},
			},
			"section": {
				Kind:        ImpactSafe,
				Description: "Section labels only affect ordering metadata",
			},
		},
		StatusDirecting: {
			"energy_arc": {
				Kind:           ImpactDestructive,
				Description:    "Changing the energy arc invalidates keyframes and video pacing",
				AffectedStages: []ProjectStatus{StatusCasting, StatusDirecting},
			},
			"camera_spec": {
				Kind:           ImpactDestructive,
				Description:    "Camera changes invalidate the generated video segments",
				AffectedStages: []ProjectStatus{StatusDirecting},
			},
			"video_prompt_override": {
				Kind:           ImpactDestructive,
				Description:    "A new prompt override replaces the generated video for the segment",
				AffectedStages: []ProjectStatus{StatusDirecting},
			},
		},
		StatusVoiceover: {
			"voice_style": {
				Kind:           ImpactDestructive,
				Description:    "A new voice style invalidates recorded voiceover",
				AffectedStages: []ProjectStatus{StatusVoiceover},
			},
		},
	}
}
