package model

import (
	"sort"
	"time"

	"gorm.io/datatypes"
)

// Scene is one versioned video segment of a project's script. Editing a scene
// inserts a new version row; the current scene for a segment is the highest
// version. History is never mutated.
type Scene struct {
	ID                  string            `json:"id" gorm:"primaryKey;size:36"`
	ProjectID           string            `json:"projectId" gorm:"index;size:36"`
	SegmentIndex        int               `json:"segmentIndex" gorm:"index"`
	Version             int               `json:"version"`
	Section             SceneSection      `json:"section" gorm:"size:16"`
	ScriptText          string            `json:"scriptText"`
	ShotBreakdown       string            `json:"shotBreakdown"`
	EnergyArc           string            `json:"energyArc"`
	CameraSpec          string            `json:"cameraSpec"`
	VideoPromptOverride datatypes.JSONMap `json:"videoPromptOverride,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// NextVersion copies the scene into a fresh unsaved row with the version bumped.
func (s Scene) NextVersion() Scene {
	next := s
	next.ID = ""
	next.Version = s.Version + 1
	next.CreatedAt = time.Time{}
	next.UpdatedAt = time.Time{}
	return next
}

// CurrentScenes reduces a list of scene versions to the highest version per
// segment, ordered by segment index.
func CurrentScenes(all []Scene) []Scene {
	latest := make(map[int]Scene)
	for _, s := range all {
		if cur, ok := latest[s.SegmentIndex]; !ok || s.Version > cur.Version {
			latest[s.SegmentIndex] = s
		}
	}
	out := make([]Scene, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SegmentIndex < out[j].SegmentIndex })
	return out
}
