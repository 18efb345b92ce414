package model

import "testing"

func TestIsWellFormedPrompt(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]interface{}
		want bool
	}{
		{"nil map", nil, false},
		{"empty map", map[string]interface{}{}, false},
		{"minimal valid", map[string]interface{}{
			"subject": "founder at a desk", "action": "holds up the product",
		}, true},
		{"missing action", map[string]interface{}{"subject": "founder"}, false},
		{"empty subject", map[string]interface{}{"subject": "", "action": "talks"}, false},
		{"subject wrong type", map[string]interface{}{"subject": 3, "action": "talks"}, false},
		{"all optional fields", map[string]interface{}{
			"subject": "founder", "action": "talks",
			"cameraMove": "slow push-in", "style": "ugc handheld",
			"negatives": []interface{}{"text overlays", "logos"},
		}, true},
		{"cameraMove wrong type", map[string]interface{}{
			"subject": "founder", "action": "talks", "cameraMove": 1,
		}, false},
		{"negatives not a list", map[string]interface{}{
			"subject": "founder", "action": "talks", "negatives": "no text",
		}, false},
		{"negatives with non-string item", map[string]interface{}{
			"subject": "founder", "action": "talks", "negatives": []interface{}{"ok", 2},
		}, false},
		{"unknown keys tolerated", map[string]interface{}{
			"subject": "founder", "action": "talks", "seed": 1234,
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsWellFormedPrompt(tc.raw); got != tc.want {
				t.Errorf("IsWellFormedPrompt(%v) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}
