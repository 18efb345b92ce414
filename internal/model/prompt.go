package model

// VideoPrompt is the structured prompt object a user can pin onto a scene to
// supersede fresh prompt generation for that segment. It arrives as free-form
// JSON; IsWellFormedPrompt is the schema gate before it is trusted.
type VideoPrompt struct {
	Subject    string   `json:"subject"`
	Action     string   `json:"action"`
	CameraMove string   `json:"cameraMove,omitempty"`
	Style      string   `json:"style,omitempty"`
	Negatives  []string `json:"negatives,omitempty"`
}

// IsWellFormedPrompt validates a raw prompt override map. A well-formed
// override has non-empty string "subject" and "action" fields, and any
// optional fields that are present must hold the right shapes. The check is
// deliberately a plain predicate: a bad override is skipped, never a crash.
func IsWellFormedPrompt(raw map[string]interface{}) bool {
	if raw == nil {
		return false
	}
	if !hasNonEmptyString(raw, "subject") || !hasNonEmptyString(raw, "action") {
		return false
	}
	for _, key := range []string{"cameraMove", "style"} {
		if v, ok := raw[key]; ok {
			if _, isStr := v.(string); !isStr {
				return false
			}
		}
	}
	if v, ok := raw["negatives"]; ok {
		items, isList := v.([]interface{})
		if !isList {
			return false
		}
		for _, item := range items {
			if _, isStr := item.(string); !isStr {
				return false
			}
		}
	}
	return true
}

func hasNonEmptyString(raw map[string]interface{}, key string) bool {
	v, ok := raw[key]
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && s != ""
}
