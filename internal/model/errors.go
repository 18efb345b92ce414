package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition means the requested stage move is not the legal next step.
	ErrInvalidTransition = errors.New("invalid stage transition")
	// ErrNotAtReviewGate means an approval was attempted outside a review gate.
	ErrNotAtReviewGate = errors.New("project is not at a review gate")
	// ErrSlotBusy means a generation is already in flight for the (scene, type) slot.
	ErrSlotBusy = errors.New("generation already in flight for this slot")
	// ErrNotFound is the generic sentinel for missing rows.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPrompt means a structured prompt override failed schema validation.
	ErrInvalidPrompt = errors.New("malformed prompt override")
	// ErrAssetNotEditable means an asset-level action is not valid for its status.
	ErrAssetNotEditable = errors.New("asset status does not allow this action")
)

// ProviderError carries a failure reported by (or inferred about) the external
// generation provider. Timeout marks the locally raised no-response case.
type ProviderError struct {
	TaskID  string
	Message string
	Timeout bool
}

func (e *ProviderError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("provider task %s timed out: %s", e.TaskID, e.Message)
	}
	return fmt.Sprintf("provider task %s failed: %s", e.TaskID, e.Message)
}
