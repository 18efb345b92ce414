package handler

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/pkg/response"
)

// formatValidationErrors converts validator errors into a field->message map.
func formatValidationErrors(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out[fe.Field()] = fmt.Sprintf("failed on '%s' validation", fe.Tag())
		}
	}
	return out
}

// serviceError maps domain sentinel errors onto HTTP responses. State races
// and ordering violations are conflicts the client resolves by refreshing.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return response.NotFound(c, "Resource not found")
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrNotAtReviewGate),
		errors.Is(err, model.ErrSlotBusy),
		errors.Is(err, model.ErrAssetNotEditable):
		return response.Conflict(c, err.Error())
	case errors.Is(err, model.ErrInvalidPrompt):
		return response.ValidationError(c, err.Error(), nil)
	default:
		var perr *model.ProviderError
		if errors.As(err, &perr) {
			return response.ProviderError(c, perr.Error())
		}
		return response.ServiceError(c, err.Error())
	}
}
