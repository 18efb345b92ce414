package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/service"
	"github.com/reelforge/api/internal/store"
	"github.com/reelforge/api/pkg/response"
)

type AssetHandler struct {
	lifecycle  *service.Lifecycle
	propagator *service.Propagator
	store      store.Store
	validator  *validator.Validate
}

func NewAssetHandler(lc *service.Lifecycle, pr *service.Propagator, st store.Store, v *validator.Validate) *AssetHandler {
	return &AssetHandler{
		lifecycle:  lc,
		propagator: pr,
		store:      st,
		validator:  v,
	}
}

func assetResponse(a *model.Asset) *model.AssetResponse {
	return &model.AssetResponse{
		Asset:     *a,
		CostUSD:   a.CostUSD(),
		LastError: a.LastError(),
	}
}

// List handles GET /api/projects/:id/assets
func (h *AssetHandler) List(c *fiber.Ctx) error {
	assets, err := h.store.ListAssets(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	out := make([]*model.AssetResponse, 0, len(assets))
	for i := range assets {
		out = append(out, assetResponse(&assets[i]))
	}
	return response.OK(c, out)
}

// Get handles GET /api/assets/:id
func (h *AssetHandler) Get(c *fiber.Ctx) error {
	a, err := h.store.GetAsset(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, assetResponse(a))
}

// Edit handles POST /api/assets/:id/edit. Only completed assets accept
// edits; the previous output survives until the edit succeeds.
func (h *AssetHandler) Edit(c *fiber.Ctx) error {
	var req model.EditAssetRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	a, err := h.lifecycle.SubmitEdit(c.Context(), c.Params("id"), req.Instruction)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Accepted(c, assetResponse(a))
}

// PropagationPreview handles GET /api/assets/:id/propagation-preview. It
// reports how many downstream keyframes an edit would touch and the cost,
// so the client can confirm before opting in.
func (h *AssetHandler) PropagationPreview(c *fiber.Ctx) error {
	count, err := h.propagator.CountSubsequent(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, &model.PropagationPreviewResponse{
		Count:            count,
		EstimatedCostUSD: model.USD(h.propagator.EstimateCents(count)),
	})
}

// Propagate handles POST /api/assets/:id/propagate
func (h *AssetHandler) Propagate(c *fiber.Ctx) error {
	var req model.PropagateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	touched, err := h.propagator.Propagate(c.Context(), c.Params("id"), req.Instruction)
	if err != nil {
		return serviceError(c, err)
	}
	out := make([]*model.AssetResponse, 0, len(touched))
	for _, a := range touched {
		out = append(out, assetResponse(a))
	}
	return response.Accepted(c, out)
}

// Regenerate handles POST /api/assets/:id/regenerate
func (h *AssetHandler) Regenerate(c *fiber.Ctx) error {
	a, err := h.lifecycle.Regenerate(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.Accepted(c, assetResponse(a))
}

// Grade handles POST /api/assets/:id/grade
func (h *AssetHandler) Grade(c *fiber.Ctx) error {
	var req model.GradeAssetRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	a, err := h.lifecycle.Grade(c.Context(), c.Params("id"), req.Grade)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, assetResponse(a))
}

// Reject handles POST /api/assets/:id/reject. The artifact stays around,
// only its review standing changes.
func (h *AssetHandler) Reject(c *fiber.Ctx) error {
	a, err := h.lifecycle.Reject(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, assetResponse(a))
}

// Cancel handles POST /api/assets/:id/cancel
func (h *AssetHandler) Cancel(c *fiber.Ctx) error {
	a, err := h.lifecycle.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, assetResponse(a))
}
