package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/pipeline"
	"github.com/reelforge/api/internal/service"
	"github.com/reelforge/api/internal/store"
	"github.com/reelforge/api/pkg/response"
)

type ProjectHandler struct {
	orchestrator *service.Orchestrator
	machine      *pipeline.Machine
	analyzer     *service.ImpactAnalyzer
	ledger       *service.Ledger
	store        store.Store
	validator    *validator.Validate
}

func NewProjectHandler(
	orchestrator *service.Orchestrator,
	machine *pipeline.Machine,
	analyzer *service.ImpactAnalyzer,
	ledger *service.Ledger,
	st store.Store,
	v *validator.Validate,
) *ProjectHandler {
	return &ProjectHandler{
		orchestrator: orchestrator,
		machine:      machine,
		analyzer:     analyzer,
		ledger:       ledger,
		store:        st,
		validator:    v,
	}
}

func (h *ProjectHandler) projectResponse(p *model.Project) *model.ProjectResponse {
	return &model.ProjectResponse{
		Project:  *p,
		CostUSD:  p.CostUSD(),
		Progress: h.machine.Progress(p),
	}
}

// Create handles POST /api/projects
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req model.CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	p, err := h.orchestrator.CreateProject(c.Context(), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Created(c, h.projectResponse(p))
}

// List handles GET /api/projects
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	projects, err := h.store.ListProjects(c.Context())
	if err != nil {
		return serviceError(c, err)
	}
	out := make([]*model.ProjectResponse, 0, len(projects))
	for i := range projects {
		out = append(out, h.projectResponse(&projects[i]))
	}
	return response.OK(c, out)
}

// Get handles GET /api/projects/:id
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	p, err := h.store.GetProject(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, h.projectResponse(p))
}

// Approve handles POST /api/projects/:id/approve. It confirms the current
// review gate and starts the next stage.
func (h *ProjectHandler) Approve(c *fiber.Ctx) error {
	p, err := h.orchestrator.Approve(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, h.projectResponse(p))
}

// Cancel handles POST /api/projects/:id/cancel
func (h *ProjectHandler) Cancel(c *fiber.Ctx) error {
	p, err := h.orchestrator.RequestCancel(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.Accepted(c, h.projectResponse(p))
}

// ImpactPreview handles POST /api/projects/:id/impact-preview. It reports
// which downstream stages a set of field edits would invalidate, before the
// user commits to anything.
func (h *ProjectHandler) ImpactPreview(c *fiber.Ctx) error {
	var req model.ImpactPreviewRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	report := h.analyzer.ComputeImpact(req.Stage, req.ChangedFields)
	return response.OK(c, report)
}

// Costs handles GET /api/projects/:id/costs
func (h *ProjectHandler) Costs(c *fiber.Ctx) error {
	summary, err := h.ledger.Summary(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, summary)
}

// ListScenes handles GET /api/projects/:id/scenes. Returns the current
// version of every segment.
func (h *ProjectHandler) ListScenes(c *fiber.Ctx) error {
	all, err := h.store.ListScenes(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.CurrentScenes(all))
}

// EditScene handles PUT /api/projects/:id/scenes/:sceneId. Edits never
// mutate history: the change lands as a fresh scene version.
func (h *ProjectHandler) EditScene(c *fiber.Ctx) error {
	var req model.EditSceneRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	if req.VideoPromptOverride != nil && !model.IsWellFormedPrompt(req.VideoPromptOverride) {
		return response.ValidationError(c, "Video prompt override is malformed", nil)
	}

	scene, err := h.store.GetScene(c.Context(), c.Params("sceneId"))
	if err != nil {
		return serviceError(c, err)
	}
	if scene.ProjectID != c.Params("id") {
		return response.NotFound(c, "Scene not found in project")
	}

	next := scene.NextVersion()
	if req.ScriptText != "" {
		next.ScriptText = req.ScriptText
	}
	if req.ShotBreakdown != "" {
		next.ShotBreakdown = req.ShotBreakdown
	}
	if req.EnergyArc != "" {
		next.EnergyArc = req.EnergyArc
	}
	if req.CameraSpec != "" {
		next.CameraSpec = req.CameraSpec
	}
	if req.VideoPromptOverride != nil {
		next.VideoPromptOverride = req.VideoPromptOverride
	}

	if err := h.store.CreateScene(c.Context(), &next); err != nil {
		return serviceError(c, err)
	}
	return response.Created(c, next)
}
