package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/api/internal/client"
	"github.com/reelforge/api/internal/logger"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/pipeline"
	"github.com/reelforge/api/internal/queue"
	"github.com/reelforge/api/internal/store"
)

// Orchestrator drives a project through the pipeline: it starts each stage's
// generation work, watches assets settle, opens review gates when a stage's
// work is complete, and auto-advances stages that have no gate.
type Orchestrator struct {
	machine   *pipeline.Machine
	lifecycle *Lifecycle
	store     store.Store
	provider  client.GenerationProvider
	ledger    *Ledger
	enq       queue.Enqueuer
	costs     CostTable
	log       *logger.Logger
}

func NewOrchestrator(
	machine *pipeline.Machine,
	lifecycle *Lifecycle,
	st store.Store,
	provider client.GenerationProvider,
	ledger *Ledger,
	enq queue.Enqueuer,
	costs CostTable,
	log *logger.Logger,
) *Orchestrator {
	o := &Orchestrator{
		machine:   machine,
		lifecycle: lifecycle,
		store:     st,
		provider:  provider,
		ledger:    ledger,
		enq:       enq,
		costs:     costs,
		log:       log.With("component", "orchestrator"),
	}
	lifecycle.SetSettledCallback(o.OnAssetSettled)
	return o
}

// CreateProject starts a new run in the analyzing stage and kicks it off.
func (o *Orchestrator) CreateProject(ctx context.Context, req *model.CreateProjectRequest) (*model.Project, error) {
	p := &model.Project{
		ID:                 uuid.New().String(),
		Title:              req.Title,
		ProductName:        req.ProductName,
		ProductDescription: req.ProductDescription,
		TargetAudience:     req.TargetAudience,
		BrandTone:          req.BrandTone,
		Status:             model.StatusAnalyzing,
	}
	if err := o.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	if err := o.enq.Enqueue(ctx, queue.TypeStageStart, queue.StageStartPayload{ProjectID: p.ID}, 0); err != nil {
		return nil, err
	}
	o.log.Info("project created", "project", p.ID, "title", p.Title)
	return p, nil
}

// Approve confirms the current review gate and starts the next stage.
func (o *Orchestrator) Approve(ctx context.Context, projectID string) (*model.Project, error) {
	p, err := o.machine.Approve(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := o.enq.Enqueue(ctx, queue.TypeStageStart, queue.StageStartPayload{ProjectID: p.ID}, 0); err != nil {
		return nil, err
	}
	return p, nil
}

// RequestCancel flags the project for cooperative cancellation and cancels
// whatever is currently in flight.
func (o *Orchestrator) RequestCancel(ctx context.Context, projectID string) (*model.Project, error) {
	p, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !p.CancelRequested() {
		now := time.Now()
		p.CancelRequestedAt = &now
		ok, err := o.store.UpdateProjectCAS(ctx, p)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("concurrent update on project %s", p.ID)
		}
	}
	if p.ProviderTaskID != "" {
		if err := o.provider.CancelJob(ctx, p.ProviderTaskID); err != nil {
			o.log.Warn("cancel of project-level job failed", "project", projectID, "err", err)
		}
	}
	assets, err := o.store.ListAssets(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for i := range assets {
		if assets[i].Status.InFlight() {
			if _, err := o.lifecycle.Cancel(ctx, assets[i].ID); err != nil {
				o.log.Warn("cancel of in-flight asset failed", "asset", assets[i].ID, "err", err)
			}
		}
	}
	return p, nil
}

// StartStage begins the generation work for the project's current stage.
// Generation stages submit one asset per (scene, type); analyzing, scripting
// and editing run a single project-level provider job; broll_planning is
// local work that completes immediately.
func (o *Orchestrator) StartStage(ctx context.Context, projectID string) error {
	p, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p.CancelRequested() {
		o.log.Info("stage start skipped, cancel requested", "project", projectID)
		return nil
	}
	graph := o.machine.Graph()
	switch p.Status {
	case model.StatusAnalyzing:
		return o.submitProjectJob(ctx, p, client.JobText, map[string]interface{}{
			"task":        "analyze_product",
			"product":     p.ProductName,
			"description": p.ProductDescription,
			"audience":    p.TargetAudience,
			"tone":        p.BrandTone,
		}, o.costs.TextCents, "product analysis")
	case model.StatusScripting:
		return o.submitProjectJob(ctx, p, client.JobText, map[string]interface{}{
			"task":     "write_script",
			"product":  p.ProductName,
			"analysis": map[string]interface{}(p.Analysis),
		}, o.costs.TextCents, "script generation")
	case model.StatusBrollPlanning:
		return o.planBroll(ctx, p)
	case model.StatusEditing:
		return o.submitAssembly(ctx, p)
	default:
		types := graph.AssetTypes(p.Status)
		if len(types) == 0 {
			o.log.Debug("stage has no generation work", "project", projectID, "stage", p.Status)
			return nil
		}
		return o.startGenerationStage(ctx, p, types)
	}
}

func (o *Orchestrator) startGenerationStage(ctx context.Context, p *model.Project, types []model.AssetType) error {
	// Stage-boundary rule: a previous attempt's assets must not reappear.
	if err := o.lifecycle.PrepareStage(ctx, p.ID, types); err != nil {
		return err
	}
	all, err := o.store.ListScenes(ctx, p.ID)
	if err != nil {
		return err
	}
	scenes := model.CurrentScenes(all)
	if len(scenes) == 0 {
		return fmt.Errorf("project %s has no scenes for stage %s", p.ID, p.Status)
	}
	for i := range scenes {
		scene := scenes[i]
		for _, t := range types {
			inputs := generationInputs(&scene, t)
			if _, err := o.lifecycle.Submit(ctx, &scene, t, inputs); err != nil {
				if errors.Is(err, model.ErrSlotBusy) {
					continue
				}
				o.log.Error("stage submission failed", "project", p.ID, "scene", scene.ID, "type", t, "err", err)
			}
		}
	}
	return nil
}

// OnAssetSettled runs after an asset completes or fails. When every asset the
// current stage requires is completed, the stage's review gate opens; stages
// without a gate advance automatically. Failed assets just sit there with a
// regenerate affordance: absence of completed status is the signal, no
// separate error is raised.
func (o *Orchestrator) OnAssetSettled(ctx context.Context, a *model.Asset) {
	p, err := o.store.GetProject(ctx, a.ProjectID)
	if err != nil {
		o.log.Error("settled hook could not load project", "project", a.ProjectID, "err", err)
		return
	}
	graph := o.machine.Graph()
	types := graph.AssetTypes(p.Status)
	if len(types) == 0 {
		return
	}
	done, err := o.stageComplete(ctx, p, types)
	if err != nil {
		o.log.Error("stage completion check failed", "project", p.ID, "err", err)
		return
	}
	if !done {
		return
	}
	if _, hasGate := graph.GateOf(p.Status); hasGate {
		if _, err := o.machine.EnterReviewGate(ctx, p.ID); err != nil {
			o.log.Error("failed to open review gate", "project", p.ID, "err", err)
		}
		return
	}
	next, ok := graph.Next(p.Status)
	if !ok {
		return
	}
	if _, err := o.machine.Advance(ctx, p.ID, next); err != nil {
		o.log.Error("auto-advance failed", "project", p.ID, "err", err)
		return
	}
	if err := o.enq.Enqueue(ctx, queue.TypeStageStart, queue.StageStartPayload{ProjectID: p.ID}, 0); err != nil {
		o.log.Error("failed to enqueue next stage", "project", p.ID, "err", err)
	}
}

// stageComplete is the N/N check: every required (scene, type) slot holds a
// completed current asset.
func (o *Orchestrator) stageComplete(ctx context.Context, p *model.Project, types []model.AssetType) (bool, error) {
	all, err := o.store.ListScenes(ctx, p.ID)
	if err != nil {
		return false, err
	}
	scenes := model.CurrentScenes(all)
	if len(scenes) == 0 {
		return false, nil
	}
	assets, err := o.store.ListAssets(ctx, p.ID)
	if err != nil {
		return false, err
	}
	type slot struct {
		sceneID string
		t       model.AssetType
	}
	current := make(map[slot]model.Asset)
	for _, a := range assets {
		k := slot{a.SceneID, a.Type}
		if cur, ok := current[k]; !ok || a.CreatedAt.After(cur.CreatedAt) {
			current[k] = a
		}
	}
	for _, scene := range scenes {
		for _, t := range types {
			a, ok := current[slot{scene.ID, t}]
			if !ok || a.Status != model.AssetCompleted {
				return false, nil
			}
		}
	}
	return true, nil
}

// submitProjectJob runs a project-level provider job (analysis, scripting,
// assembly) and schedules its reconciliation.
func (o *Orchestrator) submitProjectJob(ctx context.Context, p *model.Project, kind client.JobKind, payload map[string]interface{}, costCents int64, reason string) error {
	taskID, err := o.provider.SubmitJob(ctx, kind, payload)
	if err != nil {
		return fmt.Errorf("submit %s: %w", reason, err)
	}
	now := time.Now()
	p.ProviderTaskID = taskID
	p.TaskSubmittedAt = &now
	ok, err := o.store.UpdateProjectCAS(ctx, p)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("concurrent update on project %s", p.ID)
	}
	if _, err := o.ledger.Charge(ctx, p.ID, costCents, reason); err != nil {
		o.log.Error("cost charge failed after project job submission", "project", p.ID, "err", err)
	}
	return o.enq.Enqueue(ctx, queue.TypeProjectPoll, queue.ProjectPollPayload{ProjectID: p.ID, TaskID: taskID}, o.lifecycle.PollInterval())
}

func (o *Orchestrator) submitAssembly(ctx context.Context, p *model.Project) error {
	assets, err := o.store.ListAssets(ctx, p.ID)
	if err != nil {
		return err
	}
	urls := make([]string, 0, len(assets))
	for _, a := range assets {
		if a.Status == model.AssetCompleted {
			urls = append(urls, a.URL)
		}
	}
	return o.submitProjectJob(ctx, p, client.JobAssemble, map[string]interface{}{
		"task":       "assemble_video",
		"asset_urls": urls,
	}, o.costs.AssembleCents, "final assembly")
}

// ReconcileProjectJob polls the project-level job and applies its result.
// Mirrors the asset rules: idempotent, a stale task handle is ignored, and
// the same timeout ceiling applies so a silent provider cannot hold the
// project in a generation stage forever. Returns true once the job has
// settled and polling should stop.
func (o *Orchestrator) ReconcileProjectJob(ctx context.Context, projectID, taskID string) (bool, error) {
	p, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return false, err
	}
	if p.ProviderTaskID != taskID {
		o.log.Warn("ignoring stale project job result", "project", projectID, "got", taskID, "want", p.ProviderTaskID)
		return true, nil
	}
	if p.CancelRequested() {
		if err := o.provider.CancelJob(ctx, taskID); err != nil {
			o.log.Debug("provider cancel of project job failed", "project", projectID, "err", err)
		}
		o.log.Info("stopping project job polling, cancel requested", "project", projectID)
		return true, nil
	}
	status, err := o.provider.PollJob(ctx, taskID)
	if err != nil {
		// Transient poll failure; the timeout ceiling still applies.
		if o.projectJobTimedOut(p) {
			return true, o.failProjectJobTimeout(ctx, p)
		}
		return false, err
	}
	switch status.State {
	case client.JobDone:
		return true, o.applyProjectResult(ctx, p, status)
	case client.JobError:
		_, ferr := o.machine.Fail(ctx, p.ID, p.Status, status.Error)
		return true, ferr
	default:
		if o.projectJobTimedOut(p) {
			return true, o.failProjectJobTimeout(ctx, p)
		}
		return false, nil
	}
}

func (o *Orchestrator) projectJobTimedOut(p *model.Project) bool {
	timeout := o.lifecycle.JobTimeout()
	return timeout > 0 && p.TaskSubmittedAt != nil && time.Since(*p.TaskSubmittedAt) > timeout
}

func (o *Orchestrator) failProjectJobTimeout(ctx context.Context, p *model.Project) error {
	if err := o.provider.CancelJob(ctx, p.ProviderTaskID); err != nil {
		o.log.Debug("provider cancel after timeout failed", "project", p.ID, "err", err)
	}
	_, err := o.machine.Fail(ctx, p.ID, p.Status, "no provider response within the configured ceiling")
	return err
}

func (o *Orchestrator) applyProjectResult(ctx context.Context, p *model.Project, status *client.JobStatus) error {
	graph := o.machine.Graph()
	switch p.Status {
	case model.StatusAnalyzing:
		var analysis map[string]interface{}
		if len(status.Result) > 0 {
			if err := json.Unmarshal(status.Result, &analysis); err != nil {
				_, ferr := o.machine.Fail(ctx, p.ID, p.Status, "analysis result was not valid JSON")
				return ferr
			}
		}
		p.Analysis = analysis
		p.ProviderTaskID = ""
		p.TaskSubmittedAt = nil
		if ok, err := o.store.UpdateProjectCAS(ctx, p); err != nil || !ok {
			return fmt.Errorf("persist analysis for project %s: %v", p.ID, err)
		}
		_, err := o.machine.EnterReviewGate(ctx, p.ID)
		return err
	case model.StatusScripting:
		if err := o.materializeScenes(ctx, p, status.Result); err != nil {
			_, ferr := o.machine.Fail(ctx, p.ID, p.Status, err.Error())
			return ferr
		}
		p.ProviderTaskID = ""
		p.TaskSubmittedAt = nil
		if ok, err := o.store.UpdateProjectCAS(ctx, p); err != nil || !ok {
			return fmt.Errorf("clear project task for %s: %v", p.ID, err)
		}
		_, err := o.machine.EnterReviewGate(ctx, p.ID)
		return err
	case model.StatusEditing:
		p.VideoURL = status.ResultURL
		p.ProviderTaskID = ""
		p.TaskSubmittedAt = nil
		if ok, err := o.store.UpdateProjectCAS(ctx, p); err != nil || !ok {
			return fmt.Errorf("persist final video for %s: %v", p.ID, err)
		}
		next, _ := graph.Next(p.Status)
		_, err := o.machine.Advance(ctx, p.ID, next)
		return err
	default:
		o.log.Warn("project job settled in unexpected stage", "project", p.ID, "stage", p.Status)
		return nil
	}
}

// sceneDraft is the shape the scripting job returns per segment.
type sceneDraft struct {
	SegmentIndex  int    `json:"segment_index"`
	Section       string `json:"section"`
	ScriptText    string `json:"script_text"`
	ShotBreakdown string `json:"shot_breakdown"`
	EnergyArc     string `json:"energy_arc"`
	CameraSpec    string `json:"camera_spec"`
}

func (o *Orchestrator) materializeScenes(ctx context.Context, p *model.Project, raw json.RawMessage) error {
	var drafts []sceneDraft
	if err := json.Unmarshal(raw, &drafts); err != nil {
		return fmt.Errorf("script result was not a scene list: %w", err)
	}
	if len(drafts) == 0 {
		return fmt.Errorf("script result contained no scenes")
	}
	for _, d := range drafts {
		scene := &model.Scene{
			ProjectID:     p.ID,
			SegmentIndex:  d.SegmentIndex,
			Version:       1,
			Section:       model.SceneSection(d.Section),
			ScriptText:    d.ScriptText,
			ShotBreakdown: d.ShotBreakdown,
			EnergyArc:     d.EnergyArc,
			CameraSpec:    d.CameraSpec,
		}
		if err := o.store.CreateScene(ctx, scene); err != nil {
			return err
		}
	}
	return nil
}

// planBroll is local work: it tags which scenes want supporting b-roll, then
// advances straight into casting.
func (o *Orchestrator) planBroll(ctx context.Context, p *model.Project) error {
	graph := o.machine.Graph()
	next, ok := graph.Next(p.Status)
	if !ok {
		return fmt.Errorf("broll_planning has no successor")
	}
	if _, err := o.machine.Advance(ctx, p.ID, next); err != nil {
		return err
	}
	return o.enq.Enqueue(ctx, queue.TypeStageStart, queue.StageStartPayload{ProjectID: p.ID}, 0)
}

// generationInputs derives the provider inputs for one slot from the scene.
func generationInputs(scene *model.Scene, t model.AssetType) map[string]interface{} {
	inputs := map[string]interface{}{
		"script_text": scene.ScriptText,
		"energy_arc":  scene.EnergyArc,
	}
	switch t {
	case model.AssetKeyframeStart:
		inputs["frame"] = "start"
	case model.AssetKeyframeEnd:
		inputs["frame"] = "end"
	case model.AssetVideo:
		inputs["shot_breakdown"] = scene.ShotBreakdown
		inputs["camera_spec"] = scene.CameraSpec
	case model.AssetAudio:
		inputs["voice_text"] = scene.ScriptText
	case model.AssetBroll:
		inputs["shot_breakdown"] = scene.ShotBreakdown
	}
	return inputs
}
