package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/reelforge/api/internal/client"
	"github.com/reelforge/api/internal/locks"
	"github.com/reelforge/api/internal/logger"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/queue"
	"github.com/reelforge/api/internal/store"
)

// Notifier pushes entity updates to subscribed clients.
type Notifier interface {
	ProjectStatusChanged(p *model.Project)
	AssetUpdated(a *model.Asset)
}

// SettledFunc is called after an asset reaches completed or failed, outside
// the asset lock. The orchestrator hooks stage completion checks here.
type SettledFunc func(ctx context.Context, a *model.Asset)

// Lifecycle owns the generation-job state machine per asset: submission to
// the external provider, reconciliation of eventual completion or failure,
// cancel, reject, and regenerate. All mutating operations on one asset
// serialize on a keyed lock; submissions for one (scene, type) slot serialize
// on a slot lock so at most one job is ever in flight per slot.
type Lifecycle struct {
	store    store.Store
	provider client.GenerationProvider
	storage  client.StorageClient // optional; nil keeps provider URLs
	ledger   *Ledger
	enq      queue.Enqueuer
	notifier Notifier
	locks    *locks.KeyedMutex
	costs    CostTable
	httpc    *http.Client

	pollInterval time.Duration
	jobTimeout   time.Duration

	onSettled SettledFunc
	log       *logger.Logger
}

func NewLifecycle(
	st store.Store,
	provider client.GenerationProvider,
	storage client.StorageClient,
	ledger *Ledger,
	enq queue.Enqueuer,
	notifier Notifier,
	costs CostTable,
	pollInterval, jobTimeout time.Duration,
	log *logger.Logger,
) *Lifecycle {
	return &Lifecycle{
		store:        st,
		provider:     provider,
		storage:      storage,
		ledger:       ledger,
		enq:          enq,
		notifier:     notifier,
		locks:        locks.NewKeyedMutex(),
		costs:        costs,
		httpc:        &http.Client{Timeout: 60 * time.Second},
		pollInterval: pollInterval,
		jobTimeout:   jobTimeout,
		log:          log.With("component", "lifecycle"),
	}
}

// SetSettledCallback registers the hook fired when an asset settles.
func (l *Lifecycle) SetSettledCallback(fn SettledFunc) { l.onSettled = fn }

// PollInterval exposes the reconciliation cadence to the worker.
func (l *Lifecycle) PollInterval() time.Duration { return l.pollInterval }

// JobTimeout exposes the no-response ceiling shared with project-level jobs.
func (l *Lifecycle) JobTimeout() time.Duration { return l.jobTimeout }

func slotKey(sceneID string, t model.AssetType) string {
	return "slot:" + sceneID + ":" + string(t)
}

func assetKey(id string) string { return "asset:" + id }

// Submit creates a generating asset for the (scene, type) slot and hands the
// work to the provider. Cost is charged at submission time; providers bill
// for the attempt, not the outcome.
func (l *Lifecycle) Submit(ctx context.Context, scene *model.Scene, t model.AssetType, inputs map[string]interface{}) (*model.Asset, error) {
	key := slotKey(scene.ID, t)
	l.locks.Lock(key)
	defer l.locks.Unlock(key)
	return l.submitLocked(ctx, scene, t, inputs)
}

func (l *Lifecycle) submitLocked(ctx context.Context, scene *model.Scene, t model.AssetType, inputs map[string]interface{}) (*model.Asset, error) {
	prior, err := l.store.ListSlotAssets(ctx, scene.ID, t)
	if err != nil {
		return nil, err
	}
	for i := range prior {
		if prior[i].Status.InFlight() {
			return nil, fmt.Errorf("%w: scene %s %s", model.ErrSlotBusy, scene.ID, t)
		}
	}

	payload := buildPayload(scene, inputs)
	taskID, err := l.provider.SubmitJob(ctx, kindFor(t), payload)
	if err != nil {
		return nil, fmt.Errorf("submit %s for scene %s: %w", t, scene.ID, err)
	}

	cost := l.costs.ForAssetType(t)
	asset := &model.Asset{
		ProjectID:      scene.ProjectID,
		SceneID:        scene.ID,
		Type:           t,
		Status:         model.AssetGenerating,
		ProviderTaskID: taskID,
		CostCents:      cost,
		Inputs:         inputs,
		SubmittedAt:    time.Now(),
	}
	if err := l.store.CreateAsset(ctx, asset); err != nil {
		return nil, err
	}

	// Prior settled results for the slot are superseded, not deleted: they
	// stay for audit but stop being the slot's current asset.
	for i := range prior {
		p := &prior[i]
		p.SetMeta(model.MetaSupersededBy, asset.ID)
		if _, err := l.store.UpdateAssetCAS(ctx, p); err != nil {
			l.log.Warn("failed to mark superseded asset", "asset", p.ID, "err", err)
		}
	}

	if _, err := l.ledger.Charge(ctx, scene.ProjectID, cost, fmt.Sprintf("%s generation (segment %d)", t, scene.SegmentIndex)); err != nil {
		l.log.Error("cost charge failed after submission", "asset", asset.ID, "err", err)
	}
	l.schedulePoll(ctx, asset.ID)
	l.notifyAsset(asset)
	l.log.Info("generation submitted", "asset", asset.ID, "type", t, "task", taskID)
	return asset, nil
}

// SubmitEdit sends a free-text edit instruction for a completed asset. The
// asset moves to editing; its URL keeps pointing at the completed base so a
// failed edit never loses it.
func (l *Lifecycle) SubmitEdit(ctx context.Context, assetID, instruction string) (*model.Asset, error) {
	a, err := l.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	key := slotKey(a.SceneID, a.Type)
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	// Re-read under the lock.
	a, err = l.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AssetCompleted {
		return nil, fmt.Errorf("%w: cannot edit asset in status %s", model.ErrAssetNotEditable, a.Status)
	}
	siblings, err := l.store.ListSlotAssets(ctx, a.SceneID, a.Type)
	if err != nil {
		return nil, err
	}
	for i := range siblings {
		if siblings[i].Status.InFlight() {
			return nil, fmt.Errorf("%w: scene %s %s", model.ErrSlotBusy, a.SceneID, a.Type)
		}
	}

	taskID, err := l.provider.SubmitJob(ctx, client.JobImageEdit, map[string]interface{}{
		"instruction": instruction,
		"base_url":    a.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("submit edit for asset %s: %w", assetID, err)
	}

	a.Status = model.AssetEditing
	a.ProviderTaskID = taskID
	a.SubmittedAt = time.Now()
	a.SetMeta(model.MetaEditInstruction, instruction)
	a.CostCents += l.costs.EditCents
	if err := l.casUpdate(ctx, a); err != nil {
		return nil, err
	}
	if _, err := l.ledger.Charge(ctx, a.ProjectID, l.costs.EditCents, fmt.Sprintf("%s edit", a.Type)); err != nil {
		l.log.Error("cost charge failed after edit submission", "asset", a.ID, "err", err)
	}
	l.schedulePoll(ctx, a.ID)
	l.notifyAsset(a)
	l.log.Info("edit submitted", "asset", a.ID, "task", taskID)
	return a, nil
}

// Reconcile polls the provider for the asset's current job and applies the
// result. Safe to call repeatedly; terminal assets are returned unchanged.
// The returned bool is true once the asset has settled.
func (l *Lifecycle) Reconcile(ctx context.Context, assetID string) (*model.Asset, bool, error) {
	l.locks.Lock(assetKey(assetID))
	defer l.locks.Unlock(assetKey(assetID))

	a, err := l.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, false, err
	}
	if a.Status.Terminal() {
		return a, true, nil
	}
	status, err := l.provider.PollJob(ctx, a.ProviderTaskID)
	if err != nil {
		// Transient poll failure; the timeout ceiling still applies.
		if l.timedOut(a) {
			return l.failLocked(ctx, a, &model.ProviderError{TaskID: a.ProviderTaskID, Message: "no provider response within the configured ceiling", Timeout: true})
		}
		return a, false, err
	}
	return l.applyLocked(ctx, a, status)
}

// ApplyResult is the push path: a provider webhook delivers a job status. It
// shares all idempotency and staleness rules with Reconcile.
func (l *Lifecycle) ApplyResult(ctx context.Context, assetID string, status *client.JobStatus) (*model.Asset, bool, error) {
	l.locks.Lock(assetKey(assetID))
	defer l.locks.Unlock(assetKey(assetID))

	a, err := l.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, false, err
	}
	if a.Status.Terminal() {
		return a, true, nil
	}
	return l.applyLocked(ctx, a, status)
}

func (l *Lifecycle) applyLocked(ctx context.Context, a *model.Asset, status *client.JobStatus) (*model.Asset, bool, error) {
	if status.TaskID != a.ProviderTaskID {
		// Late result from a superseded or cancelled job handle. Never apply.
		l.log.Warn("ignoring stale provider result", "asset", a.ID, "got", status.TaskID, "want", a.ProviderTaskID)
		return a, a.Status.Terminal(), nil
	}
	switch status.State {
	case client.JobDone:
		url := status.ResultURL
		if mirrored, err := l.mirror(ctx, a, url); err == nil && mirrored != "" {
			url = mirrored
		} else if err != nil {
			l.log.Warn("artifact mirror failed, keeping provider url", "asset", a.ID, "err", err)
		}
		a.Status = model.AssetCompleted
		a.URL = url
		if err := l.casUpdate(ctx, a); err != nil {
			return nil, false, err
		}
		l.notifyAsset(a)
		l.settled(ctx, a)
		l.log.Info("asset completed", "asset", a.ID, "type", a.Type)
		return a, true, nil
	case client.JobError:
		return l.failLocked(ctx, a, &model.ProviderError{TaskID: status.TaskID, Message: status.Error})
	default:
		if l.timedOut(a) {
			return l.failLocked(ctx, a, &model.ProviderError{TaskID: a.ProviderTaskID, Message: "no provider response within the configured ceiling", Timeout: true})
		}
		return a, false, nil
	}
}

// failLocked marks the asset failed. An asset that was editing keeps its URL:
// the completed base must survive a failed edit so the user can retry.
func (l *Lifecycle) failLocked(ctx context.Context, a *model.Asset, perr *model.ProviderError) (*model.Asset, bool, error) {
	if perr.Timeout {
		if err := l.provider.CancelJob(ctx, a.ProviderTaskID); err != nil {
			l.log.Debug("provider cancel after timeout failed", "asset", a.ID, "err", err)
		}
	}
	a.Status = model.AssetFailed
	a.SetMeta(model.MetaLastError, perr.Message)
	if err := l.casUpdate(ctx, a); err != nil {
		return nil, false, err
	}
	l.notifyAsset(a)
	l.settled(ctx, a)
	l.log.Warn("asset failed", "asset", a.ID, "type", a.Type, "timeout", perr.Timeout, "err", perr.Message)
	return a, true, nil
}

// Cancel stops an in-flight generation or edit. Provider notification is
// best-effort; locally the cancel is authoritative so the UI is never stuck
// on a lost job.
func (l *Lifecycle) Cancel(ctx context.Context, assetID string) (*model.Asset, error) {
	l.locks.Lock(assetKey(assetID))
	defer l.locks.Unlock(assetKey(assetID))

	a, err := l.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if !a.Status.InFlight() {
		return nil, fmt.Errorf("%w: cannot cancel asset in status %s", model.ErrAssetNotEditable, a.Status)
	}
	if err := l.provider.CancelJob(ctx, a.ProviderTaskID); err != nil {
		l.log.Debug("provider cancel not acknowledged", "asset", a.ID, "err", err)
	}
	a.Status = model.AssetCancelled
	if err := l.casUpdate(ctx, a); err != nil {
		return nil, err
	}
	l.notifyAsset(a)
	l.log.Info("asset cancelled", "asset", a.ID)
	return a, nil
}

// Reject records a human rejection of a completed asset. The artifact is kept
// for audit and undo.
func (l *Lifecycle) Reject(ctx context.Context, assetID string) (*model.Asset, error) {
	l.locks.Lock(assetKey(assetID))
	defer l.locks.Unlock(assetKey(assetID))

	a, err := l.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AssetCompleted {
		return nil, fmt.Errorf("%w: cannot reject asset in status %s", model.ErrAssetNotEditable, a.Status)
	}
	a.Status = model.AssetRejected
	if err := l.casUpdate(ctx, a); err != nil {
		return nil, err
	}
	l.notifyAsset(a)
	l.log.Info("asset rejected", "asset", a.ID)
	return a, nil
}

// Grade records the reviewer's 1-5 rating of a completed asset. Re-grading
// overwrites the previous value.
func (l *Lifecycle) Grade(ctx context.Context, assetID string, grade int) (*model.Asset, error) {
	l.locks.Lock(assetKey(assetID))
	defer l.locks.Unlock(assetKey(assetID))

	a, err := l.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AssetCompleted {
		return nil, fmt.Errorf("%w: cannot grade asset in status %s", model.ErrAssetNotEditable, a.Status)
	}
	a.Grade = &grade
	if err := l.casUpdate(ctx, a); err != nil {
		return nil, err
	}
	l.notifyAsset(a)
	l.log.Info("asset graded", "asset", a.ID, "grade", grade)
	return a, nil
}

// Regenerate is cancel-if-active followed by a fresh submission with the same
// generation inputs. Always produces a new job and a new asset row.
func (l *Lifecycle) Regenerate(ctx context.Context, assetID string) (*model.Asset, error) {
	a, err := l.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	key := slotKey(a.SceneID, a.Type)
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	a, err = l.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if a.Status.InFlight() {
		if err := l.provider.CancelJob(ctx, a.ProviderTaskID); err != nil {
			l.log.Debug("provider cancel not acknowledged", "asset", a.ID, "err", err)
		}
		l.locks.Lock(assetKey(a.ID))
		a.Status = model.AssetCancelled
		err = l.casUpdate(ctx, a)
		l.locks.Unlock(assetKey(a.ID))
		if err != nil {
			return nil, err
		}
	}
	scene, err := l.store.GetScene(ctx, a.SceneID)
	if err != nil {
		return nil, err
	}
	inputs := map[string]interface{}(a.Inputs)
	return l.submitLocked(ctx, scene, a.Type, inputs)
}

// PrepareStage applies the stage-boundary rule: stale same-type assets from a
// previous run through the stage are removed so they cannot visually reappear
// after a fresh pipeline pass. In-flight ones are cancelled first.
func (l *Lifecycle) PrepareStage(ctx context.Context, projectID string, types []model.AssetType) error {
	assets, err := l.store.ListAssets(ctx, projectID)
	if err != nil {
		return err
	}
	wanted := make(map[model.AssetType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	for i := range assets {
		a := &assets[i]
		if wanted[a.Type] && a.Status.InFlight() {
			if _, err := l.Cancel(ctx, a.ID); err != nil {
				l.log.Warn("stale in-flight cancel failed", "asset", a.ID, "err", err)
			}
		}
	}
	return l.store.DeleteAssets(ctx, projectID, types, []model.AssetStatus{
		model.AssetCompleted, model.AssetFailed, model.AssetRejected, model.AssetCancelled,
	})
}

func (l *Lifecycle) timedOut(a *model.Asset) bool {
	return l.jobTimeout > 0 && time.Since(a.SubmittedAt) > l.jobTimeout
}

func (l *Lifecycle) casUpdate(ctx context.Context, a *model.Asset) error {
	ok, err := l.store.UpdateAssetCAS(ctx, a)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("concurrent update on asset %s", a.ID)
	}
	return nil
}

func (l *Lifecycle) schedulePoll(ctx context.Context, assetID string) {
	err := l.enq.Enqueue(ctx, queue.TypeGenerationPoll, queue.GenerationPollPayload{AssetID: assetID}, l.pollInterval)
	if err != nil {
		l.log.Error("failed to schedule reconciliation poll", "asset", assetID, "err", err)
	}
}

func (l *Lifecycle) notifyAsset(a *model.Asset) {
	if l.notifier != nil {
		l.notifier.AssetUpdated(a)
	}
}

func (l *Lifecycle) settled(ctx context.Context, a *model.Asset) {
	if l.onSettled != nil {
		l.onSettled(ctx, a)
	}
}

// mirror copies a completed artifact into the project's bucket and returns
// the stored public URL. Best-effort: any failure keeps the provider URL.
func (l *Lifecycle) mirror(ctx context.Context, a *model.Asset, url string) (string, error) {
	if l.storage == nil || url == "" {
		return "", nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("artifact fetch returned status %d", resp.StatusCode)
	}
	key := fmt.Sprintf("assets/%s/%s%s", a.ProjectID, a.ID, extensionFor(a.Type))
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return l.storage.Upload(ctx, key, resp.Body, contentType)
}

func extensionFor(t model.AssetType) string {
	switch t {
	case model.AssetKeyframeStart, model.AssetKeyframeEnd:
		return ".png"
	case model.AssetVideo, model.AssetBroll:
		return ".mp4"
	case model.AssetAudio:
		return ".mp3"
	default:
		return ""
	}
}

func kindFor(t model.AssetType) client.JobKind {
	switch t {
	case model.AssetKeyframeStart, model.AssetKeyframeEnd:
		return client.JobImage
	case model.AssetVideo:
		return client.JobVideo
	case model.AssetAudio:
		return client.JobVoice
	case model.AssetBroll:
		return client.JobBroll
	default:
		return client.JobImage
	}
}

// buildPayload assembles the provider payload for a scene generation. A
// well-formed prompt override on the scene supersedes the derived fields;
// a malformed one is skipped.
func buildPayload(scene *model.Scene, inputs map[string]interface{}) map[string]interface{} {
	payload := map[string]interface{}{
		"segment_index": scene.SegmentIndex,
		"section":       string(scene.Section),
	}
	for k, v := range inputs {
		payload[k] = v
	}
	if scene.VideoPromptOverride != nil {
		if model.IsWellFormedPrompt(scene.VideoPromptOverride) {
			payload["prompt_override"] = map[string]interface{}(scene.VideoPromptOverride)
		}
	}
	return payload
}
