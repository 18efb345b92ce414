package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/reelforge/api/internal/logger"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/queue"
	"github.com/reelforge/api/internal/service"
)

// PollWorker drives asynchronous generation to completion: it reconciles
// in-flight assets and project-level jobs against the provider and re-arms
// itself while work is still pending.
type PollWorker struct {
	lifecycle    *service.Lifecycle
	orchestrator *service.Orchestrator
	enq          queue.Enqueuer
	log          *logger.Logger
}

func NewPollWorker(lifecycle *service.Lifecycle, orchestrator *service.Orchestrator, enq queue.Enqueuer, log *logger.Logger) *PollWorker {
	return &PollWorker{
		lifecycle:    lifecycle,
		orchestrator: orchestrator,
		enq:          enq,
		log:          log.With("component", "worker"),
	}
}

// NewMux registers all task handlers. The server in cmd/server runs this mux.
func NewMux(w *PollWorker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeGenerationPoll, w.HandleGenerationPoll)
	mux.HandleFunc(queue.TypeProjectPoll, w.HandleProjectPoll)
	mux.HandleFunc(queue.TypeStageStart, w.HandleStageStart)
	return mux
}

// HandleGenerationPoll reconciles one asset. A still-pending job re-enqueues
// itself after the poll interval rather than surfacing to asynq retries, so
// neither a long-running generation nor a run of transient provider errors
// can exhaust the retry budget and kill the chain; the timeout ceiling inside
// Reconcile is what terminates a job that never answers.
func (w *PollWorker) HandleGenerationPoll(ctx context.Context, t *asynq.Task) error {
	var p queue.GenerationPollPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal generation poll payload: %w", err)
	}

	_, settled, err := w.lifecycle.Reconcile(ctx, p.AssetID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			w.log.Info("dropping poll for removed asset", "asset", p.AssetID)
			return nil
		}
		w.log.Warn("asset reconciliation failed, will poll again", "asset", p.AssetID, "err", err)
		return w.enq.Enqueue(ctx, queue.TypeGenerationPoll, p, w.lifecycle.PollInterval())
	}
	if settled {
		return nil
	}
	return w.enq.Enqueue(ctx, queue.TypeGenerationPoll, p, w.lifecycle.PollInterval())
}

// HandleProjectPoll reconciles a project-level job (analysis, scripting,
// final assembly). Same re-arm rules as the asset poll.
func (w *PollWorker) HandleProjectPoll(ctx context.Context, t *asynq.Task) error {
	var p queue.ProjectPollPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal project poll payload: %w", err)
	}

	settled, err := w.orchestrator.ReconcileProjectJob(ctx, p.ProjectID, p.TaskID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			w.log.Info("dropping poll for removed project", "project", p.ProjectID)
			return nil
		}
		w.log.Warn("project job reconciliation failed, will poll again", "project", p.ProjectID, "err", err)
		return w.enq.Enqueue(ctx, queue.TypeProjectPoll, p, w.lifecycle.PollInterval())
	}
	if settled {
		return nil
	}
	return w.enq.Enqueue(ctx, queue.TypeProjectPoll, p, w.lifecycle.PollInterval())
}

// HandleStageStart kicks off the generation work for the project's current
// stage. Errors surface to asynq so transient failures are retried.
func (w *PollWorker) HandleStageStart(ctx context.Context, t *asynq.Task) error {
	var p queue.StageStartPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal stage start payload: %w", err)
	}

	if err := w.orchestrator.StartStage(ctx, p.ProjectID); err != nil {
		w.log.Error("stage start failed", "project", p.ProjectID, "err", err)
		return err
	}
	return nil
}
