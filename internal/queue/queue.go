// Package queue defines the task-scheduling boundary between the
// orchestration core and the asynq worker fleet.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task types routed through asynq.
const (
	TypeGenerationPoll = "generation:poll"
	TypeProjectPoll    = "project:poll"
	TypeStageStart     = "stage:start"
)

// GenerationPollPayload drives reconciliation of one asset's provider job.
type GenerationPollPayload struct {
	AssetID string `json:"assetId"`
}

// ProjectPollPayload drives reconciliation of a project-level provider job
// (analysis, scripting, final assembly).
type ProjectPollPayload struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
}

// StageStartPayload kicks off generation work for a project's current stage.
type StageStartPayload struct {
	ProjectID string `json:"projectId"`
}

// Enqueuer is what the core sees: schedule a named task with a JSON payload
// after a delay. The asynq client implements it; tests fake it.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload interface{}, delay time.Duration) error
}

// AsynqEnqueuer adapts an asynq client to the Enqueuer interface.
type AsynqEnqueuer struct {
	client *asynq.Client
}

func NewAsynqEnqueuer(client *asynq.Client) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client}
}

func (e *AsynqEnqueuer) Enqueue(ctx context.Context, taskType string, payload interface{}, delay time.Duration) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	opts := []asynq.Option{
		asynq.MaxRetry(5),
		asynq.Retention(24 * time.Hour),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(taskType, raw), opts...)
	return err
}
