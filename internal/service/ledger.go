package service

import (
	"context"
	"time"

	"github.com/reelforge/api/internal/logger"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/store"
)

// Ledger accumulates billable-operation costs per project. Every charge is an
// immutable entry plus an atomic increment of the project total, applied in
// one store transaction, so the sum of entries always equals the total.
type Ledger struct {
	store store.Store
	log   *logger.Logger
}

func NewLedger(st store.Store, log *logger.Logger) *Ledger {
	return &Ledger{store: st, log: log.With("component", "ledger")}
}

// Charge records an amount against a project.
func (l *Ledger) Charge(ctx context.Context, projectID string, amountCents int64, reason string) (*model.CostEntry, error) {
	entry := &model.CostEntry{
		ProjectID:   projectID,
		AmountCents: amountCents,
		Reason:      reason,
		CreatedAt:   time.Now(),
	}
	if err := l.store.RecordCost(ctx, entry); err != nil {
		return nil, err
	}
	l.log.Debug("cost recorded", "project", projectID, "amountUsd", model.USD(amountCents), "reason", reason)
	return entry, nil
}

// Summary is the read-back used by confirmation dialogs: the running total
// plus every ledger line.
func (l *Ledger) Summary(ctx context.Context, projectID string) (*model.CostResponse, error) {
	p, err := l.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	entries, err := l.store.ListCostEntries(ctx, projectID)
	if err != nil {
		return nil, err
	}
	resp := &model.CostResponse{
		ProjectID: projectID,
		TotalUSD:  p.CostUSD(),
		Entries:   make([]model.CostEntryDisplay, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, model.CostEntryDisplay{
			ID:        e.ID,
			AmountUSD: e.AmountUSD(),
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp, nil
}
