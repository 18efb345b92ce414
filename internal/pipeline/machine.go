package pipeline

import (
	"context"
	"fmt"

	"github.com/reelforge/api/internal/locks"
	"github.com/reelforge/api/internal/logger"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/store"
)

// Notifier receives project status transitions for push delivery to clients.
type Notifier interface {
	ProjectStatusChanged(p *model.Project)
}

// Machine validates and applies project stage transitions. All mutating calls
// for one project serialize on an in-process keyed lock; the store's version
// column backs that up across processes, so a lost race surfaces as a
// conflict instead of a silent double transition.
type Machine struct {
	graph    *Graph
	store    store.Store
	locks    *locks.KeyedMutex
	notifier Notifier
	log      *logger.Logger
}

func NewMachine(graph *Graph, st store.Store, notifier Notifier, log *logger.Logger) *Machine {
	return &Machine{
		graph:    graph,
		store:    st,
		locks:    locks.NewKeyedMutex(),
		notifier: notifier,
		log:      log.With("component", "pipeline"),
	}
}

// Graph exposes the stage graph to collaborators (analyzer, orchestrator).
func (m *Machine) Graph() *Graph { return m.graph }

// Advance moves the project to target. Legal targets are the immediate
// successor of the current status, or the failed sink from any non-terminal
// status. Entering any non-failed status clears a recorded failure.
func (m *Machine) Advance(ctx context.Context, projectID string, target model.ProjectStatus) (*model.Project, error) {
	m.locks.Lock(projectID)
	defer m.locks.Unlock(projectID)

	p, err := m.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if target == model.StatusFailed {
		return m.failLocked(ctx, p, p.Status, "")
	}
	next, ok := m.graph.Next(p.Status)
	if !ok || next != target {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, p.Status, target)
	}
	p.Status = target
	p.FailedAtStatus = nil
	p.FailureReason = ""
	return m.persist(ctx, p)
}

// EnterReviewGate moves the project into the review gate that follows its
// current stage. Idempotent: already at or past the gate is a no-op.
func (m *Machine) EnterReviewGate(ctx context.Context, projectID string) (*model.Project, error) {
	m.locks.Lock(projectID)
	defer m.locks.Unlock(projectID)

	p, err := m.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	gate, ok := m.graph.GateOf(p.Status)
	if !ok {
		// Already at the gate, past it, or the stage has no gate.
		return p, nil
	}
	p.Status = gate
	return m.persist(ctx, p)
}

// Approve advances a project sitting at a review gate to the next stage.
// Racing approvals: the first one moves the status, the second finds the
// project no longer at a gate and fails.
func (m *Machine) Approve(ctx context.Context, projectID string) (*model.Project, error) {
	m.locks.Lock(projectID)
	defer m.locks.Unlock(projectID)

	p, err := m.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !m.graph.IsGate(p.Status) {
		return nil, fmt.Errorf("%w: status is %s", model.ErrNotAtReviewGate, p.Status)
	}
	next, ok := m.graph.Next(p.Status)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no successor", model.ErrInvalidTransition, p.Status)
	}
	p.Status = next
	return m.persist(ctx, p)
}

// Fail sinks the project into the failed terminal state, recording where the
// run was and why. Idempotent on an already-failed project.
func (m *Machine) Fail(ctx context.Context, projectID string, atStatus model.ProjectStatus, reason string) (*model.Project, error) {
	m.locks.Lock(projectID)
	defer m.locks.Unlock(projectID)

	p, err := m.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return m.failLocked(ctx, p, atStatus, reason)
}

func (m *Machine) failLocked(ctx context.Context, p *model.Project, atStatus model.ProjectStatus, reason string) (*model.Project, error) {
	if p.Status == model.StatusFailed {
		return p, nil
	}
	if p.Status == model.StatusCompleted {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, p.Status, model.StatusFailed)
	}
	at := atStatus
	p.Status = model.StatusFailed
	p.FailedAtStatus = &at
	p.FailureReason = reason
	m.log.Warn("project failed", "project", p.ID, "at", atStatus, "reason", reason)
	return m.persist(ctx, p)
}

// Progress returns the derived display fraction for a project.
func (m *Machine) Progress(p *model.Project) float64 { return m.graph.Progress(p) }

func (m *Machine) persist(ctx context.Context, p *model.Project) (*model.Project, error) {
	ok, err := m.store.UpdateProjectCAS(ctx, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The keyed lock serializes this process; a version miss means
		// another instance moved the project first.
		return nil, fmt.Errorf("%w: concurrent status change on project %s", model.ErrInvalidTransition, p.ID)
	}
	m.log.Info("project status changed", "project", p.ID, "status", p.Status)
	if m.notifier != nil {
		m.notifier.ProjectStatusChanged(p)
	}
	return p, nil
}
