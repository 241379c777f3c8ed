package resolver

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
)

// TaskStatus is a reconciliation task's lifecycle state.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// TaskPriority tags a task for reviewer triage.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// PriorityFor derives a review priority from match confidence and the
// entity's session relevance. High-confidence near-misses on relevant
// entities are the ones a reviewer should see first.
func PriorityFor(confidence, relevance float64) TaskPriority {
	score := confidence * relevance
	switch {
	case score >= 0.88:
		return PriorityCritical
	case score >= 0.80:
		return PriorityHigh
	case score >= 0.70:
		return PriorityMedium
	}
	return PriorityLow
}

// Action is a reviewer's decision on a task. Every action except ActionSkip
// completes the task permanently.
type Action string

const (
	ActionSameEntity Action = "same_entity"
	ActionDifferent  Action = "different"
	ActionMergeLeft  Action = "merge_left"
	ActionMergeRight Action = "merge_right"
	ActionSkip       Action = "skip"
)

// ParseAction validates a reviewer action string.
func ParseAction(raw string) (Action, error) {
	switch Action(raw) {
	case ActionSameEntity, ActionDifferent, ActionMergeLeft, ActionMergeRight, ActionSkip:
		return Action(raw), nil
	}
	return "", eris.Errorf("resolver: unrecognized action %q", raw)
}

// ErrTaskCompleted is returned when acting on an already-completed task.
var ErrTaskCompleted = eris.New("resolver: reconciliation task already completed")

// Task is one medium-confidence match awaiting human review.
type Task struct {
	ID                string       `json:"id"`
	SourceEntityID    string       `json:"source_entity_id"`
	CandidateEntityID string       `json:"candidate_entity_id"`
	Confidence        float64      `json:"confidence"`
	Strategy          string       `json:"strategy"`
	Priority          TaskPriority `json:"priority"`
	Status            TaskStatus   `json:"status"`
	Action            Action       `json:"action,omitempty"`
	Reviewer          string       `json:"reviewer,omitempty"`
	Notes             string       `json:"notes,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// TaskStore persists reconciliation tasks.
type TaskStore interface {
	Create(ctx context.Context, t *Task) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, status TaskStatus, limit int) ([]*Task, error)

	// Claim moves a pending task to in_progress for a reviewer.
	Claim(ctx context.Context, id string, reviewer string) error

	// Complete records the action and makes the task immutable.
	Complete(ctx context.Context, id string, action Action, reviewer, notes string) error

	// Release returns an in_progress task to pending (the skip action).
	Release(ctx context.Context, id string) error
}

// Reconciler applies reviewer decisions to the graph.
type Reconciler struct {
	tasks    TaskStore
	graph    entity.GraphStore
	resolver *Resolver
}

// NewReconciler creates a Reconciler.
func NewReconciler(tasks TaskStore, graph entity.GraphStore, r *Resolver) *Reconciler {
	return &Reconciler{tasks: tasks, graph: graph, resolver: r}
}

// Apply executes a reviewer's decision. same_entity creates a same-as link
// preserving both identities; merge_left folds the candidate into the
// source, merge_right the reverse; different and the merges just complete
// the task; skip returns it to pending. Completed tasks are immutable.
func (rc *Reconciler) Apply(ctx context.Context, taskID string, action Action, reviewer, notes string) (*MergeOutcome, error) {
	task, err := rc.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, eris.Errorf("resolver: task %s not found", taskID)
	}
	if task.Status == TaskCompleted {
		return nil, eris.Wrapf(ErrTaskCompleted, "task %s", taskID)
	}

	var merge *MergeOutcome
	switch action {
	case ActionSkip:
		if err := rc.tasks.Release(ctx, taskID); err != nil {
			return nil, err
		}
		return nil, nil
	case ActionSameEntity:
		if err := rc.graph.CreateSameAs(ctx, task.SourceEntityID, task.CandidateEntityID, task.Confidence); err != nil {
			return nil, eris.Wrap(err, "resolver: create same-as link")
		}
	case ActionMergeLeft:
		if merge, err = rc.resolver.MergeEntities(ctx, task.CandidateEntityID, task.SourceEntityID); err != nil {
			return nil, err
		}
	case ActionMergeRight:
		if merge, err = rc.resolver.MergeEntities(ctx, task.SourceEntityID, task.CandidateEntityID); err != nil {
			return nil, err
		}
	case ActionDifferent:
		// Decision recorded on the task; nothing changes in the graph.
	default:
		return nil, eris.Errorf("resolver: unrecognized action %q", action)
	}

	if err := rc.tasks.Complete(ctx, taskID, action, reviewer, notes); err != nil {
		return nil, err
	}

	zap.L().Info("reconciliation task resolved",
		zap.String("task_id", taskID),
		zap.String("action", string(action)),
		zap.String("reviewer", reviewer),
	)
	return merge, nil
}
