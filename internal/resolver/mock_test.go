package resolver

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
)

// mockGraph implements the GraphStore surface the resolver touches. The
// embedded interface panics on anything a test did not intend to call.
type mockGraph struct {
	entity.GraphStore

	entities       []entity.Entity
	byJurisdiction map[string][]entity.Entity

	transferred   []string
	transferCount int64
	transferErr   error
	merged        [][2]string
	sameAs        [][2]string
}

func (m *mockGraph) ListByType(_ context.Context, entityType string, _ int) ([]entity.Entity, error) {
	var out []entity.Entity
	for _, e := range m.entities {
		if e.Type == entityType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockGraph) ListByJurisdiction(_ context.Context, _, jurisdiction, region string, _ int) ([]entity.Entity, error) {
	return m.byJurisdiction[jurisdiction+"/"+region], nil
}

func (m *mockGraph) TransferRelationships(_ context.Context, fromID, toID string) (int64, error) {
	if m.transferErr != nil {
		return 0, m.transferErr
	}
	m.transferred = append(m.transferred, fromID+"->"+toID)
	return m.transferCount, nil
}

func (m *mockGraph) MarkMerged(_ context.Context, sourceID, targetID string) error {
	m.merged = append(m.merged, [2]string{sourceID, targetID})
	return nil
}

func (m *mockGraph) CreateSameAs(_ context.Context, aID, bID string, _ float64) error {
	m.sameAs = append(m.sameAs, [2]string{aID, bID})
	return nil
}

type mockTaskStore struct {
	tasks map[string]*Task
}

func newMockTaskStore() *mockTaskStore {
	return &mockTaskStore{tasks: make(map[string]*Task)}
}

func (m *mockTaskStore) Create(_ context.Context, t *Task) (*Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = TaskPending
	cp := *t
	m.tasks[t.ID] = &cp
	return t, nil
}

func (m *mockTaskStore) Get(_ context.Context, id string) (*Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *mockTaskStore) List(_ context.Context, status TaskStatus, _ int) ([]*Task, error) {
	var out []*Task
	for _, t := range m.tasks {
		if t.Status == status {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTaskStore) Claim(_ context.Context, id string, reviewer string) error {
	t, ok := m.tasks[id]
	if !ok || t.Status != TaskPending {
		return eris.Errorf("task %s is not pending", id)
	}
	t.Status = TaskInProgress
	t.Reviewer = reviewer
	return nil
}

func (m *mockTaskStore) Complete(_ context.Context, id string, action Action, reviewer, notes string) error {
	t, ok := m.tasks[id]
	if !ok {
		return eris.Errorf("task %s not found", id)
	}
	if t.Status == TaskCompleted {
		return eris.Wrapf(ErrTaskCompleted, "task %s", id)
	}
	t.Status = TaskCompleted
	t.Action = action
	t.Reviewer = reviewer
	t.Notes = notes
	return nil
}

func (m *mockTaskStore) Release(_ context.Context, id string) error {
	t, ok := m.tasks[id]
	if !ok || t.Status != TaskInProgress {
		return eris.Errorf("task %s is not in progress", id)
	}
	t.Status = TaskPending
	t.Reviewer = ""
	return nil
}
