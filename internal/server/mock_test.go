package server

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
	"github.com/matbeedotcom/media-transparency-sub001/internal/lead"
	"github.com/matbeedotcom/media-transparency-sub001/internal/resolver"
	"github.com/matbeedotcom/media-transparency-sub001/internal/session"
)

type mockStore struct {
	sessions map[string]*session.Session
}

func newMockStore() *mockStore {
	return &mockStore{sessions: map[string]*session.Session{}}
}

func (s *mockStore) Create(_ context.Context, sess *session.Session) error {
	sess.ID = fmt.Sprintf("sess-%d", len(s.sessions)+1)
	sess.Status = session.StatusInitializing
	s.sessions[sess.ID] = sess
	return nil
}

func (s *mockStore) Get(_ context.Context, id string) (*session.Session, error) {
	return s.sessions[id], nil
}

func (s *mockStore) List(_ context.Context, limit int) ([]*session.Session, error) {
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *mockStore) Transition(_ context.Context, id string, from, to session.Status) error {
	sess, ok := s.sessions[id]
	if !ok || sess.Status != from || !session.CanTransition(from, to) {
		return eris.Wrapf(session.ErrInvalidTransition, "%s -> %s", from, to)
	}
	sess.Status = to
	return nil
}

func (s *mockStore) SetError(_ context.Context, id string, msg string) error {
	if sess, ok := s.sessions[id]; ok {
		sess.Error = msg
	}
	return nil
}

func (s *mockStore) RecomputeStats(_ context.Context, id string) (*session.Stats, error) {
	if sess, ok := s.sessions[id]; ok {
		return &sess.Stats, nil
	}
	return nil, eris.Errorf("session %s not found", id)
}

func (s *mockStore) Delete(_ context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type mockQueue struct {
	leads map[string]*lead.Queued
	next  int
}

func newMockQueue() *mockQueue {
	return &mockQueue{leads: map[string]*lead.Queued{}}
}

func (q *mockQueue) Enqueue(_ context.Context, sessionID string, leads []lead.Lead, sourceEntityID string, depth int) (int, error) {
	inserted := 0
	for _, l := range leads {
		if err := l.Validate(); err != nil {
			return inserted, err
		}
		q.next++
		id := fmt.Sprintf("lead-%d", q.next)
		q.leads[id] = &lead.Queued{
			ID:             id,
			SessionID:      sessionID,
			Lead:           l,
			SourceEntityID: sourceEntityID,
			Depth:          depth,
			Status:         lead.StatusPending,
			CreatedAt:      time.Now(),
		}
		inserted++
	}
	return inserted, nil
}

func (q *mockQueue) Dequeue(_ context.Context, _ string, _ int) ([]lead.Queued, error) {
	return nil, nil
}

func (q *mockQueue) Complete(_ context.Context, leadID string, result lead.Result) error {
	q.leads[leadID].Status = lead.StatusCompleted
	q.leads[leadID].Result = &result
	return nil
}

func (q *mockQueue) Fail(_ context.Context, leadID string, errMsg string) error {
	q.leads[leadID].Status = lead.StatusFailed
	q.leads[leadID].Error = errMsg
	return nil
}

func (q *mockQueue) Skip(_ context.Context, leadID string, reason string) error {
	q.leads[leadID].Status = lead.StatusSkipped
	q.leads[leadID].SkipReason = reason
	return nil
}

func (q *mockQueue) Requeue(_ context.Context, leadID string, newPriority *int) error {
	ql, ok := q.leads[leadID]
	if !ok {
		return eris.Errorf("lead %s not found", leadID)
	}
	if !ql.Status.Terminal() {
		return eris.Errorf("lead %s is not in a terminal state", leadID)
	}
	ql.Status = lead.StatusPending
	if newPriority != nil {
		ql.Priority = lead.ClampPriority(*newPriority)
	}
	return nil
}

func (q *mockQueue) SetPriority(_ context.Context, leadID string, priority int) error {
	ql, ok := q.leads[leadID]
	if !ok || ql.Status != lead.StatusPending {
		return eris.Errorf("lead %s is not pending", leadID)
	}
	ql.Priority = lead.ClampPriority(priority)
	return nil
}

func (q *mockQueue) ListPending(_ context.Context, sessionID string, limit int) ([]lead.Queued, error) {
	var out []lead.Queued
	for _, ql := range q.leads {
		if ql.SessionID == sessionID && ql.Status == lead.StatusPending {
			out = append(out, *ql)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *mockQueue) Stats(_ context.Context, sessionID string) (*lead.Stats, error) {
	stats := &lead.Stats{
		ByStatus:   map[lead.Status]int{},
		ByType:     map[lead.Type]int{},
		ByPriority: map[int]int{},
	}
	for _, ql := range q.leads {
		if ql.SessionID != sessionID {
			continue
		}
		stats.Total++
		stats.ByStatus[ql.Status]++
		stats.ByType[ql.Type]++
		stats.ByPriority[ql.Priority]++
	}
	return stats, nil
}

type mockTasks struct {
	tasks map[string]*resolver.Task
	next  int
}

func newMockTasks() *mockTasks {
	return &mockTasks{tasks: map[string]*resolver.Task{}}
}

func (m *mockTasks) Create(_ context.Context, t *resolver.Task) (*resolver.Task, error) {
	m.next++
	cp := *t
	cp.ID = fmt.Sprintf("task-%d", m.next)
	cp.Status = resolver.TaskPending
	cp.CreatedAt = time.Now()
	m.tasks[cp.ID] = &cp
	return &cp, nil
}

func (m *mockTasks) Get(_ context.Context, id string) (*resolver.Task, error) {
	return m.tasks[id], nil
}

func (m *mockTasks) List(_ context.Context, status resolver.TaskStatus, limit int) ([]*resolver.Task, error) {
	var out []*resolver.Task
	for _, t := range m.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockTasks) Claim(_ context.Context, id string, reviewer string) error {
	t, ok := m.tasks[id]
	if !ok || t.Status != resolver.TaskPending {
		return eris.Errorf("task %s is not pending", id)
	}
	t.Status = resolver.TaskInProgress
	t.Reviewer = reviewer
	return nil
}

func (m *mockTasks) Complete(_ context.Context, id string, action resolver.Action, reviewer, notes string) error {
	t, ok := m.tasks[id]
	if !ok {
		return eris.Errorf("task %s not found", id)
	}
	if t.Status == resolver.TaskCompleted {
		return resolver.ErrTaskCompleted
	}
	now := time.Now()
	t.Status = resolver.TaskCompleted
	t.Action = action
	t.Reviewer = reviewer
	t.Notes = notes
	t.ResolvedAt = &now
	return nil
}

func (m *mockTasks) Release(_ context.Context, id string) error {
	t, ok := m.tasks[id]
	if !ok || t.Status != resolver.TaskInProgress {
		return eris.Errorf("task %s is not in progress", id)
	}
	t.Status = resolver.TaskPending
	t.Reviewer = ""
	return nil
}

type mockGraph struct {
	entity.GraphStore
	sameAs [][2]string
}

func (g *mockGraph) CreateSameAs(_ context.Context, a, b string, _ float64) error {
	g.sameAs = append(g.sameAs, [2]string{a, b})
	return nil
}
