package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/matbeedotcom/media-transparency-sub001/internal/lead"
)

type mockStore struct {
	sessions map[string]*Session
	errors   map[string]string

	createErr     error
	transitionErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		sessions: make(map[string]*Session),
		errors:   make(map[string]string),
	}
}

func (m *mockStore) Create(_ context.Context, s *Session) error {
	if m.createErr != nil {
		return m.createErr
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Status = StatusInitializing
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockStore) Get(_ context.Context, id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockStore) List(_ context.Context, _ int) ([]*Session, error) {
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockStore) Transition(_ context.Context, id string, from, to Status) error {
	if m.transitionErr != nil {
		return m.transitionErr
	}
	if !CanTransition(from, to) {
		return eris.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
	}
	s, ok := m.sessions[id]
	if !ok || s.Status != from {
		return eris.Wrapf(ErrInvalidTransition, "session %s is no longer %s", id, from)
	}
	s.Status = to
	return nil
}

func (m *mockStore) SetError(_ context.Context, id string, msg string) error {
	m.errors[id] = msg
	if s, ok := m.sessions[id]; ok {
		s.Error = msg
	}
	return nil
}

func (m *mockStore) RecomputeStats(_ context.Context, id string) (*Stats, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, eris.Errorf("session %s not found", id)
	}
	return &s.Stats, nil
}

func (m *mockStore) Delete(_ context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

type mockQueue struct {
	lead.Queue

	enqueued   []lead.Lead
	enqueueErr error
	lastDepth  int
	sessionIDs []string
}

func (m *mockQueue) Enqueue(_ context.Context, sessionID string, leads []lead.Lead, _ string, depth int) (int, error) {
	if m.enqueueErr != nil {
		return 0, m.enqueueErr
	}
	m.enqueued = append(m.enqueued, leads...)
	m.lastDepth = depth
	m.sessionIDs = append(m.sessionIDs, sessionID)
	return len(leads), nil
}
