package session

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
	"github.com/matbeedotcom/media-transparency-sub001/internal/lead"
)

// Manager owns the session lifecycle. It seeds the entry-point lead at
// creation and moves sessions through the state machine on behalf of the
// driving loop and the command surface.
type Manager struct {
	store Store
	queue lead.Queue
}

// NewManager creates a Manager.
func NewManager(store Store, queue lead.Queue) *Manager {
	return &Manager{store: store, queue: queue}
}

// Create makes a new session, seeds exactly one entry-point lead at depth 0,
// and moves the session to running. A session that cannot seed its entry
// point is marked failed immediately.
func (m *Manager) Create(ctx context.Context, name string, scheme entity.Scheme, value string, cfg Config) (*Session, error) {
	if value == "" {
		return nil, eris.New("session: entry-point value is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sess := &Session{
		Name:        name,
		EntryScheme: scheme,
		EntryValue:  value,
		Config:      cfg,
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}

	seed := lead.Lead{
		Type:             lead.TypeEntryPoint,
		TargetIdentifier: value,
		IdentifierScheme: scheme,
		Priority:         lead.PriorityHighest,
		Confidence:       1.0,
		Context:          "session entry point",
	}
	if _, err := m.queue.Enqueue(ctx, sess.ID, []lead.Lead{seed}, "", 0); err != nil {
		if ferr := m.fail(ctx, sess.ID, StatusInitializing, err.Error()); ferr != nil {
			zap.L().Error("failed to mark unseedable session", zap.Error(ferr))
		}
		return nil, eris.Wrap(err, "session: seed entry point")
	}

	if err := m.store.Transition(ctx, sess.ID, StatusInitializing, StatusRunning); err != nil {
		return nil, err
	}
	sess.Status = StatusRunning

	zap.L().Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("name", name),
		zap.String("entry_scheme", scheme.String()),
	)
	return sess, nil
}

// Get returns a session or nil when it does not exist.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// List returns recent sessions.
func (m *Manager) List(ctx context.Context, limit int) ([]*Session, error) {
	return m.store.List(ctx, limit)
}

// Pause requests a cooperative stop. Workers finish their current batch
// before observing the new status.
func (m *Manager) Pause(ctx context.Context, id string) error {
	return m.transitionFrom(ctx, id, StatusPaused)
}

// Resume re-enters the driving loop without re-seeding.
func (m *Manager) Resume(ctx context.Context, id string) error {
	return m.transitionFrom(ctx, id, StatusRunning)
}

// Complete marks a running session completed.
func (m *Manager) Complete(ctx context.Context, id string) error {
	return m.store.Transition(ctx, id, StatusRunning, StatusCompleted)
}

// Fail marks the session failed with an error message, from whatever
// non-terminal state it is in.
func (m *Manager) Fail(ctx context.Context, id string, msg string) error {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		return eris.Errorf("session: %s not found", id)
	}
	return m.fail(ctx, id, sess.Status, msg)
}

// RecomputeStats rederives and persists the session's aggregates.
func (m *Manager) RecomputeStats(ctx context.Context, id string) (*Stats, error) {
	return m.store.RecomputeStats(ctx, id)
}

// Delete removes a session and everything attached to it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	zap.L().Info("session deleted", zap.String("session_id", id))
	return nil
}

// transitionFrom reads the current status and applies the transition to it,
// so the caller gets ErrInvalidTransition instead of a silent no-op when the
// session is already terminal.
func (m *Manager) transitionFrom(ctx context.Context, id string, to Status) error {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		return eris.Errorf("session: %s not found", id)
	}
	return m.store.Transition(ctx, id, sess.Status, to)
}

func (m *Manager) fail(ctx context.Context, id string, from Status, msg string) error {
	if err := m.store.Transition(ctx, id, from, StatusFailed); err != nil {
		return err
	}
	return m.store.SetError(ctx, id, msg)
}
