package session

import "context"

// Store persists sessions. Transition is the linearization point for the
// state machine: it succeeds only when the session is still in the expected
// source status.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context, limit int) ([]*Session, error)

	// Transition moves a session from→to atomically. Returns
	// ErrInvalidTransition if the pair is not in the state machine or the
	// stored status no longer matches from.
	Transition(ctx context.Context, id string, from, to Status) error

	// SetError records a failure message alongside the failed status.
	SetError(ctx context.Context, id string, msg string) error

	// RecomputeStats rederives aggregate stats from the lead queue and
	// session attachments and persists them. Safe to run redundantly from
	// concurrent workers.
	RecomputeStats(ctx context.Context, id string) (*Stats, error)

	// Delete removes the session, cascading its leads and entity
	// attachments.
	Delete(ctx context.Context, id string) error
}
