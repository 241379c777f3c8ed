package lead

import "context"

// Queue is the durable lead queue contract. The dedup guarantee: at most one
// lead per (session, target identifier, identifier scheme) in a non-terminal
// state at any time. Dequeue is the concurrency contract: concurrent callers
// never receive overlapping leads.
type Queue interface {
	// Enqueue inserts leads at the given depth unless an active duplicate
	// exists in the session. Returns the count actually inserted.
	Enqueue(ctx context.Context, sessionID string, leads []Lead, sourceEntityID string, depth int) (int, error)

	// Dequeue atomically claims up to batchSize pending leads ordered by
	// priority ascending, confidence descending, creation time ascending,
	// and transitions them to in_progress.
	Dequeue(ctx context.Context, sessionID string, batchSize int) ([]Queued, error)

	Complete(ctx context.Context, leadID string, result Result) error
	Fail(ctx context.Context, leadID string, errMsg string) error
	Skip(ctx context.Context, leadID string, reason string) error

	// Requeue resets a lead to pending, optionally with a new priority. It is
	// the only transition out of a terminal state.
	Requeue(ctx context.Context, leadID string, newPriority *int) error

	SetPriority(ctx context.Context, leadID string, priority int) error
	ListPending(ctx context.Context, sessionID string, limit int) ([]Queued, error)
	Stats(ctx context.Context, sessionID string) (*Stats, error)
}
