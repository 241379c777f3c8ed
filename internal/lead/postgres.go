package lead

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matbeedotcom/media-transparency-sub001/internal/db"
	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
)

// PostgresQueue implements Queue on the leads table.
type PostgresQueue struct {
	pool db.Pool
}

// NewPostgresQueue creates a PostgresQueue.
func NewPostgresQueue(pool db.Pool) *PostgresQueue {
	return &PostgresQueue{pool: pool}
}

const leadColumns = `id, session_id, lead_type, target_identifier, identifier_scheme,
	priority, confidence, context, source_relationship, funding_amount,
	COALESCE(source_entity_id, ''), depth, status, result, skip_reason, error,
	created_at, updated_at, completed_at`

// Enqueue inserts each lead unless the session already holds an active lead
// for the same (target identifier, scheme). Dedup rides on the partial
// unique index over active leads: a concurrent duplicate blocks on the
// index entry until the first insert commits, then resolves to DO NOTHING.
// A snapshot-based NOT EXISTS guard alone would admit both under read
// committed.
func (q *PostgresQueue) Enqueue(ctx context.Context, sessionID string, leads []Lead, sourceEntityID string, depth int) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}
	if depth < 0 {
		return 0, eris.Errorf("lead: enqueue at negative depth %d", depth)
	}

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "lead: begin enqueue")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted := 0
	for _, l := range leads {
		if err := l.Validate(); err != nil {
			return inserted, err
		}

		target := l.IdentifierScheme.NormalizeIdentifier(l.TargetIdentifier)
		tag, err := tx.Exec(ctx, `
			INSERT INTO leads (id, session_id, lead_type, target_identifier, identifier_scheme,
				priority, confidence, context, source_relationship, funding_amount,
				source_entity_id, depth, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'pending')
			ON CONFLICT DO NOTHING`,
			uuid.NewString(), sessionID, string(l.Type), target, l.IdentifierScheme.String(),
			l.Priority, l.Confidence, l.Context, l.SourceRelationship, l.FundingAmount,
			nullable(sourceEntityID), depth,
		)
		if err != nil {
			return inserted, eris.Wrapf(err, "lead: enqueue %s", target)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return inserted, eris.Wrap(err, "lead: commit enqueue")
	}

	zap.L().Debug("leads enqueued",
		zap.String("session_id", sessionID),
		zap.Int("offered", len(leads)),
		zap.Int("inserted", inserted),
		zap.Int("depth", depth),
	)
	return inserted, nil
}

// Dequeue claims up to batchSize pending leads with FOR UPDATE SKIP LOCKED,
// so concurrent workers never receive overlapping leads.
func (q *PostgresQueue) Dequeue(ctx context.Context, sessionID string, batchSize int) ([]Queued, error) {
	if batchSize <= 0 {
		batchSize = 10
	}

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "lead: begin dequeue")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE session_id = $1 AND status = 'pending'
		ORDER BY priority ASC, confidence DESC, created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		sessionID, batchSize,
	)
	if err != nil {
		return nil, eris.Wrap(err, "lead: claim pending")
	}

	claimed, err := scanQueued(rows)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		_ = tx.Commit(ctx)
		return nil, nil
	}

	ids := make([]string, len(claimed))
	for i := range claimed {
		ids[i] = claimed[i].ID
		claimed[i].Status = StatusInProgress
	}
	if _, err := tx.Exec(ctx, `
		UPDATE leads SET status = 'in_progress', updated_at = now()
		WHERE id = ANY($1)`,
		ids,
	); err != nil {
		return nil, eris.Wrap(err, "lead: mark in progress")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "lead: commit dequeue")
	}
	return claimed, nil
}

// Complete marks a lead completed with its result summary.
func (q *PostgresQueue) Complete(ctx context.Context, leadID string, result Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "lead: marshal result")
	}
	_, err = q.pool.Exec(ctx, `
		UPDATE leads SET status = 'completed', result = $2, updated_at = now(), completed_at = now()
		WHERE id = $1`,
		leadID, resultJSON,
	)
	return eris.Wrapf(err, "lead: complete %s", leadID)
}

// Fail marks a lead failed with the recorded error message.
func (q *PostgresQueue) Fail(ctx context.Context, leadID string, errMsg string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE leads SET status = 'failed', error = $2, updated_at = now(), completed_at = now()
		WHERE id = $1`,
		leadID, errMsg,
	)
	return eris.Wrapf(err, "lead: fail %s", leadID)
}

// Skip marks a lead skipped with a reason.
func (q *PostgresQueue) Skip(ctx context.Context, leadID string, reason string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE leads SET status = 'skipped', skip_reason = $2, updated_at = now(), completed_at = now()
		WHERE id = $1`,
		leadID, reason,
	)
	return eris.Wrapf(err, "lead: skip %s", leadID)
}

// Requeue resets a terminal lead to pending, clearing its outcome. Active
// leads are left alone: resetting an in_progress lead would hand it to a
// second worker while the first still holds it.
func (q *PostgresQueue) Requeue(ctx context.Context, leadID string, newPriority *int) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if newPriority != nil {
		tag, err = q.pool.Exec(ctx, `
			UPDATE leads SET status = 'pending', priority = $2, result = NULL,
				skip_reason = '', error = '', completed_at = NULL, updated_at = now()
			WHERE id = $1 AND status IN ('completed', 'skipped', 'failed')`,
			leadID, ClampPriority(*newPriority),
		)
	} else {
		tag, err = q.pool.Exec(ctx, `
			UPDATE leads SET status = 'pending', result = NULL,
				skip_reason = '', error = '', completed_at = NULL, updated_at = now()
			WHERE id = $1 AND status IN ('completed', 'skipped', 'failed')`,
			leadID,
		)
	}
	if err != nil {
		return eris.Wrapf(err, "lead: requeue %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead: %s is not in a terminal state", leadID)
	}
	return nil
}

// SetPriority changes a pending lead's priority.
func (q *PostgresQueue) SetPriority(ctx context.Context, leadID string, priority int) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE leads SET priority = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		leadID, ClampPriority(priority),
	)
	return eris.Wrapf(err, "lead: set priority %s", leadID)
}

// ListPending returns pending leads in dequeue order, without claiming them.
func (q *PostgresQueue) ListPending(ctx context.Context, sessionID string, limit int) ([]Queued, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE session_id = $1 AND status = 'pending'
		ORDER BY priority ASC, confidence DESC, created_at ASC
		LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "lead: list pending")
	}
	return scanQueued(rows)
}

// Stats aggregates queue counts for a session.
func (q *PostgresQueue) Stats(ctx context.Context, sessionID string) (*Stats, error) {
	stats := &Stats{
		ByStatus:   make(map[Status]int),
		ByType:     make(map[Type]int),
		ByPriority: make(map[int]int),
	}

	rows, err := q.pool.Query(ctx, `
		SELECT status, lead_type, priority, COUNT(*)
		FROM leads
		WHERE session_id = $1
		GROUP BY status, lead_type, priority`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "lead: stats counts")
	}
	defer rows.Close()

	for rows.Next() {
		var status, leadType string
		var priority, count int
		if err := rows.Scan(&status, &leadType, &priority, &count); err != nil {
			return nil, eris.Wrap(err, "lead: scan stats row")
		}
		stats.ByStatus[Status(status)] += count
		stats.ByType[Type(leadType)] += count
		stats.ByPriority[priority] += count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "lead: iterate stats rows")
	}

	err = q.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(confidence), 0)
		FROM leads
		WHERE session_id = $1 AND status = 'pending'`,
		sessionID,
	).Scan(&stats.PendingMeanConfidence)
	if err != nil {
		return nil, eris.Wrap(err, "lead: stats mean confidence")
	}

	return stats, nil
}

func scanQueued(rows pgx.Rows) ([]Queued, error) {
	defer rows.Close()

	var out []Queued
	for rows.Next() {
		var ql Queued
		var leadType, scheme string
		var resultJSON []byte
		if err := rows.Scan(
			&ql.ID, &ql.SessionID, &leadType, &ql.TargetIdentifier, &scheme,
			&ql.Priority, &ql.Confidence, &ql.Context, &ql.SourceRelationship, &ql.FundingAmount,
			&ql.SourceEntityID, &ql.Depth, (*string)(&ql.Status), &resultJSON, &ql.SkipReason, &ql.Error,
			&ql.CreatedAt, &ql.UpdatedAt, &ql.CompletedAt,
		); err != nil {
			return nil, eris.Wrap(err, "lead: scan queued lead")
		}

		ql.Type = Type(leadType)
		parsed, err := entity.ParseScheme(scheme)
		if err != nil {
			return nil, err
		}
		ql.IdentifierScheme = parsed

		if len(resultJSON) > 0 {
			var r Result
			if err := json.Unmarshal(resultJSON, &r); err != nil {
				return nil, eris.Wrap(err, "lead: unmarshal result")
			}
			ql.Result = &r
		}
		out = append(out, ql)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
