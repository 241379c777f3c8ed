package resolver

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/matbeedotcom/media-transparency-sub001/internal/db"
)

// PostgresTaskStore implements TaskStore on the reconciliation_tasks table.
type PostgresTaskStore struct {
	pool db.Pool
}

// NewPostgresTaskStore creates a PostgresTaskStore.
func NewPostgresTaskStore(pool db.Pool) *PostgresTaskStore {
	return &PostgresTaskStore{pool: pool}
}

const taskColumns = `id, source_entity_id, candidate_entity_id, confidence, strategy,
	priority, status, action, reviewer, notes, created_at, resolved_at`

func (s *PostgresTaskStore) Create(ctx context.Context, t *Task) (*Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = TaskPending

	_, err := s.pool.Exec(ctx, `
		INSERT INTO reconciliation_tasks
			(id, source_entity_id, candidate_entity_id, confidence, strategy, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')`,
		t.ID, t.SourceEntityID, t.CandidateEntityID, t.Confidence,
		t.Strategy, string(t.Priority),
	)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: create task")
	}
	return t, nil
}

func (s *PostgresTaskStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM reconciliation_tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "resolver: get task %s", id)
	}
	return t, nil
}

func (s *PostgresTaskStore) List(ctx context.Context, status TaskStatus, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM reconciliation_tasks
		WHERE status = $1
		ORDER BY
			CASE priority
				WHEN 'critical' THEN 0
				WHEN 'high' THEN 1
				WHEN 'medium' THEN 2
				ELSE 3
			END,
			created_at ASC
		LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: list tasks")
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "resolver: scan task row")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresTaskStore) Claim(ctx context.Context, id string, reviewer string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reconciliation_tasks SET status = 'in_progress', reviewer = $2
		WHERE id = $1 AND status = 'pending'`,
		id, reviewer,
	)
	if err != nil {
		return eris.Wrapf(err, "resolver: claim task %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("resolver: task %s is not pending", id)
	}
	return nil
}

func (s *PostgresTaskStore) Complete(ctx context.Context, id string, action Action, reviewer, notes string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reconciliation_tasks
		SET status = 'completed', action = $2, reviewer = $3, notes = $4, resolved_at = now()
		WHERE id = $1 AND status <> 'completed'`,
		id, string(action), reviewer, notes,
	)
	if err != nil {
		return eris.Wrapf(err, "resolver: complete task %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrTaskCompleted, "task %s", id)
	}
	return nil
}

func (s *PostgresTaskStore) Release(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reconciliation_tasks SET status = 'pending', reviewer = ''
		WHERE id = $1 AND status = 'in_progress'`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "resolver: release task %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("resolver: task %s is not in progress", id)
	}
	return nil
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	var priority, status, action string
	err := row.Scan(
		&t.ID, &t.SourceEntityID, &t.CandidateEntityID, &t.Confidence, &t.Strategy,
		&priority, &status, &action, &t.Reviewer, &t.Notes,
		&t.CreatedAt, &t.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Priority = TaskPriority(priority)
	t.Status = TaskStatus(status)
	t.Action = Action(action)
	return &t, nil
}
