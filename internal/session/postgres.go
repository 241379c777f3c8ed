package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matbeedotcom/media-transparency-sub001/internal/db"
	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
)

// PostgresStore implements Store on the sessions table.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const sessionColumns = `id, name, entry_scheme, entry_value, status, config, stats, error,
	created_at, updated_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, sess *Session) error {
	if err := sess.Config.Validate(); err != nil {
		return err
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.Status = StatusInitializing

	configJSON, err := json.Marshal(sess.Config)
	if err != nil {
		return eris.Wrap(err, "session: marshal config")
	}
	statsJSON, err := json.Marshal(sess.Stats)
	if err != nil {
		return eris.Wrap(err, "session: marshal stats")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, name, entry_scheme, entry_value, status, config, stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.ID, sess.Name, sess.EntryScheme.String(), sess.EntryValue,
		string(sess.Status), configJSON, statsJSON,
	)
	return eris.Wrapf(err, "session: create %s", sess.Name)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "session: get %s", id)
	}
	return sess, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "session: list")
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, eris.Wrap(err, "session: scan list row")
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Transition succeeds only when the stored status still matches from, which
// makes pause/resume linearizable across concurrent workers.
func (s *PostgresStore) Transition(ctx context.Context, id string, from, to Status) error {
	if !CanTransition(from, to) {
		return eris.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
	}

	var completedAt any
	if to.Terminal() {
		completedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET status = $3, completed_at = COALESCE($4, completed_at), updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), completedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "session: transition %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrInvalidTransition, "session %s is no longer %s", id, from)
	}

	zap.L().Info("session status changed",
		zap.String("session_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

func (s *PostgresStore) SetError(ctx context.Context, id string, msg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions SET error = $2, updated_at = now() WHERE id = $1`,
		id, msg,
	)
	return eris.Wrapf(err, "session: set error %s", id)
}

// RecomputeStats rederives the aggregates from the leads and
// session_entities tables in one round trip, then persists them. Two workers
// recomputing concurrently write the same values.
func (s *PostgresStore) RecomputeStats(ctx context.Context, id string) (*Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM session_entities WHERE session_id = $1),
			(SELECT COALESCE(SUM((result->>'relationships_created')::int), 0)
				FROM leads WHERE session_id = $1 AND status = 'completed'),
			(SELECT COUNT(*) FROM leads WHERE session_id = $1 AND status = 'completed'),
			(SELECT COUNT(*) FROM leads WHERE session_id = $1 AND status = 'failed'),
			(SELECT COUNT(*) FROM leads WHERE session_id = $1 AND status = 'skipped'),
			(SELECT COUNT(*) FROM leads WHERE session_id = $1 AND status = 'pending'),
			(SELECT COALESCE(AVG(confidence), 0)
				FROM leads WHERE session_id = $1 AND status = 'pending')`,
		id,
	).Scan(
		&stats.EntitiesDiscovered, &stats.RelationshipsDiscovered,
		&stats.LeadsProcessed, &stats.LeadsFailed, &stats.LeadsSkipped,
		&stats.LeadsPending, &stats.PendingMeanConfidence,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "session: recompute stats %s", id)
	}

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return nil, eris.Wrap(err, "session: marshal stats")
	}
	if _, err := s.pool.Exec(ctx, `
		UPDATE sessions SET stats = $2, updated_at = now() WHERE id = $1`,
		id, statsJSON,
	); err != nil {
		return nil, eris.Wrapf(err, "session: persist stats %s", id)
	}
	return &stats, nil
}

// Delete removes the session row. Leads and entity attachments cascade via
// their foreign keys.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return eris.Wrapf(err, "session: delete %s", id)
}

func scanSession(row pgx.Row) (*Session, error) {
	var sess Session
	var scheme, status string
	var configJSON, statsJSON []byte
	err := row.Scan(
		&sess.ID, &sess.Name, &scheme, &sess.EntryValue, &status,
		&configJSON, &statsJSON, &sess.Error,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := entity.ParseScheme(scheme)
	if err != nil {
		return nil, err
	}
	sess.EntryScheme = parsed

	if sess.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(configJSON, &sess.Config); err != nil {
		return nil, eris.Wrap(err, "session: unmarshal config")
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &sess.Stats); err != nil {
			return nil, eris.Wrap(err, "session: unmarshal stats")
		}
	}
	return &sess, nil
}
