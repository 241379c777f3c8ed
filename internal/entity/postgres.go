package entity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matbeedotcom/media-transparency-sub001/internal/db"
)

// PostgresGraph implements GraphStore on a relational adjacency model:
// entities, entity_identifiers, and relationships tables.
type PostgresGraph struct {
	pool db.Pool
}

// NewPostgresGraph creates a PostgresGraph.
func NewPostgresGraph(pool db.Pool) *PostgresGraph {
	return &PostgresGraph{pool: pool}
}

const entityColumns = `id, entity_type, name, jurisdiction, city, region,
	postal_code, description, COALESCE(merged_into, ''), created_at, updated_at`

// CreateEntity inserts an entity and its identifiers. A missing ID is
// assigned a fresh UUID.
func (g *PostgresGraph) CreateEntity(ctx context.Context, e *Entity) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := g.pool.Exec(ctx, `
		INSERT INTO entities (id, entity_type, name, normalized_name, jurisdiction,
			city, region, postal_code, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.Type, e.Name, NormalizeName(e.Name), e.Jurisdiction,
		e.City, e.Region, e.PostalCode, e.Description, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "entity: create %s", e.Name)
	}

	for scheme, value := range e.Identifiers {
		if err := g.UpsertIdentifier(ctx, e.ID, scheme, value); err != nil {
			return err
		}
	}
	return nil
}

// UpdateEntity rewrites the mutable entity columns.
func (g *PostgresGraph) UpdateEntity(ctx context.Context, e *Entity) error {
	_, err := g.pool.Exec(ctx, `
		UPDATE entities SET
			name = $2, normalized_name = $3, jurisdiction = $4, city = $5,
			region = $6, postal_code = $7, description = $8, updated_at = now()
		WHERE id = $1`,
		e.ID, e.Name, NormalizeName(e.Name), e.Jurisdiction, e.City,
		e.Region, e.PostalCode, e.Description,
	)
	return eris.Wrapf(err, "entity: update %s", e.ID)
}

// GetEntity loads an entity with its identifiers, or nil when absent.
func (g *PostgresGraph) GetEntity(ctx context.Context, id string) (*Entity, error) {
	row := g.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)

	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "entity: get %s", id)
	}

	if err := g.loadIdentifiers(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// FindByIdentifier looks an entity up by a normalized identifier value.
func (g *PostgresGraph) FindByIdentifier(ctx context.Context, scheme Scheme, value string) (*Entity, error) {
	row := g.pool.QueryRow(ctx, `
		SELECT `+prefixedEntityColumns("e")+`
		FROM entities e
		JOIN entity_identifiers i ON i.entity_id = e.id
		WHERE i.scheme = $1 AND i.value = $2`,
		scheme.String(), scheme.NormalizeIdentifier(value),
	)

	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "entity: find by %s", scheme)
	}

	if err := g.loadIdentifiers(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// FindByNormalizedName looks an entity up by normalized name. When several
// entities share a normalized name the oldest wins; disambiguation is the
// resolver's job, not the lookup's.
func (g *PostgresGraph) FindByNormalizedName(ctx context.Context, name string) (*Entity, error) {
	row := g.pool.QueryRow(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE normalized_name = $1 AND merged_into IS NULL
		ORDER BY created_at
		LIMIT 1`,
		NormalizeName(name),
	)

	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "entity: find by name")
	}

	if err := g.loadIdentifiers(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListByType returns unmerged entities of a type.
func (g *PostgresGraph) ListByType(ctx context.Context, entityType string, limit int) ([]Entity, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := g.pool.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE entity_type = $1 AND merged_into IS NULL
		ORDER BY created_at
		LIMIT $2`,
		entityType, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "entity: list by type")
	}
	defer rows.Close()

	return scanEntities(rows)
}

// ListByJurisdiction returns unmerged entities in a jurisdiction, preferring
// the given region when set.
func (g *PostgresGraph) ListByJurisdiction(ctx context.Context, entityType, jurisdiction, region string, limit int) ([]Entity, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := g.pool.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE entity_type = $1 AND jurisdiction = $2 AND merged_into IS NULL
			AND ($3 = '' OR region = $3 OR region = '')
		ORDER BY (region = $3) DESC, created_at
		LIMIT $4`,
		entityType, jurisdiction, region, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "entity: list by jurisdiction")
	}
	defer rows.Close()

	return scanEntities(rows)
}

// UpsertIdentifier records an identifier for an entity, normalized per scheme.
func (g *PostgresGraph) UpsertIdentifier(ctx context.Context, entityID string, scheme Scheme, value string) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO entity_identifiers (entity_id, scheme, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (scheme, value) DO NOTHING`,
		entityID, scheme.String(), scheme.NormalizeIdentifier(value),
	)
	return eris.Wrapf(err, "entity: upsert identifier %s for %s", scheme, entityID)
}

// CreateRelationship inserts a typed edge; duplicate edges are no-ops and
// report false.
func (g *PostgresGraph) CreateRelationship(ctx context.Context, r *Relationship) (bool, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	tag, err := g.pool.Exec(ctx, `
		INSERT INTO relationships (id, source_id, target_id, rel_type, amount, confidence, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_id, target_id, rel_type) DO NOTHING`,
		r.ID, r.SourceID, r.TargetID, r.Type, r.Amount, r.Confidence, r.Attributes,
	)
	if err != nil {
		return false, eris.Wrapf(err, "entity: create relationship %s", r.Type)
	}
	return tag.RowsAffected() > 0, nil
}

// RelationshipsFor returns every edge incident on an entity.
func (g *PostgresGraph) RelationshipsFor(ctx context.Context, entityID string) ([]Relationship, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT id, source_id, target_id, rel_type, amount, confidence, attributes, created_at
		FROM relationships
		WHERE source_id = $1 OR target_id = $1
		ORDER BY created_at`,
		entityID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "entity: relationships for %s", entityID)
	}
	defer rows.Close()

	var rels []Relationship
	for rows.Next() {
		var r Relationship
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type,
			&r.Amount, &r.Confidence, &r.Attributes, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "entity: scan relationship")
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// TransferRelationships re-points all edges incident on fromID onto toID.
// Edges that would duplicate an existing (source, target, type) edge on the
// surviving node are dropped rather than violating the unique constraint.
func (g *PostgresGraph) TransferRelationships(ctx context.Context, fromID, toID string) (int64, error) {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "entity: begin transfer")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var moved int64
	tag, err := tx.Exec(ctx, `
		UPDATE relationships r SET source_id = $2
		WHERE r.source_id = $1
			AND NOT EXISTS (
				SELECT 1 FROM relationships d
				WHERE d.source_id = $2 AND d.target_id = r.target_id AND d.rel_type = r.rel_type
			)`,
		fromID, toID,
	)
	if err != nil {
		return 0, eris.Wrap(err, "entity: transfer outbound edges")
	}
	moved += tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		UPDATE relationships r SET target_id = $2
		WHERE r.target_id = $1
			AND NOT EXISTS (
				SELECT 1 FROM relationships d
				WHERE d.target_id = $2 AND d.source_id = r.source_id AND d.rel_type = r.rel_type
			)`,
		fromID, toID,
	)
	if err != nil {
		return 0, eris.Wrap(err, "entity: transfer inbound edges")
	}
	moved += tag.RowsAffected()

	// Whatever could not be re-pointed was a would-be duplicate; remove it so
	// the merged node carries no dangling edges.
	tag, err = tx.Exec(ctx,
		`DELETE FROM relationships WHERE source_id = $1 OR target_id = $1`, fromID)
	if err != nil {
		return 0, eris.Wrap(err, "entity: drop duplicate edges")
	}
	if dropped := tag.RowsAffected(); dropped > 0 {
		zap.L().Debug("transfer dropped duplicate edges",
			zap.String("from", fromID),
			zap.String("to", toID),
			zap.Int64("dropped", dropped),
		)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "entity: commit transfer")
	}
	return moved, nil
}

// MarkMerged marks source as merged into target. The source row survives for
// provenance.
func (g *PostgresGraph) MarkMerged(ctx context.Context, sourceID, targetID string) error {
	_, err := g.pool.Exec(ctx,
		`UPDATE entities SET merged_into = $2, updated_at = now() WHERE id = $1`,
		sourceID, targetID,
	)
	return eris.Wrapf(err, "entity: mark %s merged into %s", sourceID, targetID)
}

// CreateSameAs links two entities as the same real-world entity without
// merging either.
func (g *PostgresGraph) CreateSameAs(ctx context.Context, aID, bID string, confidence float64) error {
	_, err := g.CreateRelationship(ctx, &Relationship{
		SourceID:   aID,
		TargetID:   bID,
		Type:       RelSameAs,
		Confidence: &confidence,
	})
	return err
}

// AttachToSession records a discovered entity against a session; re-attaching
// the same pair is a no-op.
func (g *PostgresGraph) AttachToSession(ctx context.Context, sessionID, entityID string, depth int, relevance float64, leadID string) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO session_entities (session_id, entity_id, depth, relevance, lead_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, entity_id) DO NOTHING`,
		sessionID, entityID, depth, relevance, nullable(leadID),
	)
	return eris.Wrapf(err, "entity: attach %s to session %s", entityID, sessionID)
}

// CountSessionEntities returns the number of entities attached to a session.
func (g *PostgresGraph) CountSessionEntities(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := g.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_entities WHERE session_id = $1`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "entity: count session entities")
	}
	return n, nil
}

// DetachSession removes a session's entity links (part of session deletion).
func (g *PostgresGraph) DetachSession(ctx context.Context, sessionID string) error {
	_, err := g.pool.Exec(ctx,
		`DELETE FROM session_entities WHERE session_id = $1`, sessionID)
	return eris.Wrap(err, "entity: detach session")
}

func (g *PostgresGraph) loadIdentifiers(ctx context.Context, e *Entity) error {
	rows, err := g.pool.Query(ctx,
		`SELECT scheme, value FROM entity_identifiers WHERE entity_id = $1`, e.ID)
	if err != nil {
		return eris.Wrapf(err, "entity: load identifiers for %s", e.ID)
	}
	defer rows.Close()

	for rows.Next() {
		var rawScheme, value string
		if err := rows.Scan(&rawScheme, &value); err != nil {
			return eris.Wrap(err, "entity: scan identifier")
		}
		scheme, err := ParseScheme(rawScheme)
		if err != nil {
			zap.L().Warn("skipping identifier with unknown scheme",
				zap.String("entity_id", e.ID),
				zap.String("scheme", rawScheme),
			)
			continue
		}
		if e.Identifiers == nil {
			e.Identifiers = make(map[Scheme]string)
		}
		e.Identifiers[scheme] = value
	}
	return rows.Err()
}

func prefixedEntityColumns(alias string) string {
	return alias + `.id, ` + alias + `.entity_type, ` + alias + `.name, ` +
		alias + `.jurisdiction, ` + alias + `.city, ` + alias + `.region, ` +
		alias + `.postal_code, ` + alias + `.description, COALESCE(` + alias + `.merged_into, ''), ` +
		alias + `.created_at, ` + alias + `.updated_at`
}

func scanEntity(row pgx.Row) (*Entity, error) {
	var e Entity
	err := row.Scan(&e.ID, &e.Type, &e.Name, &e.Jurisdiction, &e.City, &e.Region,
		&e.PostalCode, &e.Description, &e.MergedInto, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEntities(rows pgx.Rows) ([]Entity, error) {
	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Type, &e.Name, &e.Jurisdiction, &e.City, &e.Region,
			&e.PostalCode, &e.Description, &e.MergedInto, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "entity: scan entity")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
