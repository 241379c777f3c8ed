package db

import (
	"context"

	"github.com/rotisserie/eris"
)

// schema holds the DDL for all relational tables, applied in order.
// Entities and relationships form the property graph; sessions, leads, and
// reconciliation tasks are the engine's durable state.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		id              TEXT PRIMARY KEY,
		entity_type     TEXT NOT NULL,
		name            TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		jurisdiction    TEXT NOT NULL DEFAULT '',
		city            TEXT NOT NULL DEFAULT '',
		region          TEXT NOT NULL DEFAULT '',
		postal_code     TEXT NOT NULL DEFAULT '',
		description     TEXT NOT NULL DEFAULT '',
		merged_into     TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_normalized_name ON entities (normalized_name)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_type_jurisdiction ON entities (entity_type, jurisdiction)`,

	`CREATE TABLE IF NOT EXISTS entity_identifiers (
		entity_id  TEXT NOT NULL REFERENCES entities(id),
		scheme     TEXT NOT NULL,
		value      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (scheme, value)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entity_identifiers_entity ON entity_identifiers (entity_id)`,

	`CREATE TABLE IF NOT EXISTS relationships (
		id          TEXT PRIMARY KEY,
		source_id   TEXT NOT NULL REFERENCES entities(id),
		target_id   TEXT NOT NULL REFERENCES entities(id),
		rel_type    TEXT NOT NULL,
		amount      DOUBLE PRECISION,
		confidence  DOUBLE PRECISION,
		attributes  JSONB,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (source_id, target_id, rel_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships (source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships (target_id)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		entry_scheme TEXT NOT NULL,
		entry_value  TEXT NOT NULL,
		status       TEXT NOT NULL,
		config       JSONB NOT NULL,
		stats        JSONB NOT NULL DEFAULT '{}',
		error        TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS leads (
		id                  TEXT PRIMARY KEY,
		session_id          TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		lead_type           TEXT NOT NULL,
		target_identifier   TEXT NOT NULL,
		identifier_scheme   TEXT NOT NULL,
		priority            INT NOT NULL,
		confidence          DOUBLE PRECISION NOT NULL,
		context             TEXT NOT NULL DEFAULT '',
		source_relationship TEXT NOT NULL DEFAULT '',
		funding_amount      DOUBLE PRECISION,
		source_entity_id    TEXT,
		depth               INT NOT NULL,
		status              TEXT NOT NULL DEFAULT 'pending',
		result              JSONB,
		skip_reason         TEXT NOT NULL DEFAULT '',
		error               TEXT NOT NULL DEFAULT '',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at        TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_leads_dequeue
		ON leads (session_id, status, priority, confidence DESC, created_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_leads_active_target
		ON leads (session_id, target_identifier, identifier_scheme)
		WHERE status IN ('pending', 'in_progress')`,

	`CREATE TABLE IF NOT EXISTS session_entities (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		entity_id  TEXT NOT NULL REFERENCES entities(id),
		depth      INT NOT NULL,
		relevance  DOUBLE PRECISION NOT NULL,
		lead_id    TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (session_id, entity_id)
	)`,

	`CREATE TABLE IF NOT EXISTS reconciliation_tasks (
		id                  TEXT PRIMARY KEY,
		source_entity_id    TEXT NOT NULL REFERENCES entities(id),
		candidate_entity_id TEXT NOT NULL REFERENCES entities(id),
		confidence          DOUBLE PRECISION NOT NULL,
		strategy            TEXT NOT NULL,
		priority            TEXT NOT NULL,
		status              TEXT NOT NULL DEFAULT 'pending',
		action              TEXT NOT NULL DEFAULT '',
		reviewer            TEXT NOT NULL DEFAULT '',
		notes               TEXT NOT NULL DEFAULT '',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		resolved_at         TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recon_status ON reconciliation_tasks (status, priority)`,
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "db: apply schema")
		}
	}
	return nil
}
