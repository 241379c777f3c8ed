package entity

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrNoBulkTransfer is returned by graph stores that cannot re-point
// relationships in bulk. Merge callers must then report a degraded outcome
// instead of silently leaving edges behind.
var ErrNoBulkTransfer = eris.New("entity: graph store lacks bulk relationship transfer")

// GraphStore is the property-graph persistence contract.
type GraphStore interface {
	CreateEntity(ctx context.Context, e *Entity) error
	UpdateEntity(ctx context.Context, e *Entity) error
	GetEntity(ctx context.Context, id string) (*Entity, error)
	FindByIdentifier(ctx context.Context, scheme Scheme, value string) (*Entity, error)
	FindByNormalizedName(ctx context.Context, name string) (*Entity, error)
	ListByType(ctx context.Context, entityType string, limit int) ([]Entity, error)
	ListByJurisdiction(ctx context.Context, entityType, jurisdiction, region string, limit int) ([]Entity, error)
	UpsertIdentifier(ctx context.Context, entityID string, scheme Scheme, value string) error

	// CreateRelationship inserts a typed edge. A duplicate
	// (source, target, type) edge is a no-op; the bool reports whether a
	// new edge was actually written.
	CreateRelationship(ctx context.Context, r *Relationship) (bool, error)
	RelationshipsFor(ctx context.Context, entityID string) ([]Relationship, error)

	// TransferRelationships re-points every edge incident on fromID onto
	// toID and returns the number moved. Stores without a bulk rewrite
	// primitive return ErrNoBulkTransfer.
	TransferRelationships(ctx context.Context, fromID, toID string) (int64, error)
	MarkMerged(ctx context.Context, sourceID, targetID string) error
	CreateSameAs(ctx context.Context, aID, bID string, confidence float64) error

	// AttachToSession records an entity against a session. Idempotent: a
	// second attach of the same (session, entity) pair is a no-op.
	AttachToSession(ctx context.Context, sessionID, entityID string, depth int, relevance float64, leadID string) error
	CountSessionEntities(ctx context.Context, sessionID string) (int, error)
	DetachSession(ctx context.Context, sessionID string) error
}
