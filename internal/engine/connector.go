// Package engine drives discovery sessions: it dequeues leads, resolves or
// ingests their targets through external connectors, extracts follow-up
// leads, and moves the session through its lifecycle.
package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
	"github.com/matbeedotcom/media-transparency-sub001/internal/resilience"
)

// ErrNotFound is returned by connectors when the upstream source has no
// record for the identifier.
var ErrNotFound = eris.New("engine: record not found")

// RelatedParty is one relationship reported by a connector, with a snapshot
// of the counterpart.
type RelatedParty struct {
	Entity     entity.Entity
	RelType    string
	Amount     *float64
	Confidence *float64

	// Inbound means the counterpart is the source of the edge (for example
	// a funder), not the target.
	Inbound bool
}

// Record is a connector's view of one entity. Relationship neighborhoods
// are fetched separately through FetchRelationships.
type Record struct {
	Entity entity.Entity
}

// Connector fetches raw records from one external registry or API. The
// engine treats connectors as opaque collaborators; how a source's data is
// parsed is the connector's business.
type Connector interface {
	Name() string

	// Schemes lists the identifier namespaces this connector can look up.
	Schemes() []entity.Scheme

	// Jurisdictions lists the jurisdictions this connector covers. Empty
	// means any.
	Jurisdictions() []string

	// FetchByIdentifier looks up one record. Returns ErrNotFound when the
	// source has none.
	FetchByIdentifier(ctx context.Context, scheme entity.Scheme, value string) (*Record, error)

	// FetchByName searches by name within a jurisdiction ("" for any).
	FetchByName(ctx context.Context, name, jurisdiction string) (*Record, error)

	// FetchRelationships pulls the relationship neighborhood of an already
	// known entity.
	FetchRelationships(ctx context.Context, e *entity.Entity) ([]RelatedParty, error)
}

// Registry holds the configured connectors and wraps every call with the
// per-call timeout, retry, and the session's rate limit.
type Registry struct {
	connectors []Connector
	timeout    time.Duration
	retry      resilience.RetryConfig
}

// NewRegistry creates a connector registry. timeout bounds each upstream
// call so one slow source cannot stall a batch.
func NewRegistry(timeout time.Duration, retry resilience.RetryConfig, connectors ...Connector) *Registry {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Registry{connectors: connectors, timeout: timeout, retry: retry}
}

// ForScheme returns the connectors able to look up a scheme, filtered by
// jurisdiction when one is known.
func (r *Registry) ForScheme(scheme entity.Scheme, jurisdiction string) []Connector {
	var out []Connector
	for _, c := range r.connectors {
		if !schemeSupported(c, scheme) {
			continue
		}
		if !jurisdictionCovered(c, jurisdiction) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ForJurisdiction returns the connectors covering a jurisdiction.
func (r *Registry) ForJurisdiction(jurisdiction string) []Connector {
	var out []Connector
	for _, c := range r.connectors {
		if jurisdictionCovered(c, jurisdiction) {
			out = append(out, c)
		}
	}
	return out
}

// call runs fn against a connector with the registry's timeout and retry
// policy, waiting on the session limiter first.
func call[T any](ctx context.Context, r *Registry, limiter *rate.Limiter, connector, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return zero, eris.Wrap(err, "engine: rate limit wait")
		}
	}

	retryCfg := r.retry
	retryCfg.OnRetry = resilience.RetryLogger(connector, operation)

	return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return fn(callCtx)
	})
}

func schemeSupported(c Connector, scheme entity.Scheme) bool {
	for _, s := range c.Schemes() {
		if s == scheme {
			return true
		}
	}
	return false
}

func jurisdictionCovered(c Connector, jurisdiction string) bool {
	covered := c.Jurisdictions()
	if len(covered) == 0 || jurisdiction == "" {
		return true
	}
	for _, j := range covered {
		if j == jurisdiction {
			return true
		}
	}
	return false
}
