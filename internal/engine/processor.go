package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
	"github.com/matbeedotcom/media-transparency-sub001/internal/extract"
	"github.com/matbeedotcom/media-transparency-sub001/internal/lead"
	"github.com/matbeedotcom/media-transparency-sub001/internal/match"
	"github.com/matbeedotcom/media-transparency-sub001/internal/resolver"
	"github.com/matbeedotcom/media-transparency-sub001/internal/session"
)

const candidateLimit = 200

// Processor runs one lead through its six steps. Lookup and connector
// failures become failed leads; they never abort the driving loop.
type Processor struct {
	graph      entity.GraphStore
	queue      lead.Queue
	resolver   *resolver.Resolver
	registry   *Registry
	extractors *extract.Registry
	lookups    *cache.Cache
}

// NewProcessor creates a Processor. lookups caches identifier resolutions
// for the duration of a run so hot entities are not re-fetched per lead.
func NewProcessor(graph entity.GraphStore, queue lead.Queue, r *resolver.Resolver, registry *Registry, extractors *extract.Registry, lookups *cache.Cache) *Processor {
	return &Processor{
		graph:      graph,
		queue:      queue,
		resolver:   r,
		registry:   registry,
		extractors: extractors,
		lookups:    lookups,
	}
}

// ProcessLead handles one claimed lead end to end and records its terminal
// status. The returned status is what the lead ended as; err is only set
// when recording the outcome itself failed.
func (p *Processor) ProcessLead(ctx context.Context, sess *session.Session, limiter *rate.Limiter, ql lead.Queued) (lead.Status, error) {
	log := zap.L().With(
		zap.String("session_id", sess.ID),
		zap.String("lead_id", ql.ID),
		zap.String("lead_type", string(ql.Type)),
		zap.Int("depth", ql.Depth),
	)

	// Step 1: depth gate.
	if ql.Depth >= sess.Config.MaxDepth {
		return lead.StatusFailed, p.queue.Fail(ctx, ql.ID, "max depth reached")
	}

	// Step 2: resolve the target locally or ingest it from a connector.
	target, newEntity, err := p.resolveTarget(ctx, sess, limiter, ql)
	if err != nil {
		log.Warn("lead target resolution failed", zap.Error(err))
		return lead.StatusFailed, p.queue.Fail(ctx, ql.ID, err.Error())
	}
	if target == nil {
		// Not-found is a valid lookup outcome, but a lead that no source
		// can resolve has failed its unit of work.
		return lead.StatusFailed, p.queue.Fail(ctx, ql.ID, "target not found in any configured source")
	}

	// Step 3: attach to the session. Idempotent for re-discovered entities.
	if err := p.graph.AttachToSession(ctx, sess.ID, target.ID, ql.Depth, ql.Confidence, ql.ID); err != nil {
		return lead.StatusFailed, p.queue.Fail(ctx, ql.ID, err.Error())
	}

	// Step 4: active relationship discovery. Per-connector failures are
	// accumulated; one bad source does not abort the others.
	relsCreated, connectorErrs := p.discoverRelationships(ctx, target, limiter)
	if len(connectorErrs) > 0 {
		log.Warn("partial relationship discovery",
			zap.Int("failed_connectors", len(connectorErrs)),
			zap.String("errors", strings.Join(connectorErrs, "; ")),
		)
	}

	// Step 5: extraction, filtered and enqueued at depth+1. Never enqueue
	// at or beyond max depth.
	leadsGenerated := 0
	if ql.Depth+1 < sess.Config.MaxDepth {
		leadsGenerated, err = p.extractLeads(ctx, sess, target, ql.Depth)
		if err != nil {
			return lead.StatusFailed, p.queue.Fail(ctx, ql.ID, err.Error())
		}
	}

	// Step 6: terminal mark.
	result := lead.Result{
		EntityID:             target.ID,
		NewEntity:            newEntity,
		RelationshipsCreated: relsCreated,
		LeadsGenerated:       leadsGenerated,
	}
	if err := p.queue.Complete(ctx, ql.ID, result); err != nil {
		return lead.StatusFailed, err
	}

	log.Debug("lead completed",
		zap.String("entity_id", target.ID),
		zap.Bool("new_entity", newEntity),
		zap.Int("relationships", relsCreated),
		zap.Int("leads_generated", leadsGenerated),
	)
	return lead.StatusCompleted, nil
}

// resolveTarget maps the lead's identifier to an entity, consulting the
// local graph first and the connectors second. A nil entity with nil error
// means no source has a record.
func (p *Processor) resolveTarget(ctx context.Context, sess *session.Session, limiter *rate.Limiter, ql lead.Queued) (*entity.Entity, bool, error) {
	if ql.IdentifierScheme == entity.SchemeEntityID {
		e, err := p.graph.GetEntity(ctx, ql.TargetIdentifier)
		if err != nil {
			return nil, false, err
		}
		if e == nil {
			return nil, false, eris.Errorf("engine: entity %s does not exist", ql.TargetIdentifier)
		}
		return p.followMerge(ctx, e)
	}

	cacheKey := fmt.Sprintf("%s:%s", ql.IdentifierScheme, ql.IdentifierScheme.NormalizeIdentifier(ql.TargetIdentifier))
	if cached, ok := p.lookups.Get(cacheKey); ok {
		e, err := p.graph.GetEntity(ctx, cached.(string))
		if err != nil {
			return nil, false, err
		}
		if e != nil {
			return e, false, nil
		}
	}

	local, err := p.lookupLocal(ctx, ql)
	if err != nil {
		return nil, false, err
	}
	if local != nil {
		p.lookups.SetDefault(cacheKey, local.ID)
		return local, false, nil
	}

	record, err := p.fetchRecord(ctx, limiter, ql)
	if err != nil {
		return nil, false, err
	}
	if record == nil {
		return nil, false, nil
	}

	target, created, err := p.ingest(ctx, sess, &record.Entity)
	if err != nil {
		return nil, false, err
	}
	p.lookups.SetDefault(cacheKey, target.ID)
	return target, created, nil
}

// followMerge redirects a merged-away entity to its survivor.
func (p *Processor) followMerge(ctx context.Context, e *entity.Entity) (*entity.Entity, bool, error) {
	for e.MergedInto != "" {
		next, err := p.graph.GetEntity(ctx, e.MergedInto)
		if err != nil {
			return nil, false, err
		}
		if next == nil {
			break
		}
		e = next
	}
	return e, false, nil
}

func (p *Processor) lookupLocal(ctx context.Context, ql lead.Queued) (*entity.Entity, error) {
	if ql.IdentifierScheme == entity.SchemeName {
		return p.graph.FindByNormalizedName(ctx, ql.TargetIdentifier)
	}
	return p.graph.FindByIdentifier(ctx, ql.IdentifierScheme, ql.TargetIdentifier)
}

// fetchRecord tries every connector able to look up the lead's scheme and
// returns the first record found.
func (p *Processor) fetchRecord(ctx context.Context, limiter *rate.Limiter, ql lead.Queued) (*Record, error) {
	connectors := p.registry.ForScheme(ql.IdentifierScheme, "")
	if len(connectors) == 0 {
		return nil, nil
	}

	var lastErr error
	for _, c := range connectors {
		record, err := call(ctx, p.registry, limiter, c.Name(), "fetch", func(ctx context.Context) (*Record, error) {
			if ql.IdentifierScheme == entity.SchemeName {
				return c.FetchByName(ctx, ql.TargetIdentifier, "")
			}
			return c.FetchByIdentifier(ctx, ql.IdentifierScheme, ql.TargetIdentifier)
		})
		if eris.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			lastErr = eris.Wrapf(err, "engine: connector %s", c.Name())
			continue
		}
		if record != nil {
			return record, nil
		}
	}
	return nil, lastErr
}

// ingest resolves a fetched snapshot against the known graph, reusing an
// existing entity on a confident match and creating a new one otherwise.
func (p *Processor) ingest(ctx context.Context, sess *session.Session, snapshot *entity.Entity) (*entity.Entity, bool, error) {
	candidates, err := p.candidatesFor(ctx, snapshot)
	if err != nil {
		return nil, false, err
	}

	res := p.resolver.Resolve(ctx, match.CandidateFrom(snapshot), candidates, true)
	if res.State == resolver.StateResolved && res.Match != nil {
		existing, err := p.graph.GetEntity(ctx, res.Match.Target.EntityID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			// Carry over any identifiers the source knew and we did not.
			for scheme, value := range snapshot.Identifiers {
				if _, ok := existing.Identifiers[scheme]; !ok {
					if err := p.graph.UpsertIdentifier(ctx, existing.ID, scheme, value); err != nil {
						return nil, false, err
					}
					existing.Identifiers[scheme] = scheme.NormalizeIdentifier(value)
				}
			}
			return existing, false, nil
		}
	}

	if !sess.Config.JurisdictionAllowed(snapshot.Jurisdiction) {
		return nil, false, eris.Errorf("engine: jurisdiction %s excluded by session config", snapshot.Jurisdiction)
	}
	if err := p.graph.CreateEntity(ctx, snapshot); err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

func (p *Processor) candidatesFor(ctx context.Context, snapshot *entity.Entity) ([]match.Candidate, error) {
	entities, err := p.graph.ListByJurisdiction(ctx, snapshot.Type, snapshot.Jurisdiction, "", candidateLimit)
	if err != nil {
		return nil, err
	}
	candidates := make([]match.Candidate, len(entities))
	for i := range entities {
		candidates[i] = match.CandidateFrom(&entities[i])
	}
	return candidates, nil
}

// discoverRelationships asks every connector covering the entity's
// jurisdiction for its relationship neighborhood and records the edges.
func (p *Processor) discoverRelationships(ctx context.Context, target *entity.Entity, limiter *rate.Limiter) (int, []string) {
	created := 0
	var failures []string

	for _, c := range p.registry.ForJurisdiction(target.Jurisdiction) {
		parties, err := call(ctx, p.registry, limiter, c.Name(), "relationships", func(ctx context.Context) ([]RelatedParty, error) {
			return c.FetchRelationships(ctx, target)
		})
		if eris.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", c.Name(), err))
			continue
		}

		for _, party := range parties {
			n, err := p.recordRelationship(ctx, target, party)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", c.Name(), err))
				continue
			}
			created += n
		}
	}
	return created, failures
}

func (p *Processor) recordRelationship(ctx context.Context, target *entity.Entity, party RelatedParty) (int, error) {
	counterpart, err := p.findOrCreate(ctx, &party.Entity)
	if err != nil {
		return 0, err
	}

	rel := &entity.Relationship{
		SourceID:   target.ID,
		TargetID:   counterpart.ID,
		Type:       party.RelType,
		Amount:     party.Amount,
		Confidence: party.Confidence,
	}
	if party.Inbound {
		rel.SourceID, rel.TargetID = rel.TargetID, rel.SourceID
	}
	created, err := p.graph.CreateRelationship(ctx, rel)
	if err != nil {
		return 0, err
	}
	if !created {
		return 0, nil
	}
	return 1, nil
}

// findOrCreate locates a counterpart by identifier or normalized name,
// creating it when genuinely new.
func (p *Processor) findOrCreate(ctx context.Context, snapshot *entity.Entity) (*entity.Entity, error) {
	for scheme, value := range snapshot.Identifiers {
		if !scheme.Recognized() {
			continue
		}
		existing, err := p.graph.FindByIdentifier(ctx, scheme, value)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	existing, err := p.graph.FindByNormalizedName(ctx, snapshot.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if err := p.graph.CreateEntity(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// extractLeads runs the applicable extractors over the entity's
// neighborhood, filters by the session config, and enqueues survivors one
// level deeper.
func (p *Processor) extractLeads(ctx context.Context, sess *session.Session, target *entity.Entity, depth int) (int, error) {
	extractors := p.extractors.For(target.Type)
	if len(extractors) == 0 {
		return 0, nil
	}

	rels, err := p.graph.RelationshipsFor(ctx, target.ID)
	if err != nil {
		return 0, err
	}

	neighbors := make([]extract.Neighbor, 0, len(rels))
	for _, rel := range rels {
		n := extract.Neighbor{Relationship: rel}
		if counterpartID := rel.CounterpartOf(target.ID); counterpartID != "" {
			if n.Entity, err = p.graph.GetEntity(ctx, counterpartID); err != nil {
				return 0, err
			}
		}
		neighbors = append(neighbors, n)
	}

	var followed []lead.Lead
	for _, ex := range extractors {
		for _, l := range ex.Extract(ctx, target, neighbors) {
			ok, reason := extract.ShouldFollow(l, sess.Config)
			if !ok {
				zap.L().Debug("lead filtered",
					zap.String("extractor", ex.Name()),
					zap.String("lead_type", string(l.Type)),
					zap.String("reason", reason),
				)
				continue
			}
			l.Priority = sess.Config.BoostedPriority(l.Type, l.Priority)
			followed = append(followed, l)
		}
	}
	if len(followed) == 0 {
		return 0, nil
	}

	return p.queue.Enqueue(ctx, sess.ID, followed, target.ID, depth+1)
}
