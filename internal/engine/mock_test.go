package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
	"github.com/matbeedotcom/media-transparency-sub001/internal/lead"
	"github.com/matbeedotcom/media-transparency-sub001/internal/session"
)

// memQueue is an in-memory lead.Queue with the same dedup and ordering
// contract as the Postgres implementation.
type memQueue struct {
	mu    sync.Mutex
	seq   int
	leads map[string]*lead.Queued
}

func newMemQueue() *memQueue {
	return &memQueue{leads: make(map[string]*lead.Queued)}
}

func (q *memQueue) Enqueue(_ context.Context, sessionID string, leads []lead.Lead, sourceEntityID string, depth int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	inserted := 0
	for _, l := range leads {
		if err := l.Validate(); err != nil {
			return inserted, err
		}
		target := l.IdentifierScheme.NormalizeIdentifier(l.TargetIdentifier)

		dup := false
		for _, existing := range q.leads {
			if existing.SessionID == sessionID &&
				existing.TargetIdentifier == target &&
				existing.IdentifierScheme == l.IdentifierScheme &&
				!existing.Status.Terminal() {
				dup = true
				break
			}
		}
		if dup {
			continue
		}

		q.seq++
		ql := &lead.Queued{
			ID:             uuid.NewString(),
			SessionID:      sessionID,
			Lead:           l,
			SourceEntityID: sourceEntityID,
			Depth:          depth,
			Status:         lead.StatusPending,
		}
		ql.TargetIdentifier = target
		q.leads[ql.ID] = ql
		inserted++
	}
	return inserted, nil
}

func (q *memQueue) Dequeue(_ context.Context, sessionID string, batchSize int) ([]lead.Queued, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var pending []*lead.Queued
	for _, ql := range q.leads {
		if ql.SessionID == sessionID && ql.Status == lead.StatusPending {
			pending = append(pending, ql)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority < pending[j].Priority
		}
		if pending[i].Confidence != pending[j].Confidence {
			return pending[i].Confidence > pending[j].Confidence
		}
		return pending[i].ID < pending[j].ID
	})

	if len(pending) > batchSize {
		pending = pending[:batchSize]
	}
	out := make([]lead.Queued, len(pending))
	for i, ql := range pending {
		ql.Status = lead.StatusInProgress
		out[i] = *ql
	}
	return out, nil
}

func (q *memQueue) Complete(_ context.Context, leadID string, result lead.Result) error {
	return q.finish(leadID, lead.StatusCompleted, func(ql *lead.Queued) { ql.Result = &result })
}

func (q *memQueue) Fail(_ context.Context, leadID string, errMsg string) error {
	return q.finish(leadID, lead.StatusFailed, func(ql *lead.Queued) { ql.Error = errMsg })
}

func (q *memQueue) Skip(_ context.Context, leadID string, reason string) error {
	return q.finish(leadID, lead.StatusSkipped, func(ql *lead.Queued) { ql.SkipReason = reason })
}

func (q *memQueue) finish(leadID string, status lead.Status, apply func(*lead.Queued)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ql, ok := q.leads[leadID]
	if !ok {
		return eris.Errorf("lead %s not found", leadID)
	}
	ql.Status = status
	apply(ql)
	return nil
}

func (q *memQueue) Requeue(_ context.Context, leadID string, newPriority *int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ql, ok := q.leads[leadID]
	if !ok {
		return eris.Errorf("lead %s not found", leadID)
	}
	if !ql.Status.Terminal() {
		return eris.Errorf("lead %s is not in a terminal state", leadID)
	}
	ql.Status = lead.StatusPending
	if newPriority != nil {
		ql.Priority = lead.ClampPriority(*newPriority)
	}
	return nil
}

func (q *memQueue) SetPriority(_ context.Context, leadID string, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ql, ok := q.leads[leadID]; ok {
		ql.Priority = lead.ClampPriority(priority)
	}
	return nil
}

func (q *memQueue) ListPending(_ context.Context, sessionID string, _ int) ([]lead.Queued, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []lead.Queued
	for _, ql := range q.leads {
		if ql.SessionID == sessionID && ql.Status == lead.StatusPending {
			out = append(out, *ql)
		}
	}
	return out, nil
}

func (q *memQueue) Stats(_ context.Context, sessionID string) (*lead.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := &lead.Stats{
		ByStatus:   make(map[lead.Status]int),
		ByType:     make(map[lead.Type]int),
		ByPriority: make(map[int]int),
	}
	for _, ql := range q.leads {
		if ql.SessionID != sessionID {
			continue
		}
		stats.Total++
		stats.ByStatus[ql.Status]++
		stats.ByType[ql.Type]++
		stats.ByPriority[ql.Priority]++
	}
	return stats, nil
}

func (q *memQueue) all() []lead.Queued {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]lead.Queued, 0, len(q.leads))
	for _, ql := range q.leads {
		out = append(out, *ql)
	}
	return out
}

// memGraph is an in-memory entity.GraphStore covering what the processor
// touches.
type memGraph struct {
	entity.GraphStore

	mu            sync.Mutex
	entities      map[string]*entity.Entity
	relationships []entity.Relationship
	attached      map[string]map[string]bool
}

func newMemGraph() *memGraph {
	return &memGraph{
		entities: make(map[string]*entity.Entity),
		attached: make(map[string]map[string]bool),
	}
}

func (g *memGraph) CreateEntity(_ context.Context, e *entity.Entity) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	cp := *e
	g.entities[e.ID] = &cp
	return nil
}

func (g *memGraph) GetEntity(_ context.Context, id string) (*entity.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entities[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (g *memGraph) FindByIdentifier(_ context.Context, scheme entity.Scheme, value string) (*entity.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	norm := scheme.NormalizeIdentifier(value)
	for _, e := range g.entities {
		if e.Identifiers != nil && scheme.NormalizeIdentifier(e.Identifiers[scheme]) == norm && e.Identifiers[scheme] != "" {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (g *memGraph) FindByNormalizedName(_ context.Context, name string) (*entity.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	norm := entity.NormalizeName(name)
	for _, e := range g.entities {
		if entity.NormalizeName(e.Name) == norm {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (g *memGraph) ListByJurisdiction(_ context.Context, entityType, jurisdiction, _ string, _ int) ([]entity.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []entity.Entity
	for _, e := range g.entities {
		if e.Type == entityType && (jurisdiction == "" || e.Jurisdiction == jurisdiction) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (g *memGraph) UpsertIdentifier(_ context.Context, entityID string, scheme entity.Scheme, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entities[entityID]
	if !ok {
		return eris.Errorf("entity %s not found", entityID)
	}
	if e.Identifiers == nil {
		e.Identifiers = make(map[entity.Scheme]string)
	}
	e.Identifiers[scheme] = scheme.NormalizeIdentifier(value)
	return nil
}

func (g *memGraph) CreateRelationship(_ context.Context, r *entity.Relationship) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.relationships {
		if existing.SourceID == r.SourceID && existing.TargetID == r.TargetID && existing.Type == r.Type {
			return false, nil
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	g.relationships = append(g.relationships, *r)
	return true, nil
}

func (g *memGraph) RelationshipsFor(_ context.Context, entityID string) ([]entity.Relationship, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []entity.Relationship
	for _, r := range g.relationships {
		if r.SourceID == entityID || r.TargetID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (g *memGraph) AttachToSession(_ context.Context, sessionID, entityID string, _ int, _ float64, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.attached[sessionID] == nil {
		g.attached[sessionID] = make(map[string]bool)
	}
	g.attached[sessionID][entityID] = true
	return nil
}

func (g *memGraph) CountSessionEntities(_ context.Context, sessionID string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.attached[sessionID]), nil
}

// memSessionStore is an in-memory session.Store.
type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	queue    *memQueue
	graph    *memGraph
}

func newMemSessionStore(queue *memQueue, graph *memGraph) *memSessionStore {
	return &memSessionStore{
		sessions: make(map[string]*session.Session),
		queue:    queue,
		graph:    graph,
	}
}

func (s *memSessionStore) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.Status = session.StatusInitializing
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memSessionStore) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *memSessionStore) List(_ context.Context, _ int) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*session.Session
	for _, sess := range s.sessions {
		cp := *sess
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memSessionStore) Transition(_ context.Context, id string, from, to session.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !session.CanTransition(from, to) {
		return eris.Wrapf(session.ErrInvalidTransition, "%s -> %s", from, to)
	}
	sess, ok := s.sessions[id]
	if !ok || sess.Status != from {
		return eris.Wrapf(session.ErrInvalidTransition, "session %s is no longer %s", id, from)
	}
	sess.Status = to
	return nil
}

func (s *memSessionStore) SetError(_ context.Context, id string, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.Error = msg
	}
	return nil
}

func (s *memSessionStore) RecomputeStats(ctx context.Context, id string) (*session.Stats, error) {
	queueStats, err := s.queue.Stats(ctx, id)
	if err != nil {
		return nil, err
	}
	entities, err := s.graph.CountSessionEntities(ctx, id)
	if err != nil {
		return nil, err
	}

	relationships := 0
	for _, ql := range s.queue.all() {
		if ql.SessionID == id && ql.Result != nil {
			relationships += ql.Result.RelationshipsCreated
		}
	}

	stats := &session.Stats{
		EntitiesDiscovered:      entities,
		RelationshipsDiscovered: relationships,
		LeadsProcessed:          queueStats.ByStatus[lead.StatusCompleted],
		LeadsFailed:             queueStats.ByStatus[lead.StatusFailed],
		LeadsSkipped:            queueStats.ByStatus[lead.StatusSkipped],
		LeadsPending:            queueStats.ByStatus[lead.StatusPending],
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.Stats = *stats
	}
	return stats, nil
}

func (s *memSessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// stubConnector serves canned records keyed by normalized identifier.
type stubConnector struct {
	name          string
	schemes       []entity.Scheme
	jurisdictions []string

	records   map[string]*Record
	relations map[string][]RelatedParty

	fetchErr  error
	relErr    error
	fetchHook func()
}

func (c *stubConnector) Name() string             { return c.name }
func (c *stubConnector) Schemes() []entity.Scheme { return c.schemes }
func (c *stubConnector) Jurisdictions() []string  { return c.jurisdictions }

func (c *stubConnector) FetchByIdentifier(_ context.Context, scheme entity.Scheme, value string) (*Record, error) {
	if c.fetchHook != nil {
		c.fetchHook()
	}
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	r, ok := c.records[scheme.NormalizeIdentifier(value)]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (c *stubConnector) FetchByName(_ context.Context, name, _ string) (*Record, error) {
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	r, ok := c.records[entity.SchemeName.NormalizeIdentifier(name)]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// Relationship neighborhoods are keyed by normalized entity name, since
// entity ids are assigned at ingest time.
func (c *stubConnector) FetchRelationships(_ context.Context, e *entity.Entity) ([]RelatedParty, error) {
	if c.relErr != nil {
		return nil, c.relErr
	}
	return c.relations[entity.NormalizeName(e.Name)], nil
}
