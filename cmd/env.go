package main

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"

	"github.com/matbeedotcom/media-transparency-sub001/internal/db"
	"github.com/matbeedotcom/media-transparency-sub001/internal/engine"
	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
	"github.com/matbeedotcom/media-transparency-sub001/internal/extract"
	"github.com/matbeedotcom/media-transparency-sub001/internal/lead"
	"github.com/matbeedotcom/media-transparency-sub001/internal/match"
	"github.com/matbeedotcom/media-transparency-sub001/internal/resilience"
	"github.com/matbeedotcom/media-transparency-sub001/internal/resolver"
	"github.com/matbeedotcom/media-transparency-sub001/internal/session"
)

// env holds the long-lived object graph for one process: pool, stores,
// resolver, and engine, wired once and passed explicitly.
type env struct {
	pool       db.Pool
	graph      entity.GraphStore
	queue      lead.Queue
	manager    *session.Manager
	resolver   *resolver.Resolver
	crossJuris *resolver.CrossJurisdiction
	tasks      resolver.TaskStore
	reconciler *resolver.Reconciler
	engine     *engine.Engine
}

func (e *env) Close() {
	e.pool.Close()
}

// initEnv connects to the store and builds the engine. Connectors are
// deployment-specific and registered here when configured; a bare install
// runs against the local graph only.
func initEnv(ctx context.Context) (*env, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("store.database_url is not configured")
	}

	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	if err != nil {
		return nil, err
	}

	graph := entity.NewPostgresGraph(pool)
	queue := lead.NewPostgresQueue(pool)
	sessions := session.NewPostgresStore(pool)
	manager := session.NewManager(sessions, queue)
	tasks := resolver.NewPostgresTaskStore(pool)

	embedder := match.NewOpenAIEmbedder(cfg.Embeddings.APIKey, cfg.Embeddings.BaseURL, cfg.Embeddings.Model)
	similarity := match.NewSimilarity(embedder)

	thresholds := resolver.Thresholds{
		Fuzzy:      cfg.Resolver.FuzzyThreshold,
		AutoMerge:  cfg.Resolver.AutoMergeThreshold,
		Review:     cfg.Resolver.ReviewThreshold,
		ScoreFloor: cfg.Resolver.ScoreFloor,
	}
	if thresholds.Fuzzy == 0 {
		thresholds = resolver.DefaultThresholds()
	}

	hybrid := match.NewHybrid(thresholds.ScoreFloor, similarity)
	res := resolver.New(graph, hybrid, thresholds)

	retryCfg := resilience.DefaultRetryConfig()
	if cfg.Engine.ConnectorMaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.Engine.ConnectorMaxAttempts
	}
	registry := engine.NewRegistry(cfg.Engine.ConnectorTimeout, retryCfg)

	cacheTTL := cfg.Engine.LookupCacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	processor := engine.NewProcessor(graph, queue, res, registry, extract.DefaultRegistry(),
		cache.New(cacheTTL, 2*cacheTTL))

	return &env{
		pool:       pool,
		graph:      graph,
		queue:      queue,
		manager:    manager,
		resolver:   res,
		crossJuris: resolver.NewCrossJurisdiction(graph, res, hybrid, tasks),
		tasks:      tasks,
		reconciler: resolver.NewReconciler(tasks, graph, res),
		engine:     engine.New(manager, queue, graph, processor, cfg.Engine.Workers, cfg.Engine.BatchSize),
	}, nil
}
