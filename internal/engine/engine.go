package engine

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
	"github.com/matbeedotcom/media-transparency-sub001/internal/lead"
	"github.com/matbeedotcom/media-transparency-sub001/internal/session"
)

// RunOptions bound a single Run invocation.
type RunOptions struct {
	// MaxIterations caps the number of batches processed, for bounded
	// foreground runs. Zero means run until the queue empties or the
	// session is paused.
	MaxIterations int
}

// Engine drives a session's discovery loop: budget checks, batch dequeue,
// parallel lead processing, stats recompute, and the terminal transition.
type Engine struct {
	manager   *session.Manager
	queue     lead.Queue
	graph     entity.GraphStore
	processor *Processor

	workers   int
	batchSize int
}

// New creates an Engine.
func New(manager *session.Manager, queue lead.Queue, graph entity.GraphStore, processor *Processor, workers, batchSize int) *Engine {
	if workers <= 0 {
		workers = 4
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Engine{
		manager:   manager,
		queue:     queue,
		graph:     graph,
		processor: processor,
		workers:   workers,
		batchSize: batchSize,
	}
}

// Run processes the session until its queue empties (completed), a budget
// is exceeded or ctx is cancelled (paused), or MaxIterations batches have
// run. Pause is cooperative: the in-flight batch always finishes first.
func (e *Engine) Run(ctx context.Context, sessionID string, opts RunOptions) (session.Status, error) {
	sess, err := e.manager.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", eris.Errorf("engine: session %s not found", sessionID)
	}
	if sess.Status != session.StatusRunning {
		return "", eris.Errorf("engine: session %s is %s, not running", sessionID, sess.Status)
	}

	limiter := sessionLimiter(sess.Config)
	log := zap.L().With(zap.String("session_id", sessionID))
	log.Info("engine run started",
		zap.Int("workers", e.workers),
		zap.Int("batch_size", e.batchSize),
		zap.Int("max_depth", sess.Config.MaxDepth),
	)

	var consecutiveFailures atomic.Int64
	iterations := 0

	for {
		// Cooperative cancel between batches.
		if ctx.Err() != nil {
			return e.pause(sessionID, "cancelled")
		}
		if opts.MaxIterations > 0 && iterations >= opts.MaxIterations {
			log.Info("iteration cap reached", zap.Int("iterations", iterations))
			return session.StatusRunning, nil
		}

		// A pause or fail requested from another process (API, CLI) lands
		// in storage; honor it here, between batches.
		current, err := e.manager.Get(ctx, sessionID)
		if err != nil {
			return "", err
		}
		if current == nil {
			return "", eris.Errorf("engine: session %s disappeared mid-run", sessionID)
		}
		if current.Status != session.StatusRunning {
			log.Info("stopping, session moved externally",
				zap.String("status", string(current.Status)))
			return current.Status, nil
		}

		if exceeded, reason, err := e.budgetExceeded(ctx, sess); err != nil {
			return "", err
		} else if exceeded {
			return e.pause(sessionID, reason)
		}

		batch, err := e.queue.Dequeue(ctx, sessionID, e.batchSize)
		if err != nil {
			return "", err
		}
		if len(batch) == 0 {
			return e.complete(ctx, sessionID)
		}

		g, batchCtx := errgroup.WithContext(context.WithoutCancel(ctx))
		g.SetLimit(e.workers)
		for _, ql := range batch {
			g.Go(func() error {
				status, err := e.processor.ProcessLead(batchCtx, sess, limiter, ql)
				if err != nil {
					return err
				}
				if status == lead.StatusFailed {
					consecutiveFailures.Add(1)
				} else {
					consecutiveFailures.Store(0)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			// Only outcome-recording failures surface here; the session is
			// in an unknown state, so fail it rather than spin.
			if ferr := e.manager.Fail(ctx, sessionID, err.Error()); ferr != nil {
				log.Error("could not mark session failed", zap.Error(ferr))
			}
			return session.StatusFailed, err
		}

		if _, err := e.manager.RecomputeStats(ctx, sessionID); err != nil {
			return "", err
		}

		if threshold := sess.Config.AutoPauseAfterErrors; threshold > 0 &&
			consecutiveFailures.Load() >= int64(threshold) {
			return e.pause(sessionID, "consecutive lead failures")
		}

		iterations++
	}
}

// budgetExceeded checks entity and relationship counts against the session
// limits.
func (e *Engine) budgetExceeded(ctx context.Context, sess *session.Session) (bool, string, error) {
	entities, err := e.graph.CountSessionEntities(ctx, sess.ID)
	if err != nil {
		return false, "", err
	}
	if entities >= sess.Config.MaxEntities {
		return true, "entity budget exhausted", nil
	}

	stats, err := e.manager.RecomputeStats(ctx, sess.ID)
	if err != nil {
		return false, "", err
	}
	if stats.RelationshipsDiscovered >= sess.Config.MaxRelationships {
		return true, "relationship budget exhausted", nil
	}
	return false, "", nil
}

// pause moves the session to paused. Uses a fresh context so a cancelled
// run can still record the transition.
func (e *Engine) pause(sessionID, reason string) (session.Status, error) {
	zap.L().Info("pausing session",
		zap.String("session_id", sessionID),
		zap.String("reason", reason),
	)
	if err := e.manager.Pause(context.Background(), sessionID); err != nil {
		if eris.Is(err, session.ErrInvalidTransition) {
			// Another worker already moved the session on.
			return session.StatusPaused, nil
		}
		return "", err
	}
	return session.StatusPaused, nil
}

// complete marks the session done. When the queue drains under several
// concurrent runners, only one transition wins; the rest observe it.
func (e *Engine) complete(ctx context.Context, sessionID string) (session.Status, error) {
	if _, err := e.manager.RecomputeStats(ctx, sessionID); err != nil {
		return "", err
	}
	if err := e.manager.Complete(ctx, sessionID); err != nil {
		if eris.Is(err, session.ErrInvalidTransition) {
			// Another caller moved the session first (a concurrent
			// completion, or a pause requested mid-batch). Report what
			// actually happened.
			sess, gerr := e.manager.Get(ctx, sessionID)
			if gerr != nil || sess == nil {
				return session.StatusCompleted, nil
			}
			return sess.Status, nil
		}
		return "", err
	}
	zap.L().Info("session completed", zap.String("session_id", sessionID))
	return session.StatusCompleted, nil
}

func sessionLimiter(cfg session.Config) *rate.Limiter {
	if cfg.RateLimitPerSec <= 0 {
		return nil
	}
	burst := int(cfg.RateLimitPerSec)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), burst)
}
