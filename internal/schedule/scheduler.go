// Package schedule runs bounded, rate-paced fan-outs against a rate-limited
// upstream.
package schedule

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxConcurrency = 30
	DefaultMaxPerSecond   = 30
)

type Config struct {
	MaxConcurrency int
	MaxPerSecond   float64
}

// Task is one unit of upstream work. It must honour ctx.
type Task func(ctx context.Context) error

// Scheduler caps in-flight tasks and paces task starts with a token bucket.
// The bucket is shared by every Run on the same Scheduler, so concurrent runs
// together stay under MaxPerSecond.
type Scheduler struct {
	maxConc int
	limiter *rate.Limiter
}

func New(cfg Config) *Scheduler {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	limit := rate.Inf
	if cfg.MaxPerSecond > 0 {
		limit = rate.Limit(cfg.MaxPerSecond)
	}
	// burst 1: no two starts closer than 1/MaxPerSecond
	return &Scheduler{maxConc: cfg.MaxConcurrency, limiter: rate.NewLimiter(limit, 1)}
}

func (s *Scheduler) MaxConcurrency() int { return s.maxConc }

// Wait takes a token from the shared bucket. Tasks that call upstream more
// than once, such as retries, call it before every extra call.
func (s *Scheduler) Wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// the deadline would pass before a token frees up
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// Run submits tasks in order and blocks until every started task returns.
// The first task error cancels the context handed to the rest, and is what
// Run returns. Tasks not yet started when that happens are skipped.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConc)

	for _, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// pace at the point of starting, after a slot is held
			if err := s.Wait(gctx); err != nil {
				return err
			}
			return task(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
