// Package scheduler dispatches data-source tasks for one collecting sweep:
// applicable adapters run in dependency order, with bounded parallelism
// inside each level and a process-wide cap across investigations.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/shipsight/shipsight/pkg/adapter"
	"github.com/shipsight/shipsight/pkg/config"
)

// TaskResult is the outcome of one adapter task, delivered to the
// supervisor over a bounded channel. A full channel stalls the producer
// rather than dropping results.
type TaskResult struct {
	Adapter      string
	HypothesisID string
	Result       *adapter.Result
	Err          error
	Duration     time.Duration
}

// Scheduler runs collecting sweeps. One scheduler is shared by all
// investigations; the process-wide semaphore caps total in-flight tasks.
type Scheduler struct {
	registry         *adapter.Registry
	processSem       *semaphore.Weighted
	perInvestigation int
	taskDeadline     time.Duration
	logger           *slog.Logger
}

// New builds the scheduler from the engine configuration.
func New(registry *adapter.Registry, cfg config.EngineConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		registry:         registry,
		processSem:       semaphore.NewWeighted(int64(cfg.ProcessTaskCap)),
		perInvestigation: cfg.ConcurrentTasks,
		taskDeadline:     cfg.TaskDeadline,
		logger:           logger.With("component", "scheduler"),
	}
}

// Sweep runs every applicable adapter from the enabled set against the
// query, respecting declared dependencies: independent tasks run in
// parallel within a level, and context values produced by one level are
// visible to the next. Results stream to out as tasks finish. Sweep
// returns once every dispatched task has reported or ctx is cancelled.
func (s *Scheduler) Sweep(ctx context.Context, q adapter.Query, enabled []string, out chan<- TaskResult) error {
	var applicable []adapter.Adapter
	for _, a := range s.registry.Select(enabled) {
		if adapter.Applicable(a, q) {
			applicable = append(applicable, a)
		}
	}
	lv, err := levels(applicable)
	if err != nil {
		return err
	}

	carried := make(map[string]string, len(q.Context))
	for k, v := range q.Context {
		carried[k] = v
	}

	for _, level := range lv {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.perInvestigation)
		for _, a := range level {
			a := a
			g.Go(func() error {
				lq := q
				lq.Context = snapshotContext(&mu, carried)
				res := s.runTask(gctx, a, lq)
				mu.Lock()
				if res.Result != nil {
					for k, v := range res.Result.Context {
						carried[k] = v
					}
				}
				mu.Unlock()
				select {
				case out <- res:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// Directed runs the engine's follow-up query requests, ignoring
// dependencies (the first sweep already populated carried context).
func (s *Scheduler) Directed(ctx context.Context, q adapter.Query, reqs []DirectedQuery, out chan<- TaskResult) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.perInvestigation)
	for _, req := range reqs {
		a, ok := s.registry.Get(req.Adapter)
		if !ok {
			continue
		}
		req := req
		g.Go(func() error {
			lq := q
			lq.HypothesisID = req.HypothesisID
			res := s.runTask(gctx, a, lq)
			res.HypothesisID = req.HypothesisID
			select {
			case out <- res:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}

// DirectedQuery names an adapter to re-run on behalf of a hypothesis.
type DirectedQuery struct {
	Adapter      string
	HypothesisID string
}

func (s *Scheduler) runTask(ctx context.Context, a adapter.Adapter, q adapter.Query) TaskResult {
	start := time.Now()
	if err := s.processSem.Acquire(ctx, 1); err != nil {
		return TaskResult{Adapter: a.Name(), Err: adapter.NewError(a.Name(), adapter.ErrDeadline, err), Duration: time.Since(start)}
	}
	defer s.processSem.Release(1)

	tctx, cancel := context.WithTimeout(ctx, s.taskDeadline)
	defer cancel()

	res, err := a.Execute(tctx, q)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && tctx.Err() != nil {
			err = adapter.NewError(a.Name(), adapter.ErrDeadline, err)
		}
		s.logger.Warn("task failed",
			"adapter", a.Name(),
			"kind", string(adapter.KindOf(err)),
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
		return TaskResult{Adapter: a.Name(), Err: err, Duration: elapsed}
	}
	return TaskResult{Adapter: a.Name(), Result: res, Duration: elapsed}
}

func snapshotContext(mu *sync.Mutex, carried map[string]string) map[string]string {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]string, len(carried))
	for k, v := range carried {
		out[k] = v
	}
	return out
}

// levels orders adapters into dependency levels: an adapter is placed one
// level after the deepest of its dependencies that is part of this sweep.
// Dependencies outside the sweep are ignored.
func levels(adapters []adapter.Adapter) ([][]adapter.Adapter, error) {
	present := make(map[string]adapter.Adapter, len(adapters))
	for _, a := range adapters {
		present[a.Name()] = a
	}
	depth := make(map[string]int, len(adapters))

	var resolve func(name string, seen map[string]bool) (int, error)
	resolve = func(name string, seen map[string]bool) (int, error) {
		if d, done := depth[name]; done {
			return d, nil
		}
		if seen[name] {
			return 0, fmt.Errorf("dependency cycle through adapter %q", name)
		}
		seen[name] = true
		d := 0
		for _, dep := range present[name].Dependencies() {
			if _, ok := present[dep]; !ok {
				continue
			}
			dd, err := resolve(dep, seen)
			if err != nil {
				return 0, err
			}
			if dd+1 > d {
				d = dd + 1
			}
		}
		delete(seen, name)
		depth[name] = d
		return d, nil
	}

	maxDepth := 0
	for _, a := range adapters {
		d, err := resolve(a.Name(), make(map[string]bool))
		if err != nil {
			return nil, err
		}
		if d > maxDepth {
			maxDepth = d
		}
	}
	out := make([][]adapter.Adapter, maxDepth+1)
	for _, a := range adapters {
		d := depth[a.Name()]
		out[d] = append(out[d], a)
	}
	if len(adapters) == 0 {
		return nil, nil
	}
	return out, nil
}
