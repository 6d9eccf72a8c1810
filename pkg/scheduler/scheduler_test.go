package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipsight/shipsight/pkg/adapter"
	"github.com/shipsight/shipsight/pkg/config"
	"github.com/shipsight/shipsight/pkg/models"
)

// stubAdapter is a programmable in-memory adapter.
type stubAdapter struct {
	name    string
	deps    []string
	modes   []models.Mode
	execute func(ctx context.Context, q adapter.Query) (*adapter.Result, error)

	mu    sync.Mutex
	calls []adapter.Query
}

func (s *stubAdapter) Name() string                       { return s.name }
func (s *stubAdapter) RequiredIdentifiers() []models.Slot { return nil }
func (s *stubAdapter) Dependencies() []string             { return s.deps }
func (s *stubAdapter) Modes() []models.Mode               { return s.modes }

func (s *stubAdapter) Execute(ctx context.Context, q adapter.Query) (*adapter.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, q)
	s.mu.Unlock()
	if s.execute != nil {
		return s.execute(ctx, q)
	}
	return &adapter.Result{}, nil
}

func (s *stubAdapter) lastCall() adapter.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func newTestScheduler(t *testing.T, adapters ...adapter.Adapter) *Scheduler {
	t.Helper()
	reg := adapter.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, reg.Register(a))
	}
	cfg := *config.DefaultEngineConfig()
	cfg.TaskDeadline = 200 * time.Millisecond
	return New(reg, cfg, slog.Default())
}

func collect(t *testing.T, run func(out chan<- TaskResult) error) map[string]TaskResult {
	t.Helper()
	out := make(chan TaskResult, 16)
	done := make(chan error, 1)
	go func() { done <- run(out) }()

	results := make(map[string]TaskResult)
	for {
		select {
		case res := <-out:
			results[res.Adapter] = res
		case err := <-done:
			require.NoError(t, err)
			// Drain anything buffered after completion.
			for {
				select {
				case res := <-out:
					results[res.Adapter] = res
				default:
					return results
				}
			}
		case <-time.After(5 * time.Second):
			t.Fatal("sweep did not finish")
		}
	}
}

func TestSweepCarriesContextAcrossLevels(t *testing.T) {
	rel := &stubAdapter{
		name: "network-relationship",
		execute: func(_ context.Context, _ adapter.Query) (*adapter.Result, error) {
			return &adapter.Result{Context: map[string]string{"relationship_id": "r-7"}}, nil
		},
	}
	warehouse := &stubAdapter{
		name: "historical-warehouse",
		deps: []string{"network-relationship"},
	}

	s := newTestScheduler(t, rel, warehouse)
	q := adapter.Query{Identifiers: models.Identifiers{models.SlotTrackingID: "X1"}}

	results := collect(t, func(out chan<- TaskResult) error {
		return s.Sweep(context.Background(), q, nil, out)
	})

	require.Len(t, results, 2)
	require.NoError(t, results["historical-warehouse"].Err)
	assert.Equal(t, "r-7", warehouse.lastCall().Context["relationship_id"],
		"context produced at level 0 is visible at level 1")
}

func TestSweepSkipsInapplicableAdapters(t *testing.T) {
	ocean := &stubAdapter{name: "ocean-events", modes: []models.Mode{models.ModeOcean}}
	logs := &stubAdapter{name: "recent-logs"}

	s := newTestScheduler(t, ocean, logs)
	q := adapter.Query{
		Identifiers: models.Identifiers{models.SlotTrackingID: "X1"},
		Mode:        models.ModeOTR,
	}

	results := collect(t, func(out chan<- TaskResult) error {
		return s.Sweep(context.Background(), q, nil, out)
	})

	assert.Len(t, results, 1)
	_, ran := results["ocean-events"]
	assert.False(t, ran)
}

func TestSweepHonorsEnabledSubset(t *testing.T) {
	a := &stubAdapter{name: "recent-logs"}
	b := &stubAdapter{name: "rpa-scraper"}

	s := newTestScheduler(t, a, b)
	q := adapter.Query{Identifiers: models.Identifiers{models.SlotTrackingID: "X1"}}

	results := collect(t, func(out chan<- TaskResult) error {
		return s.Sweep(context.Background(), q, []string{"recent-logs"}, out)
	})

	assert.Len(t, results, 1)
	_, ran := results["recent-logs"]
	assert.True(t, ran)
}

func TestSweepTimeoutBecomesDeadlineError(t *testing.T) {
	slow := &stubAdapter{
		name: "rpa-scraper",
		execute: func(ctx context.Context, _ adapter.Query) (*adapter.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	s := newTestScheduler(t, slow)
	q := adapter.Query{Identifiers: models.Identifiers{models.SlotTrackingID: "X1"}}

	results := collect(t, func(out chan<- TaskResult) error {
		return s.Sweep(context.Background(), q, nil, out)
	})

	res := results["rpa-scraper"]
	require.Error(t, res.Err)
	assert.Equal(t, adapter.ErrDeadline, adapter.KindOf(res.Err))
	assert.GreaterOrEqual(t, res.Duration, 200*time.Millisecond)
}

func TestSweepFailureDoesNotBlockOthers(t *testing.T) {
	failing := &stubAdapter{
		name: "internal-config",
		execute: func(_ context.Context, _ adapter.Query) (*adapter.Result, error) {
			return nil, adapter.NewError("internal-config", adapter.ErrAuth, context.Canceled)
		},
	}
	fine := &stubAdapter{name: "recent-logs"}

	s := newTestScheduler(t, failing, fine)
	q := adapter.Query{Identifiers: models.Identifiers{models.SlotTrackingID: "X1"}}

	results := collect(t, func(out chan<- TaskResult) error {
		return s.Sweep(context.Background(), q, nil, out)
	})

	require.Len(t, results, 2)
	assert.Error(t, results["internal-config"].Err)
	assert.NoError(t, results["recent-logs"].Err)
}

func TestDirectedTagsResultsWithHypothesis(t *testing.T) {
	a := &stubAdapter{name: "historical-logs"}

	s := newTestScheduler(t, a)
	q := adapter.Query{Identifiers: models.Identifiers{models.SlotTrackingID: "X1"}}

	results := collect(t, func(out chan<- TaskResult) error {
		return s.Directed(context.Background(), q, []DirectedQuery{
			{Adapter: "historical-logs", HypothesisID: "h1"},
			{Adapter: "not-registered", HypothesisID: "h2"},
		}, out)
	})

	require.Len(t, results, 1)
	assert.Equal(t, "h1", results["historical-logs"].HypothesisID)
	assert.Equal(t, "h1", a.lastCall().HypothesisID)
}

func TestLevels(t *testing.T) {
	a := &stubAdapter{name: "a"}
	b := &stubAdapter{name: "b", deps: []string{"a"}}
	c := &stubAdapter{name: "c", deps: []string{"b"}}
	d := &stubAdapter{name: "d", deps: []string{"missing"}}

	lv, err := levels([]adapter.Adapter{c, b, a, d})
	require.NoError(t, err)
	require.Len(t, lv, 3)

	names := func(level []adapter.Adapter) []string {
		var out []string
		for _, x := range level {
			out = append(out, x.Name())
		}
		return out
	}
	assert.ElementsMatch(t, []string{"a", "d"}, names(lv[0]), "absent dependencies are ignored")
	assert.ElementsMatch(t, []string{"b"}, names(lv[1]))
	assert.ElementsMatch(t, []string{"c"}, names(lv[2]))
}

func TestLevelsDetectsCycle(t *testing.T) {
	a := &stubAdapter{name: "a", deps: []string{"b"}}
	b := &stubAdapter{name: "b", deps: []string{"a"}}

	_, err := levels([]adapter.Adapter{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")
}
