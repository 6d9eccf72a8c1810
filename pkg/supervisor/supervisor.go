// Package supervisor owns investigations end to end: it drives the phase
// state machine, consumes agent results, feeds the hypothesis engine, and
// fans every state change out as an ordered event stream.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shipsight/shipsight/pkg/adapter"
	"github.com/shipsight/shipsight/pkg/config"
	"github.com/shipsight/shipsight/pkg/decisiontree"
	"github.com/shipsight/shipsight/pkg/events"
	"github.com/shipsight/shipsight/pkg/evidence"
	"github.com/shipsight/shipsight/pkg/extractor"
	"github.com/shipsight/shipsight/pkg/hypothesis"
	"github.com/shipsight/shipsight/pkg/llm"
	"github.com/shipsight/shipsight/pkg/models"
	"github.com/shipsight/shipsight/pkg/patterns"
	"github.com/shipsight/shipsight/pkg/scheduler"
)

var (
	// ErrUnknownInvestigation is returned for ids the supervisor does not
	// track.
	ErrUnknownInvestigation = errors.New("unknown investigation")

	// ErrInvalidPhase is returned when human input arrives outside the
	// needs_human phase.
	ErrInvalidPhase = errors.New("investigation is not waiting for human input")
)

// Options tune one investigation. Zero values fall back to the engine
// configuration defaults.
type Options struct {
	MaxIterations   int
	Deadline        time.Duration
	EnabledAdapters []string
	Collaborative   bool

	// AutoResolveThreshold and EliminationThreshold override the configured
	// promotion bounds when non-zero.
	AutoResolveThreshold float64
	EliminationThreshold float64
}

// Supervisor runs concurrent investigations. Each investigation's state is
// owned by its run goroutine; the supervisor itself only holds the registry.
type Supervisor struct {
	cfg       *config.Config
	registry  *adapter.Registry
	scheduler *scheduler.Scheduler
	extractor *extractor.Extractor
	llmClient llm.Client
	library   *patterns.Library
	trees     map[models.Mode]*decisiontree.Tree
	recorder  events.Recorder
	logger    *slog.Logger

	mu   sync.RWMutex
	runs map[string]*run

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// Deps bundles the collaborating components.
type Deps struct {
	Registry  *adapter.Registry
	Scheduler *scheduler.Scheduler
	LLM       llm.Client
	Library   *patterns.Library
	Trees     map[models.Mode]*decisiontree.Tree
	Recorder  events.Recorder
	Logger    *slog.Logger
}

// New builds the supervisor.
func New(cfg *config.Config, deps Deps) *Supervisor {
	baseCtx, stop := context.WithCancel(context.Background())
	lib := deps.Library
	if lib == nil {
		lib = patterns.Builtin()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:       cfg,
		registry:  deps.Registry,
		scheduler: deps.Scheduler,
		extractor: extractor.New(deps.LLM),
		llmClient: deps.LLM,
		library:   lib,
		trees:     deps.Trees,
		recorder:  deps.Recorder,
		logger:    logger.With("component", "supervisor"),
		runs:      make(map[string]*run),
		baseCtx:   baseCtx,
		stop:      stop,
	}
}

// Start creates an investigation for the ticket and returns its id plus a
// subscription that observes the stream from the first event.
func (s *Supervisor) Start(ticket models.Ticket, opts Options) (string, *events.Subscription, error) {
	if ticket.Description == "" && len(ticket.Identifiers) == 0 {
		return "", nil, fmt.Errorf("empty ticket")
	}
	if ticket.SubmittedAt.IsZero() {
		ticket.SubmittedAt = time.Now().UTC()
	}

	engineCfg := *s.cfg.Engine
	if opts.MaxIterations > 0 {
		engineCfg.MaxIterations = opts.MaxIterations
	}
	if opts.Deadline > 0 {
		engineCfg.OverallDeadline = opts.Deadline
	}
	if opts.AutoResolveThreshold > 0 {
		engineCfg.AutoResolveThreshold = opts.AutoResolveThreshold
	}
	if opts.EliminationThreshold > 0 {
		engineCfg.EliminationThreshold = opts.EliminationThreshold
	}

	id := uuid.New().String()
	bus := events.NewBus(id, engineCfg.EventQueueLen, s.recorder)
	ctx, cancel := context.WithTimeout(s.baseCtx, engineCfg.OverallDeadline)

	r := &run{
		sup:           s,
		cfg:           engineCfg,
		bus:           bus,
		store:         evidence.NewStore(engineCfg.MaxEvidence),
		engine:        hypothesis.NewEngine(*s.cfg.Scoring, engineCfg, s.library),
		collaborative: opts.Collaborative,
		enabled:       opts.EnabledAdapters,
		humanIn:       make(chan string),
		done:          make(chan struct{}),
		cancelFn:      cancel,
		logger:        s.logger.With("investigation_id", id),
		inv: &models.Investigation{
			ID:        id,
			Ticket:    ticket,
			Phase:     models.PhaseIntake,
			MaxIter:   engineCfg.MaxIterations,
			StartedAt: time.Now().UTC(),
		},
	}
	bus.SetSnapshotFn(r.snapshot)

	sub, err := bus.Subscribe()
	if err != nil {
		cancel()
		return "", nil, err
	}

	s.mu.Lock()
	s.runs[id] = r
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		r.loop(ctx)
	}()
	return id, sub, nil
}

// Cancel aborts an investigation. Idempotent; a terminal investigation
// absorbs the call.
func (s *Supervisor) Cancel(id, reason string) error {
	r, err := s.get(id)
	if err != nil {
		return err
	}
	r.cancel(reason)
	return nil
}

// ProvideHumanInput unblocks a needs_human investigation with the
// analyst's answer; the supervisor resumes at reasoning.
func (s *Supervisor) ProvideHumanInput(id, answer string) error {
	r, err := s.get(id)
	if err != nil {
		return err
	}
	r.mu.RLock()
	waiting := r.inv.Phase == models.PhaseNeedsHuman
	r.mu.RUnlock()
	if !waiting {
		return ErrInvalidPhase
	}
	select {
	case r.humanIn <- answer:
		return nil
	case <-r.done:
		return ErrInvalidPhase
	}
}

// Stream subscribes to an investigation's event stream. Late subscribers
// receive a snapshot first. Implements the websocket manager's
// StreamSource.
func (s *Supervisor) Stream(id string) (*events.Subscription, error) {
	r, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return r.bus.Subscribe()
}

// Get returns a point-in-time copy of the investigation state.
func (s *Supervisor) Get(id string) (*models.Investigation, error) {
	r, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return r.view(), nil
}

// Shutdown cancels every live investigation and waits for the run
// goroutines, bounded by ctx.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	for _, r := range s.runs {
		r.cancel("server shutting down")
	}
	s.mu.RUnlock()

	doneCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-ctx.Done():
	}
	s.stop()
	return ctx.Err()
}

func (s *Supervisor) get(id string) (*run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInvestigation, id)
	}
	return r, nil
}
