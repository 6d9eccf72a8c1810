package supervisor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shipsight/shipsight/pkg/adapter"
	"github.com/shipsight/shipsight/pkg/config"
	"github.com/shipsight/shipsight/pkg/events"
	"github.com/shipsight/shipsight/pkg/evidence"
	"github.com/shipsight/shipsight/pkg/extractor"
	"github.com/shipsight/shipsight/pkg/hypothesis"
	"github.com/shipsight/shipsight/pkg/llm"
	"github.com/shipsight/shipsight/pkg/models"
	"github.com/shipsight/shipsight/pkg/scheduler"
)

// historicalLookback bounds time-windowed adapter queries when the ticket
// carries no explicit window.
const historicalLookback = 30 * 24 * time.Hour

// run is one live investigation. The loop goroutine owns inv, engine, and
// all event publication; mu guards the fields the snapshot and heartbeat
// paths read from other goroutines.
type run struct {
	sup    *Supervisor
	cfg    config.EngineConfig
	bus    *events.Bus
	store  *evidence.Store
	engine *hypothesis.Engine
	logger *slog.Logger

	collaborative bool
	enabled       []string
	humanIn       chan string
	done          chan struct{}
	cancelFn      context.CancelFunc

	mu           sync.RWMutex
	inv          *models.Investigation
	hypPayloads  map[string]events.HypothesisPayload
	cancelled    bool
	cancelReason string

	// heartbeat state, guarded by mu
	activity string
	running  map[string]bool
	queried  int
	total    int

	carried map[string]string
}

func (r *run) loop(ctx context.Context) {
	defer close(r.done)
	defer r.bus.Close()
	start := time.Now()

	r.mu.Lock()
	r.hypPayloads = make(map[string]events.HypothesisPayload)
	r.running = make(map[string]bool)
	r.carried = make(map[string]string)
	r.mu.Unlock()

	r.publish(events.KindStarted, events.StartedPayload{
		InvestigationID: r.inv.ID,
		Description:     r.inv.Ticket.Description,
		Identifiers:     r.inv.Ticket.Identifiers,
		Mode:            r.inv.Ticket.ModeHint,
		Timestamp:       now(),
	})
	go r.heartbeatLoop(ctx)

	if !r.intake(ctx) {
		r.finishFromCtx(ctx, start)
		return
	}

	var directed []scheduler.DirectedQuery
	iter := 0
	for {
		if iter < r.cfg.MaxIterations {
			iter++
			r.setIteration(iter)
			r.setPhase(models.PhaseCollecting, "querying data sources")
			if err := r.collect(ctx, iter, directed); err != nil {
				r.finishFromCtx(ctx, start)
				return
			}
			r.evaluateTree()
			directed = nil
		}

		r.setPhase(models.PhaseReasoning, "scoring hypotheses")
		if iter == 1 {
			r.seedFromLLM(ctx)
		}
		if ctx.Err() != nil {
			r.finishFromCtx(ctx, start)
			return
		}

		if h, ok := r.engine.Promotable(); ok {
			r.synthesize(ctx, h, start)
			return
		}

		if iter < r.cfg.MaxIterations {
			if reqs := r.pendingQueries(); len(reqs) > 0 {
				if r.collaborative {
					r.publishDispatchDecision(reqs)
				}
				directed = reqs
				continue
			}
		}

		// Out of moves: either every lead is exhausted or the iteration cap
		// is reached. Escalate to a human and block.
		if change, created := r.engine.EnsureResidual(); created {
			r.publishChange(change)
		}
		answer, ok := r.awaitHuman(ctx, r.escalationQuestion())
		if !ok {
			r.finishFromCtx(ctx, start)
			return
		}
		r.mergeAnswer(ctx, answer)
		if h, ok := r.engine.Promotable(); ok {
			r.synthesize(ctx, h, start)
			return
		}
		if iter >= r.cfg.MaxIterations {
			r.finish(models.PhaseComplete, models.StatusNeedsHuman, "", start)
			return
		}
	}
}

// intake runs identifier extraction. Returns false only when the context
// died; an extraction failure escalates to a human instead.
func (r *run) intake(ctx context.Context) bool {
	r.setActivity("extracting identifiers")
	for {
		res, err := r.sup.extractor.Extract(ctx, r.currentTicket())
		if err == nil {
			r.applyExtraction(res)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		question := "No tracking-usable identifier could be extracted from the ticket. " +
			"Please provide a tracking id, load number, container number, or another shipment reference."
		answer, ok := r.awaitHuman(ctx, question)
		if !ok {
			return false
		}
		r.appendAnswerText(answer)
	}
}

func (r *run) applyExtraction(res *extractor.Result) {
	r.mu.Lock()
	r.inv.Identifiers = res.Identifiers
	r.inv.Provenance = res.Provenance
	r.inv.Mode = res.Mode
	r.mu.Unlock()

	parts := make([]string, 0, len(res.Identifiers))
	for slot, value := range res.Identifiers {
		parts = append(parts, fmt.Sprintf("%s=%s (%s)", slot, value, res.Provenance[slot]))
	}
	sort.Strings(parts)
	r.handleEvidence(models.Evidence{
		Source:           "identifier-extractor",
		Finding:          fmt.Sprintf("identifiers: %s; mode=%s", strings.Join(parts, ", "), res.Mode),
		Supports:         true,
		Weight:           models.WeightAuxiliary,
		SourceConfidence: res.Confidence,
	})
}

// collect runs one collecting sweep: the full applicable set on the first
// pass, the engine's directed queries afterwards.
func (r *run) collect(ctx context.Context, iter int, directed []scheduler.DirectedQuery) error {
	q := adapter.Query{
		InvestigationID: r.inv.ID,
		Identifiers:     r.identifiers(),
		Mode:            r.mode(),
		Window: adapter.Window{
			From: r.inv.Ticket.SubmittedAt.Add(-historicalLookback),
			To:   time.Now().UTC(),
		},
		Context: r.carriedContext(),
	}
	if q.Window.From.After(q.Window.To) {
		q.Window = adapter.Window{From: time.Now().UTC().Add(-historicalLookback), To: time.Now().UTC()}
	}

	var sources []string
	if directed == nil {
		for _, a := range r.sup.registry.Select(r.enabled) {
			if adapter.Applicable(a, q) {
				sources = append(sources, a.Name())
			}
		}
	} else {
		for _, d := range directed {
			sources = append(sources, d.Adapter)
		}
	}
	r.beginSweep(sources, iter)

	out := make(chan scheduler.TaskResult, r.cfg.ConcurrentTasks)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		if directed == nil {
			errCh <- r.sup.scheduler.Sweep(ctx, q, r.enabled, out)
		} else {
			errCh <- r.sup.scheduler.Directed(ctx, q, directed, out)
		}
	}()
	for {
		select {
		case res, ok := <-out:
			if !ok {
				return <-errCh
			}
			r.handleTaskResult(res, iter)
		case <-ctx.Done():
			return r.drainWithGrace(out, errCh, ctx)
		}
	}
}

// drainWithGrace waits up to CancelGrace for in-flight tasks after the run
// context dies. Tasks that ignore their context are abandoned; a background
// reader keeps the scheduler from blocking on its results channel.
func (r *run) drainWithGrace(out <-chan scheduler.TaskResult, errCh <-chan error, ctx context.Context) error {
	grace := time.NewTimer(r.cfg.CancelGrace)
	defer grace.Stop()
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return <-errCh
			}
		case <-grace.C:
			go func() {
				for range out {
				}
			}()
			return ctx.Err()
		}
	}
}

func (r *run) beginSweep(sources []string, iter int) {
	r.mu.Lock()
	r.running = make(map[string]bool, len(sources))
	for _, src := range sources {
		r.running[src] = true
	}
	r.queried = 0
	r.total = len(sources)
	r.mu.Unlock()

	for _, src := range sources {
		r.publish(events.KindAgentStarted, events.AgentStartedPayload{
			InvestigationID: r.inv.ID,
			AgentID:         agentID(src, iter),
			Source:          src,
			Iteration:       iter,
			Timestamp:       now(),
		})
	}
}

// handleTaskResult converts one task outcome into events and evidence. Work
// arriving after cancellation is discarded.
func (r *run) handleTaskResult(res scheduler.TaskResult, iter int) {
	if r.isCancelled() {
		return
	}

	r.mu.Lock()
	delete(r.running, res.Adapter)
	r.queried++
	r.mu.Unlock()

	qp := events.QueryExecutedPayload{
		InvestigationID:  r.inv.ID,
		Source:           res.Adapter,
		QueryFingerprint: r.fingerprint(res.Adapter),
		DurationMs:       res.Duration.Milliseconds(),
	}
	status := "completed"
	var added int

	if res.Err != nil {
		kind := adapter.KindOf(res.Err)
		qp.Error = string(kind)
		if kind == adapter.ErrDeadline {
			qp.Error = "timeout"
			status = "timed_out"
		} else {
			status = "failed"
		}
		r.publish(events.KindQueryExecuted, qp)
		r.handleTaskError(res, kind)
	} else {
		count := len(res.Result.Findings)
		qp.ResultCount = &count
		if count > 0 && len(res.Result.Findings[0].Raw) > 0 {
			raw, truncated := events.TruncateRaw(res.Result.Findings[0].Raw, r.cfg.RawPayloadCapBytes)
			qp.Raw = raw
			qp.Truncated = truncated
		}
		r.publish(events.KindQueryExecuted, qp)

		r.mu.Lock()
		for k, v := range res.Result.Context {
			r.carried[k] = v
		}
		r.mu.Unlock()

		for _, f := range res.Result.Findings {
			raw, _ := events.TruncateRaw(f.Raw, r.cfg.RawPayloadCapBytes)
			hypID := f.HypothesisID
			if hypID == "" {
				hypID = res.HypothesisID
			}
			if r.handleEvidence(models.Evidence{
				Source:           res.Adapter,
				Finding:          f.Finding,
				Supports:         f.Supports,
				Weight:           f.Weight,
				SourceConfidence: f.SourceConfidence,
				Raw:              raw,
				HypothesisID:     hypID,
				AgentID:          agentID(res.Adapter, iter),
			}) {
				added++
			}
		}
	}

	r.publish(events.KindAgentFinished, events.AgentFinishedPayload{
		InvestigationID: r.inv.ID,
		AgentID:         agentID(res.Adapter, iter),
		Source:          res.Adapter,
		Status:          status,
		DurationMs:      res.Duration.Milliseconds(),
		EvidenceCount:   added,
		Timestamp:       now(),
	})

	if r.collaborative && added > 0 {
		r.publish(events.KindDiscussion, events.DiscussionPayload{
			InvestigationID: r.inv.ID,
			AgentID:         agentID(res.Adapter, iter),
			MessageType:     events.DiscussionObservation,
			Message:         fmt.Sprintf("%s contributed %d evidence items", res.Adapter, added),
			Timestamp:       now(),
		})
	}
}

// handleTaskError records the failure as evidence per the error taxonomy:
// timeouts and exhausted retries as weak negative signal, auth failures as
// configuration evidence.
func (r *run) handleTaskError(res scheduler.TaskResult, kind adapter.ErrorKind) {
	switch kind {
	case adapter.ErrDeadline:
		r.handleEvidence(models.Evidence{
			Source:           res.Adapter,
			Finding:          "timeout",
			Supports:         false,
			Weight:           models.WeightWeak,
			SourceConfidence: 1.0,
			HypothesisID:     res.HypothesisID,
		})
	case adapter.ErrAuth:
		r.handleEvidence(models.Evidence{
			Source:           res.Adapter,
			Finding:          fmt.Sprintf("authentication failed against %s; credentials need review", res.Adapter),
			Supports:         false,
			Weight:           models.WeightAuxiliary,
			SourceConfidence: 1.0,
			HypothesisID:     res.HypothesisID,
		})
	default:
		r.handleEvidence(models.Evidence{
			Source:           res.Adapter,
			Finding:          fmt.Sprintf("query failed (%s)", kind),
			Supports:         false,
			Weight:           models.WeightWeak,
			SourceConfidence: 1.0,
			HypothesisID:     res.HypothesisID,
		})
	}
}

// handleEvidence appends, publishes, and scores one evidence item. Returns
// whether the item was newly added (duplicates are coalesced silently).
func (r *run) handleEvidence(ev models.Evidence) bool {
	stored, ok := r.store.Append(ev)
	if !ok {
		return false
	}
	r.publish(events.KindEvidenceAdded, events.EvidenceAddedPayload{
		InvestigationID:  r.inv.ID,
		EvidenceID:       stored.ID,
		Source:           stored.Source,
		Finding:          stored.Finding,
		Supports:         stored.Supports,
		Weight:           stored.Weight,
		SourceConfidence: events.Confidence(stored.SourceConfidence),
		HypothesisID:     stored.HypothesisID,
		Timestamp:        stored.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	for _, change := range r.observe(stored) {
		r.publishChange(change)
	}
	return true
}

// observe shields the run loop from hypothesis engine panics; the
// investigation continues on a best-effort basis.
func (r *run) observe(ev models.Evidence) (changes []hypothesis.Change) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Hypothesis engine failure", "error", rec, "evidence_id", ev.ID)
			if h, ok := r.engine.Get(ev.HypothesisID); ok {
				h.State = models.HypothesisEliminated
				changes = []hypothesis.Change{{Kind: hypothesis.ChangeEliminated, Hypothesis: h}}
			}
		}
	}()
	return r.engine.Observe(ev, r.store.Snapshot())
}

func (r *run) publishChange(change hypothesis.Change) {
	payload := r.hypPayload(change.Hypothesis)
	kind := events.KindHypothesisUpdated
	switch change.Kind {
	case hypothesis.ChangeAdded:
		kind = events.KindHypothesisAdded
	case hypothesis.ChangeEliminated:
		kind = events.KindHypothesisEliminated
	}
	r.mu.Lock()
	r.hypPayloads[change.Hypothesis.ID] = payload
	r.mu.Unlock()
	r.publish(kind, payload)
}

// evaluateTree runs the mode's decision tree, if one exists, over the
// current evidence and folds its conclusions in as pre-weighted evidence.
func (r *run) evaluateTree() {
	tree, ok := r.sup.trees[r.mode()]
	if !ok {
		return
	}
	for _, c := range tree.Evaluate(r.store.Snapshot()) {
		id, ok := r.engine.IDForCategory(c.Category)
		if !ok {
			desc := fmt.Sprintf("Decision flow indicates %s", c.Category)
			if p, found := r.sup.library.ByCategory(c.Category); found {
				desc = p.Description
			}
			for _, change := range r.engine.SeedSuggestions([]llm.Suggestion{{
				Category:    c.Category,
				Description: desc,
				Prior:       0.3,
			}}) {
				r.publishChange(change)
			}
			id, _ = r.engine.IDForCategory(c.Category)
		}
		r.handleEvidence(models.Evidence{
			Source:           "decision-tree",
			Finding:          c.Finding,
			Supports:         true,
			Weight:           c.Weight,
			SourceConfidence: c.SourceConfidence,
			HypothesisID:     id,
		})
	}
}

func (r *run) seedFromLLM(ctx context.Context) {
	existing := make([]models.Category, 0, r.engine.Len())
	for _, h := range r.engine.All() {
		existing = append(existing, h.Category)
	}
	suggestions, err := r.sup.llmClient.SuggestHypotheses(ctx, llm.SuggestRequest{
		Description: r.inv.Ticket.Description,
		Mode:        r.mode(),
		Evidence:    r.store.Snapshot(),
		Existing:    existing,
		Max:         r.cfg.MaxLLMHypotheses,
	})
	if err != nil {
		if err != llm.ErrUnavailable {
			r.logger.Warn("LLM hypothesis seeding failed", "error", err)
		}
		return
	}
	for _, change := range r.engine.SeedSuggestions(suggestions) {
		r.publishChange(change)
	}
}

// pendingQueries asks the engine which adapters would most move the gap
// between the leading hypotheses, filtered to sources without evidence.
func (r *run) pendingQueries() []scheduler.DirectedQuery {
	reqs := r.engine.QueryRequests(func(source string) bool {
		return len(r.store.BySource(source)) > 0
	})
	out := make([]scheduler.DirectedQuery, 0, len(reqs))
	for _, req := range reqs {
		if _, ok := r.sup.registry.Get(req.Adapter); !ok {
			continue
		}
		if !r.adapterEnabled(req.Adapter) {
			continue
		}
		out = append(out, scheduler.DirectedQuery{Adapter: req.Adapter, HypothesisID: req.HypothesisID})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// adapterEnabled applies the per-run adapter restriction. An empty list
// means every registered adapter is eligible.
func (r *run) adapterEnabled(name string) bool {
	if len(r.enabled) == 0 {
		return true
	}
	for _, n := range r.enabled {
		if n == name {
			return true
		}
	}
	return false
}

func (r *run) publishDispatchDecision(reqs []scheduler.DirectedQuery) {
	scope := make(map[string]string, len(reqs))
	for _, req := range reqs {
		scope[req.Adapter] = req.HypothesisID
	}
	r.publish(events.KindDecision, events.DecisionPayload{
		InvestigationID: r.inv.ID,
		Source:          "hypothesis-engine",
		Scope:           scope,
		Reason:          "targeted queries to separate the leading hypotheses",
		Timestamp:       now(),
	})
}

func (r *run) synthesize(ctx context.Context, h models.Hypothesis, start time.Time) {
	if ctx.Err() != nil {
		r.finishFromCtx(ctx, start)
		return
	}
	r.setPhase(models.PhaseSynthesizing, "assembling root cause")
	r.publishChange(hypothesis.Change{Kind: hypothesis.ChangeUpdated, Hypothesis: h})

	rc := &models.RootCause{
		Category:           h.Category,
		Description:        h.Description,
		Confidence:         h.Confidence,
		RecommendedActions: r.engine.Actions(h.ID),
	}
	r.mu.Lock()
	r.inv.RootCause = rc
	r.mu.Unlock()

	r.publish(events.KindRootCause, events.RootCausePayload{
		InvestigationID:    r.inv.ID,
		Category:           rc.Category,
		Description:        rc.Description,
		Confidence:         events.Confidence(rc.Confidence),
		RecommendedActions: rc.RecommendedActions,
	})
	r.finish(models.PhaseComplete, models.StatusSuccess, "", start)
}

// awaitHuman publishes needs_human and blocks until input, cancellation, or
// the overall deadline.
func (r *run) awaitHuman(ctx context.Context, question string) (string, bool) {
	payload := r.needsHumanPayload(question)
	r.mu.Lock()
	r.inv.HumanRequest = &models.HumanInputRequest{
		Question:           question,
		MissingIdentifiers: payload.Context.MissingIdentifiers,
	}
	r.mu.Unlock()
	r.setPhase(models.PhaseNeedsHuman, "waiting for human input")
	r.publish(events.KindNeedsHuman, payload)

	select {
	case answer := <-r.humanIn:
		r.mu.Lock()
		r.inv.HumanRequest = nil
		r.mu.Unlock()
		return answer, true
	case <-ctx.Done():
		return "", false
	}
}

func (r *run) needsHumanPayload(question string) events.NeedsHumanPayload {
	ranked := r.engine.Ranked()
	if len(ranked) > 2 {
		ranked = ranked[:2]
	}
	hyps := make([]events.NeedsHumanHypothesis, 0, len(ranked))
	for _, h := range ranked {
		hyps = append(hyps, events.NeedsHumanHypothesis{
			ID:         h.ID,
			Category:   h.Category,
			Confidence: events.Confidence(h.Confidence),
		})
	}
	return events.NeedsHumanPayload{
		InvestigationID: r.inv.ID,
		Question:        question,
		Context: events.NeedsHumanContext{
			Hypotheses:         hyps,
			MissingIdentifiers: extractor.MissingSlots(r.identifiers(), r.mode()),
		},
	}
}

func (r *run) escalationQuestion() string {
	ranked := r.engine.Ranked()
	missing := extractor.MissingSlots(r.identifiers(), r.mode())
	switch {
	case !r.hasAdapterEvidence():
		return fmt.Sprintf("No data source returned evidence for identifiers %s. "+
			"Please verify the references or provide: %s.",
			r.identifierSummary(), strings.Join(missing, ", "))
	case len(ranked) >= 2:
		return fmt.Sprintf("Unable to separate the leading hypotheses %s (%.2f) and %s (%.2f). "+
			"Please confirm or provide: %s.",
			ranked[0].Category, ranked[0].Confidence,
			ranked[1].Category, ranked[1].Confidence,
			strings.Join(missing, ", "))
	case len(ranked) == 1:
		return fmt.Sprintf("Hypothesis %s stalled at confidence %.2f without reaching the resolution threshold. "+
			"Please confirm or provide: %s.",
			ranked[0].Category, ranked[0].Confidence, strings.Join(missing, ", "))
	default:
		return fmt.Sprintf("All hypotheses were eliminated for identifiers %s. Manual review needed.",
			r.identifierSummary())
	}
}

// mergeAnswer folds the analyst's answer back into the identifier set and
// records it as evidence. Existing identifiers are never overwritten.
func (r *run) mergeAnswer(ctx context.Context, answer string) {
	r.appendAnswerText(answer)
	res, err := r.sup.extractor.Extract(ctx, r.currentTicket())
	if err != nil {
		return
	}
	r.mu.Lock()
	for slot, value := range res.Identifiers {
		if _, exists := r.inv.Identifiers[slot]; !exists {
			r.inv.Identifiers[slot] = value
			if r.inv.Provenance == nil {
				r.inv.Provenance = make(map[models.Slot]models.Provenance)
			}
			r.inv.Provenance[slot] = models.ProvenanceUser
		}
	}
	if r.inv.Mode == models.ModeUnknown && res.Mode != models.ModeUnknown {
		r.inv.Mode = res.Mode
	}
	r.mu.Unlock()

	r.handleEvidence(models.Evidence{
		Source:           "human-input",
		Finding:          fmt.Sprintf("analyst answered: %s", truncateString(answer, 200)),
		Supports:         true,
		Weight:           models.WeightSupporting,
		SourceConfidence: 1.0,
	})
}

func (r *run) appendAnswerText(answer string) {
	r.mu.Lock()
	r.inv.Ticket.Description = r.inv.Ticket.Description + "\n" + answer
	r.mu.Unlock()
}

func (r *run) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.publish(events.KindHeartbeat, r.heartbeatPayload())
		case <-ctx.Done():
			return
		case <-r.done:
			return
		}
	}
}

func (r *run) heartbeatPayload() events.HeartbeatPayload {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agents := make([]string, 0, len(r.running))
	for src := range r.running {
		agents = append(agents, src)
	}
	sort.Strings(agents)
	return events.HeartbeatPayload{
		InvestigationID:    r.inv.ID,
		Progress:           events.Confidence(phaseProgress(r.inv.Phase, r.queried, r.total)),
		CurrentActivity:    r.activity,
		AgentsRunning:      agents,
		DataSourcesQueried: r.queried,
		DataSourcesTotal:   r.total,
	}
}

func phaseProgress(phase models.Phase, queried, total int) float64 {
	switch phase {
	case models.PhaseIntake:
		return 0.05
	case models.PhaseCollecting:
		frac := 0.0
		if total > 0 {
			frac = float64(queried) / float64(total)
		}
		return 0.1 + 0.5*frac
	case models.PhaseReasoning:
		return 0.7
	case models.PhaseSynthesizing, models.PhaseNeedsHuman:
		return 0.9
	case models.PhaseComplete, models.PhaseFailed:
		return 1.0
	default:
		return 0.0
	}
}

// cancel flags the run and fires its context. Idempotent.
func (r *run) cancel(reason string) {
	r.mu.Lock()
	if !r.cancelled {
		r.cancelled = true
		r.cancelReason = reason
	}
	r.mu.Unlock()
	r.cancelFn()
}

func (r *run) isCancelled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cancelled
}

// finishFromCtx emits the terminal event for a context-driven exit:
// cancelled when Cancel was called, failed when the deadline expired.
func (r *run) finishFromCtx(ctx context.Context, start time.Time) {
	r.mu.RLock()
	cancelled := r.cancelled
	reason := r.cancelReason
	r.mu.RUnlock()
	if cancelled {
		r.mu.Lock()
		r.inv.CancelReason = reason
		r.mu.Unlock()
		r.finish(models.PhaseComplete, models.StatusCancelled, reason, start)
		return
	}
	errMsg := ""
	if ctx.Err() != nil {
		errMsg = "overall deadline exceeded"
	}
	r.finish(models.PhaseFailed, models.StatusFailed, errMsg, start)
}

func (r *run) finish(phase models.Phase, status models.Status, errMsg string, start time.Time) {
	endedAt := time.Now().UTC()
	r.mu.Lock()
	r.inv.Phase = phase
	r.inv.Status = status
	r.inv.EndedAt = &endedAt
	r.mu.Unlock()

	r.publish(events.KindComplete, events.CompletePayload{
		InvestigationID: r.inv.ID,
		Status:          status,
		DurationMs:      time.Since(start).Milliseconds(),
		Error:           errMsg,
	})
	r.logger.Info("Investigation finished",
		"status", string(status),
		"duration_ms", time.Since(start).Milliseconds(),
		"evidence", r.store.Len(),
		"hypotheses", r.engine.Len())
	r.cancelFn()
}

func (r *run) publish(kind string, payload any) {
	if _, err := r.bus.Publish(kind, payload); err != nil && err != events.ErrBusClosed {
		r.logger.Warn("Event publish failed", "kind", kind, "error", err)
	}
}

// snapshot builds the catch-up payload a late subscriber receives before
// live events.
func (r *run) snapshot() events.SnapshotPayload {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hyps := make([]events.HypothesisPayload, 0, len(r.hypPayloads))
	for _, p := range r.hypPayloads {
		hyps = append(hyps, p)
	}
	sort.Slice(hyps, func(i, j int) bool { return hyps[i].HypothesisID < hyps[j].HypothesisID })
	ids := make(map[string]string, len(r.inv.Identifiers))
	for slot, value := range r.inv.Identifiers {
		ids[string(slot)] = value
	}
	return events.SnapshotPayload{
		InvestigationID: r.inv.ID,
		Phase:           r.inv.Phase,
		Iteration:       r.inv.Iteration,
		Mode:            r.inv.Mode,
		Identifiers:     ids,
		EvidenceCount:   r.store.Len(),
		Hypotheses:      hyps,
		LastSeq:         r.bus.Seq(),
	}
}

// view returns a copy of the investigation with current evidence and
// hypotheses filled in.
func (r *run) view() *models.Investigation {
	r.mu.RLock()
	inv := *r.inv
	inv.Identifiers = r.inv.Identifiers.Clone()
	r.mu.RUnlock()

	inv.Evidence = r.store.Snapshot()
	inv.Hypotheses = make(map[string]*models.Hypothesis)
	for _, h := range r.engine.All() {
		h := h
		inv.Hypotheses[h.ID] = &h
	}
	return &inv
}

func (r *run) hasAdapterEvidence() bool {
	for _, ev := range r.store.Snapshot() {
		switch ev.Source {
		case "identifier-extractor", "human-input", "evidence-store":
			continue
		}
		return true
	}
	return false
}

func (r *run) hypPayload(h models.Hypothesis) events.HypothesisPayload {
	return events.HypothesisPayload{
		InvestigationID: r.inv.ID,
		HypothesisID:    h.ID,
		Category:        h.Category,
		Description:     h.Description,
		Confidence:      events.Confidence(h.Confidence),
		State:           h.State,
		EvidenceFor:     append([]string(nil), h.EvidenceFor...),
		EvidenceAgainst: append([]string(nil), h.EvidenceAgainst...),
	}
}

func (r *run) setPhase(phase models.Phase, activity string) {
	r.mu.Lock()
	r.inv.Phase = phase
	r.activity = activity
	r.mu.Unlock()
}

func (r *run) setActivity(activity string) {
	r.mu.Lock()
	r.activity = activity
	r.mu.Unlock()
}

func (r *run) setIteration(iter int) {
	r.mu.Lock()
	r.inv.Iteration = iter
	r.mu.Unlock()
}

func (r *run) identifiers() models.Identifiers {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inv.Identifiers.Clone()
}

func (r *run) mode() models.Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inv.Mode
}

func (r *run) currentTicket() models.Ticket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t := r.inv.Ticket
	ids := make(map[string]string, len(t.Identifiers)+len(r.inv.Identifiers))
	for k, v := range t.Identifiers {
		ids[k] = v
	}
	for slot, value := range r.inv.Identifiers {
		ids[string(slot)] = value
	}
	t.Identifiers = ids
	return t
}

func (r *run) carriedContext() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.carried))
	for k, v := range r.carried {
		out[k] = v
	}
	return out
}

func (r *run) identifierSummary() string {
	ids := r.identifiers()
	parts := make([]string, 0, len(ids))
	for slot, value := range ids {
		parts = append(parts, fmt.Sprintf("%s=%s", slot, value))
	}
	sort.Strings(parts)
	if len(parts) == 0 {
		return "(none)"
	}
	return strings.Join(parts, ", ")
}

func (r *run) fingerprint(source string) string {
	ids := r.identifiers()
	keys := make([]string, 0, len(ids))
	for slot := range ids {
		keys = append(keys, string(slot))
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(source)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%s", k, ids[models.Slot(k)])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

func agentID(source string, iter int) string {
	return fmt.Sprintf("%s-%d", source, iter)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
