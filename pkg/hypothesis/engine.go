// Package hypothesis maintains the candidate root causes of one
// investigation and rescores them as evidence accumulates.
package hypothesis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shipsight/shipsight/pkg/config"
	"github.com/shipsight/shipsight/pkg/llm"
	"github.com/shipsight/shipsight/pkg/models"
	"github.com/shipsight/shipsight/pkg/patterns"
)

// ChangeKind classifies a hypothesis state change for event emission.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeUpdated
	ChangeEliminated
)

// Change is one hypothesis transition produced by the engine. The supervisor
// turns each change into exactly one stream event.
type Change struct {
	Kind       ChangeKind
	Hypothesis models.Hypothesis
}

// QueryRequest names an adapter whose evidence would most move the gap
// between the top two hypotheses.
type QueryRequest struct {
	Adapter      string
	Weight       int
	HypothesisID string
}

type contribution struct {
	evidenceID string
	source     string
	score      float64 // weight * source_confidence
	supports   bool
}

type tracked struct {
	hyp     *models.Hypothesis
	pattern *patterns.Pattern // nil for LLM-seeded and residual hypotheses
	contrib []contribution
	bound   map[string]bool
	dirty   bool // bound evidence changed since the last rescore
}

// Engine scores hypotheses for a single investigation. It is driven from the
// supervisor goroutine only and needs no internal locking.
type Engine struct {
	scoring     config.ScoringConfig
	autoResolve float64
	eliminate   float64
	margin      float64

	lib     *patterns.Library
	matcher *patterns.Matcher

	order      []string // hypothesis IDs in creation order, for deterministic iteration
	byID       map[string]*tracked
	byCategory map[models.Category]string
}

// NewEngine builds an engine over the pattern library with the configured
// scoring constants and thresholds.
func NewEngine(scoring config.ScoringConfig, engine config.EngineConfig, lib *patterns.Library) *Engine {
	return &Engine{
		scoring:     scoring,
		autoResolve: engine.AutoResolveThreshold,
		eliminate:   engine.EliminationThreshold,
		margin:      engine.TieBreakMargin,
		lib:         lib,
		matcher:     patterns.NewMatcher(lib),
		byID:        make(map[string]*tracked),
		byCategory:  make(map[models.Category]string),
	}
}

// Observe processes one newly appended evidence item. It re-evaluates
// unmatched patterns against the snapshot, routes the item to the hypotheses
// it bears on, and rescores every active hypothesis. The returned changes
// are ordered: additions first, then updates and eliminations.
func (e *Engine) Observe(ev models.Evidence, snapshot []models.Evidence) []Change {
	var changes []Change

	for _, match := range e.matcher.Evaluate(snapshot) {
		changes = append(changes, e.instantiate(match))
	}

	e.route(ev)
	changes = append(changes, e.rescore()...)
	return changes
}

// SeedSuggestions folds LLM-proposed hypotheses in. Suggestions duplicating
// an existing category, or whose description closely matches an existing
// hypothesis, are dropped. Priors are clamped to [0.10, 0.35].
func (e *Engine) SeedSuggestions(suggestions []llm.Suggestion) []Change {
	var changes []Change
	for _, s := range suggestions {
		if !s.Category.IsValid() {
			continue
		}
		if _, exists := e.byCategory[s.Category]; exists {
			continue
		}
		if e.similarDescription(s.Description) {
			continue
		}
		prior := math.Min(0.35, math.Max(0.10, s.Prior))
		h := &models.Hypothesis{
			ID:          uuid.NewString(),
			Category:    s.Category,
			Description: s.Description,
			Prior:       prior,
			Confidence:  prior,
			State:       models.HypothesisActive,
			UpdatedAt:   time.Now().UTC(),
		}
		e.track(h, nil)
		changes = append(changes, Change{Kind: ChangeAdded, Hypothesis: *h})
	}
	return changes
}

// EnsureResidual creates the residual `unknown` hypothesis when every
// tracked hypothesis has been eliminated (or none exist). Returns the
// change and true when a residual was created.
func (e *Engine) EnsureResidual() (Change, bool) {
	for _, id := range e.order {
		if e.byID[id].hyp.State != models.HypothesisEliminated {
			return Change{}, false
		}
	}
	if _, exists := e.byCategory[models.CategoryUnknown]; exists {
		return Change{}, false
	}
	h := &models.Hypothesis{
		ID:          uuid.NewString(),
		Category:    models.CategoryUnknown,
		Description: "Root cause not identified by available evidence",
		Prior:       0.3,
		Confidence:  0.3,
		State:       models.HypothesisActive,
		UpdatedAt:   time.Now().UTC(),
	}
	e.track(h, nil)
	return Change{Kind: ChangeAdded, Hypothesis: *h}, true
}

// Promotable checks the promotion rule: the top-ranked hypothesis is
// confirmed when its confidence reaches the auto-resolve threshold and
// leads the runner-up by at least the tie-break margin. On success the
// hypothesis is marked confirmed and a copy is returned.
func (e *Engine) Promotable() (models.Hypothesis, bool) {
	ranked := e.Ranked()
	if len(ranked) == 0 {
		return models.Hypothesis{}, false
	}
	top := ranked[0]
	if top.Confidence < e.autoResolve {
		return models.Hypothesis{}, false
	}
	if len(ranked) > 1 && top.Confidence-ranked[1].Confidence < e.margin {
		return models.Hypothesis{}, false
	}
	t := e.byID[top.ID]
	t.hyp.State = models.HypothesisConfirmed
	t.hyp.UpdatedAt = time.Now().UTC()
	return *t.hyp, true
}

// Ranked returns copies of the non-eliminated hypotheses, best first. Two
// hypotheses within 0.02 confidence of each other are ordered by distinct
// source count, then prior, then category.
func (e *Engine) Ranked() []models.Hypothesis {
	var out []models.Hypothesis
	distinct := make(map[string]int)
	for _, id := range e.order {
		t := e.byID[id]
		if t.hyp.State == models.HypothesisEliminated {
			continue
		}
		out = append(out, *t.hyp)
		distinct[id] = e.distinctSources(t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if math.Abs(a.Confidence-b.Confidence) > 0.02 {
			return a.Confidence > b.Confidence
		}
		if distinct[a.ID] != distinct[b.ID] {
			return distinct[a.ID] > distinct[b.ID]
		}
		if a.Prior != b.Prior {
			return a.Prior > b.Prior
		}
		return a.Category < b.Category
	})
	return out
}

// QueryRequests proposes the adapters whose evidence would most move the
// top-two gap: required-evidence sources of the leading hypotheses that
// have not produced evidence yet, heaviest first.
func (e *Engine) QueryRequests(seen func(source string) bool) []QueryRequest {
	ranked := e.Ranked()
	if len(ranked) > 2 {
		ranked = ranked[:2]
	}
	var reqs []QueryRequest
	requested := make(map[string]bool)
	for _, h := range ranked {
		t := e.byID[h.ID]
		if t.pattern == nil {
			continue
		}
		for _, req := range t.pattern.Required {
			if requested[req.Source] || seen(req.Source) {
				continue
			}
			requested[req.Source] = true
			reqs = append(reqs, QueryRequest{
				Adapter:      req.Source,
				Weight:       req.Weight,
				HypothesisID: h.ID,
			})
		}
	}
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].Weight > reqs[j].Weight })
	return reqs
}

// Restore installs a hypothesis under its original identity, reset to its
// prior, so a replayed evidence stream rescores it exactly as the live run
// did. The matching pattern is re-attached by category so evidence routing
// behaves identically.
func (e *Engine) Restore(h models.Hypothesis) {
	if _, exists := e.byID[h.ID]; exists {
		return
	}
	if id, exists := e.byCategory[h.Category]; exists {
		// The category is already tracked under a different id (a pattern
		// match instantiated it first). Alias the recorded identity to it so
		// explicitly bound evidence still routes.
		e.byID[h.ID] = e.byID[id]
		return
	}
	restored := &models.Hypothesis{
		ID:          h.ID,
		Category:    h.Category,
		Description: h.Description,
		Prior:       h.Prior,
		Confidence:  h.Prior,
		State:       models.HypothesisActive,
		UpdatedAt:   h.UpdatedAt,
	}
	var p *patterns.Pattern
	if found, ok := e.lib.ByCategory(h.Category); ok {
		p = found
	}
	e.track(restored, p)
}

// IDForCategory returns the hypothesis id tracking a category, if any.
// Decision-tree conclusions bind their evidence through this lookup.
func (e *Engine) IDForCategory(cat models.Category) (string, bool) {
	id, ok := e.byCategory[cat]
	return id, ok
}

// Get returns a copy of one hypothesis.
func (e *Engine) Get(id string) (models.Hypothesis, bool) {
	t, ok := e.byID[id]
	if !ok {
		return models.Hypothesis{}, false
	}
	return *t.hyp, true
}

// All returns copies of every tracked hypothesis in creation order,
// eliminated ones included.
func (e *Engine) All() []models.Hypothesis {
	out := make([]models.Hypothesis, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.byID[id].hyp)
	}
	return out
}

// Len returns the number of tracked hypotheses.
func (e *Engine) Len() int { return len(e.order) }

// Actions returns the recommended actions for a hypothesis, from its
// pattern's resolution templates. Pattern-less hypotheses get a generic
// follow-up action.
func (e *Engine) Actions(id string) []models.RecommendedAction {
	t, ok := e.byID[id]
	if !ok {
		return nil
	}
	if t.pattern != nil {
		return t.pattern.Actions()
	}
	return []models.RecommendedAction{{
		Priority:    "medium",
		Category:    "investigation",
		Description: fmt.Sprintf("Manually verify the %s hypothesis against the collected evidence", t.hyp.Category),
	}}
}

func (e *Engine) instantiate(match patterns.Match) Change {
	if id, exists := e.byCategory[match.Pattern.Category]; exists {
		// A hypothesis with this category already exists (LLM-seeded or an
		// earlier pattern). Merge the matched evidence into it.
		t := e.byID[id]
		if t.pattern == nil {
			t.pattern = match.Pattern
		}
		for _, ev := range match.Evidence {
			e.bind(t, ev)
		}
		t.hyp.UpdatedAt = time.Now().UTC()
		return Change{Kind: ChangeUpdated, Hypothesis: *t.hyp}
	}

	h := &models.Hypothesis{
		ID:          uuid.NewString(),
		Category:    match.Pattern.Category,
		Description: match.Pattern.Description,
		Prior:       match.Pattern.Prior,
		Confidence:  match.Pattern.Prior,
		State:       models.HypothesisActive,
		UpdatedAt:   time.Now().UTC(),
	}
	t := e.track(h, match.Pattern)
	for _, ev := range match.Evidence {
		e.bind(t, ev)
	}
	return Change{Kind: ChangeAdded, Hypothesis: *h}
}

func (e *Engine) track(h *models.Hypothesis, p *patterns.Pattern) *tracked {
	t := &tracked{hyp: h, pattern: p, bound: make(map[string]bool)}
	e.byID[h.ID] = t
	e.byCategory[h.Category] = h.ID
	e.order = append(e.order, h.ID)
	return t
}

// route attaches one evidence item to every hypothesis it bears on.
// Explicitly bound evidence goes to its hypothesis. Unbound evidence is
// matched against each hypothesis's symptom predicates; unbound negative
// evidence additionally counts against hypotheses whose pattern requires
// that source (a timeout from a required source weakly opposes the
// pattern).
func (e *Engine) route(ev models.Evidence) {
	if ev.HypothesisID != "" {
		if t, ok := e.byID[ev.HypothesisID]; ok {
			e.bind(t, ev)
		}
		return
	}
	for _, id := range e.order {
		t := e.byID[id]
		if t.pattern == nil {
			continue
		}
		if e.bearsOn(t.pattern, ev) {
			e.bind(t, ev)
		}
	}
}

func (e *Engine) bearsOn(p *patterns.Pattern, ev models.Evidence) bool {
	for _, pred := range p.Symptoms {
		if pred.Matches(ev) {
			return true
		}
	}
	if !ev.Supports {
		for _, req := range p.Required {
			if req.Source == ev.Source {
				return true
			}
		}
	}
	return false
}

func (e *Engine) bind(t *tracked, ev models.Evidence) {
	if t.bound[ev.ID] {
		return
	}
	t.bound[ev.ID] = true
	t.dirty = true
	t.contrib = append(t.contrib, contribution{
		evidenceID: ev.ID,
		source:     ev.Source,
		score:      float64(ev.Weight) * ev.SourceConfidence,
		supports:   ev.Supports,
	})
	if ev.Supports {
		t.hyp.EvidenceFor = append(t.hyp.EvidenceFor, ev.ID)
	} else {
		t.hyp.EvidenceAgainst = append(t.hyp.EvidenceAgainst, ev.ID)
	}
}

// rescore applies the confidence update to every active hypothesis whose
// bound-evidence set changed since its last rescore. Each recompute moves
// confidence from its current value by
//
//	α · (S_for − β·S_against) / (1 + S_for + S_against)
//
// where the sums run over all bound evidence, so confidence accumulates
// across recomputes while the saturating denominator damps redundant
// evidence. Evidence bound elsewhere never moves a hypothesis. A hypothesis
// dropping to the elimination threshold is eliminated and never rescored
// again.
func (e *Engine) rescore() []Change {
	var changes []Change
	for _, id := range e.order {
		t := e.byID[id]
		if t.hyp.State != models.HypothesisActive || !t.dirty {
			continue
		}
		t.dirty = false
		var sFor, sAgainst float64
		for _, c := range t.contrib {
			if c.supports {
				sFor += c.score
			} else {
				sAgainst += c.score
			}
		}
		delta := e.scoring.Alpha * (sFor - e.scoring.Beta*sAgainst) / (1 + sFor + sAgainst)
		next := clip(t.hyp.Confidence + delta)
		if next == t.hyp.Confidence {
			continue
		}
		t.hyp.Confidence = next
		t.hyp.UpdatedAt = time.Now().UTC()
		if next <= e.eliminate {
			t.hyp.State = models.HypothesisEliminated
			changes = append(changes, Change{Kind: ChangeEliminated, Hypothesis: *t.hyp})
			continue
		}
		changes = append(changes, Change{Kind: ChangeUpdated, Hypothesis: *t.hyp})
	}
	return changes
}

func (e *Engine) distinctSources(t *tracked) int {
	seen := make(map[string]bool)
	for _, c := range t.contrib {
		seen[c.source] = true
	}
	return len(seen)
}

// similarDescription reports whether an existing hypothesis description is
// close enough to treat the suggestion as a duplicate. Word-overlap check,
// deliberately crude.
func (e *Engine) similarDescription(desc string) bool {
	words := fields(desc)
	if len(words) == 0 {
		return false
	}
	for _, id := range e.order {
		existing := fields(e.byID[id].hyp.Description)
		overlap := 0
		for w := range words {
			if existing[w] {
				overlap++
			}
		}
		if float64(overlap)/float64(len(words)) >= 0.8 {
			return true
		}
	}
	return false
}

func fields(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}

func clip(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
