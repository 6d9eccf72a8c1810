package hypothesis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipsight/shipsight/pkg/config"
	"github.com/shipsight/shipsight/pkg/llm"
	"github.com/shipsight/shipsight/pkg/models"
	"github.com/shipsight/shipsight/pkg/patterns"
)

func newTestEngine(t *testing.T, lib *patterns.Library) *Engine {
	t.Helper()
	if lib == nil {
		lib = patterns.Builtin()
	}
	return NewEngine(*config.DefaultScoringConfig(), *config.DefaultEngineConfig(), lib)
}

func evidence(id, source, finding string, supports bool, weight int) models.Evidence {
	return models.Evidence{
		ID:               id,
		Source:           source,
		Finding:          finding,
		Supports:         supports,
		Weight:           weight,
		SourceConfidence: 1.0,
	}
}

func TestObserveInstantiatesPatternAtPrior(t *testing.T) {
	e := newTestEngine(t, nil)

	ev := evidence("e1", "network-relationship", "no active relationship between S1 and C1", true, models.WeightCritical)
	changes := e.Observe(ev, []models.Evidence{ev})

	require.NotEmpty(t, changes)
	assert.Equal(t, ChangeAdded, changes[0].Kind)
	h := changes[0].Hypothesis
	assert.Equal(t, models.CategoryNetworkRelationshipMissing, h.Category)
	assert.Equal(t, 0.30, h.Prior)

	// The triggering evidence is bound and the first rescore lifts the
	// hypothesis above its prior.
	got, ok := e.Get(h.ID)
	require.True(t, ok)
	assert.Contains(t, got.EvidenceFor, "e1")
	assert.InDelta(t, 0.30+0.15*10.0/11.0, got.Confidence, 1e-9)
}

func TestCriticalEvidencePromotesHypothesis(t *testing.T) {
	e := newTestEngine(t, nil)

	trigger := evidence("e1", "tracking-api", "load 614258134 not found in tracking system", true, models.WeightCritical)
	snapshot := []models.Evidence{trigger}
	changes := e.Observe(trigger, snapshot)
	require.NotEmpty(t, changes)
	hypID := changes[0].Hypothesis.ID

	_, ok := e.Promotable()
	assert.False(t, ok, "one critical item is not enough")

	// Corroborating critical evidence from further sources accumulates
	// confidence past the auto-resolve threshold.
	for i, source := range []string{"rpa-scraper", "historical-logs", "callback-history"} {
		ev := evidence(fmt.Sprintf("e%d", i+2), source, "no trace of the load downstream", true, models.WeightCritical)
		ev.HypothesisID = hypID
		snapshot = append(snapshot, ev)
		e.Observe(ev, snapshot)
	}

	got, _ := e.Get(hypID)
	assert.GreaterOrEqual(t, got.Confidence, 0.80)

	confirmed, ok := e.Promotable()
	require.True(t, ok)
	assert.Equal(t, hypID, confirmed.ID)
	assert.Equal(t, models.HypothesisConfirmed, confirmed.State)
}

func TestUnboundEvidenceLeavesConfidenceUnchanged(t *testing.T) {
	lib, err := patterns.NewLibrary([]*patterns.Pattern{{
		ID:       "nr",
		Category: models.CategoryNetworkRelationshipMissing,
		Prior:    0.3,
		Symptoms: []patterns.Predicate{{Source: "network-relationship", FindingContains: "no active relationship"}},
	}})
	require.NoError(t, err)
	e := newTestEngine(t, lib)

	trigger := evidence("e1", "network-relationship", "no active relationship between S1 and C1", true, models.WeightCritical)
	changes := e.Observe(trigger, []models.Evidence{trigger})
	hypID := changes[0].Hypothesis.ID
	after, _ := e.Get(hypID)
	want := after.Confidence

	// A stream of evidence bearing on nothing must not move the hypothesis:
	// its score is a function of its own bound evidence only.
	snapshot := []models.Evidence{trigger}
	for i := 0; i < 5; i++ {
		chatter := evidence(fmt.Sprintf("u%d", i), "chat-history", "customer asked for an update", true, models.WeightWeak)
		snapshot = append(snapshot, chatter)
		for _, ch := range e.Observe(chatter, snapshot) {
			assert.NotEqual(t, hypID, ch.Hypothesis.ID, "unrelated evidence produced a change for the hypothesis")
		}
	}

	got, _ := e.Get(hypID)
	assert.InDelta(t, want, got.Confidence, 1e-12)
	assert.Len(t, got.EvidenceFor, 1, "no extra evidence was bound")

	_, ok := e.Promotable()
	assert.False(t, ok, "a single trigger cannot self-promote on unrelated volume")
}

func TestEliminationIsSticky(t *testing.T) {
	e := newTestEngine(t, nil)

	trigger := evidence("e1", "network-relationship", "no active relationship between S1 and C1", true, models.WeightCritical)
	changes := e.Observe(trigger, []models.Evidence{trigger})
	hypID := changes[0].Hypothesis.ID

	// Strong contradicting evidence drives the hypothesis to the floor.
	var eliminated bool
	snapshot := []models.Evidence{trigger}
	for i := 0; i < 6 && !eliminated; i++ {
		con := evidence(fmt.Sprintf("c%d", i), "internal-config", "relationship verified active in config", false, models.WeightCritical)
		con.HypothesisID = hypID
		snapshot = append(snapshot, con)
		for _, ch := range e.Observe(con, snapshot) {
			if ch.Kind == ChangeEliminated && ch.Hypothesis.ID == hypID {
				eliminated = true
			}
		}
	}
	require.True(t, eliminated)

	got, _ := e.Get(hypID)
	assert.Equal(t, models.HypothesisEliminated, got.State)
	assert.LessOrEqual(t, got.Confidence, 0.10)

	// Supporting evidence cannot resurrect it.
	sup := evidence("s1", "tracking-api", "positions resumed", true, models.WeightCritical)
	sup.HypothesisID = hypID
	snapshot = append(snapshot, sup)
	e.Observe(sup, snapshot)

	got, _ = e.Get(hypID)
	assert.Equal(t, models.HypothesisEliminated, got.State)
	assert.Empty(t, e.Ranked(), "eliminated hypotheses leave the ranking")
}

func TestEnsureResidual(t *testing.T) {
	e := newTestEngine(t, nil)

	// With no hypotheses at all the residual is created immediately.
	change, created := e.EnsureResidual()
	require.True(t, created)
	assert.Equal(t, models.CategoryUnknown, change.Hypothesis.Category)
	assert.Equal(t, 0.3, change.Hypothesis.Confidence)

	// Idempotent.
	_, created = e.EnsureResidual()
	assert.False(t, created)
}

func TestEnsureResidualOnlyWhenAllEliminated(t *testing.T) {
	e := newTestEngine(t, nil)

	trigger := evidence("e1", "tracking-api", "load not found", true, models.WeightCritical)
	e.Observe(trigger, []models.Evidence{trigger})

	_, created := e.EnsureResidual()
	assert.False(t, created, "an active hypothesis blocks the residual")
}

func TestRankedTieBreakPrefersDistinctSources(t *testing.T) {
	lib, err := patterns.NewLibrary([]*patterns.Pattern{
		{
			ID:       "a",
			Category: models.CategoryCarrierAPIDown,
			Prior:    0.3,
			Symptoms: []patterns.Predicate{
				{Source: "recent-logs", FindingContains: "carrier api"},
				{Source: "tracking-api", FindingContains: "no positions"},
			},
		},
		{
			ID:       "b",
			Category: models.CategoryCallbackDeliveryFailed,
			Prior:    0.3,
			Symptoms: []patterns.Predicate{
				{Source: "callback-history", FindingContains: "delivery failed"},
			},
		},
	})
	require.NoError(t, err)
	e := newTestEngine(t, lib)

	// All trigger evidence lands in one snapshot so both patterns fire on
	// the same recompute and stay within the tie window.
	evs := []models.Evidence{
		evidence("e1", "recent-logs", "carrier api 503", true, 2),
		evidence("e2", "tracking-api", "no positions since pickup", true, 2),
		evidence("e3", "callback-history", "delivery failed to webhook", true, models.WeightSupporting),
	}
	e.Observe(evs[2], evs)

	ranked := e.Ranked()
	require.Len(t, ranked, 2)

	// b holds slightly higher confidence but a is backed by two distinct
	// sources; within the 0.02 window source diversity wins.
	assert.InDelta(t, ranked[0].Confidence, ranked[1].Confidence, 0.02)
	assert.Equal(t, models.CategoryCarrierAPIDown, ranked[0].Category)
}

func TestPromotableRequiresMargin(t *testing.T) {
	lib, err := patterns.NewLibrary([]*patterns.Pattern{
		{
			ID:       "a",
			Category: models.CategoryCarrierAPIDown,
			Prior:    0.3,
			Symptoms: []patterns.Predicate{{Source: "recent-logs"}},
		},
		{
			ID:       "b",
			Category: models.CategoryJTScrapingError,
			Prior:    0.3,
			Symptoms: []patterns.Predicate{{Source: "rpa-scraper"}},
		},
	})
	require.NoError(t, err)
	e := newTestEngine(t, lib)

	// Both hypotheses climb together: each item matches its own pattern's
	// wildcard-finding symptom, and the feeds are symmetric, so the two
	// stay in lockstep.
	snapshot := []models.Evidence{}
	for i := 0; i < 6; i++ {
		a := evidence(fmt.Sprintf("a%d", i), "recent-logs", "carrier api errors", true, models.WeightCritical)
		b := evidence(fmt.Sprintf("b%d", i), "rpa-scraper", "scrape failed for carrier", true, models.WeightCritical)
		snapshot = append(snapshot, a, b)
		e.Observe(a, snapshot)
		e.Observe(b, snapshot)
	}

	ranked := e.Ranked()
	require.Len(t, ranked, 2)
	require.GreaterOrEqual(t, ranked[0].Confidence, 0.80)
	require.Less(t, ranked[0].Confidence-ranked[1].Confidence, 0.15)

	_, ok := e.Promotable()
	assert.False(t, ok, "a close runner-up blocks auto-resolve")
}

func TestQueryRequests(t *testing.T) {
	lib, err := patterns.NewLibrary([]*patterns.Pattern{{
		ID:       "nr",
		Category: models.CategoryNetworkRelationshipMissing,
		Prior:    0.3,
		Symptoms: []patterns.Predicate{{Source: "network-relationship", FindingContains: "no active relationship"}},
		Required: []patterns.RequiredEvidence{
			{Source: "network-relationship", Weight: 10},
			{Source: "historical-warehouse", Weight: 5},
			{Source: "internal-config", Weight: 3},
		},
	}})
	require.NoError(t, err)
	e := newTestEngine(t, lib)

	trigger := evidence("e1", "network-relationship", "no active relationship between S1 and C1", true, models.WeightCritical)
	e.Observe(trigger, []models.Evidence{trigger})

	seen := map[string]bool{"network-relationship": true}
	reqs := e.QueryRequests(func(source string) bool { return seen[source] })

	require.Len(t, reqs, 2)
	assert.Equal(t, "historical-warehouse", reqs[0].Adapter, "heaviest unseen source first")
	assert.Equal(t, "internal-config", reqs[1].Adapter)
	assert.NotEmpty(t, reqs[0].HypothesisID)
}

func TestSeedSuggestions(t *testing.T) {
	e := newTestEngine(t, nil)

	trigger := evidence("e1", "tracking-api", "load not found", true, models.WeightCritical)
	e.Observe(trigger, []models.Evidence{trigger})

	changes := e.SeedSuggestions([]llm.Suggestion{
		{Category: "not-a-category", Description: "bogus", Prior: 0.5},
		{Category: models.CategoryLoadNotFound, Description: "duplicate category", Prior: 0.2},
		{Category: models.CategoryELDNotEnabled, Description: "ELD never enabled for this carrier", Prior: 0.9},
	})

	require.Len(t, changes, 1)
	h := changes[0].Hypothesis
	assert.Equal(t, models.CategoryELDNotEnabled, h.Category)
	assert.Equal(t, 0.35, h.Prior, "priors are clamped to [0.10, 0.35]")

	// A near-identical description is treated as a duplicate.
	changes = e.SeedSuggestions([]llm.Suggestion{
		{Category: models.CategoryCarrierAPIDown, Description: "ELD never enabled for this carrier", Prior: 0.2},
	})
	assert.Empty(t, changes)
}

func TestRestoreReproducesLiveScoring(t *testing.T) {
	live := newTestEngine(t, nil)

	trigger := evidence("e1", "tracking-api", "load 42 not found in tracking system", true, models.WeightCritical)
	changes := live.Observe(trigger, []models.Evidence{trigger})
	added := changes[0].Hypothesis

	follow := evidence("e2", "rpa-scraper", "carrier portal has no such load", true, models.WeightSupporting)
	follow.HypothesisID = added.ID
	live.Observe(follow, []models.Evidence{trigger, follow})
	want, _ := live.Get(added.ID)

	// A fresh engine fed the recorded additions and the same evidence
	// sequence lands on the same confidence.
	replayed := newTestEngine(t, nil)
	replayed.Restore(models.Hypothesis{
		ID:          added.ID,
		Category:    added.Category,
		Description: added.Description,
		Prior:       added.Prior,
	})
	replayed.Observe(trigger, []models.Evidence{trigger})
	replayed.Observe(follow, []models.Evidence{trigger, follow})

	got, ok := replayed.Get(added.ID)
	require.True(t, ok)
	assert.InDelta(t, want.Confidence, got.Confidence, 1e-9)
}
