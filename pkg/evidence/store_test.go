package evidence

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipsight/shipsight/pkg/models"
)

func item(source, finding string, supports bool, weight int) models.Evidence {
	return models.Evidence{
		Source:           source,
		Finding:          finding,
		Supports:         supports,
		Weight:           weight,
		SourceConfidence: 1.0,
	}
}

func TestStoreAppendAssignsIDAndSeq(t *testing.T) {
	s := NewStore(100)

	first, added := s.Append(item("tracking-api", "load not found", true, models.WeightCritical))
	require.True(t, added)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, int64(1), first.Seq)
	assert.False(t, first.Timestamp.IsZero())

	second, added := s.Append(item("recent-logs", "carrier api 500", true, models.WeightSupporting))
	require.True(t, added)
	assert.Equal(t, int64(2), second.Seq)
}

func TestStoreDedupIsIdempotent(t *testing.T) {
	s := NewStore(100)

	ev := item("tracking-api", "load not found", true, models.WeightCritical)
	first, added := s.Append(ev)
	require.True(t, added)

	// A retried task re-submits the structurally identical item.
	again, added := s.Append(ev)
	assert.False(t, added)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, s.Len())

	// Same finding from a different source is distinct.
	other := item("rpa-scraper", "load not found", true, models.WeightCritical)
	_, added = s.Append(other)
	assert.True(t, added)
	assert.Equal(t, 2, s.Len())
}

func TestStoreDedupIncludesHypothesisBinding(t *testing.T) {
	s := NewStore(100)

	ev := item("tracking-api", "load not found", true, models.WeightCritical)
	_, added := s.Append(ev)
	require.True(t, added)

	bound := ev
	bound.HypothesisID = "h1"
	_, added = s.Append(bound)
	assert.True(t, added, "binding to a hypothesis makes the item distinct")
}

func TestStoreCapAppendsSingleWarning(t *testing.T) {
	s := NewStore(3)

	for i := 0; i < 3; i++ {
		_, added := s.Append(item("recent-logs", fmt.Sprintf("entry %d", i), true, models.WeightWeak))
		require.True(t, added)
	}

	// First overflow produces one warning item.
	warn, added := s.Append(item("recent-logs", "entry 3", true, models.WeightWeak))
	assert.True(t, added)
	assert.Equal(t, "evidence-store", warn.Source)
	assert.Contains(t, warn.Finding, "evidence cap reached")

	// Further overflows are silently counted.
	_, added = s.Append(item("recent-logs", "entry 4", true, models.WeightWeak))
	assert.False(t, added)
	assert.Equal(t, 2, s.Dropped())
	assert.Equal(t, 4, s.Len())
}

func TestStoreQueries(t *testing.T) {
	s := NewStore(100)

	a := item("tracking-api", "load not found", true, models.WeightCritical)
	a.HypothesisID = "h1"
	a.Timestamp = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := item("recent-logs", "carrier api 500", true, models.WeightSupporting)
	b.Timestamp = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	stored, _ := s.Append(a)
	s.Append(b)

	got, ok := s.Get(stored.ID)
	require.True(t, ok)
	assert.Equal(t, "load not found", got.Finding)

	assert.Len(t, s.BySource("tracking-api"), 1)
	assert.Len(t, s.ByHypothesis("h1"), 1)
	assert.Empty(t, s.ByHypothesis("h2"))

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	assert.Len(t, s.InWindow(from, to), 1)

	snap := s.Snapshot()
	assert.Len(t, snap, 2)
	snap[0].Finding = "mutated"
	assert.Equal(t, "load not found", s.Snapshot()[0].Finding, "snapshot must be a copy")
}
