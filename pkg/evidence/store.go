// Package evidence implements the per-investigation append-only evidence
// store. Writers are serialized by the store mutex; readers score against a
// consistent point-in-time snapshot.
package evidence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shipsight/shipsight/pkg/models"
)

// Store is the append-only evidence log for one investigation. Items are
// immutable once appended; de-duplication is structural on
// (source, finding-hash, supports, weight, hypothesis-binding).
type Store struct {
	mu      sync.Mutex
	items   []models.Evidence
	byID    map[string]int
	byDedup map[string]int
	seq     int64

	maxItems int
	dropped  int
	warned   bool
}

// NewStore creates a store bounded to maxItems evidence items. Additional
// items are dropped with a counter incremented and a single warning evidence
// appended.
func NewStore(maxItems int) *Store {
	if maxItems <= 0 {
		maxItems = 10000
	}
	return &Store{
		byID:     make(map[string]int),
		byDedup:  make(map[string]int),
		maxItems: maxItems,
	}
}

// Append adds an evidence item. Returns the stored item and whether it was
// newly added; a structural duplicate returns the existing item with
// added=false, which keeps retried tasks idempotent.
func (s *Store) Append(ev models.Evidence) (models.Evidence, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ev.DedupKey()
	if idx, ok := s.byDedup[key]; ok {
		return s.items[idx], false
	}

	if len(s.items) >= s.maxItems {
		s.dropped++
		if !s.warned {
			s.warned = true
			warn := models.Evidence{
				ID:               uuid.New().String(),
				Source:           "evidence-store",
				Finding:          "evidence cap reached; further items are being dropped",
				Supports:         false,
				Weight:           models.WeightWeak,
				SourceConfidence: 1.0,
				Timestamp:        time.Now(),
			}
			s.appendLocked(warn)
			slog.Warn("Evidence cap reached", "max_items", s.maxItems)
			return warn, true
		}
		return models.Evidence{}, false
	}

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	stored := s.appendLocked(ev)
	return stored, true
}

func (s *Store) appendLocked(ev models.Evidence) models.Evidence {
	s.seq++
	ev.Seq = s.seq
	s.byID[ev.ID] = len(s.items)
	s.byDedup[ev.DedupKey()] = len(s.items)
	s.items = append(s.items, ev)
	return ev
}

// Get returns an evidence item by ID.
func (s *Store) Get(id string) (models.Evidence, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return models.Evidence{}, false
	}
	return s.items[idx], true
}

// Snapshot returns a consistent copy of all items in append order.
func (s *Store) Snapshot() []models.Evidence {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Evidence, len(s.items))
	copy(out, s.items)
	return out
}

// BySource returns the items produced by one adapter, in append order.
func (s *Store) BySource(source string) []models.Evidence {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Evidence
	for _, ev := range s.items {
		if ev.Source == source {
			out = append(out, ev)
		}
	}
	return out
}

// ByHypothesis returns the items bound to one hypothesis, in append order.
func (s *Store) ByHypothesis(hypothesisID string) []models.Evidence {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Evidence
	for _, ev := range s.items {
		if ev.HypothesisID == hypothesisID {
			out = append(out, ev)
		}
	}
	return out
}

// InWindow returns items with timestamps in [from, to), in append order.
func (s *Store) InWindow(from, to time.Time) []models.Evidence {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Evidence
	for _, ev := range s.items {
		if !ev.Timestamp.Before(from) && ev.Timestamp.Before(to) {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Dropped returns the count of items rejected by the cap.
func (s *Store) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
