// Package patterns holds the declarative registry of domain patterns:
// hypothesis templates matched against accumulated evidence. Patterns are
// data, not code, so the library is swappable without touching the engine.
package patterns

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shipsight/shipsight/pkg/models"
)

// Predicate is one conjunctive condition over evidence fields. Zero-valued
// fields are wildcards.
type Predicate struct {
	Source          string `yaml:"source"`
	FindingContains string `yaml:"finding_contains"`
	Supports        *bool  `yaml:"supports,omitempty"`
	MinWeight       int    `yaml:"min_weight,omitempty"`
}

// Matches reports whether the evidence item satisfies the predicate.
func (p Predicate) Matches(ev models.Evidence) bool {
	if p.Source != "" && ev.Source != p.Source {
		return false
	}
	if p.FindingContains != "" && !strings.Contains(strings.ToLower(ev.Finding), strings.ToLower(p.FindingContains)) {
		return false
	}
	if p.Supports != nil && ev.Supports != *p.Supports {
		return false
	}
	if p.MinWeight > 0 && ev.Weight < p.MinWeight {
		return false
	}
	return true
}

// RequiredEvidence names an adapter whose evidence the pattern's hypothesis
// needs, with the weight it expects. The hypothesis engine uses these to
// direct further queries.
type RequiredEvidence struct {
	Source string `yaml:"source"`
	Weight int    `yaml:"weight"`
}

// Resolution is the recommended-action template attached to a confirmed
// pattern.
type Resolution struct {
	Priority    string `yaml:"priority"` // high, medium, low
	Category    string `yaml:"category"` // action category, e.g. "network", "config"
	Description string `yaml:"description"`
}

// Pattern is one domain pattern record.
type Pattern struct {
	ID          string             `yaml:"id"`
	Category    models.Category    `yaml:"category"`
	Description string             `yaml:"description"`
	Prior       float64            `yaml:"prior"`
	Symptoms    []Predicate        `yaml:"symptoms"`
	Required    []RequiredEvidence `yaml:"required_evidence"`
	Resolutions []Resolution       `yaml:"resolutions"`
}

// Actions converts the pattern's resolution templates to recommended
// actions.
func (p *Pattern) Actions() []models.RecommendedAction {
	out := make([]models.RecommendedAction, 0, len(p.Resolutions))
	for _, r := range p.Resolutions {
		out = append(out, models.RecommendedAction{
			Priority:    r.Priority,
			Category:    r.Category,
			Description: r.Description,
		})
	}
	return out
}

// Library is an immutable, ordered set of patterns.
type Library struct {
	patterns []*Pattern
	byID     map[string]*Pattern
}

// NewLibrary builds a library, rejecting duplicate IDs and categories
// outside the closed enumeration.
func NewLibrary(patterns []*Pattern) (*Library, error) {
	lib := &Library{byID: make(map[string]*Pattern, len(patterns))}
	for _, p := range patterns {
		if p.ID == "" {
			return nil, fmt.Errorf("pattern with empty id")
		}
		if _, dup := lib.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate pattern id %q", p.ID)
		}
		if !p.Category.IsValid() {
			return nil, fmt.Errorf("pattern %q: unknown category %q", p.ID, p.Category)
		}
		if len(p.Symptoms) == 0 {
			return nil, fmt.Errorf("pattern %q: no symptom predicates", p.ID)
		}
		lib.byID[p.ID] = p
		lib.patterns = append(lib.patterns, p)
	}
	return lib, nil
}

// LoadLibrary reads a YAML pattern file:
//
//	patterns:
//	  - id: ...
//	    category: ...
func LoadLibrary(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern library: %w", err)
	}
	var doc struct {
		Patterns []*Pattern `yaml:"patterns"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pattern library: %w", err)
	}
	return NewLibrary(doc.Patterns)
}

// All returns the patterns in registration order.
func (l *Library) All() []*Pattern {
	return l.patterns
}

// Get returns a pattern by ID.
func (l *Library) Get(id string) (*Pattern, bool) {
	p, ok := l.byID[id]
	return p, ok
}

// ByCategory returns the first pattern with the given category.
func (l *Library) ByCategory(cat models.Category) (*Pattern, bool) {
	for _, p := range l.patterns {
		if p.Category == cat {
			return p, true
		}
	}
	return nil, false
}

// Len returns the number of registered patterns.
func (l *Library) Len() int { return len(l.patterns) }

// Match is one full pattern match against an evidence snapshot.
type Match struct {
	Pattern  *Pattern
	Evidence []models.Evidence // the items satisfying each symptom predicate
}

// Matcher evaluates unmatched patterns against evidence for one
// investigation. On first full match a pattern fires exactly once.
type Matcher struct {
	lib   *Library
	fired map[string]bool
}

// NewMatcher creates a matcher over the library for one investigation.
func NewMatcher(lib *Library) *Matcher {
	return &Matcher{lib: lib, fired: make(map[string]bool)}
}

// Evaluate re-checks all unmatched patterns against the snapshot and returns
// patterns that newly reached a full match. Each symptom predicate must be
// satisfied by at least one evidence item (conjunctive).
func (m *Matcher) Evaluate(snapshot []models.Evidence) []Match {
	var out []Match
	for _, p := range m.lib.patterns {
		if m.fired[p.ID] {
			continue
		}
		matched := make([]models.Evidence, 0, len(p.Symptoms))
		full := true
		for _, pred := range p.Symptoms {
			found := false
			for _, ev := range snapshot {
				if pred.Matches(ev) {
					matched = append(matched, ev)
					found = true
					break
				}
			}
			if !found {
				full = false
				break
			}
		}
		if full {
			m.fired[p.ID] = true
			out = append(out, Match{Pattern: p, Evidence: matched})
		}
	}
	return out
}
