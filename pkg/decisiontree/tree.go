// Package decisiontree evaluates declarative YAML decision trees for modes
// whose investigation protocol is deterministic enough to flowchart. The
// tree runs alongside the generative hypothesis loop; its conclusions enter
// the hypothesis engine as pre-weighted evidence and never short-circuit
// other hypotheses.
package decisiontree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shipsight/shipsight/pkg/models"
)

// Check is a predicate over the evidence collected so far. It matches when
// any evidence item satisfies every set field.
type Check struct {
	Source          string `yaml:"source"`
	FindingContains string `yaml:"finding_contains"`
	Supports        *bool  `yaml:"supports,omitempty"`
}

func (c Check) matches(items []models.Evidence) bool {
	for _, ev := range items {
		if c.Source != "" && ev.Source != c.Source {
			continue
		}
		if c.FindingContains != "" && !strings.Contains(strings.ToLower(ev.Finding), strings.ToLower(c.FindingContains)) {
			continue
		}
		if c.Supports != nil && ev.Supports != *c.Supports {
			continue
		}
		return true
	}
	return false
}

// Conclusion is a terminal verdict of one branch: a pre-weighted evidence
// item bound to a hypothesis category.
type Conclusion struct {
	Category         models.Category `yaml:"category"`
	Finding          string          `yaml:"finding"`
	Weight           int             `yaml:"weight"`
	SourceConfidence float64         `yaml:"source_confidence"`
}

// Outcome is one branch of a node: either a jump to the next node or a
// conclusion. Both empty ends the walk.
type Outcome struct {
	Next       string      `yaml:"next,omitempty"`
	Conclusion *Conclusion `yaml:"conclusion,omitempty"`
}

// Node pairs a check with its two outcomes.
type Node struct {
	ID      string  `yaml:"id"`
	Check   Check   `yaml:"check"`
	OnMatch Outcome `yaml:"on_match"`
	OnMiss  Outcome `yaml:"on_miss"`
}

// Tree is one mode's decision tree.
type Tree struct {
	Mode  models.Mode      `yaml:"mode"`
	Root  string           `yaml:"root"`
	Nodes map[string]*Node `yaml:"nodes"`
}

func (t *Tree) validate() error {
	if t.Root == "" {
		return fmt.Errorf("decision tree for mode %q: no root", t.Mode)
	}
	if _, ok := t.Nodes[t.Root]; !ok {
		return fmt.Errorf("decision tree for mode %q: root %q not defined", t.Mode, t.Root)
	}
	for id, n := range t.Nodes {
		for _, out := range []Outcome{n.OnMatch, n.OnMiss} {
			if out.Next != "" {
				if _, ok := t.Nodes[out.Next]; !ok {
					return fmt.Errorf("decision tree for mode %q: node %q jumps to undefined node %q", t.Mode, id, out.Next)
				}
			}
			if out.Conclusion != nil && !out.Conclusion.Category.IsValid() {
				return fmt.Errorf("decision tree for mode %q: node %q concludes unknown category %q", t.Mode, id, out.Conclusion.Category)
			}
		}
	}
	return nil
}

// Evaluate walks the tree against the evidence snapshot and returns the
// conclusions reached. The walk is loop-safe: a node is visited at most
// once per evaluation.
func (t *Tree) Evaluate(items []models.Evidence) []Conclusion {
	var out []Conclusion
	visited := make(map[string]bool)
	id := t.Root
	for id != "" && !visited[id] {
		visited[id] = true
		node := t.Nodes[id]
		branch := node.OnMiss
		if node.Check.matches(items) {
			branch = node.OnMatch
		}
		if branch.Conclusion != nil {
			out = append(out, *branch.Conclusion)
		}
		id = branch.Next
	}
	return out
}

// Load reads one tree from a YAML file.
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read decision tree: %w", err)
	}
	var t Tree
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse decision tree %s: %w", path, err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadDir reads every *.yaml tree in a directory, keyed by mode. A missing
// directory yields an empty set.
func LoadDir(dir string) (map[models.Mode]*Tree, error) {
	out := make(map[models.Mode]*Tree)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("read decision tree dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		t, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := out[t.Mode]; dup {
			return nil, fmt.Errorf("duplicate decision tree for mode %q", t.Mode)
		}
		out[t.Mode] = t
	}
	return out, nil
}

// BuiltinOcean is the documented ocean-mode flowchart: tracking lookup,
// then relationship, then vessel freshness.
func BuiltinOcean() *Tree {
	t := &Tree{
		Mode: models.ModeOcean,
		Root: "tracking-lookup",
		Nodes: map[string]*Node{
			"tracking-lookup": {
				ID:    "tracking-lookup",
				Check: Check{Source: "tracking-api", FindingContains: "not found"},
				OnMatch: Outcome{Conclusion: &Conclusion{
					Category:         models.CategoryLoadNotFound,
					Finding:          "ocean flow: load absent from tracking system",
					Weight:           models.WeightCritical,
					SourceConfidence: 1.0,
				}},
				OnMiss: Outcome{Next: "relationship"},
			},
			"relationship": {
				ID:    "relationship",
				Check: Check{Source: "network-relationship", FindingContains: "no active relationship"},
				OnMatch: Outcome{Conclusion: &Conclusion{
					Category:         models.CategoryNetworkRelationshipMissing,
					Finding:          "ocean flow: shipper-carrier relationship missing or inactive",
					Weight:           models.WeightCritical,
					SourceConfidence: 1.0,
				}},
				OnMiss: Outcome{Next: "vessel-freshness"},
			},
			"vessel-freshness": {
				ID:    "vessel-freshness",
				Check: Check{Source: "ocean-events", FindingContains: "stale"},
				OnMatch: Outcome{Conclusion: &Conclusion{
					Category:         models.CategoryStaleVesselData,
					Finding:          "ocean flow: vessel positions stale",
					Weight:           models.WeightCritical,
					SourceConfidence: 0.9,
				}},
			},
		},
	}
	if err := t.validate(); err != nil {
		panic(err)
	}
	return t
}
