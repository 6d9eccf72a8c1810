package models

import "time"

// HypothesisState is the lifecycle state of a hypothesis.
type HypothesisState string

const (
	HypothesisActive     HypothesisState = "active"
	HypothesisConfirmed  HypothesisState = "confirmed"
	HypothesisEliminated HypothesisState = "eliminated"
)

// Hypothesis is a candidate root cause. Its ID is assigned once and never
// reused; elimination is a state change, not a deletion.
type Hypothesis struct {
	ID          string          `json:"id"`
	Category    Category        `json:"category"`
	Description string          `json:"description"`
	Prior       float64         `json:"prior"`
	Confidence  float64         `json:"confidence"`
	State       HypothesisState `json:"state"`

	// Evidence bindings, by evidence ID.
	EvidenceFor     []string `json:"evidence_for"`
	EvidenceAgainst []string `json:"evidence_against"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DistinctSources counts the distinct evidence sources bound to the
// hypothesis (for and against). Used by the scoring tie-break.
func (h *Hypothesis) DistinctSources(lookup func(evidenceID string) (Evidence, bool)) int {
	seen := make(map[string]struct{})
	for _, id := range h.EvidenceFor {
		if ev, ok := lookup(id); ok {
			seen[ev.Source] = struct{}{}
		}
	}
	for _, id := range h.EvidenceAgainst {
		if ev, ok := lookup(id); ok {
			seen[ev.Source] = struct{}{}
		}
	}
	return len(seen)
}

// RecommendedAction is one remediation step attached to a root-cause verdict.
type RecommendedAction struct {
	Priority    string `json:"priority"` // "high", "medium", "low"
	Category    string `json:"category"`
	Description string `json:"description"`
}

// RootCause is the terminal verdict of a successful investigation.
type RootCause struct {
	Category           Category            `json:"category"`
	Description        string              `json:"description"`
	Confidence         float64             `json:"confidence"`
	RecommendedActions []RecommendedAction `json:"recommended_actions"`
}

// HumanInputRequest is the terminal request of an escalated investigation.
type HumanInputRequest struct {
	Question           string   `json:"question"`
	MissingIdentifiers []string `json:"missing_identifiers"`
}
