package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"
)

// Evidence weight bands. Weights are 1–10; these are the conventional values
// used by the built-in adapters and patterns.
const (
	WeightCritical   = 10
	WeightSupporting = 5
	WeightAuxiliary  = 3
	WeightWeak       = 1
)

// Evidence is a single, immutable, source-attributed finding. Once appended
// to a store it is never mutated or removed; only its influence on scoring
// changes.
type Evidence struct {
	ID               string          `json:"id"`
	Source           string          `json:"source"`
	Finding          string          `json:"finding"`
	Supports         bool            `json:"supports"`
	Weight           int             `json:"weight"`
	SourceConfidence float64         `json:"source_confidence"`
	Raw              json.RawMessage `json:"raw,omitempty"`
	HypothesisID     string          `json:"hypothesis_id,omitempty"`
	AgentID          string          `json:"agent_id,omitempty"`
	Timestamp        time.Time       `json:"ts"`

	// Seq is the store-assigned monotonic sequence number, used to break
	// wall-clock ties between concurrent writers.
	Seq int64 `json:"seq"`
}

// FindingHash returns the structural hash of the finding text, used as part
// of the store's de-duplication key.
func (e Evidence) FindingHash() string {
	sum := sha256.Sum256([]byte(e.Finding))
	return hex.EncodeToString(sum[:8])
}

// DedupKey identifies structurally identical evidence. An item with the same
// key as an existing one is coalesced rather than appended.
func (e Evidence) DedupKey() string {
	b := byte('0')
	if e.Supports {
		b = '1'
	}
	return e.Source + "|" + e.FindingHash() + "|" + string(b) + "|" +
		strconv.Itoa(e.Weight) + "|" + e.HypothesisID
}
