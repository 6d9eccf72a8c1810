package supervisor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shipsight/shipsight/pkg/config"
	"github.com/shipsight/shipsight/pkg/events"
	"github.com/shipsight/shipsight/pkg/evidence"
	"github.com/shipsight/shipsight/pkg/hypothesis"
	"github.com/shipsight/shipsight/pkg/models"
	"github.com/shipsight/shipsight/pkg/patterns"
)

// Replayer rebuilds investigation state by re-applying a recorded event
// stream in order. With the same scoring configuration and pattern library
// as the live run, the reconstructed hypothesis confidences match the live
// ones within floating-point tolerance.
type Replayer struct {
	store  *evidence.Store
	engine *hypothesis.Engine
}

// NewReplayer builds a replayer with a fresh store and engine.
func NewReplayer(scoring config.ScoringConfig, engineCfg config.EngineConfig, lib *patterns.Library) *Replayer {
	if lib == nil {
		lib = patterns.Builtin()
	}
	return &Replayer{
		store:  evidence.NewStore(engineCfg.MaxEvidence),
		engine: hypothesis.NewEngine(scoring, engineCfg, lib),
	}
}

// Apply consumes one wire-format record (`<kind>\t<json>`). Records other
// than hypothesis_added and evidence_added are ignored; hypothesis state is
// derived, not copied.
func (r *Replayer) Apply(record []byte) error {
	record = bytes.TrimRight(record, "\n")
	kind, body, found := bytes.Cut(record, []byte{'\t'})
	if !found {
		return fmt.Errorf("malformed record: no kind separator")
	}
	switch string(kind) {
	case events.KindHypothesisAdded:
		var p events.HypothesisPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return fmt.Errorf("decode hypothesis_added: %w", err)
		}
		// At hypothesis_added time confidence equals the prior.
		r.engine.Restore(models.Hypothesis{
			ID:          p.HypothesisID,
			Category:    p.Category,
			Description: p.Description,
			Prior:       float64(p.Confidence),
		})
	case events.KindEvidenceAdded:
		var p events.EvidenceAddedPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return fmt.Errorf("decode evidence_added: %w", err)
		}
		return r.ApplyEvidence(models.Evidence{
			ID:               p.EvidenceID,
			Source:           p.Source,
			Finding:          p.Finding,
			Supports:         p.Supports,
			Weight:           p.Weight,
			SourceConfidence: float64(p.SourceConfidence),
			HypothesisID:     p.HypothesisID,
			Timestamp:        parseTS(p.Timestamp),
		})
	}
	return nil
}

// ApplyEvidence feeds one evidence item straight into the store and engine.
func (r *Replayer) ApplyEvidence(ev models.Evidence) error {
	stored, added := r.store.Append(ev)
	if !added {
		return nil
	}
	r.engine.Observe(stored, r.store.Snapshot())
	return nil
}

// ApplyStream consumes a newline-framed stream of records.
func (r *Replayer) ApplyStream(stream io.Reader) error {
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := r.Apply(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Hypotheses returns the reconstructed hypotheses in creation order.
func (r *Replayer) Hypotheses() []models.Hypothesis {
	return r.engine.All()
}

// Evidence returns the reconstructed evidence log.
func (r *Replayer) Evidence() []models.Evidence {
	return r.store.Snapshot()
}

func parseTS(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
