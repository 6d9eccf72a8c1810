// Package extractor normalizes ticket input into a filled identifier map and
// an inferred transport mode. The LLM is consulted once; when it is
// unavailable or unsure, deterministic per-family regex extraction takes
// over. Every extracted identifier is tagged with its provenance.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shipsight/shipsight/pkg/llm"
	"github.com/shipsight/shipsight/pkg/models"
)

// ErrNoIdentifiers is returned when, after all strategies, no
// tracking-usable identifier was found and no mode could be inferred. The
// supervisor converts this into an immediate needs_human event.
var ErrNoIdentifiers = errors.New("no tracking-usable identifiers found")

// llmConfidenceFloor is the minimum LLM self-reported confidence below which
// the regex fallback runs anyway.
const llmConfidenceFloor = 0.5

// Result is the outcome of extraction.
type Result struct {
	Identifiers models.Identifiers
	Provenance  map[models.Slot]models.Provenance
	Mode        models.Mode
	Confidence  float64
}

// Extractor fills identifier slots from ticket text.
type Extractor struct {
	llm llm.Client
}

// New creates an extractor backed by the given LLM client.
func New(client llm.Client) *Extractor {
	return &Extractor{llm: client}
}

// Extract runs the full strategy chain: user-supplied identifiers first,
// then one LLM call, then regex families for whatever is still missing.
func (x *Extractor) Extract(ctx context.Context, ticket models.Ticket) (*Result, error) {
	ids := make(models.Identifiers)
	prov := make(map[models.Slot]models.Provenance)

	for k, v := range ticket.Identifiers {
		if v == "" {
			continue
		}
		ids[models.Slot(k)] = v
		prov[models.Slot(k)] = models.ProvenanceUser
	}
	if ticket.ShipperHint != "" && !ids.Has(models.SlotShipperID) {
		ids[models.SlotShipperID] = ticket.ShipperHint
		prov[models.SlotShipperID] = models.ProvenanceUser
	}
	if ticket.CarrierHint != "" && !ids.Has(models.SlotCarrierID) {
		ids[models.SlotCarrierID] = ticket.CarrierHint
		prov[models.SlotCarrierID] = models.ProvenanceUser
	}

	mode := ticket.ModeHint
	confidence := 1.0

	known := make(map[string]string, len(ids))
	for k, v := range ids {
		known[string(k)] = v
	}
	llmRes, err := x.llm.ExtractIdentifiers(ctx, llm.ExtractRequest{
		Description: ticket.Description,
		Known:       known,
		ModeHint:    ticket.ModeHint,
	})
	switch {
	case err != nil:
		if !errors.Is(err, llm.ErrUnavailable) {
			slog.Warn("LLM identifier extraction failed, falling back to regex", "error", err)
		}
	case llmRes.Confidence < llmConfidenceFloor:
		slog.Info("LLM extraction below confidence floor, falling back to regex",
			"confidence", llmRes.Confidence)
	default:
		for k, v := range llmRes.Identifiers {
			slot := models.Slot(k)
			if !ids.Has(slot) {
				ids[slot] = v
				prov[slot] = models.ProvenanceLLM
			}
		}
		if (mode == "" || mode == models.ModeUnknown) && llmRes.Mode != models.ModeUnknown {
			mode = llmRes.Mode
		}
		confidence = llmRes.Confidence
	}

	regexExtract(ticket.Description, ids, prov)

	if mode == "" || mode == models.ModeUnknown {
		mode = inferMode(ticket.Description, ids)
	}

	if !ids.Trackable() && mode == models.ModeUnknown {
		return nil, fmt.Errorf("%w: description %q", ErrNoIdentifiers, truncate(ticket.Description, 80))
	}

	// A container number with a bad check digit costs confidence but is
	// still usable for lookups.
	if cn, ok := ids[models.SlotContainerNumber]; ok && !validISO6346(cn) && confidence > 0.7 {
		confidence = 0.7
	}

	return &Result{
		Identifiers: ids,
		Provenance:  prov,
		Mode:        mode,
		Confidence:  confidence,
	}, nil
}

// MissingSlots lists the well-known slots absent from the identifier set,
// used to template the needs_human question.
func MissingSlots(ids models.Identifiers, mode models.Mode) []string {
	var missing []string
	for _, slot := range []models.Slot{
		models.SlotTrackingID, models.SlotLoadNumber, models.SlotContainerNumber,
		models.SlotCarrierID, models.SlotShipperID,
	} {
		if !ids.Has(slot) {
			missing = append(missing, string(slot))
		}
	}
	if mode == models.ModeUnknown {
		missing = append(missing, "mode")
	}
	return missing
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
