// Package llm defines the narrow LLM surface the engine consumes. The LLM is
// off the control-flow hot path: it only fills missing identifiers during
// intake and seeds additional hypothesis categories during reasoning.
package llm

import (
	"context"
	"errors"

	"github.com/shipsight/shipsight/pkg/models"
)

// ErrUnavailable signals the LLM cannot be reached (or is disabled). Callers
// fall back to their deterministic strategies.
var ErrUnavailable = errors.New("llm unavailable")

// ExtractRequest asks the LLM to fill missing identifier slots.
type ExtractRequest struct {
	Description string
	Known       map[string]string
	ModeHint    models.Mode
}

// ExtractResult is the LLM's identifier proposal. Confidence below the
// caller's floor triggers the regex fallback.
type ExtractResult struct {
	Identifiers map[string]string
	Mode        models.Mode
	Confidence  float64
}

// SuggestRequest asks the LLM to propose additional hypotheses over the
// accumulated evidence.
type SuggestRequest struct {
	Description string
	Mode        models.Mode
	Evidence    []models.Evidence
	Existing    []models.Category
	Max         int
}

// Suggestion is one proposed hypothesis. Priors are clamped by the engine to
// [0.10, 0.35]; categories outside the closed enumeration are discarded.
type Suggestion struct {
	Category    models.Category
	Description string
	Prior       float64
}

// Client is the pluggable classifier/reasoner boundary.
type Client interface {
	// ExtractIdentifiers fills in missing identifiers and classifies the
	// transport mode from free text.
	ExtractIdentifiers(ctx context.Context, req ExtractRequest) (*ExtractResult, error)

	// SuggestHypotheses proposes up to req.Max additional hypotheses.
	SuggestHypotheses(ctx context.Context, req SuggestRequest) ([]Suggestion, error)

	// Close releases the underlying connection.
	Close() error
}

// Disabled is a Client that always reports ErrUnavailable. Used when no API
// key is configured; the engine then runs on regex extraction and pattern
// seeding alone.
type Disabled struct{}

// ExtractIdentifiers implements Client.
func (Disabled) ExtractIdentifiers(context.Context, ExtractRequest) (*ExtractResult, error) {
	return nil, ErrUnavailable
}

// SuggestHypotheses implements Client.
func (Disabled) SuggestHypotheses(context.Context, SuggestRequest) ([]Suggestion, error) {
	return nil, ErrUnavailable
}

// Close implements Client.
func (Disabled) Close() error { return nil }
