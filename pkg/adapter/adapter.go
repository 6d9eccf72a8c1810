// Package adapter defines the uniform contract every data-source adapter
// implements, plus the registry and resilience middleware the scheduler
// dispatches through.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shipsight/shipsight/pkg/models"
)

// ErrorKind is the taxonomy the scheduler acts on.
type ErrorKind string

const (
	ErrTransient ErrorKind = "transient" // retry within budget
	ErrAuth      ErrorKind = "auth"      // do not retry; surface as configuration evidence
	ErrNotFound  ErrorKind = "not-found" // normal outcome; positive evidence of absence
	ErrMalformed ErrorKind = "malformed" // surface raw payload for audit
	ErrDeadline  ErrorKind = "deadline"  // per-task deadline exhausted
)

// Error wraps an adapter failure with its taxonomy kind.
type Error struct {
	Adapter string
	Kind    ErrorKind
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("adapter %s: %s: %v", e.Adapter, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified adapter error.
func NewError(adapter string, kind ErrorKind, err error) *Error {
	return &Error{Adapter: adapter, Kind: kind, Err: err}
}

// KindOf extracts the taxonomy kind from an error chain, defaulting to
// transient for unclassified failures.
func KindOf(err error) ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ErrTransient
}

// Window bounds historical queries. Zero values mean unbounded.
type Window struct {
	From time.Time
	To   time.Time
}

// Query is the per-task input: the identifier set, inferred mode, and
// key/value context carried from earlier tasks in the dependency graph.
type Query struct {
	InvestigationID string
	Identifiers     models.Identifiers
	Mode            models.Mode
	Window          Window
	Context         map[string]string
	HypothesisID    string
}

// Finding is one evidence item before the store assigns identity and
// sequence.
type Finding struct {
	Finding          string
	Supports         bool
	Weight           int
	SourceConfidence float64
	Raw              json.RawMessage
	HypothesisID     string
}

// Result carries an adapter's findings plus context values for dependent
// tasks (e.g. the relationship id a file-matching check needs).
type Result struct {
	Findings []Finding
	Context  map[string]string
}

// Adapter is the uniform capability set: identify itself, declare required
// inputs and dependencies, and execute against a context.
type Adapter interface {
	Name() string
	RequiredIdentifiers() []models.Slot
	Dependencies() []string
	// Modes lists the transport modes the adapter applies to. Empty means
	// every mode.
	Modes() []models.Mode
	Execute(ctx context.Context, q Query) (*Result, error)
}

// Applicable reports whether the adapter can run for the given query: all
// required identifier slots present and the mode in scope.
func Applicable(a Adapter, q Query) bool {
	for _, slot := range a.RequiredIdentifiers() {
		if !q.Identifiers.Has(slot) {
			return false
		}
	}
	modes := a.Modes()
	if len(modes) == 0 {
		return true
	}
	for _, m := range modes {
		if m == q.Mode {
			return true
		}
	}
	return false
}
