package events

import "errors"

// ErrBusClosed is returned by Publish and Subscribe after the investigation
// has terminated and its bus was closed.
var ErrBusClosed = errors.New("event bus closed")
