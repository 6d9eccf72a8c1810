// Package events provides the typed, ordered event stream of an
// investigation: the per-investigation bus, the wire encoder, and real-time
// delivery via WebSocket.
//
// The event stream is the single observable of an investigation. Every state
// change is a typed event on the stream, emitted in the order it happens in
// the supervisor. Errors inside an investigation are always converted to
// events; nothing is reported out of band.
package events

// Event kinds. The vocabulary is finite; clients switch on the kind label in
// the wire framing.
const (
	KindStarted              = "started"
	KindAgentStarted         = "agent_started"
	KindAgentFinished        = "agent_finished"
	KindQueryExecuted        = "query_executed"
	KindEvidenceAdded        = "evidence_added"
	KindHypothesisAdded      = "hypothesis_added"
	KindHypothesisUpdated    = "hypothesis_updated"
	KindHypothesisEliminated = "hypothesis_eliminated"
	KindDecision             = "decision"   // collaborative mode only
	KindDiscussion           = "discussion" // collaborative mode only
	KindHeartbeat            = "heartbeat"
	KindRootCause            = "root_cause"
	KindNeedsHuman           = "needs_human"
	KindComplete             = "complete"

	// KindSnapshot is delivered to late subscribers before live events. It is
	// never part of the recorded stream and is excluded from replay.
	KindSnapshot = "snapshot"
)

// Discussion message type tags (collaborative mode).
const (
	DiscussionObservation  = "observation"
	DiscussionProposal     = "proposal"
	DiscussionAgreement    = "agreement"
	DiscussionDisagreement = "disagreement"
)

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action          string `json:"action"` // "subscribe", "unsubscribe", "ping"
	InvestigationID string `json:"investigation_id,omitempty"`
}
