package agent

import (
	"context"

	"github.com/nestora/nestora/internal/qualify"
	"github.com/nestora/nestora/internal/session"
)

// EventType names the stream events a turn emits, in the order a client
// may see them: any number of partial_text, tool_invoked and
// context_update frames, closed by exactly one done or error.
type EventType string

const (
	EventPartialText   EventType = "partial_text"
	EventToolInvoked   EventType = "tool_invoked"
	EventContextUpdate EventType = "context_update"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// Turn terminal reasons. ReasonModelUnavailable never appears in a done
// payload; that turn closes with an error event instead.
const (
	ReasonCompleted        = "completed"
	ReasonRoundCap         = "round_cap"
	ReasonModelUnavailable = "model_unavailable"
	ReasonToolBudget       = "tool_budget"
)

// Event is one stream frame.
type Event struct {
	Type    EventType
	Payload any
}

// Sink receives turn events. A send error means the client is gone; the
// orchestrator keeps working but stops scheduling new rounds.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Send(ctx context.Context, ev Event) error { return f(ctx, ev) }

// PartialText is a streamed model text chunk.
type PartialText struct {
	Text string `json:"text"`
}

// ToolInvoked reports one tool execution, after it finished.
type ToolInvoked struct {
	Tool      string `json:"tool"`
	Status    string `json:"status"` // "ok" or "error"
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// ContextUpdate carries the full collected profile after a merge, so
// clients can re-render state without diffing.
type ContextUpdate struct {
	Collected session.CollectedData `json:"collected"`
}

// Done closes a successful turn. It carries the full collected profile
// and, when a scoring tool ran this turn, the qualification result.
type Done struct {
	SessionID     string                `json:"session_id"`
	Reason        string                `json:"reason"`
	Rounds        int                   `json:"rounds"`
	Collected     session.CollectedData `json:"collected"`
	Qualification *qualify.Result       `json:"qualification,omitempty"`
	LeadID        int64                 `json:"lead_id,omitempty"`
	Ephemeral     bool                  `json:"ephemeral,omitempty"`
}

// ErrorPayload closes a failed turn.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
