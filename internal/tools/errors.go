package tools

import "fmt"

// Kind classifies tool failures. The orchestrator uses the kind to
// decide what flows back to the model and what terminates the turn.
type Kind string

const (
	// KindUnknownTool means the model asked for a name outside the
	// closed registry. Never executed, reported back to the model.
	KindUnknownTool Kind = "unknown_tool"

	// KindParse means the arguments were not valid JSON.
	KindParse Kind = "parse"

	// KindValidation means the arguments failed schema validation.
	KindValidation Kind = "validation"

	// KindExecution means the tool ran and failed.
	KindExecution Kind = "execution"

	// KindTimeout means the tool exceeded its execution deadline.
	KindTimeout Kind = "timeout"
)

// Error is a classified tool failure. All kinds are recoverable from the
// model's point of view: the orchestrator serializes the message into a
// tool response so the model can correct itself or move on.
type Error struct {
	Kind Kind
	Tool string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tool %q: %s", e.Tool, e.Kind)
	}
	return fmt.Sprintf("tool %q: %s: %v", e.Tool, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message renders the error for the model. Kept short and actionable;
// internals stay in the logs.
func (e *Error) Message() string {
	switch e.Kind {
	case KindUnknownTool:
		return fmt.Sprintf("tool %q does not exist; use only the provided tools", e.Tool)
	case KindParse:
		return fmt.Sprintf("tool %q arguments were not valid JSON", e.Tool)
	case KindValidation:
		return fmt.Sprintf("tool %q arguments failed validation: %v", e.Tool, e.Err)
	case KindTimeout:
		return fmt.Sprintf("tool %q timed out; try again or proceed without it", e.Tool)
	default:
		return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
	}
}

func newError(kind Kind, tool string, err error) *Error {
	return &Error{Kind: kind, Tool: tool, Err: err}
}
