// Package tools implements the closed tool surface of the qualification
// agent: six schema-validated operations the model may invoke, and the
// registry that dispatches them.
//
// Every tool input struct is reflected into a JSON Schema once at
// construction; arguments are validated against it before the handler
// runs, so handlers only ever see well-formed input. The registry is
// closed: a name not registered at startup is an error, never a dynamic
// lookup.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nestora/nestora/internal/qualify"
	"github.com/nestora/nestora/internal/session"
)

// Output is the complete effect of one tool invocation. Result flows
// back to the model; the remaining fields flow into the session under
// the orchestrator's control, never directly.
type Output struct {
	// Result is the JSON-serializable payload returned to the model.
	Result any

	// Patch carries profile fields this invocation established. The
	// orchestrator merges it monotonically into the session.
	Patch session.CollectedData

	// Matches replaces the session's cached inventory results when
	// non-nil.
	Matches []qualify.Match

	// LeadID is set by the persistence tool once a lead row exists.
	LeadID int64

	// Qualification carries the scoring outcome when this invocation
	// computed one, so the turn's terminal event can report it.
	Qualification *qualify.Result
}

// Handler is the type-erased tool execution function. The session is a
// read-only view; effects travel through Output.
type Handler func(ctx context.Context, sess *session.Session, args json.RawMessage) (Output, error)

// Tool is one registered operation.
type Tool struct {
	name        string
	description string
	inputSchema json.RawMessage
	validator   *jsonschema.Schema
	handler     Handler
}

// Name returns the tool's wire name.
func (t *Tool) Name() string { return t.name }

// Description returns the text the model uses to decide when to call it.
func (t *Tool) Description() string { return t.description }

// InputSchema returns the reflected JSON Schema for the tool's input.
func (t *Tool) InputSchema() json.RawMessage { return t.inputSchema }

// New creates a tool with a typed handler. The input schema is reflected
// from In; construction fails if In cannot express a valid schema.
func New[In any](name, description string, handler func(ctx context.Context, sess *session.Session, in In) (Output, error)) (*Tool, error) {
	if name == "" || description == "" {
		return nil, fmt.Errorf("tool requires name and description")
	}

	var zero In
	raw, validator, err := compileSchema(&zero)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}

	erased := func(ctx context.Context, sess *session.Session, args json.RawMessage) (Output, error) {
		var in In
		if err := json.Unmarshal(args, &in); err != nil {
			return Output{}, newError(KindParse, name, err)
		}
		return handler(ctx, sess, in)
	}

	return &Tool{
		name:        name,
		description: description,
		inputSchema: raw,
		validator:   validator,
		handler:     erased,
	}, nil
}

// validate checks decoded arguments against the tool's schema.
func (t *Tool) validate(args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return newError(KindParse, t.name, err)
	}
	if err := t.validator.Validate(decoded); err != nil {
		return newError(KindValidation, t.name, err)
	}
	return nil
}
