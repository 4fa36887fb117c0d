package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nestora/nestora/internal/session"
)

// DefaultTimeout bounds a single tool execution.
const DefaultTimeout = 15 * time.Second

// Registry is the closed tool dispatch table. Tools are added at
// startup and the set never changes afterwards; lookups of unknown
// names fail with KindUnknownTool.
//
// Safe for concurrent use after construction.
type Registry struct {
	tools   map[string]*Tool
	order   []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		tools:   make(map[string]*Tool),
		timeout: timeout,
		logger:  logger,
	}
}

// Add registers a tool. Duplicate names are a wiring bug and fail.
func (r *Registry) Add(t *Tool) error {
	if _, exists := r.tools[t.name]; exists {
		return fmt.Errorf("tool %q already registered", t.name)
	}
	r.tools[t.name] = t
	r.order = append(r.order, t.name)
	return nil
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns a registered tool, or nil.
func (r *Registry) Lookup(name string) *Tool {
	return r.tools[name]
}

// Execute runs one tool invocation: lookup, validate, then the handler
// under the registry timeout. All failures come back as *Error so the
// orchestrator can serialize them for the model.
func (r *Registry) Execute(ctx context.Context, sess *session.Session, name string, args json.RawMessage) (Output, error) {
	tool, ok := r.tools[name]
	if !ok {
		return Output{}, newError(KindUnknownTool, name, nil)
	}

	if err := tool.validate(args); err != nil {
		return Output{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	out, err := tool.handler(ctx, sess, args)
	elapsed := time.Since(start)

	if err != nil {
		var toolErr *Error
		if errors.As(err, &toolErr) {
			return Output{}, toolErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			r.logger.Warn("tool timed out", "tool", name, "elapsed", elapsed)
			return Output{}, newError(KindTimeout, name, err)
		}
		r.logger.Warn("tool failed", "tool", name, "elapsed", elapsed, "error", err)
		return Output{}, newError(KindExecution, name, err)
	}

	r.logger.Debug("tool executed", "tool", name, "elapsed", elapsed)
	return out, nil
}
