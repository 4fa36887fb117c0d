package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nestora/nestora/internal/log"
	"github.com/nestora/nestora/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type echoInput struct {
	Text string `json:"text"`
}

func newEchoTool(t *testing.T) *Tool {
	t.Helper()
	tool, err := New("echo", "Echo the input text.",
		func(_ context.Context, _ *session.Session, in echoInput) (Output, error) {
			return Output{Result: in.Text}, nil
		})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tool
}

func newRegistryWith(t *testing.T, tools ...*Tool) *Registry {
	t.Helper()
	r := NewRegistry(time.Second, log.NewNop())
	for _, tool := range tools {
		if err := r.Add(tool); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	return r
}

func TestRegistryIsClosed(t *testing.T) {
	r := newRegistryWith(t, newEchoTool(t))

	_, err := r.Execute(context.Background(), &session.Session{}, "rm_rf", json.RawMessage(`{}`))
	var toolErr *Error
	if !errors.As(err, &toolErr) || toolErr.Kind != KindUnknownTool {
		t.Fatalf("err = %v, want KindUnknownTool", err)
	}
	if toolErr.Message() == "" {
		t.Error("unknown tool error has no model-facing message")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := newRegistryWith(t, newEchoTool(t))
	if err := r.Add(newEchoTool(t)); err == nil {
		t.Error("duplicate registration accepted")
	}
}

func TestExecuteValidatesArguments(t *testing.T) {
	r := newRegistryWith(t, newEchoTool(t))
	ctx := context.Background()
	sess := &session.Session{}

	// Wrong type for a declared field.
	_, err := r.Execute(ctx, sess, "echo", json.RawMessage(`{"text": 42}`))
	var toolErr *Error
	if !errors.As(err, &toolErr) || toolErr.Kind != KindValidation {
		t.Errorf("wrong type: err = %v, want KindValidation", err)
	}

	// Not JSON at all.
	_, err = r.Execute(ctx, sess, "echo", json.RawMessage(`{not json`))
	if !errors.As(err, &toolErr) || toolErr.Kind != KindParse {
		t.Errorf("bad JSON: err = %v, want KindParse", err)
	}

	// Valid input executes.
	out, err := r.Execute(ctx, sess, "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("valid input: %v", err)
	}
	if out.Result != "hi" {
		t.Errorf("result = %v, want hi", out.Result)
	}
}

func TestExecuteClassifiesFailures(t *testing.T) {
	boom := errors.New("backend down")
	failing, err := New("failing", "Always fails.",
		func(_ context.Context, _ *session.Session, _ echoInput) (Output, error) {
			return Output{}, boom
		})
	if err != nil {
		t.Fatal(err)
	}
	slow, err := New("slow", "Sleeps past the deadline.",
		func(ctx context.Context, _ *session.Session, _ echoInput) (Output, error) {
			select {
			case <-ctx.Done():
				return Output{}, ctx.Err()
			case <-time.After(5 * time.Second):
				return Output{}, nil
			}
		})
	if err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(50*time.Millisecond, log.NewNop())
	for _, tool := range []*Tool{failing, slow} {
		if err := r.Add(tool); err != nil {
			t.Fatal(err)
		}
	}
	ctx := context.Background()
	sess := &session.Session{}

	_, err = r.Execute(ctx, sess, "failing", json.RawMessage(`{"text":"x"}`))
	var toolErr *Error
	if !errors.As(err, &toolErr) || toolErr.Kind != KindExecution {
		t.Errorf("failing: err = %v, want KindExecution", err)
	}
	if !errors.Is(err, boom) {
		t.Error("execution error does not wrap the cause")
	}

	_, err = r.Execute(ctx, sess, "slow", json.RawMessage(`{"text":"x"}`))
	if !errors.As(err, &toolErr) || toolErr.Kind != KindTimeout {
		t.Errorf("slow: err = %v, want KindTimeout", err)
	}
}

func TestExecuteEmptyArgsMeansEmptyObject(t *testing.T) {
	noInput, err := New("no_input", "Takes nothing.",
		func(_ context.Context, _ *session.Session, _ LeadScoreInput) (Output, error) {
			return Output{Result: "ok"}, nil
		})
	if err != nil {
		t.Fatal(err)
	}
	r := newRegistryWith(t, noInput)

	out, err := r.Execute(context.Background(), &session.Session{}, "no_input", nil)
	if err != nil {
		t.Fatalf("Execute with nil args: %v", err)
	}
	if out.Result != "ok" {
		t.Errorf("result = %v", out.Result)
	}
}

func TestRegistryNamesAreOrdered(t *testing.T) {
	a, _ := New("a", "First.", func(_ context.Context, _ *session.Session, _ echoInput) (Output, error) {
		return Output{}, nil
	})
	b, _ := New("b", "Second.", func(_ context.Context, _ *session.Session, _ echoInput) (Output, error) {
		return Output{}, nil
	})
	r := newRegistryWith(t, a, b)

	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names = %v", names)
	}
}
