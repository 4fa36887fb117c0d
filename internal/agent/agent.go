// Package agent implements the turn orchestrator: the state machine
// that runs one visitor message through model rounds and tool
// executions, streaming events as it goes.
//
// The orchestrator owns the round loop. Generation runs with returned
// tool requests, so the model never executes anything itself; every
// tool call passes through the closed registry, and every session
// mutation happens here, between rounds.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nestora/nestora/internal/qualify"
	"github.com/nestora/nestora/internal/session"
	"github.com/nestora/nestora/internal/tools"
)

// apologyText is streamed when the model stays unavailable after the
// retry. The turn ends cleanly; the session is preserved.
const apologyText = "I'm having trouble reaching our assistant right now. Please try again in a moment; everything you've told me so far is saved."

// roundCapText is streamed when the round cap expires on a response
// that carried no text of its own.
const roundCapText = "I've gathered what I can for now. Could you tell me a bit more, or ask about the options so far?"

// Config carries orchestrator construction parameters.
type Config struct {
	// Model is the generation model.
	Model ai.Model

	// Tools are the Genkit references advertised to the model.
	Tools []ai.ToolRef

	// RoundCap bounds model calls per turn. The cap is a terminal
	// condition of the design, not an error.
	RoundCap int

	// ModelTimeout bounds one model call including streaming.
	ModelTimeout time.Duration

	// LifetimeToolCallCap bounds tool calls across the whole session.
	// Once crossed, later turns run without tools.
	LifetimeToolCallCap int

	// DefaultCountryCode completes national phone numbers ("971").
	DefaultCountryCode string

	// RateRPS / RateBurst shape the shared model-call rate limit.
	// Zero RateRPS disables limiting.
	RateRPS   float64
	RateBurst int

	Retry   RetryConfig
	Breaker CircuitBreakerConfig
}

func (c *Config) applyDefaults() {
	if c.RoundCap <= 0 {
		c.RoundCap = 3
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = 30 * time.Second
	}
	if c.LifetimeToolCallCap <= 0 {
		c.LifetimeToolCallCap = 50
	}
	if c.DefaultCountryCode == "" {
		c.DefaultCountryCode = session.DefaultCountryCode
	}
	if c.Retry == (RetryConfig{}) {
		c.Retry = DefaultRetryConfig()
	}
}

// Orchestrator executes turns. Safe for concurrent use across sessions;
// concurrency within a session is rejected via ErrSessionBusy.
type Orchestrator struct {
	g        *genkit.Genkit
	registry *tools.Registry
	store    session.Store
	logger   *slog.Logger

	model        ai.Model
	toolRefs     []ai.ToolRef
	roundCap     int
	modelTimeout time.Duration
	lifetimeCap  int
	defaultCC    string

	locks   *turnLocks
	breaker *CircuitBreaker
	retry   RetryConfig
	limiter *rate.Limiter
}

// New creates a turn orchestrator.
func New(g *genkit.Genkit, registry *tools.Registry, store session.Store, cfg Config, logger *slog.Logger) (*Orchestrator, error) {
	if g == nil || registry == nil || store == nil {
		return nil, fmt.Errorf("agent.New: genkit, registry and store are required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent.New: model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Orchestrator{
		g:            g,
		registry:     registry,
		store:        store,
		logger:       logger,
		model:        cfg.Model,
		toolRefs:     cfg.Tools,
		roundCap:     cfg.RoundCap,
		modelTimeout: cfg.ModelTimeout,
		lifetimeCap:  cfg.LifetimeToolCallCap,
		defaultCC:    cfg.DefaultCountryCode,
		locks:        newTurnLocks(),
		breaker:      NewCircuitBreaker(cfg.Breaker),
		retry:        cfg.Retry,
		limiter:      newLimiter(cfg.RateRPS, cfg.RateBurst),
	}, nil
}

// Turn runs one visitor message to completion, emitting events on sink.
//
// ctx is the request context: its cancellation means the client is
// gone. An in-flight round still finishes and the session is saved;
// only scheduling of further rounds stops.
func (o *Orchestrator) Turn(ctx context.Context, sess *session.Session, userText string, sink Sink) error {
	if userText == "" {
		return fmt.Errorf("turn requires a non-empty message")
	}
	sid := sess.ID.String()
	if !o.locks.TryAcquire(sid) {
		return ErrSessionBusy
	}
	defer o.locks.Release(sid)

	// Background work survives client disconnect.
	workCtx := context.WithoutCancel(ctx)

	sess.TurnToolCalls = 0
	sess.Append(ai.NewUserMessage(ai.NewTextPart(userText)))

	logger := o.logger.With("session_id", sid)
	reason := ReasonCompleted
	rounds := 0
	var qualification *qualify.Result

	for round := 1; round <= o.roundCap; round++ {
		rounds = round

		resp, err := o.modelRound(ctx, workCtx, sess, sink)
		if err != nil {
			logger.Error("model unavailable after retry", "round", round, "error", err)
			o.send(ctx, sink, Event{Type: EventPartialText, Payload: PartialText{Text: apologyText}})
			reason = ReasonModelUnavailable
			break
		}
		sess.Append(resp.Message)

		requests := resp.ToolRequests()
		if len(requests) == 0 {
			break
		}
		if round == o.roundCap {
			// Terminal by design: the last permitted round may not
			// trigger more tools.
			logger.Info("round cap reached with pending tool requests",
				"round", round, "pending", len(requests))
			if resp.Text() == "" {
				o.send(ctx, sink, Event{Type: EventPartialText, Payload: PartialText{Text: roundCapText}})
			}
			reason = ReasonRoundCap
			break
		}
		if sess.LifetimeToolCalls >= o.lifetimeCap {
			logger.Warn("lifetime tool budget exhausted",
				"lifetime_calls", sess.LifetimeToolCalls)
			reason = ReasonToolBudget
			break
		}

		changed, qual := o.toolRound(ctx, workCtx, sess, requests, sink, logger)
		if qual != nil {
			qualification = qual
		}
		if changed {
			o.send(ctx, sink, Event{Type: EventContextUpdate, Payload: ContextUpdate{Collected: sess.Collected}})
		}

		// Client gone: the round above completed and will be saved;
		// do not start another one.
		if ctx.Err() != nil {
			logger.Info("client disconnected, stopping after in-flight round", "round", round)
			break
		}
	}

	if o.captureContacts(workCtx, sess, userText, logger) {
		o.send(ctx, sink, Event{Type: EventContextUpdate, Payload: ContextUpdate{Collected: sess.Collected}})
	}

	if err := o.store.Save(workCtx, sess); err != nil {
		logger.Error("session save failed", "error", err)
	}

	// A model outage ends the turn with the error terminal, not done, so
	// clients see the failure without inspecting the done reason. The
	// session survives either way.
	if reason == ReasonModelUnavailable {
		o.send(ctx, sink, Event{Type: EventError, Payload: ErrorPayload{
			Code:    "model_unavailable",
			Message: apologyText,
		}})
		return nil
	}

	o.send(ctx, sink, Event{Type: EventDone, Payload: Done{
		SessionID:     sid,
		Reason:        reason,
		Rounds:        rounds,
		Collected:     sess.Collected,
		Qualification: qualification,
		LeadID:        sess.LeadID,
		Ephemeral:     sess.Ephemeral,
	}})
	return nil
}

// modelRound runs one generation with streaming. Streaming chunks go to
// the sink on the request context; generation itself runs on the work
// context so a disconnect does not abort it mid-round.
func (o *Orchestrator) modelRound(ctx, workCtx context.Context, sess *session.Session, sink Sink) (*ai.ModelResponse, error) {
	genCtx, cancel := context.WithTimeout(workCtx, o.modelTimeout)
	defer cancel()

	stream := func(_ context.Context, chunk *ai.ModelResponseChunk) error {
		text := chunk.Text()
		if text == "" {
			return nil
		}
		// A failed send means the client is gone; generation continues.
		o.send(ctx, sink, Event{Type: EventPartialText, Payload: PartialText{Text: text}})
		return nil
	}

	opts := []ai.GenerateOption{
		ai.WithModel(o.model),
		ai.WithMessages(sess.Messages...),
		ai.WithStreaming(stream),
	}
	if len(o.toolRefs) > 0 && sess.LifetimeToolCalls < o.lifetimeCap {
		opts = append(opts,
			ai.WithTools(o.toolRefs...),
			ai.WithReturnToolRequests(true),
		)
	}

	return o.generateWithRetry(genCtx, func(c context.Context) (*ai.ModelResponse, error) {
		return genkit.Generate(c, o.g, opts...)
	})
}

// toolRound executes one round of tool requests in parallel and appends
// their responses to the history. Returns whether the collected profile
// changed and, when a scoring tool ran, the qualification result.
func (o *Orchestrator) toolRound(ctx, workCtx context.Context, sess *session.Session, requests []*ai.ToolRequest, sink Sink, logger *slog.Logger) (bool, *qualify.Result) {
	type toolResult struct {
		out     tools.Output
		err     error
		elapsed time.Duration
	}
	results := make([]toolResult, len(requests))

	g, gctx := errgroup.WithContext(workCtx)
	for i, req := range requests {
		g.Go(func() error {
			args, err := json.Marshal(req.Input)
			if err != nil {
				results[i] = toolResult{err: fmt.Errorf("marshal tool input: %w", err)}
				return nil
			}
			start := time.Now()
			out, err := o.registry.Execute(gctx, sess, req.Name, args)
			results[i] = toolResult{out: out, err: err, elapsed: time.Since(start)}
			return nil
		})
	}
	// Goroutines record errors per slot; Wait only synchronizes.
	_ = g.Wait()

	changed := false
	var qualification *qualify.Result
	parts := make([]*ai.Part, 0, len(requests))
	for i, req := range requests {
		res := results[i]
		sess.TurnToolCalls++
		sess.LifetimeToolCalls++

		ev := ToolInvoked{Tool: req.Name, Status: "ok", ElapsedMS: res.elapsed.Milliseconds()}
		var output any
		if res.err != nil {
			ev.Status = "error"
			ev.Error = toolErrorMessage(res.err)
			output = map[string]any{"error": ev.Error}
			logger.Warn("tool round failure", "tool", req.Name, "error", res.err)
		} else {
			output = res.out.Result
			if !res.out.Patch.IsZero() {
				sess.Collected.Merge(res.out.Patch)
				changed = true
			}
			if res.out.Matches != nil {
				sess.LastMatches = res.out.Matches
			}
			if res.out.LeadID != 0 {
				sess.LeadID = res.out.LeadID
			}
			if res.out.Qualification != nil {
				qualification = res.out.Qualification
			}
		}
		o.send(ctx, sink, Event{Type: EventToolInvoked, Payload: ev})

		parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
			Name:   req.Name,
			Ref:    req.Ref,
			Output: output,
		}))
	}

	sess.Append(ai.NewMessage(ai.RoleTool, nil, parts...))
	return changed, qualification
}

// send delivers an event, tolerating a gone client.
func (o *Orchestrator) send(ctx context.Context, sink Sink, ev Event) {
	if err := sink.Send(ctx, ev); err != nil {
		o.logger.Debug("event send failed", "event", ev.Type, "error", err)
	}
}

// toolErrorMessage extracts the model-facing message from a tool error.
func toolErrorMessage(err error) string {
	var toolErr *tools.Error
	if errors.As(err, &toolErr) {
		return toolErr.Message()
	}
	return err.Error()
}
