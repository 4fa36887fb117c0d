package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nestora/nestora/internal/agent"
	"github.com/nestora/nestora/internal/session"
	"github.com/nestora/nestora/internal/sse"
)

// turnHandler serves the streaming turn endpoint.
type turnHandler struct {
	store  session.Store
	runner TurnRunner
	logger *slog.Logger
}

type turnRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// stream runs one turn, emitting SSE frames as the orchestrator works.
//
// The SSE headers are committed lazily on the first event, so failures
// that precede any event (busy session, bad input) still get a proper
// JSON status response.
func (h *turnHandler) stream(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON", h.logger)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "empty_message", "message is required", h.logger)
		return
	}

	ctx := r.Context()
	sess, err := h.resolveOrCreate(ctx, req.SessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session_failed", "could not load session", h.logger)
		return
	}

	var sw *sse.Writer
	sink := agent.SinkFunc(func(ctx context.Context, ev agent.Event) error {
		if sw == nil {
			var err error
			sw, err = sse.NewWriter(w)
			if err != nil {
				return err
			}
		}
		return sw.WriteJSON(ctx, string(ev.Type), ev.Payload)
	})

	err = h.runner.Turn(ctx, sess, req.Message, sink)
	switch {
	case err == nil:
		return
	case errors.Is(err, agent.ErrSessionBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "session_busy", "a turn is already in flight for this session", h.logger)
	case sw == nil:
		// Turn failed before any event; the connection is still plain HTTP.
		writeError(w, http.StatusBadRequest, "turn_failed", err.Error(), h.logger)
	default:
		// Mid-stream failure: the stream is already committed, emit a
		// terminal error frame instead of a status code.
		h.logger.Error("turn failed mid-stream", "session_id", sess.ID, "error", err)
		_ = sw.WriteJSON(ctx, string(agent.EventError), agent.ErrorPayload{
			Code:    "turn_failed",
			Message: "the turn could not be completed",
		})
	}
}

// resolveOrCreate loads the session or transparently starts a new one
// when the id is absent, unknown or expired.
func (h *turnHandler) resolveOrCreate(ctx context.Context, sessionID string) (*session.Session, error) {
	if sessionID != "" {
		sess, err := h.store.Resolve(ctx, session.Ref{SessionID: sessionID})
		switch {
		case err == nil:
			return sess, nil
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
			h.logger.Info("session not resumable, creating fresh", "session_id", sessionID, "reason", err)
		default:
			return nil, err
		}
	}
	return h.store.Create(ctx)
}
