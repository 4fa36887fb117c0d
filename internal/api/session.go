package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/nestora/nestora/internal/session"
)

// maxBodyBytes bounds request bodies; qualification messages are short.
const maxBodyBytes = 64 * 1024

// sessionHandler serves session open and resume.
type sessionHandler struct {
	store  session.Store
	logger *slog.Logger
}

type openSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	LeadID    int64  `json:"lead_id,omitempty"`
}

type openSessionResponse struct {
	SessionID string                `json:"session_id"`
	Resumed   bool                  `json:"resumed"`
	Collected session.CollectedData `json:"collected"`
	Ephemeral bool                  `json:"ephemeral,omitempty"`
}

// open resolves an existing session by id, email or phone, or creates a
// fresh one. Expiry is handled transparently: the visitor gets a new
// session, never an error.
func (h *sessionHandler) open(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON", h.logger)
		return
	}

	ctx := r.Context()
	ref := session.Ref{SessionID: req.SessionID, Email: req.Email, Phone: req.Phone}

	if ref != (session.Ref{}) {
		sess, err := h.store.Resolve(ctx, ref)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, openSessionResponse{
				SessionID: sess.ID.String(),
				Resumed:   true,
				Collected: sess.Collected,
				Ephemeral: sess.Ephemeral,
			})
			return
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
			// Fall through to create.
		default:
			writeError(w, http.StatusInternalServerError, "resolve_failed", "could not look up session", h.logger)
			return
		}
	}

	sess, err := h.store.Create(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create_failed", "could not create session", h.logger)
		return
	}
	if req.LeadID != 0 {
		// A returning visitor carrying a CRM lead reference keeps it on
		// the fresh session so persistence updates the same lead.
		sess.LeadID = req.LeadID
		if err := h.store.Save(ctx, sess); err != nil {
			h.logger.Warn("saving lead reference on new session", "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, openSessionResponse{
		SessionID: sess.ID.String(),
		Collected: sess.Collected,
		Ephemeral: sess.Ephemeral,
	})
}

// decodeBody decodes a JSON body, treating an empty body as the zero
// request.
func decodeBody(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
