package agent

import (
	"context"
	"log/slog"

	"github.com/nestora/nestora/internal/session"
)

// captureContacts scans the visitor's raw message for contact details
// after every turn, independent of whatever the model did with its
// tools. A plainly typed email must never be lost to a model that
// forgot to record it.
//
// Already-collected fields are left alone; detection never overwrites.
func (o *Orchestrator) captureContacts(ctx context.Context, sess *session.Session, userText string, logger *slog.Logger) bool {
	changed := false

	if sess.Collected.Email == nil {
		if email := session.DetectEmail(userText); email != "" {
			sess.Collected.Email = &email
			changed = true
			if err := o.store.IndexByEmail(ctx, sess, email); err != nil {
				logger.Warn("email index failed", "error", err)
			}
		}
	}

	if sess.Collected.Phone == nil {
		if phone := session.DetectPhone(userText, o.defaultCC); phone != "" {
			sess.Collected.Phone = &phone
			changed = true
			if err := o.store.IndexByPhone(ctx, sess, phone); err != nil {
				logger.Warn("phone index failed", "error", err)
			}
		}
	}

	return changed
}
