package tools

import (
	"context"

	"github.com/nestora/nestora/internal/qualify"
	"github.com/nestora/nestora/internal/session"
)

// LeadScoreInput is intentionally empty: the score is computed from the
// session profile, never from model-supplied numbers.
type LeadScoreInput struct{}

// NewLeadScore builds the lead_score tool.
func NewLeadScore(threshold int) (*Tool, error) {
	return New("lead_score",
		"Score the visitor's qualification readiness from everything collected so far. Returns the score, what is still missing and the suggested next step. Call this before deciding whether to persist the lead.",
		func(_ context.Context, sess *session.Session, _ LeadScoreInput) (Output, error) {
			profile := sess.Collected.Profile()
			profile.Matches = sess.LastMatches
			result := qualify.Score(profile, threshold)
			return Output{Result: result, Qualification: &result}, nil
		})
}
