package tools

import (
	"context"
	"fmt"

	"github.com/nestora/nestora/internal/lead"
	"github.com/nestora/nestora/internal/qualify"
	"github.com/nestora/nestora/internal/session"
)

// LeadPersister is the slice of the lead store this package needs.
type LeadPersister interface {
	Persist(ctx context.Context, l lead.Lead) (int64, error)
}

// PersistQualificationInput is the model-facing argument schema.
type PersistQualificationInput struct {
	Name string `json:"name,omitempty" jsonschema:"description=The visitor's name if they shared it"`
}

// PersistQualificationResult confirms the write.
type PersistQualificationResult struct {
	LeadID    int64 `json:"lead_id"`
	Score     int   `json:"score"`
	Qualified bool  `json:"qualified"`
}

// NewPersistQualification builds the persist_qualification tool. The
// session id is the idempotency key, so repeated calls update the same
// lead row.
func NewPersistQualification(store LeadPersister, threshold int) (*Tool, error) {
	return New("persist_qualification",
		"Persist the qualification outcome for agent handoff. Requires an email or phone number; call only after the visitor has shared contact details.",
		func(ctx context.Context, sess *session.Session, in PersistQualificationInput) (Output, error) {
			c := sess.Collected
			if c.Email == nil && c.Phone == nil {
				return Output{}, fmt.Errorf("no contact details collected yet; ask for an email or phone first")
			}

			profile := c.Profile()
			profile.Matches = sess.LastMatches
			result := qualify.Score(profile, threshold)

			l := lead.Lead{
				ExternalKey: sess.ID.String(),
				Name:        in.Name,
				Score:       result.Score,
				Qualified:   result.Qualified,
				Profile:     leadProfile(c, sess.LastMatches),
			}
			if c.Email != nil {
				l.Email = *c.Email
			}
			if c.Phone != nil {
				l.Phone = *c.Phone
			}

			id, err := store.Persist(ctx, l)
			if err != nil {
				return Output{}, err
			}

			return Output{
				Result: PersistQualificationResult{
					LeadID:    id,
					Score:     result.Score,
					Qualified: result.Qualified,
				},
				LeadID:        id,
				Qualification: &result,
			}, nil
		})
}

func leadProfile(c session.CollectedData, matches []qualify.Match) lead.Profile {
	p := lead.Profile{
		Areas:      c.Areas,
		Beds:       c.Beds,
		BudgetMin:  c.BudgetMin,
		BudgetMax:  c.BudgetMax,
		MoveInDays: c.MoveInDays,
	}
	if c.Persona != nil {
		p.Persona = *c.Persona
	}
	if c.City != nil {
		p.City = *c.City
	}
	if c.PropertyType != nil {
		p.PropertyType = *c.PropertyType
	}
	if c.Currency != nil {
		p.Currency = *c.Currency
	}
	for _, m := range matches {
		p.MatchedUnits = append(p.MatchedUnits, m.UnitID)
	}
	return p
}
