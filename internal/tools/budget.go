package tools

import (
	"context"
	"errors"

	"github.com/nestora/nestora/internal/qualify"
	"github.com/nestora/nestora/internal/session"
)

// NormalizeBudgetInput is the model-facing argument schema.
type NormalizeBudgetInput struct {
	Text string `json:"text" jsonschema:"description=The visitor's budget phrase, verbatim, e.g. 'around 1.5M AED'"`
}

// NormalizeBudgetResult reports the parse outcome. Parsed=false is a
// normal answer, not an error: the model should ask the visitor to
// restate the budget.
type NormalizeBudgetResult struct {
	Parsed   bool   `json:"parsed"`
	Min      int64  `json:"min,omitempty"`
	Max      int64  `json:"max,omitempty"`
	Currency string `json:"currency,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// NewNormalizeBudget builds the normalize_budget tool.
func NewNormalizeBudget() (*Tool, error) {
	return New("normalize_budget",
		"Convert a visitor's budget phrase like 'around 1.5M AED' or 'between 900k and 1.1m' into a normalized numeric range. Always use this instead of interpreting amounts yourself.",
		func(_ context.Context, _ *session.Session, in NormalizeBudgetInput) (Output, error) {
			budget, err := qualify.ParseBudget(in.Text)
			if err != nil {
				if errors.Is(err, qualify.ErrNoAmount) {
					return Output{Result: NormalizeBudgetResult{
						Parsed: false,
						Reason: "no amount found; ask the visitor to state a figure",
					}}, nil
				}
				return Output{}, err
			}

			return Output{
				Result: NormalizeBudgetResult{
					Parsed:   true,
					Min:      budget.Min,
					Max:      budget.Max,
					Currency: budget.Currency,
				},
				Patch: session.CollectedData{
					BudgetMin: &budget.Min,
					BudgetMax: &budget.Max,
					Currency:  &budget.Currency,
				},
			}, nil
		})
}
