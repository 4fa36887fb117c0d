package tools

import (
	"context"

	"github.com/nestora/nestora/internal/inventory"
	"github.com/nestora/nestora/internal/qualify"
	"github.com/nestora/nestora/internal/session"
)

// InventorySearcher is the slice of the inventory store this package
// needs.
type InventorySearcher interface {
	Search(ctx context.Context, query string, f inventory.Filter) ([]inventory.Match, error)
}

// InventorySearchInput is the model-facing argument schema. The model
// fills in whatever the visitor has stated; absent fields are
// unconstrained.
type InventorySearchInput struct {
	Query        string   `json:"query,omitempty" jsonschema:"description=Free-text description of what the visitor wants"`
	City         string   `json:"city,omitempty"`
	Areas        []string `json:"areas,omitempty" jsonschema:"description=Preferred communities, e.g. Dubai Marina"`
	Beds         *int     `json:"beds,omitempty"`
	PropertyType string   `json:"property_type,omitempty" jsonschema:"description=apartment, villa or townhouse"`
	BudgetMin    *int64   `json:"budget_min,omitempty" jsonschema:"description=Minimum budget in AED"`
	BudgetMax    *int64   `json:"budget_max,omitempty" jsonschema:"description=Maximum budget in AED"`
}

// InventorySearchResult is one unit in the tool response.
type InventorySearchResult struct {
	UnitID    string  `json:"unit_id"`
	Title     string  `json:"title"`
	Community string  `json:"community"`
	Beds      int     `json:"beds"`
	PriceAED  int64   `json:"price_aed"`
	Score     float64 `json:"score"`
}

// NewInventorySearch builds the inventory_search tool. Search criteria
// double as collected profile fields, so every call also patches the
// session.
func NewInventorySearch(store InventorySearcher) (*Tool, error) {
	return New("inventory_search",
		"Search live property listings matching the visitor's criteria. Call this once you know at least an area, bedroom count or budget; returns up to 5 ranked units.",
		func(ctx context.Context, _ *session.Session, in InventorySearchInput) (Output, error) {
			matches, err := store.Search(ctx, in.Query, inventory.Filter{
				City:         in.City,
				Areas:        in.Areas,
				Beds:         in.Beds,
				PropertyType: in.PropertyType,
				BudgetMin:    in.BudgetMin,
				BudgetMax:    in.BudgetMax,
			})
			if err != nil {
				return Output{}, err
			}

			results := make([]InventorySearchResult, 0, len(matches))
			scored := make([]qualify.Match, 0, len(matches))
			for _, m := range matches {
				results = append(results, InventorySearchResult{
					UnitID:    m.ID,
					Title:     m.Title,
					Community: m.Community,
					Beds:      m.Beds,
					PriceAED:  m.PriceAED,
					Score:     m.Score,
				})
				scored = append(scored, qualify.Match{
					UnitID: m.ID,
					Title:  m.Title,
					Score:  m.Score,
					Price:  m.PriceAED,
				})
			}

			return Output{
				Result:  map[string]any{"matches": results},
				Patch:   patchFromSearch(in),
				Matches: scored,
			}, nil
		})
}

func patchFromSearch(in InventorySearchInput) session.CollectedData {
	var patch session.CollectedData
	if in.City != "" {
		patch.City = &in.City
	}
	if len(in.Areas) > 0 {
		patch.Areas = in.Areas
	}
	patch.Beds = in.Beds
	if in.PropertyType != "" {
		patch.PropertyType = &in.PropertyType
	}
	patch.BudgetMin = in.BudgetMin
	patch.BudgetMax = in.BudgetMax
	return patch
}
