package tools

import (
	"context"

	"github.com/nestora/nestora/internal/qualify"
	"github.com/nestora/nestora/internal/session"
)

// GeoMatchInput is the model-facing argument schema.
type GeoMatchInput struct {
	Text string `json:"text" jsonschema:"description=The visitor's location phrase, verbatim, e.g. 'somewhere near the marina'"`
}

// GeoMatchResult reports the taxonomy match. Matched=false means the
// phrase resolved to no known community.
type GeoMatchResult struct {
	Matched    bool    `json:"matched"`
	Area       string  `json:"area,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// NewGeoMatch builds the geo_match tool.
func NewGeoMatch() (*Tool, error) {
	return New("geo_match",
		"Resolve a visitor's location phrase like 'near the marina' or 'JVC' to a canonical community name. Use this before searching inventory by area.",
		func(_ context.Context, _ *session.Session, in GeoMatchInput) (Output, error) {
			match, ok := qualify.MatchArea(in.Text)
			if !ok {
				return Output{Result: GeoMatchResult{Matched: false}}, nil
			}

			return Output{
				Result: GeoMatchResult{
					Matched:    true,
					Area:       match.Area,
					Confidence: match.Confidence,
				},
				Patch: session.CollectedData{Areas: []string{match.Area}},
			}, nil
		})
}
