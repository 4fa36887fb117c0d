// Package inventory provides hybrid search over listed property units.
//
// A search combines semantic similarity over the unit description with a
// structured fit score over hard attributes (beds, area, type, price).
// Semantic rank alone would happily return a studio for a "2BR in
// Marina" query; structured filters alone miss units whose description
// matches intent the attributes do not capture.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
)

const searchTimeout = 10 * time.Second

// MaxMatches caps how many units one search returns.
const MaxMatches = 5

// Score blend. Semantic similarity dominates, structured fit corrects.
const (
	semanticWeight   = 0.6
	structuredWeight = 0.4
)

// Unit is one listed property.
type Unit struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Community    string `json:"community"`
	City         string `json:"city"`
	Beds         int    `json:"beds"`
	PropertyType string `json:"property_type"`
	PriceAED     int64  `json:"price_aed"`
	SizeSqft     int    `json:"size_sqft"`
	Description  string `json:"description"`
	Available    bool   `json:"available"`
}

// Filter carries the structured constraints of a search. Nil or empty
// fields are unconstrained.
type Filter struct {
	City         string
	Areas        []string
	Beds         *int
	PropertyType string
	BudgetMin    *int64
	BudgetMax    *int64
}

// Match is a unit with its blended relevance score in [0, 1].
type Match struct {
	Unit
	Score float64 `json:"score"`
}

// candidate is a raw row from the vector search before blending.
type candidate struct {
	Unit
	Similarity float64
}

// Querier defines the database operations the Store needs.
type Querier interface {
	// UpsertUnit inserts or replaces a unit and its embedding.
	UpsertUnit(ctx context.Context, u Unit, embedding pgvector.Vector) error

	// SearchUnits returns available units nearest to the embedding,
	// pre-filtered by the hard constraints in f, ordered by similarity
	// with id tie-break.
	SearchUnits(ctx context.Context, embedding pgvector.Vector, f Filter, limit int32) ([]candidate, error)

	// CountUnits returns the number of available units.
	CountUnits(ctx context.Context) (int64, error)
}

// Store runs hybrid searches over the unit inventory.
//
// Safe for concurrent use.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates an inventory store.
func New(querier Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// Add embeds the unit's searchable text and upserts it.
func (s *Store) Add(ctx context.Context, u Unit) error {
	if u.ID == "" {
		return fmt.Errorf("unit requires an id")
	}

	embedding, err := s.embed(ctx, searchableText(u))
	if err != nil {
		return fmt.Errorf("embed unit %q: %w", u.ID, err)
	}
	if err := s.queries.UpsertUnit(ctx, u, embedding); err != nil {
		return fmt.Errorf("upsert unit %q: %w", u.ID, err)
	}

	s.logger.Debug("indexed unit", "id", u.ID, "community", u.Community)
	return nil
}

// Search returns up to MaxMatches units ranked by blended score. The
// query drives the semantic leg; f drives both the SQL pre-filter and
// the structured leg.
func (s *Store) Search(ctx context.Context, query string, f Filter) ([]Match, error) {
	if query == "" {
		query = describeFilter(f)
	}
	if query == "" {
		return nil, fmt.Errorf("search needs a query or at least one filter")
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding, err := s.embed(ctx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Over-fetch so the structured re-rank has room to reorder.
	candidates, err := s.queries.SearchUnits(ctx, embedding, f, MaxMatches*4)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search timeout: %w", err)
		}
		return nil, fmt.Errorf("search units: %w", err)
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		score := semanticWeight*c.Similarity + structuredWeight*structuredFit(c.Unit, f)
		matches = append(matches, Match{Unit: c.Unit, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > MaxMatches {
		matches = matches[:MaxMatches]
	}
	return matches, nil
}

// Count returns the number of available units.
func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.queries.CountUnits(ctx)
	if err != nil {
		return 0, fmt.Errorf("count units: %w", err)
	}
	return n, nil
}

// structuredFit scores how well a unit satisfies the hard constraints,
// in [0, 1]. Unconstrained dimensions score full marks so sparse
// profiles do not punish every unit.
func structuredFit(u Unit, f Filter) float64 {
	score, dims := 0.0, 0.0

	if f.Beds != nil {
		dims++
		switch diff := abs(u.Beds - *f.Beds); diff {
		case 0:
			score++
		case 1:
			score += 0.5
		}
	}
	if len(f.Areas) > 0 {
		dims++
		for _, area := range f.Areas {
			if strings.EqualFold(u.Community, area) {
				score++
				break
			}
		}
	}
	if f.PropertyType != "" {
		dims++
		if strings.EqualFold(u.PropertyType, f.PropertyType) {
			score++
		}
	}
	if f.BudgetMin != nil || f.BudgetMax != nil {
		dims++
		if priceInBudget(u.PriceAED, f.BudgetMin, f.BudgetMax) {
			score++
		}
	}

	if dims == 0 {
		return 1
	}
	return score / dims
}

// priceInBudget allows 10% slack on both ends; buyers stretch.
func priceInBudget(price int64, min, max *int64) bool {
	if min != nil && float64(price) < float64(*min)*0.9 {
		return false
	}
	if max != nil && float64(price) > float64(*max)*1.1 {
		return false
	}
	return true
}

// searchableText is the unit text that gets embedded.
func searchableText(u Unit) string {
	parts := []string{u.Title, u.Community, u.City, u.PropertyType, u.Description}
	return strings.Join(parts, ". ")
}

// describeFilter renders the filter as a query when the caller gave no
// free text.
func describeFilter(f Filter) string {
	var parts []string
	if f.Beds != nil {
		parts = append(parts, fmt.Sprintf("%d bedroom", *f.Beds))
	}
	if f.PropertyType != "" {
		parts = append(parts, f.PropertyType)
	}
	if len(f.Areas) > 0 {
		parts = append(parts, "in "+strings.Join(f.Areas, " or "))
	}
	if f.City != "" {
		parts = append(parts, f.City)
	}
	return strings.Join(parts, " ")
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding returned")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}
