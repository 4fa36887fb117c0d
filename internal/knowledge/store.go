// Package knowledge provides semantic retrieval over curated real-estate
// content: community guides, developer profiles, fees, visa rules and
// buying-process explainers.
//
// Snippets are embedded once at indexing time and searched by cosine
// similarity using PostgreSQL + pgvector. The Store depends on a Querier
// interface rather than a concrete database, following the consumer-side
// interface convention (http.RoundTripper, io.Reader).
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds vector search queries so a slow index cannot
// stall a conversation turn.
const searchTimeout = 10 * time.Second

// DefaultTopK is the result count used when the caller asks for none.
// The conversational path always searches with this value.
const DefaultTopK = 3

// Snippet is one indexed unit of domain content.
type Snippet struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result pairs a snippet with its similarity to the query, in [0, 1].
type Result struct {
	Snippet
	Similarity float64 `json:"similarity"`
}

// Querier defines the database operations the Store needs.
type Querier interface {
	// UpsertSnippet inserts or replaces a snippet and its embedding.
	UpsertSnippet(ctx context.Context, s Snippet, embedding pgvector.Vector) error

	// SearchSnippets returns the topK nearest snippets by cosine
	// similarity, ties broken by id so results are deterministic.
	SearchSnippets(ctx context.Context, embedding pgvector.Vector, topK int32) ([]Result, error)

	// CountSnippets returns the number of indexed snippets.
	CountSnippets(ctx context.Context) (int64, error)
}

// Store manages snippet indexing and semantic search.
//
// Safe for concurrent use.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a knowledge store. The embedder generates vectors for both
// indexing and queries; it must be the same model for both or similarity
// scores are meaningless.
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

// Add embeds and upserts a snippet. Fixed ids give upsert semantics, so
// re-running the indexer refreshes content in place.
func (s *Store) Add(ctx context.Context, snippet Snippet) error {
	if snippet.ID == "" || snippet.Content == "" {
		return fmt.Errorf("snippet requires id and content")
	}

	embedding, err := s.embed(ctx, snippet.Content)
	if err != nil {
		return fmt.Errorf("embed snippet %q: %w", snippet.ID, err)
	}

	if err := s.queries.UpsertSnippet(ctx, snippet, embedding); err != nil {
		return fmt.Errorf("upsert snippet %q: %w", snippet.ID, err)
	}

	s.logger.Debug("indexed snippet", "id", snippet.ID, "topic", snippet.Topic)
	return nil
}

// Search returns the topK snippets most similar to the query. topK values
// outside (0, 20] fall back to DefaultTopK.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if topK <= 0 || topK > 20 {
		topK = DefaultTopK
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

	results, err := s.queries.SearchSnippets(ctx, embedding, int32(topK))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search timeout: %w", err)
		}
		return nil, fmt.Errorf("search snippets: %w", err)
	}
	return results, nil
}

// Count returns the number of indexed snippets.
func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.queries.CountSnippets(ctx)
	if err != nil {
		return 0, fmt.Errorf("count snippets: %w", err)
	}
	return n, nil
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
