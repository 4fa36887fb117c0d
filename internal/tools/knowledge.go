package tools

import (
	"context"

	"github.com/nestora/nestora/internal/knowledge"
	"github.com/nestora/nestora/internal/session"
)

// KnowledgeSearcher is the slice of the knowledge store this package
// needs.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]knowledge.Result, error)
}

// KnowledgeSearchInput is the model-facing argument schema. The result
// count is fixed at three; the model only supplies the question.
type KnowledgeSearchInput struct {
	Query string `json:"query" jsonschema:"description=Question about areas, developers, fees, visas or the buying process"`
}

// KnowledgeSearchResult is one snippet in the tool response.
type KnowledgeSearchResult struct {
	Topic      string  `json:"topic"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// NewKnowledgeSearch builds the knowledge_search tool.
func NewKnowledgeSearch(store KnowledgeSearcher) (*Tool, error) {
	return New("knowledge_search",
		"Search curated real-estate knowledge: community guides, developer profiles, fees, visa rules and the buying process. Use this to answer factual questions instead of guessing.",
		func(ctx context.Context, _ *session.Session, in KnowledgeSearchInput) (Output, error) {
			results, err := store.Search(ctx, in.Query, knowledge.DefaultTopK)
			if err != nil {
				return Output{}, err
			}
			out := make([]KnowledgeSearchResult, 0, len(results))
			for _, r := range results {
				out = append(out, KnowledgeSearchResult{
					Topic:      r.Topic,
					Content:    r.Content,
					Similarity: r.Similarity,
				})
			}
			return Output{Result: map[string]any{"snippets": out}}, nil
		})
}
