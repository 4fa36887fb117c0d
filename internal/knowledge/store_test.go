package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/goleak"

	"github.com/nestora/nestora/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	embedErr    error
	returnEmpty bool
	callCount   int
	lastInput   string
}

func (m *mockEmbedder) Name() string            { return "mock-embedder" }
func (m *mockEmbedder) Register(_ api.Registry) {}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		m.lastInput = req.Input[0].Content[0].Text
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.returnEmpty {
		return &ai.EmbedResponse{Embeddings: nil}, nil
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: []float32{0.1, 0.2, 0.3}}},
	}, nil
}

// mockQuerier implements Querier for testing.
type mockQuerier struct {
	upsertErr error
	searchErr error

	searchResults []Result
	countResult   int64

	upsertCalls int
	searchCalls int
	lastTopK    int32
	lastSnippet Snippet
}

func (m *mockQuerier) UpsertSnippet(_ context.Context, s Snippet, _ pgvector.Vector) error {
	m.upsertCalls++
	m.lastSnippet = s
	return m.upsertErr
}

func (m *mockQuerier) SearchSnippets(_ context.Context, _ pgvector.Vector, topK int32) ([]Result, error) {
	m.searchCalls++
	m.lastTopK = topK
	return m.searchResults, m.searchErr
}

func (m *mockQuerier) CountSnippets(_ context.Context) (int64, error) {
	return m.countResult, nil
}

func TestStoreAdd(t *testing.T) {
	q := &mockQuerier{}
	e := &mockEmbedder{}
	store := New(q, e, log.NewNop())

	snippet := Snippet{
		ID:      "community:dubai-marina",
		Topic:   "community",
		Content: "Dubai Marina is a waterfront district with high-rise apartments.",
	}
	if err := store.Add(context.Background(), snippet); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if q.upsertCalls != 1 {
		t.Errorf("upsert calls = %d, want 1", q.upsertCalls)
	}
	if e.lastInput != snippet.Content {
		t.Errorf("embedded %q, want snippet content", e.lastInput)
	}
}

func TestStoreAddRejectsIncomplete(t *testing.T) {
	store := New(&mockQuerier{}, &mockEmbedder{}, log.NewNop())
	if err := store.Add(context.Background(), Snippet{ID: "x"}); err == nil {
		t.Error("Add accepted snippet without content")
	}
	if err := store.Add(context.Background(), Snippet{Content: "y"}); err == nil {
		t.Error("Add accepted snippet without id")
	}
}

func TestStoreSearch(t *testing.T) {
	q := &mockQuerier{
		searchResults: []Result{
			{Snippet: Snippet{ID: "a", Topic: "fees"}, Similarity: 0.92},
			{Snippet: Snippet{ID: "b", Topic: "fees"}, Similarity: 0.85},
		},
	}
	e := &mockEmbedder{}
	store := New(q, e, log.NewNop())

	results, err := store.Search(context.Background(), "what is the DLD transfer fee", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].ID != "a" {
		t.Errorf("results = %+v", results)
	}
	if q.lastTopK != 2 {
		t.Errorf("topK = %d, want 2", q.lastTopK)
	}
	if e.lastInput != "what is the DLD transfer fee" {
		t.Errorf("embedded %q, want the query", e.lastInput)
	}
}

func TestStoreSearchDefaultsTopK(t *testing.T) {
	q := &mockQuerier{}
	store := New(q, &mockEmbedder{}, log.NewNop())

	// The conversational path asks for three snippets.
	if DefaultTopK != 3 {
		t.Errorf("DefaultTopK = %d, want 3", DefaultTopK)
	}

	for _, topK := range []int{0, -1, 100} {
		if _, err := store.Search(context.Background(), "visa rules", topK); err != nil {
			t.Fatalf("Search(topK=%d): %v", topK, err)
		}
		if q.lastTopK != DefaultTopK {
			t.Errorf("topK=%d clamped to %d, want %d", topK, q.lastTopK, DefaultTopK)
		}
	}
}

func TestStoreSearchEmptyQuery(t *testing.T) {
	store := New(&mockQuerier{}, &mockEmbedder{}, log.NewNop())
	if _, err := store.Search(context.Background(), "", 5); err == nil {
		t.Error("Search accepted empty query")
	}
}

func TestStoreSearchEmbedderFailure(t *testing.T) {
	embedErr := errors.New("quota exhausted")
	store := New(&mockQuerier{}, &mockEmbedder{embedErr: embedErr}, log.NewNop())

	_, err := store.Search(context.Background(), "service charges in JVC", 3)
	if !errors.Is(err, embedErr) {
		t.Errorf("err = %v, want wrapped embedder error", err)
	}
}

func TestStoreSearchEmptyEmbedding(t *testing.T) {
	store := New(&mockQuerier{}, &mockEmbedder{returnEmpty: true}, log.NewNop())
	if _, err := store.Search(context.Background(), "off-plan payment plans", 3); err == nil {
		t.Error("Search accepted empty embedding")
	}
}

func TestStoreCount(t *testing.T) {
	store := New(&mockQuerier{countResult: 42}, &mockEmbedder{}, log.NewNop())
	n, err := store.Count(context.Background())
	if err != nil || n != 42 {
		t.Errorf("Count = (%d, %v), want (42, nil)", n, err)
	}
}
