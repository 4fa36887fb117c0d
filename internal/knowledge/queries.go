package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PGQueries implements Querier over a pgx connection pool.
type PGQueries struct {
	pool *pgxpool.Pool
}

var _ Querier = (*PGQueries)(nil)

// NewPGQueries wraps a pool. The pool's lifecycle belongs to the caller.
func NewPGQueries(pool *pgxpool.Pool) *PGQueries {
	return &PGQueries{pool: pool}
}

const upsertSnippetSQL = `
INSERT INTO knowledge_snippets (id, topic, content, embedding, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (id) DO UPDATE SET
	topic      = EXCLUDED.topic,
	content    = EXCLUDED.content,
	embedding  = EXCLUDED.embedding,
	updated_at = now()`

func (q *PGQueries) UpsertSnippet(ctx context.Context, s Snippet, embedding pgvector.Vector) error {
	_, err := q.pool.Exec(ctx, upsertSnippetSQL, s.ID, s.Topic, s.Content, embedding)
	if err != nil {
		return fmt.Errorf("exec upsert: %w", err)
	}
	return nil
}

// Cosine distance via the <=> operator; similarity = 1 - distance. The
// id tie-break keeps equal-distance orderings stable across runs.
const searchSnippetsSQL = `
SELECT id, topic, content, updated_at, 1 - (embedding <=> $1) AS similarity
FROM knowledge_snippets
ORDER BY embedding <=> $1, id
LIMIT $2`

func (q *PGQueries) SearchSnippets(ctx context.Context, embedding pgvector.Vector, topK int32) ([]Result, error) {
	rows, err := q.pool.Query(ctx, searchSnippetsSQL, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("query snippets: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0, topK)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Topic, &r.Content, &r.UpdatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan snippet row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snippet rows: %w", err)
	}
	return results, nil
}

func (q *PGQueries) CountSnippets(ctx context.Context) (int64, error) {
	var n int64
	err := q.pool.QueryRow(ctx, `SELECT count(*) FROM knowledge_snippets`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count query: %w", err)
	}
	return n, nil
}
