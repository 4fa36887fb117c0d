package lead

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
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

const upsertLeadSQL = `
INSERT INTO leads (external_key, name, email, phone, score, qualified, profile, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
ON CONFLICT (external_key) DO UPDATE SET
	name       = EXCLUDED.name,
	email      = EXCLUDED.email,
	phone      = EXCLUDED.phone,
	score      = EXCLUDED.score,
	qualified  = EXCLUDED.qualified,
	profile    = EXCLUDED.profile,
	updated_at = now()
RETURNING id`

func (q *PGQueries) UpsertLead(ctx context.Context, arg UpsertParams) (int64, error) {
	var id int64
	err := q.pool.QueryRow(ctx, upsertLeadSQL,
		arg.ExternalKey, arg.Name, arg.Email, arg.Phone,
		arg.Score, arg.Qualified, arg.ProfileJSON).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("exec upsert: %w", err)
	}
	return id, nil
}

const getLeadSQL = `
SELECT id, external_key, name, email, phone, score, qualified, profile, created_at, updated_at
FROM leads
WHERE external_key = $1`

func (q *PGQueries) GetLeadByExternalKey(ctx context.Context, externalKey string) (Lead, error) {
	var (
		l           Lead
		profileJSON []byte
	)
	err := q.pool.QueryRow(ctx, getLeadSQL, externalKey).Scan(
		&l.ID, &l.ExternalKey, &l.Name, &l.Email, &l.Phone,
		&l.Score, &l.Qualified, &profileJSON, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return Lead{}, err
	}
	if err := json.Unmarshal(profileJSON, &l.Profile); err != nil {
		return Lead{}, fmt.Errorf("decode lead profile: %w", err)
	}
	return l, nil
}
