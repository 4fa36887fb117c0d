package inventory

import (
	"context"
	"fmt"
	"strings"

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

const upsertUnitSQL = `
INSERT INTO inventory_units
	(id, title, community, city, beds, property_type, price_aed, size_sqft, description, available, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
	title         = EXCLUDED.title,
	community     = EXCLUDED.community,
	city          = EXCLUDED.city,
	beds          = EXCLUDED.beds,
	property_type = EXCLUDED.property_type,
	price_aed     = EXCLUDED.price_aed,
	size_sqft     = EXCLUDED.size_sqft,
	description   = EXCLUDED.description,
	available     = EXCLUDED.available,
	embedding     = EXCLUDED.embedding`

func (q *PGQueries) UpsertUnit(ctx context.Context, u Unit, embedding pgvector.Vector) error {
	_, err := q.pool.Exec(ctx, upsertUnitSQL,
		u.ID, u.Title, u.Community, u.City, u.Beds, u.PropertyType,
		u.PriceAED, u.SizeSqft, u.Description, u.Available, embedding)
	if err != nil {
		return fmt.Errorf("exec upsert: %w", err)
	}
	return nil
}

// SearchUnits applies only the hard pre-filters in SQL: availability,
// city, and a wide beds window. Soft constraints (exact beds, area,
// budget) stay in the re-rank so near misses remain visible.
func (q *PGQueries) SearchUnits(ctx context.Context, embedding pgvector.Vector, f Filter, limit int32) ([]candidate, error) {
	var (
		where = []string{"available"}
		args  = []any{embedding}
	)
	if f.City != "" {
		args = append(args, f.City)
		where = append(where, fmt.Sprintf("lower(city) = lower($%d)", len(args)))
	}
	if f.Beds != nil {
		args = append(args, *f.Beds)
		where = append(where, fmt.Sprintf("abs(beds - $%d) <= 1", len(args)))
	}
	args = append(args, limit)

	sql := fmt.Sprintf(`
SELECT id, title, community, city, beds, property_type, price_aed, size_sqft,
       description, available, 1 - (embedding <=> $1) AS similarity
FROM inventory_units
WHERE %s
ORDER BY embedding <=> $1, id
LIMIT $%d`, strings.Join(where, " AND "), len(args))

	rows, err := q.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	candidates := make([]candidate, 0, limit)
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.ID, &c.Title, &c.Community, &c.City, &c.Beds,
			&c.PropertyType, &c.PriceAED, &c.SizeSqft, &c.Description,
			&c.Available, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scan unit row: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unit rows: %w", err)
	}
	return candidates, nil
}

func (q *PGQueries) CountUnits(ctx context.Context) (int64, error) {
	var n int64
	err := q.pool.QueryRow(ctx, `SELECT count(*) FROM inventory_units WHERE available`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count query: %w", err)
	}
	return n, nil
}
