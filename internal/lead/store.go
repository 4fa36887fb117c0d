// Package lead persists qualification outcomes for agent handoff.
//
// A lead is written at most once per session: the session id is the
// external key and the database upsert makes retries idempotent, so a
// model that calls persist_qualification twice in one conversation does
// not produce duplicate CRM rows.
package lead

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Lead is the persisted qualification snapshot.
type Lead struct {
	ID          int64     `json:"id"`
	ExternalKey string    `json:"external_key"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Score       int       `json:"score"`
	Qualified   bool      `json:"qualified"`
	Profile     Profile   `json:"profile"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Profile is the denormalized buyer profile stored with the lead.
type Profile struct {
	Persona      string   `json:"persona,omitempty"`
	City         string   `json:"city,omitempty"`
	Areas        []string `json:"areas,omitempty"`
	Beds         *int     `json:"beds,omitempty"`
	PropertyType string   `json:"property_type,omitempty"`
	BudgetMin    *int64   `json:"budget_min,omitempty"`
	BudgetMax    *int64   `json:"budget_max,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	MoveInDays   *int     `json:"move_in_days,omitempty"`
	MatchedUnits []string `json:"matched_units,omitempty"`
}

// UpsertParams carries one lead write.
type UpsertParams struct {
	ExternalKey string
	Name        string
	Email       string
	Phone       string
	Score       int
	Qualified   bool
	ProfileJSON []byte
}

// Querier defines the database operations the Store needs.
type Querier interface {
	// UpsertLead inserts or updates the lead keyed by external_key and
	// returns the row id. The id is stable across repeated upserts.
	UpsertLead(ctx context.Context, arg UpsertParams) (int64, error)

	// GetLeadByExternalKey fetches a lead, or pgx.ErrNoRows.
	GetLeadByExternalKey(ctx context.Context, externalKey string) (Lead, error)
}

// Store persists leads.
type Store struct {
	queries Querier
	logger  *slog.Logger
}

// New creates a lead store.
func New(querier Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{queries: querier, logger: logger}
}

// Persist writes the qualification outcome for a session. Calling it
// again with the same external key updates the row in place and returns
// the same lead id.
func (s *Store) Persist(ctx context.Context, l Lead) (int64, error) {
	if l.ExternalKey == "" {
		return 0, fmt.Errorf("lead requires an external key")
	}
	if l.Email == "" && l.Phone == "" {
		return 0, fmt.Errorf("lead requires at least one contact channel")
	}

	profileJSON, err := json.Marshal(l.Profile)
	if err != nil {
		return 0, fmt.Errorf("marshal lead profile: %w", err)
	}

	id, err := s.queries.UpsertLead(ctx, UpsertParams{
		ExternalKey: l.ExternalKey,
		Name:        l.Name,
		Email:       l.Email,
		Phone:       l.Phone,
		Score:       l.Score,
		Qualified:   l.Qualified,
		ProfileJSON: profileJSON,
	})
	if err != nil {
		return 0, fmt.Errorf("upsert lead %q: %w", l.ExternalKey, err)
	}

	s.logger.Info("lead persisted",
		"lead_id", id, "external_key", l.ExternalKey,
		"score", l.Score, "qualified", l.Qualified)
	return id, nil
}

// Get fetches a lead by its external key.
func (s *Store) Get(ctx context.Context, externalKey string) (Lead, error) {
	l, err := s.queries.GetLeadByExternalKey(ctx, externalKey)
	if err != nil {
		return Lead{}, fmt.Errorf("get lead %q: %w", externalKey, err)
	}
	return l, nil
}
