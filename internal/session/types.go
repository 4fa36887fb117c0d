// Package session provides durable, time-bounded conversation state for
// the qualification agent.
//
// A session is addressable by its id and, once contact details are
// captured, by normalized email and phone secondary keys. The store owns
// the session; the orchestrator borrows a mutable view for one turn and
// writes it back atomically at turn end.
package session

import (
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/nestora/nestora/internal/qualify"
)

// Role constants for stored messages.
const (
	RoleUser  = "user"
	RoleModel = "model"
	RoleTool  = "tool"
)

// Session is one visitor conversation. Serialized as JSON in the store.
type Session struct {
	ID        uuid.UUID     `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Messages  []*ai.Message `json:"messages"`
	Collected CollectedData `json:"collected_data"`

	// LastMatches holds the most recent inventory results so scoring can
	// see them on later turns without re-searching.
	LastMatches []qualify.Match `json:"last_matches,omitempty"`

	// TurnToolCalls counts tool invocations within the current turn and
	// resets at turn start. LifetimeToolCalls never resets; it feeds
	// abuse detection.
	TurnToolCalls     int `json:"turn_tool_calls"`
	LifetimeToolCalls int `json:"lifetime_tool_calls"`

	// LeadID is set once persist_qualification has written the lead.
	LeadID int64 `json:"lead_id,omitempty"`

	// Ephemeral marks a session served from the in-memory fallback; it
	// will not survive a process restart.
	Ephemeral bool `json:"-"`
}

// Append adds a message to the conversation history.
func (s *Session) Append(msgs ...*ai.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// CollectedData is the buyer profile accumulated across turns. Pointer
// fields distinguish "not collected yet" from zero values, which is what
// makes merges monotonic.
type CollectedData struct {
	Persona      *string  `json:"persona,omitempty"`
	City         *string  `json:"city,omitempty"`
	Areas        []string `json:"areas,omitempty"`
	Beds         *int     `json:"beds,omitempty"`
	PropertyType *string  `json:"property_type,omitempty"`
	BudgetMin    *int64   `json:"budget_min,omitempty"`
	BudgetMax    *int64   `json:"budget_max,omitempty"`
	Currency     *string  `json:"currency,omitempty"`
	MoveInDays   *int     `json:"move_in_days,omitempty"`
	Email        *string  `json:"email,omitempty"`
	Phone        *string  `json:"phone,omitempty"`
}

// Merge applies patch on top of c. Fields absent from the patch (nil)
// keep their current value; present fields overwrite. A previously
// collected field is never dropped.
func (c *CollectedData) Merge(patch CollectedData) {
	if patch.Persona != nil {
		c.Persona = patch.Persona
	}
	if patch.City != nil {
		c.City = patch.City
	}
	if len(patch.Areas) > 0 {
		c.Areas = patch.Areas
	}
	if patch.Beds != nil {
		c.Beds = patch.Beds
	}
	if patch.PropertyType != nil {
		c.PropertyType = patch.PropertyType
	}
	if patch.BudgetMin != nil {
		c.BudgetMin = patch.BudgetMin
	}
	if patch.BudgetMax != nil {
		c.BudgetMax = patch.BudgetMax
	}
	if patch.Currency != nil {
		c.Currency = patch.Currency
	}
	if patch.MoveInDays != nil {
		c.MoveInDays = patch.MoveInDays
	}
	if patch.Email != nil {
		c.Email = patch.Email
	}
	if patch.Phone != nil {
		c.Phone = patch.Phone
	}
}

// IsZero reports whether the patch carries no fields.
func (c CollectedData) IsZero() bool {
	return c.Persona == nil && c.City == nil && len(c.Areas) == 0 &&
		c.Beds == nil && c.PropertyType == nil && c.BudgetMin == nil &&
		c.BudgetMax == nil && c.Currency == nil && c.MoveInDays == nil &&
		c.Email == nil && c.Phone == nil
}

// Profile converts collected data into a scoring profile. Inventory
// matches are attached by the caller.
func (c CollectedData) Profile() qualify.Profile {
	p := qualify.Profile{
		Areas:      c.Areas,
		Beds:       c.Beds,
		BudgetMin:  c.BudgetMin,
		BudgetMax:  c.BudgetMax,
		MoveInDays: c.MoveInDays,
	}
	if c.Persona != nil {
		p.Persona = *c.Persona
	}
	if c.City != nil {
		p.City = *c.City
	}
	if c.PropertyType != nil {
		p.PropertyType = *c.PropertyType
	}
	if c.Currency != nil {
		p.Currency = *c.Currency
	}
	if c.Email != nil {
		p.Email = *c.Email
	}
	if c.Phone != nil {
		p.Phone = *c.Phone
	}
	return p
}
