package session

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates no session matched any lookup key.
	ErrNotFound = errors.New("session not found")

	// ErrExpired indicates the session's fixed TTL has elapsed. Callers
	// create a new session transparently.
	ErrExpired = errors.New("session expired")
)

// Ref carries the identity hints a caller may present. Lookup order is
// session id, then normalized email, then normalized phone; the first hit
// wins. Distinct hints are never merged silently.
type Ref struct {
	SessionID string
	Email     string
	Phone     string
}

// Store is the session persistence contract. Implementations must be
// safe for concurrent use across unrelated session ids.
type Store interface {
	// Resolve returns the first session matching the ref's keys in
	// order, or ErrNotFound.
	Resolve(ctx context.Context, ref Ref) (*Session, error)

	// Create allocates a fresh session with an empty history and starts
	// its TTL clock.
	Create(ctx context.Context) (*Session, error)

	// Save persists the full session state under its id key. With the
	// default fixed-TTL policy the remaining lifetime shrinks as the
	// session ages; saving an expired session returns ErrExpired.
	Save(ctx context.Context, s *Session) error

	// IndexByEmail registers a secondary lookup key for the session.
	// Idempotent; a stale mapping to a different session is overwritten
	// (last-writer-wins) and logged.
	IndexByEmail(ctx context.Context, s *Session, email string) error

	// IndexByPhone is IndexByEmail for phone numbers.
	IndexByPhone(ctx context.Context, s *Session, phone string) error
}
