package session

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Fallback wraps a durable primary store with an in-memory backup. When
// the primary errors on a read or create, the request is served from the
// backup so the conversation can proceed ephemerally instead of failing.
// ErrNotFound and ErrExpired are outcomes, not outages, and pass through.
type Fallback struct {
	primary Store
	backup  *MemoryStore
	logger  *slog.Logger
}

var _ Store = (*Fallback)(nil)

// NewFallback wraps primary with an in-memory degradation path. The
// backup normalizes phones with the same defaultCC as the primary.
func NewFallback(primary Store, ttl time.Duration, defaultCC string, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		primary: primary,
		backup:  NewMemoryStore(ttl, defaultCC, logger),
		logger:  logger,
	}
}

func (f *Fallback) Resolve(ctx context.Context, ref Ref) (*Session, error) {
	s, err := f.primary.Resolve(ctx, ref)
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) {
		if err == nil {
			return s, nil
		}
		// A session created during a previous outage may still live in
		// the backup.
		if bs, berr := f.backup.Resolve(ctx, ref); berr == nil {
			return bs, nil
		}
		return nil, err
	}

	f.logger.Warn("session store unavailable, falling back to memory", "error", err)
	return f.backup.Resolve(ctx, ref)
}

func (f *Fallback) Create(ctx context.Context) (*Session, error) {
	s, err := f.primary.Create(ctx)
	if err == nil {
		return s, nil
	}
	f.logger.Warn("session store unavailable, creating ephemeral session", "error", err)
	return f.backup.Create(ctx)
}

func (f *Fallback) Save(ctx context.Context, s *Session) error {
	if s.Ephemeral {
		return f.backup.Save(ctx, s)
	}
	err := f.primary.Save(ctx, s)
	if err == nil || errors.Is(err, ErrExpired) {
		return err
	}
	f.logger.Warn("session save failed, keeping ephemeral copy",
		"session_id", s.ID, "error", err)
	s.Ephemeral = true
	return f.backup.Save(ctx, s)
}

func (f *Fallback) IndexByEmail(ctx context.Context, s *Session, email string) error {
	if s.Ephemeral {
		return f.backup.IndexByEmail(ctx, s, email)
	}
	return f.primary.IndexByEmail(ctx, s, email)
}

func (f *Fallback) IndexByPhone(ctx context.Context, s *Session, phone string) error {
	if s.Ephemeral {
		return f.backup.IndexByPhone(ctx, s, phone)
	}
	return f.primary.IndexByPhone(ctx, s, phone)
}
