package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It backs tests and the degraded
// mode entered when Redis is unreachable; sessions it creates are marked
// Ephemeral and vanish on restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	created  map[string]time.Time
	byEmail  map[string]string
	byPhone  map[string]string

	ttl       time.Duration
	sliding   bool
	defaultCC string
	logger    *slog.Logger
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory session store with the given TTL.
// defaultCC completes national phone numbers on index and lookup; empty
// means DefaultCountryCode.
func NewMemoryStore(ttl time.Duration, defaultCC string, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if defaultCC == "" {
		defaultCC = DefaultCountryCode
	}
	return &MemoryStore{
		sessions:  make(map[string][]byte),
		created:   make(map[string]time.Time),
		byEmail:   make(map[string]string),
		byPhone:   make(map[string]string),
		ttl:       ttl,
		defaultCC: defaultCC,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (m *MemoryStore) SetClock(now func() time.Time) { m.now = now }

func (m *MemoryStore) Resolve(ctx context.Context, ref Ref) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ref.SessionID != "" {
		if s, ok := m.getLocked(ref.SessionID); ok {
			return s, nil
		}
	}
	if email, ok := NormalizeEmail(ref.Email); ok {
		if id, ok := m.byEmail[email]; ok {
			if s, ok := m.getLocked(id); ok {
				return s, nil
			}
		}
	}
	if phone, ok := NormalizePhone(ref.Phone, m.defaultCC); ok {
		if id, ok := m.byPhone[phone]; ok {
			if s, ok := m.getLocked(id); ok {
				return s, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Create(ctx context.Context) (*Session, error) {
	now := m.now().UTC()
	s := &Session{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
		Ephemeral: true,
	}
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sliding && m.now().UTC().Sub(s.CreatedAt) >= m.ttl {
		return fmt.Errorf("session %s: %w", s.ID, ErrExpired)
	}

	s.UpdatedAt = m.now().UTC()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.ID, err)
	}
	m.sessions[s.ID.String()] = data
	m.created[s.ID.String()] = s.CreatedAt
	return nil
}

func (m *MemoryStore) IndexByEmail(ctx context.Context, s *Session, email string) error {
	norm, ok := NormalizeEmail(email)
	if !ok {
		return fmt.Errorf("index email for %s: not email-shaped", s.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexLocked(m.byEmail, norm, s.ID.String())
	return nil
}

func (m *MemoryStore) IndexByPhone(ctx context.Context, s *Session, phone string) error {
	norm, ok := NormalizePhone(phone, m.defaultCC)
	if !ok {
		return fmt.Errorf("index phone for %s: not phone-shaped", s.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexLocked(m.byPhone, norm, s.ID.String())
	return nil
}

func (m *MemoryStore) indexLocked(index map[string]string, key, id string) {
	if prev, ok := index[key]; ok && prev != id {
		m.logger.Warn("secondary key collision, overwriting",
			"key", key, "previous_session", prev, "session_id", id)
	}
	index[key] = id
}

// getLocked returns a decoded copy, expiring lazily on read.
func (m *MemoryStore) getLocked(id string) (*Session, bool) {
	data, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if created, ok := m.created[id]; ok && !m.sliding {
		if m.now().UTC().Sub(created) >= m.ttl {
			delete(m.sessions, id)
			delete(m.created, id)
			return nil, false
		}
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		m.logger.Error("corrupt in-memory session", "session_id", id, "error", err)
		return nil, false
	}
	s.Ephemeral = true
	return &s, true
}
