package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Key namespace, read by external tooling: a primary key per session id
// and secondary keys mapping normalized contacts to the session id.
const (
	keyPrefixSession = "agent:session:"
	keyPrefixEmail   = "agent:email:"
	keyPrefixPhone   = "agent:phone:"
)

const defaultDialTimeout = 5 * time.Second

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// TTL bounds session lifetime. Fixed from creation by default;
	// Sliding refreshes the full TTL on every save instead.
	TTL     time.Duration
	Sliding bool

	// DefaultCountryCode completes national phone numbers for both
	// indexing and lookup. The same code must be used on both sides or a
	// returning visitor's national-format number resolves to a different
	// canonical form than the one indexed. Empty means DefaultCountryCode.
	DefaultCountryCode string
}

// Dial connects to Redis and verifies the connection with a ping.
func Dial(ctx context.Context, cfg RedisConfig) (goredis.UniversalClient, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        []string{cfg.Addr},
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultDialTimeout,
		WriteTimeout: defaultDialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisStore is the durable Store implementation.
//
// Safe for concurrent use; unrelated session ids need no coordination.
type RedisStore struct {
	client    goredis.UniversalClient
	ttl       time.Duration
	sliding   bool
	defaultCC string
	logger    *slog.Logger
	now       func() time.Time
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client goredis.UniversalClient, cfg RedisConfig, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	cc := cfg.DefaultCountryCode
	if cc == "" {
		cc = DefaultCountryCode
	}
	return &RedisStore{
		client:    client,
		ttl:       ttl,
		sliding:   cfg.Sliding,
		defaultCC: cc,
		logger:    logger,
		now:       time.Now,
	}
}

// Resolve looks up by session id, then normalized email, then normalized
// phone. Stale secondary keys (pointing at an expired session) are
// skipped, so a later key may still hit.
func (r *RedisStore) Resolve(ctx context.Context, ref Ref) (*Session, error) {
	if ref.SessionID != "" {
		s, err := r.getByID(ctx, ref.SessionID)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if email, ok := NormalizeEmail(ref.Email); ok {
		if s, err := r.getBySecondary(ctx, keyPrefixEmail+email); err == nil {
			return s, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if phone, ok := NormalizePhone(ref.Phone, r.defaultCC); ok {
		if s, err := r.getBySecondary(ctx, keyPrefixPhone+phone); err == nil {
			return s, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	return nil, ErrNotFound
}

// Create allocates a fresh session and persists it immediately so the
// TTL clock starts now.
func (r *RedisStore) Create(ctx context.Context) (*Session, error) {
	now := r.now().UTC()
	s := &Session{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Save(ctx, s); err != nil {
		return nil, err
	}
	r.logger.Debug("created session", "session_id", s.ID)
	return s, nil
}

// Save persists the full session state under its id key.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	expiry, err := r.remaining(s)
	if err != nil {
		return err
	}

	s.UpdatedAt = r.now().UTC()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.ID, err)
	}

	if err := r.client.Set(ctx, keyPrefixSession+s.ID.String(), data, expiry).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

// IndexByEmail registers the email secondary key. Idempotent; a mapping
// pointing at a different session is overwritten (last-writer-wins) with
// a warning so identity collisions are auditable.
func (r *RedisStore) IndexByEmail(ctx context.Context, s *Session, email string) error {
	norm, ok := NormalizeEmail(email)
	if !ok {
		return fmt.Errorf("index email for %s: not email-shaped", s.ID)
	}
	return r.indexSecondary(ctx, s, keyPrefixEmail+norm)
}

// IndexByPhone registers the phone secondary key with the same
// overwrite semantics as IndexByEmail.
func (r *RedisStore) IndexByPhone(ctx context.Context, s *Session, phone string) error {
	norm, ok := NormalizePhone(phone, r.defaultCC)
	if !ok {
		return fmt.Errorf("index phone for %s: not phone-shaped", s.ID)
	}
	return r.indexSecondary(ctx, s, keyPrefixPhone+norm)
}

func (r *RedisStore) indexSecondary(ctx context.Context, s *Session, key string) error {
	expiry, err := r.remaining(s)
	if err != nil {
		return err
	}

	prev, err := r.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("check secondary key: %w", err)
	}
	if prev != "" && prev != s.ID.String() {
		r.logger.Warn("secondary key collision, overwriting",
			"key", key, "previous_session", prev, "session_id", s.ID)
	}

	if err := r.client.Set(ctx, key, s.ID.String(), expiry).Err(); err != nil {
		return fmt.Errorf("set secondary key: %w", err)
	}
	return nil
}

func (r *RedisStore) getByID(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, keyPrefixSession+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *RedisStore) getBySecondary(ctx context.Context, key string) (*Session, error) {
	id, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get secondary key: %w", err)
	}
	return r.getByID(ctx, id)
}

// remaining computes the expiry for the next write. Fixed policy: the
// TTL runs from creation, so re-saving never extends the deadline.
func (r *RedisStore) remaining(s *Session) (time.Duration, error) {
	if r.sliding {
		return r.ttl, nil
	}
	left := r.ttl - r.now().UTC().Sub(s.CreatedAt)
	if left <= 0 {
		return 0, fmt.Errorf("session %s: %w", s.ID, ErrExpired)
	}
	return left, nil
}
