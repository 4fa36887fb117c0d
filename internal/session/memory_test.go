package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nestora/nestora/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemoryStoreResolveByID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, "971", log.NewNop())

	s, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !s.Ephemeral {
		t.Error("in-memory session not marked ephemeral")
	}

	got, err := store.Resolve(ctx, Ref{SessionID: s.ID.String()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != s.ID {
		t.Errorf("resolved %s, want %s", got.ID, s.ID)
	}

	if _, err := store.Resolve(ctx, Ref{SessionID: "00000000-0000-0000-0000-000000000000"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}
}

// Once a contact is indexed, the session must resolve by that contact
// for as long as it lives.
func TestMemoryStoreResolveAfterIndex(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, "971", log.NewNop())

	s, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.IndexByEmail(ctx, s, "Buyer@Example.com"); err != nil {
		t.Fatalf("IndexByEmail: %v", err)
	}
	if err := store.IndexByPhone(ctx, s, "501234567"); err == nil {
		t.Fatal("IndexByPhone accepted a number without any prefix")
	}
	if err := store.IndexByPhone(ctx, s, "+971 50 123 4567"); err != nil {
		t.Fatalf("IndexByPhone: %v", err)
	}

	// Lookups use the normalized forms regardless of input casing.
	byEmail, err := store.Resolve(ctx, Ref{Email: "buyer@example.COM"})
	if err != nil || byEmail.ID != s.ID {
		t.Errorf("resolve by email: session %v, err %v", byEmail, err)
	}
	byPhone, err := store.Resolve(ctx, Ref{Phone: "+971501234567"})
	if err != nil || byPhone.ID != s.ID {
		t.Errorf("resolve by phone: session %v, err %v", byPhone, err)
	}
}

// A phone indexed in international form must resolve when the visitor
// presents the same number in national format, and the other way round.
// Both sides normalize with the store's configured country code.
func TestMemoryStorePhoneFormatRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, "971", log.NewNop())

	s, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.IndexByPhone(ctx, s, "+971501234567"); err != nil {
		t.Fatalf("IndexByPhone: %v", err)
	}

	national, err := store.Resolve(ctx, Ref{Phone: "050 123 4567"})
	if err != nil {
		t.Fatalf("resolve by national format: %v", err)
	}
	if national.ID != s.ID {
		t.Errorf("resolved %s, want %s", national.ID, s.ID)
	}

	other, _ := store.Create(ctx)
	if err := store.IndexByPhone(ctx, other, "055 987 6543"); err != nil {
		t.Fatalf("IndexByPhone national format: %v", err)
	}
	intl, err := store.Resolve(ctx, Ref{Phone: "+971559876543"})
	if err != nil {
		t.Fatalf("resolve by international format: %v", err)
	}
	if intl.ID != other.ID {
		t.Errorf("resolved %s, want %s", intl.ID, other.ID)
	}
}

func TestMemoryStoreLastWriterWinsOnCollision(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, "971", log.NewNop())

	first, _ := store.Create(ctx)
	second, _ := store.Create(ctx)

	if err := store.IndexByEmail(ctx, first, "shared@example.com"); err != nil {
		t.Fatal(err)
	}
	if err := store.IndexByEmail(ctx, second, "shared@example.com"); err != nil {
		t.Fatal(err)
	}

	got, err := store.Resolve(ctx, Ref{Email: "shared@example.com"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("resolved %s, want last writer %s", got.ID, second.ID)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, "971", log.NewNop())

	base := time.Now().UTC()
	store.SetClock(func() time.Time { return base })

	s, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Still alive just inside the TTL.
	store.SetClock(func() time.Time { return base.Add(59 * time.Minute) })
	if _, err := store.Resolve(ctx, Ref{SessionID: s.ID.String()}); err != nil {
		t.Fatalf("Resolve before expiry: %v", err)
	}
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save before expiry: %v", err)
	}

	// Saving does not extend the fixed TTL.
	store.SetClock(func() time.Time { return base.Add(61 * time.Minute) })
	if _, err := store.Resolve(ctx, Ref{SessionID: s.ID.String()}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve after expiry: err = %v, want ErrNotFound", err)
	}
	if err := store.Save(ctx, s); !errors.Is(err, ErrExpired) {
		t.Errorf("Save after expiry: err = %v, want ErrExpired", err)
	}
}

// The session id wins over contact keys when both are present.
func TestMemoryStoreResolveOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, "971", log.NewNop())

	byID, _ := store.Create(ctx)
	byContact, _ := store.Create(ctx)
	if err := store.IndexByEmail(ctx, byContact, "x@y.com"); err != nil {
		t.Fatal(err)
	}

	got, err := store.Resolve(ctx, Ref{SessionID: byID.ID.String(), Email: "x@y.com"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != byID.ID {
		t.Errorf("resolved %s, want session-id match %s", got.ID, byID.ID)
	}
}
