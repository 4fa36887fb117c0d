package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nestora/nestora/internal/agent"
	"github.com/nestora/nestora/internal/session"
	"github.com/nestora/nestora/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRunner replays canned events through the sink.
type fakeRunner struct {
	err        error
	events     []agent.Event
	gotMessage string
	gotSession *session.Session
}

func (f *fakeRunner) Turn(ctx context.Context, sess *session.Session, userText string, sink agent.Sink) error {
	f.gotSession = sess
	f.gotMessage = userText
	if f.err != nil {
		return f.err
	}
	for _, ev := range f.events {
		if err := sink.Send(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func newTestServer(t *testing.T, runner TurnRunner) (*Server, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore(7*24*time.Hour, "971", testutil.DiscardLogger())
	srv, err := NewServer(ServerConfig{
		Logger: testutil.DiscardLogger(),
		Store:  store,
		Runner: runner,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, store
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestReadyWithoutPool(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestOpenSessionNew(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agent/session", strings.NewReader("{}")))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var resp openSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("session_id is empty")
	}
	if resp.Resumed {
		t.Error("fresh session marked resumed")
	}
}

func TestOpenSessionEmptyBody(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agent/session", nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
}

func TestOpenSessionResumeByID(t *testing.T) {
	srv, store := newTestServer(t, &fakeRunner{})

	sess, err := store.Create(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	city := "Dubai"
	sess.Collected.City = &city
	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	body := `{"session_id":"` + sess.ID.String() + `"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agent/session", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp openSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Resumed {
		t.Error("existing session not marked resumed")
	}
	if resp.Collected.City == nil || *resp.Collected.City != "Dubai" {
		t.Errorf("collected city = %+v", resp.Collected.City)
	}
}

func TestOpenSessionResumeByEmail(t *testing.T) {
	srv, store := newTestServer(t, &fakeRunner{})

	sess, err := store.Create(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.IndexByEmail(context.Background(), sess, "buyer@example.com"); err != nil {
		t.Fatalf("index: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agent/session",
		strings.NewReader(`{"email":"buyer@example.com"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp openSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != sess.ID.String() {
		t.Errorf("session_id = %q, want %q", resp.SessionID, sess.ID)
	}
}

func TestOpenSessionCarriesLeadReference(t *testing.T) {
	srv, store := newTestServer(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agent/session",
		strings.NewReader(`{"lead_id":42}`)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var resp openSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	sess, err := store.Resolve(context.Background(), session.Ref{SessionID: resp.SessionID})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sess.LeadID != 42 {
		t.Errorf("lead id = %d, want 42", sess.LeadID)
	}
}

func TestOpenSessionUnknownIDCreatesNew(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agent/session",
		strings.NewReader(`{"session_id":"11111111-2222-3333-4444-555555555555"}`)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
}

func TestTurnStreamsEvents(t *testing.T) {
	runner := &fakeRunner{events: []agent.Event{
		{Type: agent.EventPartialText, Payload: agent.PartialText{Text: "Hello"}},
		{Type: agent.EventDone, Payload: agent.Done{Reason: agent.ReasonCompleted, Rounds: 1}},
	}}
	srv, store := newTestServer(t, runner)

	sess, err := store.Create(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	body := `{"session_id":"` + sess.ID.String() + `","message":"hi"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agent/turn", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	got := rec.Body.String()
	if !strings.Contains(got, "event: partial_text\ndata: {\"text\":\"Hello\"}\n\n") {
		t.Errorf("missing partial_text frame:\n%s", got)
	}
	if !strings.Contains(got, "event: done\n") {
		t.Errorf("missing done frame:\n%s", got)
	}
	if runner.gotMessage != "hi" {
		t.Errorf("runner message = %q", runner.gotMessage)
	}
}

func TestTurnBusyReturnsConflict(t *testing.T) {
	srv, store := newTestServer(t, &fakeRunner{err: agent.ErrSessionBusy})

	sess, err := store.Create(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	body := `{"session_id":"` + sess.ID.String() + `","message":"hi"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agent/turn", strings.NewReader(body)))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Error("missing Retry-After header")
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "session_busy" {
		t.Errorf("error code = %q", resp.Error)
	}
}

func TestTurnEmptyMessage(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agent/turn",
		strings.NewReader(`{"message":""}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTurnWithoutSessionCreatesOne(t *testing.T) {
	runner := &fakeRunner{events: []agent.Event{
		{Type: agent.EventDone, Payload: agent.Done{Reason: agent.ReasonCompleted}},
	}}
	srv, _ := newTestServer(t, runner)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agent/turn",
		strings.NewReader(`{"message":"hello"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if runner.gotSession == nil {
		t.Fatal("runner did not receive a session")
	}
}

func TestTurnFailureBeforeStream(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{err: errors.New("bad input")})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agent/turn",
		strings.NewReader(`{"message":"hello"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body)
	}
}

func TestTurnMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/agent/turn", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
