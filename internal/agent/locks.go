package agent

import (
	"errors"
	"sync"
)

// ErrSessionBusy is returned when a turn arrives for a session that
// already has one in flight. The caller rejects it; turns are never
// queued.
var ErrSessionBusy = errors.New("a turn is already in flight for this session")

// turnLocks guards one-in-flight-turn-per-session. Lock scope is this
// process; the busy window is seconds long and sessions are sticky to
// an instance, so a distributed lock buys nothing here.
type turnLocks struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func newTurnLocks() *turnLocks {
	return &turnLocks{inFlight: make(map[string]struct{})}
}

// TryAcquire claims the session for a turn, or returns false if one is
// already running.
func (l *turnLocks) TryAcquire(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.inFlight[sessionID]; busy {
		return false
	}
	l.inFlight[sessionID] = struct{}{}
	return true
}

// Release frees the session. Safe to call for an unheld id.
func (l *turnLocks) Release(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, sessionID)
}
