package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/signbridge/internal/session"
)

var (
	// ErrSessionActive is returned by [SessionManager.Start] while another
	// session still owns the microphone.
	ErrSessionActive = errors.New("app: a session is already active")

	// ErrNoSession is returned by [SessionManager.Stop] when nothing runs.
	ErrNoSession = errors.New("app: no active session")
)

// SessionFactory builds a fresh, Idle session. It is called once per Start.
type SessionFactory func() (*session.Session, error)

// SessionInfo holds metadata about the active session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// StartedAt is when Start was called.
	StartedAt time.Time
}

// SessionManager guarantees that at most one streaming session is active.
// The slot is claimed before the session opens, so a concurrent Start is
// refused even while the first one is still acquiring the microphone, and
// Stop can cancel a session that has not finished opening. A session that
// reaches a terminal state releases the slot by itself.
//
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu     sync.Mutex
	active *session.Session
	info   SessionInfo
}

// NewSessionManager returns an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{}
}

// Start builds a session with factory and opens it. It returns the running
// session, or the open error after the slot has been released again.
//
// Returns [ErrSessionActive] if a session is already active.
func (sm *SessionManager) Start(ctx context.Context, factory SessionFactory) (*session.Session, error) {
	sm.mu.Lock()
	if sm.active != nil {
		id := sm.info.SessionID
		sm.mu.Unlock()
		return nil, fmt.Errorf("%w (id=%s)", ErrSessionActive, id)
	}
	s, err := factory()
	if err != nil {
		sm.mu.Unlock()
		return nil, fmt.Errorf("app: build session: %w", err)
	}
	sm.active = s
	sm.info = SessionInfo{SessionID: s.ID(), StartedAt: time.Now().UTC()}
	sm.mu.Unlock()

	go sm.release(s)

	if err := s.Start(ctx); err != nil {
		<-s.Done()
		return nil, err
	}
	slog.Info("session started", "session_id", s.ID())
	return s, nil
}

// release frees the slot once s is terminal.
func (sm *SessionManager) release(s *session.Session) {
	<-s.Done()
	sm.clear(s)
	slog.Info("session released", "session_id", s.ID(), "state", s.State(), "err", s.Err())
}

// Stop asks the active session to drain and waits until it is terminal or
// ctx is done. The returned error is the session failure, if any.
//
// Returns [ErrNoSession] if no session is active.
func (sm *SessionManager) Stop(ctx context.Context) error {
	sm.mu.Lock()
	s := sm.active
	sm.mu.Unlock()

	if s == nil {
		return ErrNoSession
	}
	s.Stop()
	err := s.Wait(ctx)

	// The release goroutine may not have run yet.
	select {
	case <-s.Done():
		sm.clear(s)
	default:
	}
	return err
}

func (sm *SessionManager) clear(s *session.Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.active == s {
		sm.active = nil
		sm.info = SessionInfo{}
	}
}

// IsActive reports whether a session currently holds the slot.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active != nil
}

// Active returns the active session, or nil.
func (sm *SessionManager) Active() *session.Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the active session.
// Returns zero value if no session is active.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}
