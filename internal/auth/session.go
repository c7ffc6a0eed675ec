package auth

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// SessionState is the client-side authentication state consumed by the list
// core. Remote list operations are only available while AUTHENTICATED.
type SessionState string

// Session states.
const (
	StateIdle          SessionState = "IDLE"
	StateLoading       SessionState = "LOADING"
	StateAuthenticated SessionState = "AUTHENTICATED"
	StateLoggingIn     SessionState = "LOGGING_IN"
	StateError         SessionState = "ERROR"
)

// ErrLoginInProgress is returned when Login is called during another login.
var ErrLoginInProgress = errors.New("login already in progress")

// StateProvider exposes the current session state.
type StateProvider interface {
	State() SessionState
}

// StaticState is a StateProvider with a fixed state.
type StaticState SessionState

// State returns the fixed state.
func (s StaticState) State() SessionState {
	return SessionState(s)
}

// LoginFunc performs the actual credential exchange.
type LoginFunc func(ctx context.Context) error

// Session tracks the authentication state of one client session.
type Session struct {
	mu     sync.RWMutex
	state  SessionState
	login  LoginFunc
	logger *zap.Logger
}

// NewSession creates an idle session that authenticates with login.
func NewSession(login LoginFunc, logger *zap.Logger) *Session {
	return &Session{
		state:  StateIdle,
		login:  login,
		logger: logger,
	}
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Login moves the session through LOGGING_IN to AUTHENTICATED, or to ERROR
// when the credential exchange fails.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateLoggingIn {
		s.mu.Unlock()
		return ErrLoginInProgress
	}
	s.state = StateLoggingIn
	s.mu.Unlock()

	err := s.login(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateError
		s.logger.Warn("login failed", zap.Error(err))
		return err
	}
	s.state = StateAuthenticated
	s.logger.Info("session authenticated")
	return nil
}

// Logout returns the session to IDLE.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
}
