// Package session holds the signed-in user's credential pair.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/conorfennell/studysync/internal/apperr"
)

// InvalidUserID is returned by UserID when nobody is signed in.
const InvalidUserID int64 = -1

// Session is the credential pair. Both fields are set or neither is.
type Session struct {
	Token  string
	UserID int64
}

// Backend persists the pair. storage.DB satisfies it.
type Backend interface {
	SaveSession(ctx context.Context, token string, userID int64) error
	LoadSession(ctx context.Context) (token string, userID int64, ok bool, err error)
	ClearSession(ctx context.Context) error
}

// Store is the process-wide session. Reads never block; writes persist first
// and then publish the new pair with a single pointer swap.
type Store struct {
	backend Backend
	current atomic.Pointer[Session]
}

// Open loads any persisted session from backend.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	s := &Store{backend: backend}
	token, userID, ok, err := backend.LoadSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if ok && token != "" && userID > 0 {
		s.current.Store(&Session{Token: token, UserID: userID})
	}
	return s, nil
}

// Save persists and publishes a new pair.
func (s *Store) Save(ctx context.Context, token string, userID int64) error {
	if token == "" {
		return errors.New("session token must not be empty")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id %d", userID)
	}
	if err := s.backend.SaveSession(ctx, token, userID); err != nil {
		return err
	}
	s.current.Store(&Session{Token: token, UserID: userID})
	return nil
}

// Token returns the bearer-formatted credential.
func (s *Store) Token() (string, bool) {
	cur := s.current.Load()
	if cur == nil {
		return "", false
	}
	return "Bearer " + cur.Token, true
}

// UserID returns the signed-in user's id or InvalidUserID.
func (s *Store) UserID() int64 {
	if cur := s.current.Load(); cur != nil {
		return cur.UserID
	}
	return InvalidUserID
}

// Current returns a copy of the pair, or ErrAuthenticationRequired.
func (s *Store) Current() (Session, error) {
	cur := s.current.Load()
	if cur == nil {
		return Session{}, apperr.ErrAuthenticationRequired
	}
	return *cur, nil
}

// Clear signs out. The in-memory pair is dropped before the backend purges
// the user's cached content so no reader can pick up a half-cleared scope.
func (s *Store) Clear(ctx context.Context) error {
	s.current.Store(nil)
	if err := s.backend.ClearSession(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
