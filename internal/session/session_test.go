package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/conorfennell/studysync/internal/apperr"
	"github.com/conorfennell/studysync/internal/storage"
)

func openStore(t *testing.T) (*Store, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("storage.Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := Open(context.Background(), db)
	if err != nil {
		t.Fatalf("Open() returned an unexpected error: %v", err)
	}
	return s, db
}

func TestEmptyStore(t *testing.T) {
	s, _ := openStore(t)

	if _, ok := s.Token(); ok {
		t.Error("expected no token")
	}
	if got := s.UserID(); got != InvalidUserID {
		t.Errorf("expected InvalidUserID, got %d", got)
	}
	if _, err := s.Current(); !errors.Is(err, apperr.ErrAuthenticationRequired) {
		t.Errorf("expected ErrAuthenticationRequired, got %v", err)
	}
}

func TestSaveAndReload(t *testing.T) {
	ctx := context.Background()
	s, db := openStore(t)

	if err := s.Save(ctx, "abc", 42); err != nil {
		t.Fatalf("Save() returned an unexpected error: %v", err)
	}
	token, ok := s.Token()
	if !ok || token != "Bearer abc" {
		t.Errorf("expected 'Bearer abc', got %q (ok=%v)", token, ok)
	}
	if s.UserID() != 42 {
		t.Errorf("expected user 42, got %d", s.UserID())
	}

	reopened, err := Open(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.UserID() != 42 {
		t.Errorf("expected persisted user 42, got %d", reopened.UserID())
	}
}

func TestSaveRejectsHalfPairs(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		userID int64
	}{
		{"empty token", "", 1},
		{"zero user", "abc", 0},
		{"invalid user", "abc", InvalidUserID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := openStore(t)
			if err := s.Save(context.Background(), tt.token, tt.userID); err == nil {
				t.Fatal("expected an error")
			}
			if _, ok := s.Token(); ok {
				t.Error("expected no token after rejected save")
			}
			if s.UserID() != InvalidUserID {
				t.Error("expected no user after rejected save")
			}
		})
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s, db := openStore(t)

	if err := s.Save(ctx, "abc", 42); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() returned an unexpected error: %v", err)
	}
	if _, ok := s.Token(); ok {
		t.Error("expected token cleared")
	}
	if s.UserID() != InvalidUserID {
		t.Error("expected user id cleared")
	}

	reopened, err := Open(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reopened.Current(); !errors.Is(err, apperr.ErrAuthenticationRequired) {
		t.Errorf("expected cleared session to stay cleared, got %v", err)
	}
}

func TestConcurrentReadersSeeWholePairs(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				cur, err := s.Current()
				if err != nil {
					continue
				}
				if (cur.Token == "a" && cur.UserID != 1) || (cur.Token == "b" && cur.UserID != 2) {
					t.Errorf("observed torn pair %+v", cur)
					return
				}
			}
		}()
	}
	for i := range 20 {
		if i%2 == 0 {
			_ = s.Save(ctx, "a", 1)
		} else {
			_ = s.Save(ctx, "b", 2)
		}
	}
	close(stop)
	wg.Wait()
}
