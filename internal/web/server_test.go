package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/studysync/internal/apperr"
	"github.com/conorfennell/studysync/internal/connectivity"
	"github.com/conorfennell/studysync/internal/domain"
	"github.com/conorfennell/studysync/internal/reader"
	ssync "github.com/conorfennell/studysync/internal/sync"
)

type fakeState connectivity.State

func (f fakeState) State() connectivity.State { return connectivity.State(f) }

type fakeSyncer struct {
	report ssync.Report
	err    error
}

func (f fakeSyncer) Sync(ctx context.Context) (ssync.Report, error) { return f.report, f.err }

type fakeRecorder struct {
	accuracy float64
	err      error
}

func (f *fakeRecorder) RecordStudyLog(ctx context.Context, flashcardID int64, accuracy float64) (*domain.StudyLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.accuracy = accuracy
	return &domain.StudyLog{LocalID: 1, EventID: "ev-1", FlashcardID: flashcardID}, nil
}

func (f *fakeRecorder) RecordQuizAttempt(ctx context.Context, quizID int64, score float64, correct, total int) (*domain.QuizAttempt, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.QuizAttempt{LocalID: 2, EventID: "ev-2", QuizID: quizID}, nil
}

type fakeContent struct {
	decks reader.Result[[]domain.Deck]
}

func (f fakeContent) Decks(ctx context.Context) <-chan reader.Result[[]domain.Deck] {
	ch := make(chan reader.Result[[]domain.Deck], 1)
	ch <- f.decks
	close(ch)
	return ch
}

func (f fakeContent) Flashcards(ctx context.Context, deckID int64) <-chan reader.Result[[]domain.Flashcard] {
	ch := make(chan reader.Result[[]domain.Flashcard], 1)
	ch <- reader.Result[[]domain.Flashcard]{Err: apperr.ErrOfflineUnavailable}
	close(ch)
	return ch
}

func newServer(syncer fakeSyncer, rec *fakeRecorder, content fakeContent) *Server {
	state := fakeState{Online: true, Pending: 3, LastSync: time.Unix(1700000000, 0)}
	return NewServer(state, syncer, rec, content, nil)
}

func TestStatus(t *testing.T) {
	s := newServer(fakeSyncer{}, &fakeRecorder{}, fakeContent{})
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body statusResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Online || body.Pending != 3 || body.LastSync == nil {
		t.Errorf("unexpected status %+v", body)
	}
}

func TestPostSync(t *testing.T) {
	tests := []struct {
		name string
		sync fakeSyncer
		want int
	}{
		{"delivered", fakeSyncer{report: ssync.Report{Delivered: 2}}, http.StatusOK},
		{"offline", fakeSyncer{err: ssync.ErrOffline}, http.StatusServiceUnavailable},
		{"in progress", fakeSyncer{err: ssync.ErrInProgress}, http.StatusConflict},
		{"signed out", fakeSyncer{err: apperr.ErrAuthenticationRequired}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(tt.sync, &fakeRecorder{}, fakeContent{})
			rr := httptest.NewRecorder()
			s.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sync", nil))
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestGetDecks(t *testing.T) {
	content := fakeContent{decks: reader.Result[[]domain.Deck]{
		Value:  []domain.Deck{{ID: 1, Title: "bio.pdf"}},
		Source: reader.SourceCache,
		Stale:  true,
	}}
	s := newServer(fakeSyncer{}, &fakeRecorder{}, content)

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/decks", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := rr.Body.String(); !strings.Contains(body, `"source":"cache"`) || !strings.Contains(body, `"stale":true`) {
		t.Errorf("unexpected body %s", body)
	}

	rr = httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/decks/1/flashcards", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for offline content, got %d", rr.Code)
	}
}

func TestRecordEvents(t *testing.T) {
	invalid := fmt.Errorf("invalid study log: %w", validator.ValidationErrors{})
	tests := []struct {
		name string
		path string
		form url.Values
		err  error
		want int
	}{
		{"study", "/flashcards/5/study", url.Values{"accuracy": {"0.75"}}, nil, http.StatusCreated},
		{"bad accuracy", "/flashcards/5/study", url.Values{"accuracy": {"x"}}, nil, http.StatusBadRequest},
		{"bad id", "/flashcards/abc/study", url.Values{"accuracy": {"1"}}, nil, http.StatusBadRequest},
		{"rejected", "/flashcards/5/study", url.Values{"accuracy": {"2"}}, invalid, http.StatusBadRequest},
		{"attempt", "/quizzes/3/attempts", url.Values{"score": {"80"}, "correct": {"4"}, "total": {"5"}}, nil, http.StatusCreated},
		{"attempt counts", "/quizzes/3/attempts", url.Values{"score": {"80"}, "correct": {"four"}}, nil, http.StatusBadRequest},
		{"signed out", "/quizzes/3/attempts", url.Values{"score": {"80"}, "correct": {"4"}, "total": {"5"}}, apperr.ErrAuthenticationRequired, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{err: tt.err}
			s := newServer(fakeSyncer{}, rec, fakeContent{})
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rr := httptest.NewRecorder()
			s.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d (%s)", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}
