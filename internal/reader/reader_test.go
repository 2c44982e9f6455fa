package reader

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/conorfennell/studysync/internal/apperr"
	"github.com/conorfennell/studysync/internal/domain"
	"github.com/conorfennell/studysync/internal/remote"
	"github.com/conorfennell/studysync/internal/storage"
)

type fakeRemote struct {
	docs   []remote.Document
	cards  []remote.FlashcardDTO
	detail *remote.DocumentDetail
	err    error
	calls  atomic.Int32
}

func (f *fakeRemote) Decks(ctx context.Context) ([]remote.Document, error) {
	f.calls.Add(1)
	return f.docs, f.err
}

func (f *fakeRemote) Flashcards(ctx context.Context, documentID int64) ([]remote.FlashcardDTO, error) {
	f.calls.Add(1)
	return f.cards, f.err
}

func (f *fakeRemote) DocumentDetail(ctx context.Context, documentID int64) (*remote.DocumentDetail, error) {
	f.calls.Add(1)
	return f.detail, f.err
}

type fakeConn bool

func (c fakeConn) IsOnline() bool { return bool(c) }

type fixedUser int64

func (u fixedUser) UserID() int64 { return int64(u) }

func openCache(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "reader.db"))
	if err != nil {
		t.Fatalf("storage.Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func collect[T any](ch <-chan Result[T]) []Result[T] {
	var out []Result[T]
	for r := range ch {
		out = append(out, r)
	}
	return out
}

func remoteQuiz() *remote.DocumentDetail {
	return &remote.DocumentDetail{ID: 10, Status: remote.StatusCompleted, Quiz: &remote.QuizDTO{
		ID: 5, Title: "Cells", DocumentID: 10,
		Questions: []remote.QuestionDTO{{ID: 50, Text: "q", QuizID: 5, Answers: []remote.AnswerDTO{
			{ID: 500, Text: "a", IsCorrect: true, QuestionID: 50},
		}}},
	}}
}

func TestRequiresSession(t *testing.T) {
	r := New(openCache(t), &fakeRemote{}, fakeConn(true), fixedUser(-1), nil)
	results := collect(r.Decks(context.Background()))
	if len(results) != 1 || results[0].Kind() != apperr.KindAuthenticationRequired {
		t.Errorf("expected a single authentication error, got %+v", results)
	}
}

func TestEmptyCacheOffline(t *testing.T) {
	rem := &fakeRemote{}
	r := New(openCache(t), rem, fakeConn(false), fixedUser(1), nil)

	results := collect(r.Decks(context.Background()))
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if !errors.Is(results[0].Err, apperr.ErrOfflineUnavailable) || results[0].Kind() != apperr.KindOfflineUnavailable {
		t.Errorf("expected offline-unavailable, got %v", results[0].Err)
	}
	if rem.calls.Load() != 0 {
		t.Error("expected no remote calls offline")
	}
}

func TestCachedContentOffline(t *testing.T) {
	ctx := context.Background()
	db := openCache(t)
	if err := db.ReplaceDecks(ctx, 1, []domain.Deck{{ID: 1, UserID: 1, Title: "Bio", Status: "COMPLETED"}}); err != nil {
		t.Fatal(err)
	}
	r := New(db, &fakeRemote{}, fakeConn(false), fixedUser(1), nil)

	results := collect(r.Decks(ctx))
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	got := results[0]
	if got.Err != nil || got.Source != SourceCache || !got.Stale || len(got.Value) != 1 {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestCacheThenRefresh(t *testing.T) {
	ctx := context.Background()
	db := openCache(t)
	if err := db.ReplaceDecks(ctx, 1, []domain.Deck{{ID: 1, Title: "Old", Status: "COMPLETED"}}); err != nil {
		t.Fatal(err)
	}
	rem := &fakeRemote{docs: []remote.Document{
		{ID: 1, FilePath: "Old", Status: remote.StatusCompleted, CreatedAt: "2024-01-01"},
		{ID: 2, FilePath: "uploads/New.pdf", Status: remote.StatusProcessing, CreatedAt: "2024-02-01"},
	}}
	r := New(db, rem, fakeConn(true), fixedUser(1), nil)

	results := collect(r.Decks(ctx))
	if len(results) != 2 {
		t.Fatalf("expected cache then remote results, got %d", len(results))
	}
	if results[0].Source != SourceCache || results[0].Stale || len(results[0].Value) != 1 {
		t.Errorf("unexpected first result %+v", results[0])
	}
	if results[1].Source != SourceRemote || len(results[1].Value) != 2 {
		t.Errorf("unexpected second result %+v", results[1])
	}
	if results[1].Value[0].Title != "New.pdf" {
		t.Errorf("expected newest deck first, got %+v", results[1].Value)
	}

	meta, err := db.SyncMetadata(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !meta.HasCachedData || meta.LastFullSync.IsZero() {
		t.Errorf("expected sync metadata recorded, got %+v", meta)
	}
}

func TestRefreshFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	db := openCache(t)
	cards := []domain.Flashcard{{ID: 1, Front: "Q", Back: "A"}}
	if err := db.ReplaceFlashcards(ctx, 1, 4, cards); err != nil {
		t.Fatal(err)
	}
	r := New(db, &fakeRemote{err: apperr.Transient(errors.New("reset"))}, fakeConn(true), fixedUser(1), nil)

	results := collect(r.Flashcards(ctx, 4))
	for _, res := range results {
		if res.Err != nil {
			t.Errorf("expected the network error to be hidden, got %v", res.Err)
		}
	}
	last := results[len(results)-1]
	if last.Source != SourceCache || !last.Stale || len(last.Value) != 1 {
		t.Errorf("expected stale cached flashcards, got %+v", last)
	}
}

func TestEmptyCacheRefreshFailureSurfaces(t *testing.T) {
	r := New(openCache(t), &fakeRemote{err: &apperr.RemoteError{Code: 503}}, fakeConn(true), fixedUser(1), nil)

	results := collect(r.Flashcards(context.Background(), 4))
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if !errors.Is(results[0].Err, apperr.ErrServer) {
		t.Errorf("expected a server error, got %v", results[0].Err)
	}
}

func TestCorruptQuizForcesRefetch(t *testing.T) {
	ctx := context.Background()
	db := openCache(t)
	// A quiz row without questions.
	if err := db.ReplaceQuiz(ctx, 1, 10, &domain.Quiz{ID: 5, DocumentID: 10, Title: "Cells"}); err != nil {
		t.Fatal(err)
	}
	rem := &fakeRemote{detail: remoteQuiz()}
	r := New(db, rem, fakeConn(true), fixedUser(1), nil)

	results := collect(r.Quiz(ctx, 10))
	if len(results) != 1 {
		t.Fatalf("expected only the refreshed result, got %d", len(results))
	}
	got := results[0]
	if got.Err != nil || got.Source != SourceRemote {
		t.Fatalf("unexpected result %+v", got)
	}
	if len(got.Value.Questions) != 1 || len(got.Value.Questions[0].Answers) != 1 {
		t.Errorf("expected a repaired quiz, got %+v", got.Value)
	}
	if rem.calls.Load() != 1 {
		t.Errorf("expected one remote fetch, got %d", rem.calls.Load())
	}
}

func TestCorruptQuizOffline(t *testing.T) {
	ctx := context.Background()
	db := openCache(t)
	if err := db.ReplaceQuiz(ctx, 1, 10, &domain.Quiz{ID: 5, DocumentID: 10}); err != nil {
		t.Fatal(err)
	}
	r := New(db, &fakeRemote{}, fakeConn(false), fixedUser(1), nil)

	res := Latest(r.Quiz(ctx, 10))
	if res.Kind() != apperr.KindOfflineUnavailable {
		t.Errorf("expected offline-unavailable, got %v", res.Err)
	}
	if !errors.Is(res.Err, apperr.ErrCacheCorrupt) {
		t.Errorf("expected the corruption cause to be kept, got %v", res.Err)
	}
}

func TestQuizMissingRemotely(t *testing.T) {
	rem := &fakeRemote{detail: &remote.DocumentDetail{ID: 10, Status: remote.StatusProcessing}}
	r := New(openCache(t), rem, fakeConn(true), fixedUser(1), nil)

	res := Latest(r.Quiz(context.Background(), 10))
	if !errors.Is(res.Err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", res.Err)
	}
}

func TestReadsAreUserScoped(t *testing.T) {
	ctx := context.Background()
	db := openCache(t)
	if err := db.ReplaceDecks(ctx, 2, []domain.Deck{{ID: 1, Title: "Theirs", Status: "COMPLETED"}}); err != nil {
		t.Fatal(err)
	}
	r := New(db, &fakeRemote{}, fakeConn(false), fixedUser(1), nil)

	res := Latest(r.Decks(ctx))
	if res.Kind() != apperr.KindOfflineUnavailable {
		t.Errorf("expected user 1 to see nothing, got %+v", res)
	}
}
