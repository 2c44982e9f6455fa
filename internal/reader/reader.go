// Package reader serves study content from the local cache first and
// refreshes it from the remote service when the device is online.
package reader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/studysync/internal/apperr"
	"github.com/conorfennell/studysync/internal/domain"
	"github.com/conorfennell/studysync/internal/remote"
)

// Source says where a published value came from.
type Source int

const (
	SourceCache Source = iota
	SourceRemote
)

func (s Source) String() string {
	if s == SourceRemote {
		return "remote"
	}
	return "cache"
}

// Result is one publication of a read. A cached value is Stale when no
// refresh will follow it, because the device is offline or the refresh failed.
type Result[T any] struct {
	Value  T
	Source Source
	Stale  bool
	Err    error
}

func (r Result[T]) Kind() apperr.Kind {
	return apperr.KindOf(r.Err)
}

// Latest drains ch and returns the last result published on it.
func Latest[T any](ch <-chan Result[T]) Result[T] {
	var last Result[T]
	for r := range ch {
		last = r
	}
	return last
}

// Cache is the content half of the local cache. storage.DB satisfies it.
type Cache interface {
	GetDecks(ctx context.Context, userID int64) ([]domain.Deck, error)
	ReplaceDecks(ctx context.Context, userID int64, decks []domain.Deck) error
	GetFlashcards(ctx context.Context, userID, deckID int64) ([]domain.Flashcard, error)
	ReplaceFlashcards(ctx context.Context, userID, deckID int64, cards []domain.Flashcard) error
	FindQuizByDocument(ctx context.Context, userID, documentID int64) (*domain.Quiz, error)
	ReplaceQuiz(ctx context.Context, userID, documentID int64, quiz *domain.Quiz) error
	RecordFullSync(ctx context.Context, at time.Time) error
}

// Remote fetches content. remote.Client satisfies it.
type Remote interface {
	Decks(ctx context.Context) ([]remote.Document, error)
	Flashcards(ctx context.Context, documentID int64) ([]remote.FlashcardDTO, error)
	DocumentDetail(ctx context.Context, documentID int64) (*remote.DocumentDetail, error)
}

// Connectivity reports whether the service is reachable.
type Connectivity interface {
	IsOnline() bool
}

// Identity yields the logged-in user, or a non-positive id when nobody is.
type Identity interface {
	UserID() int64
}

// Reader serves content from the cache and refreshes it from the service
// when online.
type Reader struct {
	cache    Cache
	remote   Remote
	conn     Connectivity
	identity Identity
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// New returns a Reader. A nil logger falls back to slog.Default.
func New(cache Cache, rem Remote, conn Connectivity, identity Identity, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		cache:    cache,
		remote:   rem,
		conn:     conn,
		identity: identity,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// scope describes one cacheable unit of content.
type scope[T any] struct {
	name    string
	load    func(ctx context.Context, userID int64) (value T, present bool, err error)
	check   func(value T) error
	fetch   func(ctx context.Context, userID int64) (T, error)
	replace func(ctx context.Context, userID int64, value T) error
}

// read publishes at most two results: the cached value when it is usable,
// then the refreshed value, a stale marker or an error. The channel is
// buffered so an abandoned read never blocks.
func read[T any](ctx context.Context, r *Reader, s scope[T]) <-chan Result[T] {
	out := make(chan Result[T], 2)
	go func() {
		defer close(out)

		userID := r.identity.UserID()
		if userID <= 0 {
			out <- Result[T]{Err: apperr.ErrAuthenticationRequired}
			return
		}

		cached, usable, cacheErr := loadChecked(ctx, r, userID, s)
		online := r.conn.IsOnline()
		if usable {
			out <- Result[T]{Value: cached, Source: SourceCache, Stale: !online}
		}
		if !online {
			if !usable {
				err := apperr.ErrOfflineUnavailable
				if cacheErr != nil {
					err = fmt.Errorf("%w: %w", apperr.ErrOfflineUnavailable, cacheErr)
				}
				out <- Result[T]{Err: err}
			}
			return
		}

		fresh, err := refresh(ctx, r, userID, s)
		if err != nil {
			if usable {
				r.logger.Debug("Refresh failed, keeping cached content", "scope", s.name, "error", err)
				out <- Result[T]{Value: cached, Source: SourceCache, Stale: true}
				return
			}
			out <- Result[T]{Err: err}
			return
		}
		out <- Result[T]{Value: fresh, Source: SourceRemote}
	}()
	return out
}

// loadChecked reads the scope and runs its integrity check. A corrupt scope
// is reported as unusable along with an ErrCacheCorrupt error.
func loadChecked[T any](ctx context.Context, r *Reader, userID int64, s scope[T]) (T, bool, error) {
	var zero T
	value, present, err := s.load(ctx, userID)
	if err != nil {
		r.logger.Warn("Failed to read cache", "scope", s.name, "error", err)
		return zero, false, err
	}
	if !present {
		return zero, false, nil
	}
	if err := s.check(value); err != nil {
		err = fmt.Errorf("%w: %s: %v", apperr.ErrCacheCorrupt, s.name, err)
		r.logger.Warn("Cached content failed integrity check", "scope", s.name, "user_id", userID, "error", err)
		return zero, false, err
	}
	return value, true, nil
}

func refresh[T any](ctx context.Context, r *Reader, userID int64, s scope[T]) (T, error) {
	var zero T
	fresh, err := s.fetch(ctx, userID)
	if err != nil {
		return zero, err
	}
	if err := s.replace(ctx, userID, fresh); err != nil {
		return zero, err
	}
	value, present, err := s.load(ctx, userID)
	if err != nil {
		return zero, err
	}
	if !present {
		return value, nil
	}
	if err := s.check(value); err != nil {
		return zero, fmt.Errorf("%w: %s: %v", apperr.ErrCacheCorrupt, s.name, err)
	}
	return value, nil
}

// Decks reads the signed-in user's deck list. A successful refresh also
// records the full-sync time.
func (r *Reader) Decks(ctx context.Context) <-chan Result[[]domain.Deck] {
	return read(ctx, r, scope[[]domain.Deck]{
		name: "decks",
		load: func(ctx context.Context, userID int64) ([]domain.Deck, bool, error) {
			decks, err := r.cache.GetDecks(ctx, userID)
			return decks, len(decks) > 0, err
		},
		check: func(decks []domain.Deck) error {
			for i := range decks {
				if err := r.validate.Struct(&decks[i]); err != nil {
					return fmt.Errorf("deck %d: %w", decks[i].ID, err)
				}
			}
			return nil
		},
		fetch: func(ctx context.Context, userID int64) ([]domain.Deck, error) {
			docs, err := r.remote.Decks(ctx)
			if err != nil {
				return nil, err
			}
			decks := make([]domain.Deck, 0, len(docs))
			for _, d := range docs {
				decks = append(decks, d.ToDeck(userID))
			}
			return decks, nil
		},
		replace: func(ctx context.Context, userID int64, decks []domain.Deck) error {
			if err := r.cache.ReplaceDecks(ctx, userID, decks); err != nil {
				return err
			}
			return r.cache.RecordFullSync(ctx, r.now())
		},
	})
}

// Flashcards reads the flashcards of one deck.
func (r *Reader) Flashcards(ctx context.Context, deckID int64) <-chan Result[[]domain.Flashcard] {
	return read(ctx, r, scope[[]domain.Flashcard]{
		name: fmt.Sprintf("flashcards:%d", deckID),
		load: func(ctx context.Context, userID int64) ([]domain.Flashcard, bool, error) {
			cards, err := r.cache.GetFlashcards(ctx, userID, deckID)
			return cards, len(cards) > 0, err
		},
		check: func(cards []domain.Flashcard) error {
			for i := range cards {
				if err := r.validate.Struct(&cards[i]); err != nil {
					return fmt.Errorf("flashcard %d: %w", cards[i].ID, err)
				}
			}
			return nil
		},
		fetch: func(ctx context.Context, userID int64) ([]domain.Flashcard, error) {
			dtos, err := r.remote.Flashcards(ctx, deckID)
			if err != nil {
				return nil, err
			}
			cards := make([]domain.Flashcard, 0, len(dtos))
			for _, dto := range dtos {
				cards = append(cards, dto.ToFlashcard(userID, deckID))
			}
			return cards, nil
		},
		replace: func(ctx context.Context, userID int64, cards []domain.Flashcard) error {
			return r.cache.ReplaceFlashcards(ctx, userID, deckID, cards)
		},
	})
}

// Quiz reads the quiz of one document. A cached quiz without questions, or
// with a question that has no answers, is treated as absent.
func (r *Reader) Quiz(ctx context.Context, documentID int64) <-chan Result[*domain.Quiz] {
	return read(ctx, r, scope[*domain.Quiz]{
		name: fmt.Sprintf("quiz:%d", documentID),
		load: func(ctx context.Context, userID int64) (*domain.Quiz, bool, error) {
			quiz, err := r.cache.FindQuizByDocument(ctx, userID, documentID)
			return quiz, quiz != nil, err
		},
		check: func(quiz *domain.Quiz) error {
			return r.validate.Struct(quiz)
		},
		fetch: func(ctx context.Context, userID int64) (*domain.Quiz, error) {
			detail, err := r.remote.DocumentDetail(ctx, documentID)
			if err != nil {
				return nil, err
			}
			if detail.Quiz == nil || len(detail.Quiz.Questions) == 0 {
				return nil, fmt.Errorf("%w: document %d has no quiz", apperr.ErrNotFound, documentID)
			}
			return detail.Quiz.ToQuiz(userID, documentID), nil
		},
		replace: func(ctx context.Context, userID int64, quiz *domain.Quiz) error {
			return r.cache.ReplaceQuiz(ctx, userID, documentID, quiz)
		},
	})
}
