package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/conorfennell/studysync/internal/apperr"
	"github.com/conorfennell/studysync/internal/remote"
)

// QuotaSource reads the daily generation quota. remote.Client satisfies it.
type QuotaSource interface {
	GenerationLimit(ctx context.Context) (*remote.GenerationLimit, error)
}

// Guard rejects generation-consuming calls locally once the last known quota
// is used up. The service still enforces its own limit.
type Guard struct {
	source QuotaSource
	logger *slog.Logger

	mu    sync.Mutex
	quota remote.GenerationLimit
	known bool
}

// NewGuard returns a Guard with no known quota.
func NewGuard(source QuotaSource, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{source: source, logger: logger}
}

// Refresh fetches the current quota.
func (g *Guard) Refresh(ctx context.Context) error {
	q, err := g.source.GenerationLimit(ctx)
	if err != nil {
		return err
	}
	g.Update(*q)
	return nil
}

// Update replaces the last known quota.
func (g *Guard) Update(q remote.GenerationLimit) {
	g.mu.Lock()
	g.quota = q
	g.known = true
	g.mu.Unlock()
}

// Reset forgets the last known quota. The next generation call is allowed
// through until a refresh or a remote rejection teaches the guard again.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.quota = remote.GenerationLimit{}
	g.known = false
	g.mu.Unlock()
}

// Quota returns the last known quota and whether one has been seen.
func (g *Guard) Quota() (remote.GenerationLimit, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.quota, g.known
}

// Check returns a *apperr.LimitError when the known quota is exhausted.
func (g *Guard) Check() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.known && g.quota.Used >= g.quota.Limit {
		return &apperr.LimitError{
			Used:            g.quota.Used,
			Limit:           g.quota.Limit,
			HoursUntilReset: g.quota.HoursUntilReset,
		}
	}
	return nil
}

// Do runs op unless the quota is exhausted, then refreshes the quota after a
// success or a remote quota rejection.
func (g *Guard) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := g.Check(); err != nil {
		return err
	}
	err := op(ctx)
	switch {
	case err == nil:
		if rerr := g.Refresh(ctx); rerr != nil {
			g.logger.Warn("Failed to refresh generation quota", "error", rerr)
		}
	case errors.Is(err, apperr.ErrQuotaExceeded):
		if q, ok := remote.QuotaFromError(err); ok {
			g.Update(q)
		} else if rerr := g.Refresh(ctx); rerr != nil {
			g.logger.Warn("Failed to refresh generation quota", "error", rerr)
		}
	}
	return err
}

// GenerationAPI is the set of quota-consuming calls. remote.Client satisfies it.
type GenerationAPI interface {
	UploadDocument(ctx context.Context, filename string, content io.Reader, opts remote.GenerationOptions) (*remote.Document, error)
	CreateDeckFromText(ctx context.Context, text string, opts remote.GenerationOptions) (*remote.Document, error)
	GenerateFlashcards(ctx context.Context, documentID int64) error
	GenerateQuiz(ctx context.Context, documentID int64) error
}

// Generator runs every quota-consuming call through a Guard.
type Generator struct {
	api   GenerationAPI
	guard *Guard
}

// NewGenerator returns a Generator that checks guard before every call.
func NewGenerator(api GenerationAPI, guard *Guard) *Generator {
	return &Generator{api: api, guard: guard}
}

// Upload sends a document file for processing.
func (g *Generator) Upload(ctx context.Context, filename string, content io.Reader, opts remote.GenerationOptions) (*remote.Document, error) {
	var doc *remote.Document
	err := g.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		doc, err = g.api.UploadDocument(ctx, filename, content, opts)
		return err
	})
	return doc, err
}

// FromText creates a deck from pasted text.
func (g *Generator) FromText(ctx context.Context, text string, opts remote.GenerationOptions) (*remote.Document, error) {
	var doc *remote.Document
	err := g.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		doc, err = g.api.CreateDeckFromText(ctx, text, opts)
		return err
	})
	return doc, err
}

// Flashcards asks for more flashcards on an existing document.
func (g *Generator) Flashcards(ctx context.Context, documentID int64) error {
	return g.guard.Do(ctx, func(ctx context.Context) error {
		return g.api.GenerateFlashcards(ctx, documentID)
	})
}

// Quiz asks for a quiz on an existing document.
func (g *Generator) Quiz(ctx context.Context, documentID int64) error {
	return g.guard.Do(ctx, func(ctx context.Context) error {
		return g.api.GenerateQuiz(ctx, documentID)
	})
}
