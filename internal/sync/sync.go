// Package sync drains locally recorded study events to the remote service.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/studysync/internal/apperr"
	"github.com/conorfennell/studysync/internal/domain"
	"github.com/conorfennell/studysync/internal/remote"
)

var (
	// ErrOffline is returned by Sync when no network is available.
	ErrOffline = errors.New("device is offline")
	// ErrInProgress is returned by Sync when another pass is running.
	ErrInProgress = errors.New("sync already in progress")
)

// EventStore is the event half of the local cache. storage.DB satisfies it.
type EventStore interface {
	InsertStudyLog(ctx context.Context, log *domain.StudyLog) (int64, error)
	InsertQuizAttempt(ctx context.Context, attempt *domain.QuizAttempt) (int64, error)
	UnsyncedStudyLogs(ctx context.Context, userID int64) ([]domain.StudyLog, error)
	UnsyncedQuizAttempts(ctx context.Context, userID int64) ([]domain.QuizAttempt, error)
	MarkStudyLogSynced(ctx context.Context, userID, localID int64) error
	MarkQuizAttemptSynced(ctx context.Context, userID, localID int64) error
}

// Delivery sends events to the remote service. remote.Client satisfies it.
type Delivery interface {
	LogStudy(ctx context.Context, flashcardID int64, accuracy float64, eventID string) error
	SubmitQuizAttempt(ctx context.Context, quizID int64, sub remote.QuizSubmission, eventID string) error
}

// Status is the connectivity state a pass reads and updates.
// connectivity.Monitor satisfies it.
type Status interface {
	IsOnline() bool
	SetSyncing(syncing bool)
	RecordSync(at time.Time)
	RefreshPending(ctx context.Context)
}

// Identity reports the signed-in user. session.Store satisfies it.
type Identity interface {
	UserID() int64
}

// Report summarises one pass.
type Report struct {
	Delivered int
	Failed    int
}

// Coordinator runs at most one sync pass at a time.
type Coordinator struct {
	store    EventStore
	remote   Delivery
	status   Status
	identity Identity
	workers  int
	logger   *slog.Logger
	now      func() time.Time

	running atomic.Bool
	wg      gosync.WaitGroup
}

// NewCoordinator creates a coordinator delivering with up to workers
// concurrent requests.
func NewCoordinator(store EventStore, delivery Delivery, status Status, identity Identity, workers int, logger *slog.Logger) *Coordinator {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    store,
		remote:   delivery,
		status:   status,
		identity: identity,
		workers:  workers,
		logger:   logger,
		now:      time.Now,
	}
}

// SyncAll runs a pass and reports whether one ran. It returns false when
// offline, when another pass is in flight, or when the pass could not start.
func (c *Coordinator) SyncAll(ctx context.Context) bool {
	_, err := c.Sync(ctx)
	if err != nil && !errors.Is(err, ErrInProgress) && !errors.Is(err, ErrOffline) {
		c.logger.Warn("Sync pass aborted", "error", err)
	}
	return err == nil
}

// Sync delivers every unsynced event of the signed-in user. A failed item is
// logged and left unsynced for the next pass.
func (c *Coordinator) Sync(ctx context.Context) (Report, error) {
	if !c.status.IsOnline() {
		return Report{}, ErrOffline
	}
	if !c.running.CompareAndSwap(false, true) {
		return Report{}, ErrInProgress
	}
	c.status.SetSyncing(true)
	defer func() {
		c.status.SetSyncing(false)
		c.status.RecordSync(c.now())
		c.status.RefreshPending(context.WithoutCancel(ctx))
		c.running.Store(false)
	}()

	userID := c.identity.UserID()
	if userID <= 0 {
		return Report{}, apperr.ErrAuthenticationRequired
	}

	logs, err := c.store.UnsyncedStudyLogs(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load unsynced study logs: %w", err)
	}
	attempts, err := c.store.UnsyncedQuizAttempts(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load unsynced quiz attempts: %w", err)
	}
	c.logger.Info("Starting sync pass", "user_id", userID, "study_logs", len(logs), "quiz_attempts", len(attempts))

	var delivered, failed atomic.Int32
	record := func(err error) {
		if err != nil {
			failed.Add(1)
			return
		}
		delivered.Add(1)
	}

	var g errgroup.Group
	g.SetLimit(c.workers)
	for _, l := range logs {
		g.Go(func() error {
			record(c.deliverStudyLog(ctx, userID, l))
			return nil
		})
	}
	for _, a := range attempts {
		g.Go(func() error {
			record(c.deliverQuizAttempt(ctx, userID, a))
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Delivered: int(delivered.Load()), Failed: int(failed.Load())}
	c.logger.Info("Sync pass complete", "user_id", userID, "delivered", report.Delivered, "failed", report.Failed)
	return report, nil
}

func (c *Coordinator) deliverStudyLog(ctx context.Context, userID int64, l domain.StudyLog) error {
	if err := c.remote.LogStudy(ctx, l.FlashcardID, l.Accuracy, l.EventID); err != nil {
		return c.itemFailed("study_log", l.LocalID, err)
	}
	if err := c.store.MarkStudyLogSynced(ctx, userID, l.LocalID); err != nil {
		return c.itemFailed("study_log", l.LocalID, err)
	}
	return nil
}

func (c *Coordinator) deliverQuizAttempt(ctx context.Context, userID int64, a domain.QuizAttempt) error {
	sub := remote.QuizSubmission{
		Score:          a.Score,
		CorrectAnswers: a.CorrectAnswers,
		TotalQuestions: a.TotalQuestions,
	}
	if err := c.remote.SubmitQuizAttempt(ctx, a.QuizID, sub, a.EventID); err != nil {
		return c.itemFailed("quiz_attempt", a.LocalID, err)
	}
	if err := c.store.MarkQuizAttemptSynced(ctx, userID, a.LocalID); err != nil {
		return c.itemFailed("quiz_attempt", a.LocalID, err)
	}
	return nil
}

func (c *Coordinator) itemFailed(kind string, localID int64, cause error) error {
	err := fmt.Errorf("%w: %s %d: %w", apperr.ErrSyncItemFailed, kind, localID, cause)
	c.logger.Warn("Failed to sync item", "kind", kind, "local_id", localID, "error", err)
	return err
}

// Trigger starts a pass in the background. Wait blocks until every
// triggered pass has returned.
func (c *Coordinator) Trigger(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.SyncAll(ctx)
	}()
}

// Wait blocks until background passes started by Trigger finish.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Run starts a pass every interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if c.status.IsOnline() {
				c.SyncAll(ctx)
			}
		}
	}
}
