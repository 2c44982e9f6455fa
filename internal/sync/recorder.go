package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/conorfennell/studysync/internal/apperr"
	"github.com/conorfennell/studysync/internal/domain"
)

// Recorder writes study events durably before anything is sent.
type Recorder struct {
	store       EventStore
	identity    Identity
	status      Status
	coordinator *Coordinator
	validate    *validator.Validate
	logger      *slog.Logger
	now         func() time.Time
}

// NewRecorder returns a Recorder. coordinator may be nil, in which case
// events only wait for the next pass.
func NewRecorder(store EventStore, identity Identity, status Status, coordinator *Coordinator, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:       store,
		identity:    identity,
		status:      status,
		coordinator: coordinator,
		validate:    validator.New(),
		logger:      logger,
		now:         time.Now,
	}
}

// RecordStudyLog stores one flashcard review and, when online, starts a
// background pass to deliver it.
func (r *Recorder) RecordStudyLog(ctx context.Context, flashcardID int64, accuracy float64) (*domain.StudyLog, error) {
	userID := r.identity.UserID()
	if userID <= 0 {
		return nil, apperr.ErrAuthenticationRequired
	}
	log := &domain.StudyLog{
		EventID:     uuid.NewString(),
		FlashcardID: flashcardID,
		UserID:      userID,
		Accuracy:    accuracy,
		RecordedAt:  r.now(),
	}
	if err := r.validate.Struct(log); err != nil {
		return nil, fmt.Errorf("invalid study log: %w", err)
	}
	if _, err := r.store.InsertStudyLog(ctx, log); err != nil {
		return nil, err
	}
	r.logger.Debug("Recorded study log", "local_id", log.LocalID, "flashcard_id", flashcardID)
	r.afterRecord(ctx)
	return log, nil
}

// RecordQuizAttempt stores one finished quiz and, when online, starts a
// background pass to deliver it.
func (r *Recorder) RecordQuizAttempt(ctx context.Context, quizID int64, score float64, correct, total int) (*domain.QuizAttempt, error) {
	userID := r.identity.UserID()
	if userID <= 0 {
		return nil, apperr.ErrAuthenticationRequired
	}
	attempt := &domain.QuizAttempt{
		EventID:        uuid.NewString(),
		QuizID:         quizID,
		UserID:         userID,
		Score:          score,
		CorrectAnswers: correct,
		TotalQuestions: total,
		AttemptedAt:    r.now(),
	}
	if err := r.validate.Struct(attempt); err != nil {
		return nil, fmt.Errorf("invalid quiz attempt: %w", err)
	}
	if _, err := r.store.InsertQuizAttempt(ctx, attempt); err != nil {
		return nil, err
	}
	r.logger.Debug("Recorded quiz attempt", "local_id", attempt.LocalID, "quiz_id", quizID)
	r.afterRecord(ctx)
	return attempt, nil
}

func (r *Recorder) afterRecord(ctx context.Context) {
	r.status.RefreshPending(ctx)
	if r.coordinator != nil && r.status.IsOnline() {
		r.coordinator.Trigger(context.WithoutCancel(ctx))
	}
}
