package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/studysync/internal/domain"
)

// InsertStudyLog appends an unsynced study log and returns its local id.
func (db *DB) InsertStudyLog(ctx context.Context, log *domain.StudyLog) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO study_logs (event_id, flashcard_id, user_id, accuracy, recorded_at, synced)
		VALUES (?, ?, ?, ?, ?, 0)
	`, log.EventID, log.FlashcardID, log.UserID, log.Accuracy, log.RecordedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to insert study log for flashcard %d: %w", log.FlashcardID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for study log: %w", err)
	}
	log.LocalID = id
	return id, nil
}

// UnsyncedStudyLogs retrieves the user's study logs not yet acknowledged.
func (db *DB) UnsyncedStudyLogs(ctx context.Context, userID int64) ([]domain.StudyLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT local_id, event_id, flashcard_id, user_id, accuracy, recorded_at
		FROM study_logs WHERE user_id = ? AND synced = 0
		ORDER BY local_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unsynced study logs for user %d: %w", userID, err)
	}
	defer rows.Close()

	var logs []domain.StudyLog
	for rows.Next() {
		var l domain.StudyLog
		var recordedAt int64
		if err := rows.Scan(&l.LocalID, &l.EventID, &l.FlashcardID, &l.UserID, &l.Accuracy, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan study log row: %w", err)
		}
		l.RecordedAt = time.UnixMilli(recordedAt)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// MarkStudyLogSynced flips the synced flag of one of the user's study logs.
func (db *DB) MarkStudyLogSynced(ctx context.Context, userID, localID int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE study_logs SET synced = 1 WHERE local_id = ? AND user_id = ?
	`, localID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark study log %d synced: %w", localID, err)
	}
	return nil
}

// InsertQuizAttempt appends an unsynced quiz attempt and returns its local id.
func (db *DB) InsertQuizAttempt(ctx context.Context, attempt *domain.QuizAttempt) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO quiz_attempts (event_id, quiz_id, user_id, score, correct_answers, total_questions, attempted_at, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, attempt.EventID, attempt.QuizID, attempt.UserID, attempt.Score,
		attempt.CorrectAnswers, attempt.TotalQuestions, attempt.AttemptedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to insert quiz attempt for quiz %d: %w", attempt.QuizID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for quiz attempt: %w", err)
	}
	attempt.LocalID = id
	return id, nil
}

// UnsyncedQuizAttempts retrieves the user's quiz attempts not yet acknowledged.
func (db *DB) UnsyncedQuizAttempts(ctx context.Context, userID int64) ([]domain.QuizAttempt, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT local_id, event_id, quiz_id, user_id, score, correct_answers, total_questions, attempted_at
		FROM quiz_attempts WHERE user_id = ? AND synced = 0
		ORDER BY local_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unsynced quiz attempts for user %d: %w", userID, err)
	}
	defer rows.Close()

	var attempts []domain.QuizAttempt
	for rows.Next() {
		var a domain.QuizAttempt
		var attemptedAt int64
		if err := rows.Scan(&a.LocalID, &a.EventID, &a.QuizID, &a.UserID, &a.Score,
			&a.CorrectAnswers, &a.TotalQuestions, &attemptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quiz attempt row: %w", err)
		}
		a.AttemptedAt = time.UnixMilli(attemptedAt)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// MarkQuizAttemptSynced flips the synced flag of one of the user's attempts.
func (db *DB) MarkQuizAttemptSynced(ctx context.Context, userID, localID int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE quiz_attempts SET synced = 1 WHERE local_id = ? AND user_id = ?
	`, localID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark quiz attempt %d synced: %w", localID, err)
	}
	return nil
}

// PendingCount counts the user's unsynced rows across both event tables.
func (db *DB) PendingCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM study_logs WHERE user_id = ? AND synced = 0) +
			(SELECT COUNT(*) FROM quiz_attempts WHERE user_id = ? AND synced = 0)
	`, userID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending events for user %d: %w", userID, err)
	}
	return count, nil
}
