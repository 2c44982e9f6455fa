package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conorfennell/studysync/internal/domain"
)

// ReplaceDecks swaps the user's whole deck list for decks in one transaction.
func (db *DB) ReplaceDecks(ctx context.Context, userID int64, decks []domain.Deck) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM decks WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to clear decks for user %d: %w", userID, err)
		}
		for _, d := range decks {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO decks (id, user_id, title, status, created_at, total_count, studied_count)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, d.ID, userID, d.Title, d.Status, d.CreatedAt, d.TotalCount, d.StudiedCount)
			if err != nil {
				return fmt.Errorf("failed to insert deck %d: %w", d.ID, err)
			}
		}
		return nil
	})
}

// GetDecks retrieves the user's cached decks, newest first.
func (db *DB) GetDecks(ctx context.Context, userID int64) ([]domain.Deck, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, title, status, created_at, total_count, studied_count
		FROM decks WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get decks for user %d: %w", userID, err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		var d domain.Deck
		if err := rows.Scan(&d.ID, &d.UserID, &d.Title, &d.Status, &d.CreatedAt, &d.TotalCount, &d.StudiedCount); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

// ReplaceFlashcards swaps the cached flashcards of one deck in one transaction.
func (db *DB) ReplaceFlashcards(ctx context.Context, userID, deckID int64, cards []domain.Flashcard) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM flashcards WHERE user_id = ? AND deck_id = ?`, userID, deckID); err != nil {
			return fmt.Errorf("failed to clear flashcards for deck %d: %w", deckID, err)
		}
		for _, c := range cards {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO flashcards (id, deck_id, user_id, front, back, kind)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id, user_id) DO UPDATE SET
					deck_id = excluded.deck_id,
					front = excluded.front,
					back = excluded.back,
					kind = excluded.kind
			`, c.ID, deckID, userID, c.Front, c.Back, c.Kind)
			if err != nil {
				return fmt.Errorf("failed to insert flashcard %d: %w", c.ID, err)
			}
		}
		return nil
	})
}

// GetFlashcards retrieves the cached flashcards of one deck.
func (db *DB) GetFlashcards(ctx context.Context, userID, deckID int64) ([]domain.Flashcard, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, deck_id, user_id, front, back, kind
		FROM flashcards WHERE user_id = ? AND deck_id = ?
		ORDER BY id
	`, userID, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to get flashcards for deck %d: %w", deckID, err)
	}
	defer rows.Close()

	var cards []domain.Flashcard
	for rows.Next() {
		var c domain.Flashcard
		if err := rows.Scan(&c.ID, &c.DeckID, &c.UserID, &c.Front, &c.Back, &c.Kind); err != nil {
			return nil, fmt.Errorf("failed to scan flashcard row: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// ReplaceQuiz swaps the cached quiz of a document, with its questions and
// answers, in one transaction.
func (db *DB) ReplaceQuiz(ctx context.Context, userID, documentID int64, quiz *domain.Quiz) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteQuizTree(ctx, tx, userID, documentID); err != nil {
			return err
		}
		if quiz == nil {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO quizzes (id, document_id, user_id, title, synced)
			VALUES (?, ?, ?, ?, 1)
		`, quiz.ID, documentID, userID, quiz.Title)
		if err != nil {
			return fmt.Errorf("failed to insert quiz %d: %w", quiz.ID, err)
		}
		for qi, q := range quiz.Questions {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO questions (id, quiz_id, user_id, text, position)
				VALUES (?, ?, ?, ?, ?)
			`, q.ID, quiz.ID, userID, q.Text, qi)
			if err != nil {
				return fmt.Errorf("failed to insert question %d: %w", q.ID, err)
			}
			for ai, a := range q.Answers {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO answers (id, question_id, user_id, text, is_correct, explanation, position)
					VALUES (?, ?, ?, ?, ?, ?, ?)
				`, a.ID, q.ID, userID, a.Text, a.IsCorrect, a.Explanation, ai)
				if err != nil {
					return fmt.Errorf("failed to insert answer %d: %w", a.ID, err)
				}
			}
		}
		return nil
	})
}

func deleteQuizTree(ctx context.Context, tx *sql.Tx, userID, documentID int64) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM answers WHERE user_id = ? AND question_id IN (
			SELECT q.id FROM questions q
			JOIN quizzes z ON z.id = q.quiz_id AND z.user_id = q.user_id
			WHERE z.user_id = ? AND z.document_id = ?
		)
	`, userID, userID, documentID)
	if err != nil {
		return fmt.Errorf("failed to clear answers for document %d: %w", documentID, err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM questions WHERE user_id = ? AND quiz_id IN (
			SELECT id FROM quizzes WHERE user_id = ? AND document_id = ?
		)
	`, userID, userID, documentID)
	if err != nil {
		return fmt.Errorf("failed to clear questions for document %d: %w", documentID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM quizzes WHERE user_id = ? AND document_id = ?`, userID, documentID); err != nil {
		return fmt.Errorf("failed to clear quiz for document %d: %w", documentID, err)
	}
	return nil
}

// FindQuizByDocument retrieves the cached quiz of a document with its
// questions and answers in order. It returns (nil, nil) when no quiz row
// exists; a quiz row without questions is returned as-is so the caller can
// judge its integrity.
func (db *DB) FindQuizByDocument(ctx context.Context, userID, documentID int64) (*domain.Quiz, error) {
	var quiz domain.Quiz
	var synced bool
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, document_id, user_id, title, synced
		FROM quizzes WHERE user_id = ? AND document_id = ?
		LIMIT 1
	`, userID, documentID)
	if err := row.Scan(&quiz.ID, &quiz.DocumentID, &quiz.UserID, &quiz.Title, &synced); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Quiz not cached
		}
		return nil, fmt.Errorf("failed to find quiz for document %d: %w", documentID, err)
	}
	quiz.Synced = synced

	questions, err := db.getQuestions(ctx, userID, quiz.ID)
	if err != nil {
		return nil, err
	}
	answers, err := db.getAnswersForQuiz(ctx, userID, quiz.ID)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		questions[i].Answers = answers[questions[i].ID]
	}
	quiz.Questions = questions
	return &quiz, nil
}

func (db *DB) getQuestions(ctx context.Context, userID, quizID int64) ([]domain.Question, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, quiz_id, user_id, text, position
		FROM questions WHERE user_id = ? AND quiz_id = ?
		ORDER BY position, id
	`, userID, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions for quiz %d: %w", quizID, err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.UserID, &q.Text, &q.Order); err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (db *DB) getAnswersForQuiz(ctx context.Context, userID, quizID int64) (map[int64][]domain.Answer, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT a.id, a.question_id, a.user_id, a.text, a.is_correct, a.explanation, a.position
		FROM answers a
		JOIN questions q ON q.id = a.question_id AND q.user_id = a.user_id
		WHERE a.user_id = ? AND q.quiz_id = ?
		ORDER BY a.question_id, a.position, a.id
	`, userID, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers for quiz %d: %w", quizID, err)
	}
	defer rows.Close()

	answers := make(map[int64][]domain.Answer)
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.UserID, &a.Text, &a.IsCorrect, &a.Explanation, &a.Order); err != nil {
			return nil, fmt.Errorf("failed to scan answer row: %w", err)
		}
		answers[a.QuestionID] = append(answers[a.QuestionID], a)
	}
	return answers, rows.Err()
}
