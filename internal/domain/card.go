package domain

import "time"

// Deck is a named collection of flashcards, optionally paired with a quiz.
// The remote service calls it a document.
type Deck struct {
	ID           int64  `validate:"gt=0"`
	UserID       int64  `validate:"gt=0"`
	Title        string `validate:"required"`
	Status       string `validate:"required"`
	CreatedAt    string
	TotalCount   int `validate:"gte=0"`
	StudiedCount int `validate:"gte=0,ltefield=TotalCount"`
}

// Flashcard is a single front/back study unit.
type Flashcard struct {
	ID     int64  `validate:"gt=0"`
	DeckID int64  `validate:"gt=0"`
	UserID int64  `validate:"gt=0"`
	Front  string `validate:"required"`
	Back   string
	Kind   string
}

// Quiz is an ordered set of questions belonging to a deck.
type Quiz struct {
	ID         int64 `validate:"gt=0"`
	DocumentID int64 `validate:"gt=0"`
	UserID     int64 `validate:"gt=0"`
	Title      string
	Synced     bool
	Questions  []Question `validate:"min=1,dive"`
}

// Question is one quiz question with its answer options.
type Question struct {
	ID      int64 `validate:"gt=0"`
	QuizID  int64 `validate:"gt=0"`
	UserID  int64 `validate:"gt=0"`
	Text    string
	Order   int
	Answers []Answer `validate:"min=1,dive"`
}

// Answer is one option of a question.
type Answer struct {
	ID          int64 `validate:"gt=0"`
	QuestionID  int64 `validate:"gt=0"`
	UserID      int64 `validate:"gt=0"`
	Text        string
	IsCorrect   bool
	Explanation string
	Order       int
}

// StudyLog records a single accuracy observation for a flashcard review.
// Accuracy is 0 (forgot), 0.5 (partial) or 1 (knew it).
type StudyLog struct {
	LocalID     int64
	EventID     string
	FlashcardID int64   `validate:"gt=0"`
	UserID      int64   `validate:"gt=0"`
	Accuracy    float64 `validate:"gte=0,lte=1"`
	RecordedAt  time.Time
	Synced      bool
}

// QuizAttempt is a completed, scored run through a quiz.
type QuizAttempt struct {
	LocalID        int64
	EventID        string
	QuizID         int64   `validate:"gt=0"`
	UserID         int64   `validate:"gt=0"`
	Score          float64 `validate:"gte=0"`
	CorrectAnswers int     `validate:"gte=0,ltefield=TotalQuestions"`
	TotalQuestions int     `validate:"gt=0"`
	AttemptedAt    time.Time
	Synced         bool
}

// SyncMetadata is the persisted summary of the last successful refresh.
type SyncMetadata struct {
	LastFullSync  time.Time
	HasCachedData bool
}
