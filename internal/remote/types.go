package remote

import (
	"fmt"
	"path"

	"github.com/conorfennell/studysync/internal/domain"
)

// Document statuses reported by the service.
const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
)

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Document is a deck as the service describes it.
type Document struct {
	ID                  int64  `json:"id"`
	FilePath            string `json:"file_path"`
	Status              string `json:"status"`
	CreatedAt           string `json:"created_at"`
	TotalFlashcards     int    `json:"total_flashcards"`
	StudiedFlashcards   int    `json:"studied_flashcards"`
	CurrentStep         string `json:"current_step"`
	HasQuiz             bool   `json:"has_quiz"`
	FolderID            *int64 `json:"folder_id"`
	GeneratesFlashcards bool   `json:"generates_flashcards"`
	GeneratesQuizzes    bool   `json:"generates_quizzes"`
}

// ToDeck maps the document onto a cache row owned by userID.
func (d Document) ToDeck(userID int64) domain.Deck {
	title := path.Base(d.FilePath)
	if d.FilePath == "" || title == "." || title == "/" {
		title = fmt.Sprintf("Document %d", d.ID)
	}
	return domain.Deck{
		ID:           d.ID,
		UserID:       userID,
		Title:        title,
		Status:       d.Status,
		CreatedAt:    d.CreatedAt,
		TotalCount:   d.TotalFlashcards,
		StudiedCount: d.StudiedFlashcards,
	}
}

// DocumentDetail carries the processing state and, once generated, the quiz.
type DocumentDetail struct {
	ID          int64    `json:"id"`
	Status      string   `json:"status"`
	CurrentStep string   `json:"current_step"`
	Quiz        *QuizDTO `json:"quiz"`
}

type QuizDTO struct {
	ID         int64         `json:"id"`
	Title      string        `json:"title"`
	DocumentID int64         `json:"document_id"`
	Questions  []QuestionDTO `json:"questions"`
}

type QuestionDTO struct {
	ID      int64       `json:"id"`
	Text    string      `json:"text"`
	QuizID  int64       `json:"quiz_id"`
	Answers []AnswerDTO `json:"answers"`
}

type AnswerDTO struct {
	ID          int64  `json:"id"`
	Text        string `json:"text"`
	IsCorrect   bool   `json:"is_correct"`
	Explanation string `json:"explanation"`
	QuestionID  int64  `json:"question_id"`
}

// ToQuiz maps the quiz tree onto cache rows owned by userID, keeping the
// service's question and answer order.
func (q QuizDTO) ToQuiz(userID, documentID int64) *domain.Quiz {
	quiz := &domain.Quiz{
		ID:         q.ID,
		DocumentID: documentID,
		UserID:     userID,
		Title:      q.Title,
		Synced:     true,
	}
	for qi, question := range q.Questions {
		dq := domain.Question{
			ID:     question.ID,
			QuizID: q.ID,
			UserID: userID,
			Text:   question.Text,
			Order:  qi,
		}
		for ai, a := range question.Answers {
			dq.Answers = append(dq.Answers, domain.Answer{
				ID:          a.ID,
				QuestionID:  question.ID,
				UserID:      userID,
				Text:        a.Text,
				IsCorrect:   a.IsCorrect,
				Explanation: a.Explanation,
				Order:       ai,
			})
		}
		quiz.Questions = append(quiz.Questions, dq)
	}
	return quiz
}

type FlashcardDTO struct {
	ID         int64  `json:"id"`
	Front      string `json:"front"`
	Back       string `json:"back"`
	Type       string `json:"type"`
	DocumentID int64  `json:"document_id"`
}

func (f FlashcardDTO) ToFlashcard(userID, deckID int64) domain.Flashcard {
	return domain.Flashcard{
		ID:     f.ID,
		DeckID: deckID,
		UserID: userID,
		Front:  f.Front,
		Back:   f.Back,
		Kind:   f.Type,
	}
}

type studyLogRequest struct {
	Accuracy float64 `json:"accuracy"`
}

type QuizSubmission struct {
	Score          float64 `json:"score"`
	CorrectAnswers int     `json:"correct_answers"`
	TotalQuestions int     `json:"total_questions"`
}

type answerCheckRequest struct {
	QuestionID int64 `json:"question_id"`
	AnswerID   int64 `json:"answer_id"`
}

type AnswerResult struct {
	IsCorrect       bool   `json:"is_correct"`
	CorrectAnswerID int64  `json:"correct_answer_id"`
	Explanation     string `json:"explanation"`
}

type DeckStats struct {
	Flashcards struct {
		Known              int     `json:"known"`
		Learning           int     `json:"learning"`
		Total              int     `json:"total"`
		ProgressPercentage float64 `json:"progress_percentage"`
	} `json:"flashcards"`
	Quiz struct {
		LastScore     *float64 `json:"last_score"`
		AverageScore  *float64 `json:"average_score"`
		TotalAttempts int      `json:"total_attempts"`
	} `json:"quiz"`
}

// GenerationOptions selects what the service generates from new content.
type GenerationOptions struct {
	Title              string
	NumFlashcards      int
	Difficulty         string
	GenerateFlashcards bool
	GenerateQuizzes    bool
	ContentType        string
	NumQuestions       int
	FolderID           int64
}

type textDeckRequest struct {
	Text               string `json:"text"`
	Title              string `json:"title,omitempty"`
	NumFlashcards      int    `json:"num_flashcards"`
	Difficulty         string `json:"difficulty"`
	GenerateFlashcards bool   `json:"generate_flashcards"`
	GenerateQuizzes    bool   `json:"generate_quizzes"`
	ContentType        string `json:"content_type"`
	NumQuestions       int    `json:"num_questions"`
}

// GenerationLimit is the account's daily generation quota.
type GenerationLimit struct {
	Used            int `json:"used"`
	Remaining       int `json:"remaining"`
	Limit           int `json:"limit"`
	HoursUntilReset int `json:"hours_until_reset"`
}

// limitDetail is the body of a 429 from a generation endpoint.
type limitDetail struct {
	Detail struct {
		Message         string `json:"message"`
		Limit           int    `json:"limit"`
		Used            int    `json:"used"`
		HoursUntilReset int    `json:"hours_until_reset"`
	} `json:"detail"`
}
