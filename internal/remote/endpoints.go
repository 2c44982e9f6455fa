package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp TokenResponse
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "token",
		form:      url.Values{"username": {username}, "password": {password}},
		anonymous: true,
		retry:     true,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("login response carried no access token")
	}
	return resp.AccessToken, nil
}

// CurrentUser fetches the profile for token, which is not yet stored.
func (c *Client) CurrentUser(ctx context.Context, token string) (*User, error) {
	var user User
	err := c.withToken(token).do(ctx, request{
		method: http.MethodGet,
		path:   "users/me",
		retry:  true,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

type staticToken string

func (t staticToken) Token() (string, bool) { return "Bearer " + string(t), t != "" }

func (c *Client) withToken(token string) *Client {
	clone := *c
	clone.creds = staticToken(token)
	return &clone
}

func (c *Client) Decks(ctx context.Context) ([]Document, error) {
	var docs []Document
	if err := c.do(ctx, request{method: http.MethodGet, path: "documents/", retry: true}, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *Client) DocumentDetail(ctx context.Context, documentID int64) (*DocumentDetail, error) {
	var detail DocumentDetail
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "documents/" + strconv.FormatInt(documentID, 10),
		retry:  true,
	}, &detail)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) Flashcards(ctx context.Context, documentID int64) ([]FlashcardDTO, error) {
	var cards []FlashcardDTO
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("documents/%d/flashcards", documentID),
		retry:  true,
	}, &cards)
	if err != nil {
		return nil, err
	}
	return cards, nil
}

func (c *Client) DeckStats(ctx context.Context, documentID int64) (*DeckStats, error) {
	var stats DeckStats
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("stats/document/%d", documentID),
		retry:  true,
	}, &stats)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// CheckAnswer asks the service whether answerID is correct.
func (c *Client) CheckAnswer(ctx context.Context, questionID, answerID int64) (*AnswerResult, error) {
	var result AnswerResult
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "quizzes/check-answer",
		json:   answerCheckRequest{QuestionID: questionID, AnswerID: answerID},
		retry:  true,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// LogStudy delivers one study log. eventID is sent as the idempotency key.
func (c *Client) LogStudy(ctx context.Context, flashcardID int64, accuracy float64, eventID string) error {
	return c.do(ctx, request{
		method:         http.MethodPost,
		path:           fmt.Sprintf("flashcards/%d/log_study", flashcardID),
		json:           studyLogRequest{Accuracy: accuracy},
		retry:          true,
		idempotencyKey: eventID,
	}, nil)
}

// SubmitQuizAttempt delivers one quiz attempt. eventID is sent as the
// idempotency key.
func (c *Client) SubmitQuizAttempt(ctx context.Context, quizID int64, sub QuizSubmission, eventID string) error {
	return c.do(ctx, request{
		method:         http.MethodPost,
		path:           fmt.Sprintf("quizzes/%d/submit", quizID),
		json:           sub,
		retry:          true,
		idempotencyKey: eventID,
	}, nil)
}

// UploadDocument sends a file for processing. Never retried: each call
// consumes generation quota.
func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader, opts GenerationOptions) (*Document, error) {
	fields := map[string]string{
		"title":                opts.Title,
		"num_flashcards":       strconv.Itoa(opts.NumFlashcards),
		"difficulty":           opts.Difficulty,
		"generates_flashcards": strconv.FormatBool(opts.GenerateFlashcards),
		"generates_quizzes":    strconv.FormatBool(opts.GenerateQuizzes),
		"content_type":         opts.ContentType,
		"num_questions":        strconv.Itoa(opts.NumQuestions),
	}
	if opts.FolderID > 0 {
		fields["folder_id"] = strconv.FormatInt(opts.FolderID, 10)
	}
	var doc Document
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "documents/upload",
		multipart: &multipartFile{
			field:    "file",
			filename: filename,
			content:  content,
			fields:   fields,
		},
	}, &doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// CreateDeckFromText submits pasted text for processing.
func (c *Client) CreateDeckFromText(ctx context.Context, text string, opts GenerationOptions) (*Document, error) {
	var doc Document
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "documents/text",
		json: textDeckRequest{
			Text:               text,
			Title:              opts.Title,
			NumFlashcards:      opts.NumFlashcards,
			Difficulty:         opts.Difficulty,
			GenerateFlashcards: opts.GenerateFlashcards,
			GenerateQuizzes:    opts.GenerateQuizzes,
			ContentType:        opts.ContentType,
			NumQuestions:       opts.NumQuestions,
		},
	}, &doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) GenerateFlashcards(ctx context.Context, documentID int64) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   fmt.Sprintf("documents/%d/generate-flashcards", documentID),
	}, nil)
}

func (c *Client) GenerateQuiz(ctx context.Context, documentID int64) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   fmt.Sprintf("documents/%d/generate-quiz", documentID),
	}, nil)
}

func (c *Client) GenerationLimit(ctx context.Context) (*GenerationLimit, error) {
	var limit GenerationLimit
	err := c.do(ctx, request{method: http.MethodGet, path: "documents/generation-limit", retry: true}, &limit)
	if err != nil {
		return nil, err
	}
	return &limit, nil
}
