// Package web serves a small local JSON API over the sync layer so other
// processes on the device can read state and record study events.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/studysync/internal/apperr"
	"github.com/conorfennell/studysync/internal/connectivity"
	"github.com/conorfennell/studysync/internal/domain"
	"github.com/conorfennell/studysync/internal/reader"
	ssync "github.com/conorfennell/studysync/internal/sync"
)

// StateSource reports the connectivity state. connectivity.Monitor satisfies it.
type StateSource interface {
	State() connectivity.State
}

// Syncer runs one sync pass on demand.
type Syncer interface {
	Sync(ctx context.Context) (ssync.Report, error)
}

// EventRecorder stores study events for later delivery.
type EventRecorder interface {
	RecordStudyLog(ctx context.Context, flashcardID int64, accuracy float64) (*domain.StudyLog, error)
	RecordQuizAttempt(ctx context.Context, quizID int64, score float64, correct, total int) (*domain.QuizAttempt, error)
}

// ContentReader serves cached content with a background refresh.
type ContentReader interface {
	Decks(ctx context.Context) <-chan reader.Result[[]domain.Deck]
	Flashcards(ctx context.Context, deckID int64) <-chan reader.Result[[]domain.Flashcard]
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	state    StateSource
	syncer   Syncer
	recorder EventRecorder
	content  ContentReader
	router   *http.ServeMux
	logger   *slog.Logger
}

// NewServer creates and configures a new server.
func NewServer(state StateSource, syncer Syncer, recorder EventRecorder, content ContentReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		state:    state,
		syncer:   syncer,
		recorder: recorder,
		content:  content,
		router:   http.NewServeMux(),
		logger:   logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /status", s.handleGetStatus())
	s.router.HandleFunc("POST /sync", s.handlePostSync())
	s.router.HandleFunc("GET /decks", s.handleGetDecks())
	s.router.HandleFunc("GET /decks/{id}/flashcards", s.handleGetFlashcards())
	s.router.HandleFunc("POST /flashcards/{id}/study", s.handlePostStudy())
	s.router.HandleFunc("POST /quizzes/{id}/attempts", s.handlePostAttempt())
}

type statusResponse struct {
	Online   bool       `json:"online"`
	Wifi     bool       `json:"wifi"`
	Syncing  bool       `json:"syncing"`
	Pending  int        `json:"pending"`
	LastSync *time.Time `json:"last_sync,omitempty"`
}

func (s *Server) handleGetStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.state.State()
		resp := statusResponse{Online: st.Online, Wifi: st.Wifi, Syncing: st.Syncing, Pending: st.Pending}
		if !st.LastSync.IsZero() {
			resp.LastSync = &st.LastSync
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

// handlePostSync runs a pass in the foreground so the caller sees its outcome.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.syncer.Sync(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]int{
			"delivered": report.Delivered,
			"failed":    report.Failed,
		})
	}
}

type contentResponse[T any] struct {
	Source string `json:"source"`
	Stale  bool   `json:"stale"`
	Items  T      `json:"items"`
}

func writeLatest[T any](s *Server, w http.ResponseWriter, ch <-chan reader.Result[T]) {
	res := reader.Latest(ch)
	if res.Err != nil {
		s.writeError(w, res.Err)
		return
	}
	s.writeJSON(w, http.StatusOK, contentResponse[T]{Source: res.Source.String(), Stale: res.Stale, Items: res.Value})
}

func (s *Server) handleGetDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeLatest(s, w, s.content.Decks(r.Context()))
	}
}

func (s *Server) handleGetFlashcards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		writeLatest(s, w, s.content.Flashcards(r.Context(), id))
	}
}

func (s *Server) handlePostStudy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		accuracy, err := strconv.ParseFloat(r.PostFormValue("accuracy"), 64)
		if err != nil {
			http.Error(w, "Invalid accuracy", http.StatusBadRequest)
			return
		}
		log, err := s.recorder.RecordStudyLog(r.Context(), id, accuracy)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]any{"local_id": log.LocalID, "event_id": log.EventID})
	}
}

func (s *Server) handlePostAttempt() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		score, err := strconv.ParseFloat(r.PostFormValue("score"), 64)
		if err != nil {
			http.Error(w, "Invalid score", http.StatusBadRequest)
			return
		}
		correct, err1 := strconv.Atoi(r.PostFormValue("correct"))
		total, err2 := strconv.Atoi(r.PostFormValue("total"))
		if err1 != nil || err2 != nil {
			http.Error(w, "Invalid answer counts", http.StatusBadRequest)
			return
		}
		attempt, err := s.recorder.RecordQuizAttempt(r.Context(), id, score, correct, total)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]any{"local_id": attempt.LocalID, "event_id": attempt.EventID})
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// statusFor maps an error onto the response code a local client sees.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ssync.ErrInProgress):
		return http.StatusConflict
	case errors.Is(err, ssync.ErrOffline):
		return http.StatusServiceUnavailable
	}
	switch apperr.KindOf(err) {
	case apperr.KindAuthenticationRequired:
		return http.StatusUnauthorized
	case apperr.KindOfflineUnavailable, apperr.KindNetworkTransient:
		return http.StatusServiceUnavailable
	case apperr.KindRemoteRejected:
		if errors.Is(err, apperr.ErrNotFound) {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	}
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	s.writeJSON(w, code, map[string]string{
		"error": err.Error(),
		"kind":  apperr.KindOf(err).String(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
