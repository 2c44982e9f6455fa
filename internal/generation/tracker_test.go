package generation

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/conorfennell/studysync/internal/apperr"
	"github.com/conorfennell/studysync/internal/remote"
)

type scriptedSource struct {
	mu     sync.Mutex
	script []remote.DocumentDetail
	errs   map[int]error
	calls  atomic.Int32
}

func (s *scriptedSource) DocumentDetail(ctx context.Context, documentID int64) (*remote.DocumentDetail, error) {
	n := int(s.calls.Add(1)) - 1
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[n]; ok {
		return nil, err
	}
	if n >= len(s.script) {
		n = len(s.script) - 1
	}
	d := s.script[n]
	d.ID = documentID
	return &d, nil
}

func processing(step string) remote.DocumentDetail {
	return remote.DocumentDetail{Status: remote.StatusProcessing, CurrentStep: step}
}

type recorder struct {
	mu   sync.Mutex
	seen []Status
}

func (r *recorder) observe(s Status) {
	r.mu.Lock()
	r.seen = append(r.seen, s)
	r.mu.Unlock()
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.seen...)
}

func waitTerminal(t *testing.T, tr *Tracker) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := tr.Wait(ctx)
	if err != nil {
		t.Fatalf("job did not finish: %v", err)
	}
	return st
}

func TestStepSequence(t *testing.T) {
	src := &scriptedSource{script: []remote.DocumentDetail{
		processing("Iniciando processamento"),
		processing("Extraindo texto do PDF"),
		processing("Extraindo texto do PDF"),
		processing("Gerando flashcards com IA"),
		processing("Extraindo texto"),
		processing("Parsing flashcards"),
		processing("Salvando flashcards"),
		processing("Processamento concluído"),
	}}
	rec := &recorder{}
	tr := NewTracker(src, time.Millisecond, rec.observe, nil)

	tr.Start(context.Background(), 42, Plan{Flashcards: true})
	final := waitTerminal(t, tr)
	if final.Phase != PhaseCompleted {
		t.Fatalf("expected completed, got %+v", final)
	}

	var indexes []int
	var phases []Phase
	for _, s := range rec.statuses() {
		indexes = append(indexes, s.StepIndex)
		phases = append(phases, s.Phase)
	}
	wantIndexes := []int{-1, 0, 1, 2, 3, 4, 4}
	wantPhases := []Phase{PhaseProcessing, PhaseProcessing, PhaseProcessing, PhaseProcessing, PhaseProcessing, PhaseProcessing, PhaseCompleted}
	if !reflect.DeepEqual(indexes, wantIndexes) {
		t.Errorf("step indexes = %v, want %v", indexes, wantIndexes)
	}
	if !reflect.DeepEqual(phases, wantPhases) {
		t.Errorf("phases = %v, want %v", phases, wantPhases)
	}
}

func TestTerminalStatuses(t *testing.T) {
	tests := []struct {
		name   string
		detail remote.DocumentDetail
		phase  Phase
		reason string
	}{
		{"completed", remote.DocumentDetail{Status: remote.StatusCompleted}, PhaseCompleted, ""},
		{"failed with step", remote.DocumentDetail{Status: remote.StatusFailed, CurrentStep: "Erro ao extrair texto"}, PhaseFailed, "Erro ao extrair texto"},
		{"failed bare", remote.DocumentDetail{Status: remote.StatusFailed}, PhaseFailed, "generation failed"},
		{"cancelled", remote.DocumentDetail{Status: remote.StatusCancelled}, PhaseCancelled, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(&scriptedSource{script: []remote.DocumentDetail{tt.detail}}, time.Millisecond, nil, nil)
			tr.Start(context.Background(), 1, Plan{Flashcards: true, Quizzes: true})
			st := waitTerminal(t, tr)
			if st.Phase != tt.phase || st.Reason != tt.reason {
				t.Errorf("got %+v, want phase %v reason %q", st, tt.phase, tt.reason)
			}
		})
	}
}

func TestReadErrors(t *testing.T) {
	src := &scriptedSource{
		script: []remote.DocumentDetail{processing("Extraindo texto")},
		errs: map[int]error{
			0: apperr.Transient(errors.New("reset")),
			2: &apperr.RemoteError{Code: 404},
		},
	}
	tr := NewTracker(src, time.Millisecond, nil, nil)
	tr.Start(context.Background(), 1, Plan{})
	st := waitTerminal(t, tr)
	if st.Phase != PhaseFailed {
		t.Fatalf("expected failed after an unrecoverable error, got %+v", st)
	}
	if st.StepIndex != 1 {
		t.Errorf("expected progress kept at step 1, got %d", st.StepIndex)
	}
	if src.calls.Load() != 3 {
		t.Errorf("expected the transient error to be retried, got %d calls", src.calls.Load())
	}
}

func TestStopMidSequence(t *testing.T) {
	src := &scriptedSource{script: []remote.DocumentDetail{processing("Extraindo texto")}}
	tr := NewTracker(src, 5*time.Millisecond, nil, nil)

	tr.Start(context.Background(), 1, Plan{Quizzes: true})
	for src.calls.Load() < 2 {
		time.Sleep(time.Millisecond)
	}
	tr.Stop()

	calls := src.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if got := src.calls.Load(); got != calls {
		t.Errorf("expected no polls after Stop, got %d more", got-calls)
	}
	if st := tr.Status(); st.Phase != PhaseIdle {
		t.Errorf("expected idle after Stop, got %+v", st)
	}

	tr.Stop()
	tr.Stop()
}

func TestStopAfterTerminal(t *testing.T) {
	tr := NewTracker(&scriptedSource{script: []remote.DocumentDetail{{Status: remote.StatusCompleted}}}, time.Millisecond, nil, nil)
	tr.Start(context.Background(), 1, Plan{})
	waitTerminal(t, tr)
	tr.Stop()
	tr.Stop()
	if st := tr.Status(); st.Phase != PhaseIdle {
		t.Errorf("expected idle, got %+v", st)
	}
}

func TestStartReplacesRunningPoll(t *testing.T) {
	var mu sync.Mutex
	polled := map[int64]int{}
	src := sourceFunc(func(ctx context.Context, id int64) (*remote.DocumentDetail, error) {
		mu.Lock()
		polled[id]++
		mu.Unlock()
		return &remote.DocumentDetail{ID: id, Status: remote.StatusProcessing}, nil
	})
	tr := NewTracker(src, 2*time.Millisecond, nil, nil)
	defer tr.Stop()

	tr.Start(context.Background(), 1, Plan{})
	time.Sleep(10 * time.Millisecond)
	tr.Start(context.Background(), 2, Plan{})

	mu.Lock()
	first := polled[1]
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if polled[1] != first {
		t.Errorf("expected the first job to stop polling, got %d more polls", polled[1]-first)
	}
	if polled[2] == 0 {
		t.Error("expected the second job to be polled")
	}
}

type sourceFunc func(ctx context.Context, id int64) (*remote.DocumentDetail, error)

func (f sourceFunc) DocumentDetail(ctx context.Context, id int64) (*remote.DocumentDetail, error) {
	return f(ctx, id)
}

func TestMatchStep(t *testing.T) {
	all := Steps(Plan{Flashcards: true, Quizzes: true})
	quizOnly := Steps(Plan{Quizzes: true})
	tests := []struct {
		label string
		steps []string
		want  int
	}{
		{"INICIANDO PROCESSAMENTO", all, 0},
		{"Gerando quiz com IA", all, 5},
		{"Gerando quiz com IA", quizOnly, 2},
		{"Salvando flashcards", quizOnly, -1},
		{"parsing flashcards e salvando quiz", all, 7},
		{"aguardando", all, -1},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := MatchStep(tt.label, tt.steps); got != tt.want {
				t.Errorf("MatchStep(%q) = %d, want %d", tt.label, got, tt.want)
			}
		})
	}
	if len(all) != 8 || len(quizOnly) != 5 {
		t.Errorf("unexpected step lists %v / %v", all, quizOnly)
	}
}
