// Package generation follows server-side content generation jobs and keeps
// the client within the account's daily generation quota.
package generation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/conorfennell/studysync/internal/apperr"
	"github.com/conorfennell/studysync/internal/remote"
)

// DefaultPollInterval is how often a running job is polled.
const DefaultPollInterval = 2 * time.Second

// Phase is where a generation job stands, as seen from the client.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProcessing
	PhaseCompleted
	PhaseFailed
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseProcessing:
		return "processing"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// Terminal reports whether no further transitions follow.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// Status is what observers see. StepIndex is -1 until a known step label
// has been seen, and never decreases during one job.
type Status struct {
	Phase     Phase
	Step      string
	StepIndex int
	StepCount int
	Reason    string
}

// Plan says which artifacts the job generates.
type Plan struct {
	Flashcards bool
	Quizzes    bool
}

const completedKeyword = "concluído"

var stepKeywords = []struct {
	keyword    string
	flashcards bool
	quizzes    bool
}{
	{keyword: "iniciando processamento"},
	{keyword: "extraindo texto"},
	{keyword: "gerando flashcards com ia", flashcards: true},
	{keyword: "parsing flashcards", flashcards: true},
	{keyword: "salvando flashcards", flashcards: true},
	{keyword: "gerando quiz com ia", quizzes: true},
	{keyword: "parsing quiz", quizzes: true},
	{keyword: "salvando quiz", quizzes: true},
}

// Steps lists the step keywords a job with plan goes through, in order.
func Steps(plan Plan) []string {
	var steps []string
	for _, s := range stepKeywords {
		if (s.flashcards && !plan.Flashcards) || (s.quizzes && !plan.Quizzes) {
			continue
		}
		steps = append(steps, s.keyword)
	}
	return steps
}

// MatchStep returns the index of the most advanced step whose keyword
// occurs in label, or -1.
func MatchStep(label string, steps []string) int {
	l := strings.ToLower(label)
	match := -1
	for i, kw := range steps {
		if strings.Contains(l, kw) {
			match = i
		}
	}
	return match
}

// StatusSource reads a document's processing state. remote.Client satisfies it.
type StatusSource interface {
	DocumentDetail(ctx context.Context, documentID int64) (*remote.DocumentDetail, error)
}

// Tracker polls at most one job at a time.
type Tracker struct {
	source   StatusSource
	interval time.Duration
	observer func(Status)
	logger   *slog.Logger

	// ctl serialises Start and Stop.
	ctl    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status Status
}

// NewTracker creates an idle tracker. observer, if set, receives every status
// change from the polling goroutine and must not call Start or Stop.
func NewTracker(source StatusSource, interval time.Duration, observer func(Status), logger *slog.Logger) *Tracker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		source:   source,
		interval: interval,
		observer: observer,
		logger:   logger,
		status:   Status{Phase: PhaseIdle, StepIndex: -1},
	}
}

// Start polls documentID until a terminal state, stopping any previous poll.
func (t *Tracker) Start(ctx context.Context, documentID int64, plan Plan) {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	t.stopLocked()

	steps := Steps(plan)
	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	t.set(Status{Phase: PhaseProcessing, StepIndex: -1, StepCount: len(steps)})
	go t.poll(pollCtx, documentID, steps, done)
}

// Stop cancels the running poll, waits for it to exit and resets the tracker
// to idle. It is safe to call at any time, any number of times.
func (t *Tracker) Stop() {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	t.stopLocked()
	t.set(Status{Phase: PhaseIdle, StepIndex: -1})
}

func (t *Tracker) stopLocked() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
	t.cancel = nil
	t.done = nil
}

// Status returns the latest status.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Wait blocks until the running poll reaches a terminal state or ctx is done.
func (t *Tracker) Wait(ctx context.Context) (Status, error) {
	t.ctl.Lock()
	done := t.done
	t.ctl.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return t.Status(), ctx.Err()
		}
	}
	return t.Status(), nil
}

func (t *Tracker) set(s Status) {
	t.mu.Lock()
	if t.status == s {
		t.mu.Unlock()
		return
	}
	t.status = s
	t.mu.Unlock()
	if t.observer != nil {
		t.observer(s)
	}
}

func (t *Tracker) poll(ctx context.Context, documentID int64, steps []string, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()
	best := -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if ctx.Err() != nil {
			return
		}
		detail, err := t.source.DocumentDetail(ctx, documentID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if apperr.Retryable(err) {
				t.logger.Debug("Transient error polling job", "document_id", documentID, "error", err)
				timer.Reset(t.interval)
				continue
			}
			t.logger.Warn("Job polling failed", "document_id", documentID, "error", err)
			t.set(Status{Phase: PhaseFailed, Reason: err.Error(), StepIndex: best, StepCount: len(steps)})
			return
		}

		next, terminal := t.advance(detail, steps, &best)
		t.set(next)
		if terminal {
			t.logger.Info("Generation job finished", "document_id", documentID, "phase", next.Phase, "reason", next.Reason)
			return
		}
		timer.Reset(t.interval)
	}
}

// advance folds one status report into the job's progress.
func (t *Tracker) advance(detail *remote.DocumentDetail, steps []string, best *int) (Status, bool) {
	base := Status{StepIndex: *best, StepCount: len(steps)}
	if *best >= 0 {
		base.Step = steps[*best]
	}

	switch strings.ToUpper(detail.Status) {
	case remote.StatusCompleted:
		base.Phase = PhaseCompleted
		return base, true
	case remote.StatusFailed:
		base.Phase = PhaseFailed
		base.Reason = detail.CurrentStep
		if base.Reason == "" {
			base.Reason = "generation failed"
		}
		return base, true
	case remote.StatusCancelled:
		base.Phase = PhaseCancelled
		return base, true
	}

	if strings.Contains(strings.ToLower(detail.CurrentStep), completedKeyword) {
		base.Phase = PhaseCompleted
		return base, true
	}

	if i := MatchStep(detail.CurrentStep, steps); i > *best {
		*best = i
		base.StepIndex = i
		base.Step = steps[i]
	}
	if base.StepIndex < 0 {
		base.Step = detail.CurrentStep
	}
	base.Phase = PhaseProcessing
	return base, false
}
