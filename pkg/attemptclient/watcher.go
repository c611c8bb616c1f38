package attemptclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
)

// DefaultPollInterval bounds how stale the question list may get when no push channel is used.
const DefaultPollInterval = 3 * time.Second

// QuestionSource returns the question list for a known version.
type QuestionSource interface {
	Questions(ctx context.Context, assignmentID uint, version string) (dto.QuestionSyncResponse, error)
}

// QuestionChange is delivered when the server reports a new version.
type QuestionChange struct {
	Version   string
	Questions []dto.StudentQuestionResponse
	Diff      dto.QuestionDiff
}

// Watcher polls for question changes until stopped.
type Watcher struct {
	source       QuestionSource
	assignmentID uint
	interval     time.Duration
	onChange     func(QuestionChange)
	logger       zerolog.Logger

	mu        sync.Mutex
	version   string
	questions []dto.StudentQuestionResponse
	stopped   atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewWatcher constructs a watcher. onChange runs on the polling goroutine.
func NewWatcher(source QuestionSource, assignmentID uint, interval time.Duration, onChange func(QuestionChange), logger zerolog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		source:       source,
		assignmentID: assignmentID,
		interval:     interval,
		onChange:     onChange,
		logger:       logger.With().Str("component", "question_watcher").Uint("assignment_id", assignmentID).Logger(),
		stop:         make(chan struct{}),
	}
}

// Version returns the last seen version.
func (w *Watcher) Version() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version
}

// Questions returns the last seen question list.
func (w *Watcher) Questions() []dto.StudentQuestionResponse {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]dto.StudentQuestionResponse(nil), w.questions...)
}

// Poll fetches once and reports whether the list changed.
func (w *Watcher) Poll(ctx context.Context) (bool, error) {
	if w.stopped.Load() {
		return false, nil
	}

	result, err := w.source.Questions(ctx, w.assignmentID, w.Version())
	if err != nil {
		return false, err
	}
	if !result.Changed {
		return false, nil
	}

	w.mu.Lock()
	previous := w.questions
	first := w.version == ""
	w.version = result.Version
	w.questions = result.Questions
	w.mu.Unlock()

	change := QuestionChange{
		Version:   result.Version,
		Questions: result.Questions,
		Diff:      dto.DiffQuestions(previous, result.Questions),
	}

	if !first && w.onChange != nil && !w.stopped.Load() {
		w.onChange(change)
	}
	return !first, nil
}

// Run polls every interval until ctx ends or Stop is called.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Poll(ctx); err != nil {
			w.logger.Debug().Err(err).Msg("question poll failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
		}
	}
}

// Stop ends polling; call it once the attempt is submitted.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		close(w.stop)
	})
}
