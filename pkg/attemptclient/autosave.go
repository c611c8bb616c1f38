package attemptclient

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
)

// DefaultDebounce is the quiet period before staged answers are flushed.
const DefaultDebounce = 500 * time.Millisecond

// Save outcomes reported through SaveStatus.
const (
	SaveStatusSaved    = "saved"
	SaveStatusDegraded = "degraded"
	SaveStatusLocal    = "local"
)

// Draft sources returned by Resume.
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
	SourceEmpty  = "empty"
)

// DraftRemote is the server side of draft persistence.
type DraftRemote interface {
	SaveDraft(ctx context.Context, sessionID uint, answers map[string]string) (dto.DraftSaveResponse, error)
	LoadDraft(ctx context.Context, sessionID uint) (dto.DraftResponse, error)
}

// SaveStatus describes the outcome of a flush.
type SaveStatus struct {
	State string
	Err   error
}

// AutosaverConfig configures an Autosaver.
type AutosaverConfig struct {
	SessionID uint
	Remote    DraftRemote
	Local     LocalStore
	Debounce  time.Duration
	Timeout   time.Duration
	OnStatus  func(SaveStatus)
	Logger    zerolog.Logger
}

// Autosaver stages answer changes and writes the full map after a debounce.
type Autosaver struct {
	cfg     AutosaverConfig
	mu      sync.Mutex
	answers map[string]string
	dirty   bool
	timer   *time.Timer
	flushMu sync.Mutex
	logger  zerolog.Logger
}

// NewAutosaver constructs an autosaver seeded with the resumed answers.
func NewAutosaver(cfg AutosaverConfig, initial map[string]string) (*Autosaver, error) {
	if cfg.Remote == nil {
		return nil, fmt.Errorf("draft remote is required")
	}
	if cfg.Local == nil {
		cfg.Local = NewMemoryStore()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	answers := maps.Clone(initial)
	if answers == nil {
		answers = map[string]string{}
	}

	return &Autosaver{
		cfg:     cfg,
		answers: answers,
		logger:  cfg.Logger.With().Str("component", "autosaver").Uint("session_id", cfg.SessionID).Logger(),
	}, nil
}

// Stage records an answer and restarts the debounce timer.
func (a *Autosaver) Stage(questionID, answer string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.answers[questionID] = answer
	a.dirty = true

	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.cfg.Debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
		defer cancel()
		_ = a.Flush(ctx)
	})
}

// Answers returns a copy of the current answer map.
func (a *Autosaver) Answers() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.answers)
}

// Flush writes pending answers now. A remote failure still mirrors into the local store.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	if !a.dirty {
		a.mu.Unlock()
		return nil
	}
	snapshot := maps.Clone(a.answers)
	a.dirty = false
	a.mu.Unlock()

	if err := a.cfg.Local.Save(a.cfg.SessionID, snapshot); err != nil {
		a.logger.Warn().Err(err).Msg("failed to mirror draft locally")
	}

	result, err := a.cfg.Remote.SaveDraft(ctx, a.cfg.SessionID, snapshot)
	if err != nil {
		a.logger.Warn().Err(err).Msg("remote draft save failed, kept local copy")
		a.mu.Lock()
		a.dirty = true
		a.mu.Unlock()
		a.report(SaveStatus{State: SaveStatusLocal, Err: err})
		return err
	}

	if result.Degraded {
		a.report(SaveStatus{State: SaveStatusDegraded})
		return nil
	}
	a.report(SaveStatus{State: SaveStatusSaved})
	return nil
}

// Close stops the debounce timer and flushes pending answers.
func (a *Autosaver) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()
	return a.Flush(ctx)
}

func (a *Autosaver) report(status SaveStatus) {
	if a.cfg.OnStatus != nil {
		a.cfg.OnStatus(status)
	}
}

// Resume loads the draft from the server, falling back to the local store when the server fails.
func Resume(ctx context.Context, remote DraftRemote, local LocalStore, sessionID uint) (map[string]string, string, error) {
	draft, err := remote.LoadDraft(ctx, sessionID)
	if err == nil {
		answers := draft.DraftAnswers
		if answers == nil {
			answers = map[string]string{}
		}
		return answers, SourceRemote, nil
	}

	if local == nil {
		return nil, "", err
	}

	answers, ok, localErr := local.Load(sessionID)
	if localErr != nil {
		return nil, "", fmt.Errorf("remote draft: %w; local draft: %v", err, localErr)
	}
	if !ok {
		return map[string]string{}, SourceEmpty, nil
	}
	return answers, SourceLocal, nil
}
