package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/models"
	"github.com/noah-isme/gema-quiz-api/internal/repository"
)

// flakySessionRepo fails selected operations with a connection error.
type flakySessionRepo struct {
	repository.SessionRepository
	failSave bool
	failGet  bool
}

var errStoreDown = errors.New("connection refused")

func (r *flakySessionRepo) SaveDraft(ctx context.Context, id uint, drafts map[string]string, at time.Time) error {
	if r.failSave {
		return errStoreDown
	}
	return r.SessionRepository.SaveDraft(ctx, id, drafts, at)
}

func (r *flakySessionRepo) GetByID(ctx context.Context, id uint) (models.StudentSession, error) {
	if r.failGet {
		return models.StudentSession{}, errStoreDown
	}
	return r.SessionRepository.GetByID(ctx, id)
}

func TestDraftSaveAndLoadFromStore(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()
	assignment := f.createAssignment(t, intPtr(15))

	created, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "Lina"})
	require.NoError(t, err)

	saved, err := f.drafts.Save(ctx, created.SessionID, dto.DraftSaveRequest{DraftAnswers: map[string]string{"1": "B", "2": "an essay"}})
	require.NoError(t, err)
	require.True(t, saved.Success)
	require.False(t, saved.Degraded)

	loaded, err := f.drafts.Load(ctx, created.SessionID)
	require.NoError(t, err)
	require.Equal(t, DraftSourceStore, loaded.Source)
	require.Equal(t, map[string]string{"1": "B", "2": "an essay"}, loaded.DraftAnswers)

	saved, err = f.drafts.Save(ctx, created.SessionID, dto.DraftSaveRequest{DraftAnswers: map[string]string{"1": "C"}})
	require.NoError(t, err)
	require.True(t, saved.Success)

	loaded, err = f.drafts.Load(ctx, created.SessionID)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"1": "C"}, loaded.DraftAnswers)

	require.True(t, f.mini.Exists(draftCacheKey(created.SessionID)))
	mirrored, err := f.mini.Get(draftCacheKey(created.SessionID))
	require.NoError(t, err)
	require.JSONEq(t, `{"1":"C"}`, mirrored)
}

func TestDraftSaveReportsDegradedWhenStoreFails(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()
	assignment := f.createAssignment(t, nil)

	created, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "Eko"})
	require.NoError(t, err)

	flaky := &flakySessionRepo{SessionRepository: f.sessionRepo, failSave: true}
	drafts := NewDraftService(flaky, f.redis, time.Hour, f.validate, testLogger())

	saved, err := drafts.Save(ctx, created.SessionID, dto.DraftSaveRequest{DraftAnswers: map[string]string{"7": "D"}})
	require.NoError(t, err)
	require.True(t, saved.Success)
	require.True(t, saved.Degraded)

	flaky.failSave = false
	flaky.failGet = true
	loaded, err := drafts.Load(ctx, created.SessionID)
	require.NoError(t, err)
	require.Equal(t, DraftSourceCache, loaded.Source)
	require.Equal(t, map[string]string{"7": "D"}, loaded.DraftAnswers)
}

func TestDraftSaveFailsWhenBothTiersFail(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()
	assignment := f.createAssignment(t, nil)

	created, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "Eko"})
	require.NoError(t, err)

	flaky := &flakySessionRepo{SessionRepository: f.sessionRepo, failSave: true}
	drafts := NewDraftService(flaky, nil, time.Hour, f.validate, testLogger())

	_, err = drafts.Save(ctx, created.SessionID, dto.DraftSaveRequest{DraftAnswers: map[string]string{"7": "D"}})
	require.ErrorIs(t, err, ErrDraftUnavailable)
	require.ErrorIs(t, err, errStoreDown)
}

func TestDraftSaveRejectsSubmittedAndUnknownSessions(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()
	assignment := f.createAssignment(t, nil)
	questions := f.addChoiceQuestions(t, assignment.ID, "A")

	created, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "Putri"})
	require.NoError(t, err)
	_, err = f.grading.Submit(ctx, dto.SubmissionCreateRequest{
		AssignmentID: assignment.ID,
		StudentName:  "Putri",
		SessionID:    &created.SessionID,
		Answers:      map[string]string{questionKey(questions[0].ID): "A"},
	})
	require.NoError(t, err)

	_, err = f.drafts.Save(ctx, created.SessionID, dto.DraftSaveRequest{DraftAnswers: map[string]string{"1": "A"}})
	require.ErrorIs(t, err, ErrSessionSubmitted)

	_, err = f.drafts.Save(ctx, 987, dto.DraftSaveRequest{DraftAnswers: map[string]string{"1": "A"}})
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.drafts.Load(ctx, 987)
	require.ErrorIs(t, err, ErrSessionNotFound)
}
