package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/models"
)

func TestSessionCreateSetsDeadlineForTimedAssignments(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()

	timed := f.createAssignment(t, intPtr(30))
	untimed := f.createAssignment(t, nil)

	before := time.Now().UTC()
	created, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: timed.ID, StudentName: "Budi"})
	require.NoError(t, err)
	require.NotNil(t, created.DeadlineAt)
	require.WithinDuration(t, before.Add(30*time.Minute), *created.DeadlineAt, 5*time.Second)

	open, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: untimed.ID, StudentName: "Budi"})
	require.NoError(t, err)
	require.Nil(t, open.DeadlineAt)

	session, err := f.sessions.Get(ctx, created.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusActive, session.Status)
	require.Equal(t, "Budi", session.StudentName)
	require.Empty(t, session.DraftAnswers)
}

func TestSessionCreateRejectsBlankNameAndHiddenAssignment(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()

	assignment := f.createAssignment(t, nil)
	_, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "   "})
	require.ErrorIs(t, err, ErrStudentNameRequired)

	_, err = f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: ""})
	require.Error(t, err)
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)

	hidden := models.Assignment{Title: "Draft quiz", TotalScore: 10, Hidden: true}
	require.NoError(t, f.assignments.Create(ctx, &hidden))
	_, err = f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: hidden.ID, StudentName: "Sari"})
	require.ErrorIs(t, err, ErrAssignmentNotFound)

	_, err = f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: 9999, StudentName: "Sari"})
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestFindIncompleteMatchesExactPairOnly(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()

	assignment := f.createAssignment(t, nil)
	other := f.createAssignment(t, nil)

	created, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "Budi"})
	require.NoError(t, err)
	_, err = f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: other.ID, StudentName: "Budi"})
	require.NoError(t, err)

	found, err := f.sessions.FindIncomplete(ctx, dto.SessionLookupRequest{AssignmentID: assignment.ID, StudentName: "Budi"})
	require.NoError(t, err)
	require.True(t, found.HasIncomplete)
	require.Equal(t, created.SessionID, found.Session.ID)

	for _, name := range []string{"budi", "Budi S", "Bud"} {
		lookup, err := f.sessions.FindIncomplete(ctx, dto.SessionLookupRequest{AssignmentID: assignment.ID, StudentName: name})
		require.NoError(t, err)
		require.False(t, lookup.HasIncomplete, name)
		require.Nil(t, lookup.Session)
	}
}

func TestFindIncompleteIgnoresSubmittedSessions(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()

	assignment := f.createAssignment(t, nil)
	questions := f.addChoiceQuestions(t, assignment.ID, "A")

	created, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "Rina"})
	require.NoError(t, err)

	_, err = f.grading.Submit(ctx, dto.SubmissionCreateRequest{
		AssignmentID: assignment.ID,
		StudentName:  "Rina",
		SessionID:    &created.SessionID,
		Answers:      map[string]string{questionKey(questions[0].ID): "A"},
	})
	require.NoError(t, err)

	lookup, err := f.sessions.FindIncomplete(ctx, dto.SessionLookupRequest{AssignmentID: assignment.ID, StudentName: "Rina"})
	require.NoError(t, err)
	require.False(t, lookup.HasIncomplete)
}

func TestSetStatusTransitions(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()

	assignment := f.createAssignment(t, nil)
	questions := f.addChoiceQuestions(t, assignment.ID, "B")
	created, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "Dewi"})
	require.NoError(t, err)

	exited, err := f.sessions.SetStatus(ctx, dto.SessionStatusRequest{SessionID: created.SessionID, Status: models.SessionStatusExited})
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusExited, exited.Status)
	require.Equal(t, 1, exited.ExitCount)

	_, err = f.sessions.SetStatus(ctx, dto.SessionStatusRequest{SessionID: created.SessionID, Status: models.SessionStatusSubmitted})
	require.ErrorIs(t, err, ErrInvalidSessionTransition)

	active, err := f.sessions.SetStatus(ctx, dto.SessionStatusRequest{SessionID: created.SessionID, Status: models.SessionStatusActive})
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusActive, active.Status)

	_, err = f.grading.Submit(ctx, dto.SubmissionCreateRequest{
		AssignmentID: assignment.ID,
		StudentName:  "Dewi",
		SessionID:    &created.SessionID,
		Answers:      map[string]string{questionKey(questions[0].ID): "B"},
	})
	require.NoError(t, err)

	_, err = f.sessions.SetStatus(ctx, dto.SessionStatusRequest{SessionID: created.SessionID, Status: models.SessionStatusActive})
	require.ErrorIs(t, err, ErrSessionSubmitted)

	stored, err := f.sessions.Get(ctx, created.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusSubmitted, stored.Status)
	require.NotNil(t, stored.SubmissionID)
}

func TestExitKeepAndDiscard(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()
	assignment := f.createAssignment(t, nil)

	kept, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "Andi"})
	require.NoError(t, err)
	require.NoError(t, f.sessions.Exit(ctx, kept.SessionID, dto.SessionExitRequest{Mode: dto.ExitModeKeep}))

	session, err := f.sessions.Get(ctx, kept.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusExited, session.Status)

	lookup, err := f.sessions.FindIncomplete(ctx, dto.SessionLookupRequest{AssignmentID: assignment.ID, StudentName: "Andi"})
	require.NoError(t, err)
	require.True(t, lookup.HasIncomplete)

	discarded, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "Tono"})
	require.NoError(t, err)
	_, err = f.drafts.Save(ctx, discarded.SessionID, dto.DraftSaveRequest{DraftAnswers: map[string]string{"1": "A"}})
	require.NoError(t, err)

	require.NoError(t, f.sessions.Exit(ctx, discarded.SessionID, dto.SessionExitRequest{Mode: dto.ExitModeDiscard}))
	_, err = f.sessions.Get(ctx, discarded.SessionID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.False(t, f.mini.Exists(draftCacheKey(discarded.SessionID)))
}

func TestBeaconMarksOnlyActiveSessionsExited(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()
	assignment := f.createAssignment(t, nil)

	created, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "Wati"})
	require.NoError(t, err)

	require.NoError(t, f.sessions.Beacon(ctx, created.SessionID))
	require.NoError(t, f.sessions.Beacon(ctx, created.SessionID))

	session, err := f.sessions.Get(ctx, created.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusExited, session.Status)
	require.Equal(t, 1, session.ExitCount)

	require.ErrorIs(t, f.sessions.Beacon(ctx, 4242), ErrSessionNotFound)
}

func TestDeleteSessionRemovesLinkedSubmission(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()

	assignment := f.createAssignment(t, nil)
	questions := f.addChoiceQuestions(t, assignment.ID, "A", "B")
	created, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "Joko"})
	require.NoError(t, err)

	result, err := f.grading.Submit(ctx, dto.SubmissionCreateRequest{
		AssignmentID: assignment.ID,
		StudentName:  "Joko",
		SessionID:    &created.SessionID,
		Answers:      map[string]string{questionKey(questions[0].ID): "A"},
	})
	require.NoError(t, err)

	require.NoError(t, f.sessions.Delete(ctx, created.SessionID))

	_, err = f.grading.Get(ctx, result.SubmissionID)
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	var answers int64
	require.NoError(t, f.db.Model(&models.Answer{}).Where("submission_id = ?", result.SubmissionID).Count(&answers).Error)
	require.Zero(t, answers)

	require.ErrorIs(t, f.sessions.Delete(ctx, created.SessionID), ErrSessionNotFound)
}

func TestListLiveReportsRecentActivity(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()
	assignment := f.createAssignment(t, nil)

	fresh, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "Fresh"})
	require.NoError(t, err)
	idle, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "Idle"})
	require.NoError(t, err)

	stale := time.Now().Add(-10 * time.Minute).UTC()
	require.NoError(t, f.db.Model(&models.StudentSession{}).Where("id = ?", idle.SessionID).Update("last_activity_at", stale).Error)

	live, err := f.sessions.ListLive(ctx, assignment.ID)
	require.NoError(t, err)
	require.Len(t, live, 2)

	byID := map[uint]dto.LiveSessionResponse{}
	for _, item := range live {
		byID[item.ID] = item
	}
	require.True(t, byID[fresh.SessionID].RecentlyActive)
	require.False(t, byID[idle.SessionID].RecentlyActive)
	require.GreaterOrEqual(t, byID[idle.SessionID].IdleSeconds, int64(599))

	require.NoError(t, f.sessions.TouchActivity(ctx, idle.SessionID))
	live, err = f.sessions.ListLive(ctx, assignment.ID)
	require.NoError(t, err)
	for _, item := range live {
		require.True(t, item.RecentlyActive)
	}
}
