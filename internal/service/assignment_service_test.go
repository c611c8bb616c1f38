package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/models"
)

func newAssignmentServiceForTest(f *quizFixture) AssignmentService {
	return NewAssignmentService(f.assignments, f.questions, f.redis, time.Minute, f.validate, f.activity, f.notifier, testLogger())
}

func TestAssignmentCreateDefaultsAndVisibility(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()
	svc := newAssignmentServiceForTest(f)

	due := "2030-06-01T08:00:00Z"
	zero := 0
	created, err := svc.Create(ctx, dto.AssignmentCreateRequest{
		Title:           "  Decimals  ",
		Subject:         "Math",
		DueAt:           &due,
		DurationMinutes: &zero,
	}, AdminActor)
	require.NoError(t, err)
	require.Equal(t, "Decimals", created.Title)
	require.Equal(t, models.DefaultTotalScore, created.TotalScore)
	require.Nil(t, created.DurationMinutes)
	require.NotNil(t, created.DueAt)

	hidden, err := svc.Create(ctx, dto.AssignmentCreateRequest{Title: "Staff only", Hidden: true}, AdminActor)
	require.NoError(t, err)

	_, err = svc.Get(ctx, hidden.ID, false)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
	fetched, err := svc.Get(ctx, hidden.ID, true)
	require.NoError(t, err)
	require.True(t, fetched.Hidden)

	public, err := svc.List(ctx, dto.AssignmentListRequest{})
	require.NoError(t, err)
	require.Len(t, public.Items, 1)
	require.EqualValues(t, 1, public.Pagination.TotalItems)

	all, err := svc.List(ctx, dto.AssignmentListRequest{IncludeHidden: true})
	require.NoError(t, err)
	require.Len(t, all.Items, 2)

	_, err = svc.Create(ctx, dto.AssignmentCreateRequest{Title: ""}, AdminActor)
	require.Error(t, err)
}

func TestAssignmentListCacheInvalidatedOnWrite(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()
	svc := newAssignmentServiceForTest(f)

	_, err := svc.Create(ctx, dto.AssignmentCreateRequest{Title: "First"}, AdminActor)
	require.NoError(t, err)

	first, err := svc.List(ctx, dto.AssignmentListRequest{})
	require.NoError(t, err)
	require.Len(t, first.Items, 1)

	require.NoError(t, f.assignments.Create(ctx, &models.Assignment{Title: "Sneaky", TotalScore: 10}))
	cached, err := svc.List(ctx, dto.AssignmentListRequest{})
	require.NoError(t, err)
	require.Len(t, cached.Items, 1)

	_, err = svc.Create(ctx, dto.AssignmentCreateRequest{Title: "Third"}, AdminActor)
	require.NoError(t, err)
	fresh, err := svc.List(ctx, dto.AssignmentListRequest{})
	require.NoError(t, err)
	require.Len(t, fresh.Items, 3)
}

func TestAssignmentUpdateRebalancesWhenTotalChanges(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()
	svc := newAssignmentServiceForTest(f)

	created, err := svc.Create(ctx, dto.AssignmentCreateRequest{Title: "Geometry"}, AdminActor)
	require.NoError(t, err)
	f.addChoiceQuestions(t, created.ID, "A", "B", "C")
	f.notifier.calls = nil

	title := "Geometry II"
	updated, err := svc.Update(ctx, created.ID, dto.AssignmentUpdateRequest{Title: &title}, AdminActor)
	require.NoError(t, err)
	require.Equal(t, "Geometry II", updated.Title)
	require.Empty(t, f.notifier.calls)

	total := 100.0
	minutes := 45
	updated, err = svc.Update(ctx, created.ID, dto.AssignmentUpdateRequest{TotalScore: &total, DurationMinutes: &minutes}, AdminActor)
	require.NoError(t, err)
	require.Equal(t, 100.0, updated.TotalScore)
	require.Equal(t, 45, *updated.DurationMinutes)
	require.Equal(t, []uint{created.ID}, f.notifier.calls)

	questions, err := f.questions.ListByAssignment(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 33.33, questions[0].Points)
	require.Equal(t, 33.33, questions[1].Points)
	require.Equal(t, 33.34, questions[2].Points)

	_, err = svc.Update(ctx, 999, dto.AssignmentUpdateRequest{Title: &title}, AdminActor)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestAssignmentDeleteCascades(t *testing.T) {
	f := newQuizFixture(t)
	ctx := context.Background()
	svc := newAssignmentServiceForTest(f)

	assignment := f.createAssignment(t, intPtr(10))
	questions := f.addChoiceQuestions(t, assignment.ID, "A")
	created, err := f.sessions.Create(ctx, dto.SessionCreateRequest{AssignmentID: assignment.ID, StudentName: "Rudi"})
	require.NoError(t, err)
	_, err = f.grading.Submit(ctx, dto.SubmissionCreateRequest{
		AssignmentID: assignment.ID,
		StudentName:  "Rudi",
		SessionID:    &created.SessionID,
		Answers:      map[string]string{questionKey(questions[0].ID): "A"},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, assignment.ID, AdminActor))
	require.ErrorIs(t, svc.Delete(ctx, assignment.ID, AdminActor), ErrAssignmentNotFound)

	for _, model := range []interface{}{&models.Question{}, &models.StudentSession{}, &models.Submission{}, &models.SubmissionAttempt{}, &models.Answer{}} {
		var count int64
		require.NoError(t, f.db.Model(model).Count(&count).Error)
		require.Zero(t, count)
	}

	logs, err := f.activity.List(ctx, dto.AdminActivityListRequest{Action: "assignment.deleted"})
	require.NoError(t, err)
	require.Len(t, logs.Items, 1)
}
