package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/models"
	"github.com/noah-isme/gema-quiz-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mini, client
}

type recordingNotifier struct {
	calls []uint
}

func (n *recordingNotifier) NotifyQuestionsChanged(ctx context.Context, assignmentID uint) error {
	n.calls = append(n.calls, assignmentID)
	return nil
}

// quizFixture wires the attempt services against one database and Redis instance.
type quizFixture struct {
	db          *gorm.DB
	mini        *miniredis.Miniredis
	redis       *redis.Client
	validate    *validator.Validate
	assignments repository.AssignmentRepository
	questions   repository.QuestionRepository
	sessionRepo repository.SessionRepository
	submissions repository.SubmissionRepository
	activity    ActivityService
	notifier    *recordingNotifier
	authoring   QuestionService
	sessions    SessionService
	drafts      DraftService
	grading     SubmissionService
	deadlines   DeadlineService
}

func newQuizFixture(t *testing.T) *quizFixture {
	t.Helper()

	db := newTestDB(t)
	mini, client := newTestRedis(t)
	validate := validator.New(validator.WithRequiredStructEnabled())

	f := &quizFixture{
		db:          db,
		mini:        mini,
		redis:       client,
		validate:    validate,
		assignments: repository.NewAssignmentRepository(db),
		questions:   repository.NewQuestionRepository(db),
		sessionRepo: repository.NewSessionRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		notifier:    &recordingNotifier{},
	}
	f.activity = NewActivityService(repository.NewActivityLogRepository(db), testLogger())
	f.authoring = NewQuestionService(f.assignments, f.questions, validate, f.activity, f.notifier, testLogger())
	f.sessions = NewSessionService(f.assignments, f.sessionRepo, client, validate, 2*time.Minute, testLogger())
	f.drafts = NewDraftService(f.sessionRepo, client, time.Hour, validate, testLogger())
	f.grading = NewSubmissionService(f.questions, f.sessionRepo, f.submissions, NewLatch(client), validate, f.activity, testLogger())
	f.deadlines = NewDeadlineService(f.sessionRepo, f.grading, testLogger())
	return f
}

func (f *quizFixture) createAssignment(t *testing.T, durationMinutes *int) models.Assignment {
	t.Helper()

	assignment := models.Assignment{
		Title:           "Fractions",
		Subject:         "Math",
		TotalScore:      models.DefaultTotalScore,
		DurationMinutes: durationMinutes,
	}
	require.NoError(t, f.assignments.Create(context.Background(), &assignment))
	return assignment
}

// addChoiceQuestions adds multiple-choice questions whose keys are given in order.
func (f *quizFixture) addChoiceQuestions(t *testing.T, assignmentID uint, keys ...string) []dto.QuestionResponse {
	t.Helper()

	payloads := make([]dto.QuestionCreateRequest, 0, len(keys))
	for i, key := range keys {
		payloads = append(payloads, dto.QuestionCreateRequest{
			Type:    models.QuestionTypeMultipleChoice,
			Content: fmt.Sprintf("Question %d", i+1),
			Options: map[string]string{
				"A": "one",
				"B": "two",
				"C": "three",
				"D": "four",
			},
			CorrectAnswer: key,
		})
	}

	created, err := f.authoring.Import(context.Background(), assignmentID, payloads, AdminActor)
	require.NoError(t, err)
	require.Len(t, created, len(keys))
	return created
}

func (f *quizFixture) expireSession(t *testing.T, sessionID uint) {
	t.Helper()
	past := time.Now().Add(-time.Second).UTC()
	require.NoError(t, f.db.Model(&models.StudentSession{}).Where("id = ?", sessionID).Update("deadline_at", past).Error)
}

func intPtr(v int) *int {
	return &v
}

func questionKey(id uint) string {
	return fmt.Sprintf("%d", id)
}
