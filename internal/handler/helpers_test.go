package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-quiz-api/internal/config"
	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/handler"
	"github.com/noah-isme/gema-quiz-api/internal/middleware"
	"github.com/noah-isme/gema-quiz-api/internal/models"
	"github.com/noah-isme/gema-quiz-api/internal/repository"
	"github.com/noah-isme/gema-quiz-api/internal/router"
	"github.com/noah-isme/gema-quiz-api/internal/service"
)

const (
	testAdminPassword = "correct horse battery"
	testJWTSecret     = "handler-test-secret"
)

type apiResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message"`
}

// quizApp is a fully wired API backed by SQLite and miniredis.
type quizApp struct {
	app         *fiber.App
	db          *gorm.DB
	mini        *miniredis.Miniredis
	assignments repository.AssignmentRepository
	questions   service.QuestionService
	sessions    service.SessionService
	auth        service.AdminAuthService
}

type appOptions struct {
	keepAlive    time.Duration
	pollInterval time.Duration
}

func setupQuizApp(t *testing.T) *quizApp {
	return setupQuizAppWithOptions(t, appOptions{})
}

func setupQuizAppWithOptions(t *testing.T, opts appOptions) *quizApp {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:handler_%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	if opts.keepAlive <= 0 {
		opts.keepAlive = 30 * time.Second
	}
	if opts.pollInterval <= 0 {
		opts.pollInterval = 3 * time.Second
	}

	log := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	activityService := service.NewActivityService(repository.NewActivityLogRepository(db), log)
	syncService := service.NewQuestionSyncService(assignmentRepo, questionRepo, nil, "", nil, log)
	assignmentService := service.NewAssignmentService(assignmentRepo, questionRepo, redisClient, time.Minute, validate, activityService, syncService, log)
	questionService := service.NewQuestionService(assignmentRepo, questionRepo, validate, activityService, syncService, log)
	sessionService := service.NewSessionService(assignmentRepo, sessionRepo, redisClient, validate, 2*time.Minute, log)
	draftService := service.NewDraftService(sessionRepo, redisClient, time.Hour, validate, log)
	submissionService := service.NewSubmissionService(questionRepo, sessionRepo, submissionRepo, service.NewLatch(redisClient), validate, activityService, log)
	deadlineService := service.NewDeadlineService(sessionRepo, submissionService, log)
	uploadService := service.NewUploadService(nil, repository.NewUploadRepository(db), 1, activityService, log)
	generationService := service.NewGenerationService(nil, questionService, validate, 1, log)
	maintenanceService := service.NewMaintenanceService(repository.NewMaintenanceRepository(db), validate, activityService, log)
	authService := service.NewAdminAuthService(string(hash), testJWTSecret, time.Hour, validate, activityService, log)

	app := fiber.New()
	app.Use(middleware.CorrelationID())

	router.Register(app, config.Config{AppName: "Quiz Test", AppEnv: "test"}, router.Dependencies{
		AssignmentHandler:       handler.NewAssignmentHandler(assignmentService, syncService, opts.keepAlive, log),
		SessionHandler:          handler.NewSessionHandler(sessionService, draftService, deadlineService, nil, log),
		SubmissionHandler:       handler.NewSubmissionHandler(submissionService, nil, log),
		AdminAuthHandler:        handler.NewAdminAuthHandler(authService, false, log),
		AdminAssignmentHandler:  handler.NewAdminAssignmentHandler(assignmentService, questionService, generationService, log),
		AdminActivityHandler:    handler.NewAdminActivityHandler(activityService, log),
		AdminMaintenanceHandler: handler.NewAdminMaintenanceHandler(maintenanceService, log),
		UploadHandler:           handler.NewUploadHandler(uploadService, log),
		LiveSessionHandler:      handler.NewLiveSessionHandler(sessionService, opts.pollInterval, log),
		AdminMiddleware:         middleware.AdminProtected(testJWTSecret),
	})

	return &quizApp{
		app:         app,
		db:          db,
		mini:        mini,
		assignments: assignmentRepo,
		questions:   questionService,
		sessions:    sessionService,
		auth:        authService,
	}
}

// seedAssignment stores an assignment with one multiple-choice question per key.
func (q *quizApp) seedAssignment(t *testing.T, durationMinutes *int, keys ...string) (uint, []dto.QuestionResponse) {
	t.Helper()

	assignment := models.Assignment{
		Title:           "Photosynthesis",
		Subject:         "Biology",
		TotalScore:      models.DefaultTotalScore,
		DurationMinutes: durationMinutes,
	}
	require.NoError(t, q.assignments.Create(context.Background(), &assignment))

	payloads := make([]dto.QuestionCreateRequest, 0, len(keys))
	for i, key := range keys {
		payloads = append(payloads, dto.QuestionCreateRequest{
			Type:          models.QuestionTypeMultipleChoice,
			Content:       fmt.Sprintf("Question %d", i+1),
			Options:       map[string]string{"A": "light", "B": "water", "C": "carbon", "D": "oxygen"},
			CorrectAnswer: key,
		})
	}

	var created []dto.QuestionResponse
	if len(payloads) > 0 {
		var err error
		created, err = q.questions.Import(context.Background(), assignment.ID, payloads, service.AdminActor)
		require.NoError(t, err)
	}

	return assignment.ID, created
}

func (q *quizApp) adminToken(t *testing.T) string {
	t.Helper()
	result, err := q.auth.Login(context.Background(), dto.AdminLoginRequest{Password: testAdminPassword})
	require.NoError(t, err)
	return result.Token
}

func (q *quizApp) do(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := q.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()

	schemaPath, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)

	schema, err := jsonschema.NewCompiler().Compile("file://" + filepath.ToSlash(schemaPath))
	require.NoError(t, err)
	return schema
}

func validateContract(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload), string(body))
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.ShutdownWithTimeout(time.Second)
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}

	return listener.Addr().String(), shutdown
}

func idPath(format string, id uint) string {
	return fmt.Sprintf(format, id)
}

func intPtr(v int) *int {
	return &v
}
