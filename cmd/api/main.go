package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-quiz-api/internal/config"
	"github.com/noah-isme/gema-quiz-api/internal/database"
	"github.com/noah-isme/gema-quiz-api/internal/handler"
	"github.com/noah-isme/gema-quiz-api/internal/jobs"
	"github.com/noah-isme/gema-quiz-api/internal/middleware"
	"github.com/noah-isme/gema-quiz-api/internal/repository"
	"github.com/noah-isme/gema-quiz-api/internal/router"
	"github.com/noah-isme/gema-quiz-api/internal/service"
	"github.com/noah-isme/gema-quiz-api/pkg/ai"
	cloud "github.com/noah-isme/gema-quiz-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnLifetime,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL, 5*time.Second)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured, drafts and auto-submit latch use local fallbacks")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	var storage service.ImageStorage
	if uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger); err != nil {
		logger.Warn().Err(err).Msg("cloudinary disabled")
	} else {
		storage = uploader
	}

	var generator ai.Generator
	if cfg.OpenAIAPIKey != "" {
		openAI, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			Logger: logger,
		})
		if err != nil {
			log.Fatalf("failed to create question generator: %v", err)
		}
		generator = openAI
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	uploadRepo := repository.NewUploadRepository(db)
	maintenanceRepo := repository.NewMaintenanceRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	syncService := service.NewQuestionSyncService(assignmentRepo, questionRepo, redisClient, cfg.RealtimeChannel, natsConn, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, questionRepo, redisClient, cfg.AssignmentCacheTTL, validate, activityService, syncService, logger)
	questionService := service.NewQuestionService(assignmentRepo, questionRepo, validate, activityService, syncService, logger)
	sessionService := service.NewSessionService(assignmentRepo, sessionRepo, redisClient, validate, cfg.ActiveWindow, logger)
	draftService := service.NewDraftService(sessionRepo, redisClient, cfg.DraftCacheTTL, validate, logger)
	submissionService := service.NewSubmissionService(questionRepo, sessionRepo, submissionRepo, service.NewLatch(redisClient), validate, activityService, logger)
	deadlineService := service.NewDeadlineService(sessionRepo, submissionService, logger)
	uploadService := service.NewUploadService(storage, uploadRepo, cfg.UploadMaxSizeMB, activityService, logger)
	generationService := service.NewGenerationService(generator, questionService, validate, cfg.UploadMaxSizeMB, logger)
	maintenanceService := service.NewMaintenanceService(maintenanceRepo, validate, activityService, logger)
	adminAuthService := service.NewAdminAuthService(cfg.AdminPasswordHash, cfg.AdminJWTSecret, cfg.AdminSessionTTL, validate, activityService, logger)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	syncService.Start(rootCtx)

	scheduler, err := jobs.NewScheduler(jobs.Config{
		DeadlineSweep:        cfg.DeadlineSweepSchedule,
		Cleanup:              cfg.CleanupSchedule,
		CleanupRetentionDays: cfg.CleanupRetentionDays,
	}, deadlineService, maintenanceService, logger)
	if err != nil {
		log.Fatalf("failed to configure scheduler: %v", err)
	}
	scheduler.Start()

	submitLimiter := middleware.RateLimit("submit", cfg.SubmitRateLimit, time.Minute)
	draftLimiter := middleware.RateLimit("draft", cfg.SubmitRateLimit*6, time.Minute)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB*10 + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{
		Logger:       logger,
		AllowOrigins: cfg.CORSAllowOrigins,
		AccessLog:    cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler:       handler.NewAssignmentHandler(assignmentService, syncService, cfg.StreamKeepAlive, logger),
		SessionHandler:          handler.NewSessionHandler(sessionService, draftService, deadlineService, draftLimiter, logger),
		SubmissionHandler:       handler.NewSubmissionHandler(submissionService, submitLimiter, logger),
		AdminAuthHandler:        handler.NewAdminAuthHandler(adminAuthService, cfg.AppEnv == "production", logger),
		AdminAssignmentHandler:  handler.NewAdminAssignmentHandler(assignmentService, questionService, generationService, logger),
		AdminActivityHandler:    handler.NewAdminActivityHandler(activityService, logger),
		AdminMaintenanceHandler: handler.NewAdminMaintenanceHandler(maintenanceService, logger),
		UploadHandler:           handler.NewUploadHandler(uploadService, logger),
		LiveSessionHandler:      handler.NewLiveSessionHandler(sessionService, cfg.PollInterval, logger),
		AdminMiddleware:         middleware.AdminProtected(cfg.AdminJWTSecret),
		HealthChecks:            healthChecks(db, redisClient, natsConn),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, scheduler, cancelRoot)
}

func healthChecks(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) []handler.DependencyCheck {
	checks := []handler.DependencyCheck{{Name: "database", Probe: database.PingDatabase(db)}}
	if redisClient != nil {
		checks = append(checks, handler.DependencyCheck{Name: "redis", Optional: true, Probe: database.PingRedis(redisClient)})
	}
	if natsConn != nil {
		checks = append(checks, handler.DependencyCheck{Name: "nats", Optional: true, Probe: database.NATSStatus(natsConn)})
	}
	return checks
}

func waitForShutdown(app *fiber.App, scheduler *jobs.Scheduler, cancelRoot context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	scheduler.Stop(ctx)
	cancelRoot()

	log.Println("server stopped")
}
