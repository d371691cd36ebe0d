package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sumire/stressless/internal/config"
	"github.com/sumire/stressless/internal/domain"
	"github.com/sumire/stressless/internal/events"
	"github.com/sumire/stressless/internal/handler"
	"github.com/sumire/stressless/internal/logger"
	"github.com/sumire/stressless/internal/mailer"
	"github.com/sumire/stressless/internal/metrics"
	"github.com/sumire/stressless/internal/ml"
	"github.com/sumire/stressless/internal/repository"
	"github.com/sumire/stressless/internal/scheduler"
	"github.com/sumire/stressless/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	log := logger.NewJSONLogger(slog.LevelInfo)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := repository.Migrate(context.Background(), db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log.Info("database ready")

	metrics.Init()

	userRepo := repository.NewUserRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	testRepo := repository.NewTestRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	escalationRepo := repository.NewEscalationRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	resetRepo := repository.NewResetRepository(db)

	var mail mailer.Mailer
	if cfg.MailAPIKey != "" {
		mail = mailer.NewAPIMailer(cfg.MailBaseURL, cfg.MailAPIKey, cfg.MailFrom, "StressLess")
	} else {
		mail = &mailer.LogMailer{Log: log}
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer kp.Close()
		publisher = kp
	}

	var predictor ml.Predictor
	if cfg.PredictorURL != "" {
		predictor = ml.NewHTTPPredictor(cfg.PredictorURL)
	}

	authSvc := service.NewAuthService(userRepo, service.AuthConfig{
		JWTSecret:          cfg.JWTSecret,
		GoogleClientID:     cfg.GoogleClientID,
		GoogleClientSecret: cfg.GoogleClientSecret,
		FrontendURL:        cfg.FrontendURL,
	})
	scheduleSvc := service.NewScheduleService(scheduleRepo, log)
	testSvc := service.NewTestService(testRepo, assignmentRepo, escalationRepo, userRepo, predictor, publisher, log)
	passwordSvc := service.NewPasswordService(resetRepo, userRepo, mail, log)
	invitationSvc := service.NewInvitationService(assignmentRepo, userRepo, mail, log)

	authHandler := handler.NewAuthHandler(authSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc, cfg.DefaultTimezone)
	testHandler := handler.NewTestHandler(testSvc)
	notificationHandler := handler.NewNotificationHandler(notificationRepo)
	leaderHandler := handler.NewLeaderHandler(invitationSvc, escalationRepo, userRepo)
	passwordHandler := handler.NewPasswordHandler(passwordSvc)

	dispatcher := scheduler.New(scheduleRepo, publisher, log, cfg.PollInterval)
	dispatcher.Start()
	defer dispatcher.Stop()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewAppValidator()
	e.HTTPErrorHandler = handler.HTTPErrorHandler

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(handler.RequestLogger())
	e.Use(handler.Metrics())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentType},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.RegisterLeader)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.GET("/google", authHandler.GoogleRedirect)
	auth.GET("/google/callback", authHandler.GoogleCallback)

	api.POST("/password/forgot", passwordHandler.Forgot)
	api.POST("/password/verify", passwordHandler.Verify)
	api.POST("/password/reset", passwordHandler.Reset)
	api.POST("/invitations/accept", leaderHandler.AcceptInvite)

	protected := api.Group("", handler.JWTAuth(authSvc))
	protected.GET("/auth/me", authHandler.Me)
	protected.DELETE("/auth/me", authHandler.DeleteMe)

	leader := protected.Group("", handler.RequireRole(domain.RoleLeader))
	leader.POST("/schedules", scheduleHandler.Queue)
	leader.GET("/schedules/upcoming", scheduleHandler.Upcoming)
	leader.DELETE("/schedules/:id", scheduleHandler.Cancel)
	leader.GET("/team", leaderHandler.Team)
	leader.GET("/collaborators", leaderHandler.SearchCollaborators)
	leader.POST("/invitations", leaderHandler.Invite)
	leader.POST("/tests", testHandler.CreateDirect)
	leader.GET("/escalations", leaderHandler.Escalations)
	leader.PATCH("/escalations/:id/read", leaderHandler.MarkEscalationRead)

	collaborator := protected.Group("", handler.RequireRole(domain.RoleCollaborator))
	collaborator.GET("/tests/next", testHandler.NextPending)
	collaborator.GET("/tests/pending", testHandler.AllPending)
	collaborator.POST("/tests/complete", testHandler.Complete)
	collaborator.POST("/tests/analyze", testHandler.Analyze)
	collaborator.GET("/tests/history", testHandler.History)
	collaborator.GET("/notifications", notificationHandler.List)
	collaborator.PATCH("/notifications/:id/read", notificationHandler.MarkRead)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port)
		errCh <- e.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}
