package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/classmark/attendance-server/internal/config"
	"github.com/classmark/attendance-server/internal/database"
	"github.com/classmark/attendance-server/internal/handler"
	"github.com/classmark/attendance-server/internal/jobs"
	"github.com/classmark/attendance-server/internal/redis"
	"github.com/classmark/attendance-server/internal/repository"
	"github.com/classmark/attendance-server/internal/service"
	"github.com/classmark/attendance-server/internal/store"
	"github.com/classmark/attendance-server/internal/token"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("APP_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	ephemeral := store.NewRedisStore(redisClient.Client)

	sessionRepo := repository.NewSessionRepository(db.DB)
	attendanceRepo := repository.NewAttendanceRepository(db.DB)
	studentRepo := repository.NewStudentRepository(db.DB)
	courseRepo := repository.NewCourseRepository(db.DB)
	sessionClassRepo := repository.NewSessionClassRepository(db.DB)

	minter, err := token.NewMinter(cfg.QRTokenSecret, cfg.QRTokenValidity(), cfg.NonceTTL(), ephemeral)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token minter")
	}

	lifecycle := service.NewLifecycleManager(
		db, sessionRepo, attendanceRepo, sessionClassRepo, minter, ephemeral,
		cfg.DefaultSessionDuration(),
	)
	validator := service.NewScanValidator(
		minter, ephemeral, sessionRepo, attendanceRepo, studentRepo, sessionClassRepo,
		service.Tolerances{
			ClockSkew:          time.Duration(cfg.ClockSkewToleranceMs) * time.Millisecond,
			LateWindow:         time.Duration(cfg.LateWindowMs) * time.Millisecond,
			MaxSubmissionDelay: time.Duration(cfg.MaxSubmissionDelayMs) * time.Millisecond,
		},
	)
	reports := service.NewReportService(sessionRepo, attendanceRepo, courseRepo)

	sessionHandler := handler.NewSessionHandler(lifecycle)
	scanHandler := handler.NewScanHandler(validator)
	reportHandler := handler.NewReportHandler(reports)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Mount("/scan", scanHandler.Routes())
		r.Get("/courses", reportHandler.TeacherCourses)
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/{sessionID}/report", reportHandler.SessionReport)
			r.Mount("/", sessionHandler.Routes())
		})
	})

	reconcileJob := jobs.NewReconcileJob(lifecycle, config.ReconcileJobInterval)
	reconcileJob.Start()
	defer reconcileJob.Stop()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		IdleTimeout: config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
