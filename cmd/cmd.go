package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nearish-backend/internal/config"
	"nearish-backend/internal/handlers"
	"nearish-backend/internal/middleware"
	"nearish-backend/internal/repository"
	"nearish-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Connect to database
	db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	// Initialize repositories
	authRepo := repository.NewAuthRepository(db)
	identityRepo := repository.NewIdentityRepository(db)
	gameRepo := repository.NewGameRepository(db)
	memoryRepo := repository.NewMemoryRepository(db)
	streakRepo := repository.NewStreakRepository(db)

	// Initialize services
	bus := services.NewEventBus()
	authService := services.NewAuthService(authRepo, cfg.Auth.StreamTokenSecret)
	identityService := services.NewIdentityService(identityRepo)
	pairingService := services.NewPairingService(identityRepo, bus)
	entitlementService := services.NewEntitlementService(identityRepo)
	generateService := services.NewGenerateService(cfg.LLM.APIKey, cfg.LLM.APIURL, cfg.LLM.Model)
	gameService := services.NewGameService(gameRepo, generateService, bus)
	dailyService := services.NewDailyService(gameRepo, bus)
	presenceService := services.NewPresenceService(identityRepo, bus)
	streakService := services.NewStreakService(streakRepo)
	memoryService, err := services.NewMemoryService(
		memoryRepo,
		authRepo,
		cfg.AWS.Region,
		cfg.AWS.S3Bucket,
		cfg.AWS.AccessKey,
		cfg.AWS.SecretKey,
		cfg.AWS.Endpoint,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create memory service")
	}
	pushService, err := services.NewPushService(cfg.APNS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create push service")
	}

	// Initialize handlers
	userHandler := handlers.NewUserHandler(identityService)
	partnerHandler := handlers.NewPartnerHandler(pairingService, pushService, bus)
	subscriptionHandler := handlers.NewSubscriptionHandler(entitlementService)
	gameHandler := handlers.NewGameHandler(gameService)
	dailyHandler := handlers.NewDailyHandler(dailyService)
	presenceHandler := handlers.NewPresenceHandler(presenceService)
	streakHandler := handlers.NewStreakHandler(streakService)
	memoryHandler := handlers.NewMemoryHandler(memoryService, pairingService)
	eventsHandler := handlers.NewEventsHandler(bus, authService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Event stream (authenticated by stream token in the query string)
		r.Get("/events", eventsHandler.ServeSSE)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(authService, identityService))

			r.Get("/user/me", userHandler.Me)
			r.Post("/user/push-token", userHandler.UpdatePushToken)

			r.Post("/partner/code", partnerHandler.IssueCode)
			r.Post("/partner/connect", partnerHandler.Connect)
			r.Post("/partner/disconnect", partnerHandler.Disconnect)
			r.Post("/partner/nudge", partnerHandler.Nudge)

			r.Post("/subscription", subscriptionHandler.Report)

			r.Post("/status", presenceHandler.UpdateStatus)
			r.Get("/status/partner", presenceHandler.PartnerStatus)
			r.Post("/location", presenceHandler.UpdateLocation)
			r.Get("/location/partner", presenceHandler.PartnerLocation)

			r.Post("/streak/check-in", streakHandler.CheckIn)

			r.Get("/memories", memoryHandler.List)
			r.Post("/memories", memoryHandler.Create)
			r.Post("/memories/upload-url", memoryHandler.UploadURL)
			r.Put("/memories/{memory_id}", memoryHandler.Update)
			r.Delete("/memories/{memory_id}", memoryHandler.Delete)

			r.Get("/games", gameHandler.ListGames)
			r.Post("/games/{game_id}/session", gameHandler.StartOrResume)
			r.Post("/games/{game_id}/session/restart", gameHandler.Restart)
			r.Get("/sessions/{session_id}", gameHandler.SessionView)
			r.Post("/sessions/{session_id}/answers", gameHandler.RecordAnswer)

			r.Get("/daily", dailyHandler.Today)
			r.Post("/daily/answer", dailyHandler.Answer)

			r.Get("/events/token", eventsHandler.StreamToken)
		})
	})

	// WebSocket route
	r.Get("/ws", eventsHandler.ServeWS)

	// Create HTTP server
	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Wake event-stream consumers so in-flight streams terminate
	bus.Shutdown()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

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

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
