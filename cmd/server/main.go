package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Ehr051/MAIRA-sub004/internal/auth"
	"github.com/Ehr051/MAIRA-sub004/internal/config"
	"github.com/Ehr051/MAIRA-sub004/internal/handler"
	"github.com/Ehr051/MAIRA-sub004/internal/logger"
	"github.com/Ehr051/MAIRA-sub004/internal/middleware"
	"github.com/Ehr051/MAIRA-sub004/internal/repository/postgres"
	redisrepo "github.com/Ehr051/MAIRA-sub004/internal/repository/redis"
	"github.com/Ehr051/MAIRA-sub004/internal/scenario"
	"github.com/Ehr051/MAIRA-sub004/internal/service"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("databaseURL", cfg.DatabaseURL).Msg("Config loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Enable Redis keyspace notifications for turn timer expiry events.
	if err := redisClient.Underlying().ConfigSet(context.Background(), "notify-keyspace-events", "Ex").Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (turn expiry may not work)")
	}

	// Repos
	userRepo := postgres.NewUserRepo(db)
	sessionRepo := postgres.NewSessionRepo(db)
	turnRepo := postgres.NewTurnRepo(db)

	// Scenario catalog
	scenarios, err := scenario.LoadDir(cfg.ScenarioDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Scenario catalog load failed")
	}

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	googleOAuth := auth.NewGoogleOAuth(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
	)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	matches := service.NewMatchService(sessionRepo, turnRepo, redisClient, wsHub)
	sessionSvc := service.NewSessionService(sessionRepo, userRepo, scenarios, matches)

	// Timer listener (auto-advance on turn expiry)
	timerListener := service.NewTimerListener(redisClient.Underlying(), matches, turnRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(googleOAuth, jwtMgr, userRepo)
	userHandler := handler.NewUserHandler(userRepo)
	sessionHandler := handler.NewSessionHandler(sessionSvc, matches, wsHub)
	scenarioHandler := handler.NewScenarioHandler(scenarios)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr, matches)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth (public)
	mux.HandleFunc("GET /auth/google/login", authHandler.GoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", authHandler.GoogleCallback)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("GET /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /users/me", userHandler.GetMe)
	api.HandleFunc("PATCH /users/me", userHandler.UpdateMe)
	api.HandleFunc("GET /users/{id}", userHandler.GetUser)
	api.HandleFunc("GET /scenarios", scenarioHandler.ListScenarios)
	api.HandleFunc("GET /scenarios/{name}", scenarioHandler.GetScenario)
	api.HandleFunc("POST /sessions", sessionHandler.CreateSession)
	api.HandleFunc("GET /sessions", sessionHandler.ListSessions)
	api.HandleFunc("GET /sessions/{id}", sessionHandler.GetSession)
	api.HandleFunc("POST /sessions/{id}/join", sessionHandler.JoinSession)
	api.HandleFunc("POST /sessions/{id}/start", sessionHandler.StartSession)
	api.HandleFunc("POST /sessions/{id}/stop", sessionHandler.StopSession)
	api.HandleFunc("DELETE /sessions/{id}", sessionHandler.DeleteSession)
	api.HandleFunc("PATCH /sessions/{id}/players/{userId}/team", sessionHandler.UpdatePlayerTeam)
	api.HandleFunc("PATCH /sessions/{id}/players/{userId}/director", sessionHandler.SetDirector)
	api.HandleFunc("GET /sessions/{id}/state", sessionHandler.GetState)
	api.HandleFunc("POST /sessions/{id}/actions", sessionHandler.DispatchAction)
	api.HandleFunc("POST /sessions/{id}/orders/validate", sessionHandler.ValidateOrders)
	api.HandleFunc("POST /sessions/{id}/abort", sessionHandler.Abort)
	api.HandleFunc("GET /sessions/{id}/turns", sessionHandler.ListTurns)
	api.HandleFunc("GET /sessions/{id}/turns/{turnId}/orders", sessionHandler.TurnOrders)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Recover active sessions (rebuild live matches from persisted state)
	if err := matches.RecoverActiveSessions(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to recover active sessions (non-fatal)")
	}

	// Start background loops
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go matches.Run(ctx)
	go timerListener.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
