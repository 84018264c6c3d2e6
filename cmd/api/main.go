package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/heylo/heylo-auth/internal/handlers"
	"github.com/heylo/heylo-auth/internal/provider"
	"github.com/heylo/heylo-auth/internal/repository"
	"github.com/heylo/heylo-auth/internal/service"
	"github.com/heylo/heylo-auth/internal/sms"
	"github.com/heylo/heylo-auth/pkg/config"
	"github.com/heylo/heylo-auth/pkg/database"
	"github.com/heylo/heylo-auth/pkg/events"
	"github.com/heylo/heylo-auth/pkg/logger"
	mw "github.com/heylo/heylo-auth/pkg/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	cfg := config.Load()

	// Connect to database
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Connect to redis (rate limiting)
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("Invalid redis URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Initialize repositories
	otpRepo := repository.NewOTPRepository(pool)
	identityRepo := repository.NewIdentityRepository(pool)
	rateLimitRepo := repository.NewRateLimitRepository(rdb)

	// SMS sender
	var sender sms.Sender
	if cfg.SMS.DevMode || cfg.SMS.GatewayURL == "" {
		sender = sms.NewDevSender()
	} else {
		sender = sms.NewGatewaySender(cfg.SMS)
	}

	// Backing identity-provider sessions (best-effort)
	var sessions provider.Sessions = provider.Disabled{}
	if cfg.Provider.Enabled {
		sessions = provider.NewHTTPSessions(cfg.Provider)
	}

	// Initialize services
	authService := service.NewAuthService(otpRepo, identityRepo, sender, sessions, eventBus, cfg)

	// Background sweep of expired OTP codes, stopped on shutdown
	sweeper := service.NewSweeper(otpRepo, cfg.Cleanup.Interval)
	go sweeper.Run(ctx)

	// Initialize handlers
	h := handlers.New(authService, rateLimitRepo, cfg)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("auth"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Routes
	r.Route("/auth", func(r chi.Router) {
		r.With(h.SendOTPRateLimit()).Post("/send-otp", h.SendOTP)
		r.Post("/verify-otp", h.VerifyOTP)
		r.Post("/validate-session", h.ValidateSession)
	})

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down auth service...")
		cancel() // stops the sweeper

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Auth service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting auth service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Auth service error", "error", err)
		os.Exit(1)
	}
}
