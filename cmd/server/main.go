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
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	"github.com/statusbeacon/bridge-server-go/internal/database"
	"github.com/statusbeacon/bridge-server-go/internal/handler"
	"github.com/statusbeacon/bridge-server-go/internal/jobs"
	"github.com/statusbeacon/bridge-server-go/internal/middleware"
	"github.com/statusbeacon/bridge-server-go/internal/realtime"
	"github.com/statusbeacon/bridge-server-go/internal/redis"
	"github.com/statusbeacon/bridge-server-go/internal/repository"
	"github.com/statusbeacon/bridge-server-go/internal/service"
	"github.com/statusbeacon/bridge-server-go/internal/token"
	"github.com/statusbeacon/bridge-server-go/internal/vault"
	"github.com/statusbeacon/bridge-server-go/internal/webex"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Local dev convenience; ignored when no .env exists.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
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

	deviceRepo := repository.NewDeviceRepository(db.DB)
	pairingCodeRepo := repository.NewPairingCodeRepository(db.DB)
	pairingRepo := repository.NewPairingRepository(db.DB)
	commandRepo := repository.NewCommandRepository(db.DB)
	membershipRepo := repository.NewMembershipRepository(db.DB)
	oauthTokenRepo := repository.NewOAuthTokenRepository(db.DB)
	oauthNonceRepo := repository.NewOAuthNonceRepository(db.DB)
	adminUserRepo := repository.NewAdminUserRepository(db.DB)
	adminSessionRepo := repository.NewAdminSessionRepository(db.DB)

	broker := realtime.NewBroker(redisClient)
	defer broker.Close()
	notifier := realtime.NewNotifier(broker)

	signer, err := token.NewSigner(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token signer")
	}
	verifier, err := token.NewVerifier(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token verifier")
	}

	secretVault := vault.NewPostgresVault(db.DB, cfg.EncryptionKey)
	webexClient := webex.NewClient(cfg)

	codeService := service.NewPairingCodeService(pairingCodeRepo, deviceRepo)
	issuer := service.NewTokenIssuer(codeService, pairingCodeRepo, pairingRepo, signer, notifier)
	approvalService := service.NewDeviceApprovalService(codeService, deviceRepo, membershipRepo, pairingRepo, notifier)
	commandService := service.NewCommandService(commandRepo, deviceRepo, pairingRepo, notifier)
	presenceService := service.NewPresenceService(pairingRepo, deviceRepo)
	deviceAuthService := service.NewDeviceAuthService(deviceRepo, pairingRepo, signer)
	relayService := service.NewOAuthRelayService(
		oauthNonceRepo, oauthTokenRepo, deviceRepo, secretVault, webexClient, cfg.PublicBaseURL,
	)
	adminService := service.NewAdminService(adminUserRepo, adminSessionRepo, deviceRepo, codeService)
	if err := adminService.Bootstrap(context.Background(), cfg.AdminPasswordHash); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap admin account")
	}
	sweeper := service.NewSweeper(oauthTokenRepo, pairingRepo, secretVault, webexClient, redisClient, notifier)

	authMiddleware := middleware.NewAuthMiddleware(verifier)
	deviceSigMiddleware := middleware.NewDeviceSignatureMiddleware(deviceRepo)
	adminSessionMiddleware := middleware.NewAdminSessionMiddleware(adminSessionRepo)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	corsMiddleware := middleware.NewCORSMiddleware(
		cfg.CORSAllowedOrigins, cfg.CORSAllowedMethods, cfg.CORSAllowedHeaders,
	)

	tokenHandler := handler.NewTokenHandler(issuer, verifier)
	approvalHandler := handler.NewApprovalHandler(approvalService)
	commandHandler := handler.NewCommandHandler(commandService)
	stateHandler := handler.NewStateHandler(presenceService)
	eventsHandler := handler.NewEventsHandler(broker)
	oauthHandler := handler.NewOAuthHandler(relayService)
	deviceAPIHandler := handler.NewDeviceAPIHandler(deviceAuthService, commandService)
	adminHandler := handler.NewAdminHandler(adminService, sweeper, webexClient.Configured(), adminSessionMiddleware.Handler)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(corsMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		// Unauthenticated by design: the pairing code is the credential.
		r.Post("/token/exchange", tokenHandler.Exchange)

		// Browser-facing OAuth legs; the nonce carries the identity.
		r.Get("/oauth/authorize", oauthHandler.Authorize)
		r.Get("/oauth/callback", oauthHandler.Callback)

		// App surface.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Require(token.TypeApp))
			r.Use(rateLimitMiddleware.Handler)

			r.Post("/devices/approve", approvalHandler.Approve)
			r.Post("/commands", commandHandler.Enqueue)
			r.Post("/state", stateHandler.Update)
			r.Get("/state", stateHandler.Get)
		})

		// Event stream accepts either token type.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireAny())
			r.Get("/events", eventsHandler.ServeHTTP)
		})

		// OAuth relay start: any token; device callers additionally prove key
		// possession with a request signature. The signature check is optional
		// here because app callers share the route, the relay service enforces
		// that device tokens arrive with a verified serial.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireAny())
			r.Use(deviceSigMiddleware.Optional)
			r.Use(rateLimitMiddleware.Handler)
			r.Post("/oauth/start", oauthHandler.Start)
		})

		// Firmware surface.
		r.Group(func(r chi.Router) {
			r.Use(deviceSigMiddleware.Handler)
			r.Post("/device/auth", deviceAPIHandler.Authenticate)
		})
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Require(token.TypeDevice))
			r.Use(rateLimitMiddleware.Handler)
			r.Get("/device/commands", deviceAPIHandler.PollCommands)
			r.Post("/device/commands/ack", deviceAPIHandler.AckCommand)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Mount("/", adminHandler.Routes())
	})

	cleanupJob := jobs.NewCleanupJob(
		pairingCodeRepo, oauthNonceRepo, commandRepo, adminSessionRepo, config.CleanupJobInterval,
	)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	if webexClient.Configured() {
		sweepJob := jobs.NewSweepJob(sweeper, cfg.SweepInterval())
		sweepJob.Start()
		defer sweepJob.Stop()
	} else {
		log.Warn().Msg("webex client not configured, presence sweep disabled")
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
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
