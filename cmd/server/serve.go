package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hospital-waiting-room/internal/database"
	"hospital-waiting-room/internal/handler"
	"hospital-waiting-room/internal/ledger"
	"hospital-waiting-room/internal/observability"
	"hospital-waiting-room/internal/relay"
	"hospital-waiting-room/internal/repository"
	"hospital-waiting-room/internal/service"
	"hospital-waiting-room/internal/waitingroom"
	"hospital-waiting-room/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func runServer() error {
	// 1. Load configuration, logging and the store
	cfg, db, err := setup()
	if err != nil {
		return err
	}
	defer database.Close(db)
	log.Info().Str("env", cfg.Server.Env).Msg("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	// 2. Initialize JWT utilities with config
	utils.InitJWT(cfg.JWT.AccessSecret, cfg.JWT.AccessTokenExpiry)

	if err := database.Migrate(db); err != nil {
		return err
	}

	// 3. Ledger adapter
	ledgerClient, err := ledger.New(ctx, cfg.Ledger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer ledgerClient.Close()

	// 4. Notification relay, bridged through redis when configured
	hub := relay.NewHub(cfg.Relay.Buffer)
	defer hub.Close()

	var publisher relay.Publisher = hub
	if cfg.Relay.RedisURL != "" {
		client, err := relay.NewRedisClient(ctx, cfg.Relay.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()

		bridge := relay.NewRedisBridge(client, cfg.Relay.Channel, hub)
		publisher = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("relay bridge stopped")
			}
		}()
		log.Info().Str("channel", cfg.Relay.Channel).Msg("relay bridged through redis")
	}

	// 5. Services
	userRepo := repository.NewUserRepo(db)
	auditRepo := repository.NewAuditRepo(db)

	authService := service.NewAuthService(userRepo, auditRepo)
	patientService := service.NewPatientService(repository.NewPatientRepo(db), auditRepo)
	visitService := newVisitService(cfg, db, publisher, ledgerClient)
	workerService := service.NewWorkerService(visitService, cfg.WaitingRoom.ReconcileInterval)

	if cfg.Bootstrap.AdminUsername != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminPassword); err != nil {
			log.Warn().Err(err).Msg("failed to bootstrap admin account")
		}
	}

	// 6. Background loops: waiting-room display and reconcile worker
	display := waitingroom.NewDisplay(hub, visitService, cfg.WaitingRoom.RefreshInterval)
	go func() {
		if err := display.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("waiting-room display stopped")
		}
	}()
	go workerService.Start(ctx)

	// 7. Router
	gin.SetMode(cfg.Server.GinMode)
	router := handler.NewRouter(cfg, handler.Handlers{
		Auth:        handler.NewAuthHandler(authService),
		Patients:    handler.NewPatientHandler(patientService, visitService),
		Visits:      handler.NewVisitHandler(visitService),
		WaitingRoom: handler.NewWaitingRoomHandler(display),
		Relay:       relay.NewWebSocketHandler(hub, cfg.RelayOrigins()).Serve,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// 8. Setup graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	// Stop background loops before draining requests
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info().Msg("server exited")
	return nil
}
