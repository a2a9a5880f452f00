package main

import (
	"errors"
	"fmt"

	"hospital-waiting-room/internal/config"
	"hospital-waiting-room/internal/database"
	"hospital-waiting-room/internal/ledger"
	"hospital-waiting-room/internal/observability"
	"hospital-waiting-room/internal/relay"
	"hospital-waiting-room/internal/repository"
	"hospital-waiting-room/internal/service"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the front desk API, relay and waiting-room display",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and bootstrap the admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := setup()
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.Migrate(db); err != nil {
				return err
			}

			if cfg.Bootstrap.AdminUsername == "" {
				log.Info().Msg("ADMIN_USERNAME not set, skipping admin bootstrap")
				return nil
			}
			auth := service.NewAuthService(repository.NewUserRepo(db), repository.NewAuditRepo(db))
			return auth.EnsureAdmin(cmd.Context(), cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminPassword)
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Finalize visits whose ledger write succeeded but store update did not",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := setup()
			if err != nil {
				return err
			}
			defer database.Close(db)

			ctx := cmd.Context()
			ledgerClient, err := ledger.New(ctx, cfg.Ledger)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer ledgerClient.Close()

			hub := relay.NewHub(cfg.Relay.Buffer)
			defer hub.Close()

			visits := newVisitService(cfg, db, hub, ledgerClient)
			n, err := visits.ReconcilePending(ctx)
			if err != nil {
				return err
			}
			log.Info().Int("reconciled", n).Msg("reconcile pass finished")
			return nil
		},
	}
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the external ledger",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Walk the local hash chain and check every link",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			observability.InitLogger(cfg.Telemetry.ServiceName, cfg.IsDev(), cfg.Server.LogLevel)
			if cfg.Ledger.Driver != config.LedgerDriverChain {
				return errors.New("ledger verify only supports the chain driver")
			}

			chain, err := ledger.OpenChain(cfg.Ledger.ChainPath)
			if err != nil {
				return err
			}
			defer chain.Close()

			blocks, err := chain.Verify(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Uint64("blocks", blocks).Str("path", cfg.Ledger.ChainPath).Msg("ledger chain verified")
			return nil
		},
	})
	return cmd
}

// setup loads config, initializes logging and opens the store
func setup() (*config.Config, *gorm.DB, error) {
	cfg := config.LoadConfig()
	observability.InitLogger(cfg.Telemetry.ServiceName, cfg.IsDev(), cfg.Server.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func newVisitService(cfg *config.Config, db *gorm.DB, publisher relay.Publisher, ledgerClient ledger.Client) *service.VisitService {
	return service.NewVisitService(service.VisitDeps{
		Visits:        repository.NewVisitRepo(db),
		Patients:      repository.NewPatientRepo(db),
		WaitingRoom:   repository.NewWaitingRoomRepo(db),
		Receipts:      repository.NewLedgerReceiptRepo(db),
		Audit:         repository.NewAuditRepo(db),
		Relay:         publisher,
		Ledger:        ledgerClient,
		DeskName:      cfg.WaitingRoom.DeskName,
		LedgerTimeout: cfg.Ledger.Timeout,
	})
}

