package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/audit"
	"github.com/hms/hms/internal/domain/authorization"
	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/cart"
	"github.com/hms/hms/internal/domain/dispensing"
	"github.com/hms/hms/internal/domain/inventory"
	"github.com/hms/hms/internal/domain/medication"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/prescription"
	"github.com/hms/hms/internal/domain/referral"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/notification"
)

// logEmailSender and logSMSSender write outbound notifications to the
// structured log. Real SMTP and SMS gateways slot in behind the same
// interfaces without touching the wiring below.
type logEmailSender struct{ logger zerolog.Logger }

func (s logEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().Str("channel", "email").Str("to", to).Str("subject", subject).Str("body", body).Msg("notification")
	return nil
}

type logSMSSender struct{ logger zerolog.Logger }

func (s logSMSSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info().Str("channel", "sms").Str("to", to).Str("body", body).Msg("notification")
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital pharmacy and dispensing API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Transaction runners. Dispensing runs serializable so concurrent
	// executions against the same stock rows retry instead of interleaving.
	withTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	withSerializableTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithSerializableTx(ctx, pool, fn)
	}

	// Audit service first so the access middleware can record through it.
	auditRepo := audit.NewRepoPG(pool)
	auditSvc := audit.NewService(auditRepo, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(time.Duration(cfg.RequestTimeout) * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.JWTSecret),
		}))
	}

	e.Use(middleware.Audit(logger, auditSvc))

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	e.GET("/health", db.HealthHandler(pool))

	// Notifications flow through templates to the configured channels.
	notifier := notification.NewManager(
		logEmailSender{logger: logger},
		logSMSSender{logger: logger},
		notification.NewTemplateEngine(),
	)

	// -- Domain wiring --

	medSvc := medication.NewService(
		medication.NewRepoPG(pool),
		medication.NewCategoryRepoPG(pool),
		medication.NewSupplierRepoPG(pool),
	)
	medication.NewHandler(medSvc).RegisterRoutes(apiV1)

	patientSvc := patient.NewService(
		patient.NewRepoPG(pool),
		patient.NewWalletRepoPG(pool),
		patient.TxRunner(withTx),
	)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	alertRecipient := cfg.AlertRecipient
	if alertRecipient == "" {
		alertRecipient = "pharmacy-alerts"
	}
	inventorySvc := inventory.NewService(
		inventory.NewStoreRepoPG(pool),
		inventory.NewStockRepoPG(pool),
		inventory.NewTransferRepoPG(pool),
		inventory.NewPurchaseRepoPG(pool),
		medSvc,
		notifier,
		alertRecipient,
		inventory.TxRunner(withTx),
	)
	inventory.NewHandler(inventorySvc).RegisterRoutes(apiV1)

	authSvc := authorization.NewService(
		authorization.NewRepoPG(pool),
		patientSvc,
		notifier,
	)

	rxSvc := prescription.NewService(prescription.NewRepoPG(pool), authSvc, auditSvc)
	prescription.NewHandler(rxSvc).RegisterRoutes(apiV1)

	authorization.NewHandler(authSvc, rxSvc, authorization.TxRunner(withTx)).RegisterRoutes(apiV1)

	billingSvc := billing.NewService(
		billing.NewRepoPG(pool),
		billing.NewPaymentRepoPG(pool),
		patientSvc,
		rxSvc,
		billing.TxRunner(withTx),
	)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)

	cartRepo := cart.NewRepoPG(pool)
	cartSvc := cart.NewService(
		cartRepo,
		rxSvc,
		medSvc,
		patientSvc,
		inventorySvc,
		billingSvc,
		authSvc,
		auditSvc,
		cart.TxRunner(withTx),
	)
	cart.NewHandler(cartSvc).RegisterRoutes(apiV1)

	dispensingSvc := dispensing.NewService(
		dispensing.NewRepoPG(pool),
		cartRepo,
		cartSvc,
		rxSvc,
		inventorySvc,
		medSvc,
		patientSvc,
		notifier,
		auditSvc,
		dispensing.TxRunner(withSerializableTx),
	)
	dispensing.NewHandler(dispensingSvc).RegisterRoutes(apiV1)

	referralSvc := referral.NewService(
		referral.NewRepoPG(pool),
		authSvc,
		patientSvc,
		notifier,
		auditSvc,
	)
	referral.NewHandler(referralSvc, authSvc, referral.TxRunner(withTx)).RegisterRoutes(apiV1)

	audit.NewHandler(auditSvc).RegisterRoutes(apiV1)
	notification.NewHandler(notifier).RegisterRoutes(apiV1)

	// Start and wait for shutdown.
	go func() {
		addr := ":" + cfg.Port
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()
	logger.Info().Str("port", cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
