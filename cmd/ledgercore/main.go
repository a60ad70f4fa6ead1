package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlaserp/ledgercore/internal/core/domain"
	portssvc "github.com/atlaserp/ledgercore/internal/core/ports/services"
	"github.com/atlaserp/ledgercore/internal/core/services"
	"github.com/atlaserp/ledgercore/internal/handlers"
	"github.com/atlaserp/ledgercore/internal/middleware"
	"github.com/atlaserp/ledgercore/internal/platform/config"
	"github.com/atlaserp/ledgercore/internal/repositories/database/pgsql"
	"github.com/atlaserp/ledgercore/pkg/database"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize database connection pool (for application use)
	dbPool, err := database.NewPgxPool(context.Background(), cfg.DatabaseURL, cfg.EnableDBCheck)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer dbPool.Close()
	logger.Info("Database connection pool established.")

	if err := runMigrations(cfg, logger); err != nil {
		logger.Error("Failed to apply migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Wire repositories and services
	repos := pgsql.NewRepositoryProvider(dbPool)
	policy := services.PostingPolicy{
		AllowDirectPost:   cfg.AllowDirectPost,
		DangerZoneActions: dangerZoneSet(cfg),
	}
	relayCfg := services.RelayConfig{
		PollInterval: cfg.RelayPollInterval,
		BatchSize:    cfg.RelayBatchSize,
		MaxAttempts:  cfg.RelayMaxAttempts,
		ReclaimAfter: cfg.RelayReclaimAfter,
	}
	container := services.NewServiceContainer(repos, policy, relayCfg, logger)

	// The default delivery target is the log stream. Deployments that feed a
	// broker register their own handlers here instead.
	registerOutboxHandlers(container, logger)

	relayCtx, cancelRelay := context.WithCancel(context.Background())
	container.Outbox.Start(relayCtx)

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery())
	r.Use(cors.Default())

	if err := r.SetTrustedProxies(nil); err != nil {
		logger.Error("Failed to set trusted proxies", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Rate limiting on the whole surface
	rate, err := limiter.NewRateFromFormatted(cfg.RateLimit)
	if err != nil {
		logger.Error("Invalid rate limit format", slog.String("rate_limit", cfg.RateLimit), slog.String("error", err.Error()))
		os.Exit(1)
	}
	r.Use(middleware.RateLimit(limiter.New(memory.NewStore(), rate)))

	handlers.RegisterRoutes(r, cfg, container)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to run", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Block until an interrupt, then drain: HTTP first, then the relay so
	// in-flight posts still get their outbox entries picked up.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", slog.String("error", err.Error()))
	}

	// Stop drains the in-flight batch before the context is cancelled, so
	// every claimed entry gets resolved rather than stranded in PROCESSING.
	container.Outbox.Stop()
	cancelRelay()
	logger.Info("Server exited")
}

func dangerZoneSet(cfg *config.Config) map[string]bool {
	set := make(map[string]bool, len(cfg.DangerZoneActions))
	for _, action := range cfg.DangerZoneActions {
		set[action] = true
	}
	return set
}

// registerOutboxHandlers binds the built-in delivery targets for posting
// notifications.
func registerOutboxHandlers(container *portssvc.ServiceContainer, logger *slog.Logger) {
	logDelivery := func(ctx context.Context, entry domain.OutboxEntry) error {
		logger.Info("Outbox entry delivered",
			slog.Int64("sequence_no", entry.SequenceNo),
			slog.String("event_type", entry.EventType),
			slog.String("tenant_id", entry.TenantID),
			slog.String("aggregate_id", entry.AggregateID),
			slog.String("payload", string(entry.Payload)),
		)
		return nil
	}
	container.Outbox.RegisterHandler("document.posted", logDelivery)
	container.Outbox.RegisterHandler("document.reversed", logDelivery)
}

func runMigrations(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Running database migrations...")
	// Open a temporary standard sql.DB connection for migrations, using the
	// pgx stdlib driver to stay compatible with the main pool.
	migrationDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := migrationDB.Close(); cerr != nil {
			logger.Error("Error closing migration DB connection", slog.String("error", cerr.Error()))
		}
	}()
	if err := migrationDB.Ping(); err != nil {
		return err
	}

	driver, err := postgres.WithInstance(migrationDB, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		return err
	}

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return upErr
	}

	sourceErr, dbErr := m.Close()
	if sourceErr != nil {
		return sourceErr
	}
	if dbErr != nil {
		return dbErr
	}

	if errors.Is(upErr, migrate.ErrNoChange) {
		logger.Info("No new migrations to apply.")
	} else {
		logger.Info("Database migrations applied successfully.")
	}
	return nil
}
