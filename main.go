package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pokecare/config"
	"pokecare/handlers"
	"pokecare/middleware"
	"pokecare/models"
	"pokecare/services"
	"pokecare/utils"
	"pokecare/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pokecare",
		Short:         "PokeCare team service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.UserProfile{}, &models.TeamMember{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	// Evolution can produce a second row of a species the owner already has.
	if db.Migrator().HasIndex(&models.TeamMember{}, "idx_team_owner_species") {
		if err := db.Migrator().DropIndex(&models.TeamMember{}, "idx_team_owner_species"); err != nil {
			return fmt.Errorf("failed to drop species uniqueness index: %w", err)
		}
	}
	return nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the user_profiles and pokemon_team tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL environment variable not set")
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := openDB(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if err := migrate(db); err != nil {
				return err
			}
			logger.Info("✅ database migrated")
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var memory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), memory)
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "keep teams in process memory instead of PostgreSQL")
	return cmd
}

func serve(parent context.Context, memory bool) error {
	cfg, dotenv, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if !dotenv {
		logger.Info("⚠️  No .env file found, reading environment variables directly")
	}
	if err := cfg.RequireServe(memory); err != nil {
		return err
	}

	rules, err := services.LoadRules(cfg.RulesFile)
	if err != nil {
		return err
	}
	if cfg.DecayInterval > 0 {
		rules.DecayInterval = cfg.DecayInterval
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store    services.TeamStore
		profiles interface {
			services.ProfileStore
			workers.ProfileUpserter
		}
	)
	if memory {
		mem := services.NewMemoryTeamStore()
		store, profiles = mem, mem
		logger.Warn("🧪 running with in-memory team store, data is lost on exit")
	} else {
		db, err := openDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if err := migrate(db); err != nil {
			return err
		}
		store, profiles = services.NewGormTeamStore(db), services.NewProfileService(db)
	}

	var catalogOpts []services.CatalogOption
	if r2 := cfg.R2(); r2.Enabled() {
		mirror, err := utils.NewR2Mirror(ctx, r2)
		if err != nil {
			return err
		}
		catalogOpts = append(catalogOpts, services.WithSpriteMirror(mirror))
		logger.Info("✅ sprite mirror enabled", zap.String("bucket", r2.Bucket))
	}
	catalog := services.NewCatalogClient(cfg.PokeAPIBaseURL, cfg.CatalogCacheTTL, cfg.CatalogCacheSize, logger, catalogOpts...)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(registry)

	sessions := services.NewSessions(store, profiles, catalog, logger, metrics, services.WithRules(rules))
	defer sessions.Close()

	go workers.PollRosters(ctx, sessions, cfg.RosterSyncInterval, cfg.SessionIdleTimeout, logger)
	if cfg.SyncServiceURL != "" {
		syncWorker := workers.NewProfileSyncWorker(profiles, cfg.SyncServiceURL, cfg.ProfileSyncPath,
			cfg.GameServiceToken, cfg.ProfileSyncEvery, logger)
		go syncWorker.Run(ctx)
	} else {
		logger.Info("SYNC_SERVICE_URL not set, profile sync disabled")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,DELETE,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "sessions": sessions.Len()})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// 🔐❗ Everything below is Gateway-only.
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken, logger))
	handlers.SetupTeamRoutes(app, sessions, catalog, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.Addr())
	}()

	logger.Info("✅ Server running",
		zap.String("addr", cfg.Addr()),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
		zap.Duration("decay_interval", rules.DecayInterval),
		zap.Duration("roster_sync_interval", cfg.RosterSyncInterval))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	return nil
}
