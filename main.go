package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/config"
	"github.com/merchlens-io/merchlens-engine/pkg/database"
	"github.com/merchlens-io/merchlens-engine/pkg/handlers"
	"github.com/merchlens-io/merchlens-engine/pkg/logging"
	"github.com/merchlens-io/merchlens-engine/pkg/middleware"
	"github.com/merchlens-io/merchlens-engine/pkg/predictor"
	"github.com/merchlens-io/merchlens-engine/pkg/repositories"
	"github.com/merchlens-io/merchlens-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck // sync on shutdown is best-effort

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("redis", cfg.Redis.Addr()),
		zap.Bool("predictor", cfg.Predictor.IsAvailable()))

	ctx := context.Background()

	// Connect to PostgreSQL
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	// Run migrations through database/sql; the pgx pool handles queries.
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection",
			zap.String("error", logging.SanitizeError(err)))
	}
	if err := database.RunMigrations(sqlDB, "migrations", logger); err != nil {
		logger.Fatal("Failed to run migrations",
			zap.String("error", logging.SanitizeError(err)))
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	// Optional Redis dataset cache
	var cache *services.DatasetCache
	if cfg.Redis.Host != "" {
		redisClient, err := database.NewRedisClient(&cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis",
				zap.String("error", logging.SanitizeError(err)))
		}
		cache = services.NewDatasetCache(redisClient, cfg.Redis.TTL(), logger)
	} else {
		logger.Info("Redis not configured, dataset cache disabled")
		cache = services.NewDatasetCache(nil, 0, logger)
	}

	// Repositories
	schemaRepo := repositories.NewSchemaRepository(db)
	sourceRepo := repositories.NewSourceRepository(db)
	datasetRepo := repositories.NewDatasetRepository(db)
	metricRepo := repositories.NewMetricRepository(db)

	// Services
	schemaService := services.NewSchemaService(schemaRepo, sourceRepo, datasetRepo, cache, logger)
	sourceService := services.NewSourceService(sourceRepo, schemaRepo, cache, logger)
	importService := services.NewImportService(sourceRepo, schemaRepo, datasetRepo, cache, logger)
	datasetService := services.NewDatasetService(datasetRepo, schemaRepo, cache, logger)
	metricService := services.NewMetricService(metricRepo, logger)

	templateService, err := services.NewTemplateService(schemaService, logger)
	if err != nil {
		logger.Fatal("Failed to load schema templates", zap.Error(err))
	}

	// Optional churn predictor
	var predictorClient *predictor.Client
	if cfg.Predictor.IsAvailable() {
		predictorClient, err = predictor.NewClient(&predictor.Config{
			BaseURL: cfg.Predictor.BaseURL,
			Timeout: cfg.Predictor.Timeout(),
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create predictor client", zap.Error(err))
		}
	}
	analyticsService := services.NewAnalyticsService(datasetService, predictorClient, logger)

	// HTTP handlers
	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewSchemaHandler(schemaService, logger).RegisterRoutes(mux)
	handlers.NewSourceHandler(sourceService, importService, cfg.Import.MaxBodyBytes, logger).RegisterRoutes(mux)
	handlers.NewDatasetHandler(datasetService, logger).RegisterRoutes(mux)
	handlers.NewMetricHandler(metricService, logger).RegisterRoutes(mux)
	handlers.NewTemplateHandler(templateService, logger).RegisterRoutes(mux)
	handlers.NewAnalyticsHandler(analyticsService, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting merchlens-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))

	if cfg.TLSCertPath != "" {
		err = http.ListenAndServeTLS(addr, cfg.TLSCertPath, cfg.TLSKeyPath, handler)
	} else {
		err = http.ListenAndServe(addr, handler)
	}
	if err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// newLogger builds the process logger: human-readable in local
// development, JSON in deployed environments.
func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
