package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/upb/hsn-classifier/auth"
	"github.com/upb/hsn-classifier/config"
	"github.com/upb/hsn-classifier/handlers"
	"github.com/upb/hsn-classifier/middleware"
	"github.com/upb/hsn-classifier/repositories/postgres"
	"github.com/upb/hsn-classifier/services/audit"
	"go.uber.org/zap"
)

// Version is overridden at build time with -ldflags "-X github.com/upb/hsn-classifier/app.Version=..."
var Version = "dev"

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Optional prediction history (nil when no database is configured)
	RepoFactory *postgres.RepositoryFactory
	DB          *postgres.DB
	History     *audit.AuditService

	// Classification core
	Pipeline *Pipeline

	// HTTP
	AuthMiddleware    *middleware.AuthMiddleware
	PredictionHandler *handlers.PredictionHandler
	BatchHandler      *handlers.BatchHandler
	HistoryHandler    *handlers.HistoryHandler
	HealthHandler     *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.HistoryEnabled() {
		if err := deps.initHistory(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize prediction history: %w", err)
		}
	} else {
		logger.Info("no database configured, prediction history disabled")
	}

	if err := deps.initPipeline(cfg); err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize classification pipeline: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.initHandlers(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Strings("providers", deps.Pipeline.Providers()),
		zap.Bool("history_enabled", deps.History != nil),
		zap.Bool("auth_enabled", deps.AuthMiddleware.Enabled()))
	return deps, nil
}

// initHistory connects to PostgreSQL, creates the schema and starts the history writer
func (d *Dependencies) initHistory(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(*cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.InitSchema(ctx); err != nil {
		factory.Close()
		return err
	}

	repos := factory.NewRepositories()
	history := audit.NewAuditService(repos.PredictionLogs, d.Logger, audit.DefaultConfig())
	if err := history.Start(); err != nil {
		factory.Close()
		return err
	}

	d.History = history
	return nil
}

func (d *Dependencies) initPipeline(cfg *config.Config) error {
	var (
		pipeline *Pipeline
		err      error
	)
	if d.History != nil {
		pipeline, err = NewPipeline(cfg, d.Logger, d.History)
	} else {
		pipeline, err = NewPipeline(cfg, d.Logger)
	}
	if err != nil {
		return err
	}

	d.Pipeline = pipeline
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	if !cfg.AuthEnabled() {
		d.Logger.Warn("AUTH_JWT_SECRET not set, API authentication disabled")
		d.AuthMiddleware = middleware.NewAuthMiddleware(nil, d.Logger)
		return nil
	}

	validator, err := auth.NewHMACValidator(auth.Config{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
	if err != nil {
		return err
	}

	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	return nil
}

func (d *Dependencies) initHandlers(cfg *config.Config) {
	d.PredictionHandler = handlers.NewPredictionHandler(d.Pipeline.Predictor, d.Logger)
	d.BatchHandler = handlers.NewBatchHandler(d.Pipeline.Batch, cfg.Batch.MaxUploadBytes, d.Logger)

	// Interfaces stay untyped nil when history is disabled
	var (
		history handlers.HistoryService
		stats   handlers.HistoryStats
		db      *sql.DB
	)
	if d.History != nil {
		history = d.History
		stats = d.History
		db = d.DB.DB
	}

	d.HistoryHandler = handlers.NewHistoryHandler(history, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(db, d.Pipeline, d.Pipeline.Metrics, stats, handlers.StatusInfo{
		Version:     Version,
		Environment: cfg.Environment,
		AuthEnabled: d.AuthMiddleware.Enabled(),
	}, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain pending history entries before the pool goes away
	if d.History != nil {
		timeout := 10 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.History.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop prediction history: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
