package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stocktake-backend/api"
	"github.com/angelmondragon/stocktake-backend/api/routes"
	"github.com/angelmondragon/stocktake-backend/internal/audit"
	"github.com/angelmondragon/stocktake-backend/internal/auth"
	"github.com/angelmondragon/stocktake-backend/internal/catalog"
	"github.com/angelmondragon/stocktake-backend/internal/projection"
	"github.com/angelmondragon/stocktake-backend/internal/records"
	"github.com/angelmondragon/stocktake-backend/internal/users"
	"github.com/angelmondragon/stocktake-backend/pkg/auth/session"
	"github.com/angelmondragon/stocktake-backend/pkg/calendar"
	"github.com/angelmondragon/stocktake-backend/pkg/config"
	"github.com/angelmondragon/stocktake-backend/pkg/db"
	"github.com/angelmondragon/stocktake-backend/pkg/instance"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
	"github.com/angelmondragon/stocktake-backend/pkg/metrics"
	"github.com/angelmondragon/stocktake-backend/pkg/migrate"
	"github.com/angelmondragon/stocktake-backend/pkg/redis"
	"github.com/angelmondragon/stocktake-backend/pkg/security"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api exited with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = db.DriverSQLite
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	loc, err := cfg.Stocktake.Location()
	if err != nil {
		return err
	}
	cal := calendar.New(loc)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	workflowMetrics := metrics.NewWorkflowMetrics(registry)

	sink := audit.NewSink(audit.SinkParams{
		Repo:    audit.NewRepository(dbClient.DB()),
		Logger:  logg,
		Metrics: workflowMetrics,
	})
	hasher := security.NewHasher(cfg.Password)
	userRepo := users.NewRepository(dbClient.DB())

	userService, err := users.NewService(users.ServiceParams{
		Repo:   userRepo,
		Hasher: hasher,
		Audit:  sink,
		Logger: logg,
	})
	if err != nil {
		return err
	}

	if cfg.Bootstrap.Enabled() {
		admin, err := userService.EnsureAdmin(ctx, cfg.Bootstrap.AdminName, cfg.Bootstrap.AdminPassword)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "admin", admin.Name), "bootstrap admin ready")
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		Hasher:         hasher,
		Audit:          sink,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		return err
	}

	catalogService, err := catalog.NewService(catalog.ServiceParams{
		Repo:      catalog.NewRepository(dbClient.DB()),
		DB:        dbClient,
		Calendar:  cal,
		Audit:     sink,
		Logger:    logg,
		Metrics:   workflowMetrics,
		BatchSize: cfg.Stocktake.InsertBatchSize,
	})
	if err != nil {
		return err
	}

	recordService, err := records.NewService(records.ServiceParams{
		Repo:     records.NewRepository(dbClient.DB()),
		DB:       dbClient,
		Calendar: cal,
		Audit:    sink,
		Logger:   logg,
		Metrics:  workflowMetrics,
	})
	if err != nil {
		return err
	}

	projectionService, err := projection.NewService(projection.ServiceParams{
		Repo:     projection.NewRepository(dbClient.DB()),
		Users:    userRepo,
		Calendar: cal,
	})
	if err != nil {
		return err
	}

	handler := routes.NewRouter(routes.Deps{
		Config:      cfg,
		Logger:      logg,
		Calendar:    cal,
		DBPinger:    dbClient,
		RedisPinger: redisClient,
		Sessions:    sessionManager,
		RateLimits:  redisClient,
		Idempotency: redisClient,
		Metrics:     workflowMetrics,
		Gatherer:    registry,
		Auth:        authService,
		Users:       userService,
		Catalog:     catalogService,
		Records:     recordService,
		Projection:  projectionService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"tz":       loc.String(),
	})

	server := api.NewServer(addr, handler)
	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-serveErr
}
