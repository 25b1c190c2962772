package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/portagency/pdadesk/internal/app"
	"github.com/portagency/pdadesk/internal/audit"
	"github.com/portagency/pdadesk/internal/auth"
	"github.com/portagency/pdadesk/internal/calculations"
	"github.com/portagency/pdadesk/internal/masterdata"
	"github.com/portagency/pdadesk/internal/observability"
	"github.com/portagency/pdadesk/internal/pda"
	"github.com/portagency/pdadesk/internal/pilotage"
	"github.com/portagency/pdadesk/internal/platform/cache"
	"github.com/portagency/pdadesk/internal/platform/db"
	"github.com/portagency/pdadesk/internal/pricing"
	"github.com/portagency/pdadesk/internal/shared"
	"github.com/portagency/pdadesk/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLife})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// Rules fall back to the database when Redis is down.
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis unavailable, rule cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	pricingMetrics := pricing.NewMetrics(metrics.Registerer())

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobsClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTSecretAlt, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(dbpool), tokens)
	authHandler := auth.NewHandler(logger, authService)

	ruleCache := calculations.NewRuleCache(cache.NewVersioned(redisClient, "pdadesk", cfg.RuleCacheTTL))
	calcService := calculations.NewService(calculations.NewRepository(dbpool), ruleCache, jobsClient, logger)
	calcHandler := calculations.NewHandler(logger, calcService)

	pilotageService := pilotage.NewService(pilotage.NewRepository(dbpool), jobsClient, logger)
	pilotageHandler := pilotage.NewHandler(logger, pilotageService)

	masterService := masterdata.NewService(masterdata.NewRepository(dbpool), jobsClient, logger,
		masterdata.WithRuleInvalidator(ruleCache))
	masterHandler := masterdata.NewHandler(logger, masterService)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audit.NewHandler(logger, auditService)

	pdaService := pda.NewService(pda.Deps{
		Repo:     pda.NewRepository(dbpool),
		Rules:    calcService,
		PortData: masterService,
		Tariffs:  pilotageService,
		Engine:   pricing.NewEngine(logger, pricingMetrics),
		Events:   jobsClient,
		Keys:     shared.NewIdempotencyStore(dbpool),
		Logger:   logger,
	})
	pdaHandler := pda.NewHandler(logger, pdaService)

	jobHandler := jobs.NewHandler(inspector, logger).WithPruner(jobsClient, cfg.ActivityRetentionDays)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		DB:                  dbpool,
		Tokens:              tokens,
		Metrics:             metrics,
		AuthHandler:         authHandler,
		CalculationsHandler: calcHandler,
		PilotageHandler:     pilotageHandler,
		PDAHandler:          pdaHandler,
		MasterDataHandler:   masterHandler,
		AuditHandler:        auditHandler,
		JobHandler:          jobHandler,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
