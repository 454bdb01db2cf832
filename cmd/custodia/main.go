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
	"golang.org/x/sync/errgroup"

	"github.com/custodia-wms/custodia/internal/app"
	"github.com/custodia-wms/custodia/internal/balances"
	"github.com/custodia-wms/custodia/internal/custody"
	"github.com/custodia-wms/custodia/internal/identity"
	"github.com/custodia-wms/custodia/internal/items"
	"github.com/custodia-wms/custodia/internal/masterdata"
	"github.com/custodia-wms/custodia/internal/movements"
	"github.com/custodia-wms/custodia/internal/platform/cache"
	"github.com/custodia-wms/custodia/internal/platform/db"
	"github.com/custodia-wms/custodia/internal/reconcile"
	"github.com/custodia-wms/custodia/internal/reports"
	"github.com/custodia-wms/custodia/internal/years"
	"github.com/custodia-wms/custodia/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionStore := identity.NewSessionStore(redisClient, cfg.SessionTTL)
	identityService := identity.NewService(identity.NewRepository(pool))
	identityHandler := identity.NewHandler(logger, identityService, sessionStore)

	itemsHandler := items.NewHandler(logger, items.NewService(items.NewRepository(pool)))
	movementsHandler := movements.NewHandler(logger, movements.NewService(movements.NewRepository(pool)))
	custodyHandler := custody.NewHandler(logger, custody.NewService(custody.NewRepository(pool)))
	reconcileHandler := reconcile.NewHandler(logger, reconcile.NewService(reconcile.NewRepository(pool)))
	balancesHandler := balances.NewHandler(logger, balances.NewService(balances.NewRepository(pool)))
	reportsHandler := reports.NewHandler(logger, reports.NewService(reports.NewRepository(pool)))
	masterDataHandler := masterdata.NewHandler(logger, masterdata.NewService(masterdata.NewRepository(pool)))
	yearsHandler := years.NewHandler(logger, years.NewService(years.NewRepository(pool)))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("build jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionStore:      sessionStore,
		YearSelector:      app.NewYearSelector(pool, cfg.DefaultFiscalYear),
		IdentityHandler:   identityHandler,
		ItemsHandler:      itemsHandler,
		MovementsHandler:  movementsHandler,
		CustodyHandler:    custodyHandler,
		ReconcileHandler:  reconcileHandler,
		BalancesHandler:   balancesHandler,
		ReportsHandler:    reportsHandler,
		MasterDataHandler: masterDataHandler,
		YearsHandler:      yearsHandler,
		JobsHandler:       jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
