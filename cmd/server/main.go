package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/config"
	"github.com/mamadbah2/piecework/internal/lock"
	"github.com/mamadbah2/piecework/internal/repository"
	"github.com/mamadbah2/piecework/internal/repository/jobcatalog"
	"github.com/mamadbah2/piecework/internal/repository/memory"
	"github.com/mamadbah2/piecework/internal/repository/mongodb"
	"github.com/mamadbah2/piecework/internal/repository/sheets"
	"github.com/mamadbah2/piecework/internal/scheduler"
	"github.com/mamadbah2/piecework/internal/server/handlers"
	"github.com/mamadbah2/piecework/internal/server/router"
	jobssvc "github.com/mamadbah2/piecework/internal/service/jobs"
	ledgersvc "github.com/mamadbah2/piecework/internal/service/ledger"
	reconcilesvc "github.com/mamadbah2/piecework/internal/service/reconcile"
	reportingsvc "github.com/mamadbah2/piecework/internal/service/reporting"
	worklogsvc "github.com/mamadbah2/piecework/internal/service/worklog"
	whatsappclient "github.com/mamadbah2/piecework/pkg/clients/whatsapp"
	"github.com/mamadbah2/piecework/pkg/logger"
)

// stores bundles the persistence contracts served by one backend.
type stores interface {
	repository.LedgerStore
	repository.WorkLogStore
	repository.CatalogReader
	repository.Transactor
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	var store stores
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		baseLogger.Warn("using in-memory storage, data is lost on restart")
		store = memory.NewStore()
	default:
		mongoRepo, err := mongodb.NewMongoDBRepository(startCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName,
			mongodb.Options{Transactions: cfg.MongoDB.Transactions}, baseLogger.Named("repo.mongodb"))
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		store = mongoRepo
	}

	var rdb *redis.Client
	var locker lock.Locker = lock.NewLocalLocker(cfg.Redis.LockWait)
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		if err := rdb.Ping(startCtx).Err(); err != nil {
			baseLogger.Fatal("failed to connect redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		locker = lock.NewRedisLocker(rdb, cfg.Redis.LockTTL, cfg.Redis.LockWait, baseLogger.Named("lock.redis"))
		baseLogger.Info("redis job lock enabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		baseLogger.Warn("redis not configured, job lock is local to this instance")
	}

	var catalog jobcatalog.Catalog
	if cfg.JobCatalog.Enabled() {
		sqlCatalog, err := jobcatalog.NewSQLServerCatalog(startCtx, cfg.JobCatalog, baseLogger.Named("repo.jobcatalog"))
		if err != nil {
			// Catalog lookups answer 503 until the service is restarted with a reachable catalog.
			baseLogger.Error("job catalog unavailable", zap.Error(err))
		} else {
			defer func() { _ = sqlCatalog.Close() }()
			catalog = sqlCatalog
			if rdb != nil {
				catalog = jobcatalog.NewCachedCatalog(sqlCatalog, rdb, cfg.JobCatalog.CacheTTL, baseLogger.Named("repo.jobcatalog.cache"))
			}
		}
	} else {
		baseLogger.Warn("job catalog not configured, search and details are disabled")
	}

	ledgerSvc := ledgersvc.NewService(store, locker, baseLogger.Named("svc.ledger"))
	worklogSvc := worklogsvc.NewService(store, store, store, locker, baseLogger.Named("svc.worklog"))
	reconcileSvc := reconcilesvc.NewService(store, store, store, locker, baseLogger.Named("svc.reconcile"))
	jobsSvc := jobssvc.NewService(catalog, baseLogger.Named("svc.jobs"))

	var exporter reportingsvc.SummaryExporter
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(startCtx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		exporter = sheets.NewSummaryExporter(sheetsRepo, cfg.Sheets.SummaryRange)
	}

	var notifier reportingsvc.Notifier
	if cfg.WhatsApp.Enabled() {
		notifier = whatsappclient.NewNotifier(whatsappclient.NewClient(cfg.WhatsApp), cfg.WhatsApp.DigestRecipient)
	}

	auditSvc := reportingsvc.NewService(ledgerSvc, reconcileSvc, exporter, notifier, cfg.Reporting.AutoRepair, baseLogger.Named("svc.reporting"))

	sched, err := scheduler.NewScheduler(cfg.Reporting, auditSvc, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	engine := router.New(router.Handlers{
		Ledger:  handlers.NewLedgerHandler(ledgerSvc, reconcileSvc, baseLogger.Named("handlers.ledger")),
		Work:    handlers.NewWorkHandler(worklogSvc, baseLogger.Named("handlers.work")),
		Catalog: handlers.NewCatalogHandler(jobsSvc, baseLogger.Named("handlers.catalog")),
	}, baseLogger.Named("router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
