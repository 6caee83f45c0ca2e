package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/WeblateOrg/weblate-go/pkg/audit"
	"github.com/WeblateOrg/weblate-go/pkg/auth"
	"github.com/WeblateOrg/weblate-go/pkg/billing"
	"github.com/WeblateOrg/weblate-go/pkg/config"
	"github.com/WeblateOrg/weblate-go/pkg/observability"
	"github.com/WeblateOrg/weblate-go/pkg/search"
	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Error("Failed to ping database")
		os.Exit(1)
	}

	// Translation entities first: the access-control schema references
	// them.
	if err := trans.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Failed to run translation migrations")
		os.Exit(1)
	}
	if err := auth.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Failed to run access-control migrations")
		os.Exit(1)
	}

	dialect := search.DialectPostgres
	if cfg.Database.Driver == "sqlite3" {
		dialect = search.DialectSQLite
	}

	entities := trans.NewStore(db)
	authStore := auth.NewStore(db, entities)
	authStore.SetDialect(dialect)

	users, err := auth.NewUserCache(authStore, cfg.Auth.UserCacheSize)
	if err != nil {
		logger.WithError(err).Error("Failed to create user cache")
		os.Exit(1)
	}
	authStore.SetInvalidator(users)

	billingStore, err := billing.NewStore(db)
	if err != nil {
		logger.WithError(err).Error("Failed to set up billing")
		os.Exit(1)
	}
	billingService := billing.NewService(billingStore)

	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		logger.WithError(err).Error("Failed to set up audit logging")
		os.Exit(1)
	}
	defer auditLogger.Close()

	if err := auth.SetupGroups(ctx, authStore, cfg.Auth.UpdateBuiltins); err != nil {
		logger.WithError(err).Error("Failed to seed built-in roles and teams")
		os.Exit(1)
	}
	if _, err := authStore.EnsureAnonymousUser(ctx); err != nil {
		logger.WithError(err).Error("Failed to ensure the anonymous user")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	search.SetMetrics(metrics)

	checker := auth.NewChecker(auth.Options{
		Billing: billingService,
		Blocks:  authStore,
		Metrics: metrics,
	})

	router := mux.NewRouter()
	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	auth.NewHandlers(authStore, entities, checker, users, auditLogger).RegisterRoutes(router)
	search.NewHandlers(entities, authStore, dialect, metrics).RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db))
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.MetricsHandler(registry))
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	sweeper := cron.New()
	_, err = sweeper.AddFunc(cfg.Auth.SweepSchedule, func() {
		defer observability.RecoverPanic(logger, "maintenance sweep")
		sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if n, err := authStore.DeleteExpiredBlocks(sweepCtx); err != nil {
			logger.WithError(err).Error("Expired block sweep failed")
		} else if n > 0 {
			metrics.ExpiredBlocksDeleted.Add(float64(n))
			logger.WithField("count", n).Info("Removed expired user blocks")
		}

		if n, err := authStore.DeleteStaleInvitations(sweepCtx, cfg.Auth.InvitationMaxAge); err != nil {
			logger.WithError(err).Error("Stale invitation sweep failed")
		} else if n > 0 {
			metrics.StaleInvitationsDeleted.Add(float64(n))
			logger.WithField("count", n).Info("Removed stale invitations")
		}

		metrics.UpdateDBStats(db.Stats())
	})
	if err != nil {
		logger.WithError(err).Errorf("Invalid sweep schedule %q", cfg.Auth.SweepSchedule)
		os.Exit(1)
	}
	sweeper.Start()
	defer sweeper.Stop()

	var group errgroup.Group
	group.Go(func() error {
		logger.WithField("addr", server.Addr).Info("Starting access-control server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Starting health and metrics server")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
		shutdown.RegisterShutdownFunc(healthServer.Shutdown)
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			sweeper.Stop()
			return nil
		})
		return shutdown.WaitForShutdown()
	})

	if err := group.Wait(); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
