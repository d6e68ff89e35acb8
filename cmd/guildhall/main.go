// Command guildhall runs the role and permission governance API.
//
// All configuration comes from GUILDHALL_* environment variables, see
// pkg/config. The API listens on one port and the health/metrics
// endpoints on another, so probes and scrapes never pass through the
// authentication stack.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/guildhall-io/guildhall/pkg/api"
	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/authz"
	"github.com/guildhall-io/guildhall/pkg/config"
	"github.com/guildhall-io/guildhall/pkg/directory"
	"github.com/guildhall-io/guildhall/pkg/grants"
	"github.com/guildhall-io/guildhall/pkg/identity"
	"github.com/guildhall-io/guildhall/pkg/middleware"
	"github.com/guildhall-io/guildhall/pkg/notify"
	"github.com/guildhall-io/guildhall/pkg/observability"
	"github.com/guildhall-io/guildhall/pkg/requests"
	"github.com/guildhall-io/guildhall/pkg/storage/postgres"
)

// dbStatsInterval is how often connection pool gauges are refreshed.
const dbStatsInterval = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "guildhall: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithFields(map[string]interface{}{
		"port":        cfg.Server.Port,
		"health_port": cfg.Server.HealthPort,
		"auth_mode":   string(cfg.Auth.Mode),
	}).Info("starting guildhall")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing and OTLP metrics export, when enabled.
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("init opentelemetry: %w", err)
	}

	// Database.
	connConfig := postgres.DefaultConnectionConfig(cfg.Database.URL)
	connConfig.MaxConns = cfg.Database.MaxOpenConns
	connConfig.MinConns = cfg.Database.MaxIdleConns
	connConfig.Timeout = cfg.Database.Timeout

	db, err := postgres.Connect(ctx, connConfig)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	var migrations []postgres.Migration
	migrations = append(migrations, directory.Migrations()...)
	migrations = append(migrations, grants.Migrations()...)
	migrations = append(migrations, notify.Migrations()...)
	migrations = append(migrations, requests.Migrations()...)
	migrations = append(migrations, audit.Migrations()...)
	if err := postgres.RunMigrations(ctx, db, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database ready")

	// Optional Redis, used only by the rate limiter.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable at startup, rate limiter will fail open")
		}
	}

	// Token verification.
	var verifier identity.TokenVerifier
	switch cfg.Auth.Mode {
	case config.AuthModeOIDC:
		verifier, err = identity.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			return fmt.Errorf("configure OIDC verifier: %w", err)
		}
	case config.AuthModeStatic:
		logger.Warn("static token auth is enabled, do not use in production")
		verifier = identity.StaticVerifier(cfg.Auth.StaticTokens)
	}

	// Authorization policy, hot-reloaded on file change.
	policy, err := authz.LoadPolicy(cfg.Governance.PolicyPath)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	go func() {
		if err := policy.Watch(ctx, logger); err != nil {
			logger.WithError(err).Warn("policy watcher stopped")
		}
	}()

	// Prometheus metrics.
	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
		go pollDBStats(ctx, db, metrics)
	}

	var otelMetrics *observability.OTelMetrics
	if providers != nil {
		otelMetrics, err = observability.NewOTelMetrics()
		if err != nil {
			return fmt.Errorf("create otel metrics: %w", err)
		}
	}

	// Audit trail.
	var auditLogger audit.Logger
	var auditReader audit.Reader
	if cfg.Governance.AuditEnabled {
		dbLogger := audit.NewDBLogger(db)
		auditLogger = dbLogger
		auditReader = dbLogger

		sweeper := cron.New()
		_, err := sweeper.AddFunc(cfg.Governance.AuditSweepSchedule, func() {
			defer observability.RecoverPanic(logger, "audit retention sweep")
			sweepCtx, sweepCancel := context.WithTimeout(context.Background(), time.Minute)
			defer sweepCancel()

			deleted, err := dbLogger.Cleanup(sweepCtx, cfg.Governance.AuditRetention)
			if err != nil {
				logger.WithError(err).Error("audit retention sweep failed")
				return
			}
			if deleted > 0 {
				logger.WithField("deleted", deleted).Info("audit retention sweep complete")
			}
		})
		if err != nil {
			return fmt.Errorf("schedule audit sweep: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	var rateLimiter *middleware.RateLimiter
	if redisClient != nil {
		limitConfig := middleware.DefaultRateLimitConfig()
		limitConfig.RequestsPerWindow = cfg.Redis.RequestsPerMinute
		rateLimiter = middleware.NewRateLimiter(redisClient, limitConfig, logger)
	}

	server := api.NewServer(api.Options{
		DB:            db,
		Logger:        logger,
		Policy:        policy,
		Authenticator: identity.NewAuthenticator(verifier, db, logger),
		RateLimiter:   rateLimiter,
		Metrics:       metrics,
		OTelMetrics:   otelMetrics,
		Audit:         auditLogger,
		AuditReader:   auditReader,
	})

	// With tracing on, every request gets a server span and trace
	// context propagation.
	var handler http.Handler = server
	if providers != nil {
		handler = otelhttp.NewHandler(server, "guildhall.api")
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on their own listener.
	probeMux := http.NewServeMux()
	observability.RegisterHealthRoutes(probeMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(probeMux, registry)
	}
	probeServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      probeMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.WithField("addr", apiServer.Addr).Info("API listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		logger.WithField("addr", probeServer.Addr).Info("health and metrics listening")
		if err := probeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("probe server: %w", err)
		}
	}()

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(probeServer.Shutdown)
	shutdown.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
		cancel()
		return observability.ShutdownOTel(shutdownCtx, providers, logger)
	})

	waitCh := make(chan error, 1)
	go func() { waitCh <- shutdown.WaitForShutdown() }()

	select {
	case err := <-errCh:
		return err
	case err := <-waitCh:
		return err
	}
}

// pollDBStats mirrors the connection pool counters into Prometheus
// gauges until ctx is done.
func pollDBStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBStats(db.Stats())
		}
	}
}
