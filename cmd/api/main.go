// Package main is the entry point for the QuickServe Legal audit API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/anphiad-sys/QuickServeLegal/internal/api"
	"github.com/anphiad-sys/QuickServeLegal/internal/archive"
	"github.com/anphiad-sys/QuickServeLegal/internal/audit"
	"github.com/anphiad-sys/QuickServeLegal/internal/auth"
	"github.com/anphiad-sys/QuickServeLegal/internal/config"
	"github.com/anphiad-sys/QuickServeLegal/internal/db"
	"github.com/anphiad-sys/QuickServeLegal/internal/health"
	"github.com/anphiad-sys/QuickServeLegal/internal/idempotency"
	"github.com/anphiad-sys/QuickServeLegal/internal/jobs"
	"github.com/anphiad-sys/QuickServeLegal/internal/middleware"
	"github.com/anphiad-sys/QuickServeLegal/internal/tracing"
	"github.com/anphiad-sys/QuickServeLegal/migrations"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	if *help {
		fmt.Println("QuickServe Legal Audit API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (no-op provider when disabled)
	tracingProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "quickservelegal-audit",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Database + migrations
	openCtx, openCancel := context.WithTimeout(ctx, 30*time.Second)
	pool, err := db.Open(openCtx, db.Config{URL: cfg.DatabaseURL})
	openCancel()
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, migrations.FS); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	ledger := audit.NewPostgresLedger(pool, logger)

	// Redis is optional; rate limiting and idempotency fall back to
	// in-memory stores on a single instance without it.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid redis URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	var rateLimitStore middleware.RateLimitStore
	var idempotencyStore idempotency.Store
	if redisClient != nil {
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient)
		idempotencyStore = idempotency.NewRedisStore(redisClient, time.Duration(cfg.IdempotencyTTLHours)*time.Hour)
	} else {
		rateLimitStore = middleware.NewInMemoryRateLimitStore()
		idempotencyStore = idempotency.NewMemoryStore()
	}

	// Metrics
	registry := prometheus.NewRegistry()
	auditMetrics := audit.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	for name, register := range map[string]func(prometheus.Registerer) error{
		"audit": auditMetrics.Register,
		"http":  httpMetrics.Register,
		"jobs":  jobMetrics.Register,
	} {
		if err := register(registry); err != nil {
			logger.Error("failed to register metrics", "group", name, "error", err)
			os.Exit(1)
		}
	}

	// Archival (optional)
	var archiveSvc *archive.Service
	if cfg.ArchiveEnabled() {
		archiveSvc, err = archive.NewService(archive.ServiceConfig{
			BucketName:       cfg.ArchiveBucketName,
			AccessKeyID:      cfg.ArchiveAccessKeyID,
			SecretAccessKey:  cfg.ArchiveSecretAccessKey,
			Endpoint:         cfg.ArchiveEndpoint,
			URLExpiryMinutes: cfg.ArchivePresignTTLMinutes,
		})
		if err != nil {
			logger.Error("failed to initialize archive service", "error", err)
			os.Exit(1)
		}
	}

	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)

	auditHandlers := api.NewAuditHandlers(ledger, archiveSvc, auditMetrics)
	healthConfig := api.HealthHandlersConfig{DBChecker: health.NewDBChecker(pool)}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}
	healthHandlers := api.NewHealthHandlers(healthConfig)

	// Per-route middleware: auth on every audit route, rate limiting on
	// verification, idempotency replay on the append route.
	authn := middleware.Auth(jwtService)

	verifyLimit := middleware.DefaultVerifyLimit()
	if cfg.RateLimitRequests > 0 {
		verifyLimit.RequestsPerWindow = cfg.RateLimitRequests
	}
	if cfg.RateLimitWindowSeconds > 0 {
		verifyLimit.WindowDuration = time.Duration(cfg.RateLimitWindowSeconds) * time.Second
	}
	rateLimited := middleware.RateLimiter(rateLimitStore, verifyLimit, middleware.UserKeyFunc())

	idempotent := middleware.Idempotency(idempotencyStore, map[string]bool{"/audit/events": true})

	mux := http.NewServeMux()
	mux.Handle("POST /audit/events", idempotent(authn(http.HandlerFunc(auditHandlers.AppendEvent))))
	mux.Handle("GET /audit/documents/{id}", authn(http.HandlerFunc(auditHandlers.DocumentTrail)))
	mux.Handle("GET /audit/documents/{id}/export", authn(http.HandlerFunc(auditHandlers.DocumentExport)))
	mux.Handle("POST /audit/documents/{id}/archive", authn(http.HandlerFunc(auditHandlers.DocumentArchive)))
	mux.Handle("GET /audit/users/{id}", authn(http.HandlerFunc(auditHandlers.UserTrail)))
	mux.Handle("GET /audit/verify", rateLimited(authn(http.HandlerFunc(auditHandlers.Verify))))
	mux.Handle("GET /audit/tail", authn(http.HandlerFunc(auditHandlers.Tail)))
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			api.WriteError(w, r.Context(), http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"quickservelegal-audit-api","version":"1.0.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	// Outer chain, outermost first: RequestID -> Logging -> Tracing ->
	// HTTPMetrics -> CORS -> mux (per-route middleware above).
	var handler http.Handler = mux
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           3600,
	})(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Tracing("quickservelegal-audit")(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)

	// Background jobs
	if cfg.VerifyJobEnabled {
		verifyJob := audit.NewVerificationJob(audit.VerificationJobConfig{
			Ledger:   ledger,
			Logger:   logger,
			Interval: time.Duration(cfg.VerifyIntervalMinutes) * time.Minute,
			Metrics:  jobMetrics,
		})
		go verifyJob.Start(ctx)
	}

	cleanupJob := idempotency.NewCleanupJob(idempotency.CleanupJobConfig{
		Store:   idempotencyStore,
		Logger:  logger,
		Expiry:  time.Duration(cfg.IdempotencyTTLHours) * time.Hour,
		Metrics: jobMetrics,
	})
	go cleanupJob.Start(ctx)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down tracing", "error", err)
	}

	logger.Info("server stopped")
}
