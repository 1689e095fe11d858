package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/analytics"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/config"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/database"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/models"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/ratelimit"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/report"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
	log.Println("Server stopped")
}

// run returns instead of exiting so every deferred close runs on failure.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.JWTSecret == config.DevJWTSecret {
		log.Println("Warning: JWT_SECRET not set, using development secret")
	}

	// Error channel: stderr, plus a file when configured
	var reporter report.Reporter = report.NewLogReporter(nil)
	if cfg.ErrorLogPath != "" {
		fileReporter, closer, err := report.OpenFileReporter(cfg.ErrorLogPath)
		if err != nil {
			return fmt.Errorf("failed to open error log: %w", err)
		}
		defer closer.Close()
		reporter = fileReporter
	}

	// Connect to database
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)
	log.Printf("Connected to %s database", database.DetectDriver(cfg.DatabaseURL))

	// Run auto-migrations
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Database migrations completed")

	gormStore := store.NewGormStore(db, cfg.StoreTimeout)
	var linkStore store.LinkStore = gormStore

	// Optional Redis cache in front of redirects
	if cfg.RedisURL != "" {
		rdb, err := openRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer rdb.Close()
		linkStore = store.NewCachedStore(gormStore, rdb,
			store.WithCacheTTL(cfg.CacheTTL),
			store.WithCacheReporter(reporter),
		)
		log.Printf("Redirect cache enabled (ttl %s)", cfg.CacheTTL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var limiter *ratelimit.Store
	rps, burst, enabled, err := ratelimit.ParseRate(cfg.AnonRateLimit)
	if err != nil {
		return fmt.Errorf("invalid ANON_RATE_LIMIT: %w", err)
	}
	if enabled {
		limiter = ratelimit.NewStore(rps, burst)
		limiter.StartJanitor(ctx)
		log.Printf("Anonymous rate limit: %.3g req/s, burst %d", rps, burst)
	}

	clicks := analytics.NewDispatcher(
		analytics.NewRecorder(gormStore, reporter),
		cfg.AnalyticsTimeout,
		cfg.AnalyticsWorkers,
		analytics.WithQueueSize(cfg.AnalyticsQueueSize),
	)
	// Let queued click recordings finish before the database closes.
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.AnalyticsTimeout+time.Second)
		defer cancel()
		if err := clicks.Close(drainCtx); err != nil {
			log.Printf("Warning: analytics still in flight at shutdown: %v", err)
		}
		if n := clicks.Dropped(); n > 0 {
			log.Printf("Warning: %d clicks dropped while the analytics queue was full", n)
		}
	}()

	if cfg.ReconcileSchedule != "" {
		reconciler := analytics.NewReconciler(gormStore, reporter)
		if err := reconciler.Start(cfg.ReconcileSchedule); err != nil {
			return fmt.Errorf("invalid RECONCILE_SCHEDULE: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.AnalyticsTimeout)
			defer cancel()
			_ = reconciler.Stop(stopCtx)
		}()
	}

	r, err := newRouter(deps{
		store:          linkStore,
		db:             gormStore,
		reporter:       reporter,
		clicks:         clicks,
		limiter:        limiter,
		secret:         []byte(cfg.JWTSecret),
		baseURL:        cfg.BaseURL,
		codeLength:     cfg.CodeLength,
		freeLimit:      cfg.FreeMonthlyLimit,
		redirectStatus: cfg.RedirectStatus,
		notFoundURL:    cfg.NotFoundURL,
		corsOrigins:    cfg.CORSOrigins,
		trustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Starting sniplinks server on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func openRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}
