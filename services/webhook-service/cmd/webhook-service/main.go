package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/storehook/libs/config"
	"github.com/md-rashed-zaman/storehook/libs/db"
	"github.com/md-rashed-zaman/storehook/libs/httpx"
	otelx "github.com/md-rashed-zaman/storehook/libs/otel"
	"github.com/md-rashed-zaman/storehook/libs/runtime"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/dispatch"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/handlers"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/hydrate"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/pipeline"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/storeapi"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/tenants"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "webhook-service")
	port, err := config.Port("PORT", "8086")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 600)
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "webhook-rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: rl.ReadyCheck()})
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	apiClient := storeapi.NewClient(
		config.String("STORE_API_BASE_URL", storeapi.DefaultBaseURL),
		config.Duration("STORE_API_TIMEOUT", 10*time.Second),
	)
	dispatcher := dispatch.New(
		config.String("DESTINATION_EVENTS_URL", dispatch.DefaultEventsURL),
		config.Duration("DESTINATION_TIMEOUT", 10*time.Second),
	)
	processor := pipeline.New(
		tenants.NewRepository(pool),
		hydrate.New(apiClient, hydrate.Config{
			AbandonedCartDelay: config.Duration("ABANDONED_CART_DELAY", hydrate.DefaultAbandonedCartDelay),
		}),
		dispatcher,
		logger,
		pipeline.Config{BackgroundTimeout: config.Duration("PIPELINE_TIMEOUT", 30*time.Second)},
	)
	h := handlers.New(processor, logger)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	bodyLimit := int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))
	mux.Handle("/webhook", h.Route(
		rateLimitMW,
		httpx.WithBodyLimit(bodyLimit),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 60*time.Second)),
	))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "webhook")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "destination", dispatcher.URL())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	if err := processor.Wait(shutdownCtx); err != nil {
		logger.Warn("background notifications still running at shutdown", "err", err)
	}
	logger.Info("http server stopped")
}
