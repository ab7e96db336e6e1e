package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bookdepot/coverdl/internal/config"
	"github.com/bookdepot/coverdl/internal/fetch"
	"github.com/bookdepot/coverdl/internal/imaging"
	"github.com/bookdepot/coverdl/internal/ratelimit"
	"github.com/bookdepot/coverdl/internal/server"
	"github.com/bookdepot/coverdl/internal/storage"
	"github.com/bookdepot/coverdl/internal/store"
	"github.com/bookdepot/coverdl/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[coverdld] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "coverdld", cfg.Trace, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	if err := imaging.Startup(); err != nil {
		logger.Fatalf("image runtime startup failed: %v", err)
	}
	defer imaging.Shutdown()

	normalizer, err := imaging.New()
	if err != nil {
		logger.Fatalf("normalizer setup failed: %v", err)
	}

	fetcher := fetch.NewClient(fetch.Config{
		Timeout:    cfg.Fetch.Timeout,
		MaxRetries: cfg.Fetch.MaxRetries,
		RetryDelay: cfg.Fetch.RetryDelay,
	})

	deps := server.Deps{
		Fetcher:    fetcher,
		Normalizer: normalizer,
		Defaults:   cfg.Pipeline,
		MaxUpload:  cfg.Server.MaxUploadBytes,
	}

	if cfg.Database.DSN != "" {
		history, err := store.NewPostgresRunStore(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatalf("postgres setup failed: %v", err)
		}
		defer func() {
			if err := history.Close(); err != nil {
				logger.Printf("postgres close error: %v", err)
			}
		}()
		deps.History = history
		logger.Printf("run history enabled")
	}

	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Printf("redis close error: %v", err)
			}
		}()

		limiter, err := ratelimit.NewRedisTokenBucket(
			redisClient,
			cfg.Server.RateLimitCapacity,
			cfg.Server.RateLimitWindow,
			"",
		)
		if err != nil {
			logger.Fatalf("rate limiter setup failed: %v", err)
		}
		deps.RateLimiter = limiter
		logger.Printf("rate limiting enabled capacity=%d window=%s", cfg.Server.RateLimitCapacity, cfg.Server.RateLimitWindow)
	}

	if cfg.Storage.Endpoint != "" {
		publisher, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			logger.Fatalf("object storage setup failed: %v", err)
		}
		if err := publisher.EnsureBucket(ctx); err != nil {
			logger.Fatalf("object storage bucket check failed: %v", err)
		}
		deps.Publisher = publisher
		logger.Printf("archive publishing enabled bucket=%s", publisher.Bucket())
	}

	app, err := server.NewServer(logger, deps)
	if err != nil {
		logger.Fatalf("server setup failed: %v", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}
