package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dukaanpos/backend/internal/cache"
	"dukaanpos/backend/internal/config"
	"dukaanpos/backend/internal/httpapi"
	"dukaanpos/backend/internal/logger"
	"dukaanpos/backend/internal/service"
	"dukaanpos/backend/internal/store"
	"dukaanpos/backend/internal/store/memory"
	pgstore "dukaanpos/backend/internal/store/postgres"
	"dukaanpos/backend/internal/store/reddoc"
)

func main() {
	cfg := config.Load()

	log, err := logger.Init(cfg.AppEnv)
	if err != nil {
		panic("logger init: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	switch cfg.Backend {
	case "postgres":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres unavailable", zap.Error(err))
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal("schema migration failed", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository ready", zap.String("backend", "postgres"))
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rd, err := reddoc.New(ctx, client)
		if err != nil {
			log.Fatal("redis unavailable", zap.Error(err))
		}
		repo = rd
		closers = append(closers, rd.Close)
		log.Info("repository ready", zap.String("backend", "redis"))
	default:
		repo = memory.NewSeeded()
		log.Info("repository ready", zap.String("backend", "memory"))
	}

	overview := cache.OverviewCache(cache.NoopOverviewCache{})
	if cfg.RedisAddr != "" && cfg.Backend != "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		redisCache := cache.NewRedisOverviewCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis cache unavailable, using noop cache", zap.Error(err))
		} else {
			overview = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("overview cache ready", zap.String("cache", "redis"))
		}
	}

	svc := service.New(repo, overview, log, service.Settings{
		DataSource: cfg.Backend,
		TaxPresets: cfg.TaxPresets,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.TokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}
