package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"stall-lottery/internal/cache"
	"stall-lottery/internal/config"
	"stall-lottery/internal/handler"
	"stall-lottery/internal/lottery"
	"stall-lottery/internal/middleware"
	"stall-lottery/internal/realtime"
	"stall-lottery/internal/repository"
	"stall-lottery/internal/router"
	"stall-lottery/internal/service"
	"stall-lottery/pkg/logger"
)

func main() {
	cfg := config.MustLoad()

	if err := logger.Init(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.App.Name,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Get()

	log.Info("starting stall lottery",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	registry, err := openRegistry(cfg.Registry)
	if err != nil {
		log.Fatal("failed to initialize registry", zap.String("type", cfg.Registry.Type), zap.Error(err))
	}
	defer registry.Close()

	lookupCache := openCache(cfg.Cache, log)
	defer lookupCache.Close()

	// Core + realtime
	engine := lottery.NewEngine(registry, nil)
	hub := realtime.NewHub()
	svc := service.NewLotteryService(engine, registry, lookupCache, cfg.Cache.TTL, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.Restore(ctx); err != nil {
		cancel()
		log.Fatal("failed to restore session", zap.Error(err))
	}
	cancel()

	var classSync *service.ClassSyncScheduler
	if cfg.Registry.SyncInterval > 0 {
		syncCfg := service.DefaultClassSyncConfig()
		syncCfg.Interval = cfg.Registry.SyncInterval
		classSync = service.NewClassSyncScheduler(registry, syncCfg)
		classSync.Start()
	}

	// Handlers
	r := router.New(router.Config{
		Handler:            handler.New(cfg.App.Name, cfg.App.Version, registry),
		LotteryHandler:     handler.NewLotteryHandler(svc),
		ParticipantHandler: handler.NewParticipantHandler(svc),
		StallClassHandler:  handler.NewStallClassHandler(svc),
		AdminHandler:       handler.NewAdminHandler(svc, hub, cfg.Registry.Type, cfg.App.LoginKey),
		Realtime:           realtime.NewServer(hub, svc, cfg.Realtime, cfg.App.LoginKey),
		AuthMiddleware:     middleware.NewOperatorAuth(cfg.App.LoginKey),
		AllowedOrigins:     cfg.Realtime.AllowedOrigins,
		WriteTimeout:       cfg.Server.WriteTimeout,
	})
	if cfg.App.LoginKey == "" {
		log.Warn("LOGIN_KEY is empty, operator routes are open")
	}

	srv := &http.Server{
		Addr:        cfg.Server.Address(),
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout is applied per route; a server-wide one would cut websockets.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", cfg.Server.Address()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel = context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if classSync != nil {
		classSync.Stop()
	}
	hub.CloseAll()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}

	log.Info("server stopped")
}

func openRegistry(cfg config.RegistryConfig) (repository.Registry, error) {
	switch cfg.Type {
	case "postgres", "postgresql":
		return repository.NewPostgresRegistry(cfg.PostgresDSN(), cfg.MaxOpenConns)
	case "mysql":
		return repository.NewMySQLRegistry(cfg.MySQLDSN(), cfg.MaxOpenConns)
	case "sqlite", "":
		return repository.NewSQLiteRegistry(cfg.Path)
	}
	return nil, fmt.Errorf("unsupported registry type %q", cfg.Type)
}

// openCache falls back to the in-process cache when Redis is unreachable.
func openCache(cfg config.CacheConfig, log *logger.Logger) cache.Cache {
	if cfg.Type == "redis" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.RedisAddress(),
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		if err == nil {
			log.Info("redis cache initialized", zap.String("addr", cfg.RedisAddress()))
			return rc
		}
		log.Warn("redis connection failed, using memory cache", zap.Error(err))
	}
	return cache.NewMemoryCache()
}
