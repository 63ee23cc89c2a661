package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kapu/chesshall/internal/archive"
	appcfg "github.com/kapu/chesshall/internal/config"
	"github.com/kapu/chesshall/internal/httpapi"
	"github.com/kapu/chesshall/internal/hub"
	"github.com/kapu/chesshall/internal/match"
	"github.com/kapu/chesshall/internal/matchmaking"
	"github.com/kapu/chesshall/internal/obslog"
	"github.com/kapu/chesshall/internal/rules"
	"github.com/kapu/chesshall/internal/storage"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(obslog.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Caller: cfg.LogCaller,
	}); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	var durable storage.Store
	switch cfg.StorageBackend {
	case appcfg.BackendRedis:
		rs, err := storage.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis store init error", zap.Error(err))
		}
		defer rs.Close()
		durable = rs
	default:
		fs, err := storage.NewFileStore(cfg.DataDir)
		if err != nil {
			logger.Fatal("file store init error", zap.Error(err))
		}
		durable = fs
	}

	store := match.NewStore(rules.New(), durable)
	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive init error", zap.Error(err))
		}
		defer repo.Close()
		store.AttachArchiver(repo)
	}

	queue := matchmaking.NewQueue(store)
	rooms := hub.NewRooms(cfg.PingInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go rooms.Run(ctx)

	api := httpapi.NewServer(store, queue, rooms)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Routes(hub.NewHandler(store, rooms)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server_start",
			zap.String("addr", cfg.ListenAddr),
			zap.String("storage", cfg.StorageBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("server_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}
