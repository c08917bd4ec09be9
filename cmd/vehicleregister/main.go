// Package main запускает HTTP-сервер системы регистрации транспортных средств.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/vehicle-register-system/internal/cache"
	"github.com/mmeshcher/vehicle-register-system/internal/config"
	"github.com/mmeshcher/vehicle-register-system/internal/handler"
	"github.com/mmeshcher/vehicle-register-system/internal/identity"
	"github.com/mmeshcher/vehicle-register-system/internal/middleware"
	"github.com/mmeshcher/vehicle-register-system/internal/repository"
	"github.com/mmeshcher/vehicle-register-system/internal/service"
)

const cacheJanitorInterval = time.Minute

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store cache.Store
	if cfg.CacheAddress != "" {
		redisStore, err := cache.NewRedisStore(cfg.CacheAddress)
		if err != nil {
			sugar.Fatalw("cache initialization error", "error", err.Error())
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		memStore := cache.NewMemoryStore()
		memStore.StartJanitor(ctx, cacheJanitorInterval)
		store = memStore
	}

	svc := service.NewService(repo, store, logger)
	defer svc.Close()

	users := identity.NewClient(cfg.UsersSystemAddress)
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret, users)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting vehicle register server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
