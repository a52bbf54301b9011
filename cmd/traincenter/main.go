// Package main запускает HTTP-сервер сервиса учебного центра.
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

	"github.com/mkravets/traincenter-system/internal/cache"
	"github.com/mkravets/traincenter-system/internal/config"
	"github.com/mkravets/traincenter-system/internal/handler"
	"github.com/mkravets/traincenter-system/internal/middleware"
	"github.com/mkravets/traincenter-system/internal/notify"
	"github.com/mkravets/traincenter-system/internal/repository"
	"github.com/mkravets/traincenter-system/internal/service"
)

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

	var notifyClient *notify.Client
	if cfg.NotifySystemAddress != "" {
		notifyClient = notify.NewClient(cfg.NotifySystemAddress)
	}

	verifyCache := cache.New(cfg.RedisAddress)
	defer verifyCache.Close()

	svc := service.NewService(repo, notifyClient, verifyCache)
	defer svc.Close()

	secret := cfg.AuthSecret
	if secret == "" {
		secret = "traincenter-secret"
	}
	authMiddleware := middleware.NewAuthMiddleware(secret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновой рассылки уведомлений по очередям ожидания
	g.Go(func() error {
		svc.StartNotifyUpdates(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting traincenter server", "addr", cfg.RunAddress)
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
