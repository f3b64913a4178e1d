// Package main запускает HTTP-сервер хранения коллекций.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/ludex-store/internal/config"
	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/handler"
	"github.com/mmeshcher/ludex-store/internal/memstore"
	"github.com/mmeshcher/ludex-store/internal/middleware"
	"github.com/mmeshcher/ludex-store/internal/reminder"
	"github.com/mmeshcher/ludex-store/internal/repository"
	"github.com/mmeshcher/ludex-store/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	var store gateway.Gateway
	if cfg.DatabaseURI == "" {
		sugar.Warn("DATABASE_URI is empty, collections are kept in memory")
		store = memstore.New()
	} else {
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI, logger)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		defer repo.Close()

		// Приём уведомлений триггеров для подписчиков /changes
		g.Go(func() error {
			return repo.Listen(ctx)
		})
		store = repo
	}

	svc := service.NewService(store, logger)

	if cfg.ReminderEnabled() {
		scheduler, err := reminder.NewScheduler(cfg.ReminderSchedule, reminder.NewDigest(store, logger), logger)
		if err != nil {
			sugar.Fatalw("reminder configuration error", "error", err.Error())
		}
		scheduler.Start()
		defer scheduler.Stop()
		sugar.Infow("subscription reminders scheduled", "schedule", cfg.ReminderSchedule)
	}

	accessKey := middleware.NewAccessKeyMiddleware(cfg.AccessKey)
	h := handler.NewHandler(svc, logger, accessKey)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Потоки /changes долгоживущие, поэтому WriteTimeout не задаётся.
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting store server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
