// Package main запускает HTTP-сервер витрины APSE.
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

	"github.com/mmeshcher/apse-storefront/internal/config"
	"github.com/mmeshcher/apse-storefront/internal/gateway"
	"github.com/mmeshcher/apse-storefront/internal/handler"
	"github.com/mmeshcher/apse-storefront/internal/metrics"
	"github.com/mmeshcher/apse-storefront/internal/middleware"
	"github.com/mmeshcher/apse-storefront/internal/repository"
	"github.com/mmeshcher/apse-storefront/internal/service"
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

	var gw service.Gateway
	if cfg.GatewayEnabled() {
		gw = gateway.NewClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	} else {
		sugar.Warn("razorpay keys are not set, gateway payments are disabled")
	}

	collectors := metrics.New()
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret, cfg.TokenTTL)

	svc := service.NewService(repo, gw, service.Options{
		Tokens:            authMiddleware,
		Metrics:           collectors,
		Logger:            logger,
		Currency:          cfg.Currency,
		CatalogCacheTTL:   cfg.CatalogCacheTTL,
		PendingPaymentTTL: cfg.PendingPaymentTTL,
	})
	defer svc.Close()

	h := handler.NewHandler(svc, logger, authMiddleware, collectors.Handler())

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновое закрытие просроченных платежей шлюза
	g.Go(func() error {
		svc.StartPendingExpiry(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting storefront server", "addr", cfg.RunAddress, "gateway", cfg.GatewayEnabled())
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
