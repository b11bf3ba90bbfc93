package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/david/opportunity-importer/internal/app"
	"github.com/david/opportunity-importer/internal/config"
	"github.com/david/opportunity-importer/internal/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.NewLogger(&cfg.Logging, &cfg.App)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	srv, err := a.NewServer()
	if err != nil {
		lg.Fatal("Failed to build server", zap.Error(err))
	}
	srv.Echo.Server.ReadTimeout = cfg.Server.ReadTimeoutDuration()
	srv.Echo.Server.WriteTimeout = cfg.Server.WriteTimeoutDuration()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		lg.Info("Server starting", zap.String("addr", addr))
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("Server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("Graceful shutdown failed", zap.Error(err))
	}
}
