package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	clts "polytracker/clients"
	"polytracker/config"
	"polytracker/internal/app"

	"go.uber.org/zap"
)

func main() {
	// Load config from .env and environment variables
	cfg := config.Load()

	logger, err := newLogger(cfg.IsProd)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting polytracker", zap.Bool("isProd", cfg.IsProd))

	if result := cfg.Validate(); !result.Valid {
		for _, e := range result.Errors {
			logger.Error("invalid config", zap.String("field", e.Field), zap.String("message", e.Message))
		}
		logger.Fatal("refusing to start with invalid config")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	logger.Info("instantiating clients")
	clients, err := clts.NewClients(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("failed to create clients", zap.Error(err))
	}
	defer clients.Close()

	runner := app.NewRunner(clients, cfg, app.NewMetrics())
	if err := runner.Run(ctx); err != nil {
		logger.Fatal("runner failed", zap.Error(err))
	}
}

func newLogger(isProd bool) (*zap.Logger, error) {
	if isProd {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
