package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/app"
	"github.com/rentaldesk/rentals/internal/config"
	"github.com/rentaldesk/rentals/internal/handler"
	"github.com/rentaldesk/rentals/internal/logging"
	"github.com/rentaldesk/rentals/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("RENTALS_CONFIG"), "path to a CUE config file")
	flag.Parse()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "rentals:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Env, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	handler.SetLogger(logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	}()

	logger.Info("rentals starting",
		zap.String("database", cfg.Database.Driver),
		zap.String("sessions", cfg.Sessions.Backend),
		zap.Bool("amqp", cfg.Events.AMQP.Enabled))
	return server.Run(ctx, a.ServerConfig(), server.NewRouter(a.Deps()), logger)
}
