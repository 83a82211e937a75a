package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"integrationhub/internal/api"
	"integrationhub/internal/config"
	"integrationhub/internal/entity"
	"integrationhub/internal/hub"
	"integrationhub/internal/mqtt"

	_ "integrationhub/internal/integrations/automower"
	_ "integrationhub/internal/integrations/plant"
	_ "integrationhub/internal/integrations/teslemetry"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	configDir := os.Getenv(config.EnvConfigDir)
	if configDir == "" {
		configDir = "."
	}

	loader := config.NewLoader(configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	cfg := loader.Get()

	logger.Info("Starting integration hub",
		zap.String("config_dir", configDir),
		zap.Int("entries", len(cfg.Entries)),
		zap.Int("api_port", cfg.API.Port),
		zap.Bool("mqtt", cfg.MQTT.URL != ""))

	h, err := hub.New(hub.Options{
		Logger:  logger,
		Store:   entity.NewFileStore(cfg.RegistryPath),
		Entries: cfg.Entries,
	})
	if err != nil {
		logger.Fatal("Failed to create hub", zap.Error(err))
	}

	// The bridge follows the platform before setup so entities removed while
	// reconciling are cleared from the broker
	var bridge *mqtt.Bridge
	if cfg.MQTT.URL != "" {
		b, client, err := mqtt.Dial(cfg.MQTT, h.Numbers(), logger)
		if err != nil {
			// The hub stays useful over HTTP without the broker
			logger.Error("Failed to connect to MQTT broker", zap.Error(err))
		} else {
			bridge = b
			defer client.Disconnect(250)
		}
	}

	ctx := context.Background()
	if err := h.Start(ctx); err != nil {
		logger.Fatal("Failed to start hub", zap.Error(err))
	}

	server := api.NewServer(h, logger, cfg.API.Port)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start HTTP API server", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Application running. Press Ctrl+C to exit.")
	<-sigChan

	logger.Info("Shutting down gracefully...")

	if bridge != nil {
		bridge.Stop()
	}
	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop HTTP API server", zap.Error(err))
	}

	stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	h.Stop(stopCtx)
}
