package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"xray-backend/internal/app"
	"xray-backend/internal/config"
	"xray-backend/internal/permissions"
	"xray-backend/pkg/backendserver"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "path to a YAML/JSON configuration file")
	socketPath := pflag.String("socket", "", "override the request socket path")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *socketPath != "" {
		cfg.Socket.Path = *socketPath
	}

	// Setup logger
	logger := app.SetupLogger(cfg.LogLevel, cfg.LogFile)

	// Setup permission controller
	permController := permissions.NewController(cfg.Socket.Group, cfg.Socket.SocketMode(), logger)
	if err := permController.RequireRoot(); err != nil {
		logger.Fatalf("Cannot start backend service: %v", err)
	}

	// Initialize dispatcher and server
	dispatcher := app.NewDispatcher(cfg, logger)
	server := backendserver.NewServer(cfg.Socket, dispatcher, permController, logger)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	logger.Infof("Starting xray backend (config %s)", cfg.Xray.ConfigPath)
	if err := server.Start(ctx); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
}
