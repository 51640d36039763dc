package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"instagram-webhook/config"
	"instagram-webhook/internal/server"
	"instagram-webhook/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("%v", err)
	}

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize server: %v", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := srv.Shutdown(); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
}
