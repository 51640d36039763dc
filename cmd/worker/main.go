package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"instagram-webhook/config"
	"instagram-webhook/internal/eventstore"
	"instagram-webhook/internal/queue"
	"instagram-webhook/internal/storage"
	"instagram-webhook/internal/worker"
	"instagram-webhook/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.NewLogger(cfg.LogLevel)
	defer logger.Sync()
	zl := logger.Desugar()

	if cfg.RabbitMQ.URL == "" {
		logger.Fatal("rabbitmq.url is required to run the activity worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	amqpConn, err := queue.Dial(cfg.RabbitMQ.URL, zl)
	if err != nil {
		logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer amqpConn.Close()

	ch, err := amqpConn.Channel()
	if err != nil {
		logger.Fatalf("Failed to open channel: %v", err)
	}
	defer ch.Close()

	if err := queue.DeclareTopology(ch, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.QueueName); err != nil {
		logger.Fatalf("Failed to declare topology: %v", err)
	}

	archive, err := storage.NewActivityArchive(cfg.MongoDB.URI, cfg.MongoDB.Database, cfg.MongoDB.Collection, zl)
	if err != nil {
		logger.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		archive.Close(closeCtx)
	}()

	w := worker.NewWorker(ch, archive, zl)
	if err := w.Start(ctx, cfg.RabbitMQ.QueueName); err != nil {
		logger.Fatalf("Failed to start worker: %v", err)
	}
	go worker.NewArchiveStats(archive, 24*time.Hour, time.Minute, zl).Run(ctx)

	// audit log retention runs here, not in the webhook process
	if cfg.Database.DSN != "" && cfg.Retention.EventLogDays > 0 {
		db, err := storage.OpenPostgres(cfg.Database, zl)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		store := eventstore.New(db, cfg.Ingestion.DuplicatePolicy, zl, nil)
		go worker.NewRetention(store, cfg.Retention.EventLogDays, time.Hour, zl).Run(ctx)
	}

	logger.Info("Worker started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Worker shutting down")
	cancel()
}
