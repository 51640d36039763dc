package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"instagram-webhook/api/handlers"
	"instagram-webhook/api/router"
	"instagram-webhook/config"
	"instagram-webhook/internal/eventstore"
	"instagram-webhook/internal/instagram"
	"instagram-webhook/internal/queue"
	"instagram-webhook/internal/reply"
	"instagram-webhook/internal/storage"
	"instagram-webhook/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	httpServer    *http.Server
	metricsServer *http.Server
	logger        *logger.Logger
	db            *storage.SQLStore
	diag          *zap.Logger
	publisher     queue.Publisher
	cancel        context.CancelFunc
}

func NewServer(cfg *config.Config, log *logger.Logger) (*Server, error) {
	zl := log.Desugar()

	db, err := storage.OpenPostgres(cfg.Database, zl)
	if err != nil {
		return nil, err
	}

	diag := zap.NewNop()
	if path := cfg.Ingestion.DiagnosticLogPath; path != "" {
		if diag, err = logger.NewDiagnosticLogger(path); err != nil {
			// the diagnostic trail is optional; the database stays authoritative
			log.Warnf("diagnostic log disabled: %v", err)
			diag = zap.NewNop()
		}
	}

	store := eventstore.New(db, cfg.Ingestion.DuplicatePolicy, zl, diag)

	ctx, cancel := context.WithCancel(context.Background())

	var publisher queue.Publisher = queue.NopPublisher{}
	if cfg.RabbitMQ.Enabled {
		rmq, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.QueueName, zl)
		if err != nil {
			cancel()
			db.Close()
			return nil, fmt.Errorf("failed to create rabbitmq publisher: %v", err)
		}
		rmq.StartMetricsUpdater(ctx)
		publisher = rmq
	}

	api := instagram.NewClient(cfg.Instagram, zl)
	replier := reply.NewDispatcher(api, store, reply.Operator{
		UserID:   cfg.Instagram.UserID,
		Username: cfg.Instagram.Username,
	}, zl)

	r := router.Setup(zl, router.Dependencies{
		Webhook: handlers.NewInstagramWebhookHandler(zl, store, publisher, handlers.WebhookOptions{
			AppSecret:    cfg.Instagram.AppSecret,
			VerifyToken:  cfg.Instagram.VerifyToken,
			MaxBodyBytes: cfg.Ingestion.MaxBodyBytes,
		}),
		Admin: handlers.NewAdminHandler(zl, store, replier, api),
		DB:    db,
	}, cfg)

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler: promhttp.Handler(),
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		metricsServer: metricsServer,
		logger:        log,
		db:            db,
		diag:          diag,
		publisher:     publisher,
		cancel:        cancel,
	}, nil
}

func (s *Server) Start() error {
	go func() {
		s.logger.Info("Metrics server starting on " + s.metricsServer.Addr)
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("metrics server error: %v", err)
		}
	}()

	s.logger.Info("Server starting on " + s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests, lets in-flight deliveries finish and
// then releases the broker and database.
func (s *Server) Shutdown() error {
	s.logger.Info("Server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if mErr := s.metricsServer.Shutdown(ctx); mErr != nil {
		s.logger.Error("failed to stop metrics server", zap.Error(mErr))
	}

	s.cancel()
	if pErr := s.publisher.Close(); pErr != nil {
		s.logger.Error("failed to close publisher", zap.Error(pErr))
	}
	if dErr := s.db.Close(); dErr != nil {
		s.logger.Error("failed to close database", zap.Error(dErr))
	}
	_ = s.diag.Sync()

	return err
}
