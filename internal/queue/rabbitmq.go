package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"instagram-webhook/internal/models"
	"instagram-webhook/pkg/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Publisher fans out notifications about stored comments and messages.
type Publisher interface {
	Publish(ctx context.Context, n models.EventNotification) error
	Close() error
}

type RabbitMQ struct {
	mu           sync.Mutex
	conn         *amqp.Connection
	ch           *amqp.Channel
	exchangeName string
	queueName    string
	logger       *zap.Logger
}

func NewRabbitMQ(url, exchangeName, queueName string, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := Dial(url, logger)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %v", err)
	}

	if err := DeclareTopology(ch, exchangeName, queueName); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQ{
		conn:         conn,
		ch:           ch,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger,
	}, nil
}

// StartMetricsUpdater periodically reports the activity queue depth.
func (r *RabbitMQ) StartMetricsUpdater(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.mu.Lock()
				queue, err := r.ch.QueueInspect(r.queueName)
				r.mu.Unlock()
				if err == nil {
					metrics.QueueSize.WithLabelValues(r.queueName).Set(float64(queue.Messages))
				}
			}
		}
	}()
}

func (r *RabbitMQ) Publish(ctx context.Context, n models.EventNotification) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %v", err)
	}

	headers := amqp.Table{
		"notification_id": n.ID,
		"delivery_id":     n.DeliveryID,
		"kind":            string(n.Kind),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.ch.PublishWithContext(ctx,
		r.exchangeName,
		string(n.Kind), // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    n.ID,
			Timestamp:    n.OccurredAt,
			Headers:      headers,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %v", err)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if err := r.ch.Close(); err != nil {
		r.logger.Error("Failed to close channel", zap.Error(err))
	}
	if err := r.conn.Close(); err != nil {
		r.logger.Error("Failed to close connection", zap.Error(err))
	}
	return nil
}

// NopPublisher is used when fan-out is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.EventNotification) error { return nil }
func (NopPublisher) Close() error                                            { return nil }
