package worker

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"time"

	"instagram-webhook/internal/models"
	"instagram-webhook/pkg/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Archiver persists notifications outside the relational store.
type Archiver interface {
	Archive(ctx context.Context, n *models.EventNotification, retries int) error
	MarkRetrying(ctx context.Context, n *models.EventNotification, retries int, cause error) error
	MarkFailed(ctx context.Context, n *models.EventNotification, retries int, cause error) error
}

// acknowledger is the part of amqp.Delivery the worker needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type Worker struct {
	channel    *amqp.Channel
	archive    Archiver
	logger     *zap.Logger
	maxRetries int
	baseDelay  time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewWorker(channel *amqp.Channel, archive Archiver, logger *zap.Logger) *Worker {
	return &Worker{
		channel:    channel,
		archive:    archive,
		logger:     logger,
		maxRetries: 3,
		baseDelay:  2 * time.Second,
		sleep:      sleepContext,
	}
}

// Start consumes the activity queue until ctx is cancelled or the channel
// closes. Each delivery is acked exactly once.
func (w *Worker) Start(ctx context.Context, queueName string) error {
	msgs, err := w.channel.Consume(
		queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					w.logger.Warn("Delivery channel closed")
					return
				}
				w.handle(ctx, msg.Body, msg)
			}
		}
	}()

	return nil
}

func (w *Worker) handle(ctx context.Context, body []byte, msg acknowledger) {
	var n models.EventNotification
	if err := json.Unmarshal(body, &n); err != nil || n.ID == "" {
		w.logger.Error("Dropping undecodable notification",
			zap.Error(err),
			zap.Int("size", len(body)))
		metrics.ActivityArchived.WithLabelValues("unknown", "dropped").Inc()
		msg.Nack(false, false)
		return
	}

	if err := w.process(ctx, &n); err != nil {
		if ctx.Err() != nil {
			// shutting down; let the broker redeliver
			msg.Nack(false, true)
			return
		}
		metrics.ActivityArchived.WithLabelValues(string(n.Kind), "failed").Inc()
		msg.Ack(false)
		return
	}

	metrics.ActivityArchived.WithLabelValues(string(n.Kind), "archived").Inc()
	msg.Ack(false)
}

// process archives one notification, retrying with backoff. After the last
// attempt the notification is marked failed and the last error returned.
func (w *Worker) process(ctx context.Context, n *models.EventNotification) error {
	var err error
	for retries := 0; ; retries++ {
		if err = w.archive.Archive(ctx, n, retries); err == nil {
			w.logger.Debug("Notification archived",
				zap.String("notification_id", n.ID),
				zap.String("kind", string(n.Kind)),
				zap.String("external_id", n.ExternalID))
			return nil
		}

		w.logger.Error("Failed to archive notification",
			zap.Error(err),
			zap.String("notification_id", n.ID),
			zap.Int("retries", retries))

		if retries+1 >= w.maxRetries {
			break
		}
		metrics.WorkerRetries.WithLabelValues(string(n.Kind)).Inc()
		// a failed status write does not stop the retry
		_ = w.archive.MarkRetrying(ctx, n, retries+1, err)

		if sleepErr := w.sleep(ctx, w.calculateBackoff(retries+1)); sleepErr != nil {
			return sleepErr
		}
	}

	if markErr := w.archive.MarkFailed(ctx, n, w.maxRetries, err); markErr != nil {
		w.logger.Error("Failed to mark notification failed", zap.Error(markErr))
	}
	return err
}

func (w *Worker) calculateBackoff(retryCount int) time.Duration {
	// Exponential backoff with jitter
	backoff := float64(w.baseDelay) * math.Pow(2, float64(retryCount-1))
	jitter := (rand.Float64()*0.5 + 0.5) // 50% jitter
	return time.Duration(backoff * jitter)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
