package queue

import (
	"fmt"
	"time"

	"instagram-webhook/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	dialAttempts = 5
	dialDelay    = 2 * time.Second
)

// RoutingKeys are the keys notifications are published with.
var RoutingKeys = []string{
	string(models.NotificationComment),
	string(models.NotificationMessage),
}

// Dial connects to RabbitMQ, retrying a few times so the service can start
// alongside the broker.
func Dial(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logger.Warn("RabbitMQ not reachable, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err))
		time.Sleep(dialDelay * time.Duration(attempt))
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ: %v", lastErr)
}

// DeclareTopology declares the durable direct exchange and the activity
// queue, bound for every notification kind.
func DeclareTopology(ch *amqp.Channel, exchangeName, queueName string) error {
	err := ch.ExchangeDeclare(
		exchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %v", err)
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %v", err)
	}

	for _, key := range RoutingKeys {
		if err := ch.QueueBind(q.Name, key, exchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue for %s: %v", key, err)
		}
	}
	return nil
}
