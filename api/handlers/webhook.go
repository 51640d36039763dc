package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"instagram-webhook/internal/eventstore"
	"instagram-webhook/internal/models"
	"instagram-webhook/internal/payload"
	"instagram-webhook/internal/queue"
	"instagram-webhook/internal/signature"
	"instagram-webhook/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errUnsupportedField = errors.New("unsupported field")

// EventRecorder is the storage boundary used by the webhook. Every method
// reports failure through its result; nothing here aborts a delivery.
type EventRecorder interface {
	RecordRawEvent(ctx context.Context, env *payload.Envelope, entry payload.Entry, ch payload.Change) eventstore.Result
	MarkProcessed(ctx context.Context, id int64, cause error) eventstore.Result
	SaveComment(ctx context.Context, c payload.CommentFields) eventstore.Result
	SaveMessage(ctx context.Context, m payload.MessageFields) eventstore.Result
	LogSkipped(field string, reason error, fields ...zap.Field)
}

type WebhookOptions struct {
	AppSecret    string
	VerifyToken  string
	MaxBodyBytes int64
}

type InstagramWebhookHandler struct {
	logger    *zap.Logger
	store     EventRecorder
	publisher queue.Publisher
	opts      WebhookOptions
}

func NewInstagramWebhookHandler(logger *zap.Logger, store EventRecorder, publisher queue.Publisher, opts WebhookOptions) *InstagramWebhookHandler {
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	return &InstagramWebhookHandler{
		logger:    logger,
		store:     store,
		publisher: publisher,
		opts:      opts,
	}
}

func (h *InstagramWebhookHandler) HandleWebhook(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodGet:
		h.verify(c)
	case http.MethodPost:
		h.receive(c)
	default:
		c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
	}
}

// verify answers Meta's subscription handshake.
func (h *InstagramWebhookHandler) verify(c *gin.Context) {
	mode := hubParam(c, "mode")
	token := hubParam(c, "verify_token")
	challenge := hubParam(c, "challenge")

	if mode == "subscribe" && h.opts.VerifyToken != "" && token == h.opts.VerifyToken {
		metrics.WebhookDeliveries.WithLabelValues("verified").Inc()
		h.logger.Info("Webhook subscription verified")
		c.String(http.StatusOK, challenge)
		return
	}

	metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
	h.logger.Warn("Webhook verification failed",
		zap.String("mode", mode),
		zap.String("ip", c.ClientIP()))
	c.String(http.StatusForbidden, "Forbidden")
}

func (h *InstagramWebhookHandler) receive(c *gin.Context) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.WebhookDeliveries.WithLabelValues("bad_payload").Inc()
			h.logger.Warn("Webhook body too large", zap.Int64("limit", tooLarge.Limit))
			c.String(http.StatusRequestEntityTooLarge, "Request Entity Too Large")
			return
		}
		metrics.WebhookDeliveries.WithLabelValues("bad_payload").Inc()
		h.logger.Error("Failed to read webhook body", zap.Error(err))
		c.String(http.StatusBadRequest, "Bad Request")
		return
	}

	if !signature.Verify(body, c.GetHeader(signature.HeaderName), h.opts.AppSecret) {
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		h.logger.Warn("Invalid webhook signature",
			zap.String("ip", c.ClientIP()),
			zap.Bool("header_present", c.GetHeader(signature.HeaderName) != ""))
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	env, err := payload.Parse(body)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("bad_payload").Inc()
		h.logger.Warn("Malformed webhook payload", zap.Error(err), zap.Int("size", len(body)))
		c.String(http.StatusBadRequest, "Bad Request")
		return
	}

	deliveryID := uuid.NewString()
	// a delivery that passed the signature check is processed to completion
	ctx := context.WithoutCancel(c.Request.Context())

	h.logger.Info("Received webhook",
		zap.String("delivery_id", deliveryID),
		zap.String("object", env.Object),
		zap.Int("entries", len(env.Entries)),
		zap.Int("skipped_items", env.Skipped))

	for _, entry := range env.Entries {
		for _, ch := range entry.Changes {
			audit := h.store.RecordRawEvent(ctx, env, entry, ch)
			cause := h.handleItem(ctx, deliveryID, entry.ID, payload.DispatchChange(ch))
			h.store.MarkProcessed(ctx, audit.ID, cause)
		}

		for _, item := range entry.Messaging {
			h.handleItem(ctx, deliveryID, entry.ID, payload.DispatchMessaging(item))
		}
	}

	object := env.Object
	if object == "" {
		object = "unknown"
	}
	metrics.WebhookProcessingTime.WithLabelValues(object).Observe(time.Since(start).Seconds())
	metrics.WebhookDeliveries.WithLabelValues("processed").Inc()

	c.String(http.StatusOK, "OK")
}

// handleItem stores one dispatched item. The returned error is recorded on
// the audit row; it never changes the HTTP response.
func (h *InstagramWebhookHandler) handleItem(ctx context.Context, deliveryID, accountID string, item payload.Item) error {
	if item.Err != nil {
		metrics.WebhookItems.WithLabelValues(item.Field, "skipped").Inc()
		h.store.LogSkipped(item.Field, item.Err, zap.String("delivery_id", deliveryID))
		h.logger.Warn("Skipping webhook item",
			zap.String("delivery_id", deliveryID),
			zap.String("field", item.Field),
			zap.Error(item.Err))
		return item.Err
	}

	switch item.Kind {
	case payload.KindComment:
		res := h.store.SaveComment(ctx, *item.Comment)
		if !res.OK() {
			metrics.WebhookItems.WithLabelValues(item.Field, "failed").Inc()
			return res.Err
		}
		metrics.WebhookItems.WithLabelValues(item.Field, "stored").Inc()
		h.publish(ctx, models.EventNotification{
			DeliveryID: deliveryID,
			Kind:       models.NotificationComment,
			RecordID:   res.ID,
			ExternalID: item.Comment.CommentID,
			AccountID:  accountID,
			Payload:    json.RawMessage(item.Comment.Raw),
		})

	case payload.KindMessage:
		res := h.store.SaveMessage(ctx, *item.Message)
		if !res.OK() {
			metrics.WebhookItems.WithLabelValues(item.Field, "failed").Inc()
			return res.Err
		}
		metrics.WebhookItems.WithLabelValues(item.Field, "stored").Inc()
		h.publish(ctx, models.EventNotification{
			DeliveryID: deliveryID,
			Kind:       models.NotificationMessage,
			RecordID:   res.ID,
			ExternalID: item.Message.MessageID,
			AccountID:  accountID,
			Payload:    json.RawMessage(item.Message.Raw),
		})

	case payload.KindStub:
		metrics.WebhookItems.WithLabelValues(item.Field, "ignored").Inc()
		h.logger.Info("Webhook event logged",
			zap.String("delivery_id", deliveryID),
			zap.String("field", item.Stub.Field),
			zap.String("verb", item.Stub.Verb),
			zap.String("object_id", item.Stub.ObjectID))

	default:
		metrics.WebhookItems.WithLabelValues("unknown", "ignored").Inc()
		h.logger.Info("Ignoring unsupported webhook field",
			zap.String("delivery_id", deliveryID),
			zap.String("field", item.Field))
		return errUnsupportedField
	}

	return nil
}

func (h *InstagramWebhookHandler) publish(ctx context.Context, n models.EventNotification) {
	n.ID = uuid.NewString()
	n.OccurredAt = time.Now().UTC()

	if err := h.publisher.Publish(ctx, n); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		h.logger.Warn("Failed to publish notification",
			zap.String("delivery_id", n.DeliveryID),
			zap.String("kind", string(n.Kind)),
			zap.String("external_id", n.ExternalID),
			zap.Error(err))
		return
	}
	metrics.Notifications.WithLabelValues("published").Inc()
}

// hubParam reads hub.<name>, falling back to hub_<name> which some proxies
// and PHP-style frameworks produce.
func hubParam(c *gin.Context, name string) string {
	if v := c.Query("hub." + name); v != "" {
		return v
	}
	return c.Query("hub_" + name)
}
