package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"instagram-webhook/internal/eventstore"
	"instagram-webhook/internal/instagram"
	"instagram-webhook/internal/models"
	"instagram-webhook/internal/reply"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Reader interface {
	ListComments(ctx context.Context, f eventstore.CommentFilter) ([]models.Comment, error)
	ListReplies(ctx context.Context, commentID string, limit int) ([]models.Comment, error)
	ListMessages(ctx context.Context, f eventstore.MessageFilter) ([]models.Message, error)
	ListEvents(ctx context.Context, field string, limit int) ([]models.WebhookEventRecord, error)
}

type Replier interface {
	Reply(ctx context.Context, commentID, text string) (*reply.Result, error)
}

type AccountAPI interface {
	GetAccountInfo(ctx context.Context) (*instagram.AccountInfo, error)
	SendMessage(ctx context.Context, recipientID, text string) (*instagram.SendResult, error)
}

// AdminHandler serves the dashboard JSON API.
type AdminHandler struct {
	logger  *zap.Logger
	reader  Reader
	replier Replier
	api     AccountAPI
}

func NewAdminHandler(logger *zap.Logger, reader Reader, replier Replier, api AccountAPI) *AdminHandler {
	return &AdminHandler{
		logger:  logger,
		reader:  reader,
		replier: replier,
		api:     api,
	}
}

type replyRequest struct {
	ReplyText string `json:"reply_text"`
}

type sendMessageRequest struct {
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
}

func (h *AdminHandler) ListComments(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	rows, err := h.reader.ListComments(c.Request.Context(), eventstore.CommentFilter{
		MediaID:         c.Query("media_id"),
		ParentCommentID: c.Query("parent_comment_id"),
		Limit:           limit,
	})
	if err != nil {
		h.readFailed(c, "comments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
}

func (h *AdminHandler) ListReplies(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	rows, err := h.reader.ListReplies(c.Request.Context(), c.Param("comment_id"), limit)
	if err != nil {
		h.readFailed(c, "replies", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
}

func (h *AdminHandler) ListMessages(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	rows, err := h.reader.ListMessages(c.Request.Context(), eventstore.MessageFilter{
		SenderID: c.Query("sender_id"),
		Limit:    limit,
	})
	if err != nil {
		h.readFailed(c, "messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
}

func (h *AdminHandler) ListEvents(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	rows, err := h.reader.ListEvents(c.Request.Context(), c.Query("field"), limit)
	if err != nil {
		h.readFailed(c, "events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
}

func (h *AdminHandler) GetAccount(c *gin.Context) {
	info, err := h.api.GetAccountInfo(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to fetch account info", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": upstreamMessage(err)})
		return
	}
	c.JSON(http.StatusOK, info)
}

// PostReply posts an operator reply under :comment_id.
func (h *AdminHandler) PostReply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	res, err := h.replier.Reply(c.Request.Context(), c.Param("comment_id"), req.ReplyText)
	if err != nil {
		var (
			validationErr *reply.ValidationError
			notFoundErr   *reply.NotFoundError
			apiErr        *reply.APIError
			storageErr    *reply.StorageError
		)
		switch {
		case errors.As(err, &validationErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Reason})
		case errors.As(err, &notFoundErr):
			c.JSON(http.StatusNotFound, gin.H{"error": notFoundErr.Error()})
		case errors.As(err, &apiErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": apiErr.Message})
		case errors.As(err, &storageErr):
			h.logger.Error("Reply posted but not stored", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":    "Reply posted but could not be saved",
				"reply_id": storageErr.ReplyID,
			})
		default:
			h.logger.Error("Reply failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"message":  "Reply posted successfully",
		"reply_id": res.ReplyID,
		"db_id":    res.StoredID,
	})
}

// SendMessage sends a direct message. Nothing is stored here; the echo
// arrives through the webhook.
func (h *AdminHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	req.RecipientID = strings.TrimSpace(req.RecipientID)
	req.Text = strings.TrimSpace(req.Text)
	if req.RecipientID == "" || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Recipient ID and text are required"})
		return
	}

	res, err := h.api.SendMessage(c.Request.Context(), req.RecipientID, req.Text)
	if err != nil {
		h.logger.Error("Failed to send message",
			zap.String("recipient_id", req.RecipientID),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": upstreamMessage(err)})
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) readFailed(c *gin.Context, view string, err error) {
	h.logger.Error("Failed to read view", zap.String("view", view), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load " + view})
}

// parseLimit reads ?limit=. Zero means the default; the store applies the
// upper bound.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func upstreamMessage(err error) string {
	var apiErr *instagram.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
