// Package reply posts operator-authored replies to Instagram comments and
// records them alongside the inbound comments.
package reply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"instagram-webhook/internal/eventstore"
	"instagram-webhook/internal/instagram"
	"instagram-webhook/internal/models"
	"instagram-webhook/internal/payload"
	"instagram-webhook/pkg/metrics"

	"go.uber.org/zap"
)

// MaxLength is Instagram's comment length limit, in characters.
const MaxLength = 2200

const defaultOperator = "admin"

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

type NotFoundError struct {
	CommentID string
}

func (e *NotFoundError) Error() string { return "Comment not found" }

// APIError carries the upstream message shown to the operator.
type APIError struct {
	Message string
	Err     error
}

func (e *APIError) Error() string { return e.Message }
func (e *APIError) Unwrap() error { return e.Err }

// StorageError means the reply was posted but could not be recorded locally.
type StorageError struct {
	ReplyID string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("reply %s posted but not stored: %v", e.ReplyID, e.Err)
}
func (e *StorageError) Unwrap() error { return e.Err }

type Commenter interface {
	ReplyToComment(ctx context.Context, commentID, text string) (*instagram.ReplyResult, error)
}

type CommentStore interface {
	FindComment(ctx context.Context, commentID string) (*models.Comment, error)
	SaveComment(ctx context.Context, c payload.CommentFields) eventstore.Result
}

// Operator is the account identity stored on replies.
type Operator struct {
	UserID   string
	Username string
}

type Result struct {
	ReplyID  string `json:"reply_id"`
	StoredID int64  `json:"db_id"`
}

type Dispatcher struct {
	api      Commenter
	store    CommentStore
	operator Operator
	logger   *zap.Logger
	now      func() time.Time
}

func NewDispatcher(api Commenter, store CommentStore, operator Operator, logger *zap.Logger) *Dispatcher {
	if operator.UserID == "" {
		operator.UserID = defaultOperator
	}
	if operator.Username == "" {
		operator.Username = defaultOperator
	}
	return &Dispatcher{
		api:      api,
		store:    store,
		operator: operator,
		logger:   logger,
		now:      time.Now,
	}
}

// Reply posts text as a threaded reply to commentID and stores it as a new
// comment row. On *StorageError the returned Result still carries ReplyID.
func (d *Dispatcher) Reply(ctx context.Context, commentID, text string) (*Result, error) {
	commentID = strings.TrimSpace(commentID)
	text = strings.TrimSpace(text)

	if err := validate(commentID, text); err != nil {
		metrics.Replies.WithLabelValues("invalid").Inc()
		return nil, err
	}

	original, err := d.store.FindComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, eventstore.ErrNotFound) {
			metrics.Replies.WithLabelValues("not_found").Inc()
			return nil, &NotFoundError{CommentID: commentID}
		}
		metrics.Replies.WithLabelValues("storage_error").Inc()
		return nil, fmt.Errorf("failed to look up comment %s: %w", commentID, err)
	}

	d.logger.Info("Posting reply",
		zap.String("comment_id", commentID),
		zap.String("media_id", original.MediaID),
		zap.Int("length", utf8.RuneCountInString(text)))

	posted, err := d.api.ReplyToComment(ctx, commentID, text)
	if err != nil {
		metrics.Replies.WithLabelValues("api_error").Inc()
		d.logger.Error("Failed to post reply", zap.String("comment_id", commentID), zap.Error(err))
		return nil, &APIError{Message: upstreamMessage(err), Err: err}
	}

	parent := commentID
	raw, _ := json.Marshal(map[string]any{
		"reply_from_dashboard": true,
		"original_comment_id":  commentID,
		"timestamp":            d.now().Unix(),
		"api_response":         posted,
	})

	stored := d.store.SaveComment(ctx, payload.CommentFields{
		CommentID:       posted.ID,
		MediaID:         original.MediaID,
		ParentCommentID: &parent,
		UserID:          d.operator.UserID,
		Username:        d.operator.Username,
		Text:            text,
		Verb:            payload.DefaultVerb,
		Raw:             raw,
	})

	result := &Result{ReplyID: posted.ID, StoredID: stored.ID}
	if !stored.OK() {
		metrics.Replies.WithLabelValues("storage_error").Inc()
		return result, &StorageError{ReplyID: posted.ID, Err: stored.Err}
	}

	metrics.Replies.WithLabelValues("posted").Inc()
	d.logger.Info("Reply posted",
		zap.String("comment_id", commentID),
		zap.String("reply_id", posted.ID),
		zap.Int64("db_id", stored.ID))
	return result, nil
}

func validate(commentID, text string) error {
	if commentID == "" || text == "" {
		return &ValidationError{Reason: "Comment ID and reply text are required"}
	}
	if utf8.RuneCountInString(text) > MaxLength {
		return &ValidationError{Reason: fmt.Sprintf("Reply text too long (max %d characters)", MaxLength)}
	}
	return nil
}

func upstreamMessage(err error) string {
	var apiErr *instagram.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Failed to post reply: " + err.Error()
}
