package eventstore

import (
	"context"
	"fmt"
	"strings"

	"instagram-webhook/internal/models"
	"instagram-webhook/internal/storage"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ClampLimit applies the default and the upper bound used by every list view.
// Views are newest first; ids are assigned in arrival order.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// FindComment returns the newest row for an external comment id.
func (s *Store) FindComment(ctx context.Context, commentID string) (*models.Comment, error) {
	var rows []models.Comment
	err := s.ds.Select(ctx, &rows, storage.Query{
		Table:   models.TableComments,
		Where:   "comment_id = ?",
		Params:  []any{commentID},
		OrderBy: "id DESC",
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	return &rows[0], nil
}

type CommentFilter struct {
	MediaID         string
	ParentCommentID string
	Limit           int
}

func (s *Store) ListComments(ctx context.Context, f CommentFilter) ([]models.Comment, error) {
	where, params := conditions(map[string]string{
		"media_id":          f.MediaID,
		"parent_comment_id": f.ParentCommentID,
	})

	rows := []models.Comment{}
	err := s.ds.Select(ctx, &rows, storage.Query{
		Table:   models.TableComments,
		Where:   where,
		Params:  params,
		OrderBy: "id DESC",
		Limit:   ClampLimit(f.Limit),
	})
	return rows, err
}

// ListReplies returns the threaded replies to one comment.
func (s *Store) ListReplies(ctx context.Context, commentID string, limit int) ([]models.Comment, error) {
	return s.ListComments(ctx, CommentFilter{ParentCommentID: commentID, Limit: limit})
}

type MessageFilter struct {
	SenderID string
	Limit    int
}

func (s *Store) ListMessages(ctx context.Context, f MessageFilter) ([]models.Message, error) {
	where, params := conditions(map[string]string{"sender_id": f.SenderID})

	rows := []models.Message{}
	err := s.ds.Select(ctx, &rows, storage.Query{
		Table:   models.TableMessages,
		Where:   where,
		Params:  params,
		OrderBy: "id DESC",
		Limit:   ClampLimit(f.Limit),
	})
	return rows, err
}

func (s *Store) ListEvents(ctx context.Context, field string, limit int) ([]models.WebhookEventRecord, error) {
	where, params := conditions(map[string]string{"field_name": field})

	rows := []models.WebhookEventRecord{}
	err := s.ds.Select(ctx, &rows, storage.Query{
		Table:   models.TableWebhookEvents,
		Where:   where,
		Params:  params,
		OrderBy: "id DESC",
		Limit:   ClampLimit(limit),
	})
	return rows, err
}

// conditions builds an AND clause from the non-empty filters. Columns come
// from the callers above, values are always bound.
func conditions(filters map[string]string) (string, []any) {
	var (
		clauses []string
		params  []any
	)
	// fixed order keeps the generated SQL stable
	for _, column := range []string{"media_id", "parent_comment_id", "sender_id", "field_name"} {
		value, ok := filters[column]
		if !ok || value == "" {
			continue
		}
		clauses = append(clauses, column+" = ?")
		params = append(params, value)
	}
	return strings.Join(clauses, " AND "), params
}
