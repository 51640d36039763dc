// Package eventstore owns every write to the webhook audit log and the
// normalized comment and message tables.
//
// Writes never return a bare error. Each call yields a Result which the
// webhook path logs and ignores, and the reply path inspects.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"instagram-webhook/config"
	"instagram-webhook/internal/models"
	"instagram-webhook/internal/payload"
	"instagram-webhook/internal/storage"
	"instagram-webhook/pkg/metrics"

	"go.uber.org/zap"
)

const unknown = "unknown"

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// Result is the outcome of one storage write. ID is the row written or
// updated; it is zero when Err is set.
type Result struct {
	ID  int64
	Err error
}

func (r Result) OK() bool { return r.Err == nil }

type Store struct {
	ds     storage.Datastore
	policy string
	logger *zap.Logger
	diag   *zap.Logger
	now    func() time.Time
}

// New builds a Store. diag receives one line per write and may be nil.
func New(ds storage.Datastore, policy string, logger, diag *zap.Logger) *Store {
	if policy == "" {
		policy = config.DuplicatePolicyInsert
	}
	if diag == nil {
		diag = zap.NewNop()
	}
	return &Store{
		ds:     ds,
		policy: policy,
		logger: logger,
		diag:   diag,
		now:    time.Now,
	}
}

// RecordRawEvent writes the audit row for one change item. The row starts
// unprocessed; MarkProcessed closes it once the item has been handled.
func (s *Store) RecordRawEvent(ctx context.Context, env *payload.Envelope, entry payload.Entry, ch payload.Change) Result {
	rec := &models.WebhookEventRecord{
		EventType:  orUnknown(env.Object),
		ObjectType: orUnknown(env.Object),
		ObjectID:   orUnknown(firstNonEmpty(ch.Value.Get("object_id").Text(), entry.ID)),
		FieldName:  orUnknown(ch.Field),
		Verb:       orUnknown(ch.Value.Get("verb").Text()),
		RawPayload: string(env.Raw),
	}

	id, err := s.ds.Insert(ctx, rec)
	if err != nil {
		s.fail(models.TableWebhookEvents, err,
			zap.String("field", rec.FieldName),
			zap.String("object_id", rec.ObjectID))
		return Result{Err: err}
	}

	s.diag.Info("webhook event logged",
		zap.Int64("id", id),
		zap.String("field", rec.FieldName),
		zap.String("object_id", rec.ObjectID),
		zap.String("verb", rec.Verb))
	return Result{ID: id}
}

// MarkProcessed closes an audit row. A nil cause marks it processed; any
// other cause leaves it unprocessed with the reason recorded.
func (s *Store) MarkProcessed(ctx context.Context, id int64, cause error) Result {
	if id == 0 {
		return Result{}
	}

	fields := map[string]any{"processed": cause == nil, "error_message": ""}
	if cause != nil {
		fields["error_message"] = cause.Error()
	}

	if _, err := s.ds.Update(ctx, models.TableWebhookEvents, fields, "id = ?", id); err != nil {
		s.fail(models.TableWebhookEvents, err, zap.Int64("id", id))
		return Result{Err: err}
	}
	return Result{ID: id}
}

// SaveComment stores a normalized comment according to the duplicate policy.
func (s *Store) SaveComment(ctx context.Context, c payload.CommentFields) Result {
	fields := []zap.Field{
		zap.String("comment_id", c.CommentID),
		zap.String("media_id", c.MediaID),
		zap.String("user_id", c.UserID),
		zap.String("username", c.Username),
		zap.String("text", c.Text),
		zap.String("verb", c.Verb),
	}
	if c.ParentCommentID != nil {
		fields = append(fields, zap.String("parent_comment_id", *c.ParentCommentID))
	}

	if s.policy == config.DuplicatePolicyUpsert {
		existing, err := s.FindComment(ctx, c.CommentID)
		switch {
		case err == nil:
			_, err = s.ds.Update(ctx, models.TableComments, map[string]any{
				"comment_text": c.Text,
				"verb":         c.Verb,
				"username":     c.Username,
				"webhook_data": string(c.Raw),
				"updated_at":   s.now(),
			}, "id = ?", existing.ID)
			if err != nil {
				s.fail(models.TableComments, err, fields...)
				return Result{Err: err}
			}
			s.diag.Info("comment updated", append(fields, zap.Int64("id", existing.ID))...)
			return Result{ID: existing.ID}
		case !errors.Is(err, ErrNotFound):
			s.fail(models.TableComments, err, fields...)
			return Result{Err: err}
		}
	}

	rec := &models.Comment{
		MediaID:         c.MediaID,
		CommentID:       c.CommentID,
		ParentCommentID: c.ParentCommentID,
		UserID:          c.UserID,
		Username:        c.Username,
		CommentText:     c.Text,
		Verb:            c.Verb,
		WebhookData:     string(c.Raw),
	}

	id, err := s.ds.Insert(ctx, rec)
	if err != nil {
		s.fail(models.TableComments, err, fields...)
		return Result{Err: err}
	}

	s.diag.Info("comment saved", append(fields, zap.Int64("id", id))...)
	return Result{ID: id}
}

// SaveMessage stores a normalized direct message according to the duplicate
// policy.
func (s *Store) SaveMessage(ctx context.Context, m payload.MessageFields) Result {
	fields := []zap.Field{
		zap.String("message_id", m.MessageID),
		zap.String("sender_id", m.SenderID),
		zap.String("recipient_id", m.RecipientID),
		zap.String("text", m.Text),
		zap.String("type", m.Type),
		zap.Bool("is_echo", m.IsEcho),
		zap.Bool("is_self", m.IsSelf),
	}

	if s.policy == config.DuplicatePolicyUpsert {
		var rows []models.Message
		err := s.ds.Select(ctx, &rows, storage.Query{
			Table:   models.TableMessages,
			Where:   "message_id = ?",
			Params:  []any{m.MessageID},
			OrderBy: "id DESC",
			Limit:   1,
		})
		if err != nil {
			s.fail(models.TableMessages, err, fields...)
			return Result{Err: err}
		}
		if len(rows) > 0 {
			_, err = s.ds.Update(ctx, models.TableMessages, map[string]any{
				"message_text": m.Text,
				"webhook_data": string(m.Raw),
			}, "id = ?", rows[0].ID)
			if err != nil {
				s.fail(models.TableMessages, err, fields...)
				return Result{Err: err}
			}
			s.diag.Info("message updated", append(fields, zap.Int64("id", rows[0].ID))...)
			return Result{ID: rows[0].ID}
		}
	}

	rec := &models.Message{
		MessageID:   m.MessageID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		MessageText: m.Text,
		MessageType: m.Type,
		IsEcho:      m.IsEcho,
		IsSelf:      m.IsSelf,
		WebhookData: string(m.Raw),
	}

	id, err := s.ds.Insert(ctx, rec)
	if err != nil {
		s.fail(models.TableMessages, err, fields...)
		return Result{Err: err}
	}

	s.diag.Info("message saved", append(fields, zap.Int64("id", id))...)
	return Result{ID: id}
}

// LogSkipped records an item that produced no row, e.g. one with missing
// identifiers or a field that is only logged.
func (s *Store) LogSkipped(field string, reason error, fields ...zap.Field) {
	s.diag.Warn("item skipped", append(fields, zap.String("field", field), zap.Error(reason))...)
}

// PurgeEvents deletes audit rows created before cutoff.
func (s *Store) PurgeEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.ds.Delete(ctx, models.TableWebhookEvents, "created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge webhook events: %w", err)
	}
	return n, nil
}

func (s *Store) fail(table string, err error, fields ...zap.Field) {
	metrics.StorageErrors.WithLabelValues(table).Inc()
	s.logger.Error("Storage write failed",
		append(fields, zap.String("table", table), zap.Error(err))...)
	s.diag.Error("write failed", append(fields, zap.String("table", table), zap.Error(err))...)
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
