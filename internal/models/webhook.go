package models

import (
	"encoding/json"
	"time"
)

const (
	TableWebhookEvents = "webhook_events_log"
	TableComments      = "instagram_comments"
	TableMessages      = "instagram_messages"
)

// WebhookEventRecord is the audit row written for every entry.changes item.
type WebhookEventRecord struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	EventType    string    `json:"event_type" gorm:"column:event_type;type:varchar(100);not null"`
	ObjectType   string    `json:"object_type" gorm:"column:object_type;type:varchar(50);not null"`
	ObjectID     string    `json:"object_id" gorm:"column:object_id;type:varchar(255);not null;index"`
	FieldName    string    `json:"field_name" gorm:"column:field_name;type:varchar(100);not null;index"`
	Verb         string    `json:"verb" gorm:"column:verb;type:varchar(50);not null"`
	RawPayload   string    `json:"raw_payload" gorm:"column:raw_payload;type:text;not null"`
	Processed    bool      `json:"processed" gorm:"column:processed;not null"`
	ErrorMessage string    `json:"error_message,omitempty" gorm:"column:error_message;type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime;index"`
}

func (WebhookEventRecord) TableName() string  { return TableWebhookEvents }
func (r *WebhookEventRecord) RecordID() int64 { return r.ID }

// Comment is a normalized Instagram comment, inbound or operator-issued.
// comment_id is indexed but deliberately not unique: redelivered webhooks
// insert again unless the upsert policy is configured.
type Comment struct {
	ID              int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	MediaID         string    `json:"media_id" gorm:"column:media_id;type:varchar(255);not null;index"`
	CommentID       string    `json:"comment_id" gorm:"column:comment_id;type:varchar(255);not null;index"`
	ParentCommentID *string   `json:"parent_comment_id" gorm:"column:parent_comment_id;type:varchar(255);index"`
	UserID          string    `json:"user_id" gorm:"column:user_id;type:varchar(255);not null"`
	Username        string    `json:"username" gorm:"column:username;type:varchar(255)"`
	CommentText     string    `json:"comment_text" gorm:"column:comment_text;type:text"`
	Verb            string    `json:"verb" gorm:"column:verb;type:varchar(20);not null"`
	WebhookData     string    `json:"webhook_data,omitempty" gorm:"column:webhook_data;type:text"`
	CreatedAt       time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Comment) TableName() string  { return TableComments }
func (c *Comment) RecordID() int64 { return c.ID }

// Message is a normalized direct message.
type Message struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID   string    `json:"message_id" gorm:"column:message_id;type:varchar(255);not null;index"`
	SenderID    string    `json:"sender_id" gorm:"column:sender_id;type:varchar(255);not null;index"`
	RecipientID string    `json:"recipient_id" gorm:"column:recipient_id;type:varchar(255);not null"`
	MessageText string    `json:"message_text" gorm:"column:message_text;type:text"`
	MessageType string    `json:"message_type" gorm:"column:message_type;type:varchar(20);not null"`
	IsEcho      bool      `json:"is_echo" gorm:"column:is_echo;not null"`
	IsSelf      bool      `json:"is_self" gorm:"column:is_self;not null"`
	WebhookData string    `json:"webhook_data,omitempty" gorm:"column:webhook_data;type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime;index"`
}

func (Message) TableName() string  { return TableMessages }
func (m *Message) RecordID() int64 { return m.ID }

// NotificationKind identifies what an EventNotification describes
type NotificationKind string

const (
	NotificationComment NotificationKind = "comment"
	NotificationMessage NotificationKind = "message"
)

// EventNotification is published after a normalized record is stored so
// other services can react without polling the tables.
type EventNotification struct {
	ID         string           `json:"id" bson:"notification_id"`
	DeliveryID string           `json:"delivery_id" bson:"delivery_id"`
	Kind       NotificationKind `json:"kind" bson:"kind"`
	RecordID   int64            `json:"record_id" bson:"record_id"`
	ExternalID string           `json:"external_id" bson:"external_id"`
	AccountID  string           `json:"account_id,omitempty" bson:"account_id,omitempty"`
	Payload    json.RawMessage  `json:"payload,omitempty" bson:"-"`
	OccurredAt time.Time        `json:"occurred_at" bson:"occurred_at"`
}

// ActivityStatus tracks a notification through the worker
type ActivityStatus string

const (
	ActivityStatusArchived ActivityStatus = "archived"
	ActivityStatusRetrying ActivityStatus = "retrying"
	ActivityStatusFailed   ActivityStatus = "failed"
)
