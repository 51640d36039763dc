package payload

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingRequired marks an item that cannot be stored because an
// identifying field could not be resolved. The item is skipped, the delivery
// still succeeds.
var ErrMissingRequired = errors.New("required field missing")

const (
	DefaultVerb        = "add"
	DefaultMessageType = "text"
)

// CommentFields is a normalized comment, ready for the comments table.
type CommentFields struct {
	CommentID       string
	MediaID         string
	ParentCommentID *string
	UserID          string
	Username        string
	Text            string
	Verb            string
	Raw             json.RawMessage
}

// MessageFields is a normalized direct message.
type MessageFields struct {
	MessageID   string
	SenderID    string
	RecipientID string
	Text        string
	Type        string
	IsEcho      bool
	IsSelf      bool
	Raw         json.RawMessage
}

// StubFields carries what is read from event kinds that are only logged.
type StubFields struct {
	Field    string
	Verb     string
	ObjectID string
}

// ExtractComment resolves a "comments" change value.
//
// Lookup order:
//
//	comment_id  id, object_id, comment_id
//	media_id    media.id
//	user_id     from.id, user_id
//	username    from.username, username
//	text        text, message
//	verb        verb, default "add"
//	parent      parent_id, parent
func ExtractComment(v Value) (CommentFields, error) {
	c := CommentFields{
		CommentID: firstText(v.Get("id"), v.Get("object_id"), v.Get("comment_id")),
		MediaID:   v.Path("media", "id").Text(),
		UserID:    firstText(v.Path("from", "id"), v.Get("user_id")),
		Username:  firstText(v.Path("from", "username"), v.Get("username")),
		Text:      firstText(v.Get("text"), v.Get("message")),
		Verb:      firstText(v.Get("verb")),
		Raw:       v.Raw(),
	}
	if c.Verb == "" {
		c.Verb = DefaultVerb
	}
	if parent := firstText(v.Get("parent_id"), v.Get("parent")); parent != "" {
		c.ParentCommentID = &parent
	}

	if c.CommentID == "" || c.MediaID == "" {
		return c, fmt.Errorf("%w: comment_id=%q media_id=%q", ErrMissingRequired, c.CommentID, c.MediaID)
	}
	return c, nil
}

// ExtractMessage resolves a "messages" change value.
func ExtractMessage(v Value) (MessageFields, error) {
	m := extractMessageCommon(v)
	m.MessageID = firstText(v.Get("id"), v.Get("object_id"), v.Get("message_id"))

	if m.MessageID == "" {
		return m, fmt.Errorf("%w: message_id (keys: %v)", ErrMissingRequired, v.Keys())
	}
	return m, nil
}

// ExtractMessagingItem resolves one element of entry.messaging.
func ExtractMessagingItem(v Value) (MessageFields, error) {
	m := extractMessageCommon(v)
	m.MessageID = firstText(v.Get("id"), v.Get("object_id"), v.Path("message", "mid"))

	if m.MessageID == "" {
		return m, fmt.Errorf("%w: message.mid (keys: %v)", ErrMissingRequired, v.Keys())
	}
	return m, nil
}

// extractMessageCommon fills everything but the message id.
//
//	sender_id     sender.id, from.id, sender_id
//	recipient_id  recipient.id, to.id, recipient_id
//	text          text, message.text, message (plain string only)
//	type          message.type, type, message_type, default "text"
func extractMessageCommon(v Value) MessageFields {
	m := MessageFields{
		SenderID:    firstText(v.Path("sender", "id"), v.Path("from", "id"), v.Get("sender_id")),
		RecipientID: firstText(v.Path("recipient", "id"), v.Path("to", "id"), v.Get("recipient_id")),
		Text:        firstText(v.Get("text"), v.Path("message", "text")),
		Type:        firstText(v.Path("message", "type"), v.Get("type"), v.Get("message_type")),
		IsEcho:      flag(v, "is_echo"),
		IsSelf:      flag(v, "is_self"),
		Raw:         v.Raw(),
	}
	if m.Text == "" {
		if s, ok := v.Get("message").Str(); ok {
			m.Text = s
		}
	}
	if m.Type == "" {
		m.Type = DefaultMessageType
	}
	return m
}

// flag checks key on the value itself, then on the nested message object
// where Messenger-style payloads put it.
func flag(v Value, key string) bool {
	if f := v.Get(key); f.Exists() {
		return f.Truthy()
	}
	return v.Path("message", key).Truthy()
}

// ExtractStub reads the verb and object id of log-only event kinds.
func ExtractStub(field string, v Value) StubFields {
	return StubFields{
		Field:    field,
		Verb:     v.Get("verb").Text(),
		ObjectID: v.Get("object_id").Text(),
	}
}
