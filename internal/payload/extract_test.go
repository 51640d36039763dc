package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCommentFallbacks(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		wantID     string
		wantUser   string
		wantName   string
		wantText   string
		wantVerb   string
		wantParent *string
	}{
		{
			name:     "graph shape",
			value:    `{"id":"C1","media":{"id":"M1"},"from":{"id":"U1","username":"alice"},"text":"hi","verb":"edited"}`,
			wantID:   "C1",
			wantUser: "U1",
			wantName: "alice",
			wantText: "hi",
			wantVerb: "edited",
		},
		{
			name:     "object_id when id absent",
			value:    `{"object_id":"C2","media":{"id":"M1"},"user_id":"U2","username":"bob","message":"yo"}`,
			wantID:   "C2",
			wantUser: "U2",
			wantName: "bob",
			wantText: "yo",
			wantVerb: "add",
		},
		{
			name:     "comment_id last",
			value:    `{"comment_id":"C3","media":{"id":"M1"}}`,
			wantID:   "C3",
			wantVerb: "add",
		},
		{
			name:     "id wins over object_id",
			value:    `{"id":"C4","object_id":"X","comment_id":"Y","media":{"id":"M1"}}`,
			wantID:   "C4",
			wantVerb: "add",
		},
		{
			name:     "empty id falls through",
			value:    `{"id":"","object_id":null,"comment_id":"C5","media":{"id":"M1"}}`,
			wantID:   "C5",
			wantVerb: "add",
		},
		{
			name:     "from wins over flat keys",
			value:    `{"id":"C6","media":{"id":"M1"},"from":{"id":"U6","username":"carol"},"user_id":"X","username":"Y","text":"a","message":"b"}`,
			wantID:   "C6",
			wantUser: "U6",
			wantName: "carol",
			wantText: "a",
			wantVerb: "add",
		},
		{
			name:       "parent_id",
			value:      `{"id":"C7","media":{"id":"M1"},"parent_id":"C1","parent":"X"}`,
			wantID:     "C7",
			wantVerb:   "add",
			wantParent: strPtr("C1"),
		},
		{
			name:       "parent fallback",
			value:      `{"id":"C8","media":{"id":"M1"},"parent":"C1"}`,
			wantID:     "C8",
			wantVerb:   "add",
			wantParent: strPtr("C1"),
		},
		{
			name:     "numeric ids",
			value:    `{"id":17890,"media":{"id":42},"from":{"id":7}}`,
			wantID:   "17890",
			wantUser: "7",
			wantVerb: "add",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ExtractComment(MustDecode(tt.value))
			require.NoError(t, err)

			assert.Equal(t, tt.wantID, c.CommentID)
			assert.NotEmpty(t, c.MediaID)
			assert.Equal(t, tt.wantUser, c.UserID)
			assert.Equal(t, tt.wantName, c.Username)
			assert.Equal(t, tt.wantText, c.Text)
			assert.Equal(t, tt.wantVerb, c.Verb)
			assert.Equal(t, tt.wantParent, c.ParentCommentID)
			assert.JSONEq(t, tt.value, string(c.Raw))
		})
	}
}

func TestExtractCommentMissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"no ids at all", `{"media":{"id":"M1"},"text":"hi"}`},
		{"no media", `{"id":"C1","text":"hi"}`},
		{"media without id", `{"id":"C1","media":{}}`},
		{"media_id key is not a fallback", `{"id":"C1","media_id":"M1"}`},
		{"empty value", `{}`},
		{"not an object", `"C1"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractComment(MustDecode(tt.value))
			assert.ErrorIs(t, err, ErrMissingRequired)
		})
	}
}

func TestExtractMessageFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  MessageFields
	}{
		{
			name:  "sender/recipient objects",
			value: `{"id":"MID1","sender":{"id":"S1"},"recipient":{"id":"R1"},"text":"hey"}`,
			want:  MessageFields{MessageID: "MID1", SenderID: "S1", RecipientID: "R1", Text: "hey", Type: "text"},
		},
		{
			name:  "from/to objects",
			value: `{"object_id":"MID2","from":{"id":"S2"},"to":{"id":"R2"},"message":{"text":"nested","type":"image"}}`,
			want:  MessageFields{MessageID: "MID2", SenderID: "S2", RecipientID: "R2", Text: "nested", Type: "image"},
		},
		{
			name:  "flat keys",
			value: `{"message_id":"MID3","sender_id":"S3","recipient_id":"R3","message":"plain","message_type":"audio"}`,
			want:  MessageFields{MessageID: "MID3", SenderID: "S3", RecipientID: "R3", Text: "plain", Type: "audio"},
		},
		{
			name:  "type key",
			value: `{"id":"MID4","type":"video"}`,
			want:  MessageFields{MessageID: "MID4", Type: "video"},
		},
		{
			name:  "message object without text is not used as text",
			value: `{"id":"MID5","message":{"attachments":[]}}`,
			want:  MessageFields{MessageID: "MID5", Type: "text"},
		},
		{
			name:  "echo and self flags",
			value: `{"id":"MID6","is_echo":true,"is_self":1}`,
			want:  MessageFields{MessageID: "MID6", Type: "text", IsEcho: true, IsSelf: true},
		},
		{
			name:  "nested echo flag",
			value: `{"id":"MID7","message":{"is_echo":true}}`,
			want:  MessageFields{MessageID: "MID7", Type: "text", IsEcho: true},
		},
		{
			name:  "explicit false is respected",
			value: `{"id":"MID8","is_echo":false,"message":{"is_echo":true}}`,
			want:  MessageFields{MessageID: "MID8", Type: "text"},
		},
		{
			name:  "zero in exponent form is false",
			value: `{"id":"MID9","is_echo":0e5,"is_self":0.0}`,
			want:  MessageFields{MessageID: "MID9", Type: "text"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ExtractMessage(MustDecode(tt.value))
			require.NoError(t, err)

			m.Raw = nil
			assert.Equal(t, tt.want, m)
		})
	}
}

func TestExtractMessageMissingID(t *testing.T) {
	_, err := ExtractMessage(MustDecode(`{"sender":{"id":"S1"},"message":{"mid":"only-mid","text":"x"}}`))
	assert.ErrorIs(t, err, ErrMissingRequired)
}

func TestExtractMessagingItem(t *testing.T) {
	v := MustDecode(`{"sender":{"id":"S1"},"recipient":{"id":"R1"},"message":{"mid":"MSG1","text":"hey"},"timestamp":123}`)

	m, err := ExtractMessagingItem(v)
	require.NoError(t, err)

	assert.Equal(t, "MSG1", m.MessageID)
	assert.Equal(t, "S1", m.SenderID)
	assert.Equal(t, "R1", m.RecipientID)
	assert.Equal(t, "hey", m.Text)
	assert.Equal(t, "text", m.Type)
	assert.False(t, m.IsEcho)

	m, err = ExtractMessagingItem(MustDecode(`{"is_echo":0e5,"message":{"mid":"M1"}}`))
	require.NoError(t, err)
	assert.False(t, m.IsEcho)

	_, err = ExtractMessagingItem(MustDecode(`{"sender":{"id":"S1"},"read":{"watermark":1}}`))
	assert.ErrorIs(t, err, ErrMissingRequired)
}

func TestDispatchChange(t *testing.T) {
	tests := []struct {
		field    string
		value    string
		wantKind ItemKind
		wantErr  bool
	}{
		{FieldComments, `{"id":"C1","media":{"id":"M1"}}`, KindComment, false},
		{FieldComments, `{"media":{"id":"M1"}}`, KindComment, true},
		{FieldMessages, `{"id":"MID1"}`, KindMessage, false},
		{FieldMessages, `{}`, KindMessage, true},
		{FieldMentions, `{"verb":"add","object_id":"O1"}`, KindStub, false},
		{FieldLiveComments, `{}`, KindStub, false},
		{FieldMessageReactions, `{}`, KindStub, false},
		{FieldStoryInsights, `{}`, KindStub, false},
		{"feed", `{}`, KindUnknown, false},
		{"", `{}`, KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.value, func(t *testing.T) {
			item := DispatchChange(Change{Field: tt.field, Value: MustDecode(tt.value)})

			assert.Equal(t, tt.wantKind, item.Kind)
			assert.Equal(t, tt.field, item.Field)
			if tt.wantErr {
				assert.ErrorIs(t, item.Err, ErrMissingRequired)
			} else {
				assert.NoError(t, item.Err)
			}

			switch tt.wantKind {
			case KindComment:
				assert.NotNil(t, item.Comment)
			case KindMessage:
				assert.NotNil(t, item.Message)
			case KindStub:
				assert.NotNil(t, item.Stub)
			}
		})
	}
}

func TestExtractStub(t *testing.T) {
	s := ExtractStub(FieldMentions, MustDecode(`{"verb":"add","object_id":"O1","media_id":"M1"}`))
	assert.Equal(t, StubFields{Field: FieldMentions, Verb: "add", ObjectID: "O1"}, s)
}

func strPtr(s string) *string { return &s }
