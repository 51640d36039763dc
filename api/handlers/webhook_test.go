package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"instagram-webhook/config"
	"instagram-webhook/internal/eventstore"
	"instagram-webhook/internal/models"
	"instagram-webhook/internal/signature"
	"instagram-webhook/internal/storage/storagetest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret      = "app-secret"
	testVerifyToken = "verify-me"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, n models.EventNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

type fixture struct {
	handler   *InstagramWebhookHandler
	store     *eventstore.Store
	publisher *MockPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := eventstore.New(storagetest.NewDatastore(t), config.DuplicatePolicyInsert, zap.NewNop(), nil)
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()

	h := NewInstagramWebhookHandler(zap.NewNop(), store, pub, WebhookOptions{
		AppSecret:    testSecret,
		VerifyToken:  testVerifyToken,
		MaxBodyBytes: 1 << 16,
	})
	return &fixture{handler: h, store: store, publisher: pub}
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	f.handler.HandleWebhook(c)
	return w
}

func signedPost(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderName, signature.Sign([]byte(body), testSecret))
	return req
}

func (f *fixture) comments(t *testing.T) []models.Comment {
	t.Helper()
	rows, err := f.store.ListComments(context.Background(), eventstore.CommentFilter{})
	require.NoError(t, err)
	return rows
}

func (f *fixture) messages(t *testing.T) []models.Message {
	t.Helper()
	rows, err := f.store.ListMessages(context.Background(), eventstore.MessageFilter{})
	require.NoError(t, err)
	return rows
}

func (f *fixture) events(t *testing.T) []models.WebhookEventRecord {
	t.Helper()
	rows, err := f.store.ListEvents(context.Background(), "", 0)
	require.NoError(t, err)
	return rows
}

const commentDelivery = `{"object":"instagram","entry":[{"id":"P1","time":1000,"changes":[{"field":"comments","value":{"object_id":"C1","media":{"id":"M1"},"from":{"id":"U1","username":"alice"},"text":"hi"}}]}]}`

func TestCommentDeliveryIsStored(t *testing.T) {
	f := newFixture(t)

	w := f.serve(signedPost(commentDelivery))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	rows := f.comments(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "C1", rows[0].CommentID)
	assert.Equal(t, "M1", rows[0].MediaID)
	assert.Equal(t, "U1", rows[0].UserID)
	assert.Equal(t, "alice", rows[0].Username)
	assert.Equal(t, "hi", rows[0].CommentText)
	assert.Equal(t, "add", rows[0].Verb)
	assert.Nil(t, rows[0].ParentCommentID)

	events := f.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, "comments", events[0].FieldName)
	assert.Equal(t, "C1", events[0].ObjectID)
	assert.Equal(t, commentDelivery, events[0].RawPayload)
	assert.True(t, events[0].Processed)

	f.publisher.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(n models.EventNotification) bool {
		return n.Kind == models.NotificationComment &&
			n.ExternalID == "C1" &&
			n.RecordID == rows[0].ID &&
			n.AccountID == "P1" &&
			n.ID != "" && n.DeliveryID != ""
	}))
}

func TestSignatureFailuresWriteNothing(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong secret", signature.Sign([]byte(commentDelivery), "other")},
		{"garbage", "sha256=nothex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(commentDelivery))
			if tt.header != "" {
				req.Header.Set(signature.HeaderName, tt.header)
			}
			w := f.serve(req)

			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Equal(t, "Forbidden", w.Body.String())
			assert.Empty(t, f.comments(t))
			assert.Empty(t, f.events(t))
			f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestMessagingDeliveryIsStoredWithoutAuditRow(t *testing.T) {
	f := newFixture(t)

	w := f.serve(signedPost(`{"object":"instagram","entry":[{"id":"P1","time":1000,"messaging":[{"sender":{"id":"S1"},"recipient":{"id":"R1"},"message":{"mid":"MSG1","text":"hey"},"timestamp":123}]}]}`))

	assert.Equal(t, http.StatusOK, w.Code)

	rows := f.messages(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "MSG1", rows[0].MessageID)
	assert.Equal(t, "S1", rows[0].SenderID)
	assert.Equal(t, "R1", rows[0].RecipientID)
	assert.Equal(t, "hey", rows[0].MessageText)
	assert.Equal(t, "text", rows[0].MessageType)

	assert.Empty(t, f.events(t))
}

func TestVerification(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"dotted params", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", http.StatusOK, "1158201444"},
		{"underscore params", "hub_mode=subscribe&hub_verify_token=verify-me&hub_challenge=42", http.StatusOK, "42"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", http.StatusForbidden, "Forbidden"},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=42", http.StatusForbidden, "Forbidden"},
		{"no params", "", http.StatusForbidden, "Forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			w := f.serve(httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestVerificationRequiresConfiguredToken(t *testing.T) {
	f := newFixture(t)
	f.handler.opts.VerifyToken = ""

	w := f.serve(httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=&hub.challenge=1", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMalformedPayload(t *testing.T) {
	for _, body := range []string{`not json`, `{"object":`, `[1,2]`, `"instagram"`} {
		t.Run(body, func(t *testing.T) {
			f := newFixture(t)

			w := f.serve(signedPost(body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "Bad Request", w.Body.String())
		})
	}
}

func TestEmptyEnvelopeIsOK(t *testing.T) {
	f := newFixture(t)

	w := f.serve(signedPost(`{}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestOtherMethodsNotAllowed(t *testing.T) {
	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		f := newFixture(t)
		w := f.serve(httptest.NewRequest(method, "/webhook", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
	}
}

func TestBodyTooLarge(t *testing.T) {
	f := newFixture(t)
	f.handler.opts.MaxBodyBytes = 16

	w := f.serve(signedPost(commentDelivery))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, f.comments(t))
}

func TestMissingIdentifiersAreSkipped(t *testing.T) {
	f := newFixture(t)

	body := `{"object":"instagram","entry":[{"id":"P1","changes":[
		{"field":"comments","value":{"media":{"id":"M1"},"text":"no id"}},
		{"field":"comments","value":{"id":"C2","text":"no media"}},
		{"field":"comments","value":{"id":"C3","media":{"id":"M1"},"text":"ok"}}
	]}]}`
	w := f.serve(signedPost(body))

	assert.Equal(t, http.StatusOK, w.Code)

	rows := f.comments(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "C3", rows[0].CommentID)

	events := f.events(t)
	require.Len(t, events, 3)
	var unprocessed int
	for _, e := range events {
		if !e.Processed {
			unprocessed++
			assert.Contains(t, e.ErrorMessage, "required field missing")
		}
	}
	assert.Equal(t, 2, unprocessed)
}

func TestMixedDeliveryKeepsOrderAndSiblings(t *testing.T) {
	f := newFixture(t)

	body := `{"object":"instagram","entry":[
		{"id":"P1","changes":[
			{"field":"mentions","value":{"verb":"add","object_id":"O1"}},
			{"field":"feed","value":{"item":"post"}},
			{"field":"messages","value":{"id":"MID1","sender":{"id":"S1"},"recipient":{"id":"R1"},"text":"dm"}},
			{"field":"comments","value":{"id":"C1","media":{"id":"M1"},"text":"first"}}
		]},
		"junk",
		{"id":"P2","changes":[{"field":"comments","value":{"id":"C2","media":{"id":"M1"},"text":"second"}}],
		 "messaging":[{"sender":{"id":"S2"},"message":{"text":"no mid"}}]}
	]}`
	w := f.serve(signedPost(body))

	assert.Equal(t, http.StatusOK, w.Code)

	comments := f.comments(t)
	require.Len(t, comments, 2)
	// newest first
	assert.Equal(t, "C2", comments[0].CommentID)
	assert.Equal(t, "C1", comments[1].CommentID)

	messages := f.messages(t)
	require.Len(t, messages, 1)
	assert.Equal(t, "MID1", messages[0].MessageID)

	events := f.events(t)
	require.Len(t, events, 5)

	byField := map[string]models.WebhookEventRecord{}
	for _, e := range events {
		byField[e.FieldName] = e
	}
	assert.True(t, byField["mentions"].Processed)
	assert.Equal(t, "O1", byField["mentions"].ObjectID)
	assert.False(t, byField["feed"].Processed)
	assert.Equal(t, "unsupported field", byField["feed"].ErrorMessage)
	assert.True(t, byField["messages"].Processed)
}

func TestRedeliveryDuplicatesUnderInsertPolicy(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		w := f.serve(signedPost(commentDelivery))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Len(t, f.comments(t), 2)
}

func TestPublishFailureDoesNotChangeResponse(t *testing.T) {
	f := newFixture(t)
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	f.handler.publisher = pub

	w := f.serve(signedPost(commentDelivery))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, f.comments(t), 1)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}
