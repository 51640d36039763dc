package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"instagram-webhook/config"
	"instagram-webhook/internal/eventstore"
	"instagram-webhook/internal/instagram"
	"instagram-webhook/internal/payload"
	"instagram-webhook/internal/reply"
	"instagram-webhook/internal/storage/storagetest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockReplier struct {
	mock.Mock
}

func (m *MockReplier) Reply(ctx context.Context, commentID, text string) (*reply.Result, error) {
	args := m.Called(ctx, commentID, text)
	res, _ := args.Get(0).(*reply.Result)
	return res, args.Error(1)
}

type MockAccountAPI struct {
	mock.Mock
}

func (m *MockAccountAPI) GetAccountInfo(ctx context.Context) (*instagram.AccountInfo, error) {
	args := m.Called(ctx)
	info, _ := args.Get(0).(*instagram.AccountInfo)
	return info, args.Error(1)
}

func (m *MockAccountAPI) SendMessage(ctx context.Context, recipientID, text string) (*instagram.SendResult, error) {
	args := m.Called(ctx, recipientID, text)
	res, _ := args.Get(0).(*instagram.SendResult)
	return res, args.Error(1)
}

type adminFixture struct {
	engine  *gin.Engine
	store   *eventstore.Store
	replier *MockReplier
	api     *MockAccountAPI
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &adminFixture{
		store:   eventstore.New(storagetest.NewDatastore(t), config.DuplicatePolicyInsert, zap.NewNop(), nil),
		replier: new(MockReplier),
		api:     new(MockAccountAPI),
	}
	h := NewAdminHandler(zap.NewNop(), f.store, f.replier, f.api)

	f.engine = gin.New()
	f.engine.GET("/comments", h.ListComments)
	f.engine.GET("/comments/:comment_id/replies", h.ListReplies)
	f.engine.POST("/comments/:comment_id/replies", h.PostReply)
	f.engine.GET("/messages", h.ListMessages)
	f.engine.POST("/messages", h.SendMessage)
	f.engine.GET("/events", h.ListEvents)
	f.engine.GET("/account", h.GetAccount)
	return f
}

func (f *adminFixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *adminFixture) seedComment(t *testing.T, id, media string, parent *string) {
	t.Helper()
	res := f.store.SaveComment(context.Background(), payload.CommentFields{
		CommentID:       id,
		MediaID:         media,
		ParentCommentID: parent,
		UserID:          "U1",
		Text:            "text " + id,
		Verb:            "add",
	})
	require.NoError(t, res.Err)
}

type listBody struct {
	Data  []map[string]any `json:"data"`
	Count int              `json:"count"`
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) listBody {
	t.Helper()
	var body listBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestListCommentsFilters(t *testing.T) {
	f := newAdminFixture(t)
	f.seedComment(t, "C1", "M1", nil)
	f.seedComment(t, "C2", "M2", nil)
	f.seedComment(t, "C3", "M1", nil)

	w := f.do(http.MethodGet, "/comments?media_id=M1", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeList(t, w)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "C3", body.Data[0]["comment_id"])
	assert.Equal(t, "C1", body.Data[1]["comment_id"])

	w = f.do(http.MethodGet, "/comments?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeList(t, w).Count)
}

func TestListRejectsBadLimit(t *testing.T) {
	f := newAdminFixture(t)

	for _, target := range []string{"/comments?limit=abc", "/messages?limit=-1", "/events?limit=1.5"} {
		w := f.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestListReplies(t *testing.T) {
	f := newAdminFixture(t)
	parent := "C1"
	f.seedComment(t, "C1", "M1", nil)
	f.seedComment(t, "R1", "M1", &parent)
	f.seedComment(t, "R2", "M1", &parent)

	w := f.do(http.MethodGet, "/comments/C1/replies", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeList(t, w)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "R2", body.Data[0]["comment_id"])
	assert.Equal(t, "C1", body.Data[0]["parent_comment_id"])
}

func TestListMessagesBySender(t *testing.T) {
	f := newAdminFixture(t)
	for _, m := range []payload.MessageFields{
		{MessageID: "A", SenderID: "S1", RecipientID: "R", Text: "one", Type: "text"},
		{MessageID: "B", SenderID: "S2", RecipientID: "R", Text: "two", Type: "text"},
	} {
		require.NoError(t, f.store.SaveMessage(context.Background(), m).Err)
	}

	w := f.do(http.MethodGet, "/messages?sender_id=S2", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeList(t, w)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "B", body.Data[0]["message_id"])
}

func TestPostReply(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		result     *reply.Result
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "posted",
			body:       `{"reply_text":"thanks!"}`,
			result:     &reply.Result{ReplyID: "R9", StoredID: 7},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "validation",
			body:       `{"reply_text":""}`,
			err:        &reply.ValidationError{Reason: "Comment ID and reply text are required"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Comment ID and reply text are required",
		},
		{
			name:       "unknown comment",
			body:       `{"reply_text":"hi"}`,
			err:        &reply.NotFoundError{CommentID: "C1"},
			wantStatus: http.StatusNotFound,
			wantError:  "Comment not found",
		},
		{
			name:       "api rejected",
			body:       `{"reply_text":"hi"}`,
			err:        &reply.APIError{Message: "Invalid OAuth access token"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid OAuth access token",
		},
		{
			name:       "stored failed",
			body:       `{"reply_text":"hi"}`,
			err:        &reply.StorageError{ReplyID: "R9", Err: errors.New("disk full")},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Reply posted but could not be saved",
		},
		{
			name:       "unexpected",
			body:       `{"reply_text":"hi"}`,
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdminFixture(t)
			var text struct {
				ReplyText string `json:"reply_text"`
			}
			require.NoError(t, json.Unmarshal([]byte(tt.body), &text))
			f.replier.On("Reply", mock.Anything, "C1", text.ReplyText).Return(tt.result, tt.err)

			w := f.do(http.MethodPost, "/comments/C1/replies", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			var got map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, got["error"])
			} else {
				assert.Equal(t, true, got["success"])
				assert.Equal(t, "R9", got["reply_id"])
				assert.EqualValues(t, 7, got["db_id"])
			}
			f.replier.AssertExpectations(t)
		})
	}
}

func TestPostReplyStorageFailureReportsReplyID(t *testing.T) {
	f := newAdminFixture(t)
	f.replier.On("Reply", mock.Anything, "C1", "hi").
		Return(nil, &reply.StorageError{ReplyID: "R42", Err: errors.New("disk full")})

	w := f.do(http.MethodPost, "/comments/C1/replies", `{"reply_text":"hi"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"reply_id":"R42"`)
}

func TestPostReplyInvalidJSON(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do(http.MethodPost, "/comments/C1/replies", `{"reply_text":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.replier.AssertNotCalled(t, "Reply", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessage(t *testing.T) {
	f := newAdminFixture(t)
	f.api.On("SendMessage", mock.Anything, "S1", "hello").
		Return(&instagram.SendResult{RecipientID: "S1", MessageID: "mid.1"}, nil)

	w := f.do(http.MethodPost, "/messages", `{"recipient_id":" S1 ","text":"hello"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"recipient_id":"S1","message_id":"mid.1"}`, w.Body.String())
	f.api.AssertExpectations(t)
}

func TestSendMessageErrors(t *testing.T) {
	f := newAdminFixture(t)
	f.api.On("SendMessage", mock.Anything, "S1", "hello").
		Return(nil, &instagram.APIError{StatusCode: 400, Message: "User not found"})

	w := f.do(http.MethodPost, "/messages", `{"recipient_id":"","text":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Recipient ID and text are required")

	w = f.do(http.MethodPost, "/messages", `{"recipient_id":"S1","text":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "User not found")
}

func TestGetAccount(t *testing.T) {
	f := newAdminFixture(t)
	f.api.On("GetAccountInfo", mock.Anything).
		Return(&instagram.AccountInfo{ID: "17841", Username: "shop"}, nil).Once()
	f.api.On("GetAccountInfo", mock.Anything).
		Return(nil, errors.New("connection refused")).Once()

	w := f.do(http.MethodGet, "/account", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"shop"`)

	w = f.do(http.MethodGet, "/account", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
