// Package instagram is a small Graph API client covering what the webhook
// service needs: account info, comment replies, direct messages, webhook
// subscriptions and long-lived token refresh.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"instagram-webhook/config"

	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "instagram-webhook/1.0"
	maxErrorBody   = 200
)

// APIError is an error object returned by the Graph API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	FBTraceID  string `json:"fbtrace_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Instagram API error: %s (type: %s, code: %d)", e.Message, e.Type, e.Code)
}

type AccountInfo struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	AccountType string `json:"account_type,omitempty"`
	MediaCount  int    `json:"media_count,omitempty"`
}

type ReplyResult struct {
	ID string `json:"id"`
}

type SendResult struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// Subscription is one app subscribed to the account's webhooks.
type Subscription struct {
	Name             string   `json:"name,omitempty"`
	ID               string   `json:"id,omitempty"`
	SubscribedFields []string `json:"subscribed_fields"`
}

type TokenRefresh struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type Client struct {
	httpClient  *http.Client
	accessToken string
	baseURL     string // versioned Graph API root
	hostURL     string // unversioned, used for token refresh
	logger      *zap.Logger
}

func NewClient(cfg config.InstagramConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		accessToken: cfg.AccessToken,
		baseURL:     cfg.GraphBaseURL(),
		hostURL:     strings.TrimRight(cfg.BaseURL, "/"),
		logger:      logger,
	}
}

// SetAccessToken swaps the token after a refresh.
func (c *Client) SetAccessToken(token string) {
	c.accessToken = token
}

func (c *Client) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	var info AccountInfo
	params := url.Values{"fields": {"id,username,account_type,media_count"}}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/me", params, &info); err != nil {
		return nil, fmt.Errorf("get account info: %w", err)
	}
	return &info, nil
}

// ReplyToComment posts a threaded reply under commentID.
func (c *Client) ReplyToComment(ctx context.Context, commentID, text string) (*ReplyResult, error) {
	var res ReplyResult
	params := url.Values{"message": {text}}
	endpoint := c.baseURL + "/" + url.PathEscape(commentID) + "/replies"
	if err := c.do(ctx, http.MethodPost, endpoint, params, &res); err != nil {
		return nil, fmt.Errorf("reply to comment %s: %w", commentID, err)
	}
	if res.ID == "" {
		return nil, fmt.Errorf("reply to comment %s: response carried no id", commentID)
	}

	c.logger.Info("Replied to comment",
		zap.String("comment_id", commentID),
		zap.String("reply_id", res.ID))
	return &res, nil
}

func (c *Client) SendMessage(ctx context.Context, recipientID, text string) (*SendResult, error) {
	recipient, _ := json.Marshal(map[string]string{"id": recipientID})
	message, _ := json.Marshal(map[string]string{"text": text})

	var res SendResult
	params := url.Values{
		"recipient": {string(recipient)},
		"message":   {string(message)},
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/me/messages", params, &res); err != nil {
		return nil, fmt.Errorf("send message to %s: %w", recipientID, err)
	}
	if res.MessageID == "" {
		return nil, fmt.Errorf("send message to %s: response carried no message_id", recipientID)
	}
	return &res, nil
}

func (c *Client) GetWebhookSubscriptions(ctx context.Context) ([]Subscription, error) {
	var res struct {
		Data []Subscription `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/me/subscribed_apps", nil, &res); err != nil {
		return nil, fmt.Errorf("get webhook subscriptions: %w", err)
	}
	return res.Data, nil
}

func (c *Client) SubscribeToWebhooks(ctx context.Context, fields []string) error {
	var res struct {
		Success bool `json:"success"`
	}
	params := url.Values{"subscribed_fields": {strings.Join(fields, ",")}}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/me/subscribed_apps", params, &res); err != nil {
		return fmt.Errorf("subscribe to webhooks: %w", err)
	}
	if !res.Success {
		return errors.New("subscribe to webhooks: API did not report success")
	}
	return nil
}

// RefreshToken extends the current long-lived token. The token must be at
// least 24 hours old and not yet expired.
func (c *Client) RefreshToken(ctx context.Context) (*TokenRefresh, error) {
	var res TokenRefresh
	params := url.Values{"grant_type": {"ig_refresh_token"}}
	if err := c.do(ctx, http.MethodGet, c.hostURL+"/refresh_access_token", params, &res); err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}
	if res.AccessToken == "" {
		return nil, errors.New("refresh access token: response carried no token")
	}
	return &res, nil
}

// do sends a form-encoded request and decodes the JSON response into out.
// GET parameters go in the query string.
func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", c.accessToken)

	var body io.Reader
	target := endpoint
	if method == http.MethodGet {
		target += "?" + params.Encode()
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Instagram API request failed",
			zap.String("method", method),
			zap.String("path", req.URL.Path),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Instagram API response",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("parse response (status %d): %w (body: %s)", resp.StatusCode, err, truncate(string(raw), maxErrorBody))
	}
	if envelope.Error != nil {
		envelope.Error.StatusCode = resp.StatusCode
		c.logger.Error("Instagram API error",
			zap.String("path", req.URL.Path),
			zap.String("error_message", envelope.Error.Message),
			zap.String("error_type", envelope.Error.Type),
			zap.Int("error_code", envelope.Error.Code))
		return envelope.Error
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{StatusCode: resp.StatusCode, Message: truncate(string(raw), maxErrorBody), Type: "http"}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
