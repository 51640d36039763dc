// Package subscription keeps the account's webhook field subscriptions in
// line with configuration.
package subscription

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"instagram-webhook/internal/instagram"

	"go.uber.org/zap"
)

// KnownFields are the fields the webhook endpoint knows how to handle.
var KnownFields = map[string]bool{
	"comments":          true,
	"live_comments":     true,
	"mentions":          true,
	"messages":          true,
	"message_reactions": true,
	"story_insights":    true,
}

type Client interface {
	GetAccountInfo(ctx context.Context) (*instagram.AccountInfo, error)
	GetWebhookSubscriptions(ctx context.Context) ([]instagram.Subscription, error)
	SubscribeToWebhooks(ctx context.Context, fields []string) error
}

// Status is a snapshot of the account and its subscribed fields.
type Status struct {
	Account     *instagram.AccountInfo `json:"account"`
	Subscribed  []string               `json:"subscribed"`
	Missing     []string               `json:"missing"`
	LastChecked time.Time              `json:"last_checked"`
}

type Service struct {
	client Client
	logger *zap.Logger
}

func NewService(client Client, logger *zap.Logger) *Service {
	return &Service{client: client, logger: logger}
}

// Inspect reports which of want are not yet subscribed.
func (s *Service) Inspect(ctx context.Context, want []string) (*Status, error) {
	account, err := s.client.GetAccountInfo(ctx)
	if err != nil {
		return nil, err
	}

	subs, err := s.client.GetWebhookSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	current := map[string]bool{}
	for _, sub := range subs {
		for _, f := range sub.SubscribedFields {
			current[f] = true
		}
	}

	status := &Status{
		Account:     account,
		Subscribed:  keys(current),
		LastChecked: time.Now().UTC(),
	}
	for _, f := range Normalize(want) {
		if !current[f] {
			status.Missing = append(status.Missing, f)
		}
	}
	return status, nil
}

// Sync subscribes any missing fields. The subscribed_apps call replaces the
// field set, so already subscribed fields are sent again.
func (s *Service) Sync(ctx context.Context, want []string) (*Status, error) {
	want = Normalize(want)
	for _, f := range want {
		if !KnownFields[f] {
			s.logger.Warn("Subscribing to a field the webhook does not store", zap.String("field", f))
		}
	}

	status, err := s.Inspect(ctx, want)
	if err != nil {
		return nil, err
	}
	if len(status.Missing) == 0 {
		s.logger.Info("Webhook subscriptions up to date", zap.Strings("fields", status.Subscribed))
		return status, nil
	}

	fields := Normalize(append(append([]string{}, status.Subscribed...), want...))
	if err := s.client.SubscribeToWebhooks(ctx, fields); err != nil {
		return nil, fmt.Errorf("failed to subscribe %v: %w", status.Missing, err)
	}

	s.logger.Info("Subscribed webhook fields",
		zap.Strings("added", status.Missing),
		zap.Strings("fields", fields))

	status.Subscribed = fields
	status.Missing = nil
	return status, nil
}

// Normalize trims, lowercases, de-duplicates and sorts field names. It also
// accepts a single comma separated entry.
func Normalize(fields []string) []string {
	seen := map[string]bool{}
	for _, f := range fields {
		for _, part := range strings.Split(f, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				seen[part] = true
			}
		}
	}
	return keys(seen)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
