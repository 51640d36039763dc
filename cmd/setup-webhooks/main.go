// Command setup-webhooks checks the account's webhook subscriptions and
// subscribes the configured fields. It can also refresh the long-lived
// access token.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"instagram-webhook/config"
	"instagram-webhook/internal/instagram"
	"instagram-webhook/internal/subscription"
	"instagram-webhook/pkg/logger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		fields       = flag.String("fields", "", "comma separated fields to subscribe (default: instagram.subscribeFields)")
		dryRun       = flag.Bool("dry-run", false, "report missing fields without subscribing")
		refreshToken = flag.Bool("refresh-token", false, "refresh the long-lived access token before syncing")
		printToken   = flag.Bool("print-token", false, "print the refreshed token to stdout")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Instagram.AccessToken == "" {
		log.Fatal("INSTAGRAM_ACCESS_TOKEN is not set")
	}

	zl := logger.NewLogger(cfg.LogLevel).Desugar()
	defer zl.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client := instagram.NewClient(cfg.Instagram, zl)

	if *refreshToken {
		refreshed, err := client.RefreshToken(ctx)
		if err != nil {
			log.Fatalf("Error refreshing access token: %v", err)
		}
		client.SetAccessToken(refreshed.AccessToken)
		log.Printf("Access token refreshed, expires in %s", time.Duration(refreshed.ExpiresIn)*time.Second)
		if *printToken {
			// stdout only, so the token can be piped into a secret store
			os.Stdout.WriteString(refreshed.AccessToken + "\n")
		}
	}

	want := cfg.Instagram.SubscribeFields
	if *fields != "" {
		want = strings.Split(*fields, ",")
	}
	want = subscription.Normalize(want)
	if len(want) == 0 {
		log.Fatal("No webhook fields to subscribe")
	}

	svc := subscription.NewService(client, zl)

	var status *subscription.Status
	if *dryRun {
		status, err = svc.Inspect(ctx, want)
	} else {
		status, err = svc.Sync(ctx, want)
	}
	if err != nil {
		log.Fatalf("Error synchronizing webhook subscriptions: %v", err)
	}

	out, _ := json.MarshalIndent(status, "", "  ")
	log.Printf("Webhook subscription status:\n%s", out)

	if *dryRun && len(status.Missing) > 0 {
		log.Printf("Missing fields: %s", strings.Join(status.Missing, ", "))
		os.Exit(1)
	}
}
