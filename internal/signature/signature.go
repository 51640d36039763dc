// Package signature validates the X-Hub-Signature-256 header Meta attaches
// to webhook deliveries: an HMAC-SHA256 of the raw request body keyed with
// the app secret, hex encoded and prefixed with "sha256=".
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	HeaderName = "X-Hub-Signature-256"
	prefix     = "sha256="
)

// Verify reports whether header carries the HMAC of body under secret.
// The comparison is constant time. An empty header is simply invalid.
func Verify(body []byte, header, secret string) bool {
	received := strings.TrimPrefix(strings.TrimSpace(header), prefix)
	if received == "" {
		return false
	}

	receivedBytes, err := hex.DecodeString(received)
	if err != nil {
		return false
	}

	return hmac.Equal(receivedBytes, compute(body, secret))
}

// Sign returns the header value Meta would send for body.
func Sign(body []byte, secret string) string {
	return prefix + hex.EncodeToString(compute(body, secret))
}

func compute(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
