package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"instagram-webhook/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SecurityMiddleware guards the admin API. The webhook endpoint is
// authenticated by its HMAC signature instead.
type SecurityMiddleware struct {
	logger       *zap.Logger
	apiKeys      map[string]string // clientID -> apiKey
	apiKeyHeader string
	limiter      *RateLimiter
}

func NewSecurityMiddleware(logger *zap.Logger, apiKeys map[string]string, apiKeyHeader string) *SecurityMiddleware {
	return &SecurityMiddleware{
		logger:       logger,
		apiKeys:      apiKeys,
		apiKeyHeader: apiKeyHeader,
		limiter:      NewRateLimiter(10, 1, 10000),
	}
}

func (m *SecurityMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(m.apiKeyHeader)
		if apiKey == "" {
			m.logger.Warn("Missing API key", zap.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing API key"})
			return
		}

		clientID := m.validateAPIKey(apiKey)
		if clientID == "" {
			prefixLen := len(apiKey)
			if prefixLen > 8 {
				prefixLen = 8
			}
			m.logger.Warn("Invalid API key", zap.String("ip", c.ClientIP()), zap.String("api_key_prefix", apiKey[:prefixLen]))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		// Set client ID for later use
		c.Set("clientID", clientID)
		m.logger.Debug("Successfully authenticated client", zap.String("client_id", clientID))
		c.Next()
	}
}

func (m *SecurityMiddleware) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+m.apiKeyHeader)
		c.Header("Access-Control-Max-Age", "3600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimit must run after Authenticate; unauthenticated requests pass
// through untouched.
func (m *SecurityMiddleware) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetString("clientID")
		if id == "" {
			c.Next()
			return
		}

		if !m.limiter.AllowRequest(id) {
			metrics.RateLimitExceeded.WithLabelValues(id).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}

func (m *SecurityMiddleware) ValidatePayload() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.GetHeader("Content-Type"), "application/json") {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"error": "Content-Type must be application/json"})
			return
		}

		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Empty request body"})
			return
		}

		c.Next()
	}
}

func (m *SecurityMiddleware) validateAPIKey(apiKey string) string {
	for clientID, key := range m.apiKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return clientID
		}
	}
	return ""
}
