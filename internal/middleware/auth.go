package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	headerAPIKey      = "X-API-Key"
	headerAuth        = "Authorization"
	bearerPrefix      = "Bearer "
	unauthorizedError = "Unauthorized"
)

// APIKeyAuth rejects requests that do not carry one of the configured keys.
type APIKeyAuth struct {
	apiKeys [][]byte
	logger  *slog.Logger
}

// NewAPIKeyAuth creates a new API key authentication middleware. Empty keys
// are ignored. With no keys at all every request is rejected, so callers
// only install it when keys are configured.
func NewAPIKeyAuth(apiKeys []string, logger *slog.Logger) *APIKeyAuth {
	if logger == nil {
		logger = slog.Default()
	}

	keys := make([][]byte, 0, len(apiKeys))
	for _, key := range apiKeys {
		if key != "" {
			keys = append(keys, []byte(key))
		}
	}

	return &APIKeyAuth{
		apiKeys: keys,
		logger:  logger,
	}
}

// Handler returns the gin middleware. The key is read from X-API-Key first,
// then from an Authorization: Bearer header.
func (a *APIKeyAuth) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.isValidAPIKey(a.extractAPIKey(c.Request)) {
			a.logger.Warn("unauthorized request - invalid or missing API key",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"client_ip", c.ClientIP(),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": unauthorizedError})
			return
		}
		c.Next()
	}
}

func (a *APIKeyAuth) extractAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get(headerAPIKey); apiKey != "" {
		return apiKey
	}

	authHeader := r.Header.Get(headerAuth)
	if strings.HasPrefix(authHeader, bearerPrefix) {
		return strings.TrimPrefix(authHeader, bearerPrefix)
	}

	return ""
}

// isValidAPIKey compares against every key in constant time.
func (a *APIKeyAuth) isValidAPIKey(providedKey string) bool {
	if providedKey == "" {
		return false
	}

	provided := []byte(providedKey)
	valid := false
	for _, key := range a.apiKeys {
		if subtle.ConstantTimeCompare(provided, key) == 1 {
			valid = true
		}
	}
	return valid
}
