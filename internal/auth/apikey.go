package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// clientCtxKey is the Gin context key used to store the authenticated client ID.
const clientCtxKey = "client_id"

// APIKeyMiddleware identifies the calling deployment by mapping
// X-API-Key → clientID. In production this mapping would typically
// come from IAM/JWT/Secret Manager.
func APIKeyMiddleware(keys map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
		clientID, ok := keys[apiKey]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(clientCtxKey, clientID)
		c.Next()
	}
}

// ClientID returns the authenticated client ID from the request context.
func ClientID(c *gin.Context) string {
	v, _ := c.Get(clientCtxKey)
	s, _ := v.(string)
	return s
}
