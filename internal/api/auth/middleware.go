package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// PrincipalKey is the gin context key holding the authenticated principal id.
const PrincipalKey = "principal_id"

// Middleware validates the bearer token and injects the principal id into
// the request context. The token is read from the Authorization header, or
// from the access_token query parameter as a fallback (EventSource clients
// cannot set headers).
func Middleware(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing bearer token",
			})
			return
		}

		principalID, err := issuer.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
			})
			return
		}

		c.Set(PrincipalKey, principalID)
		c.Next()
	}
}

// Principal returns the authenticated principal id from the gin context.
func Principal(c *gin.Context) string {
	principalID, _ := c.Get(PrincipalKey)
	id, _ := principalID.(string)
	return id
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("access_token")
}
