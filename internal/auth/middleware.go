package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/live-queue-system/pkg/jwt"
)

// Middleware validates the bearer token (header, or query param for
// WebSocket upgrades) and puts the caller's id and role on the context.
func Middleware(tokens *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if token := c.Query("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		claims, err := tokens.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequireDJ rejects callers whose token does not carry the DJ role.
func RequireDJ() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != "dj" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "DJ role required"})
			return
		}
		c.Next()
	}
}
