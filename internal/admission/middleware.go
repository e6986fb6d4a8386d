package admission

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Middleware gates a mutation route with the admission limiter. The user id
// comes from the auth middleware, the event id from the route. Over-budget
// callers get 429; a counter store that stays down after retries fails the
// request with 503 rather than letting unmetered writes through.
func Middleware(limiter *Limiter, resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			// Pre-auth routes (join) are keyed by client address.
			userID = c.ClientIP()
		}
		eventID := c.Param("id")

		allowed, err := limiter.TryAdmit(c.Request.Context(), userID, resourceType, eventID)
		if err != nil {
			log.Printf("Admission check unavailable: %v", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": ErrRateLimited.Error()})
			return
		}

		c.Next()
	}
}
