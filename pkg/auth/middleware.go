package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const UserIDKey = "user_id"

// RequireAuth returns a Gin middleware that validates access tokens and puts
// the authenticated user id into the request context.
func RequireAuth(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization token",
			})
			return
		}

		claims, err := v.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// GetUserID extracts the authenticated user id from the Gin context.
func GetUserID(c *gin.Context) uint64 {
	if id, exists := c.Get(UserIDKey); exists {
		if userID, ok := id.(uint64); ok {
			return userID
		}
	}
	return 0
}
