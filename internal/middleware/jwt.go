package middleware

import (
	"coin_exchange/internal/utils" // JWT utility functions
	"net/http"                     // HTTP status codes
	"strings"                      // String manipulation

	"github.com/gin-gonic/gin" // Gin web framework
)

// UserIDKey is the context key holding the authenticated user's id
const UserIDKey = "userID"

// JWTAuthMiddleware validates JWT tokens and extracts user information.
// The token comes from the Authorization header, or from the token query
// parameter for clients such as EventSource that cannot set headers.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c) // Header first, then query
		// Check if a token was supplied at all
		if tokenStr == "" {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		claims, err := utils.ParseJWT(tokenStr, secret) // Parse the JWT token
		if err != nil {
			// If parsing fails, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(UserIDKey, claims.UserID) // Store userID in context
		c.Next()                        // Proceed to the next handler
	}
}

// bearerToken extracts the raw token string from the request
func bearerToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ") // Standard header form
	}
	return c.Query("token") // Query form for server-sent events
}

// UserID returns the authenticated user's id
func UserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(UserIDKey) // Set by JWTAuthMiddleware
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
