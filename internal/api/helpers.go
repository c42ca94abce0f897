package api

import (
	"coin_exchange/internal/domain"     // Domain errors
	"coin_exchange/internal/middleware" // Authenticated user lookup
	"coin_exchange/internal/utils"      // Cache helpers
	"coin_exchange/internal/videos"     // Catalog errors
	"context"                           // Deadline errors
	"errors"                            // Error matching
	"net/http"                          // HTTP status codes
	"strconv"                           // String conversion

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// clientErrors are reported to the caller verbatim with 400
var clientErrors = []error{
	domain.ErrInsufficientFunds,
	domain.ErrAlreadyProcessed,
	domain.ErrAlreadyOnboarded,
	domain.ErrSelfReference,
	domain.ErrInvalidTier,
	domain.ErrInvalidAmount,
	domain.ErrDepositTooSmall,
	domain.ErrAlreadyExists,
	domain.ErrInvalidInput,
}

// statusFor maps an operation error to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// writeError reports err to the client. Server-side failures are logged with
// fields and answered with a generic message naming op.
func writeError(c *gin.Context, err error, op string, fields logrus.Fields) {
	status := statusFor(err) // Pick the status first
	if status < http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": err.Error()}) // Caller-facing failure
		return
	}
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["error"] = err.Error() // Error message
	fields["path"] = c.FullPath() // Route
	logrus.WithFields(fields).Error(op + " failed")
	if errors.Is(err, videos.ErrCatalogConfig) {
		c.JSON(status, gin.H{"error": "Server configuration error: The YouTube API key is invalid or missing."})
		return
	}
	c.JSON(status, gin.H{"error": op + " failed"})
}

// currentUser returns the authenticated user's id, answering 401 when absent
func currentUser(c *gin.Context) (uint, bool) {
	userID, exists := middleware.UserID(c) // Get userID from context
	// Check if userID exists in context
	if !exists {
		// If not, return unauthorized
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	return userID, true
}

// idParam parses a positive numeric path parameter, answering 400 otherwise
func idParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(v), true
}

// pagination reads page and page_size with defaults 1 and 20
func pagination(c *gin.Context) (int, int) {
	page := 1      // Default page
	pageSize := 20 // Default page size
	// If page exists in query
	if p := c.Query("page"); p != "" {
		// Convert page to integer
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v // Set page if valid
		}
	}
	// If page_size exists in query
	if ps := c.Query("page_size"); ps != "" {
		// Convert page_size to integer
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v // Set page size if valid
		}
	}
	return page, pageSize
}

// totalPages is the page count for total items
func totalPages(total int64, pageSize int) int {
	return (int(total) + pageSize - 1) / pageSize
}

// invalidate drops cached reads of users whose balances changed
func invalidate(c *gin.Context, rdb *redis.Client, userIDs ...uint) {
	if err := utils.InvalidateUsers(c.Request.Context(), rdb, userIDs...); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_ids": userIDs,     // Affected users
			"error":    err.Error(), // Error message
		}).Warn("Cache invalidation failed")
	}
}
