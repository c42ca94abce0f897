package api

import (
	"coin_exchange/internal/accounts" // Account service
	"coin_exchange/internal/domain"   // Importing domain models
	"coin_exchange/internal/utils"    // Utility functions
	"net/http"                        // HTTP status codes
	"strconv"                         // String conversion
	"strings"                         // String manipulation
	"time"                            // Date filters

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"gorm.io/gorm"                 // GORM ORM library
)

// UserAdminResponse represents the user data returned to admin
type UserAdminResponse struct {
	ID          uint   `json:"id"`           // User ID
	Email       string `json:"email"`        // Login email
	ChannelName string `json:"channel_name"` // Display name
	Role        string `json:"role"`         // User role
	Balance     int64  `json:"balance"`      // Coin balance
	IsNewUser   bool   `json:"is_new_user"`  // Onboarding pending
}

// ListUsersHandler returns users with their balances
func ListUsersHandler(svc *accounts.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()      // Request scoped context
		page, pageSize := pagination(c) // Read pagination parameters
		// Create a cache key based on pagination parameters
		cacheKey := "admin:users:page=" + strconv.Itoa(page) + ":size=" + strconv.Itoa(pageSize)
		var cached struct {
			Users      []UserAdminResponse `json:"users"`       // List of users
			Page       int                 `json:"page"`        // Current page
			PageSize   int                 `json:"page_size"`   // Page size
			Total      int64               `json:"total"`       // Total number of users
			TotalPages int                 `json:"total_pages"` // Total pages
		}
		// If cached data found, return it
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"users":       cached.Users,      // List of users
				"page":        cached.Page,       // Current page
				"page_size":   cached.PageSize,   // Page size
				"total":       cached.Total,      // Total number of users
				"total_pages": cached.TotalPages, // Total pages
				"cached":      true,              // Indicate response is from cache
			})
			return
		}
		users, total, err := svc.List(ctx, page, pageSize)
		if err != nil {
			writeError(c, err, "List users", nil)
			return
		}
		// Map users to response format
		resp := make([]UserAdminResponse, len(users))
		for i, u := range users {
			resp[i] = UserAdminResponse{
				ID:          u.ID,          // User ID
				Email:       u.Email,       // Login email
				ChannelName: u.ChannelName, // Display name
				Role:        u.Role,        // User role
				Balance:     u.Balance,     // Coin balance
				IsNewUser:   u.IsNewUser,   // Onboarding pending
			}
		}
		respData := gin.H{
			"users":       resp,                        // List of users
			"page":        page,                        // Current page
			"page_size":   pageSize,                    // Page size
			"total":       total,                       // Total number of users
			"total_pages": totalPages(total, pageSize), // Total pages
			"cached":      false,                       // Indicate response is not from cache
		}
		// Cache the response for future requests
		_ = utils.SetCache(ctx, rdb, cacheKey, respData, utils.CacheTTL)
		c.JSON(http.StatusOK, respData) // Return the response
	}
}

// parseDate accepts RFC 3339 timestamps or plain dates and returns epoch milliseconds
func parseDate(s string) (int64, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// ListLedgerHandler returns ledger entries, optionally filtered by user, kind, or date
func ListLedgerHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		// Build cache key from all query params
		var keyParts []string // Parts of the cache key
		for _, k := range []string{"user_id", "kind", "from", "to", "page", "page_size"} {
			keyParts = append(keyParts, k+"="+c.DefaultQuery(k, "")) // Append key-value pair
		}
		cacheKey := "admin:ledger:" + strings.Join(keyParts, ":")
		var cached struct {
			Entries    []domain.LedgerEntry `json:"entries"`     // List of entries
			Page       int                  `json:"page"`        // Current page
			PageSize   int                  `json:"page_size"`   // Page size
			Total      int64                `json:"total"`       // Total number of entries
			TotalPages int                  `json:"total_pages"` // Total pages
		}
		// If cached data found, return it
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"entries":     cached.Entries,    // List of entries
				"page":        cached.Page,       // Current page
				"page_size":   cached.PageSize,   // Page size
				"total":       cached.Total,      // Total number of entries
				"total_pages": cached.TotalPages, // Total pages
				"cached":      true,              // Indicate response is from cache
			})
			return
		}
		page, pageSize := pagination(c)                           // Read pagination parameters
		query := db.WithContext(ctx).Model(&domain.LedgerEntry{}) // Start building the query
		if userID := c.Query("user_id"); userID != "" {
			query = query.Where("from_user_id = ? OR to_user_id = ?", userID, userID) // Filter by user ID
		}
		if kind := c.Query("kind"); kind != "" {
			query = query.Where("kind = ?", kind) // Filter by entry kind
		}
		if from := c.Query("from"); from != "" {
			ms, ok := parseDate(from)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date"})
				return
			}
			query = query.Where("created_at >= ?", ms) // Filter by start date
		}
		if to := c.Query("to"); to != "" {
			ms, ok := parseDate(to)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date"})
				return
			}
			query = query.Where("created_at <= ?", ms) // Filter by end date
		}
		var total int64 // Total entry count
		if err := query.Count(&total).Error; err != nil {
			writeError(c, err, "Count ledger entries", nil)
			return
		}
		var entries []domain.LedgerEntry // Slice to hold entries
		if err := query.Order("created_at desc, id desc").Offset((page - 1) * pageSize).Limit(pageSize).Find(&entries).Error; err != nil {
			writeError(c, err, "Fetch ledger entries", logrus.Fields{"page": page})
			return
		}
		respData := gin.H{
			"entries":     entries,                     // List of entries
			"page":        page,                        // Current page
			"page_size":   pageSize,                    // Page size
			"total":       total,                       // Total number of entries
			"total_pages": totalPages(total, pageSize), // Total pages
			"cached":      false,                       // Indicate response is not from cache
		}
		// Cache the response for future requests
		_ = utils.SetCache(ctx, rdb, cacheKey, respData, utils.CacheTTL)
		c.JSON(http.StatusOK, respData) // Return the response
	}
}
