package api

import (
	"coin_exchange/internal/accounts" // Account service
	"coin_exchange/internal/domain"   // Importing domain models
	"coin_exchange/internal/ledger"   // Balance ledger
	"coin_exchange/internal/notify"   // Notifications and push hub
	"coin_exchange/internal/utils"    // Utility functions
	"coin_exchange/internal/videos"   // Video library
	"errors"                          // Error matching
	"fmt"                             // Message formatting
	"io"                              // Stream writer
	"net/http"                        // HTTP status codes
	"time"                            // Heartbeat interval

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// heartbeatInterval keeps idle event streams open through proxies
const heartbeatInterval = 25 * time.Second

// ProfileHandler returns the authenticated user's profile, cached briefly
func ProfileHandler(svc *accounts.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()                                // Request scoped context
		cacheKey := utils.ProfileKey(userID)                      // Cache key for profile
		var cached domain.User                                    // User struct to hold data
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached) // Try to get from cache
		// If found in cache, return it
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"user": cached, "cached": true})
			return
		}
		user, err := svc.Profile(ctx, userID) // Fetch from DB
		if err != nil {
			writeError(c, err, "Profile", logrus.Fields{"user_id": userID})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, user, utils.CacheTTL) // Cache the profile
		c.JSON(http.StatusOK, gin.H{"user": user, "cached": false})
	}
}

// SearchUsersHandler finds other users by channel name
func SearchUsersHandler(svc *accounts.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		users, err := svc.Search(c.Request.Context(), c.Query("q"), userID)
		if err != nil {
			writeError(c, err, "User search", logrus.Fields{"user_id": userID})
			return
		}
		results := make([]gin.H, 0, len(users)) // Only ids and names leave the server
		for _, u := range users {
			results = append(results, gin.H{"id": u.ID, "channel_name": u.ChannelName})
		}
		c.JSON(http.StatusOK, results)
	}
}

// UserVideosHandler lists another user's videos
func UserVideosHandler(lib *videos.Library) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := idParam(c, "userId")
		if !ok {
			return
		}
		list, err := lib.ListByOwner(c.Request.Context(), ownerID)
		if err != nil {
			writeError(c, err, "Fetch user videos", logrus.Fields{"owner_id": ownerID})
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// GiftRequest is the gift payload
type GiftRequest struct {
	Amount int64 `json:"amount" binding:"required"` // Coins to give away
}

// GiftHandler burns coins from the caller's balance
func GiftHandler(svc *accounts.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		var req GiftRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid amount to gift."})
			return
		}
		balance, err := svc.Gift(c.Request.Context(), userID, req.Amount)
		if err != nil {
			writeError(c, err, "Gift", logrus.Fields{"user_id": userID, "amount": req.Amount})
			return
		}
		invalidate(c, rdb, userID) // Balance changed
		c.JSON(http.StatusOK, gin.H{
			"message":   fmt.Sprintf("Thank you for your generous gift of %d coins! We truly appreciate your support.", req.Amount),
			"new_coins": balance, // Balance after the gift
		})
	}
}

// LedgerHistoryHandler returns the caller's ledger entries, paginated and cached
func LedgerHistoryHandler(l *ledger.Ledger, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		page, pageSize := pagination(c)                      // Read pagination parameters
		ctx := c.Request.Context()                           // Request scoped context
		cacheKey := utils.HistoryKey(userID, page, pageSize) // Redis cache key
		cacheable := utils.HistoryCacheable(page, pageSize)  // Invalidation covers only these pages
		var cached struct {
			Entries    []domain.LedgerEntry `json:"entries"`     // List of entries
			Page       int                  `json:"page"`        // Current page
			PageSize   int                  `json:"page_size"`   // Page size
			Total      int64                `json:"total"`       // Total entries
			TotalPages int                  `json:"total_pages"` // Total pages
		}
		// Try to get from cache
		if cacheable {
			found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
			if err == nil && found {
				c.JSON(http.StatusOK, gin.H{
					"entries":     cached.Entries,    // Cached entries
					"page":        cached.Page,       // Current page
					"page_size":   cached.PageSize,   // Page size
					"total":       cached.Total,      // Total entries
					"total_pages": cached.TotalPages, // Total pages
					"cached":      true,
				})
				return
			}
		}
		entries, total, err := l.Entries(ctx, userID, page, pageSize)
		if err != nil {
			writeError(c, err, "Ledger history", logrus.Fields{"user_id": userID})
			return
		}
		resp := gin.H{
			"entries":     entries,                     // List of entries
			"page":        page,                        // Current page
			"page_size":   pageSize,                    // Page size
			"total":       total,                       // Total entries
			"total_pages": totalPages(total, pageSize), // Total pages
			"cached":      false,                       // Not from cache
		}
		if cacheable {
			_ = utils.SetCache(ctx, rdb, cacheKey, resp, utils.CacheTTL) // Cache the page
		}
		c.JSON(http.StatusOK, resp)
	}
}

// NotificationsHandler lists the caller's unread notifications, newest first
func NotificationsHandler(p *notify.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		list, err := p.Unread(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err, "Fetch notifications", logrus.Fields{"user_id": userID})
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// MarkReadHandler flags one of the caller's notifications as read
func MarkReadHandler(p *notify.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		if err := p.MarkRead(c.Request.Context(), id, userID); err != nil {
			writeError(c, err, "Update notification", logrus.Fields{"user_id": userID, "notification_id": id})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read."})
	}
}

// EventsHandler streams the caller's push events as server-sent events
func EventsHandler(hub *notify.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		listener, err := hub.Register(userID)
		if errors.Is(err, notify.ErrHubClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server is shutting down"})
			return
		}
		defer hub.Unregister(listener) // No-op once replaced or closed

		c.Header("Content-Type", "text/event-stream") // SSE content type
		c.Header("Cache-Control", "no-cache")         // Never cache the stream
		c.Header("Connection", "keep-alive")          // Long-lived connection
		c.Header("X-Accel-Buffering", "no")           // Disable proxy buffering
		c.SSEvent("", gin.H{"message": "Connection established"})
		c.Writer.Flush()
		logrus.WithFields(logrus.Fields{"user_id": userID}).Info("Event stream connected")

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()
		c.Stream(func(w io.Writer) bool {
			select {
			case ev := <-listener.Events():
				c.SSEvent(ev.Type, ev.Data) // Named event with JSON data
				return true
			case <-heartbeat.C:
				_, err := io.WriteString(w, ": ping\n\n") // Comment line keeps the stream open
				return err == nil
			case <-listener.Done():
				return false // Replaced by a newer stream or hub closed
			case <-c.Request.Context().Done():
				return false // Client went away
			}
		})
		logrus.WithFields(logrus.Fields{"user_id": userID}).Info("Event stream disconnected")
	}
}
