package api

import (
	"coin_exchange/internal/boost"  // Boost allocator
	"coin_exchange/internal/videos" // Video library
	"context"                       // Catalog deadline
	"net/http"                      // HTTP status codes
	"time"                          // Timeouts

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// AddVideoRequest is the add-video payload
type AddVideoRequest struct {
	VideoURL string `json:"video_url" binding:"required"` // YouTube URL
}

// BoostRequest is the boost payload
type BoostRequest struct {
	Tier string `json:"tier" binding:"required"` // One of boost.TierCodes()
}

// MyVideosHandler lists the caller's videos
func MyVideosHandler(lib *videos.Library) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		list, err := lib.ListByOwner(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err, "Fetch your videos", logrus.Fields{"user_id": userID})
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// AddVideoHandler lists a new video for the caller. The catalog lookup is
// bounded by catalogTimeout.
func AddVideoHandler(lib *videos.Library, rdb *redis.Client, catalogTimeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		var req AddVideoRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid YouTube URL provided."})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), catalogTimeout)
		defer cancel()
		res, err := lib.Add(ctx, userID, req.VideoURL)
		if err != nil {
			writeError(c, err, "Add video", logrus.Fields{"user_id": userID, "video_url": req.VideoURL})
			return
		}
		invalidate(c, rdb, userID) // Slot charge or channel id may have changed
		c.JSON(http.StatusCreated, gin.H{
			"message":   "Video added successfully!",
			"new_coins": res.Balance, // Balance after any slot charge
			"video":     res.Video,   // Stored video
		})
	}
}

// DeleteVideoHandler removes one of the caller's videos
func DeleteVideoHandler(lib *videos.Library) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		videoID, ok := idParam(c, "id")
		if !ok {
			return
		}
		if err := lib.Delete(c.Request.Context(), userID, videoID); err != nil {
			writeError(c, err, "Delete video", logrus.Fields{"user_id": userID, "video_id": videoID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Video deleted."})
	}
}

// BoostTiersHandler lists the purchasable boost tiers
func BoostTiersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tiers := make([]gin.H, 0, len(boost.Tiers))
		for _, code := range boost.TierCodes() {
			t := boost.Tiers[code]
			tiers = append(tiers, gin.H{"tier": code, "cost": t.Cost, "duration_days": t.DurationDays})
		}
		c.JSON(http.StatusOK, tiers)
	}
}

// BoostVideoHandler buys a boost for one of the caller's videos
func BoostVideoHandler(alloc *boost.Allocator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		videoID, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req BoostRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid boost level selected."})
			return
		}
		act, err := alloc.Activate(c.Request.Context(), videoID, userID, req.Tier)
		if err != nil {
			writeError(c, err, "Boost video", logrus.Fields{"user_id": userID, "video_id": videoID, "tier": req.Tier})
			return
		}
		invalidate(c, rdb, userID) // Boost cost was debited
		c.JSON(http.StatusOK, gin.H{
			"message":   "Video boosted successfully!",
			"new_coins": act.Balance, // Balance after the purchase
			"video":     act.Video,   // Boosted video
		})
	}
}

// DiscoverHandler returns a discovery batch for the caller
func DiscoverHandler(alloc *boost.Allocator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		batch, err := alloc.Discover(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err, "Fetch discoverable videos", logrus.Fields{"user_id": userID})
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

// NextBoostedHandler allocates one boosted impression, answering null when
// nothing is eligible
func NextBoostedHandler(alloc *boost.Allocator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		video, err := alloc.NextImpression(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err, "Fetch next boosted video", logrus.Fields{"user_id": userID})
			return
		}
		c.JSON(http.StatusOK, video)
	}
}

// SponsoredHandler lists sponsored videos the caller does not own
func SponsoredHandler(lib *videos.Library) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		list, err := lib.Sponsored(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err, "Fetch sponsored videos", logrus.Fields{"user_id": userID})
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// MandatoryVideoHandler returns the first video every new user subscribes to
func MandatoryVideoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, videos.Mandatory)
	}
}
