package api

import (
	"coin_exchange/internal/exchange" // Subscription state machine
	"errors"                          // Error matching
	"fmt"                             // Message formatting
	"io"                              // Empty body detection
	"net/http"                        // HTTP status codes

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// PerformRequest is the subscribe payload
type PerformRequest struct {
	VideoID uint `json:"video_id" binding:"required"` // Video whose owner was subscribed to
}

// RefuseRequest is the refusal payload
type RefuseRequest struct {
	Reason string `json:"reason"` // Optional refusal reason
}

// PerformSubscriptionHandler records a subscription and pays the subscriber
func PerformSubscriptionHandler(svc *exchange.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		var req PerformRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		res, err := svc.Perform(c.Request.Context(), userID, req.VideoID)
		if err != nil {
			writeError(c, err, "Subscription", logrus.Fields{"user_id": userID, "video_id": req.VideoID})
			return
		}
		invalidate(c, rdb, userID, res.Subscription.SubscribedToID) // Both balances may have changed
		message := fmt.Sprintf("Subscribed to %s! You earned %d coins.", res.TargetName, res.Reward)
		c.JSON(http.StatusOK, gin.H{
			"message":      message,          // Human readable outcome
			"new_coins":    res.Balance,      // Subscriber balance
			"subscription": res.Subscription, // Created subscription
		})
	}
}

// ConfirmMandatoryHandler completes a new user's first subscription
func ConfirmMandatoryHandler(svc *exchange.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		balance, err := svc.ConfirmMandatory(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err, "Confirm mandatory subscription", logrus.Fields{"user_id": userID})
			return
		}
		invalidate(c, rdb, userID) // Welcome bonus minted
		c.JSON(http.StatusOK, gin.H{
			"message":   fmt.Sprintf("Welcome! You earned %d coins.", exchange.WelcomeBonus),
			"new_coins": balance, // Balance after the bonus
		})
	}
}

// MySubscribersHandler lists pending subscribers waiting for a subscribe-back
func MySubscribersHandler(svc *exchange.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		pending, err := svc.PendingFor(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err, "Get subscribers", logrus.Fields{"user_id": userID})
			return
		}
		c.JSON(http.StatusOK, pending)
	}
}

// SubscribeBackHandler confirms a pending subscription made to the caller
func SubscribeBackHandler(svc *exchange.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		subID, ok := idParam(c, "id")
		if !ok {
			return
		}
		res, err := svc.SubscribeBack(c.Request.Context(), subID, userID)
		if err != nil {
			writeError(c, err, "Subscribe-back", logrus.Fields{"user_id": userID, "subscription_id": subID})
			return
		}
		invalidate(c, rdb, userID, res.Subscription.SubscriberID) // Transfer touched both users
		message := fmt.Sprintf("You subscribed back to %s and earned %d coins.", res.SubscriberName, res.Reward)
		if !res.Settled {
			message = fmt.Sprintf("You subscribed back to %s, but they could not afford the reward.", res.SubscriberName)
		}
		c.JSON(http.StatusOK, gin.H{
			"message":      message,          // Human readable outcome
			"new_coins":    res.Balance,      // Confirmer balance
			"settled":      res.Settled,      // Whether coins moved
			"subscription": res.Subscription, // Confirmed subscription
		})
	}
}

// RefuseSubscriptionHandler refuses a pending subscription made to the caller
func RefuseSubscriptionHandler(svc *exchange.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		subID, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req RefuseRequest // Reason is optional, so an empty body is fine
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		res, err := svc.Refuse(c.Request.Context(), subID, userID, req.Reason)
		if err != nil {
			writeError(c, err, "Refuse subscription", logrus.Fields{"user_id": userID, "subscription_id": subID})
			return
		}
		invalidate(c, rdb, userID, res.Subscription.SubscriberID) // Penalty moved between both users
		c.JSON(http.StatusOK, gin.H{
			"message":      fmt.Sprintf("Subscription refused. %d coins were paid to the subscriber.", res.Penalty),
			"new_coins":    res.Balance,      // Refuser balance
			"subscription": res.Subscription, // Refused subscription
		})
	}
}

// MySubscriptionIDsHandler lists the users the caller is confirmed subscribed to
func MySubscriptionIDsHandler(svc *exchange.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		ids, err := svc.ConfirmedTargets(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err, "Get subscription ids", logrus.Fields{"user_id": userID})
			return
		}
		c.JSON(http.StatusOK, ids)
	}
}
