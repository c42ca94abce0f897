package api

import (
	"coin_exchange/internal/accounts"   // Account service
	"coin_exchange/internal/settlement" // Deposit settlement
	"context"                           // Moderator deadline
	"net/http"                          // HTTP status codes
	"time"                              // Timeouts

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// PaymentRequest is the deposit request payload
type PaymentRequest struct {
	Amount         float64 `json:"amount" binding:"required"`          // Deposited amount in ETB
	DepositorPhone string  `json:"depositor_phone" binding:"required"` // Phone the deposit came from
}

// RequestPaymentHandler records a deposit and asks the moderator for a
// decision. The moderator call is bounded by moderatorTimeout and its failure
// does not undo the request.
func RequestPaymentHandler(svc *settlement.Service, acc *accounts.Service, mod settlement.Moderator, moderatorTimeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		var req PaymentRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide both amount and phone number."})
			return
		}
		payment, err := svc.Request(c.Request.Context(), userID, req.Amount, req.DepositorPhone)
		if err != nil {
			writeError(c, err, "Payment request", logrus.Fields{"user_id": userID, "amount": req.Amount})
			return
		}
		if user, err := acc.Profile(c.Request.Context(), userID); err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), moderatorTimeout)
			if err := mod.RequestDecision(ctx, *payment, *user); err != nil {
				logrus.WithFields(logrus.Fields{
					"payment_id": payment.ID,  // Pending payment
					"error":      err.Error(), // Error message
				}).Warn("Moderator notification failed")
			}
			cancel()
		}
		c.JSON(http.StatusCreated, gin.H{
			"message": "Your payment request has been submitted.",
			"payment": payment, // Pending payment
		})
	}
}

// PendingPaymentsHandler lists payments awaiting a decision
func PendingPaymentsHandler(svc *settlement.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := pagination(c) // Read pagination parameters
		list, total, err := svc.Pending(c.Request.Context(), page, pageSize)
		if err != nil {
			writeError(c, err, "List pending payments", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"payments":    list,                        // Pending payments
			"page":        page,                        // Current page
			"page_size":   pageSize,                    // Page size
			"total":       total,                       // Total pending
			"total_pages": totalPages(total, pageSize), // Total pages
		})
	}
}

// ApprovePaymentHandler approves a pending payment and mints its coins
func ApprovePaymentHandler(svc *settlement.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		paymentID, ok := idParam(c, "id")
		if !ok {
			return
		}
		d, err := svc.Approve(c.Request.Context(), paymentID)
		if err != nil {
			writeError(c, err, "Approve payment", logrus.Fields{"payment_id": paymentID})
			return
		}
		invalidate(c, rdb, d.User.ID) // Coins were minted
		c.JSON(http.StatusOK, gin.H{
			"message":   "Payment approved.",
			"payment":   d.Payment,      // Completed payment
			"new_coins": d.User.Balance, // Requester balance
		})
	}
}

// RejectPaymentHandler rejects a pending payment
func RejectPaymentHandler(svc *settlement.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		paymentID, ok := idParam(c, "id")
		if !ok {
			return
		}
		d, err := svc.Reject(c.Request.Context(), paymentID)
		if err != nil {
			writeError(c, err, "Reject payment", logrus.Fields{"payment_id": paymentID})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Payment rejected.",
			"payment": d.Payment, // Failed payment
		})
	}
}
