package api

import (
	"coin_exchange/internal/accounts" // Account service
	"coin_exchange/internal/utils"    // Utility functions
	"net/http"                        // HTTP status codes

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// RegisterRequest is the registration payload
type RegisterRequest struct {
	Email        string `json:"email" binding:"required"`        // Login email
	ChannelName  string `json:"channel_name" binding:"required"` // Display name
	Password     string `json:"password" binding:"required"`     // Plain password, hashed before storage
	ReferralCode string `json:"referral_code"`                   // Optional referrer code
}

// LoginRequest is the login payload
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`    // Login email
	Password string `json:"password" binding:"required"` // Plain password
}

// RegisterHandler creates an account and returns a session token. A referral
// credits the referrer, so their cached reads are dropped.
func RegisterHandler(svc *accounts.Service, rdb *redis.Client, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide all required fields."})
			return
		}
		user, err := svc.Register(c.Request.Context(), accounts.Registration{
			Email:        req.Email,        // Login email
			ChannelName:  req.ChannelName,  // Display name
			Password:     req.Password,     // Plain password
			ReferralCode: req.ReferralCode, // Optional referral
		})
		if err != nil {
			writeError(c, err, "Registration", logrus.Fields{"email": req.Email})
			return
		}
		if user.ReferredByID != nil {
			invalidate(c, rdb, *user.ReferredByID) // Referrer bonus was minted
		}
		// Generate JWT token
		token, err := utils.GenerateJWT(user.ID, jwtSecret)
		if err != nil {
			writeError(c, err, "Token generation", logrus.Fields{"user_id": user.ID})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
	}
}

// LoginHandler authenticates a user and returns a JWT token
func LoginHandler(svc *accounts.Service, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		user, err := svc.Authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			writeError(c, err, "Login", logrus.Fields{"email": req.Email})
			return
		}
		// Generate JWT token
		token, err := utils.GenerateJWT(user.ID, jwtSecret)
		if err != nil {
			writeError(c, err, "Token generation", logrus.Fields{"user_id": user.ID})
			return
		}
		// Return the token in the response
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

// CheckTokenHandler returns the fresh profile of the token's owner
func CheckTokenHandler(svc *accounts.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		user, err := svc.Profile(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err, "Token check", logrus.Fields{"user_id": userID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}
