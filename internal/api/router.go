package api

import (
	"coin_exchange/internal/accounts"   // Account service
	"coin_exchange/internal/boost"      // Boost allocator
	"coin_exchange/internal/exchange"   // Subscription state machine
	"coin_exchange/internal/ledger"     // Balance ledger
	"coin_exchange/internal/metrics"    // Prometheus collectors
	"coin_exchange/internal/middleware" // Auth and rate limiting
	"coin_exchange/internal/notify"     // Notifications and push hub
	"coin_exchange/internal/settlement" // Deposit settlement
	"coin_exchange/internal/videos"     // Video library
	"net/http"                          // HTTP status codes
	"time"                              // Timeouts

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

// Deps holds everything the HTTP layer calls into
type Deps struct {
	DB               *gorm.DB
	Redis            *redis.Client // nil disables caching
	JWTSecret        string
	Hub              *notify.Hub
	Publisher        *notify.Publisher
	Ledger           *ledger.Ledger
	Accounts         *accounts.Service
	Exchange         *exchange.Service
	Boost            *boost.Allocator
	Library          *videos.Library
	Settlement       *settlement.Service
	Moderator        settlement.Moderator
	RateLimiter      *middleware.RateLimiter // nil disables rate limiting
	CatalogTimeout   time.Duration
	ModeratorTimeout time.Duration
}

// NewRouter registers every route on r
func NewRouter(r *gin.Engine, d Deps) {
	if d.CatalogTimeout <= 0 {
		d.CatalogTimeout = 10 * time.Second // Default catalog bound
	}
	if d.ModeratorTimeout <= 0 {
		d.ModeratorTimeout = 5 * time.Second // Default moderator bound
	}
	if d.Moderator == nil {
		d.Moderator = settlement.LogModerator{} // Log-only moderation
	}

	// Operational routes
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	authed := []gin.HandlerFunc{middleware.JWTAuthMiddleware(d.JWTSecret)} // JWT first so limits key on user id
	if d.RateLimiter != nil {
		authed = append(authed, d.RateLimiter.Handler())
	}

	// Auth routes
	auth := r.Group("/api/auth")
	if d.RateLimiter != nil {
		auth.Use(d.RateLimiter.Handler()) // Limit anonymous callers by IP
	}
	auth.POST("/register", RegisterHandler(d.Accounts, d.Redis, d.JWTSecret))                           // Registration endpoint
	auth.POST("/login", LoginHandler(d.Accounts, d.JWTSecret))                                          // Login endpoint
	auth.POST("/check-token", middleware.JWTAuthMiddleware(d.JWTSecret), CheckTokenHandler(d.Accounts)) // Token check endpoint

	// User routes
	users := r.Group("/api/users", authed...)
	users.GET("/profile", ProfileHandler(d.Accounts, d.Redis))          // Cached profile
	users.GET("/events", EventsHandler(d.Hub))                          // Server-sent events
	users.GET("/notifications", NotificationsHandler(d.Publisher))      // Unread notifications
	users.POST("/notifications/:id/read", MarkReadHandler(d.Publisher)) // Mark one read
	users.GET("/search", SearchUsersHandler(d.Accounts))                // Channel name search
	users.GET("/ledger", LedgerHistoryHandler(d.Ledger, d.Redis))       // Own ledger history
	users.POST("/gift", GiftHandler(d.Accounts, d.Redis))               // Burn coins
	users.GET("/:userId/videos", UserVideosHandler(d.Library))          // Another user's videos

	// Video routes
	vids := r.Group("/api/videos", authed...)
	vids.GET("/sponsored", SponsoredHandler(d.Library))                            // Sponsored listing
	vids.GET("/discover", DiscoverHandler(d.Boost))                                // Discovery batch
	vids.GET("/next-boosted", NextBoostedHandler(d.Boost))                         // One boosted impression
	vids.GET("/mandatory", MandatoryVideoHandler())                                // First subscription target
	vids.GET("/boost-tiers", BoostTiersHandler())                                  // Tier price list
	vids.GET("/my-videos", MyVideosHandler(d.Library))                             // Own videos
	vids.POST("/my-videos", AddVideoHandler(d.Library, d.Redis, d.CatalogTimeout)) // Add a video
	vids.DELETE("/my-videos/:id", DeleteVideoHandler(d.Library))                   // Delete a video
	vids.POST("/my-videos/:id/boost", BoostVideoHandler(d.Boost, d.Redis))         // Buy a boost

	// Subscription routes
	subs := r.Group("/api/subscriptions", authed...)
	subs.POST("/perform", PerformSubscriptionHandler(d.Exchange, d.Redis))        // Subscribe and get paid
	subs.POST("/confirm-mandatory", ConfirmMandatoryHandler(d.Exchange, d.Redis)) // Welcome bonus
	subs.GET("/my-subscribers", MySubscribersHandler(d.Exchange))                 // Subscribe-back queue
	subs.POST("/subscribe-back/:id", SubscribeBackHandler(d.Exchange, d.Redis))   // Confirm
	subs.POST("/refuse/:id", RefuseSubscriptionHandler(d.Exchange, d.Redis))      // Refuse
	subs.GET("/my-subscription-ids", MySubscriptionIDsHandler(d.Exchange))        // Confirmed targets

	// Payment routes
	payments := r.Group("/api/payments", authed...)
	payments.POST("/request", RequestPaymentHandler(d.Settlement, d.Accounts, d.Moderator, d.ModeratorTimeout)) // Deposit request

	// Admin routes (protected, admin only)
	admin := r.Group("/admin", middleware.JWTAuthMiddleware(d.JWTSecret), middleware.AdminOnlyMiddleware(d.DB))
	admin.GET("/users", ListUsersHandler(d.Accounts, d.Redis))                        // List users endpoint
	admin.GET("/ledger", ListLedgerHandler(d.DB, d.Redis))                            // List ledger entries endpoint
	admin.GET("/payments/pending", PendingPaymentsHandler(d.Settlement))              // Pending deposits
	admin.POST("/payments/:id/approve", ApprovePaymentHandler(d.Settlement, d.Redis)) // Approve a deposit
	admin.POST("/payments/:id/reject", RejectPaymentHandler(d.Settlement))            // Reject a deposit
}
