package main

import (
	"coin_exchange/internal/accounts"   // Account service
	"coin_exchange/internal/api"        // Custom package for API handlers
	"coin_exchange/internal/boost"      // Boost allocator
	"coin_exchange/internal/config"     // Custom package for configuration
	"coin_exchange/internal/db"         // Database connection
	"coin_exchange/internal/exchange"   // Subscription state machine
	"coin_exchange/internal/ledger"     // Balance ledger
	"coin_exchange/internal/middleware" // Custom package for middleware
	"coin_exchange/internal/notify"     // Notifications and push hub
	"coin_exchange/internal/settlement" // Deposit settlement
	"coin_exchange/internal/videos"     // Video library
	"context"                           // Shutdown and Redis contexts
	"errors"                            // Error matching
	"net/http"                          // HTTP server
	"os"                                // Signals
	"os/signal"                         // Signal handling
	"syscall"                           // SIGTERM
	"time"                              // Timeouts

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.JWTSecret == "" {
		logrus.Fatal("JWT_SECRET must be set")
	}

	// Connect to the database
	gdb, err := db.Open(db.DSN(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client, optional unless the push relay is enabled
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		// Test Redis connection
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			logrus.Fatalf("failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
	} else if cfg.PushRelay {
		logrus.Fatal("PUSH_RELAY requires REDIS_ADDR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Push delivery: local hub, optionally fanned out through Redis
	hub := notify.NewHub(16)
	var push notify.Deliverer = hub
	if cfg.PushRelay {
		relay := notify.NewRedisRelay(redisClient, hub, notify.DefaultRelayChannel)
		push = relay
		go func() {
			if err := relay.Run(ctx); err != nil {
				logrus.WithFields(logrus.Fields{"error": err.Error()}).Error("Push relay stopped")
			}
		}()
	}

	// Core services
	l := ledger.New(gdb)
	publisher := notify.NewPublisher(gdb, push)
	deps := api.Deps{
		DB:               gdb,
		Redis:            redisClient,
		JWTSecret:        cfg.JWTSecret,
		Hub:              hub,
		Publisher:        publisher,
		Ledger:           l,
		Accounts:         accounts.NewService(gdb, l),
		Exchange:         exchange.NewService(gdb, l, publisher),
		Boost:            boost.NewAllocator(gdb, l, nil),
		Library:          videos.NewLibrary(gdb, l, videos.NewYouTube(cfg.YouTubeAPIKey)),
		Settlement:       settlement.NewService(gdb, l, publisher),
		Moderator:        settlement.LogModerator{},
		CatalogTimeout:   10 * time.Second,
		ModeratorTimeout: 5 * time.Second,
	}
	if cfg.RateLimitRPS > 0 {
		deps.RateLimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		deps.RateLimiter.StartSweeper(time.Minute, ctx.Done())
	}

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}
	api.NewRouter(r, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort, // Listen address
		Handler:           r,                 // Gin engine
		ReadHeaderTimeout: 10 * time.Second,  // Slow client guard
	}
	go func() {
		logrus.WithFields(logrus.Fields{"port": cfg.AppPort, "push_relay": cfg.PushRelay}).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")
	hub.Close() // Ends open event streams so Shutdown does not wait on them
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithFields(logrus.Fields{"error": err.Error()}).Error("Graceful shutdown failed")
	}
}
