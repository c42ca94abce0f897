package config

import (
	"os"      // For environment variables
	"strconv" // For string to number conversion

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort        string  // Application port
	DBUser         string  // Database user
	DBPassword     string  // Database password
	DBHost         string  // Database host
	DBPort         string  // Database port
	DBName         string  // Database name
	JWTSecret      string  // JWT secret key
	RedisAddr      string  // Redis server address, empty disables Redis
	RedisPass      string  // Redis password
	RedisDB        int     // Redis database number
	IsProd         bool    // Is production environment
	YouTubeAPIKey  string  // YouTube Data API key for video lookups
	PushRelay      bool    // Route push events through Redis pub/sub
	RateLimitRPS   float64 // Requests per second per caller, 0 disables limiting
	RateLimitBurst int     // Burst size per caller
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil {
		rps = 10 // Default rate
	}
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil {
		burst = 20 // Default burst
	}
	return &Config{
		AppPort:        envOr("APP_PORT", "8080"),         // Application port
		DBUser:         os.Getenv("DB_USER"),              // Database user
		DBPassword:     os.Getenv("DB_PASSWORD"),          // Database password
		DBHost:         os.Getenv("DB_HOST"),              // Database host
		DBPort:         os.Getenv("DB_PORT"),              // Database port
		DBName:         os.Getenv("DB_NAME"),              // Database name
		JWTSecret:      os.Getenv("JWT_SECRET"),           // JWT secret key
		RedisAddr:      os.Getenv("REDIS_ADDR"),           // Redis server address
		RedisPass:      os.Getenv("REDIS_PASS"),           // Redis password
		RedisDB:        redisDB,                           // Redis database number
		IsProd:         os.Getenv("IS_PROD") == "true",    // Is production environment
		YouTubeAPIKey:  os.Getenv("YOUTUBE_API_KEY"),      // YouTube Data API key
		PushRelay:      os.Getenv("PUSH_RELAY") == "true", // Cluster-aware push delivery
		RateLimitRPS:   rps,                               // Requests per second per caller
		RateLimitBurst: burst,                             // Burst size per caller
	}
}

// envOr returns the variable's value, or def when unset
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
