package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"strconv"       // Key formatting
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// CacheTTL is how long cached reads stay valid
const CacheTTL = 60 * time.Second

// History pages are cached only at the default size and only for the first
// few pages, so invalidation can name every key it has to drop.
const (
	HistoryPageSize    = 20 // Only cached page size
	historyPagesCached = 5  // Deepest cached page
)

// GetCache retrieves a value from Redis and unmarshals it into dest.
// A nil client behaves as a cache miss.
func GetCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil // Caching disabled
	}
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	if rdb == nil {
		return nil // Caching disabled
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// DeleteCache deletes keys from Redis
func DeleteCache(ctx context.Context, rdb *redis.Client, keys ...string) error {
	if rdb == nil || len(keys) == 0 {
		return nil // Nothing to do
	}
	return rdb.Del(ctx, keys...).Err() // Delete keys from Redis
}

// ProfileKey is the cache key of a user's profile
func ProfileKey(userID uint) string {
	return "profile:user:" + strconv.FormatUint(uint64(userID), 10)
}

// HistoryKey is the cache key of one page of a user's ledger history
func HistoryKey(userID uint, page, pageSize int) string {
	return "ledger:user:" + strconv.FormatUint(uint64(userID), 10) + ":page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
}

// HistoryCacheable reports whether a history page may be cached
func HistoryCacheable(page, pageSize int) bool {
	return pageSize == HistoryPageSize && page >= 1 && page <= historyPagesCached
}

// UserKeys lists every cache key that carries the user's balance
func UserKeys(userID uint) []string {
	keys := make([]string, 0, historyPagesCached+1)
	keys = append(keys, ProfileKey(userID)) // Profile carries the balance
	for page := 1; page <= historyPagesCached; page++ {
		keys = append(keys, HistoryKey(userID, page, HistoryPageSize))
	}
	return keys
}

// InvalidateUsers drops the cached profile and history pages of every given
// user. Call it after their balances change.
func InvalidateUsers(ctx context.Context, rdb *redis.Client, userIDs ...uint) error {
	if rdb == nil {
		return nil // Caching disabled
	}
	keys := make([]string, 0, len(userIDs)*(historyPagesCached+1))
	for _, id := range userIDs {
		keys = append(keys, UserKeys(id)...)
	}
	return DeleteCache(ctx, rdb, keys...)
}
