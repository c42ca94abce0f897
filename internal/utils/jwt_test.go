package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(42, "secret")
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	require.EqualValues(t, 42, claims.UserID)

	_, err = ParseJWT(token, "other")
	require.Error(t, err)
	_, err = ParseJWT("garbage", "secret")
	require.Error(t, err)
}

func TestCacheHelpersWithoutRedis(t *testing.T) {
	var dest map[string]any
	found, err := GetCache(context.Background(), nil, "k", &dest)
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, SetCache(context.Background(), nil, "k", 1, CacheTTL))
	require.NoError(t, InvalidateUsers(context.Background(), nil, 1, 2))
	require.Equal(t, "ledger:user:7:page:2:size:20", HistoryKey(7, 2, 20))
}

func TestHistoryCacheMatchesInvalidation(t *testing.T) {
	require.True(t, HistoryCacheable(1, HistoryPageSize))
	require.False(t, HistoryCacheable(1, 50))
	require.False(t, HistoryCacheable(historyPagesCached+1, HistoryPageSize))

	keys := UserKeys(7)
	require.Contains(t, keys, ProfileKey(7))
	for page := 1; page <= 10; page++ {
		for _, size := range []int{10, HistoryPageSize, 50, 100} {
			if HistoryCacheable(page, size) {
				require.Contains(t, keys, HistoryKey(7, page, size), "page %d size %d", page, size)
			}
		}
	}
}
