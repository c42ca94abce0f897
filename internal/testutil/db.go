// Package testutil provides database fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"coin_exchange/internal/db"
	"coin_exchange/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with the full schema.
//
// The pool is limited to a single connection because SQLite allows one
// writer. Goroutines in "concurrent" tests therefore run their transactions
// one after another: they check that every guarded UPDATE refuses a second
// winner, not how MySQL interleaves statements or honours row locks (the
// sqlite dialect drops FOR UPDATE).
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err, "open sqlite")
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(gdb), "migrate")
	return gdb
}

// CreateUser inserts a user with the given balance. Users start out as new
// users, the same as after registration.
func CreateUser(t *testing.T, gdb *gorm.DB, name string, balance int64) domain.User {
	t.Helper()
	user := domain.User{
		Email:        name + "@example.com",
		ChannelName:  name,
		Password:     "x",
		Balance:      balance,
		ReferralCode: "SUB_" + uuid.NewString()[:8],
	}
	require.NoError(t, gdb.Create(&user).Error, "create user %s", name)
	return user
}

// CreateVideo inserts a plain, unboosted video owned by ownerID.
func CreateVideo(t *testing.T, gdb *gorm.DB, ownerID uint, sponsored bool) domain.Video {
	t.Helper()
	video := domain.Video{
		ExternalID:  uuid.NewString()[:11],
		Title:       "video",
		ChannelName: "channel",
		ChannelID:   fmt.Sprintf("UC%d", ownerID),
		OwnerID:     ownerID,
		IsSponsored: sponsored,
	}
	require.NoError(t, gdb.Create(&video).Error, "create video")
	return video
}

// Boost marks a video as boosted with the given counters.
func Boost(t *testing.T, gdb *gorm.DB, videoID uint, target, impressions int64, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, gdb.Model(&domain.Video{}).Where("id = ?", videoID).Updates(map[string]any{
		"is_boosted":        true,
		"boost_target":      target,
		"boost_impressions": impressions,
		"boost_expires_at":  expiresAt,
	}).Error)
}

// Balance reads a user's balance straight from the table.
func Balance(t *testing.T, gdb *gorm.DB, userID uint) int64 {
	t.Helper()
	var user domain.User
	require.NoError(t, gdb.First(&user, userID).Error)
	return user.Balance
}

// FixedClock returns a clock function that always reports now.
func FixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}
