// Package boost sells paid exposure for videos and rations the resulting
// impressions among unique viewers.
package boost

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"coin_exchange/internal/domain"
	"coin_exchange/internal/ledger"
	"coin_exchange/internal/metrics"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Tier is the price and lifetime of one boost level.
type Tier struct {
	Cost         int64 `json:"cost"`
	DurationDays int   `json:"duration_days"`
}

// Tiers maps a tier code, which doubles as the impression target, to its terms.
var Tiers = map[string]Tier{
	"100":  {Cost: 25, DurationDays: 7},
	"500":  {Cost: 125, DurationDays: 14},
	"1000": {Cost: 250, DurationDays: 21},
}

// Discovery batch sizes.
const (
	DiscoverBatch   = 20
	BoostedPerBatch = 3
)

// candidatePool bounds how many eligible videos are tried per allocation.
const candidatePool = 10

var errSlotLost = errors.New("boost: impression slot lost")

// Allocator activates boosts and hands out their impressions.
type Allocator struct {
	db     *gorm.DB
	ledger *ledger.Ledger
	now    func() time.Time
}

// NewAllocator returns an allocator. A nil now uses time.Now.
func NewAllocator(db *gorm.DB, l *ledger.Ledger, now func() time.Time) *Allocator {
	if now == nil {
		now = time.Now
	}
	return &Allocator{db: db, ledger: l, now: now}
}

// TierCodes lists the known tier codes in ascending order.
func TierCodes() []string {
	codes := make([]string, 0, len(Tiers))
	for code := range Tiers {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		a, _ := strconv.Atoi(codes[i])
		b, _ := strconv.Atoi(codes[j])
		return a < b
	})
	return codes
}

// Activation is the outcome of a boost purchase.
type Activation struct {
	Video   domain.Video
	Cost    int64
	Balance int64 // owner's balance afterwards
}

// Activate charges the owner for tierCode and (re)starts the video's boost
// with a fresh impression counter and viewer set.
func (a *Allocator) Activate(ctx context.Context, videoID, ownerID uint, tierCode string) (*Activation, error) {
	tier, ok := Tiers[tierCode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTier, tierCode)
	}
	target, err := strconv.ParseInt(tierCode, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTier, tierCode)
	}

	var out Activation
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var video domain.Video
		if err := tx.Where("id = ? AND owner_id = ?", videoID, ownerID).First(&video).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: video %d", domain.ErrNotFound, videoID)
			}
			return err
		}
		balance, err := a.ledger.In(tx).Debit(ctx, ownerID, tier.Cost, domain.KindBoost)
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return fmt.Errorf("%w: insufficient coins for this boost", domain.ErrInsufficientFunds)
		}
		if err != nil {
			return err
		}

		expiresAt := a.now().UTC().Add(time.Duration(tier.DurationDays) * 24 * time.Hour)
		if err := tx.Model(&video).Updates(map[string]any{
			"is_boosted":        true,
			"boost_expires_at":  expiresAt,
			"boost_target":      target,
			"boost_impressions": 0,
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("video_id = ?", video.ID).Delete(&domain.VideoView{}).Error; err != nil {
			return err
		}
		if err := tx.First(&video, video.ID).Error; err != nil {
			return err
		}
		out = Activation{Video: video, Cost: tier.Cost, Balance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"video_id": videoID,
		"owner_id": ownerID,
		"tier":     tierCode,
		"cost":     tier.Cost,
	}).Info("Boost activated")
	return &out, nil
}

// NextImpression picks one eligible boosted video for the viewer and counts
// the impression. It returns nil when nothing is eligible.
func (a *Allocator) NextImpression(ctx context.Context, viewerID uint) (*domain.Video, error) {
	picked, err := a.allocate(ctx, viewerID, 1, false)
	if err != nil || len(picked) == 0 {
		return nil, err
	}
	return &picked[0], nil
}

// Discover returns a batch of up to DiscoverBatch videos for the viewer: up
// to BoostedPerBatch boosted picks, each counted as an impression, followed
// by regular videos. Owners the viewer already subscribed to are skipped and
// every listed video's view counter is incremented.
func (a *Allocator) Discover(ctx context.Context, viewerID uint) ([]domain.Video, error) {
	boosted, err := a.allocate(ctx, viewerID, BoostedPerBatch, true)
	if err != nil {
		return nil, err
	}

	db := a.db.WithContext(ctx)
	query := db.Where("is_boosted = ? AND is_sponsored = ? AND owner_id <> ?", false, false, viewerID).
		Where("owner_id NOT IN (?)", subscribedOwners(db, viewerID))
	if len(boosted) > 0 {
		ids := make([]uint, 0, len(boosted))
		for _, v := range boosted {
			ids = append(ids, v.ID)
		}
		query = query.Where("id NOT IN ?", ids)
	}
	var regular []domain.Video
	if err := query.Order("id asc").Limit(DiscoverBatch - len(boosted)).Find(&regular).Error; err != nil {
		return nil, err
	}

	batch := append(boosted, regular...)
	if len(batch) == 0 {
		return batch, nil
	}
	ids := make([]uint, 0, len(batch))
	for i := range batch {
		ids = append(ids, batch[i].ID)
		batch[i].Views++
	}
	if err := db.Model(&domain.Video{}).Where("id IN ?", ids).
		UpdateColumn("views", gorm.Expr("views + 1")).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

// allocate claims up to want impressions for the viewer, trying eligible
// candidates in order until enough claims succeed.
func (a *Allocator) allocate(ctx context.Context, viewerID uint, want int, excludeSubscribed bool) ([]domain.Video, error) {
	now := a.now().UTC()
	db := a.db.WithContext(ctx)
	query := eligible(db, viewerID, now)
	if excludeSubscribed {
		query = query.Where("owner_id NOT IN (?)", subscribedOwners(db, viewerID))
	}
	var candidates []domain.Video
	if err := query.Order("boost_expires_at asc, id asc").Limit(want + candidatePool).Find(&candidates).Error; err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		metrics.RecordImpression("none")
	}

	picked := make([]domain.Video, 0, want)
	for _, c := range candidates {
		if len(picked) == want {
			break
		}
		video, err := a.claim(ctx, c.ID, viewerID, now)
		if err != nil {
			return nil, err
		}
		if video == nil {
			metrics.RecordImpression("contended")
			continue
		}
		metrics.RecordImpression("allocated")
		picked = append(picked, *video)
	}
	return picked, nil
}

// claim is the single atomic impression step for one video: the eligibility
// check and the counter increment are one conditional UPDATE, and the viewer
// record shares its transaction. It returns nil when the slot was lost.
func (a *Allocator) claim(ctx context.Context, videoID, viewerID uint, now time.Time) (*domain.Video, error) {
	var video domain.Video
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := eligible(tx, viewerID, now).
			Model(&domain.Video{}).
			Where("id = ?", videoID).
			UpdateColumn("boost_impressions", gorm.Expr("boost_impressions + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errSlotLost
		}
		view := domain.VideoView{VideoID: videoID, UserID: viewerID, CreatedAt: now}
		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&view)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			return errSlotLost
		}
		return tx.First(&video, videoID).Error
	})
	if errors.Is(err, errSlotLost) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// eligible scopes a query to boosted videos the viewer may still be shown.
func eligible(db *gorm.DB, viewerID uint, now time.Time) *gorm.DB {
	return db.Where("is_boosted = ? AND is_sponsored = ? AND boost_expires_at > ? AND boost_impressions < boost_target AND owner_id <> ?",
		true, false, now, viewerID).
		Where("id NOT IN (?)", db.Model(&domain.VideoView{}).Select("video_id").Where("user_id = ?", viewerID))
}

func subscribedOwners(db *gorm.DB, viewerID uint) *gorm.DB {
	return db.Model(&domain.Subscription{}).Select("subscribed_to_id").Where("subscriber_id = ?", viewerID)
}
