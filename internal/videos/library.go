// Package videos manages the videos users list for exchange.
package videos

import (
	"context"
	"errors"
	"fmt"

	"coin_exchange/internal/domain"
	"coin_exchange/internal/ledger"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Slot pricing.
const (
	FreeSlots     = 1
	ExtraSlotCost = 3
)

// SponsoredLimit caps the sponsored listing.
const SponsoredLimit = 3

// MandatoryVideo is the video every new user subscribes to first.
type MandatoryVideo struct {
	VideoID   string `json:"video_id"`
	ChannelID string `json:"channel_id"`
}

// Mandatory is the fixed first-subscription target.
var Mandatory = MandatoryVideo{VideoID: "VCJPHV6gQDk", ChannelID: "UC0kCpfjHnorr39BtAmmH0Pg"}

// Library stores users' videos.
type Library struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	catalog Catalog
}

// NewLibrary returns a library resolving metadata through catalog.
func NewLibrary(db *gorm.DB, l *ledger.Ledger, catalog Catalog) *Library {
	return &Library{db: db, ledger: l, catalog: catalog}
}

// AddResult is the outcome of Add.
type AddResult struct {
	Video   domain.Video
	Charged int64
	Balance int64
}

// Add lists the video at rawURL for ownerID. The first FreeSlots videos are
// free; each further one costs ExtraSlotCost coins.
func (lib *Library) Add(ctx context.Context, ownerID uint, rawURL string) (*AddResult, error) {
	externalID, ok := ParseExternalID(rawURL)
	if !ok {
		return nil, fmt.Errorf("%w: invalid YouTube URL provided", domain.ErrInvalidInput)
	}
	media, err := lib.catalog.LookupMedia(ctx, externalID)
	if err != nil {
		return nil, err
	}

	var out AddResult
	err = lib.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The owner row lock serializes concurrent adds, so the slot count
		// below cannot be read twice before either insert lands.
		var owner domain.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&owner, ownerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user %d", domain.ErrNotFound, ownerID)
			}
			return err
		}
		var count int64
		if err := tx.Model(&domain.Video{}).Where("owner_id = ?", ownerID).Count(&count).Error; err != nil {
			return err
		}
		out.Balance = owner.Balance
		if count >= FreeSlots {
			balance, err := lib.ledger.In(tx).Debit(ctx, ownerID, ExtraSlotCost, domain.KindVideoSlot)
			if errors.Is(err, domain.ErrInsufficientFunds) {
				return fmt.Errorf("%w: you need %d coins for another video slot", domain.ErrInsufficientFunds, ExtraSlotCost)
			}
			if err != nil {
				return err
			}
			out.Charged, out.Balance = ExtraSlotCost, balance
		}

		out.Video = domain.Video{
			ExternalID:  externalID,
			Title:       media.Title,
			ChannelName: media.ChannelTitle,
			ChannelID:   media.ChannelID,
			OwnerID:     ownerID,
		}
		if err := tx.Create(&out.Video).Error; err != nil {
			return err
		}
		if owner.ChannelID != nil || media.ChannelID == "" {
			return nil
		}
		var claimed int64
		if err := tx.Model(&domain.User{}).Where("channel_id = ?", media.ChannelID).Count(&claimed).Error; err != nil {
			return err
		}
		if claimed > 0 {
			return nil
		}
		return tx.Model(&domain.User{}).Where("id = ?", ownerID).Update("channel_id", media.ChannelID).Error
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"video_id":    out.Video.ID,
		"owner_id":    ownerID,
		"external_id": externalID,
		"charged":     out.Charged,
	}).Info("Video added")
	return &out, nil
}

// Delete removes one of the owner's videos and its viewer records.
func (lib *Library) Delete(ctx context.Context, ownerID, videoID uint) error {
	return lib.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND owner_id = ?", videoID, ownerID).Delete(&domain.Video{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: video %d", domain.ErrNotFound, videoID)
		}
		return tx.Where("video_id = ?", videoID).Delete(&domain.VideoView{}).Error
	})
}

// ListByOwner returns the owner's videos, newest first.
func (lib *Library) ListByOwner(ctx context.Context, ownerID uint) ([]domain.Video, error) {
	var out []domain.Video
	err := lib.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("id desc").Find(&out).Error
	return out, err
}

// Sponsored returns up to SponsoredLimit sponsored videos the viewer does not own.
func (lib *Library) Sponsored(ctx context.Context, viewerID uint) ([]domain.Video, error) {
	var out []domain.Video
	err := lib.db.WithContext(ctx).
		Where("is_sponsored = ? AND owner_id <> ?", true, viewerID).
		Order("id asc").
		Limit(SponsoredLimit).
		Find(&out).Error
	return out, err
}
