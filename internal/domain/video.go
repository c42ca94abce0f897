package domain

import "time"

// Video is a boostable content unit owned by a user.
type Video struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	ExternalID       string     `gorm:"size:32;not null" json:"external_id"`
	Title            string     `gorm:"not null" json:"title"`
	ChannelName      string     `gorm:"not null" json:"channel_name"`
	ChannelID        string     `gorm:"size:64;not null" json:"channel_id"`
	OwnerID          uint       `gorm:"index;not null" json:"owner_id"`
	Views            int64      `gorm:"not null;default:0" json:"views"`
	IsSponsored      bool       `gorm:"not null;default:false" json:"is_sponsored"`
	IsBoosted        bool       `gorm:"not null;default:false;index" json:"is_boosted"`
	BoostExpiresAt   *time.Time `json:"boost_expires_at,omitempty"`
	BoostTarget      int64      `gorm:"not null;default:0" json:"boost_target"`
	BoostImpressions int64      `gorm:"not null;default:0" json:"boost_impressions"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// VideoView records that a viewer was shown a boosted video. The composite
// primary key makes the viewed-by set duplicate free.
type VideoView struct {
	VideoID   uint `gorm:"primaryKey;autoIncrement:false"`
	UserID    uint `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time
}
