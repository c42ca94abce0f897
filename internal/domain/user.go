package domain

import "time"

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User Model
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`                       // Primary key
	Email        string    `gorm:"unique;not null" json:"email"`               // Unique login email
	ChannelName  string    `gorm:"not null" json:"channel_name"`               // Display name of the user's channel
	ChannelID    *string   `gorm:"unique;size:64" json:"channel_id,omitempty"` // External channel id, learned from the first video
	Password     string    `gorm:"not null" json:"-"`                          // Hashed password
	Role         string    `gorm:"default:user" json:"role"`                   // Role: user or admin
	Balance      int64     `gorm:"not null;default:0" json:"balance"`          // Coin balance, mutated only by the ledger
	IsNewUser    bool      `gorm:"not null;default:true" json:"is_new_user"`   // Cleared by the mandatory first confirmation
	ReferralCode string    `gorm:"unique;size:32" json:"referral_code"`        // Code other users register with
	ReferredByID *uint     `gorm:"index" json:"referred_by_id,omitempty"`      // Referrer, if any
	CreatedAt    time.Time `json:"created_at"`                                 // Registration time
	UpdatedAt    time.Time `json:"updated_at"`                                 // Last profile or balance change
}
