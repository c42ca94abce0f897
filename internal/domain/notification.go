package domain

import "time"

// Notification types
const (
	NotificationInfo          = "info"
	NotificationRefusalReward = "refusal_reward"
	NotificationPayment       = "payment_update"
)

// Notification Model
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Message   string    `gorm:"not null" json:"message"`
	Type      string    `gorm:"size:32;default:info" json:"type"`
	IsRead    bool      `gorm:"not null;default:false;index" json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
