package domain

import "time"

// PaymentStatus is the settlement state of a deposit request.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment is a user's request to convert an external deposit into coins.
type Payment struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	UserID          uint          `gorm:"index;not null" json:"user_id"`
	AmountRequested float64       `gorm:"not null" json:"amount_requested"`
	CoinsRequested  int64         `gorm:"not null" json:"coins_requested"`
	DepositorPhone  string        `gorm:"size:32;not null" json:"depositor_phone"`
	Status          PaymentStatus `gorm:"size:16;index;not null;default:pending" json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
