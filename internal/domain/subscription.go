package domain

import "time"

// SubscriptionStatus is the lifecycle state of a subscription exchange.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionConfirmed SubscriptionStatus = "confirmed"
	SubscriptionRefused   SubscriptionStatus = "refused"
)

// DefaultRefusalReason is stored when a refuser gives no reason.
const DefaultRefusalReason = "No reason provided."

// Subscription Model
type Subscription struct {
	ID             uint               `gorm:"primaryKey" json:"id"`
	SubscriberID   uint               `gorm:"index;not null" json:"subscriber_id"`
	SubscribedToID uint               `gorm:"index;not null" json:"subscribed_to_id"`
	Status         SubscriptionStatus `gorm:"size:16;index;not null;default:pending" json:"status"`
	RefusalReason  string             `json:"refusal_reason"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}
