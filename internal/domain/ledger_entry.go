package domain

// Ledger entry kinds
const (
	KindSubscriptionReward = "subscription_reward" // target pays subscriber on creation
	KindSponsoredReward    = "sponsored_reward"    // system mint for a sponsored subscription
	KindSubscribeBack      = "subscribe_back"      // original subscriber pays confirmer
	KindRefusalPenalty     = "refusal_penalty"     // refuser pays original subscriber
	KindWelcomeBonus       = "welcome_bonus"       // mandatory first confirmation mint
	KindReferralBonus      = "referral_bonus"      // registration referral mint
	KindDeposit            = "deposit"             // settled deposit mint
	KindBoost              = "boost"               // boost purchase burn
	KindVideoSlot          = "video_slot"          // extra video slot burn
	KindGift               = "gift"                // voluntary burn
)

// LedgerEntry Model
type LedgerEntry struct {
	ID         uint   `gorm:"primaryKey" json:"id"`                   // Primary key
	FromUserID *uint  `gorm:"index" json:"from_user_id,omitempty"`    // Debited user, nil for a mint
	ToUserID   *uint  `gorm:"index" json:"to_user_id,omitempty"`      // Credited user, nil for a burn
	Amount     int64  `gorm:"not null" json:"amount"`                 // Coins moved
	Kind       string `gorm:"size:32;index" json:"kind"`              // One of the Kind* constants
	CreatedAt  int64  `gorm:"autoCreateTime:milli" json:"created_at"` // Timestamp of creation in milliseconds
}
