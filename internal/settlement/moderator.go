package settlement

import (
	"context"

	"coin_exchange/internal/domain"

	"github.com/sirupsen/logrus"
)

// Moderator is asked to review a new deposit. The decision itself comes back
// through Approve or Reject.
type Moderator interface {
	RequestDecision(ctx context.Context, payment domain.Payment, user domain.User) error
}

// LogModerator announces deposits in the application log for operators.
type LogModerator struct{}

// RequestDecision writes the review request as a structured log line.
func (LogModerator) RequestDecision(ctx context.Context, payment domain.Payment, user domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"payment_id":      payment.ID,
		"user_id":         user.ID,
		"channel_name":    user.ChannelName,
		"email":           user.Email,
		"amount":          payment.AmountRequested,
		"coins":           payment.CoinsRequested,
		"depositor_phone": payment.DepositorPhone,
	}).Warn("Deposit awaiting moderator decision")
	return nil
}
