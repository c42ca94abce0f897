// Package exchange runs the reciprocal subscription state machine:
// pending -> confirmed | refused, with the coin transfer each step triggers.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"coin_exchange/internal/domain"
	"coin_exchange/internal/ledger"
	"coin_exchange/internal/notify"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Coin amounts of each exchange step.
const (
	SponsoredReward     int64 = 3
	SubscriptionReward  int64 = 1
	SubscribeBackReward int64 = 1
	RefusalPenalty      int64 = 2
	WelcomeBonus        int64 = 3
)

// Service applies subscription transitions and their ledger effects.
type Service struct {
	db        *gorm.DB
	ledger    *ledger.Ledger
	publisher *notify.Publisher
}

// NewService wires the state machine to its ledger and publisher.
func NewService(db *gorm.DB, l *ledger.Ledger, p *notify.Publisher) *Service {
	return &Service{db: db, ledger: l, publisher: p}
}

// PerformResult describes a newly created subscription.
type PerformResult struct {
	Subscription domain.Subscription
	Sponsored    bool
	Reward       int64
	Balance      int64 // subscriber's balance afterwards
	TargetName   string
}

// Perform records that subscriberID subscribed to the owner of videoID and
// pays the subscriber. Sponsored videos mint the reward; any other video is
// paid by its owner, and nothing is recorded when the owner cannot pay.
func (s *Service) Perform(ctx context.Context, subscriberID, videoID uint) (*PerformResult, error) {
	var res PerformResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var subscriber domain.User
		if err := first(tx, &subscriber, subscriberID, "user"); err != nil {
			return err
		}
		var video domain.Video
		if err := first(tx, &video, videoID, "video"); err != nil {
			return err
		}
		if video.OwnerID == subscriber.ID || (subscriber.ChannelID != nil && *subscriber.ChannelID == video.ChannelID) {
			return fmt.Errorf("%w: you can't subscribe to yourself", domain.ErrSelfReference)
		}
		var target domain.User
		if err := first(tx, &target, video.OwnerID, "user"); err != nil {
			return err
		}

		l := s.ledger.In(tx)
		if video.IsSponsored {
			balance, err := l.Credit(ctx, subscriber.ID, SponsoredReward, domain.KindSponsoredReward)
			if err != nil {
				return err
			}
			res.Sponsored, res.Reward, res.Balance = true, SponsoredReward, balance
		} else {
			out, err := l.Transfer(ctx, target.ID, subscriber.ID, SubscriptionReward, domain.KindSubscriptionReward)
			if errors.Is(err, domain.ErrInsufficientFunds) {
				return fmt.Errorf("%w: channel owner cannot afford the %d coin reward", domain.ErrInsufficientFunds, SubscriptionReward)
			}
			if err != nil {
				return err
			}
			res.Reward, res.Balance = SubscriptionReward, out.ToBalance
		}

		sub := domain.Subscription{
			SubscriberID:   subscriber.ID,
			SubscribedToID: target.ID,
			Status:         domain.SubscriptionPending,
		}
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}
		res.Subscription = sub
		res.TargetName = target.ChannelName
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"subscription_id": res.Subscription.ID,
		"subscriber_id":   subscriberID,
		"target_id":       res.Subscription.SubscribedToID,
		"sponsored":       res.Sponsored,
		"reward":          res.Reward,
	}).Info("Subscription performed")
	return &res, nil
}

// BackResult describes a subscribe-back confirmation.
type BackResult struct {
	Subscription   domain.Subscription
	Settled        bool  // false when the original subscriber could not pay
	Reward         int64 // coins received by the confirmer
	Balance        int64 // confirmer's balance afterwards
	SubscriberName string
}

// SubscribeBack confirms a pending subscription made to confirmerID. The
// original subscriber pays the confirmer; when they cannot, the subscription
// is still confirmed to clear the queue and Settled is false.
func (s *Service) SubscribeBack(ctx context.Context, subscriptionID, confirmerID uint) (*BackResult, error) {
	var res BackResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := owned(tx, subscriptionID, confirmerID)
		if err != nil {
			return err
		}
		if err := advance(tx, sub.ID, domain.SubscriptionConfirmed, ""); err != nil {
			return err
		}
		var original domain.User
		if err := first(tx, &original, sub.SubscriberID, "user"); err != nil {
			return err
		}
		res.SubscriberName = original.ChannelName

		out, err := s.ledger.In(tx).Transfer(ctx, original.ID, confirmerID, SubscribeBackReward, domain.KindSubscribeBack)
		switch {
		case errors.Is(err, domain.ErrInsufficientFunds):
			res.Settled = false
			if res.Balance, err = s.ledger.In(tx).Balance(ctx, confirmerID); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			res.Settled, res.Reward, res.Balance = true, SubscribeBackReward, out.ToBalance
		}
		sub.Status = domain.SubscriptionConfirmed
		res.Subscription = *sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"subscription_id": subscriptionID,
		"confirmer_id":    confirmerID,
		"settled":         res.Settled,
	}).Info("Subscription confirmed")
	return &res, nil
}

// RefuseResult describes a refusal.
type RefuseResult struct {
	Subscription domain.Subscription
	Penalty      int64
	Balance      int64 // refuser's balance afterwards
}

// Refuse rejects a pending subscription made to refuserID. The refuser pays
// the original subscriber a penalty, and the subscriber is notified.
func (s *Service) Refuse(ctx context.Context, subscriptionID, refuserID uint, reason string) (*RefuseResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = domain.DefaultRefusalReason
	}
	var (
		res             RefuseResult
		message         string
		subscriberCoins int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := owned(tx, subscriptionID, refuserID)
		if err != nil {
			return err
		}
		if err := advance(tx, sub.ID, domain.SubscriptionRefused, reason); err != nil {
			return err
		}
		var refuser domain.User
		if err := first(tx, &refuser, refuserID, "user"); err != nil {
			return err
		}
		out, err := s.ledger.In(tx).Transfer(ctx, refuserID, sub.SubscriberID, RefusalPenalty, domain.KindRefusalPenalty)
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return fmt.Errorf("%w: you need at least %d coins to refuse a subscription", domain.ErrInsufficientFunds, RefusalPenalty)
		}
		if err != nil {
			return err
		}
		message = fmt.Sprintf("You have been awarded %d coins because %s did not subscribe back.", RefusalPenalty, refuser.ChannelName)
		if _, err := s.publisher.Append(tx, sub.SubscriberID, message, domain.NotificationRefusalReward); err != nil {
			return err
		}
		sub.Status, sub.RefusalReason = domain.SubscriptionRefused, reason
		res.Subscription, res.Penalty, res.Balance = *sub, RefusalPenalty, out.FromBalance
		subscriberCoins = out.ToBalance
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Push(res.Subscription.SubscriberID, domain.NotificationRefusalReward, message, map[string]any{"new_coins": subscriberCoins})
	logrus.WithFields(logrus.Fields{
		"subscription_id": subscriptionID,
		"refuser_id":      refuserID,
		"subscriber_id":   res.Subscription.SubscriberID,
		"penalty":         RefusalPenalty,
	}).Info("Subscription refused")
	return &res, nil
}

// ConfirmMandatory completes a new user's one-time first subscription and
// mints the welcome bonus. It returns the new balance.
func (s *Service) ConfirmMandatory(ctx context.Context, userID uint) (int64, error) {
	var balance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.User{}).
			Where("id = ? AND is_new_user = ?", userID, true).
			Update("is_new_user", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var user domain.User
			if err := first(tx, &user, userID, "user"); err != nil {
				return err
			}
			return fmt.Errorf("%w: this action is only for new users", domain.ErrAlreadyOnboarded)
		}
		var err error
		balance, err = s.ledger.In(tx).Credit(ctx, userID, WelcomeBonus, domain.KindWelcomeBonus)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// owned loads a subscription made to targetID. Subscriptions to anyone else
// are reported as missing.
func owned(tx *gorm.DB, subscriptionID, targetID uint) (*domain.Subscription, error) {
	var sub domain.Subscription
	if err := first(tx, &sub, subscriptionID, "subscription"); err != nil {
		return nil, err
	}
	if sub.SubscribedToID != targetID {
		return nil, fmt.Errorf("%w: subscription %d", domain.ErrNotFound, subscriptionID)
	}
	return &sub, nil
}

// advance moves a subscription out of pending. The status guard in the
// WHERE clause makes the transition happen at most once.
func advance(tx *gorm.DB, subscriptionID uint, status domain.SubscriptionStatus, reason string) error {
	res := tx.Model(&domain.Subscription{}).
		Where("id = ? AND status = ?", subscriptionID, domain.SubscriptionPending).
		Updates(map[string]any{"status": status, "refusal_reason": reason})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: this subscription has already been processed", domain.ErrAlreadyProcessed)
	}
	return nil
}

func first(tx *gorm.DB, dest any, id uint, what string) error {
	err := tx.First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", domain.ErrNotFound, what, id)
	}
	return err
}
