package exchange

import (
	"context"

	"coin_exchange/internal/domain"
)

// PendingSubscriber is one entry of a user's subscribe-back queue.
type PendingSubscriber struct {
	Subscription    domain.Subscription `json:"subscription"`
	SubscriberName  string              `json:"subscriber_name"`
	SubscriberVideo VideoRef            `json:"subscriber_video"`
}

// VideoRef points at a video the target can subscribe back through.
type VideoRef struct {
	ID         uint   `json:"id"`
	ExternalID string `json:"external_id"`
	ChannelID  string `json:"channel_id"`
}

// PendingFor lists pending subscriptions made to targetID, oldest first.
// Subscribers without any video are left out since there is nothing to
// subscribe back to.
func (s *Service) PendingFor(ctx context.Context, targetID uint) ([]PendingSubscriber, error) {
	db := s.db.WithContext(ctx)
	var subs []domain.Subscription
	if err := db.Where("subscribed_to_id = ? AND status = ?", targetID, domain.SubscriptionPending).
		Order("created_at asc, id asc").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return []PendingSubscriber{}, nil
	}

	ids := make([]uint, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.SubscriberID)
	}
	var users []domain.User
	if err := db.Select("id", "channel_name").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(users))
	for _, u := range users {
		names[u.ID] = u.ChannelName
	}
	var videos []domain.Video
	if err := db.Where("owner_id IN ?", ids).Order("id asc").Find(&videos).Error; err != nil {
		return nil, err
	}
	firstVideo := make(map[uint]domain.Video, len(videos))
	for _, v := range videos {
		if _, ok := firstVideo[v.OwnerID]; !ok {
			firstVideo[v.OwnerID] = v
		}
	}

	out := make([]PendingSubscriber, 0, len(subs))
	for _, sub := range subs {
		v, ok := firstVideo[sub.SubscriberID]
		if !ok {
			continue
		}
		out = append(out, PendingSubscriber{
			Subscription:    sub,
			SubscriberName:  names[sub.SubscriberID],
			SubscriberVideo: VideoRef{ID: v.ID, ExternalID: v.ExternalID, ChannelID: v.ChannelID},
		})
	}
	return out, nil
}

// ConfirmedTargets returns the ids of users subscriberID holds confirmed
// subscriptions to.
func (s *Service) ConfirmedTargets(ctx context.Context, subscriberID uint) ([]uint, error) {
	ids := []uint{}
	err := s.db.WithContext(ctx).Model(&domain.Subscription{}).
		Where("subscriber_id = ? AND status = ?", subscriberID, domain.SubscriptionConfirmed).
		Pluck("subscribed_to_id", &ids).Error
	return ids, err
}
