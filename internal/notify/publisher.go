package notify

import (
	"context"
	"errors"
	"fmt"

	"coin_exchange/internal/domain"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Publisher appends notifications to the durable log and forwards them to
// the user's push channel. The log is the fallback a client can poll.
type Publisher struct {
	db   *gorm.DB
	push Deliverer
}

// NewPublisher returns a publisher writing to db and delivering through push.
// A nil push disables live delivery.
func NewPublisher(db *gorm.DB, push Deliverer) *Publisher {
	return &Publisher{db: db, push: push}
}

// Append persists a notification using tx, which may be an open transaction.
func (p *Publisher) Append(tx *gorm.DB, userID uint, message, kind string) (*domain.Notification, error) {
	if kind == "" {
		kind = domain.NotificationInfo
	}
	n := domain.Notification{UserID: userID, Message: message, Type: kind}
	if err := tx.Create(&n).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// Push forwards an event to the user's push channel. It never blocks on the
// client and never retries.
func (p *Publisher) Push(userID uint, kind, message string, data map[string]any) bool {
	if p.push == nil {
		return false
	}
	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["message"] = message
	delivered := p.push.Deliver(userID, Event{Type: kind, Data: payload})
	logrus.WithFields(logrus.Fields{
		"user_id":   userID,
		"type":      kind,
		"delivered": delivered,
	}).Debug("Push event")
	return delivered
}

// Publish appends a notification and pushes it.
func (p *Publisher) Publish(ctx context.Context, userID uint, message, kind string, data map[string]any) (*domain.Notification, error) {
	n, err := p.Append(p.db.WithContext(ctx), userID, message, kind)
	if err != nil {
		return nil, err
	}
	p.Push(userID, n.Type, message, data)
	return n, nil
}

// MarkRead flags the caller's notification as read.
func (p *Publisher) MarkRead(ctx context.Context, notificationID, userID uint) error {
	var n domain.Notification
	err := p.db.WithContext(ctx).Where("id = ? AND user_id = ?", notificationID, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: notification %d", domain.ErrNotFound, notificationID)
	}
	if err != nil {
		return err
	}
	return p.db.WithContext(ctx).Model(&n).Update("is_read", true).Error
}

// Unread lists the user's unread notifications, newest first.
func (p *Publisher) Unread(ctx context.Context, userID uint) ([]domain.Notification, error) {
	var out []domain.Notification
	err := p.db.WithContext(ctx).
		Where("user_id = ? AND is_read = ?", userID, false).
		Order("created_at desc, id desc").
		Find(&out).Error
	return out, err
}
