package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultRelayChannel is the Redis pub/sub channel push events travel on.
const DefaultRelayChannel = "coin_exchange:push"

// RedisRelay routes push events through Redis so every process delivers to
// the listeners it holds locally.
type RedisRelay struct {
	rdb     redis.UniversalClient
	hub     *Hub
	channel string
	timeout time.Duration
}

type envelope struct {
	UserID uint  `json:"user_id"`
	Event  Event `json:"event"`
}

// NewRedisRelay returns a relay publishing on channel and delivering into hub.
func NewRedisRelay(rdb redis.UniversalClient, hub *Hub, channel string) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{rdb: rdb, hub: hub, channel: channel, timeout: 2 * time.Second}
}

// Deliver publishes the event to the cluster. It reports whether Redis
// accepted it, not whether a client received it.
func (r *RedisRelay) Deliver(userID uint, ev Event) bool {
	b, err := json.Marshal(envelope{UserID: userID, Event: ev})
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.rdb.Publish(ctx, r.channel, b).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"channel": r.channel,
			"error":   err.Error(),
		}).Warn("Push relay publish failed")
		return false
	}
	return true
}

// Run subscribes to the relay channel and feeds the local hub until ctx ends.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.dispatch(msg.Payload)
		}
	}
}

func (r *RedisRelay) dispatch(payload string) bool {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logrus.WithField("error", err.Error()).Warn("Dropping malformed push envelope")
		return false
	}
	return r.hub.Deliver(env.UserID, env.Event)
}
