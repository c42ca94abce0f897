package exchange

import (
	"context"
	"sync"
	"testing"

	"coin_exchange/internal/domain"
	"coin_exchange/internal/ledger"
	"coin_exchange/internal/notify"
	"coin_exchange/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T) (*Service, *gorm.DB, *notify.Hub) {
	t.Helper()
	db := testutil.NewDB(t)
	hub := notify.NewHub(8)
	return NewService(db, ledger.New(db), notify.NewPublisher(db, hub)), db, hub
}

func countSubscriptions(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&domain.Subscription{}).Count(&n).Error)
	return n
}

func TestPerformPeerReward(t *testing.T) {
	svc, db, _ := newService(t)
	target := testutil.CreateUser(t, db, "target", 4)
	subscriber := testutil.CreateUser(t, db, "subscriber", 0)
	video := testutil.CreateVideo(t, db, target.ID, false)

	res, err := svc.Perform(context.Background(), subscriber.ID, video.ID)
	require.NoError(t, err)
	require.False(t, res.Sponsored)
	require.EqualValues(t, 1, res.Reward)
	require.EqualValues(t, 1, res.Balance)
	require.Equal(t, domain.SubscriptionPending, res.Subscription.Status)
	require.EqualValues(t, 3, testutil.Balance(t, db, target.ID))
}

func TestPerformSponsoredMints(t *testing.T) {
	svc, db, _ := newService(t)
	system := testutil.CreateUser(t, db, "system", 0)
	subscriber := testutil.CreateUser(t, db, "subscriber", 0)
	video := testutil.CreateVideo(t, db, system.ID, true)

	res, err := svc.Perform(context.Background(), subscriber.ID, video.ID)
	require.NoError(t, err)
	require.True(t, res.Sponsored)
	require.EqualValues(t, 3, res.Balance)
	require.Zero(t, testutil.Balance(t, db, system.ID), "sponsored rewards are not paid by the owner")
}

func TestPerformTargetCannotPay(t *testing.T) {
	svc, db, _ := newService(t)
	target := testutil.CreateUser(t, db, "target", 0)
	subscriber := testutil.CreateUser(t, db, "subscriber", 2)
	video := testutil.CreateVideo(t, db, target.ID, false)

	_, err := svc.Perform(context.Background(), subscriber.ID, video.ID)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.Zero(t, countSubscriptions(t, db))
	require.EqualValues(t, 2, testutil.Balance(t, db, subscriber.ID))
}

func TestPerformSelfRejected(t *testing.T) {
	svc, db, _ := newService(t)
	owner := testutil.CreateUser(t, db, "owner", 5)
	video := testutil.CreateVideo(t, db, owner.ID, false)

	_, err := svc.Perform(context.Background(), owner.ID, video.ID)
	require.ErrorIs(t, err, domain.ErrSelfReference)

	// Same external channel under a second account.
	other := testutil.CreateUser(t, db, "other", 0)
	require.NoError(t, db.Model(&domain.User{}).Where("id = ?", other.ID).Update("channel_id", video.ChannelID).Error)
	_, err = svc.Perform(context.Background(), other.ID, video.ID)
	require.ErrorIs(t, err, domain.ErrSelfReference)

	require.Zero(t, countSubscriptions(t, db))
	require.EqualValues(t, 5, testutil.Balance(t, db, owner.ID))
}

func TestPerformUnknownVideo(t *testing.T) {
	svc, db, _ := newService(t)
	subscriber := testutil.CreateUser(t, db, "subscriber", 0)

	_, err := svc.Perform(context.Background(), subscriber.ID, 404)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func pending(t *testing.T, svc *Service, db *gorm.DB, subscriberCoins, targetCoins int64) (domain.User, domain.User, domain.Subscription) {
	t.Helper()
	subscriber := testutil.CreateUser(t, db, "subscriber", subscriberCoins)
	target := testutil.CreateUser(t, db, "target", targetCoins+1)
	video := testutil.CreateVideo(t, db, target.ID, false)
	res, err := svc.Perform(context.Background(), subscriber.ID, video.ID)
	require.NoError(t, err)
	// Perform moved one coin from target to subscriber; undo it so the
	// balances match what the test asked for.
	require.NoError(t, db.Model(&domain.User{}).Where("id = ?", subscriber.ID).Update("balance", subscriberCoins).Error)
	return subscriber, target, res.Subscription
}

func TestSubscribeBackTransfers(t *testing.T) {
	svc, db, _ := newService(t)
	subscriber, target, sub := pending(t, svc, db, 3, 0)

	res, err := svc.SubscribeBack(context.Background(), sub.ID, target.ID)
	require.NoError(t, err)
	require.True(t, res.Settled)
	require.EqualValues(t, 1, res.Balance)
	require.Equal(t, domain.SubscriptionConfirmed, res.Subscription.Status)
	require.EqualValues(t, 2, testutil.Balance(t, db, subscriber.ID))
}

func TestSubscribeBackUnpayableStillConfirms(t *testing.T) {
	svc, db, _ := newService(t)
	subscriber, target, sub := pending(t, svc, db, 0, 0)

	res, err := svc.SubscribeBack(context.Background(), sub.ID, target.ID)
	require.NoError(t, err)
	require.False(t, res.Settled)
	require.Zero(t, res.Reward)
	require.Zero(t, testutil.Balance(t, db, subscriber.ID))
	require.Zero(t, testutil.Balance(t, db, target.ID))

	var stored domain.Subscription
	require.NoError(t, db.First(&stored, sub.ID).Error)
	require.Equal(t, domain.SubscriptionConfirmed, stored.Status)
}

func TestSubscribeBackNotOwned(t *testing.T) {
	svc, db, _ := newService(t)
	subscriber, _, sub := pending(t, svc, db, 3, 0)

	_, err := svc.SubscribeBack(context.Background(), sub.ID, subscriber.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRefuseScenario(t *testing.T) {
	svc, db, hub := newService(t)
	subscriber, target, sub := pending(t, svc, db, 0, 5)
	listener, err := hub.Register(subscriber.ID)
	require.NoError(t, err)

	res, err := svc.Refuse(context.Background(), sub.ID, target.ID, "  ")
	require.NoError(t, err)
	require.EqualValues(t, 3, res.Balance)
	require.Equal(t, domain.SubscriptionRefused, res.Subscription.Status)
	require.Equal(t, domain.DefaultRefusalReason, res.Subscription.RefusalReason)
	require.EqualValues(t, 3, testutil.Balance(t, db, target.ID))
	require.EqualValues(t, 2, testutil.Balance(t, db, subscriber.ID))

	var notes []domain.Notification
	require.NoError(t, db.Where("user_id = ?", subscriber.ID).Find(&notes).Error)
	require.Len(t, notes, 1)
	require.Equal(t, domain.NotificationRefusalReward, notes[0].Type)
	require.Contains(t, notes[0].Message, "awarded 2 coins")

	ev := <-listener.Events()
	require.Equal(t, domain.NotificationRefusalReward, ev.Type)
	require.EqualValues(t, 2, ev.Data["new_coins"])
}

func TestRefuseInsufficientStaysPending(t *testing.T) {
	svc, db, _ := newService(t)
	subscriber, target, sub := pending(t, svc, db, 0, 1)

	_, err := svc.Refuse(context.Background(), sub.ID, target.ID, "no")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	var stored domain.Subscription
	require.NoError(t, db.First(&stored, sub.ID).Error)
	require.Equal(t, domain.SubscriptionPending, stored.Status)
	require.Empty(t, stored.RefusalReason)
	require.EqualValues(t, 1, testutil.Balance(t, db, target.ID))
	require.Zero(t, testutil.Balance(t, db, subscriber.ID))

	var notes int64
	require.NoError(t, db.Model(&domain.Notification{}).Count(&notes).Error)
	require.Zero(t, notes)
}

func TestTerminalSubscriptionsRejectFurtherTransitions(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	subscriber, target, sub := pending(t, svc, db, 5, 5)

	_, err := svc.SubscribeBack(ctx, sub.ID, target.ID)
	require.NoError(t, err)
	before := []int64{testutil.Balance(t, db, subscriber.ID), testutil.Balance(t, db, target.ID)}

	_, err = svc.SubscribeBack(ctx, sub.ID, target.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	_, err = svc.Refuse(ctx, sub.ID, target.ID, "late")
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	require.Equal(t, before, []int64{testutil.Balance(t, db, subscriber.ID), testutil.Balance(t, db, target.ID)})
}

func TestConcurrentSubscribeBackPaysOnce(t *testing.T) {
	svc, db, _ := newService(t)
	subscriber, target, sub := pending(t, svc, db, 10, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	settled := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SubscribeBack(context.Background(), sub.ID, target.ID)
			if err == nil {
				mu.Lock()
				settled++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, settled)
	require.EqualValues(t, 9, testutil.Balance(t, db, subscriber.ID))
	require.EqualValues(t, 1, testutil.Balance(t, db, target.ID))
}

func TestConfirmMandatory(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "newbie", 0)

	balance, err := svc.ConfirmMandatory(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, balance)

	_, err = svc.ConfirmMandatory(ctx, user.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyOnboarded)
	require.EqualValues(t, 3, testutil.Balance(t, db, user.ID))

	_, err = svc.ConfirmMandatory(ctx, 999)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPendingForAndConfirmedTargets(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	target := testutil.CreateUser(t, db, "target", 10)
	withVideo := testutil.CreateUser(t, db, "withvideo", 0)
	withoutVideo := testutil.CreateUser(t, db, "novideo", 0)
	targetVideo := testutil.CreateVideo(t, db, target.ID, false)
	ownVideo := testutil.CreateVideo(t, db, withVideo.ID, false)

	made, err := svc.Perform(ctx, withVideo.ID, targetVideo.ID)
	require.NoError(t, err)
	_, err = svc.Perform(ctx, withoutVideo.ID, targetVideo.ID)
	require.NoError(t, err)

	queue, err := svc.PendingFor(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, "withvideo", queue[0].SubscriberName)
	require.Equal(t, ownVideo.ExternalID, queue[0].SubscriberVideo.ExternalID)

	_, err = svc.SubscribeBack(ctx, made.Subscription.ID, target.ID)
	require.NoError(t, err)
	ids, err := svc.ConfirmedTargets(ctx, withVideo.ID)
	require.NoError(t, err)
	require.Equal(t, []uint{target.ID}, ids)
}
