package ledger

import (
	"context"
	"sync"
	"testing"

	"coin_exchange/internal/domain"
	"coin_exchange/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreditAndDebit(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice", 0)

	balance, err := l.Credit(ctx, alice.ID, 10, domain.KindDeposit)
	require.NoError(t, err)
	require.EqualValues(t, 10, balance)

	balance, err = l.Debit(ctx, alice.ID, 4, domain.KindBoost)
	require.NoError(t, err)
	require.EqualValues(t, 6, balance)

	entries, total, err := l.Entries(ctx, alice.ID, 1, 20)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, entries, 2)
}

func TestDebitInsufficientFunds(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	alice := testutil.CreateUser(t, db, "alice", 3)

	_, err := l.Debit(context.Background(), alice.ID, 4, domain.KindBoost)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.EqualValues(t, 3, testutil.Balance(t, db, alice.ID))

	var count int64
	require.NoError(t, db.Model(&domain.LedgerEntry{}).Count(&count).Error)
	require.Zero(t, count, "a refused debit must not leave an entry")
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice", 3)
	bob := testutil.CreateUser(t, db, "bob", 3)

	_, err := l.Credit(ctx, alice.ID, 0, domain.KindDeposit)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = l.Debit(ctx, alice.ID, -1, domain.KindGift)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = l.Transfer(ctx, alice.ID, bob.ID, 0, domain.KindSubscribeBack)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestUnknownUser(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	ctx := context.Background()

	_, err := l.Credit(ctx, 999, 1, domain.KindDeposit)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = l.Debit(ctx, 999, 1, domain.KindGift)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransferConservesCoins(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	alice := testutil.CreateUser(t, db, "alice", 10)
	bob := testutil.CreateUser(t, db, "bob", 5)

	out, err := l.Transfer(context.Background(), alice.ID, bob.ID, 7, domain.KindRefusalPenalty)
	require.NoError(t, err)
	require.EqualValues(t, 3, out.FromBalance)
	require.EqualValues(t, 12, out.ToBalance)
	require.EqualValues(t, 15, testutil.Balance(t, db, alice.ID)+testutil.Balance(t, db, bob.ID))
}

func TestTransferInsufficientFundsLeavesBothBalances(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice", 1)
	bob := testutil.CreateUser(t, db, "bob", 5)

	// Both lock orders: the credit runs first when the debited user has the higher id.
	_, err := l.Transfer(ctx, alice.ID, bob.ID, 2, domain.KindRefusalPenalty)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	_, err = l.Transfer(ctx, bob.ID, alice.ID, 6, domain.KindRefusalPenalty)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.EqualValues(t, 1, testutil.Balance(t, db, alice.ID))
	require.EqualValues(t, 5, testutil.Balance(t, db, bob.ID))
}

func TestTransferToSelf(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.CreateUser(t, db, "alice", 10)

	_, err := New(db).Transfer(context.Background(), alice.ID, alice.ID, 1, domain.KindGift)
	require.ErrorIs(t, err, domain.ErrSelfReference)
}

func TestInRollsBackWithCallerTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	alice := testutil.CreateUser(t, db, "alice", 0)

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := l.In(tx).Credit(context.Background(), alice.ID, 5, domain.KindDeposit); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)
	require.Zero(t, testutil.Balance(t, db, alice.ID))
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	alice := testutil.CreateUser(t, db, "alice", 10)

	const workers = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Debit(context.Background(), alice.ID, 1, domain.KindGift); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, succeeded)
	require.Zero(t, testutil.Balance(t, db, alice.ID))
}

func TestConcurrentOpposingTransfersConserve(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	alice := testutil.CreateUser(t, db, "alice", 50)
	bob := testutil.CreateUser(t, db, "bob", 50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = l.Transfer(context.Background(), alice.ID, bob.ID, 3, domain.KindSubscribeBack)
		}()
		go func() {
			defer wg.Done()
			_, _ = l.Transfer(context.Background(), bob.ID, alice.ID, 2, domain.KindSubscribeBack)
		}()
	}
	wg.Wait()

	a := testutil.Balance(t, db, alice.ID)
	b := testutil.Balance(t, db, bob.ID)
	require.GreaterOrEqual(t, a, int64(0))
	require.GreaterOrEqual(t, b, int64(0))
	require.EqualValues(t, 100, a+b)
}
