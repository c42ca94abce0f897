// Package ledger owns user coin balances. Every mutation is a conditional
// UPDATE inside a transaction, so a balance can never drop below zero and
// concurrent requests on the same user cannot lose updates.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"coin_exchange/internal/domain"
	"coin_exchange/internal/metrics"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Ledger applies credits, debits and transfers to user balances.
type Ledger struct {
	db *gorm.DB
}

// New returns a ledger backed by db.
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// In returns a ledger bound to an open transaction, so its mutations commit
// or roll back together with the caller's other writes.
func (l *Ledger) In(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx}
}

// Transfer holds both balances after a successful transfer.
type Transfer struct {
	FromBalance int64 `json:"from_balance"`
	ToBalance   int64 `json:"to_balance"`
}

// Credit mints amount coins into the user's balance and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, userID uint, amount int64, kind string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	var balance int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := credit(tx, userID, amount); err != nil {
			return err
		}
		if err := record(tx, nil, &userID, amount, kind); err != nil {
			return err
		}
		var err error
		balance, err = balanceOf(tx, userID)
		return err
	})
	logMutation("credit", kind, logrus.Fields{"user_id": userID}, amount, err)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Debit burns amount coins from the user's balance and returns the new balance.
// It fails with domain.ErrInsufficientFunds when the balance is too low.
func (l *Ledger) Debit(ctx context.Context, userID uint, amount int64, kind string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	var balance int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debit(tx, userID, amount); err != nil {
			return err
		}
		if err := record(tx, &userID, nil, amount, kind); err != nil {
			return err
		}
		var err error
		balance, err = balanceOf(tx, userID)
		return err
	})
	logMutation("debit", kind, logrus.Fields{"user_id": userID}, amount, err)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Transfer moves amount coins from one user to another. Either both sides
// apply or neither does.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID uint, amount int64, kind string) (Transfer, error) {
	if amount <= 0 {
		return Transfer{}, domain.ErrInvalidAmount
	}
	if fromID == toID {
		return Transfer{}, fmt.Errorf("%w: transfer to the same user", domain.ErrSelfReference)
	}
	var out Transfer
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Rows are always locked in ascending id order.
		if fromID < toID {
			if err := debit(tx, fromID, amount); err != nil {
				return err
			}
			if err := credit(tx, toID, amount); err != nil {
				return err
			}
		} else {
			if err := credit(tx, toID, amount); err != nil {
				return err
			}
			if err := debit(tx, fromID, amount); err != nil {
				return err
			}
		}
		if err := record(tx, &fromID, &toID, amount, kind); err != nil {
			return err
		}
		var err error
		if out.FromBalance, err = balanceOf(tx, fromID); err != nil {
			return err
		}
		out.ToBalance, err = balanceOf(tx, toID)
		return err
	})
	logMutation("transfer", kind, logrus.Fields{"from_user_id": fromID, "to_user_id": toID}, amount, err)
	if err != nil {
		return Transfer{}, err
	}
	return out, nil
}

// Balance returns the user's current balance.
func (l *Ledger) Balance(ctx context.Context, userID uint) (int64, error) {
	return balanceOf(l.db.WithContext(ctx), userID)
}

// Entries returns one page of the user's ledger history, newest first, and
// the total number of entries.
func (l *Ledger) Entries(ctx context.Context, userID uint, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	query := l.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("from_user_id = ? OR to_user_id = ?", userID, userID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []domain.LedgerEntry
	if err := query.Order("created_at desc, id desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func credit(tx *gorm.DB, userID uint, amount int64) error {
	res := tx.Model(&domain.User{}).
		Where("id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
	}
	return nil
}

// debit only matches the row while the balance covers the amount, which makes
// the check and the write a single compare-and-write.
func debit(tx *gorm.DB, userID uint, amount int64) error {
	res := tx.Model(&domain.User{}).
		Where("id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := tx.Model(&domain.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
	}
	return fmt.Errorf("%w: user %d needs %d coins", domain.ErrInsufficientFunds, userID, amount)
}

func record(tx *gorm.DB, from, to *uint, amount int64, kind string) error {
	entry := domain.LedgerEntry{
		FromUserID: from,
		ToUserID:   to,
		Amount:     amount,
		Kind:       kind,
	}
	return tx.Create(&entry).Error
}

func balanceOf(db *gorm.DB, userID uint) (int64, error) {
	var user domain.User
	if err := db.Select("id", "balance").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
		}
		return 0, err
	}
	return user.Balance, nil
}

func logMutation(op, kind string, fields logrus.Fields, amount int64, err error) {
	metrics.RecordLedger(op, kind, amount, err)
	fields["op"] = op
	fields["kind"] = kind
	fields["amount"] = amount
	if err != nil {
		fields["error"] = err.Error()
		if isRefusal(err) {
			logrus.WithFields(fields).Warn("Ledger mutation refused")
			return
		}
		logrus.WithFields(fields).Error("Ledger mutation failed")
		return
	}
	logrus.WithFields(fields).Info("Ledger mutation")
}

// isRefusal reports whether err is a business rule failure rather than a
// storage failure.
func isRefusal(err error) bool {
	return errors.Is(err, domain.ErrInsufficientFunds) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidAmount) ||
		errors.Is(err, domain.ErrSelfReference)
}
