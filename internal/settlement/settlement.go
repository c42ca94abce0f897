// Package settlement turns external deposits into coins once a moderator
// approves them.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"coin_exchange/internal/domain"
	"coin_exchange/internal/ledger"
	"coin_exchange/internal/metrics"
	"coin_exchange/internal/notify"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MinDeposit is the smallest accepted deposit amount.
const MinDeposit = 25

// Service records deposit requests and applies moderator decisions.
type Service struct {
	db        *gorm.DB
	ledger    *ledger.Ledger
	publisher *notify.Publisher
}

// NewService returns a settlement service.
func NewService(db *gorm.DB, l *ledger.Ledger, p *notify.Publisher) *Service {
	return &Service{db: db, ledger: l, publisher: p}
}

// Request records a pending deposit of amount for userID.
func (s *Service) Request(ctx context.Context, userID uint, amount float64, phone string) (*domain.Payment, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("%w: depositor phone number is required", domain.ErrInvalidInput)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < MinDeposit {
		return nil, fmt.Errorf("%w: minimum deposit is %d ETB", domain.ErrDepositTooSmall, MinDeposit)
	}
	payment := domain.Payment{
		UserID:          userID,
		AmountRequested: amount,
		CoinsRequested:  int64(math.Floor(amount)),
		DepositorPhone:  phone,
		Status:          domain.PaymentPending,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user domain.User
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
			}
			return err
		}
		return tx.Create(&payment).Error
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"user_id":    userID,
		"amount":     amount,
		"coins":      payment.CoinsRequested,
	}).Info("Deposit requested")
	return &payment, nil
}

// Decision is the outcome of Approve or Reject.
type Decision struct {
	Payment domain.Payment
	User    domain.User // requester, with the balance after the decision
}

// Approve completes a pending payment and mints its coins to the requester.
func (s *Service) Approve(ctx context.Context, paymentID uint) (*Decision, error) {
	var (
		out     Decision
		message string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := settle(tx, paymentID, domain.PaymentCompleted)
		if err != nil {
			return err
		}
		if _, err := s.ledger.In(tx).Credit(ctx, payment.UserID, payment.CoinsRequested, domain.KindDeposit); err != nil {
			return err
		}
		if err := tx.First(&out.User, payment.UserID).Error; err != nil {
			return err
		}
		message = fmt.Sprintf("Your deposit of %s ETB was approved!", formatAmount(payment.AmountRequested))
		if _, err := s.publisher.Append(tx, payment.UserID, message, domain.NotificationPayment); err != nil {
			return err
		}
		out.Payment = *payment
		return nil
	})
	if err != nil {
		recordFailure(paymentID, "approve", err)
		return nil, err
	}
	metrics.RecordSettlement("approved")
	s.publisher.Push(out.User.ID, domain.NotificationPayment, message, map[string]any{"new_coins": out.User.Balance})
	logrus.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"user_id":    out.User.ID,
		"coins":      out.Payment.CoinsRequested,
		"balance":    out.User.Balance,
	}).Info("Deposit approved")
	return &out, nil
}

// Reject fails a pending payment. No coins move.
func (s *Service) Reject(ctx context.Context, paymentID uint) (*Decision, error) {
	var (
		out     Decision
		message string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := settle(tx, paymentID, domain.PaymentFailed)
		if err != nil {
			return err
		}
		if err := tx.First(&out.User, payment.UserID).Error; err != nil {
			return err
		}
		message = fmt.Sprintf("Your deposit of %s ETB was rejected. Please contact support.", formatAmount(payment.AmountRequested))
		if _, err := s.publisher.Append(tx, payment.UserID, message, domain.NotificationPayment); err != nil {
			return err
		}
		out.Payment = *payment
		return nil
	})
	if err != nil {
		recordFailure(paymentID, "reject", err)
		return nil, err
	}
	metrics.RecordSettlement("rejected")
	s.publisher.Push(out.User.ID, domain.NotificationPayment, message, nil)
	logrus.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"user_id":    out.User.ID,
	}).Info("Deposit rejected")
	return &out, nil
}

// Pending lists pending payments, oldest first, with the total count.
func (s *Service) Pending(ctx context.Context, page, pageSize int) ([]domain.Payment, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	db := s.db.WithContext(ctx).Model(&domain.Payment{}).Where("status = ?", domain.PaymentPending)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.Payment
	err := db.Order("created_at asc, id asc").Offset((page - 1) * pageSize).Limit(pageSize).Find(&out).Error
	return out, total, err
}

// settle moves a payment out of pending. The status guard makes a decision
// apply at most once.
func settle(tx *gorm.DB, paymentID uint, status domain.PaymentStatus) (*domain.Payment, error) {
	var payment domain.Payment
	if err := tx.First(&payment, paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: payment %d", domain.ErrNotFound, paymentID)
		}
		return nil, err
	}
	res := tx.Model(&domain.Payment{}).
		Where("id = ? AND status = ?", paymentID, domain.PaymentPending).
		Update("status", status)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: payment %d has already been processed", domain.ErrAlreadyProcessed, paymentID)
	}
	payment.Status = status
	return &payment, nil
}

func recordFailure(paymentID uint, op string, err error) {
	outcome := "error"
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		outcome = "duplicate"
	}
	metrics.RecordSettlement(outcome)
	entry := logrus.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"op":         op,
		"error":      err,
	})
	if outcome == "duplicate" || errors.Is(err, domain.ErrNotFound) {
		entry.Warn("Deposit decision refused")
		return
	}
	entry.Error("Deposit decision failed")
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
