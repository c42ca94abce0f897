// Package accounts registers and authenticates users and serves their
// profile-level operations.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"coin_exchange/internal/domain"
	"coin_exchange/internal/ledger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Referral bonuses minted at registration.
const (
	ReferrerBonus int64 = 5
	ReferredBonus int64 = 3
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

const referralPrefix = "SUB_"

// Service owns user records. Balance changes go through the ledger.
type Service struct {
	db     *gorm.DB
	ledger *ledger.Ledger
}

// NewService returns an accounts service.
func NewService(db *gorm.DB, l *ledger.Ledger) *Service {
	return &Service{db: db, ledger: l}
}

// Registration is the input to Register.
type Registration struct {
	Email        string
	ChannelName  string
	Password     string
	ReferralCode string // optional; unknown codes are ignored
}

// Register creates a user. A known referral code mints ReferrerBonus to the
// referrer and ReferredBonus to the new user in the same transaction.
func (s *Service) Register(ctx context.Context, r Registration) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(r.Email))
	channel := strings.TrimSpace(r.ChannelName)
	if email == "" || channel == "" || r.Password == "" {
		return nil, fmt.Errorf("%w: please provide all required fields", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", domain.ErrInvalidInput)
	}
	if len(r.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := domain.User{
		Email:        email,
		ChannelName:  channel,
		Password:     string(hash),
		ReferralCode: NewReferralCode(),
	}
	var referrer *domain.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&domain.User{}).Where("email = ?", email).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%w: user with this email already exists", domain.ErrAlreadyExists)
		}
		if code := strings.TrimSpace(r.ReferralCode); code != "" {
			var ref domain.User
			err := tx.Where("referral_code = ?", code).First(&ref).Error
			switch {
			case err == nil:
				referrer = &ref
				user.ReferredByID = &ref.ID
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if referrer == nil {
			return nil
		}
		l := s.ledger.In(tx)
		if _, err := l.Credit(ctx, referrer.ID, ReferrerBonus, domain.KindReferralBonus); err != nil {
			return err
		}
		if _, err := l.Credit(ctx, user.ID, ReferredBonus, domain.KindReferralBonus); err != nil {
			return err
		}
		return tx.First(&user, user.ID).Error
	})
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{"user_id": user.ID, "email": user.Email}
	if referrer != nil {
		fields["referrer_id"] = referrer.ID
	}
	logrus.WithFields(fields).Info("User registered")
	return &user, nil
}

// Authenticate checks an email and password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return &user, nil
}

// Profile loads a user.
func (s *Service) Profile(ctx context.Context, userID uint) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Gift burns amount coins from the user's balance and returns what is left.
func (s *Service) Gift(ctx context.Context, userID uint, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: please enter a valid positive number of coins", domain.ErrInvalidAmount)
	}
	balance, err := s.ledger.Debit(ctx, userID, amount, domain.KindGift)
	if errors.Is(err, domain.ErrInsufficientFunds) {
		return 0, fmt.Errorf("%w: you do not have enough coins to gift", domain.ErrInsufficientFunds)
	}
	return balance, err
}

// List returns a page of users ordered by id, with the total count.
func (s *Service) List(ctx context.Context, page, pageSize int) ([]domain.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	var total int64
	if err := s.db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []domain.User
	err := s.db.WithContext(ctx).Order("id asc").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error
	return users, total, err
}

// SearchLimit caps Search results.
const SearchLimit = 20

// Search finds users whose channel name contains query, excluding the caller.
func (s *Service) Search(ctx context.Context, query string, callerID uint) ([]domain.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.User{}, nil
	}
	var users []domain.User
	err := s.db.WithContext(ctx).
		Select("id", "channel_name").
		Where("LOWER(channel_name) LIKE ? AND id <> ?", "%"+strings.ToLower(query)+"%", callerID).
		Order("id asc").
		Limit(SearchLimit).
		Find(&users).Error
	return users, err
}

// NewReferralCode returns a fresh code of the form SUB_XXXXXXXX.
func NewReferralCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return referralPrefix + strings.ToUpper(id[:8])
}
