package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"colorbet/models"
)

var (
	ErrUserExists          = &Error{KindStateConflict, "USER_ALREADY_EXISTS", "user already exists"}
	ErrInvalidUserCode     = &Error{KindValidation, "INVALID_USER_CODE", "user code must be 1-32 characters"}
	ErrUnknownReferralCode = &Error{KindValidation, "UNKNOWN_REFERRAL_CODE", "referral code not found"}
	ErrDuplicateDeposit    = &Error{KindStateConflict, "DUPLICATE_DEPOSIT", "deposit reference already credited"}
	ErrReferenceTooLong    = &Error{KindValidation, "REFERENCE_TOO_LONG", "reference must be at most 64 characters"}
)

type DepositResult struct {
	User        *models.User `json:"user"`
	Commissions []Commission `json:"commissions"`
}

// UserService registers users and books operator deposits. Balances still
// only move through the Ledger.
type UserService struct {
	db       *gorm.DB
	ledger   *Ledger
	referral *ReferralEngine
	log      logrus.FieldLogger
}

func NewUserService(db *gorm.DB, ledger *Ledger, referral *ReferralEngine, log logrus.FieldLogger) *UserService {
	return &UserService{db: db, ledger: ledger, referral: referral, log: log}
}

// Register creates a user, linking it under the owner of referralCode when
// one is given.
func (s *UserService) Register(ctx context.Context, userCode, referralCode string) (*models.User, error) {
	userCode = strings.ToLower(strings.TrimSpace(userCode))
	if userCode == "" || len(userCode) > 32 {
		return nil, ErrInvalidUserCode
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("user_code = ?", userCode).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUserExists
		}

		user = models.User{
			UserCode:     userCode,
			ReferralCode: newReferralCode(),
			IsActive:     true,
		}
		if code := strings.TrimSpace(referralCode); code != "" {
			var referrer models.User
			err := tx.Select("id").Where("referral_code = ?", strings.ToUpper(code)).First(&referrer).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownReferralCode
			}
			if err != nil {
				return err
			}
			user.ReferredBy = &referrer.ID
		}

		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUserExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("register user", err)
	}

	s.log.WithFields(logrus.Fields{
		"user_code":   user.UserCode,
		"referred_by": user.ReferredBy,
	}).Info("user registered")
	return &user, nil
}

func (s *UserService) ByCode(ctx context.Context, userCode string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("user_code = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(userCode)), true).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storageErr("find user", err)
	}
	return &user, nil
}

func (s *UserService) SetBlocked(ctx context.Context, userCode string, blocked bool) error {
	return s.setColumn(ctx, userCode, "is_blocked", blocked)
}

func (s *UserService) SetBetLimit(ctx context.Context, userCode string, limit models.Amount) error {
	if limit < 0 {
		return ErrInvalidAmount
	}
	return s.setColumn(ctx, userCode, "bet_limit", limit)
}

func (s *UserService) setColumn(ctx context.Context, userCode, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("user_code = ?", strings.ToLower(strings.TrimSpace(userCode))).
		Update(column, value)
	if res.Error != nil {
		return storageErr("update user", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Deposit credits a confirmed deposit and then runs the DEPOSIT commission
// cascade. The reference is claimed in deposit_records inside the credit
// transaction, so a reference is credited at most once. The cascade runs in
// its own transaction: if it fails the deposit stands and the cascade can be
// replayed with the same reference.
func (s *UserService) Deposit(ctx context.Context, userCode string, amount models.Amount, bucket Bucket, ref string) (*DepositResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if ref == "" {
		return nil, ErrMissingReference
	}
	if len(ref) > 64 {
		return nil, ErrReferenceTooLong
	}
	if bucket == "" {
		bucket = BucketPrimary
	}

	found, err := s.ByCode(ctx, userCode)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := models.DepositRecord{
			Ref:    ref,
			UserID: found.ID,
			Amount: amount,
			Bucket: string(bucket),
		}
		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateDeposit
			}
			return err
		}

		locked, err := s.ledger.LockUser(tx, found.ID)
		if err != nil {
			return err
		}
		user = locked
		return s.ledger.Credit(tx, user, amount, bucket, Entry{
			Type:  models.TrxDeposit,
			RefID: ref,
			Note:  "operator deposit",
		})
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateDeposit) {
			s.log.WithField("ref", ref).Warn("deposit reference replayed")
		}
		return nil, storageErr("deposit", err)
	}

	res := &DepositResult{User: user}
	// promo top-ups are bonuses, not money in; they pay no commission
	if bucket == BucketPrimary && s.referral != nil {
		res.Commissions, err = s.referral.ApplyCommission(ctx, user.ID, amount, models.EventDeposit, ref)
		if err != nil {
			s.log.WithError(err).WithField("ref", ref).Error("deposit commission failed")
			return res, err
		}
	}
	return res, nil
}

func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
