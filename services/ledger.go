package services

import (
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"colorbet/models"
)

type Bucket string

const (
	BucketPrimary Bucket = "primary"
	BucketPromo   Bucket = "promo"
)

func (b Bucket) column() string {
	if b == BucketPromo {
		return "promo_balance"
	}
	return "primary_balance"
}

// Entry describes why a balance moves; it ends up in the journal.
type Entry struct {
	Type  models.TrxType
	RefID string
	Note  string
}

type DebitSplit struct {
	FromPromo   models.Amount
	FromPrimary models.Amount
}

// Ledger is the only writer of user balances. Every method runs inside the
// caller's transaction and expects the user row to be locked through LockUser.
type Ledger struct {
	log logrus.FieldLogger
}

func NewLedger(log logrus.FieldLogger) *Ledger {
	return &Ledger{log: log}
}

func (l *Ledger) LockUser(tx *gorm.DB, userID uint) (*models.User, error) {
	var user models.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storageErr("lock user", err)
	}
	return &user, nil
}

// Debit takes amount from the promo balance first and the remainder from the
// primary balance. user is updated in place.
func (l *Ledger) Debit(tx *gorm.DB, user *models.User, amount models.Amount, e Entry) (DebitSplit, error) {
	if amount <= 0 {
		return DebitSplit{}, ErrInvalidAmount
	}
	if user.Available() < amount {
		return DebitSplit{}, ErrInsufficientBalance
	}

	split := DebitSplit{FromPromo: min(user.PromoBalance, amount)}
	split.FromPrimary = amount - split.FromPromo

	res := tx.Model(&models.User{}).
		Where("id = ? AND promo_balance >= ? AND primary_balance >= ?", user.ID, int64(split.FromPromo), int64(split.FromPrimary)).
		Updates(map[string]any{
			"promo_balance":   gorm.Expr("promo_balance - ?", int64(split.FromPromo)),
			"primary_balance": gorm.Expr("primary_balance - ?", int64(split.FromPrimary)),
		})
	if res.Error != nil {
		return DebitSplit{}, storageErr("debit", res.Error)
	}
	if res.RowsAffected == 0 {
		return DebitSplit{}, ErrInsufficientBalance
	}

	before := *user
	user.PromoBalance -= split.FromPromo
	user.PrimaryBalance -= split.FromPrimary
	return split, l.journal(tx, &before, user, amount, e)
}

// Credit adds amount to one bucket of the user's balance.
func (l *Ledger) Credit(tx *gorm.DB, user *models.User, amount models.Amount, bucket Bucket, e Entry) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	if amount == 0 {
		return nil
	}

	col := bucket.column()
	res := tx.Model(&models.User{}).Where("id = ?", user.ID).
		Update(col, gorm.Expr(col+" + ?", int64(amount)))
	if res.Error != nil {
		return storageErr("credit", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}

	before := *user
	if bucket == BucketPromo {
		user.PromoBalance += amount
	} else {
		user.PrimaryBalance += amount
	}
	return l.journal(tx, &before, user, amount, e)
}

func (l *Ledger) journal(tx *gorm.DB, before, after *models.User, amount models.Amount, e Entry) error {
	row := models.UserTransaction{
		UserID:        after.ID,
		UserCode:      after.UserCode,
		TrxType:       e.Type,
		Amount:        amount,
		PrimaryBefore: before.PrimaryBalance,
		PrimaryAfter:  after.PrimaryBalance,
		PromoBefore:   before.PromoBalance,
		PromoAfter:    after.PromoBalance,
		Note:          e.Note,
		RefID:         e.RefID,
	}
	if err := tx.Create(&row).Error; err != nil {
		return storageErr("journal", err)
	}
	return nil
}
