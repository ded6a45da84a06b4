package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model

	UserCode         string `gorm:"uniqueIndex;size:32" json:"user_code"`
	ReferralCode     string `gorm:"uniqueIndex;size:16" json:"referral_code"`
	ReferredBy       *uint  `gorm:"index" json:"referred_by"`
	PrimaryBalance   Amount `gorm:"not null;default:0" json:"primary_balance"`
	PromoBalance     Amount `gorm:"not null;default:0" json:"promo_balance"`
	TotalWagered     Amount `gorm:"not null;default:0" json:"total_wagered"`
	ReferralEarnings Amount `gorm:"not null;default:0" json:"referral_earnings"`
	BetLimit         Amount `gorm:"not null;default:0" json:"bet_limit"`
	IsBlocked        bool   `gorm:"default:false" json:"is_blocked"`
	IsActive         bool   `gorm:"default:true" json:"is_active"`

	Transactions []UserTransaction `gorm:"foreignKey:UserID" json:"-"`
}

func (u *User) Available() Amount {
	return u.PrimaryBalance + u.PromoBalance
}

type TrxType string

const (
	TrxBet        TrxType = "BET"
	TrxPayout     TrxType = "PAYOUT"
	TrxCommission TrxType = "COMMISSION"
	TrxDeposit    TrxType = "DEPOSIT"
)

// UserTransaction is the ledger journal: one row per balance mutation.
type UserTransaction struct {
	gorm.Model

	UserID        uint    `gorm:"index"`
	UserCode      string  `gorm:"size:32"`
	TrxType       TrxType `gorm:"size:16;index"`
	Amount        Amount  `json:"amount"`
	PrimaryBefore Amount  `json:"primary_before"`
	PrimaryAfter  Amount  `json:"primary_after"`
	PromoBefore   Amount  `json:"promo_before"`
	PromoAfter    Amount  `json:"promo_after"`
	Note          string  `gorm:"size:255"`
	RefID         string  `gorm:"size:64;index"`
}

// DepositRecord keys every credited operator deposit by its external
// reference. Journal pruning never touches this table.
type DepositRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Ref       string    `gorm:"uniqueIndex;size:64;not null" json:"ref"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Amount    Amount    `gorm:"not null" json:"amount"`
	Bucket    string    `gorm:"size:16;not null" json:"bucket"`
	CreatedAt time.Time `json:"created_at"`
}
