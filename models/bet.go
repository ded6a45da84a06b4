package models

import (
	"time"

	"gorm.io/gorm"
)

type BetStatus string

const (
	BetPlaced BetStatus = "PLACED"
	BetWon    BetStatus = "WON"
	BetLost   BetStatus = "LOST"
)

type Bet struct {
	gorm.Model

	BetID       string     `gorm:"uniqueIndex;size:36;not null" json:"bet_id"`
	RoundNo     int64      `gorm:"uniqueIndex:idx_bet_round_user;index:idx_bet_round_status;not null" json:"round_no"`
	UserID      uint       `gorm:"uniqueIndex:idx_bet_round_user;not null" json:"user_id"`
	Outcome     Outcome    `gorm:"size:16;not null" json:"outcome"`
	Amount      Amount     `gorm:"not null" json:"amount"`
	FromPromo   Amount     `gorm:"not null;default:0" json:"from_promo"`
	FromPrimary Amount     `gorm:"not null;default:0" json:"from_primary"`
	Status      BetStatus  `gorm:"size:16;index:idx_bet_round_status;not null" json:"status"`
	Payout      Amount     `gorm:"not null;default:0" json:"payout"`
	SettledAt   *time.Time `json:"settled_at"`
}

type EventType string

const (
	EventDeposit EventType = "DEPOSIT"
	EventBet     EventType = "BET"
)

type CommissionRecord struct {
	gorm.Model

	PayerUserID       uint      `gorm:"index;not null" json:"payer_user_id"`
	BeneficiaryUserID uint      `gorm:"index;not null" json:"beneficiary_user_id"`
	Level             int       `gorm:"uniqueIndex:idx_commission_source;not null" json:"level"`
	Rate              float64   `json:"rate"`
	SourceAmount      Amount    `json:"source_amount"`
	CommissionAmount  Amount    `json:"commission_amount"`
	EventType         EventType `gorm:"uniqueIndex:idx_commission_source;size:16;not null" json:"event_type"`
	SourceRef         string    `gorm:"uniqueIndex:idx_commission_source;size:64;not null" json:"source_ref"`
}
