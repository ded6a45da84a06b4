package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Outcome string

const (
	Red    Outcome = "RED"
	Green  Outcome = "GREEN"
	Violet Outcome = "VIOLET"
)

func ParseOutcome(s string) Outcome {
	return Outcome(strings.ToUpper(strings.TrimSpace(s)))
}

type RoundStatus string

const (
	RoundActive   RoundStatus = "ACTIVE"
	RoundClosing  RoundStatus = "CLOSING"
	RoundSettling RoundStatus = "SETTLING"
	RoundEnded    RoundStatus = "ENDED"
)

// Open reports whether the round still waits for settlement.
func (s RoundStatus) Open() bool {
	return s == RoundActive || s == RoundClosing
}

type Round struct {
	gorm.Model

	RoundNo     int64       `gorm:"uniqueIndex;not null" json:"round_no"`
	Status      RoundStatus `gorm:"size:16;index;not null" json:"status"`
	StartTime   time.Time   `gorm:"not null" json:"start_time"`
	CloseTime   time.Time   `gorm:"not null" json:"close_time"`
	EndTime     time.Time   `gorm:"not null;index" json:"end_time"`
	Winner      Outcome     `gorm:"size:16;not null;default:''" json:"winner"`
	TotalStaked Amount      `gorm:"not null;default:0" json:"total_staked"`
	BetCount    int         `gorm:"not null;default:0" json:"bet_count"`
	SettledAt   *time.Time  `json:"settled_at"`
}

type RoundPool struct {
	ID      uint    `gorm:"primaryKey"`
	RoundNo int64   `gorm:"uniqueIndex:idx_round_pool;not null"`
	Outcome Outcome `gorm:"uniqueIndex:idx_round_pool;size:16;not null"`
	Amount  Amount  `gorm:"not null;default:0"`
}

// RoundSequence hands out round numbers; the row is updated inside the
// transaction that creates the round.
type RoundSequence struct {
	Name  string `gorm:"primaryKey;size:32"`
	Value int64  `gorm:"not null;default:0"`
}

type HouseStat struct {
	gorm.Model

	RoundNo     int64                                `gorm:"uniqueIndex;not null" json:"round_no"`
	Winner      Outcome                              `gorm:"size:16" json:"winner"`
	BetCount    int                                  `json:"bet_count"`
	TotalStaked Amount                               `json:"total_staked"`
	TotalPaid   Amount                               `json:"total_paid"`
	Profit      Amount                               `json:"profit"`
	FailedBets  int                                  `json:"failed_bets"`
	Pools       datatypes.JSONType[map[string]int64] `json:"pools"`
}

// GameSetting is a single row of operator-editable settings.
type GameSetting struct {
	ID           uint                                   `gorm:"primaryKey"`
	ForcedWinner Outcome                                `gorm:"size:16;not null;default:''" json:"forced_winner"`
	Weights      datatypes.JSONType[map[string]float64] `json:"weights"`
	UpdatedAt    time.Time                              `json:"updated_at"`
}

const GameSettingID uint = 1
