package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"colorbet/config"
	"colorbet/metrics"
	"colorbet/models"
)

type PlaceBetResult struct {
	BetID          string         `json:"bet_id"`
	RoundNo        int64          `json:"round_no"`
	Outcome        models.Outcome `json:"outcome"`
	Amount         models.Amount  `json:"amount"`
	FromPromo      models.Amount  `json:"from_promo"`
	FromPrimary    models.Amount  `json:"from_primary"`
	PrimaryBalance models.Amount  `json:"primary_balance"`
	PromoBalance   models.Amount  `json:"promo_balance"`
}

// BetService places bets. It is the only creator of bet rows; settlement is
// the only writer of their status.
type BetService struct {
	db       *gorm.DB
	rounds   *RoundService
	ledger   *Ledger
	minStake models.Amount
	maxStake models.Amount
	now      func() time.Time
	log      logrus.FieldLogger
}

func NewBetService(db *gorm.DB, cfg config.GameConfig, rounds *RoundService, ledger *Ledger, log logrus.FieldLogger) *BetService {
	return &BetService{
		db:       db,
		rounds:   rounds,
		ledger:   ledger,
		minStake: models.AmountFromFloat(cfg.MinStake),
		maxStake: models.AmountFromFloat(cfg.MaxStake),
		now:      time.Now,
		log:      log,
	}
}

func (s *BetService) SetClock(now func() time.Time) { s.now = now }

// PlaceBet debits the user, records the bet and books it on the current
// round's pool in one transaction.
func (s *BetService) PlaceBet(ctx context.Context, userID uint, outcome models.Outcome, amount models.Amount) (*PlaceBetResult, error) {
	res, err := s.placeBet(ctx, userID, outcome, amount)
	if err != nil {
		metrics.BetRejected(CodeOf(err))
		s.log.WithFields(logrus.Fields{
			"user_id": userID,
			"outcome": outcome,
			"amount":  amount.String(),
			"code":    CodeOf(err),
		}).Debug("bet rejected")
		return nil, err
	}

	metrics.BetPlaced(string(outcome), amount.Float64())
	s.log.WithFields(logrus.Fields{
		"bet_id":   res.BetID,
		"round_no": res.RoundNo,
		"user_id":  userID,
		"outcome":  outcome,
		"amount":   amount.String(),
	}).Debug("bet placed")
	return res, nil
}

func (s *BetService) placeBet(ctx context.Context, userID uint, outcome models.Outcome, amount models.Amount) (*PlaceBetResult, error) {
	if !s.rounds.IsOutcome(outcome) {
		return nil, ErrInvalidOutcome
	}

	var result *PlaceBetResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		round, err := s.rounds.latest(tx)
		if err != nil {
			return err
		}
		if round.Status != models.RoundActive || !now.Before(round.CloseTime) {
			return ErrRoundClosed
		}

		if amount < s.minStake || (s.maxStake > 0 && amount > s.maxStake) {
			return ErrInvalidAmount
		}

		user, err := s.ledger.LockUser(tx, userID)
		if err != nil {
			return err
		}
		if user.BetLimit > 0 && amount > user.BetLimit {
			return ErrLimitExceeded
		}

		var existing models.Bet
		err = tx.Where("round_no = ? AND user_id = ?", round.RoundNo, user.ID).First(&existing).Error
		if err == nil {
			return &DuplicateBetError{Existing: existing}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return storageErr("find bet", err)
		}

		if user.IsBlocked || !user.IsActive {
			return ErrAccountBlocked
		}
		if user.Available() < amount {
			return ErrInsufficientBalance
		}

		betID := uuid.New().String()
		split, err := s.ledger.Debit(tx, user, amount, Entry{
			Type:  models.TrxBet,
			RefID: betID,
			Note:  fmt.Sprintf("bet %s on round %d", outcome, round.RoundNo),
		})
		if err != nil {
			return err
		}

		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("total_wagered", gorm.Expr("total_wagered + ?", int64(amount))).Error; err != nil {
			return storageErr("total wagered", err)
		}

		bet := models.Bet{
			BetID:       betID,
			RoundNo:     round.RoundNo,
			UserID:      user.ID,
			Outcome:     outcome,
			Amount:      amount,
			FromPromo:   split.FromPromo,
			FromPrimary: split.FromPrimary,
			Status:      models.BetPlaced,
		}
		if err := tx.Create(&bet).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// lost the race to a concurrent placement; the winner's row is
				// not readable from this aborted transaction
				return &DuplicateBetError{Existing: models.Bet{RoundNo: round.RoundNo, UserID: user.ID}}
			}
			return storageErr("create bet", err)
		}

		if err := s.rounds.addToPool(tx, round.RoundNo, outcome, amount, now); err != nil {
			return err
		}

		result = &PlaceBetResult{
			BetID:          betID,
			RoundNo:        round.RoundNo,
			Outcome:        outcome,
			Amount:         amount,
			FromPromo:      split.FromPromo,
			FromPrimary:    split.FromPrimary,
			PrimaryBalance: user.PrimaryBalance,
			PromoBalance:   user.PromoBalance,
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("place bet", err)
	}
	return result, nil
}

// UserBets lists the user's bets, newest first.
func (s *BetService) UserBets(ctx context.Context, userID uint, limit int) ([]models.Bet, error) {
	var bets []models.Bet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("id DESC").Limit(limit).Find(&bets).Error
	if err != nil {
		return nil, storageErr("user bets", err)
	}
	return bets, nil
}

// RoundBets lists every bet of a round.
func (s *BetService) RoundBets(ctx context.Context, roundNo int64) ([]models.Bet, error) {
	var bets []models.Bet
	if err := s.db.WithContext(ctx).Where("round_no = ?", roundNo).Order("id").Find(&bets).Error; err != nil {
		return nil, storageErr("round bets", err)
	}
	return bets, nil
}
