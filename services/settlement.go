package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"colorbet/config"
	"colorbet/metrics"
	"colorbet/models"
)

type SettlementResult struct {
	RoundNo        int64             `json:"round_no"`
	Winner         models.Outcome    `json:"winner"`
	Forced         bool              `json:"forced"`
	AlreadySettled bool              `json:"already_settled"`
	Settled        int               `json:"settled"`
	Failed         int               `json:"failed"`
	Stats          *models.HouseStat `json:"stats,omitempty"`
}

// SettlementEngine ends rounds: it picks the winner, settles every PLACED
// bet and records house statistics.
type SettlementEngine struct {
	db          *gorm.DB
	rounds      *RoundService
	settings    *SettingsService
	ledger      *Ledger
	referral    *ReferralEngine
	selector    WinnerSelector
	publisher   Publisher
	multipliers map[models.Outcome]decimal.Decimal
	edgeFactor  decimal.Decimal
	now         func() time.Time
	log         logrus.FieldLogger
}

type SettlementDeps struct {
	Rounds    *RoundService
	Settings  *SettingsService
	Ledger    *Ledger
	Referral  *ReferralEngine
	Selector  WinnerSelector
	Publisher Publisher
}

func NewSettlementEngine(db *gorm.DB, cfg config.GameConfig, deps SettlementDeps, log logrus.FieldLogger) *SettlementEngine {
	multipliers := make(map[models.Outcome]decimal.Decimal, len(cfg.Multipliers))
	for k, m := range cfg.Multipliers {
		multipliers[models.ParseOutcome(k)] = decimal.NewFromFloat(m)
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &SettlementEngine{
		db:          db,
		rounds:      deps.Rounds,
		settings:    deps.Settings,
		ledger:      deps.Ledger,
		referral:    deps.Referral,
		selector:    deps.Selector,
		publisher:   publisher,
		multipliers: multipliers,
		edgeFactor:  decimal.NewFromInt(1).Sub(decimal.NewFromFloat(cfg.HouseEdge)),
		now:         time.Now,
		log:         log,
	}
}

func (e *SettlementEngine) SetClock(now func() time.Time) { e.now = now }

// Payout is what a winning stake on outcome returns:
// amount * multiplier * (1 - houseEdge), rounded to the cent.
func (e *SettlementEngine) Payout(outcome models.Outcome, amount models.Amount) models.Amount {
	m, ok := e.multipliers[outcome]
	if !ok {
		return 0
	}
	return amount.MulRate(m.Mul(e.edgeFactor))
}

// Settle ends the round. Calling it on a round that is already SETTLING or
// ENDED is a successful no-op, so duplicate timer fires are harmless.
func (e *SettlementEngine) Settle(ctx context.Context, roundNo int64) (*SettlementResult, error) {
	start := time.Now()
	log := e.log.WithField("round_no", roundNo)

	winner, forced, won, err := e.decide(ctx, roundNo)
	if err != nil {
		return nil, err
	}
	if !won {
		log.Debug("round already settled, skipping")
		return &SettlementResult{RoundNo: roundNo, AlreadySettled: true}, nil
	}

	settled, failed := e.settleBets(ctx, roundNo, winner)
	stats, err := e.recordStats(ctx, roundNo, winner, failed)
	if err != nil {
		// Repair picks up ENDED rounds without a stats row and publishes
		// round.ended for them
		log.WithError(err).Error("failed to record house stats")
	}

	res := &SettlementResult{
		RoundNo: roundNo,
		Winner:  winner,
		Forced:  forced,
		Settled: settled,
		Failed:  failed,
		Stats:   stats,
	}
	metrics.RoundSettled(string(winner), forced, time.Since(start).Seconds(), failed)
	if stats != nil {
		metrics.HouseProfit(stats.Profit.Float64())
		e.publishEnded(stats)
	}

	entry := log.WithFields(logrus.Fields{
		"winner":  winner,
		"forced":  forced,
		"settled": settled,
		"failed":  failed,
	})
	if failed > 0 {
		entry.Warn("round settled with failures, repair pass will retry")
	} else {
		entry.Info("round settled")
	}
	return res, nil
}

// decide is the single serialisation point of settlement: the conditional
// ACTIVE/CLOSING -> SETTLING update succeeds for exactly one caller. The
// winner is stored and the round ENDED in the same transaction.
func (e *SettlementEngine) decide(ctx context.Context, roundNo int64) (models.Outcome, bool, bool, error) {
	var (
		winner models.Outcome
		forced bool
		won    bool
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Round{}).
			Where("round_no = ? AND status IN ? AND winner = ?", roundNo,
				[]models.RoundStatus{models.RoundActive, models.RoundClosing}, models.Outcome("")).
			Update("status", models.RoundSettling)
		if res.Error != nil {
			return storageErr("begin settlement", res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Round{}).Where("round_no = ?", roundNo).Count(&count).Error; err != nil {
				return storageErr("find round", err)
			}
			if count == 0 {
				return ErrRoundNotFound
			}
			return nil
		}

		pools, err := e.rounds.pools(tx, roundNo)
		if err != nil {
			return err
		}

		override, weights, err := e.settings.lockForSettlement(tx)
		if err != nil {
			return err
		}
		if override != "" {
			winner, forced = override, true
		} else {
			winner = e.selector.Select(SelectInput{Pools: pools, Weights: weights})
		}

		now := e.now()
		res = tx.Model(&models.Round{}).
			Where("round_no = ? AND status = ?", roundNo, models.RoundSettling).
			Updates(map[string]any{
				"status":     models.RoundEnded,
				"winner":     winner,
				"settled_at": now,
			})
		if res.Error != nil {
			return storageErr("store winner", res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: round %d left SETTLING under our lock", ErrInvariant, roundNo)
		}
		won = true
		return nil
	})
	if err != nil {
		return "", false, false, err
	}
	return winner, forced, won, nil
}

// settleBets settles every PLACED bet of the round independently. A failing
// bet stays PLACED and is counted; it never blocks the others.
func (e *SettlementEngine) settleBets(ctx context.Context, roundNo int64, winner models.Outcome) (settled, failed int) {
	var bets []models.Bet
	if err := e.db.WithContext(ctx).
		Where("round_no = ? AND status = ?", roundNo, models.BetPlaced).
		Order("id").Find(&bets).Error; err != nil {
		e.log.WithError(err).WithField("round_no", roundNo).Error("failed to load bets for settlement")
		return 0, 1
	}

	for i := range bets {
		ok, err := e.settleBet(ctx, &bets[i], winner)
		if err != nil {
			failed++
			e.log.WithError(err).WithFields(logrus.Fields{
				"round_no": roundNo,
				"bet_id":   bets[i].BetID,
			}).Error("bet settlement failed")
			continue
		}
		if ok {
			settled++
		}
	}
	return settled, failed
}

func (e *SettlementEngine) settleBet(ctx context.Context, bet *models.Bet, winner models.Outcome) (bool, error) {
	status, payout := models.BetLost, models.Amount(0)
	if bet.Outcome == winner {
		status, payout = models.BetWon, e.Payout(bet.Outcome, bet.Amount)
	}

	applied := false
	var paid []Commission
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Bet{}).
			Where("id = ? AND status = ?", bet.ID, models.BetPlaced).
			Updates(map[string]any{
				"status":     status,
				"payout":     payout,
				"settled_at": e.now(),
			})
		if res.Error != nil {
			return storageErr("settle bet", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if payout > 0 {
			user, err := e.ledger.LockUser(tx, bet.UserID)
			if err != nil {
				return err
			}
			if err := e.ledger.Credit(tx, user, payout, BucketPrimary, Entry{
				Type:  models.TrxPayout,
				RefID: bet.BetID,
				Note:  fmt.Sprintf("round %d won on %s", bet.RoundNo, bet.Outcome),
			}); err != nil {
				return err
			}
		}

		if e.referral != nil {
			var err error
			paid, err = e.referral.applyTx(tx, bet.UserID, bet.Amount, models.EventBet, bet.BetID)
			if err != nil && !errors.Is(err, ErrCommissionApplied) {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		bet.Status, bet.Payout = status, payout
		for _, c := range paid {
			metrics.CommissionPaid(string(models.EventBet), fmt.Sprint(c.Level), c.Amount.Float64())
		}
	}
	return applied, nil
}

type betTotals struct {
	BetCount int
	Staked   models.Amount
	Paid     models.Amount
}

// recordStats recomputes the round's totals from its bets and upserts them,
// so repeated calls converge on the same row.
func (e *SettlementEngine) recordStats(ctx context.Context, roundNo int64, winner models.Outcome, failed int) (*models.HouseStat, error) {
	db := e.db.WithContext(ctx)

	var totals betTotals
	if err := db.Model(&models.Bet{}).
		Select("COUNT(*) AS bet_count, COALESCE(SUM(amount), 0) AS staked, COALESCE(SUM(payout), 0) AS paid").
		Where("round_no = ?", roundNo).
		Scan(&totals).Error; err != nil {
		return nil, storageErr("bet totals", err)
	}

	pools, err := e.rounds.pools(db, roundNo)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]int64, len(pools))
	for o, amt := range pools {
		snapshot[string(o)] = int64(amt)
	}

	stat := models.HouseStat{
		RoundNo:     roundNo,
		Winner:      winner,
		BetCount:    totals.BetCount,
		TotalStaked: totals.Staked,
		TotalPaid:   totals.Paid,
		Profit:      totals.Staked - totals.Paid,
		FailedBets:  failed,
		Pools:       datatypes.NewJSONType(snapshot),
	}
	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "round_no"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"winner", "bet_count", "total_staked", "total_paid", "profit", "failed_bets", "pools", "updated_at", "deleted_at",
		}),
	}).Create(&stat).Error
	if err != nil {
		return nil, storageErr("house stats", err)
	}
	return &stat, nil
}

func (e *SettlementEngine) publishEnded(stats *models.HouseStat) {
	pools := make(map[models.Outcome]models.Amount, len(stats.Pools.Data()))
	for o, amt := range stats.Pools.Data() {
		pools[models.Outcome(o)] = models.Amount(amt)
	}
	e.publisher.Publish(Event{
		Type:    EventRoundEnded,
		RoundNo: stats.RoundNo,
		At:      e.now(),
		Payload: RoundEndedPayload{
			Winner:      stats.Winner,
			TotalStaked: stats.TotalStaked,
			TotalPaid:   stats.TotalPaid,
			Profit:      stats.Profit,
			Pools:       pools,
		},
	})
}

type endedRound struct {
	RoundNo int64
	Winner  models.Outcome
}

// Repair finishes rounds that ENDED with bets still PLACED, which happens
// when individual bet settlements failed, then records stats for ENDED
// rounds that have none and publishes their round.ended. It returns the
// number of bets settled.
func (e *SettlementEngine) Repair(ctx context.Context, limit int) (int, error) {
	db := e.db.WithContext(ctx)

	var missing []endedRound
	err := db.Model(&models.Round{}).
		Select("rounds.round_no AS round_no, rounds.winner AS winner").
		Joins("LEFT JOIN house_stats ON house_stats.round_no = rounds.round_no AND house_stats.deleted_at IS NULL").
		Where("rounds.status = ? AND rounds.winner <> ? AND house_stats.id IS NULL", models.RoundEnded, models.Outcome("")).
		Order("rounds.round_no").
		Limit(limit).
		Scan(&missing).Error
	if err != nil {
		return 0, storageErr("find rounds without stats", err)
	}

	var pending []endedRound
	err = db.Model(&models.Bet{}).
		Select("DISTINCT bets.round_no AS round_no, rounds.winner AS winner").
		Joins("JOIN rounds ON rounds.round_no = bets.round_no AND rounds.deleted_at IS NULL").
		Where("bets.status = ? AND rounds.status = ? AND rounds.winner <> ?", models.BetPlaced, models.RoundEnded, models.Outcome("")).
		Order("bets.round_no").
		Limit(limit).
		Scan(&pending).Error
	if err != nil {
		return 0, storageErr("find unsettled bets", err)
	}

	total := 0
	for _, p := range pending {
		settled, failed := e.settleBets(ctx, p.RoundNo, p.Winner)
		total += settled
		if _, err := e.recordStats(ctx, p.RoundNo, p.Winner, failed); err != nil {
			e.log.WithError(err).WithField("round_no", p.RoundNo).Error("failed to refresh house stats")
		}
		e.log.WithFields(logrus.Fields{
			"round_no": p.RoundNo,
			"settled":  settled,
			"failed":   failed,
		}).Info("repaired round settlement")
	}

	for _, m := range missing {
		var placed int64
		if err := db.Model(&models.Bet{}).
			Where("round_no = ? AND status = ?", m.RoundNo, models.BetPlaced).
			Count(&placed).Error; err != nil {
			e.log.WithError(err).WithField("round_no", m.RoundNo).Error("failed to count unsettled bets")
			continue
		}
		stats, err := e.recordStats(ctx, m.RoundNo, m.Winner, int(placed))
		if err != nil {
			e.log.WithError(err).WithField("round_no", m.RoundNo).Error("failed to recover house stats")
			continue
		}
		metrics.HouseProfit(stats.Profit.Float64())
		e.publishEnded(stats)
		e.log.WithField("round_no", m.RoundNo).Info("recovered house stats")
	}
	return total, nil
}
