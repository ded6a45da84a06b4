package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"colorbet/config"
	"colorbet/database"
	"colorbet/models"
)

// RoundView is the read-only projection handed to clients.
type RoundView struct {
	RoundNo          int64                            `json:"round_no"`
	Status           models.RoundStatus               `json:"status"`
	StartTime        time.Time                        `json:"start_time"`
	CloseTime        time.Time                        `json:"close_time"`
	EndTime          time.Time                        `json:"end_time"`
	RemainingSeconds int                              `json:"remaining_seconds"`
	BettingOpen      bool                             `json:"betting_open"`
	Winner           models.Outcome                   `json:"winner,omitempty"`
	Pools            map[models.Outcome]models.Amount `json:"pools"`
	Stats            *models.HouseStat                `json:"stats,omitempty"`
}

// RoundService owns round rows, their pools and the round counter.
type RoundService struct {
	db       *gorm.DB
	cfg      config.GameConfig
	outcomes []models.Outcome
	now      func() time.Time
	log      logrus.FieldLogger
}

func NewRoundService(db *gorm.DB, cfg config.GameConfig, log logrus.FieldLogger) *RoundService {
	return &RoundService{
		db:       db,
		cfg:      cfg,
		outcomes: outcomesOf(cfg),
		now:      time.Now,
		log:      log,
	}
}

func (s *RoundService) SetClock(now func() time.Time) { s.now = now }

func (s *RoundService) Outcomes() []models.Outcome { return s.outcomes }

func (s *RoundService) IsOutcome(o models.Outcome) bool {
	for _, known := range s.outcomes {
		if known == o {
			return true
		}
	}
	return false
}

// EnsureOpenRound returns the round still waiting for settlement, or opens a
// new ACTIVE one starting at now. The sequence row lock serialises creators,
// so two callers can never both open a round.
func (s *RoundService) EnsureOpenRound(ctx context.Context, now time.Time) (*models.Round, bool, error) {
	var round models.Round
	created := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq models.RoundSequence
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", database.RoundSequenceName).First(&seq).Error; err != nil {
			return err
		}

		err := tx.Where("status IN ?", []models.RoundStatus{models.RoundActive, models.RoundClosing}).
			Order("round_no DESC").First(&round).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		seq.Value++
		if err := tx.Model(&seq).Update("value", seq.Value).Error; err != nil {
			return err
		}

		round = models.Round{
			RoundNo:   seq.Value,
			Status:    models.RoundActive,
			StartTime: now,
			CloseTime: now.Add(s.cfg.Cutoff()),
			EndTime:   now.Add(s.cfg.Duration),
		}
		if err := tx.Create(&round).Error; err != nil {
			return err
		}

		pools := make([]models.RoundPool, 0, len(s.outcomes))
		for _, o := range s.outcomes {
			pools = append(pools, models.RoundPool{RoundNo: round.RoundNo, Outcome: o})
		}
		if err := tx.Create(&pools).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, storageErr("open round", err)
	}
	return &round, created, nil
}

// MarkClosing moves an ACTIVE round to CLOSING. It reports whether this call
// made the transition.
func (s *RoundService) MarkClosing(ctx context.Context, roundNo int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Round{}).
		Where("round_no = ? AND status = ?", roundNo, models.RoundActive).
		Update("status", models.RoundClosing)
	if res.Error != nil {
		return false, storageErr("close round", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *RoundService) Get(ctx context.Context, roundNo int64) (*models.Round, error) {
	var round models.Round
	err := s.db.WithContext(ctx).Where("round_no = ?", roundNo).First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, storageErr("get round", err)
	}
	return &round, nil
}

// latest returns the newest round whatever its status.
func (s *RoundService) latest(tx *gorm.DB) (*models.Round, error) {
	var round models.Round
	err := tx.Order("round_no DESC").First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveRound
	}
	if err != nil {
		return nil, storageErr("latest round", err)
	}
	return &round, nil
}

// addToPool books a stake on the round. The status and cutoff guard lives in
// the same UPDATE as the increment, so a bet that lost the race against
// closing affects no row and the caller rolls back.
func (s *RoundService) addToPool(tx *gorm.DB, roundNo int64, outcome models.Outcome, amount models.Amount, now time.Time) error {
	res := tx.Model(&models.Round{}).
		Where("round_no = ? AND status = ? AND close_time > ?", roundNo, models.RoundActive, now).
		Updates(map[string]any{
			"total_staked": gorm.Expr("total_staked + ?", int64(amount)),
			"bet_count":    gorm.Expr("bet_count + 1"),
		})
	if res.Error != nil {
		return storageErr("round totals", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRoundClosed
	}

	res = tx.Model(&models.RoundPool{}).
		Where("round_no = ? AND outcome = ?", roundNo, outcome).
		Update("amount", gorm.Expr("amount + ?", int64(amount)))
	if res.Error != nil {
		return storageErr("round pool", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidOutcome
	}
	return nil
}

func (s *RoundService) pools(tx *gorm.DB, roundNo int64) (map[models.Outcome]models.Amount, error) {
	var rows []models.RoundPool
	if err := tx.Where("round_no = ?", roundNo).Find(&rows).Error; err != nil {
		return nil, storageErr("load pools", err)
	}
	pools := make(map[models.Outcome]models.Amount, len(s.outcomes))
	for _, o := range s.outcomes {
		pools[o] = 0
	}
	for _, r := range rows {
		pools[r.Outcome] = r.Amount
	}
	return pools, nil
}

func (s *RoundService) Pools(ctx context.Context, roundNo int64) (map[models.Outcome]models.Amount, error) {
	return s.pools(s.db.WithContext(ctx), roundNo)
}

// ActiveRound projects the round currently taking (or about to stop taking)
// bets.
func (s *RoundService) ActiveRound(ctx context.Context) (*RoundView, error) {
	db := s.db.WithContext(ctx)

	var round models.Round
	err := db.Where("status IN ?", []models.RoundStatus{models.RoundActive, models.RoundClosing}).
		Order("round_no DESC").First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveRound
	}
	if err != nil {
		return nil, storageErr("active round", err)
	}
	return s.view(db, &round, nil)
}

// LastResult projects the most recently ended round.
func (s *RoundService) LastResult(ctx context.Context) (*RoundView, error) {
	db := s.db.WithContext(ctx)

	var round models.Round
	err := db.Where("status = ?", models.RoundEnded).Order("round_no DESC").First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, storageErr("last result", err)
	}

	var stat models.HouseStat
	statErr := db.Where("round_no = ?", round.RoundNo).First(&stat).Error
	switch {
	case statErr == nil:
		return s.view(db, &round, &stat)
	case errors.Is(statErr, gorm.ErrRecordNotFound):
		return s.view(db, &round, nil)
	}
	return nil, storageErr("last result stats", statErr)
}

// RecentStats returns house statistics for the latest n settled rounds.
func (s *RoundService) RecentStats(ctx context.Context, n int) ([]models.HouseStat, error) {
	var stats []models.HouseStat
	if err := s.db.WithContext(ctx).Order("round_no DESC").Limit(n).Find(&stats).Error; err != nil {
		return nil, storageErr("recent stats", err)
	}
	return stats, nil
}

func (s *RoundService) view(db *gorm.DB, round *models.Round, stat *models.HouseStat) (*RoundView, error) {
	pools, err := s.pools(db, round.RoundNo)
	if err != nil {
		return nil, err
	}

	now := s.now()
	remaining := int(round.EndTime.Sub(now).Seconds())
	if remaining < 0 || !round.Status.Open() {
		remaining = 0
	}
	return &RoundView{
		RoundNo:          round.RoundNo,
		Status:           round.Status,
		StartTime:        round.StartTime,
		CloseTime:        round.CloseTime,
		EndTime:          round.EndTime,
		RemainingSeconds: remaining,
		BettingOpen:      round.Status == models.RoundActive && now.Before(round.CloseTime),
		Winner:           round.Winner,
		Pools:            pools,
		Stats:            stat,
	}, nil
}

func outcomesOf(cfg config.GameConfig) []models.Outcome {
	out := make([]models.Outcome, 0, len(cfg.Outcomes))
	for _, o := range cfg.Outcomes {
		out = append(out, models.ParseOutcome(o))
	}
	return out
}
