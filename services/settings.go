package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"colorbet/models"
)

var ErrInvalidWeights = &Error{KindValidation, "INVALID_WEIGHTS", "weights must be non-negative, known outcomes with a positive sum"}

// SettingsService manages the operator-editable game settings row.
type SettingsService struct {
	db     *gorm.DB
	rounds *RoundService
	log    logrus.FieldLogger
}

func NewSettingsService(db *gorm.DB, rounds *RoundService, log logrus.FieldLogger) *SettingsService {
	return &SettingsService{db: db, rounds: rounds, log: log}
}

func (s *SettingsService) Get(ctx context.Context) (*models.GameSetting, error) {
	var setting models.GameSetting
	if err := s.db.WithContext(ctx).First(&setting, models.GameSettingID).Error; err != nil {
		return nil, storageErr("get settings", err)
	}
	return &setting, nil
}

// SetForcedWinner arms a one-shot override for the next settlement.
func (s *SettingsService) SetForcedWinner(ctx context.Context, outcome models.Outcome) error {
	if !s.rounds.IsOutcome(outcome) {
		return ErrInvalidOutcome
	}
	if err := s.update(ctx, "forced_winner", outcome); err != nil {
		return err
	}
	s.log.WithField("outcome", outcome).Warn("forced winner armed")
	return nil
}

func (s *SettingsService) ClearForcedWinner(ctx context.Context) error {
	return s.update(ctx, "forced_winner", models.Outcome(""))
}

func (s *SettingsService) SetWeights(ctx context.Context, weights map[string]float64) error {
	clean := make(map[string]float64, len(weights))
	total := 0.0
	for k, w := range weights {
		o := models.ParseOutcome(k)
		if !s.rounds.IsOutcome(o) || w < 0 {
			return ErrInvalidWeights
		}
		clean[string(o)] = w
		total += w
	}
	if total <= 0 {
		return ErrInvalidWeights
	}
	if err := s.update(ctx, "weights", datatypes.NewJSONType(clean)); err != nil {
		return err
	}
	s.log.WithField("weights", clean).Info("selection weights updated")
	return nil
}

func (s *SettingsService) update(ctx context.Context, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&models.GameSetting{}).
		Where("id = ?", models.GameSettingID).Update(column, value)
	if res.Error != nil {
		return storageErr("update settings", res.Error)
	}
	if res.RowsAffected == 0 {
		return storageErr("update settings", errors.New("settings row missing"))
	}
	return nil
}

// lockForSettlement reads the settings row under lock and clears a pending
// override in the same transaction, so it is consumed exactly once.
func (s *SettingsService) lockForSettlement(tx *gorm.DB) (forced models.Outcome, weights map[string]float64, err error) {
	var setting models.GameSetting
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&setting, models.GameSettingID).Error; err != nil {
		return "", nil, storageErr("lock settings", err)
	}
	weights = setting.Weights.Data()

	if setting.ForcedWinner == "" {
		return "", weights, nil
	}
	if err := tx.Model(&setting).Update("forced_winner", models.Outcome("")).Error; err != nil {
		return "", nil, storageErr("consume forced winner", err)
	}
	if !s.rounds.IsOutcome(setting.ForcedWinner) {
		s.log.WithError(fmt.Errorf("%w: unknown forced winner %q", ErrInvariant, setting.ForcedWinner)).
			Error("discarding forced winner")
		return "", weights, nil
	}
	return setting.ForcedWinner, weights, nil
}
