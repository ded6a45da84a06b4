package database

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"colorbet/config"
	"colorbet/models"
)

// RoundSequenceName is the sequence row that numbers rounds.
const RoundSequenceName = "round"

func Connect(cfg config.DatabaseConfig, log logrus.FieldLogger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("❌ failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	log.Info("✅ Connected to database")

	if cfg.AutoMigrate {
		log.Info("🟡 Starting auto-migration...")
		if err := Migrate(db); err != nil {
			return nil, fmt.Errorf("❌ failed to auto-migrate database: %w", err)
		}
		log.Info("✅ Auto migration completed")
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.UserTransaction{},
		&models.DepositRecord{},
		&models.Round{},
		&models.RoundPool{},
		&models.RoundSequence{},
		&models.Bet{},
		&models.CommissionRecord{},
		&models.HouseStat{},
		&models.GameSetting{},
	)
}

// Seed creates the round sequence and the settings row when missing. Existing
// rows are left untouched so operator edits survive restarts.
func Seed(db *gorm.DB, weights map[string]float64) error {
	seq := models.RoundSequence{Name: RoundSequenceName}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
		return err
	}

	var setting models.GameSetting
	err := db.First(&setting, models.GameSettingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		setting = models.GameSetting{ID: models.GameSettingID}
		if weights != nil {
			setting.Weights = datatypes.NewJSONType(weights)
		}
		return db.Create(&setting).Error
	}
	if err != nil {
		return err
	}
	if weights != nil && len(setting.Weights.Data()) == 0 {
		return db.Model(&setting).Update("weights", datatypes.NewJSONType(weights)).Error
	}
	return nil
}
