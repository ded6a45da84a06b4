package tasks

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"colorbet/models"
)

// PruneJournal hard-deletes ledger journal rows older than retention.
// Balances live on the user row, so the journal is history only.
func PruneJournal(ctx context.Context, db *gorm.DB, now time.Time, retention time.Duration, log logrus.FieldLogger) (int64, error) {
	cutoff := now.Add(-retention)
	result := db.WithContext(ctx).Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&models.UserTransaction{})

	if result.Error != nil {
		log.WithError(result.Error).Error("❌ Failed to prune ledger journal")
		return 0, result.Error
	}
	log.WithFields(logrus.Fields{
		"deleted": result.RowsAffected,
		"before":  cutoff.Format(time.RFC3339),
	}).Info("✅ Pruned ledger journal")
	return result.RowsAffected, nil
}
