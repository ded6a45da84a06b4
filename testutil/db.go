// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"colorbet/database"
	"colorbet/models"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory SQLite database with the full schema.
// SQLite has a single writer, so the pool is pinned to one connection;
// concurrent transactions queue on it instead of failing with SQLITE_BUSY.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:colorbet_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Seed(db, map[string]float64{"RED": 0.45, "GREEN": 0.45, "VIOLET": 0.10}))
	return db
}

// CreateUser inserts a user with the given balances and optional upline.
func CreateUser(t testing.TB, db *gorm.DB, code string, primary, promo models.Amount, referredBy *models.User) *models.User {
	t.Helper()

	u := &models.User{
		UserCode:       code,
		ReferralCode:   "ref_" + code,
		PrimaryBalance: primary,
		PromoBalance:   promo,
		IsActive:       true,
	}
	if referredBy != nil {
		u.ReferredBy = &referredBy.ID
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// ReloadUser reads the user back from storage.
func ReloadUser(t testing.TB, db *gorm.DB, id uint) models.User {
	t.Helper()

	var u models.User
	require.NoError(t, db.First(&u, id).Error)
	return u
}

// FailWrites makes creates and updates on table fail while the returned
// switch is on.
func FailWrites(t testing.TB, db *gorm.DB, table string) *atomic.Bool {
	t.Helper()

	var on atomic.Bool
	fail := func(tx *gorm.DB) {
		if on.Load() && tx.Statement.Table == table {
			_ = tx.AddError(fmt.Errorf("%s: write refused", table))
		}
	}
	name := "testutil:fail_" + table
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register(name, fail))
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register(name, fail))
	return &on
}
