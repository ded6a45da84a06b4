package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorbet/config"
	"colorbet/models"
	"colorbet/services"
	"colorbet/testutil"
)

func threeLevels(cfg *config.Config) {
	cfg.Referral.DepositRates = []float64{0.10, 0.05, 0.03}
}

func TestDeposit_CascadeThreeLevels(t *testing.T) {
	f := newFixture(t, threeLevels)
	c := f.user(t, "c", 0, 0, nil)
	b := f.user(t, "b", 0, 0, c)
	a := f.user(t, "a", 0, 0, b)
	f.user(t, "user", 0, 0, a)

	res, err := f.users.Deposit(context.Background(), "user", amt(1000), services.BucketPrimary, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, amt(1000), res.User.PrimaryBalance)
	require.Len(t, res.Commissions, 3)

	for _, want := range []struct {
		user   *models.User
		amount float64
		level  int
	}{{a, 100, 1}, {b, 50, 2}, {c, 30, 3}} {
		got := testutil.ReloadUser(t, f.db, want.user.ID)
		assert.Equal(t, amt(want.amount), got.PrimaryBalance, "level %d", want.level)
		assert.Equal(t, amt(want.amount), got.ReferralEarnings, "level %d", want.level)

		records, err := f.referral.Records(context.Background(), want.user.ID, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, want.level, records[0].Level)
		assert.Equal(t, models.EventDeposit, records[0].EventType)
		assert.Equal(t, "dep-1", records[0].SourceRef)
		assert.Equal(t, amt(1000), records[0].SourceAmount)
	}
}

func TestDeposit_SameReferenceTwice(t *testing.T) {
	f := newFixture(t, threeLevels)
	a := f.user(t, "a", 0, 0, nil)
	f.user(t, "user", 0, 0, a)

	ctx := context.Background()
	_, err := f.users.Deposit(ctx, "user", amt(100), services.BucketPrimary, "dep-1")
	require.NoError(t, err)

	_, err = f.users.Deposit(ctx, "user", amt(100), services.BucketPrimary, "dep-1")
	assert.ErrorIs(t, err, services.ErrDuplicateDeposit)
	assert.Equal(t, amt(10), testutil.ReloadUser(t, f.db, a.ID).PrimaryBalance)
}

func TestDeposit_PromoPaysNoCommission(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a", 0, 0, nil)
	f.user(t, "user", 0, 0, a)

	res, err := f.users.Deposit(context.Background(), "user", amt(100), services.BucketPromo, "bonus-1")
	require.NoError(t, err)
	assert.Empty(t, res.Commissions)
	assert.Equal(t, amt(100), res.User.PromoBalance)
	assert.Equal(t, models.Amount(0), testutil.ReloadUser(t, f.db, a.ID).PrimaryBalance)
}

func TestApplyCommission_Idempotent(t *testing.T) {
	f := newFixture(t, threeLevels)
	a := f.user(t, "a", 0, 0, nil)
	u := f.user(t, "user", 0, 0, a)

	ctx := context.Background()
	_, err := f.referral.ApplyCommission(ctx, u.ID, amt(1000), models.EventDeposit, "ext-9")
	require.NoError(t, err)

	_, err = f.referral.ApplyCommission(ctx, u.ID, amt(1000), models.EventDeposit, "ext-9")
	assert.ErrorIs(t, err, services.ErrCommissionApplied)
	assert.Equal(t, amt(100), testutil.ReloadUser(t, f.db, a.ID).PrimaryBalance)

	var n int64
	f.db.Model(&models.CommissionRecord{}).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestApplyCommission_StopsAtMaxDepth(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Referral.MaxDepth = 4 })

	var upline *models.User
	chain := make([]*models.User, 8)
	for i := len(chain) - 1; i >= 0; i-- {
		chain[i] = f.user(t, fmt.Sprintf("u%d", i), 0, 0, upline)
		upline = chain[i]
	}

	paid, err := f.referral.ApplyCommission(context.Background(), chain[0].ID, amt(1000), models.EventDeposit, "deep")
	require.NoError(t, err)
	require.Len(t, paid, 4)
	for i, c := range paid {
		assert.Equal(t, i+1, c.Level)
		assert.Equal(t, chain[i+1].ID, c.BeneficiaryID)
	}
	assert.Equal(t, models.Amount(0), testutil.ReloadUser(t, f.db, chain[5].ID).PrimaryBalance)
}

func TestApplyCommission_CycleStops(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a", 0, 0, nil)
	b := f.user(t, "b", 0, 0, a)
	require.NoError(t, f.db.Model(a).Update("referred_by", b.ID).Error)
	u := f.user(t, "user", 0, 0, a)

	paid, err := f.referral.ApplyCommission(context.Background(), u.ID, amt(1000), models.EventDeposit, "loop")
	require.NoError(t, err)
	require.Len(t, paid, 2)
	assert.Equal(t, a.ID, paid[0].BeneficiaryID)
	assert.Equal(t, b.ID, paid[1].BeneficiaryID)
}

func TestApplyCommission_SelfReferralPaysNothing(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "self", 0, 0, nil)
	require.NoError(t, f.db.Model(u).Update("referred_by", u.ID).Error)

	paid, err := f.referral.ApplyCommission(context.Background(), u.ID, amt(1000), models.EventDeposit, "me")
	require.NoError(t, err)
	assert.Empty(t, paid)
}

func TestApplyCommission_DanglingReferrer(t *testing.T) {
	f := newFixture(t)
	ghost := &models.User{}
	ghost.ID = 9999
	u := f.user(t, "orphan", 0, 0, ghost)

	paid, err := f.referral.ApplyCommission(context.Background(), u.ID, amt(1000), models.EventDeposit, "ghost")
	require.NoError(t, err)
	assert.Empty(t, paid)
}

func TestApplyCommission_Validation(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "v", 0, 0, nil)
	ctx := context.Background()

	_, err := f.referral.ApplyCommission(ctx, u.ID, 0, models.EventDeposit, "r")
	assert.ErrorIs(t, err, services.ErrInvalidAmount)

	_, err = f.referral.ApplyCommission(ctx, u.ID, amt(10), models.EventDeposit, "")
	assert.ErrorIs(t, err, services.ErrMissingReference)

	_, err = f.referral.ApplyCommission(ctx, 4242, amt(10), models.EventDeposit, "r")
	assert.ErrorIs(t, err, services.ErrUserNotFound)
}
