package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorbet/config"
	"colorbet/models"
	"colorbet/services"
	"colorbet/testutil"
)

func TestPlaceBet_DebitsPromoThenPrimary(t *testing.T) {
	f := newFixture(t)
	round := f.openRound(t)
	u := f.user(t, "alice", 20, 30, nil)

	res, err := f.bets.PlaceBet(context.Background(), u.ID, models.Red, amt(40))
	require.NoError(t, err)

	assert.Equal(t, round.RoundNo, res.RoundNo)
	assert.Equal(t, amt(30), res.FromPromo)
	assert.Equal(t, amt(10), res.FromPrimary)
	assert.Equal(t, models.Amount(0), res.PromoBalance)
	assert.Equal(t, amt(10), res.PrimaryBalance)

	got := testutil.ReloadUser(t, f.db, u.ID)
	assert.Equal(t, models.Amount(0), got.PromoBalance)
	assert.Equal(t, amt(10), got.PrimaryBalance)
	assert.Equal(t, amt(40), got.TotalWagered)

	pools, err := f.rounds.Pools(context.Background(), round.RoundNo)
	require.NoError(t, err)
	assert.Equal(t, amt(40), pools[models.Red])
	assert.Equal(t, models.Amount(0), pools[models.Green])
}

func TestPlaceBet_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, f *fixture) uint
		outcome models.Outcome
		amount  float64
		want    error
	}{
		{
			name:    "unknown outcome",
			setup:   func(t *testing.T, f *fixture) uint { f.openRound(t); return f.user(t, "u", 100, 0, nil).ID },
			outcome: "BLUE",
			amount:  10,
			want:    services.ErrInvalidOutcome,
		},
		{
			name:    "below minimum stake",
			setup:   func(t *testing.T, f *fixture) uint { f.openRound(t); return f.user(t, "u", 100, 0, nil).ID },
			outcome: models.Red,
			amount:  9.99,
			want:    services.ErrInvalidAmount,
		},
		{
			name:    "no round yet",
			setup:   func(t *testing.T, f *fixture) uint { return f.user(t, "u", 100, 0, nil).ID },
			outcome: models.Red,
			amount:  10,
			want:    services.ErrNoActiveRound,
		},
		{
			name: "past cutoff",
			setup: func(t *testing.T, f *fixture) uint {
				f.openRound(t)
				f.clock.Advance(f.cfg.Game.Cutoff())
				return f.user(t, "u", 100, 0, nil).ID
			},
			outcome: models.Red,
			amount:  10,
			want:    services.ErrRoundClosed,
		},
		{
			name: "round closing",
			setup: func(t *testing.T, f *fixture) uint {
				round := f.openRound(t)
				_, err := f.rounds.MarkClosing(context.Background(), round.RoundNo)
				require.NoError(t, err)
				return f.user(t, "u", 100, 0, nil).ID
			},
			outcome: models.Red,
			amount:  10,
			want:    services.ErrRoundClosed,
		},
		{
			name: "blocked account",
			setup: func(t *testing.T, f *fixture) uint {
				f.openRound(t)
				u := f.user(t, "u", 100, 0, nil)
				require.NoError(t, f.users.SetBlocked(context.Background(), "u", true))
				return u.ID
			},
			outcome: models.Red,
			amount:  10,
			want:    services.ErrAccountBlocked,
		},
		{
			name: "over user limit",
			setup: func(t *testing.T, f *fixture) uint {
				f.openRound(t)
				u := f.user(t, "u", 100, 0, nil)
				require.NoError(t, f.users.SetBetLimit(context.Background(), "u", amt(20)))
				return u.ID
			},
			outcome: models.Red,
			amount:  25,
			want:    services.ErrLimitExceeded,
		},
		{
			name:    "insufficient balance",
			setup:   func(t *testing.T, f *fixture) uint { f.openRound(t); return f.user(t, "u", 15, 4, nil).ID },
			outcome: models.Green,
			amount:  20,
			want:    services.ErrInsufficientBalance,
		},
		{
			name:    "unknown user",
			setup:   func(t *testing.T, f *fixture) uint { f.openRound(t); return 999 },
			outcome: models.Green,
			amount:  20,
			want:    services.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			userID := tt.setup(t, f)

			_, err := f.bets.PlaceBet(context.Background(), userID, tt.outcome, amt(tt.amount))
			require.ErrorIs(t, err, tt.want)

			var n int64
			require.NoError(t, f.db.Model(&models.Bet{}).Count(&n).Error)
			assert.Zero(t, n, "rejected bet must leave no row")
		})
	}
}

func TestPlaceBet_InsufficientKeepsBalance(t *testing.T) {
	f := newFixture(t)
	f.openRound(t)
	u := f.user(t, "poor", 15, 4, nil)

	_, err := f.bets.PlaceBet(context.Background(), u.ID, models.Red, amt(20))
	require.ErrorIs(t, err, services.ErrInsufficientBalance)
	assert.Equal(t, services.KindInsufficientBalance, services.KindOf(err))

	got := testutil.ReloadUser(t, f.db, u.ID)
	assert.Equal(t, amt(15), got.PrimaryBalance)
	assert.Equal(t, amt(4), got.PromoBalance)
}

func TestPlaceBet_SecondBetReportsExisting(t *testing.T) {
	f := newFixture(t)
	f.openRound(t)
	u := f.user(t, "dup", 100, 0, nil)

	_, err := f.bets.PlaceBet(context.Background(), u.ID, models.Violet, amt(10))
	require.NoError(t, err)

	_, err = f.bets.PlaceBet(context.Background(), u.ID, models.Red, amt(20))
	require.ErrorIs(t, err, services.ErrDuplicateBet)

	var dup *services.DuplicateBetError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, models.Violet, dup.Existing.Outcome)
	assert.Equal(t, amt(10), dup.Existing.Amount)

	got := testutil.ReloadUser(t, f.db, u.ID)
	assert.Equal(t, amt(90), got.PrimaryBalance)
}

func TestPlaceBet_ConcurrentSameUserOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.openRound(t)
	u := f.user(t, "racer", 100, 0, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.bets.PlaceBet(context.Background(), u.ID, models.Green, amt(30))
		}(i)
	}
	wg.Wait()

	succeeded, duplicates := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, services.ErrDuplicateBet):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, duplicates)

	got := testutil.ReloadUser(t, f.db, u.ID)
	assert.Equal(t, amt(70), got.PrimaryBalance)
}

func TestPlaceBet_ConcurrentUsersPoolsMatchBets(t *testing.T) {
	f := newFixture(t)
	round := f.openRound(t)

	const n = 24
	outcomes := []models.Outcome{models.Red, models.Green, models.Violet}
	users := make([]*models.User, n)
	for i := range users {
		users[i] = f.user(t, fmt.Sprintf("p%02d", i), 1000, 0, nil)
	}

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u *models.User) {
			defer wg.Done()
			_, err := f.bets.PlaceBet(context.Background(), u.ID, outcomes[i%3], amt(float64(10+i)))
			assert.NoError(t, err)
		}(i, u)
	}
	wg.Wait()

	bets, err := f.bets.RoundBets(context.Background(), round.RoundNo)
	require.NoError(t, err)
	require.Len(t, bets, n)

	byOutcome := map[models.Outcome]models.Amount{}
	var staked models.Amount
	for _, b := range bets {
		byOutcome[b.Outcome] += b.Amount
		staked += b.Amount
	}

	pools, err := f.rounds.Pools(context.Background(), round.RoundNo)
	require.NoError(t, err)
	assert.Equal(t, byOutcome, map[models.Outcome]models.Amount(pools))

	stored, err := f.rounds.Get(context.Background(), round.RoundNo)
	require.NoError(t, err)
	assert.Equal(t, staked, stored.TotalStaked)
	assert.Equal(t, n, stored.BetCount)
}

func TestPlaceBet_MaxStake(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Game.MaxStake = 50 })
	f.openRound(t)
	u := f.user(t, "whale", 1000, 0, nil)

	_, err := f.bets.PlaceBet(context.Background(), u.ID, models.Red, amt(50.01))
	assert.ErrorIs(t, err, services.ErrInvalidAmount)

	_, err = f.bets.PlaceBet(context.Background(), u.ID, models.Red, amt(50))
	assert.NoError(t, err)
}

func TestUserBets_NewestFirst(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "hist", 1000, 0, nil)

	for i := 0; i < 3; i++ {
		round := f.openRound(t)
		_, err := f.bets.PlaceBet(context.Background(), u.ID, models.Red, amt(10))
		require.NoError(t, err)
		_, err = f.settlement.Settle(context.Background(), round.RoundNo)
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	bets, err := f.bets.UserBets(context.Background(), u.ID, 2)
	require.NoError(t, err)
	require.Len(t, bets, 2)
	assert.Greater(t, bets[0].RoundNo, bets[1].RoundNo)
}
