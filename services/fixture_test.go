package services_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"colorbet/config"
	"colorbet/logging"
	"colorbet/models"
	"colorbet/services"
	"colorbet/testutil"
)

type fixture struct {
	db         *gorm.DB
	cfg        *config.Config
	clock      *testutil.Clock
	pub        *testutil.Recorder
	ledger     *services.Ledger
	rounds     *services.RoundService
	bets       *services.BetService
	settings   *services.SettingsService
	referral   *services.ReferralEngine
	users      *services.UserService
	settlement *services.SettlementEngine
}

func newFixture(t *testing.T, tweaks ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := testutil.Config()
	for _, tweak := range tweaks {
		tweak(cfg)
	}
	require.NoError(t, cfg.Validate())

	db := testutil.NewDB(t)
	log := logging.Discard()
	f := &fixture{
		db:    db,
		cfg:   cfg,
		clock: testutil.NewClock(testutil.Epoch),
		pub:   &testutil.Recorder{},
	}
	f.ledger = services.NewLedger(log)
	f.rounds = services.NewRoundService(db, cfg.Game, log)
	f.bets = services.NewBetService(db, cfg.Game, f.rounds, f.ledger, log)
	f.settings = services.NewSettingsService(db, f.rounds, log)
	f.referral = services.NewReferralEngine(db, cfg.Referral, f.ledger, log)
	f.users = services.NewUserService(db, f.ledger, f.referral, log)
	f.settlement = services.NewSettlementEngine(db, cfg.Game, services.SettlementDeps{
		Rounds:    f.rounds,
		Settings:  f.settings,
		Ledger:    f.ledger,
		Referral:  f.referral,
		Selector:  services.NewSelector(cfg.Game, rand.New(rand.NewSource(7))),
		Publisher: f.pub,
	}, log)

	f.rounds.SetClock(f.clock.Now)
	f.bets.SetClock(f.clock.Now)
	f.settlement.SetClock(f.clock.Now)
	return f
}

func (f *fixture) openRound(t *testing.T) *models.Round {
	t.Helper()
	round, _, err := f.rounds.EnsureOpenRound(context.Background(), f.clock.Now())
	require.NoError(t, err)
	return round
}

func (f *fixture) user(t *testing.T, code string, primary, promo float64, upline *models.User) *models.User {
	t.Helper()
	return testutil.CreateUser(t, f.db, code, models.AmountFromFloat(primary), models.AmountFromFloat(promo), upline)
}

func amt(f float64) models.Amount { return models.AmountFromFloat(f) }

// twoColours restricts the game to RED and GREEN.
func twoColours(cfg *config.Config) {
	cfg.Game.Outcomes = []string{"RED", "GREEN"}
	cfg.Game.Weights = map[string]float64{"RED": 0.5, "GREEN": 0.5}
	cfg.Game.Multipliers = map[string]float64{"RED": 2, "GREEN": 2}
}

func poolInverse(cfg *config.Config) { cfg.Game.SelectionMode = config.ModePoolInverse }
