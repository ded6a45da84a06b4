package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"colorbet/config"
	"colorbet/metrics"
	"colorbet/models"
	"colorbet/services"
	tasks "colorbet/task"
)

const (
	repairEvery = 30 * time.Second
	pruneEvery  = time.Hour
)

// RoundScheduler drives the round lifecycle from a single ticker goroutine:
// open a round, close it for betting at the cutoff, settle it at expiry and
// open the next one. Every step is idempotent against storage, so a failed
// tick is simply retried by the next one.
type RoundScheduler struct {
	db         *gorm.DB
	rounds     *services.RoundService
	settlement *services.SettlementEngine
	publisher  services.Publisher
	game       config.GameConfig
	retention  time.Duration
	now        func() time.Time
	log        logrus.FieldLogger

	lastRepair time.Time
	lastPrune  time.Time
}

func NewRoundScheduler(
	db *gorm.DB,
	cfg *config.Config,
	rounds *services.RoundService,
	settlement *services.SettlementEngine,
	publisher services.Publisher,
	log logrus.FieldLogger,
) *RoundScheduler {
	if publisher == nil {
		publisher = services.NopPublisher{}
	}
	return &RoundScheduler{
		db:         db,
		rounds:     rounds,
		settlement: settlement,
		publisher:  publisher,
		game:       cfg.Game,
		retention:  cfg.Database.JournalRetention,
		now:        time.Now,
		log:        log.WithField("component", "scheduler"),
	}
}

func (s *RoundScheduler) SetClock(now func() time.Time) { s.now = now }

// Run ticks until ctx is cancelled.
func (s *RoundScheduler) Run(ctx context.Context) {
	s.log.WithFields(logrus.Fields{
		"tick":     s.game.TickInterval,
		"duration": s.game.Duration,
		"cutoff":   s.game.Cutoff(),
	}).Info("round scheduler starting")

	ticker := time.NewTicker(s.game.TickInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("round scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduler step at the current clock time.
func (s *RoundScheduler) Tick(ctx context.Context) {
	now := s.now()

	round, ok := s.openRound(ctx, now)
	if !ok {
		return
	}

	elapsed := now.Sub(round.StartTime)
	if round.Status == models.RoundActive && elapsed >= s.game.Cutoff() {
		closed, err := s.rounds.MarkClosing(ctx, round.RoundNo)
		if err != nil {
			metrics.SchedulerError("close_round")
			s.log.WithError(err).WithField("round_no", round.RoundNo).Error("failed to close round")
		} else if closed {
			s.publisher.Publish(services.Event{Type: services.EventRoundClosing, RoundNo: round.RoundNo, At: now})
		}
	}

	if elapsed >= s.game.Duration {
		if _, err := s.settlement.Settle(ctx, round.RoundNo); err != nil {
			metrics.SchedulerError("settle_round")
			s.log.WithError(err).WithField("round_no", round.RoundNo).Error("failed to settle round")
		}
		// a round that failed to settle is still open and is returned
		// again here, so the next tick retries it
		s.openRound(ctx, now)
	}

	if now.Sub(s.lastRepair) >= repairEvery {
		s.lastRepair = now
		if _, err := s.settlement.Repair(ctx, s.game.RepairBatch); err != nil {
			metrics.SchedulerError("repair")
			s.log.WithError(err).Error("settlement repair pass failed")
		}
	}

	if s.db != nil && now.Sub(s.lastPrune) >= pruneEvery {
		s.lastPrune = now
		if _, err := tasks.PruneJournal(ctx, s.db, now, s.retention, s.log); err != nil {
			metrics.SchedulerError("prune")
		}
	}
}

func (s *RoundScheduler) openRound(ctx context.Context, now time.Time) (*models.Round, bool) {
	round, created, err := s.rounds.EnsureOpenRound(ctx, now)
	if err != nil {
		metrics.SchedulerError("open_round")
		s.log.WithError(err).Error("no open round, retrying next tick")
		return nil, false
	}
	if created {
		s.log.WithField("round_no", round.RoundNo).Info("round started")
		s.publisher.Publish(services.Event{
			Type:    services.EventRoundStarted,
			RoundNo: round.RoundNo,
			At:      now,
			Payload: services.RoundStartedPayload{
				StartTime: round.StartTime,
				CloseTime: round.CloseTime,
				EndTime:   round.EndTime,
			},
		})
	}
	return round, true
}
