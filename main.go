package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"colorbet/config"
	"colorbet/database"
	"colorbet/jobs"
	"colorbet/logging"
	"colorbet/middlewares"
	"colorbet/realtime"
	"colorbet/report"
	"colorbet/routes"
	"colorbet/services"

	"github.com/gofiber/fiber/v2"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to YAML config")
	reportN := flag.Int("report", 0, "print house stats for the latest N rounds and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New(config.LogConfig{}).WithError(err).Fatal("Error loading config")
	}
	log := logging.New(cfg.Log)

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	if err := database.Seed(db, cfg.Game.Weights); err != nil {
		log.WithError(err).Fatal("Failed to seed game state")
	}

	rounds := services.NewRoundService(db, cfg.Game, log)

	if *reportN > 0 {
		stats, err := rounds.RecentStats(context.Background(), *reportN)
		if err != nil {
			log.WithError(err).Fatal("Failed to load house stats")
		}
		report.HouseStats(os.Stdout, stats)
		return
	}

	hub := realtime.NewHub(log)
	ledger := services.NewLedger(log)
	referral := services.NewReferralEngine(db, cfg.Referral, ledger, log)
	settings := services.NewSettingsService(db, rounds, log)
	bets := services.NewBetService(db, cfg.Game, rounds, ledger, log)
	users := services.NewUserService(db, ledger, referral, log)
	settlement := services.NewSettlementEngine(db, cfg.Game, services.SettlementDeps{
		Rounds:    rounds,
		Settings:  settings,
		Ledger:    ledger,
		Referral:  referral,
		Selector:  services.NewSelector(cfg.Game, nil),
		Publisher: hub,
	}, log)
	scheduler := jobs.NewRoundScheduler(db, cfg, rounds, settlement, hub, log)
	limiter := middlewares.NewRateLimiter(cfg.RateLimit.BetsPerSecond, cfg.RateLimit.Burst)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	routes.Setup(app, routes.Deps{
		Config:   cfg,
		Users:    users,
		Bets:     bets,
		Rounds:   rounds,
		Referral: referral,
		Settings: settings,
		Limiter:  limiter,
		Log:      log,
	})

	go scheduler.Run(ctx)
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(10 * time.Minute)
			}
		}
	}()
	go func() {
		if err := hub.Serve(ctx, cfg.Server.StreamAddr); err != nil {
			log.WithError(err).Error("Stream server stopped")
		}
	}()

	addr := cfg.Server.Addr()
	log.WithField("addr", addr).Info("Server running")

	go func() {
		if err := app.Listen(addr); err != nil {
			log.WithError(err).Panic("Failed to start server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Info("Gracefully shutting down...")
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.WithError(err).Fatal("Server forced to shutdown")
	}
	log.Info("Server exited cleanly")
}
