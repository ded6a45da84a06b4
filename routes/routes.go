package routes

import (
	"colorbet/config"
	"colorbet/controllers/operator"
	"colorbet/controllers/round"
	"colorbet/controllers/user"
	"colorbet/metrics"
	"colorbet/middlewares"
	"colorbet/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/sirupsen/logrus"
)

type Deps struct {
	Config   *config.Config
	Users    *services.UserService
	Bets     *services.BetService
	Rounds   *services.RoundService
	Referral *services.ReferralEngine
	Settings *services.SettingsService
	Limiter  *middlewares.RateLimiter
	Log      logrus.FieldLogger
}

func Setup(app *fiber.App, d Deps) {
	userHandler := &user.Handler{Users: d.Users, Bets: d.Bets, Referral: d.Referral}
	roundHandler := &round.Handler{Rounds: d.Rounds}
	operatorHandler := &operator.Handler{Users: d.Users, Referral: d.Referral, Settings: d.Settings}

	limiter := d.Limiter
	if limiter == nil {
		limiter = middlewares.NewRateLimiter(d.Config.RateLimit.BetsPerSecond, d.Config.RateLimit.Burst)
	}

	app.Post("/user/register", userHandler.Register)
	userroutes := app.Group("/user", middlewares.UserAuth(d.Users))
	userroutes.Post("/balance", userHandler.Balance)
	userroutes.Post("/bet", limiter.Handler(), userHandler.PlaceBet)
	userroutes.Get("/bets", userHandler.ListBets)
	userroutes.Get("/commissions", userHandler.Commissions)

	roundroutes := app.Group("/round")
	roundroutes.Get("/active", roundHandler.Active)
	roundroutes.Get("/last", roundHandler.Last)
	roundroutes.Get("/stats", roundHandler.Stats)

	oproutes := app.Group("/operator", middlewares.OperatorAuth(d.Config.Server.OperatorKey, d.Log))
	oproutes.Get("/settings", operatorHandler.GetSettings)
	oproutes.Post("/deposit", operatorHandler.Deposit)
	oproutes.Post("/commission", operatorHandler.Commission)
	oproutes.Post("/forced-winner", operatorHandler.SetForcedWinner)
	oproutes.Delete("/forced-winner", operatorHandler.ClearForcedWinner)
	oproutes.Put("/weights", operatorHandler.SetWeights)
	oproutes.Post("/users/block", operatorHandler.BlockUser)
	oproutes.Post("/users/limit", operatorHandler.BetLimit)

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}
