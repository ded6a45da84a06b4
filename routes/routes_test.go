package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorbet/logging"
	"colorbet/middlewares"
	"colorbet/routes"
	"colorbet/services"
	"colorbet/testutil"
)

const operatorKey = "s3cret"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type server struct {
	app    *fiber.App
	rounds *services.RoundService
	clock  *testutil.Clock
}

func newServer(t *testing.T, limiter *middlewares.RateLimiter) *server {
	t.Helper()

	cfg := testutil.Config()
	cfg.Server.OperatorKey = operatorKey
	db := testutil.NewDB(t)
	log := logging.Discard()
	clock := testutil.NewClock(testutil.Epoch)

	ledger := services.NewLedger(log)
	rounds := services.NewRoundService(db, cfg.Game, log)
	referral := services.NewReferralEngine(db, cfg.Referral, ledger, log)
	bets := services.NewBetService(db, cfg.Game, rounds, ledger, log)
	rounds.SetClock(clock.Now)
	bets.SetClock(clock.Now)

	app := fiber.New()
	routes.Setup(app, routes.Deps{
		Config:   cfg,
		Users:    services.NewUserService(db, ledger, referral, log),
		Bets:     bets,
		Rounds:   rounds,
		Referral: referral,
		Settings: services.NewSettingsService(db, rounds, log),
		Limiter:  limiter,
		Log:      log,
	})
	return &server{app: app, rounds: rounds, clock: clock}
}

func (s *server) do(t *testing.T, method, path string, body any, headers map[string]string) (int, envelope) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if resp.Header.Get("Content-Type") == fiber.MIMEApplicationJSON {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func as(code string) map[string]string { return map[string]string{"X-User-Code": code} }

var operator = map[string]string{"X-Operator-Key": operatorKey}

func TestRegisterDepositAndBet(t *testing.T) {
	s := newServer(t, nil)

	status, env := s.do(t, http.MethodPost, "/user/register", map[string]string{"user_code": "alice"}, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var reg struct {
		ReferralCode string `json:"referral_code"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	assert.NotEmpty(t, reg.ReferralCode)

	status, env = s.do(t, http.MethodPost, "/user/register",
		map[string]string{"user_code": "bob", "referral_code": reg.ReferralCode}, nil)
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = s.do(t, http.MethodPost, "/operator/deposit",
		map[string]any{"user_code": "bob", "amount": "100.00", "ref": "dep-1"}, operator)
	require.Equal(t, http.StatusOK, status, env.Message)

	_, _, err := s.rounds.EnsureOpenRound(context.Background(), s.clock.Now())
	require.NoError(t, err)

	status, env = s.do(t, http.MethodPost, "/user/bet", map[string]any{"outcome": "green", "amount": 25}, as("bob"))
	require.Equal(t, http.StatusOK, status, env.Message)
	var bet services.PlaceBetResult
	require.NoError(t, json.Unmarshal(env.Data, &bet))
	assert.Equal(t, int64(1), bet.RoundNo)
	assert.Equal(t, "75.00", bet.PrimaryBalance.String())

	status, env = s.do(t, http.MethodPost, "/user/balance", nil, as("alice"))
	require.Equal(t, http.StatusOK, status)
	var bal struct {
		Primary  float64 `json:"primary_balance"`
		Earnings float64 `json:"referral_earnings"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bal))
	assert.Equal(t, 10.0, bal.Primary)
	assert.Equal(t, 10.0, bal.Earnings)

	status, env = s.do(t, http.MethodGet, "/round/active", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var view services.RoundView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "25.00", view.Pools["GREEN"].String())
}

func TestErrorStatuses(t *testing.T) {
	s := newServer(t, nil)
	s.do(t, http.MethodPost, "/user/register", map[string]string{"user_code": "carol"}, nil)

	tests := []struct {
		name    string
		method  string
		path    string
		body    any
		headers map[string]string
		status  int
		code    string
	}{
		{"missing user header", http.MethodPost, "/user/balance", nil, nil, http.StatusUnauthorized, "USER_CODE_REQUIRED"},
		{"unknown user", http.MethodPost, "/user/balance", nil, as("nobody"), http.StatusNotFound, "USER_NOT_FOUND"},
		{"no round", http.MethodPost, "/user/bet", map[string]any{"outcome": "RED", "amount": 10}, as("carol"), http.StatusConflict, "NO_ACTIVE_ROUND"},
		{"bad outcome", http.MethodPost, "/user/bet", map[string]any{"outcome": "BLUE", "amount": 10}, as("carol"), http.StatusUnprocessableEntity, "INVALID_OUTCOME"},
		{"no last result", http.MethodGet, "/round/last", nil, nil, http.StatusNotFound, "ROUND_NOT_FOUND"},
		{"duplicate user", http.MethodPost, "/user/register", map[string]string{"user_code": "carol"}, nil, http.StatusConflict, "USER_ALREADY_EXISTS"},
		{"operator without key", http.MethodGet, "/operator/settings", nil, nil, http.StatusUnauthorized, "INVALID_OPERATOR_KEY"},
		{"operator bad key", http.MethodGet, "/operator/settings", nil, map[string]string{"X-Operator-Key": "nope"}, http.StatusUnauthorized, "INVALID_OPERATOR_KEY"},
		{"overflowing deposit", http.MethodPost, "/operator/deposit", map[string]any{"user_code": "carol", "amount": 1e30, "ref": "big"}, operator, http.StatusBadRequest, "INVALID_JSON"},
		{"overflowing stake", http.MethodPost, "/user/bet", map[string]any{"outcome": "RED", "amount": 1e30}, as("carol"), http.StatusBadRequest, "INVALID_JSON"},
		{"bad weights", http.MethodPut, "/operator/weights", map[string]any{"weights": map[string]float64{"RED": -1}}, operator, http.StatusUnprocessableEntity, "INVALID_WEIGHTS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := s.do(t, tt.method, tt.path, tt.body, tt.headers)
			assert.Equal(t, tt.status, status)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Message)
		})
	}
}

func TestOperatorForcedWinner(t *testing.T) {
	s := newServer(t, nil)

	status, env := s.do(t, http.MethodPost, "/operator/forced-winner", map[string]string{"outcome": "violet"}, operator)
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = s.do(t, http.MethodGet, "/operator/settings", nil, operator)
	require.Equal(t, http.StatusOK, status)
	var settings struct {
		ForcedWinner string             `json:"forced_winner"`
		Weights      map[string]float64 `json:"weights"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &settings))
	assert.Equal(t, "VIOLET", settings.ForcedWinner)
	assert.InDelta(t, 0.45, settings.Weights["RED"], 1e-9)

	status, _ = s.do(t, http.MethodDelete, "/operator/forced-winner", nil, operator)
	require.Equal(t, http.StatusOK, status)

	_, env = s.do(t, http.MethodGet, "/operator/settings", nil, operator)
	require.NoError(t, json.Unmarshal(env.Data, &settings))
	assert.Empty(t, settings.ForcedWinner)
}

func TestBlockedUserCannotBet(t *testing.T) {
	s := newServer(t, nil)
	s.do(t, http.MethodPost, "/user/register", map[string]string{"user_code": "dave"}, nil)
	s.do(t, http.MethodPost, "/operator/deposit", map[string]any{"user_code": "dave", "amount": 50, "ref": "d"}, operator)
	_, _, err := s.rounds.EnsureOpenRound(context.Background(), s.clock.Now())
	require.NoError(t, err)

	status, _ := s.do(t, http.MethodPost, "/operator/users/block", map[string]any{"user_code": "dave", "blocked": true}, operator)
	require.Equal(t, http.StatusOK, status)

	status, env := s.do(t, http.MethodPost, "/user/bet", map[string]any{"outcome": "RED", "amount": 10}, as("dave"))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ACCOUNT_BLOCKED", env.Message)
}

func TestBetRateLimit(t *testing.T) {
	s := newServer(t, middlewares.NewRateLimiter(1, 1))
	s.do(t, http.MethodPost, "/user/register", map[string]string{"user_code": "eve"}, nil)

	first, _ := s.do(t, http.MethodPost, "/user/bet", map[string]any{"outcome": "RED", "amount": 10}, as("eve"))
	assert.NotEqual(t, http.StatusTooManyRequests, first)

	second, env := s.do(t, http.MethodPost, "/user/bet", map[string]any{"outcome": "RED", "amount": 10}, as("eve"))
	assert.Equal(t, http.StatusTooManyRequests, second)
	assert.Equal(t, "RATE_LIMITED", env.Message)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "colorbet_")
}
