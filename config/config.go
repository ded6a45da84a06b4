package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Game      GameConfig      `yaml:"game"`
	Referral  ReferralConfig  `yaml:"referral"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	StreamAddr  string `yaml:"stream_addr"` // websocket + nothing else
	OperatorKey string `yaml:"operator_key"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host             string        `yaml:"host"`
	Port             string        `yaml:"port"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	Name             string        `yaml:"name"`
	SSLMode          string        `yaml:"sslmode"`
	AutoMigrate      bool          `yaml:"auto_migrate"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	JournalRetention time.Duration `yaml:"journal_retention"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Selection modes for the winner selector.
const (
	ModeProbability = "probability"
	ModePoolInverse = "pool_inverse"
)

type GameConfig struct {
	Outcomes      []string           `yaml:"outcomes"`
	SelectionMode string             `yaml:"selection_mode"`
	Weights       map[string]float64 `yaml:"weights"`
	Multipliers   map[string]float64 `yaml:"multipliers"`
	Duration      time.Duration      `yaml:"duration"`
	CutoffMargin  time.Duration      `yaml:"cutoff_margin"`
	TickInterval  time.Duration      `yaml:"tick_interval"`
	HouseEdge     float64            `yaml:"house_edge"`
	MinStake      float64            `yaml:"min_stake"`
	MaxStake      float64            `yaml:"max_stake"` // 0 = unbounded
	RepairBatch   int                `yaml:"repair_batch"`
}

// Cutoff is the elapsed time after which a round stops taking bets.
func (g GameConfig) Cutoff() time.Duration {
	return g.Duration - g.CutoffMargin
}

type ReferralConfig struct {
	MaxDepth      int       `yaml:"max_depth"`
	DepositRates  []float64 `yaml:"deposit_rates"`
	BetRates      []float64 `yaml:"bet_rates"`
	DepositCredit string    `yaml:"deposit_credit"` // primary | promo
	BetCredit     string    `yaml:"bet_credit"`
}

type RateLimitConfig struct {
	BetsPerSecond int `yaml:"bets_per_second"`
	Burst         int `yaml:"burst"`
}

// Load reads .env (if present), then the YAML file, then env overrides.
// A missing YAML file is not an error: defaults plus env are enough to run.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	SetDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Server.Host, "HOST")
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.StreamAddr, "STREAM_ADDR")
	setString(&cfg.Server.OperatorKey, "OPERATOR_KEY")
	setString(&cfg.Database.Host, "DB_HOST")
	setString(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.Database.SSLMode, "DB_SSLMODE")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Database.AutoMigrate = b
		}
	}
}

// SetDefaults fills every unset field with a working value.
func SetDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "3000"
	}
	if cfg.Server.StreamAddr == "" {
		cfg.Server.StreamAddr = "127.0.0.1:3001"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.JournalRetention <= 0 {
		cfg.Database.JournalRetention = 90 * 24 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	g := &cfg.Game
	if len(g.Outcomes) == 0 {
		g.Outcomes = []string{"RED", "GREEN", "VIOLET"}
	}
	for i, o := range g.Outcomes {
		g.Outcomes[i] = strings.ToUpper(strings.TrimSpace(o))
	}
	if g.SelectionMode == "" {
		g.SelectionMode = ModeProbability
	}
	if len(g.Weights) == 0 {
		g.Weights = map[string]float64{"RED": 0.45, "GREEN": 0.45, "VIOLET": 0.10}
	}
	if len(g.Multipliers) == 0 {
		g.Multipliers = map[string]float64{"RED": 2, "GREEN": 2, "VIOLET": 4.5}
	}
	g.Weights = upperKeys(g.Weights)
	g.Multipliers = upperKeys(g.Multipliers)
	if g.Duration <= 0 {
		g.Duration = 60 * time.Second
	}
	if g.CutoffMargin <= 0 {
		g.CutoffMargin = 3 * time.Second
	}
	if g.TickInterval <= 0 {
		g.TickInterval = time.Second
	}
	if g.HouseEdge == 0 {
		g.HouseEdge = 0.02
	}
	if g.MinStake <= 0 {
		g.MinStake = 10
	}
	if g.RepairBatch <= 0 {
		g.RepairBatch = 500
	}

	r := &cfg.Referral
	if r.MaxDepth <= 0 {
		r.MaxDepth = 6
	}
	if r.DepositRates == nil {
		r.DepositRates = []float64{0.10, 0.05, 0.03, 0.02, 0.01, 0.01}
	}
	if r.BetRates == nil {
		r.BetRates = []float64{0.005, 0.003, 0.002, 0.001, 0.001, 0.001}
	}
	if r.DepositCredit == "" {
		r.DepositCredit = "primary"
	}
	if r.BetCredit == "" {
		r.BetCredit = "primary"
	}

	if cfg.RateLimit.BetsPerSecond <= 0 {
		cfg.RateLimit.BetsPerSecond = 5
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 10
	}
}

func (c *Config) Validate() error {
	g := c.Game
	if g.SelectionMode != ModeProbability && g.SelectionMode != ModePoolInverse {
		return fmt.Errorf("game.selection_mode: unknown mode %q", g.SelectionMode)
	}
	if g.CutoffMargin >= g.Duration {
		return fmt.Errorf("game.cutoff_margin %s must be shorter than duration %s", g.CutoffMargin, g.Duration)
	}
	if g.HouseEdge < 0 || g.HouseEdge >= 1 {
		return fmt.Errorf("game.house_edge %v out of range [0,1)", g.HouseEdge)
	}
	if g.MaxStake > 0 && g.MaxStake < g.MinStake {
		return fmt.Errorf("game.max_stake %v below min_stake %v", g.MaxStake, g.MinStake)
	}
	seen := make(map[string]bool, len(g.Outcomes))
	for _, o := range g.Outcomes {
		if o == "" || seen[o] {
			return fmt.Errorf("game.outcomes: empty or duplicate outcome %q", o)
		}
		seen[o] = true
		if m, ok := g.Multipliers[o]; !ok || m <= 0 {
			return fmt.Errorf("game.multipliers: missing multiplier for %s", o)
		}
	}
	for o := range g.Weights {
		if !seen[o] {
			return fmt.Errorf("game.weights: unknown outcome %s", o)
		}
	}
	for _, credit := range []string{c.Referral.DepositCredit, c.Referral.BetCredit} {
		if credit != "primary" && credit != "promo" {
			return fmt.Errorf("referral: credit bucket must be primary or promo, got %q", credit)
		}
	}
	return nil
}

func upperKeys(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}
