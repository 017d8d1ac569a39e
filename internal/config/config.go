// Package config loads runtime configuration: .env file, environment
// variables with defaults, then an optional YAML overlay on top.
// Validation happens at load so a misconfigured engine never starts.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/ticket"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/fixedpoint"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/payout"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/tracker"
)

// Config is the full runtime configuration of the engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Entropy  EntropyConfig  `yaml:"entropy"`
	Drawing  DrawingConfig  `yaml:"drawing"`
	Pool     PoolConfig     `yaml:"pool"`
	Tiers    TiersConfig    `yaml:"tiers"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Host            string  `yaml:"host" env:"HTTP_HOST,default=0.0.0.0"`
	Port            int     `yaml:"port" env:"HTTP_PORT,default=8080"`
	ReadTimeout     int     `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT,default=15"`
	WriteTimeout    int     `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT,default=30"`
	IdleTimeout     int     `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT,default=120"`
	ShutdownTimeout int     `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT,default=10"`
	RateLimit       float64 `yaml:"rate_limit" env:"HTTP_RATE_LIMIT,default=50"`
	RateBurst       int     `yaml:"rate_burst" env:"HTTP_RATE_BURST,default=100"`
	// AllowedOrigins is a comma-separated CORS origin list.
	AllowedOrigins string `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS,default=*"`
	// AuditFile receives the admin audit trail as JSONL when set.
	AuditFile string `yaml:"audit_file" env:"HTTP_AUDIT_FILE"`
}

// OriginList splits the configured CORS origins.
func (s ServerConfig) OriginList() []string {
	var origins []string
	for _, origin := range strings.Split(s.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL,default=info"`
	Format     string `yaml:"format" env:"LOG_FORMAT,default=json"`
	Output     string `yaml:"output" env:"LOG_OUTPUT,default=stdout"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

type DatabaseConfig struct {
	// URL selects the Postgres store; blank runs on memory.
	URL             string `yaml:"url" env:"DATABASE_URL"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME,default=1800"`
}

type RedisConfig struct {
	// Addr enables the distributed settlement lock; blank keeps the
	// in-process lock.
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB,default=0"`
	LockTTL  int    `yaml:"lock_ttl" env:"REDIS_LOCK_TTL,default=60"`
}

type EntropyConfig struct {
	// Source is "crypto" or "beacon".
	Source        string `yaml:"source" env:"ENTROPY_SOURCE,default=crypto"`
	BeaconURL     string `yaml:"beacon_url" env:"BEACON_URL"`
	BeaconPath    string `yaml:"beacon_path" env:"BEACON_VALUE_PATH,default=randomness"`
	BeaconTimeout int    `yaml:"beacon_timeout" env:"BEACON_TIMEOUT,default=10"`
}

type DrawingConfig struct {
	NormalMax   int    `yaml:"normal_max" env:"DRAWING_NORMAL_MAX,default=50"`
	BonusMax    int    `yaml:"bonus_max" env:"DRAWING_BONUS_MAX,default=12"`
	PickSize    int    `yaml:"pick_size" env:"DRAWING_PICK_SIZE,default=5"`
	TicketPrice uint64 `yaml:"ticket_price" env:"DRAWING_TICKET_PRICE,default=200000000"`
	// Schedule is a five-field cron spec; blank uses the scheduler
	// default cadence.
	Schedule string `yaml:"schedule" env:"DRAWING_SCHEDULE"`
	// FeeFraction of ticket revenue kept by the protocol, 10^18 scale.
	FeeFraction uint64 `yaml:"fee_fraction" env:"PROTOCOL_FEE_FRACTION,default=50000000000000000"`
}

type PoolConfig struct {
	// Cap bounds pool value plus pending deposits. Zero is uncapped.
	Cap uint64 `yaml:"cap" env:"POOL_CAP,default=0"`
}

type TiersConfig struct {
	MinPayout       uint64 `yaml:"min_payout" env:"TIER_MIN_PAYOUT,default=0"`
	ReserveFraction uint64 `yaml:"reserve_fraction" env:"TIER_RESERVE_FRACTION,default=0"`
	// Eligible lists the tier ids entitled to the minimum payout.
	Eligible []int `yaml:"eligible"`
	// Weights holds one premium weight per tier, 10^18 scale, summing
	// to exactly one. Empty applies DefaultTierWeights.
	Weights []uint64 `yaml:"weights"`
}

type AuthConfig struct {
	// Tokens is a comma-separated list of static bearer tokens for
	// mutating and admin endpoints. Empty disables auth.
	Tokens string `yaml:"tokens" env:"API_AUTH_TOKENS"`
}

// TokenList splits the configured bearer tokens.
func (a AuthConfig) TokenList() []string {
	var tokens []string
	for _, token := range strings.Split(a.Tokens, ",") {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// Load reads .env, decodes the environment and applies the YAML
// overlay named by CONFIG_FILE, if any.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"))
}

// LoadFrom is Load with an explicit overlay path. A blank path skips
// the overlay.
func LoadFrom(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run on.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("http port %d out of range", c.Server.Port)
	}
	trackerCfg := tracker.Config{
		NormalMax: c.Drawing.NormalMax,
		BonusMax:  c.Drawing.BonusMax,
		PickSize:  c.Drawing.PickSize,
	}
	if err := trackerCfg.Validate(); err != nil {
		return err
	}
	if c.Drawing.TicketPrice == 0 {
		return fmt.Errorf("ticket price must be positive")
	}
	if c.Drawing.FeeFraction > fixedpoint.Unit {
		return fmt.Errorf("fee fraction %d exceeds unity", c.Drawing.FeeFraction)
	}
	switch strings.ToLower(strings.TrimSpace(c.Entropy.Source)) {
	case "crypto":
	case "beacon":
		if strings.TrimSpace(c.Entropy.BeaconURL) == "" {
			return fmt.Errorf("entropy source beacon requires BEACON_URL")
		}
	default:
		return fmt.Errorf("unknown entropy source %q", c.Entropy.Source)
	}
	if _, err := c.TierParams(); err != nil {
		return err
	}
	return nil
}

// TierParams resolves the tier configuration into payout parameters.
func (c *Config) TierParams() (payout.Params, error) {
	params := payout.Params{
		MinPayout:                    c.Tiers.MinPayout,
		PremiumMinAllocationFraction: c.Tiers.ReserveFraction,
	}
	weights := c.Tiers.Weights
	if len(weights) == 0 {
		weights = DefaultTierWeights()
	}
	if len(weights) != ticket.NumTiers {
		return payout.Params{}, fmt.Errorf("tier weights: got %d entries, want %d", len(weights), ticket.NumTiers)
	}
	copy(params.PremiumWeight[:], weights)
	for _, tier := range c.Tiers.Eligible {
		if tier < 0 || tier >= ticket.NumTiers {
			return payout.Params{}, fmt.Errorf("eligible tier %d out of range", tier)
		}
		params.MinPayoutEligible[tier] = true
	}
	if err := params.Validate(); err != nil {
		return payout.Params{}, err
	}
	return params, nil
}

// DefaultTierWeights is a jackpot-heavy premium split: half the pool to
// the top tier, nothing to the one-match and two-match no-bonus tiers.
func DefaultTierWeights() []uint64 {
	return []uint64{
		0,                       // dead tier
		5_000_000_000_000_000,   // bonus only
		0,                       // 1 match
		5_000_000_000_000_000,   // 1 match + bonus
		0,                       // 2 matches
		20_000_000_000_000_000,  // 2 matches + bonus
		40_000_000_000_000_000,  // 3 matches
		60_000_000_000_000_000,  // 3 matches + bonus
		70_000_000_000_000_000,  // 4 matches
		100_000_000_000_000_000, // 4 matches + bonus
		200_000_000_000_000_000, // 5 matches
		500_000_000_000_000_000, // 5 matches + bonus
	}
}
