package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Database  DatabaseConfig  `envPrefix:"DB_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	JWT       JWTConfig       `envPrefix:"JWT_"`
	Ledger    LedgerConfig    `envPrefix:"LEDGER_"`
	Rewards   RewardsConfig   `envPrefix:"REWARDS_"`
	Telemetry TelemetryConfig `envPrefix:"OTEL_"`
	Admin     AdminConfig     `envPrefix:"ADMIN_"`
}

type ServerConfig struct {
	Port         string        `env:"PORT" envDefault:"8099"`
	Env          string        `env:"ENV" envDefault:"development"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	// Requests per RateWindow per client IP, and per user on ledger writes.
	// Zero disables a limit.
	RateLimit      int           `env:"RATE_LIMIT" envDefault:"100"`
	WriteRateLimit int           `env:"WRITE_RATE_LIMIT" envDefault:"20"`
	RateWindow     time.Duration `env:"RATE_WINDOW" envDefault:"1m"`
}

type DatabaseConfig struct {
	Driver          string        `env:"DRIVER" envDefault:"mysql"` // mysql | postgres | memory
	DSN             string        `env:"DSN" envDefault:"affluence:affluence@tcp(localhost:3306)/affluence?charset=utf8mb4&parseTime=True&loc=UTC"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"100"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"1h"`
}

// RedisConfig is optional. An empty Addr keeps locking in-process and
// commissions inline.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"PREFIX" envDefault:"affluence:"`
}

type JWTConfig struct {
	AccessSecret  string        `env:"ACCESS_SECRET" envDefault:"change-me-in-production"`
	RefreshSecret string        `env:"REFRESH_SECRET" envDefault:"change-me-refresh"`
	AccessExpiry  time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
	RefreshExpiry time.Duration `env:"REFRESH_EXPIRY" envDefault:"168h"`
	Issuer        string        `env:"ISSUER" envDefault:"affluence"`
}

type LedgerConfig struct {
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	LockTimeout  time.Duration `env:"LOCK_TIMEOUT" envDefault:"10s"`
	// LockTTL is the redis lease on a user's lock. The holder renews it, but
	// it must still cover one full retry cycle.
	LockTTL           time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	MaxRetries        uint          `env:"MAX_RETRIES" envDefault:"4"`
	RetryInitial      time.Duration `env:"RETRY_INITIAL" envDefault:"50ms"`
	RetryMax          time.Duration `env:"RETRY_MAX" envDefault:"1s"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"0s"`
	ReconcileWorkers  int           `env:"RECONCILE_WORKERS" envDefault:"4"`
	ToleranceKobo     int64         `env:"TOLERANCE_KOBO" envDefault:"0"`
}

// MinLockTTL is the time Engine.Run can spend on store attempts while
// holding a user's lock.
func (l LedgerConfig) MinLockTTL() time.Duration {
	return time.Duration(l.MaxRetries) * l.StoreTimeout
}

// EffectiveLockTTL is LockTTL, or MinLockTTL plus a lock wait when unset.
func (l LedgerConfig) EffectiveLockTTL() time.Duration {
	if l.LockTTL > 0 {
		return l.LockTTL
	}
	return l.MinLockTTL() + l.LockTimeout
}

// RewardsConfig holds the defaults for reward amounts. Values stored in
// system_settings take precedence at call time.
type RewardsConfig struct {
	MegaBonusKobo       int64  `env:"MEGA_BONUS_KOBO" envDefault:"50000"`
	AlphaBonusKobo      int64  `env:"ALPHA_BONUS_KOBO" envDefault:"200000"`
	CommissionBPS       int64  `env:"COMMISSION_BPS" envDefault:"1000"`
	CommissionOnCoupons bool   `env:"COMMISSION_ON_COUPONS" envDefault:"true"`
	CommissionMode      string `env:"COMMISSION_MODE" envDefault:"inline"` // inline | queue
	MinWithdrawalKobo   int64  `env:"MIN_WITHDRAWAL_KOBO" envDefault:"100000"`
}

type TelemetryConfig struct {
	Endpoint    string `env:"ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"affluence"`
}

// AdminConfig seeds the first admin account at startup when both are set.
type AdminConfig struct {
	Email    string `env:"EMAIL"`
	Username string `env:"USERNAME" envDefault:"admin"`
	Password string `env:"PASSWORD"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env not loaded: %v", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Rewards.CommissionMode {
	case "inline":
	case "queue":
		if c.Redis.Addr == "" {
			return errors.New("config: REWARDS_COMMISSION_MODE=queue requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("config: unknown REWARDS_COMMISSION_MODE %q", c.Rewards.CommissionMode)
	}
	if c.Rewards.CommissionBPS < 0 || c.Rewards.CommissionBPS > 10000 {
		return fmt.Errorf("config: REWARDS_COMMISSION_BPS out of range: %d", c.Rewards.CommissionBPS)
	}
	if c.Rewards.MegaBonusKobo < 0 || c.Rewards.AlphaBonusKobo < 0 {
		return errors.New("config: coupon bonus amounts must not be negative")
	}
	if c.Ledger.LockTTL != 0 && c.Ledger.LockTTL < c.Ledger.MinLockTTL() {
		return fmt.Errorf("config: LEDGER_LOCK_TTL %s is shorter than LEDGER_MAX_RETRIES x LEDGER_STORE_TIMEOUT (%s)", c.Ledger.LockTTL, c.Ledger.MinLockTTL())
	}
	if c.Ledger.ToleranceKobo < 0 {
		return errors.New("config: LEDGER_TOLERANCE_KOBO must not be negative")
	}
	return nil
}
