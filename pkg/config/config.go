package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the execution core.
type Config struct {
	Port string

	// Deriv API
	DerivToken   string
	DerivAppID   string
	DerivWSURL   string
	Symbol       string
	TickInterval time.Duration // nominal spacing of venue ticks, used for expiry deadlines

	// Protocol client tuning
	RequestTimeout       time.Duration
	PingInterval         time.Duration
	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	MaxReconnectAttempts int
	RateLimitCalls       int
	RateLimitWindow      time.Duration
	RateLimitMaxWait     time.Duration

	// Trading
	MaxStake      float64
	MinConfidence float64

	// Risk limits (can be overridden by RiskConfigPath, see risk.LoadLimits)
	MaxDailyLoss         float64
	MaxConsecutiveLosses int
	MaxTradesPerHour     int
	MaxTradesPerDay      int
	CooldownMinutes      int
	MinBalanceToTrade    float64
	MaxDrawdownPercent   float64
	RiskConfigPath       string

	// Lifecycle
	ExpiryMargin   float64 // multiplier over requested duration before the sweep gives up
	SweepInterval  time.Duration
	CompletedLimit int // completed orders kept in memory

	// Database
	DBPath string

	// Auth
	JWTSecret            string
	OperatorPasswordHash string // bcrypt hash; empty disables the control endpoints
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the engine still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		DerivToken:   os.Getenv("DERIV_API_TOKEN"),
		DerivAppID:   getEnv("DERIV_APP_ID", "85633"),
		DerivWSURL:   getEnv("DERIV_WS_URL", "wss://ws.derivws.com/websockets/v3"),
		Symbol:       getEnv("SYMBOL", "1HZ10V"),
		TickInterval: getEnvDuration("TICK_INTERVAL", 2*time.Second),

		RequestTimeout:       getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),
		PingInterval:         getEnvDuration("PING_INTERVAL", 30*time.Second),
		ReconnectBase:        getEnvDuration("RECONNECT_BASE", 5*time.Second),
		ReconnectCap:         getEnvDuration("RECONNECT_CAP", 300*time.Second),
		MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 10),
		RateLimitCalls:       getEnvInt("RATE_LIMIT_CALLS", 30),
		RateLimitWindow:      getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second),
		RateLimitMaxWait:     getEnvDuration("RATE_LIMIT_MAX_WAIT", 30*time.Second),

		MaxStake:      getEnvFloat("MAX_STAKE", 0.25),
		MinConfidence: getEnvFloat("MIN_CONFIDENCE", 0.6),

		MaxDailyLoss:         getEnvFloat("MAX_DAILY_LOSS", 1.50),
		MaxConsecutiveLosses: getEnvInt("MAX_CONSECUTIVE_LOSSES", 5),
		MaxTradesPerHour:     getEnvInt("MAX_TRADES_PER_HOUR", 15),
		MaxTradesPerDay:      getEnvInt("MAX_TRADES_PER_DAY", 100),
		CooldownMinutes:      getEnvInt("COOLDOWN_MINUTES", 60),
		MinBalanceToTrade:    getEnvFloat("MIN_BALANCE_TO_TRADE", 2.00),
		MaxDrawdownPercent:   getEnvFloat("MAX_DRAWDOWN_PERCENT", 40),
		RiskConfigPath:       getEnv("RISK_CONFIG_PATH", ""),

		ExpiryMargin:   getEnvFloat("EXPIRY_MARGIN", 1.5),
		SweepInterval:  getEnvDuration("SWEEP_INTERVAL", time.Second),
		CompletedLimit: getEnvInt("COMPLETED_ORDER_LIMIT", 1000),

		DBPath: getEnv("DB_PATH", "./data/scalping.db"),

		JWTSecret:            getEnv("JWT_SECRET", "dev-secret"),
		OperatorPasswordHash: os.Getenv("OPERATOR_PASSWORD_HASH"),
	}
	return cfg, nil
}

// Validate checks the settings that the engine cannot run without.
func (c *Config) Validate() error {
	if c.DerivToken == "" {
		return errors.New("DERIV_API_TOKEN is required")
	}
	if c.DerivAppID == "" {
		return errors.New("DERIV_APP_ID is required")
	}
	if c.MaxStake <= 0 {
		return errors.New("MAX_STAKE must be positive")
	}
	if c.MaxDailyLoss <= 0 {
		return errors.New("MAX_DAILY_LOSS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
