package config

import (
	"fmt"
	"net"
	"strings"
	"time"
	_ "time/tzdata" // PRICING_TIMEZONE must resolve in minimal containers

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	Log       LogConfig
	Pricing   PricingConfig
	Dispatch  DispatchConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     int    `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	DBName   string `mapstructure:"POSTGRES_DB"`
	SSLMode  string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns int32  `mapstructure:"POSTGRES_MIN_CONNS"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host            string        `mapstructure:"REDIS_HOST"`
	Port            int           `mapstructure:"REDIS_PORT"`
	Password        string        `mapstructure:"REDIS_PASSWORD"`
	DB              int           `mapstructure:"REDIS_DB"`
	PoolSize        int           `mapstructure:"REDIS_POOL_SIZE"`
	CatalogCacheTTL time.Duration `mapstructure:"REDIS_CATALOG_CACHE_TTL"`
}

// RabbitMQConfig holds the message broker settings.
type RabbitMQConfig struct {
	Host     string `mapstructure:"RABBITMQ_HOST"`
	Port     int    `mapstructure:"RABBITMQ_PORT"`
	User     string `mapstructure:"RABBITMQ_USER"`
	Password string `mapstructure:"RABBITMQ_PASSWORD"`
	Exchange string `mapstructure:"RABBITMQ_EXCHANGE"`
}

// LogConfig selects the zap preset and level.
type LogConfig struct {
	Env   string `mapstructure:"LOG_ENV"`
	Level string `mapstructure:"LOG_LEVEL"`
}

// PricingConfig holds the marketplace pricing policy.
type PricingConfig struct {
	Currency             string  `mapstructure:"PRICING_CURRENCY"`
	Timezone             string  `mapstructure:"PRICING_TIMEZONE"`
	DefaultRadiusKm      string  `mapstructure:"PRICING_DEFAULT_RADIUS_KM"`
	DefaultPricePerKm    string  `mapstructure:"PRICING_DEFAULT_PRICE_PER_KM"`
	NightFee             string  `mapstructure:"PRICING_NIGHT_FEE"`
	NightStartHour       int     `mapstructure:"PRICING_NIGHT_START_HOUR"`
	NightEndHour         int     `mapstructure:"PRICING_NIGHT_END_HOUR"`
	CommissionRate       string  `mapstructure:"PRICING_COMMISSION_RATE"`
	DefaultDurationHours float64 `mapstructure:"PRICING_DEFAULT_DURATION_HOURS"`
	MaxDurationHours     float64 `mapstructure:"PRICING_MAX_DURATION_HOURS"`
}

// DispatchConfig holds the priority tier table and job lifetime.
type DispatchConfig struct {
	ExcellentMinRating float64       `mapstructure:"DISPATCH_EXCELLENT_MIN_RATING"`
	GoodMinRating      float64       `mapstructure:"DISPATCH_GOOD_MIN_RATING"`
	AverageMinRating   float64       `mapstructure:"DISPATCH_AVERAGE_MIN_RATING"`
	BlockThreshold     float64       `mapstructure:"DISPATCH_BLOCK_THRESHOLD"`
	ExcellentDelay     time.Duration `mapstructure:"DISPATCH_EXCELLENT_DELAY"`
	GoodDelay          time.Duration `mapstructure:"DISPATCH_GOOD_DELAY"`
	AverageDelay       time.Duration `mapstructure:"DISPATCH_AVERAGE_DELAY"`
	LowDelay           time.Duration `mapstructure:"DISPATCH_LOW_DELAY"`
	CriticalDelay      time.Duration `mapstructure:"DISPATCH_CRITICAL_DELAY"`
	NewDelay           time.Duration `mapstructure:"DISPATCH_NEW_DELAY"`
	JobTTL             time.Duration `mapstructure:"DISPATCH_JOB_TTL"`
}

// RateLimitConfig holds the per-client request limiter settings.
// X-Forwarded-For is only honored when the direct peer is in TrustedProxies
// (IPs or CIDRs). A client idle for IdleTTL loses its bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64       `mapstructure:"RATE_LIMIT_RPS"`
	Burst             int           `mapstructure:"RATE_LIMIT_BURST"`
	TrustedProxies    []string      `mapstructure:"RATE_LIMIT_TRUSTED_PROXIES"`
	IdleTTL           time.Duration `mapstructure:"RATE_LIMIT_IDLE_TTL"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// URL returns the AMQP connection URL.
func (r *RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", r.User, r.Password, r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	setDefaults(v)

	// Try to read .env file. If it doesn't exist (e.g., inside Docker),
	// env vars injected by docker-compose env_file are used instead.
	_ = v.ReadInConfig()

	cfg := &Config{}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         v.GetString("SERVER_HOST"),
		Port:         v.GetInt("SERVER_PORT"),
		ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  v.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Postgres ────────────────────────────────────────
	cfg.Postgres = PostgresConfig{
		Host:     v.GetString("POSTGRES_HOST"),
		Port:     v.GetInt("POSTGRES_PORT"),
		User:     v.GetString("POSTGRES_USER"),
		Password: v.GetString("POSTGRES_PASSWORD"),
		DBName:   v.GetString("POSTGRES_DB"),
		SSLMode:  v.GetString("POSTGRES_SSLMODE"),
		MaxConns: v.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns: v.GetInt32("POSTGRES_MIN_CONNS"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Host:            v.GetString("REDIS_HOST"),
		Port:            v.GetInt("REDIS_PORT"),
		Password:        v.GetString("REDIS_PASSWORD"),
		DB:              v.GetInt("REDIS_DB"),
		PoolSize:        v.GetInt("REDIS_POOL_SIZE"),
		CatalogCacheTTL: v.GetDuration("REDIS_CATALOG_CACHE_TTL"),
	}

	// ── RabbitMQ ────────────────────────────────────────
	cfg.RabbitMQ = RabbitMQConfig{
		Host:     v.GetString("RABBITMQ_HOST"),
		Port:     v.GetInt("RABBITMQ_PORT"),
		User:     v.GetString("RABBITMQ_USER"),
		Password: v.GetString("RABBITMQ_PASSWORD"),
		Exchange: v.GetString("RABBITMQ_EXCHANGE"),
	}

	// ── Logging ─────────────────────────────────────────
	cfg.Log = LogConfig{
		Env:   v.GetString("LOG_ENV"),
		Level: v.GetString("LOG_LEVEL"),
	}

	// ── Pricing ─────────────────────────────────────────
	cfg.Pricing = PricingConfig{
		Currency:             v.GetString("PRICING_CURRENCY"),
		Timezone:             v.GetString("PRICING_TIMEZONE"),
		DefaultRadiusKm:      v.GetString("PRICING_DEFAULT_RADIUS_KM"),
		DefaultPricePerKm:    v.GetString("PRICING_DEFAULT_PRICE_PER_KM"),
		NightFee:             v.GetString("PRICING_NIGHT_FEE"),
		NightStartHour:       v.GetInt("PRICING_NIGHT_START_HOUR"),
		NightEndHour:         v.GetInt("PRICING_NIGHT_END_HOUR"),
		CommissionRate:       v.GetString("PRICING_COMMISSION_RATE"),
		DefaultDurationHours: v.GetFloat64("PRICING_DEFAULT_DURATION_HOURS"),
		MaxDurationHours:     v.GetFloat64("PRICING_MAX_DURATION_HOURS"),
	}

	// ── Dispatch ────────────────────────────────────────
	cfg.Dispatch = DispatchConfig{
		ExcellentMinRating: v.GetFloat64("DISPATCH_EXCELLENT_MIN_RATING"),
		GoodMinRating:      v.GetFloat64("DISPATCH_GOOD_MIN_RATING"),
		AverageMinRating:   v.GetFloat64("DISPATCH_AVERAGE_MIN_RATING"),
		BlockThreshold:     v.GetFloat64("DISPATCH_BLOCK_THRESHOLD"),
		ExcellentDelay:     v.GetDuration("DISPATCH_EXCELLENT_DELAY"),
		GoodDelay:          v.GetDuration("DISPATCH_GOOD_DELAY"),
		AverageDelay:       v.GetDuration("DISPATCH_AVERAGE_DELAY"),
		LowDelay:           v.GetDuration("DISPATCH_LOW_DELAY"),
		CriticalDelay:      v.GetDuration("DISPATCH_CRITICAL_DELAY"),
		NewDelay:           v.GetDuration("DISPATCH_NEW_DELAY"),
		JobTTL:             v.GetDuration("DISPATCH_JOB_TTL"),
	}

	// ── Rate limit ──────────────────────────────────────
	cfg.RateLimit = RateLimitConfig{
		RequestsPerSecond: v.GetFloat64("RATE_LIMIT_RPS"),
		Burst:             v.GetInt("RATE_LIMIT_BURST"),
		TrustedProxies:    splitList(v.GetString("RATE_LIMIT_TRUSTED_PROXIES")),
		IdleTTL:           v.GetDuration("RATE_LIMIT_IDLE_TTL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects a pricing or dispatch policy the engine cannot run with.
func (c *Config) Validate() error {
	p := c.Pricing
	for _, f := range []struct{ name, value string }{
		{"PRICING_DEFAULT_RADIUS_KM", p.DefaultRadiusKm},
		{"PRICING_DEFAULT_PRICE_PER_KM", p.DefaultPricePerKm},
		{"PRICING_NIGHT_FEE", p.NightFee},
		{"PRICING_COMMISSION_RATE", p.CommissionRate},
	} {
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return fmt.Errorf("config: %s: %w", f.name, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("config: %s must be >= 0, got %s", f.name, f.value)
		}
	}
	if rate := decimal.RequireFromString(p.CommissionRate); rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("config: PRICING_COMMISSION_RATE must be in [0, 1], got %s", p.CommissionRate)
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("config: PRICING_TIMEZONE: %w", err)
	}

	d := c.Dispatch
	if !(d.ExcellentMinRating > d.GoodMinRating && d.GoodMinRating > d.AverageMinRating &&
		d.AverageMinRating > d.BlockThreshold) {
		return fmt.Errorf("config: dispatch rating thresholds must be strictly descending")
	}
	delays := []time.Duration{d.ExcellentDelay, d.GoodDelay, d.AverageDelay, d.LowDelay, d.CriticalDelay}
	for i := 1; i < len(delays); i++ {
		if delays[i] < delays[i-1] {
			return fmt.Errorf("config: dispatch delays must not decrease from best to worst tier")
		}
	}
	if d.JobTTL <= 0 {
		return fmt.Errorf("config: DISPATCH_JOB_TTL must be positive")
	}

	rl := c.RateLimit
	for _, proxy := range rl.TrustedProxies {
		if _, _, err := net.ParseCIDR(proxy); err != nil && net.ParseIP(proxy) == nil {
			return fmt.Errorf("config: RATE_LIMIT_TRUSTED_PROXIES: %q is not an IP or CIDR", proxy)
		}
	}
	if rl.IdleTTL <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_IDLE_TTL must be positive")
	}
	return nil
}

// splitList parses a comma-separated env value, dropping empty items.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	// ── Defaults ────────────────────────────────────────
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "5s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "glamgo")
	v.SetDefault("POSTGRES_PASSWORD", "glamgo_secret")
	v.SetDefault("POSTGRES_DB", "glamgo_db")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("POSTGRES_MAX_CONNS", 50)
	v.SetDefault("POSTGRES_MIN_CONNS", 10)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_CATALOG_CACHE_TTL", "5m")

	v.SetDefault("RABBITMQ_HOST", "localhost")
	v.SetDefault("RABBITMQ_PORT", 5672)
	v.SetDefault("RABBITMQ_USER", "guest")
	v.SetDefault("RABBITMQ_PASSWORD", "guest")
	v.SetDefault("RABBITMQ_EXCHANGE", "glamgo.dispatch")

	v.SetDefault("LOG_ENV", "development")
	v.SetDefault("LOG_LEVEL", "")

	v.SetDefault("PRICING_CURRENCY", "MAD")
	v.SetDefault("PRICING_TIMEZONE", "Africa/Casablanca")
	v.SetDefault("PRICING_DEFAULT_RADIUS_KM", "10")
	v.SetDefault("PRICING_DEFAULT_PRICE_PER_KM", "5")
	v.SetDefault("PRICING_NIGHT_FEE", "30")
	v.SetDefault("PRICING_NIGHT_START_HOUR", 22)
	v.SetDefault("PRICING_NIGHT_END_HOUR", 6)
	v.SetDefault("PRICING_COMMISSION_RATE", "0.20")
	v.SetDefault("PRICING_DEFAULT_DURATION_HOURS", 1.0)
	v.SetDefault("PRICING_MAX_DURATION_HOURS", 720.0)

	v.SetDefault("DISPATCH_EXCELLENT_MIN_RATING", 4.5)
	v.SetDefault("DISPATCH_GOOD_MIN_RATING", 4.0)
	v.SetDefault("DISPATCH_AVERAGE_MIN_RATING", 3.5)
	v.SetDefault("DISPATCH_BLOCK_THRESHOLD", 3.0)
	v.SetDefault("DISPATCH_EXCELLENT_DELAY", "0s")
	v.SetDefault("DISPATCH_GOOD_DELAY", "30s")
	v.SetDefault("DISPATCH_AVERAGE_DELAY", "60s")
	v.SetDefault("DISPATCH_LOW_DELAY", "120s")
	v.SetDefault("DISPATCH_CRITICAL_DELAY", "300s")
	v.SetDefault("DISPATCH_NEW_DELAY", "30s")
	v.SetDefault("DISPATCH_JOB_TTL", "15m")

	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_TRUSTED_PROXIES", "")
	v.SetDefault("RATE_LIMIT_IDLE_TTL", "10m")
}
