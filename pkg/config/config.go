package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment (and .env).
type Config struct {
	Port     string
	AppEnv   string
	LogLevel string

	DatabaseURL string
	JWTSecret   string
	RedisURL    string
	NatsURL     string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	OTPTTL         time.Duration
	OTPMaxAttempts int
}

// IsDev reports whether the service runs in development mode.
func (c Config) IsDev() bool { return c.AppEnv == "dev" }

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:           getEnv("PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "production"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		NatsURL:        os.Getenv("NATS_URL"),
		SupabaseURL:    os.Getenv("SUPABASE_URL"),
		SupabaseKey:    os.Getenv("SUPABASE_SERVICE_KEY"),
		SupabaseBucket: os.Getenv("SUPABASE_BUCKET"),
		OTPTTL:         5 * time.Minute,
		OTPMaxAttempts: 3,
	}

	if v := os.Getenv("OTP_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, errors.New("OTP_TTL must be a duration, e.g. 5m")
		}
		cfg.OTPTTL = d
	}
	if v := os.Getenv("OTP_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, errors.New("OTP_MAX_ATTEMPTS must be a positive integer")
		}
		cfg.OTPMaxAttempts = n
	}

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
