package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppEnv          string
	Port            string
	Backend         string
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	AuthSecret      string
	TokenTTLMinutes int
	TaxPresets      []decimal.Decimal
}

// Load reads configuration from the environment. A .env file is loaded
// first when present; real environment variables win over it.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("TOKEN_TTL_MINUTES", "1440"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 1440
	}

	return Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Port:            getEnv("PORT", "8080"),
		Backend:         strings.ToLower(getEnv("BACKEND", "memory")),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         redisDB,
		AuthSecret:      strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		TokenTTLMinutes: tokenTTL,
		TaxPresets:      parsePresets(getEnv("TAX_PRESETS", "0,5,12,18,28")),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Validate rejects configurations that cannot start safely.
func (c Config) Validate() error {
	switch c.Backend {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL required for postgres backend")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR required for redis backend")
		}
	default:
		return fmt.Errorf("unknown BACKEND %q", c.Backend)
	}
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 characters")
	}
	return nil
}

// parsePresets keeps the valid entries and drops the rest; an empty or
// fully invalid value falls back to the GST slabs.
func parsePresets(raw string) []decimal.Decimal {
	presets := make([]decimal.Decimal, 0, 5)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := decimal.NewFromString(part)
		if err != nil || d.IsNegative() {
			continue
		}
		presets = append(presets, d)
	}
	if len(presets) == 0 {
		return parsePresets("0,5,12,18,28")
	}
	return presets
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
