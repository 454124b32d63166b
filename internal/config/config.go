package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port              int
	LogLevel          string
	LogFormat         string
	DBDriver          string // empty disables stats
	DatabaseURL       string
	VerificationDelay time.Duration
	GracePeriod       time.Duration
	ShutdownTimeout   time.Duration
	AllowedOrigins    []string
}

func Default() Config {
	return Config{
		Port:              3001,
		LogLevel:          "info",
		LogFormat:         "json",
		VerificationDelay: 3500 * time.Millisecond,
		GracePeriod:       5 * time.Minute,
		ShutdownTimeout:   10 * time.Second,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("PORT"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.Port = value
		}
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = strings.ToLower(raw)
	}
	if raw := os.Getenv("LOG_FORMAT"); raw == "json" || raw == "console" {
		cfg.LogFormat = raw
	}
	if raw := os.Getenv("DB_DRIVER"); raw == DriverPostgres || raw == DriverSQLite {
		cfg.DBDriver = raw
	}
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		cfg.DatabaseURL = raw
		if cfg.DBDriver == "" {
			cfg.DBDriver = DriverPostgres
		}
	}
	if raw := os.Getenv("VERIFICATION_DELAY"); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil && value > 0 {
			cfg.VerificationDelay = value
		}
	}
	if raw := os.Getenv("RECONNECT_GRACE_PERIOD"); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil && value > 0 {
			cfg.GracePeriod = value
		}
	}
	if raw := os.Getenv("SHUTDOWN_TIMEOUT"); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil && value > 0 {
			cfg.ShutdownTimeout = value
		}
	}
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}
	return cfg
}

func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
