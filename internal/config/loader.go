// Package config loads service settings from an optional YAML file and the
// LIBRARY_ environment variables, with the environment taking precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Config captures the configuration values for the library service.
type Config struct {
	HTTPPort       int
	DatabaseDriver string
	DatabaseDSN    string
	SessionSecret  string
	SessionTTL     time.Duration
	LoanPeriod     time.Duration
	BorrowLimit    int
	FineRate       decimal.Decimal
	LogLevel       slog.Level
	// AdminUsername and AdminPassword seed the first administrator on an empty
	// store. Both are optional and must be set together.
	AdminUsername string
	AdminPassword string
}

// fileConfig mirrors the YAML layout. Durations and amounts stay strings so
// that the file and the environment share one parser.
type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Session struct {
		Secret string `yaml:"secret"`
		TTL    string `yaml:"ttl"`
	} `yaml:"session"`
	Circulation struct {
		LoanPeriod  string `yaml:"loan_period"`
		BorrowLimit string `yaml:"borrow_limit"`
		FineRate    string `yaml:"fine_rate"`
	} `yaml:"circulation"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Bootstrap struct {
		AdminUsername string `yaml:"admin_username"`
		AdminPassword string `yaml:"admin_password"`
	} `yaml:"bootstrap"`
}

// Defaults returns the configuration used when nothing overrides a value.
func Defaults() Config {
	return Config{
		HTTPPort:       8080,
		DatabaseDriver: "sqlite",
		DatabaseDSN:    "library.db",
		SessionTTL:     time.Hour,
		LoanPeriod:     7 * 24 * time.Hour,
		BorrowLimit:    2,
		FineRate:       decimal.NewFromInt(10),
		LogLevel:       slog.LevelInfo,
	}
}

// Load reads LIBRARY_CONFIG_FILE when set and then applies the environment.
func Load() (Config, error) {
	return LoadFile(strings.TrimSpace(os.Getenv("LIBRARY_CONFIG_FILE")))
}

// LoadFile reads the YAML file at path, if any, and then applies the environment.
// Missing and invalid entries are reported together.
func LoadFile(path string) (Config, error) {
	var file fileConfig
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	cfg := Defaults()
	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if value := setting("LIBRARY_HTTP_PORT", file.Server.Port); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "LIBRARY_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if value := setting("LIBRARY_DB_DRIVER", file.Database.Driver); value != "" {
		switch strings.ToLower(value) {
		case "sqlite", "postgres":
			cfg.DatabaseDriver = strings.ToLower(value)
		default:
			invalid = append(invalid, "LIBRARY_DB_DRIVER")
		}
	}

	if value := setting("LIBRARY_DB_DSN", file.Database.DSN); value != "" {
		cfg.DatabaseDSN = value
	} else if cfg.DatabaseDriver == "postgres" {
		missing = append(missing, "LIBRARY_DB_DSN")
	}

	if value := setting("LIBRARY_SESSION_SECRET", file.Session.Secret); value == "" {
		missing = append(missing, "LIBRARY_SESSION_SECRET")
	} else {
		cfg.SessionSecret = value
	}

	if value := setting("LIBRARY_SESSION_TTL", file.Session.TTL); value != "" {
		ttl, err := parseDuration(value)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "LIBRARY_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if value := setting("LIBRARY_LOAN_PERIOD", file.Circulation.LoanPeriod); value != "" {
		period, err := parseDuration(value)
		if err != nil || period <= 0 {
			invalid = append(invalid, "LIBRARY_LOAN_PERIOD")
		} else {
			cfg.LoanPeriod = period
		}
	}

	if value := setting("LIBRARY_BORROW_LIMIT", file.Circulation.BorrowLimit); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit <= 0 {
			invalid = append(invalid, "LIBRARY_BORROW_LIMIT")
		} else {
			cfg.BorrowLimit = limit
		}
	}

	if value := setting("LIBRARY_FINE_RATE", file.Circulation.FineRate); value != "" {
		rate, err := decimal.NewFromString(value)
		if err != nil || rate.IsNegative() {
			invalid = append(invalid, "LIBRARY_FINE_RATE")
		} else {
			cfg.FineRate = rate
		}
	}

	if value := setting("LIBRARY_LOG_LEVEL", file.Log.Level); value != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(value)); err != nil {
			invalid = append(invalid, "LIBRARY_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	cfg.AdminUsername = setting("LIBRARY_ADMIN_USERNAME", file.Bootstrap.AdminUsername)
	cfg.AdminPassword = setting("LIBRARY_ADMIN_PASSWORD", file.Bootstrap.AdminPassword)
	if (cfg.AdminUsername == "") != (cfg.AdminPassword == "") {
		missing = append(missing, "LIBRARY_ADMIN_USERNAME and LIBRARY_ADMIN_PASSWORD")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required configuration is missing: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("configuration values are invalid: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}

func setting(env, fromFile string) string {
	if value := strings.TrimSpace(os.Getenv(env)); value != "" {
		return value
	}
	return strings.TrimSpace(fromFile)
}

// parseDuration accepts time.ParseDuration syntax plus a whole number of days such as "7d".
func parseDuration(value string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(value)
}
