package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

type Config struct {
	HTTPAddr string

	// Authentication
	JWTSecret    string
	AuthRequired bool

	// Event log
	DBDriver    string // sqlite | postgres | none
	DatabaseURL string

	LogLevel  string
	LogFormat string // json | console

	// Simulation
	SignaturesPath    string
	DefaultDifficulty protocol.Difficulty

	// WebSocket
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	ClientOutbox   int
	// Host patterns allowed as Origin for cross-origin browsers, e.g. localhost:3000
	WSOriginPatterns []string
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	c := &Config{}
	var difficulty string

	loadEnvString(&c.HTTPAddr, "HTTP_ADDR", ":8000")
	loadEnvString(&c.JWTSecret, "JWT_SECRET", "")
	if err := loadEnvBool(&c.AuthRequired, "AUTH_REQUIRED", true); err != nil {
		return nil, err
	}
	loadEnvString(&c.DBDriver, "DB_DRIVER", "sqlite")
	loadEnvString(&c.DatabaseURL, "DATABASE_URL", "file:simulation.db")
	loadEnvString(&c.LogLevel, "LOG_LEVEL", "info")
	loadEnvString(&c.LogFormat, "LOG_FORMAT", "json")
	loadEnvString(&c.SignaturesPath, "SIGNATURES_PATH", "")
	loadEnvString(&difficulty, "DEFAULT_DIFFICULTY", string(protocol.DifficultyBeginner))
	c.DefaultDifficulty = protocol.Difficulty(difficulty)

	if err := loadEnvDuration(&c.WSReadTimeout, "WS_READ_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&c.WSWriteTimeout, "WS_WRITE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&c.ClientOutbox, "CLIENT_OUTBOX", 32); err != nil {
		return nil, err
	}
	var origins string
	loadEnvString(&origins, "WS_ORIGIN_PATTERNS", "")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			c.WSOriginPatterns = append(c.WSOriginPatterns, o)
		}
	}
	return c, nil
}

func loadEnvString(target *string, key, defaultValue string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %w", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %w", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func (c *Config) Validate() error {
	var problems []string

	if c.AuthRequired && len(c.JWTSecret) < 32 {
		problems = append(problems, "JWT_SECRET must be at least 32 characters when AUTH_REQUIRED is set")
	}
	switch c.DBDriver {
	case "sqlite", "postgres", "none":
	default:
		problems = append(problems, "DB_DRIVER must be one of: sqlite, postgres, none")
	}
	if c.DBDriver != "none" && c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required unless DB_DRIVER=none")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, "LOG_LEVEL must be one of: debug, info, warn, error")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		problems = append(problems, "LOG_FORMAT must be json or console")
	}
	if !c.DefaultDifficulty.Valid() {
		problems = append(problems, "DEFAULT_DIFFICULTY must be Beginner, Intermediate or Hard")
	}
	if c.WSReadTimeout <= 0 || c.WSWriteTimeout <= 0 {
		problems = append(problems, "WS_READ_TIMEOUT and WS_WRITE_TIMEOUT must be positive")
	}
	if c.ClientOutbox < 1 {
		problems = append(problems, "CLIENT_OUTBOX must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}
