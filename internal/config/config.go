// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/pokerboard-backend/internal/store"
)

type Config struct {
	Addr     string `env:"ADDR" envDefault:":8080"`
	DBDriver string `env:"DB_DRIVER" envDefault:"postgres"`
	DBDSN    string `env:"DB_DSN"`
	DBDebug  bool   `env:"DB_DEBUG" envDefault:"false"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"LOG_DEV" envDefault:"false"`

	JWTSecret string `env:"JWT_SECRET"`

	WSPingInterval time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	WSWriteTimeout time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"3s"`
	OutboxSize     int           `env:"OUTBOX_SIZE" envDefault:"16"`
	OriginPatterns []string      `env:"WS_ORIGINS" envSeparator:","`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

const Prefix = "POKER_"

// Load reads an optional .env file, then the POKER_ environment. Values
// already in the environment win over the file.
func Load(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case store.DriverPostgres, store.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("%sDB_DRIVER must be %q or %q, got %q", Prefix, store.DriverPostgres, store.DriverSQLite, c.DBDriver))
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		errs = append(errs, fmt.Errorf("%sDB_DSN is required", Prefix))
	}
	if c.OutboxSize <= 0 {
		errs = append(errs, fmt.Errorf("%sOUTBOX_SIZE must be positive", Prefix))
	}
	if c.WSPingInterval <= 0 || c.WSWriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%sWS_PING_INTERVAL and %sWS_WRITE_TIMEOUT must be positive", Prefix, Prefix))
	}
	return errors.Join(errs...)
}

func (c Config) Store() store.Config {
	return store.Config{Driver: c.DBDriver, DSN: c.DBDSN, Debug: c.DBDebug}
}
