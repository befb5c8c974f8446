package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds process-level settings read from the environment and .env.
type Config struct {
	ServerURL string `env:"FWVOICE_SERVER_URL"`
	APIKey    string `env:"FWVOICE_API_KEY"`

	ConnectTimeout time.Duration `env:"FWVOICE_CONNECT_TIMEOUT" envDefault:"60s"`
	ReadTimeout    time.Duration `env:"FWVOICE_READ_TIMEOUT" envDefault:"60s"`
	WriteTimeout   time.Duration `env:"FWVOICE_WRITE_TIMEOUT" envDefault:"60s"`
	CallTimeout    time.Duration `env:"FWVOICE_CALL_TIMEOUT" envDefault:"120s"`

	LogLevel string `env:"FWVOICE_LOG_LEVEL" envDefault:"info"`

	WebAddr   string `env:"FWVOICE_WEB_ADDR" envDefault:":8080"`
	WebSecret string `env:"FWVOICE_WEB_SECRET"`

	TranscriptDir string `env:"FWVOICE_TRANSCRIPT_DIR" envDefault:"."`
}

// Load reads an optional .env file from the working directory and then the
// process environment. Values already present in the environment win.
func Load(log *zap.Logger, files ...string) (*Config, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if err := godotenv.Load(files...); err != nil {
		log.Debug("no .env file found, using system environment variables")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for name, d := range map[string]time.Duration{
		"FWVOICE_CONNECT_TIMEOUT": c.ConnectTimeout,
		"FWVOICE_READ_TIMEOUT":    c.ReadTimeout,
		"FWVOICE_WRITE_TIMEOUT":   c.WriteTimeout,
		"FWVOICE_CALL_TIMEOUT":    c.CallTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// Transport builds the per-session transport config from the loaded values.
func (c *Config) Transport() (TransportConfig, error) {
	return NewTransportConfig(c.ServerURL, c.APIKey)
}
