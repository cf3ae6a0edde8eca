// Package config loads server settings from BOOKSETTLE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"BOOKSETTLE_DATABASE_URL,required,notEmpty"`
	ListenAddr  string `env:"BOOKSETTLE_LISTEN_ADDR" envDefault:":8080"`

	SessionSecret string `env:"BOOKSETTLE_SESSION_SECRET,required,notEmpty"`

	ContentSecret  string        `env:"BOOKSETTLE_CONTENT_SECRET,required,notEmpty"`
	ContentBaseURL string        `env:"BOOKSETTLE_CONTENT_BASE_URL" envDefault:"http://localhost:8080/content"`
	ContentRoot    string        `env:"BOOKSETTLE_CONTENT_ROOT" envDefault:"./content"`
	ReadURLTTL     time.Duration `env:"BOOKSETTLE_READ_URL_TTL" envDefault:"1h"`

	GatewayBaseURL   string        `env:"BOOKSETTLE_GATEWAY_BASE_URL,required,notEmpty"`
	GatewayServerKey string        `env:"BOOKSETTLE_GATEWAY_SERVER_KEY,required,notEmpty"`
	GatewayTimeout   time.Duration `env:"BOOKSETTLE_GATEWAY_TIMEOUT" envDefault:"5s"`
	GatewayMaxTries  uint          `env:"BOOKSETTLE_GATEWAY_MAX_TRIES" envDefault:"3"`

	// RedisURL and RabbitMQURL are optional; empty disables the listing cache and event publishing.
	RedisURL    string        `env:"BOOKSETTLE_REDIS_URL"`
	CacheTTL    time.Duration `env:"BOOKSETTLE_CACHE_TTL" envDefault:"5m"`
	RabbitMQURL string        `env:"BOOKSETTLE_RABBITMQ_URL"`

	OTELEndpoint string `env:"BOOKSETTLE_OTEL_ENDPOINT"`

	ShutdownTimeout time.Duration `env:"BOOKSETTLE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func Load() (Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("cfg.Validate: %w", err)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.ContentSecret) < 32 {
		return errors.New("content secret must be at least 32 bytes")
	}

	if c.ReadURLTTL <= 0 {
		return fmt.Errorf("read url ttl[%s] must be positive", c.ReadURLTTL)
	}

	if c.GatewayMaxTries == 0 {
		return errors.New("gateway max tries must be at least 1")
	}

	return nil
}
