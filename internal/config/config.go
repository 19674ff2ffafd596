package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/netatmo-ingest/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	NetatmoClientID     string        `env:"NETATMO_CLIENT_ID" validate:"required"`
	NetatmoClientSecret string        `env:"NETATMO_CLIENT_SECRET" validate:"required"`
	NetatmoUsername     string        `env:"NETATMO_USERNAME" validate:"required"`
	NetatmoPassword     string        `env:"NETATMO_PASSWORD" validate:"required"`
	NetatmoBaseURL      string        `env:"NETATMO_BASE_URL" validate:"required,url"`
	NetatmoTimeout      time.Duration `env:"NETATMO_TIMEOUT"`
	NetatmoMaxRetries   int           `env:"NETATMO_MAX_RETRIES"`

	Region         domain.Region `env:"REGION_*"`
	WindowSize     float64       `env:"WINDOW_SIZE" validate:"gt=0"`
	WindowDelay    time.Duration `env:"WINDOW_DELAY"`
	IngestSchedule string        `env:"INGEST_SCHEDULE" validate:"required"`
	SensorTTL      time.Duration `env:"SENSOR_TTL"`

	// DatabaseURL selects the Postgres store; empty keeps latest state in memory.
	DatabaseURL string `env:"DATABASE_URL"`

	KafkaBrokers    []string      `env:"KAFKA_BROKERS" validate:"min=1,dive,required"`
	KafkaTopic      string        `env:"KAFKA_TOPIC" validate:"required"`
	HTTPAddr        string        `env:"HTTP_ADDR" validate:"required"`
	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	LogFormat       string        `env:"LOG_FORMAT" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
}

// validate reports struct-tag violations under the environment variable
// names.
var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})
	return v
}()

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first if
// present; variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	netatmoTimeout, err := parsePositiveDuration("NETATMO_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	windowDelay, err := parseDuration("WINDOW_DELAY", "300ms")
	if err != nil {
		return nil, err
	}
	sensorTTL, err := parseDuration("SENSOR_TTL", "24h")
	if err != nil {
		return nil, err
	}
	maxRetries, err := parseNonNegativeInt("NETATMO_MAX_RETRIES", "3")
	if err != nil {
		return nil, err
	}
	windowSize, err := parseFloat("WINDOW_SIZE", "0.1")
	if err != nil {
		return nil, err
	}

	var region domain.Region
	for _, f := range []struct {
		key, def string
		dst      *float64
	}{
		{"REGION_NORTH", "52.7", &region.North},
		{"REGION_SOUTH", "52.3", &region.South},
		{"REGION_EAST", "-1.6", &region.East},
		{"REGION_WEST", "-2.2", &region.West},
	} {
		if *f.dst, err = parseFloat(f.key, f.def); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		NetatmoClientID:     os.Getenv("NETATMO_CLIENT_ID"),
		NetatmoClientSecret: os.Getenv("NETATMO_CLIENT_SECRET"),
		NetatmoUsername:     os.Getenv("NETATMO_USERNAME"),
		NetatmoPassword:     os.Getenv("NETATMO_PASSWORD"),
		NetatmoBaseURL:      sharedcfg.EnvOrDefault("NETATMO_BASE_URL", "https://api.netatmo.net"),
		NetatmoTimeout:      netatmoTimeout,
		NetatmoMaxRetries:   maxRetries,

		Region:         region,
		WindowSize:     windowSize,
		WindowDelay:    windowDelay,
		IngestSchedule: sharedcfg.EnvOrDefault("INGEST_SCHEDULE", "20 */5 * * * *"),
		SensorTTL:      sensorTTL,

		DatabaseURL: os.Getenv("DATABASE_URL"),

		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:      sharedcfg.EnvOrDefault("KAFKA_TOPIC", "observation.incoming"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return fmt.Errorf("validate config: %w", err)
		}
		fe := verrs[0]
		if fe.Tag() == "required" || fe.Tag() == "min" {
			return fmt.Errorf("%s is required", fe.Field())
		}
		if fe.Param() != "" {
			return fmt.Errorf("invalid %s: must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("invalid %s: must be a valid %s", fe.Field(), fe.Tag())
	}
	if err := c.Region.Validate(); err != nil {
		return fmt.Errorf("invalid REGION_*: %w", err)
	}
	return nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseNonNegativeInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseFloat(key, def string) (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}
