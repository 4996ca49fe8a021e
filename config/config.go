// Package config loads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"go-aidr/tasks"
)

const (
	MinReconnectDelay = time.Second
	MaxReconnectDelay = 10 * time.Second
)

type Config struct {
	WSURL              string
	APIBase            string
	ListenAddr         string
	ReconnectDelay     time.Duration
	ResyncSchedule     string
	HTTPRetries        int
	StrictAvailability bool
	TaskRollback       tasks.RollbackPolicy
	Debug              bool

	OpenAIKey           string
	FirebaseCredentials string
	MapsAPIKey          string
}

// Load reads .env (if present) and then the environment. Unset variables take
// their defaults; malformed values are reported together.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		WSURL:          env("AIDR_WS_URL", "ws://127.0.0.1:8000/api/v1/ws"),
		APIBase:        env("AIDR_API_BASE", "http://127.0.0.1:8000/api/v1"),
		ListenAddr:     env("AIDR_LISTEN_ADDR", ":8080"),
		ResyncSchedule: env("AIDR_RESYNC_SCHEDULE", "*/10 * * * *"),

		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		FirebaseCredentials: os.Getenv("FIREBASE_CREDENTIALS"),
		MapsAPIKey:          os.Getenv("MAPS_CREDENTIALS"),
	}
	// an explicitly empty schedule disables the resync job
	if v, ok := os.LookupEnv("AIDR_RESYNC_SCHEDULE"); ok {
		cfg.ResyncSchedule = v
	}

	var errs []error

	delay, err := time.ParseDuration(env("AIDR_RECONNECT_DELAY", "3s"))
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("AIDR_RECONNECT_DELAY: %w", err))
	case delay < MinReconnectDelay || delay > MaxReconnectDelay:
		errs = append(errs, fmt.Errorf("AIDR_RECONNECT_DELAY: %s outside [%s, %s]", delay, MinReconnectDelay, MaxReconnectDelay))
	default:
		cfg.ReconnectDelay = delay
	}

	retries, err := strconv.Atoi(env("AIDR_HTTP_RETRIES", "2"))
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("AIDR_HTTP_RETRIES: %w", err))
	case retries < 0:
		errs = append(errs, fmt.Errorf("AIDR_HTTP_RETRIES: must not be negative, got %d", retries))
	default:
		cfg.HTTPRetries = retries
	}

	if cfg.StrictAvailability, err = strconv.ParseBool(env("AIDR_STRICT_AVAILABILITY", "false")); err != nil {
		errs = append(errs, fmt.Errorf("AIDR_STRICT_AVAILABILITY: %w", err))
	}
	if cfg.Debug, err = strconv.ParseBool(env("AIDR_DEBUG", "false")); err != nil {
		errs = append(errs, fmt.Errorf("AIDR_DEBUG: %w", err))
	}
	if cfg.TaskRollback, err = tasks.ParseRollbackPolicy(env("AIDR_TASK_ROLLBACK", "revert")); err != nil {
		errs = append(errs, fmt.Errorf("AIDR_TASK_ROLLBACK: %w", err))
	}

	if cfg.WSURL == "" {
		errs = append(errs, errors.New("AIDR_WS_URL: must not be empty"))
	}
	if cfg.APIBase == "" {
		errs = append(errs, errors.New("AIDR_API_BASE: must not be empty"))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
