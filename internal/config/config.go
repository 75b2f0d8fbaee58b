// Package config reads server settings from the environment, after loading
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the server.
type Config struct {
	Addr           string
	DBPath         string
	MatchMaxAge    time.Duration
	SweepInterval  time.Duration
	LogLevel       string
	LogFormat      string // "json" or "console"
	EncounterMode  string // "immediate" or "deferred"
	AutoEndTurn    bool
	AllowedOrigins []string
}

// Load reads .env files (a missing default .env is fine) and then the
// environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		var pathErr *os.PathError
		if len(files) > 0 || !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset keys.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Addr:          ":8080",
		DBPath:        "history.db",
		MatchMaxAge:   time.Hour,
		SweepInterval: time.Minute,
		LogLevel:      "info",
		LogFormat:     "json",
		EncounterMode: "immediate",
	}
	var errs []error

	if p := getenv("PORT"); p != "" {
		if n, err := strconv.Atoi(p); err != nil || n <= 0 || n > 65535 {
			errs = append(errs, fmt.Errorf("PORT: invalid port %q", p))
		} else {
			cfg.Addr = ":" + p
		}
	}
	if p := getenv("DB_PATH"); p != "" {
		cfg.DBPath = p
	}
	cfg.MatchMaxAge = duration(getenv, "MATCH_MAX_AGE", cfg.MatchMaxAge, &errs)
	cfg.SweepInterval = duration(getenv, "SWEEP_INTERVAL", cfg.SweepInterval, &errs)

	if v := strings.ToLower(getenv("LOG_LEVEL")); v != "" {
		switch v {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = v
		default:
			errs = append(errs, fmt.Errorf("LOG_LEVEL: unknown level %q", v))
		}
	}
	if v := strings.ToLower(getenv("LOG_FORMAT")); v != "" {
		if v != "json" && v != "console" {
			errs = append(errs, fmt.Errorf("LOG_FORMAT: want json or console, got %q", v))
		} else {
			cfg.LogFormat = v
		}
	}
	if v := strings.ToLower(getenv("ENCOUNTER_MODE")); v != "" {
		if v != "immediate" && v != "deferred" {
			errs = append(errs, fmt.Errorf("ENCOUNTER_MODE: want immediate or deferred, got %q", v))
		} else {
			cfg.EncounterMode = v
		}
	}
	if v := getenv("AUTO_END_TURN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("AUTO_END_TURN: %w", err))
		}
		cfg.AutoEndTurn = b
	}
	for _, o := range strings.Split(getenv("ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func duration(getenv func(string) string, key string, def time.Duration, errs *[]error) time.Duration {
	v := getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}
