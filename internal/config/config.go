package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	SignalGeoKey  string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	RefreshInterval time.Duration
	ArrivalWindow   time.Duration

	NotifyEndpoint string

	PenaltyDetourPct int
	PenaltyPlainPct  int

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:         ":8080",
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     10 * time.Second,
		IdleTimeout:      120 * time.Second,
		ShutdownTimeout:  15 * time.Second,
		SignalGeoKey:     "signals_geo",
		KafkaTopic:       "ride-signals",
		RefreshInterval:  30 * time.Second,
		ArrivalWindow:    5 * time.Minute,
		PenaltyDetourPct: 100,
		PenaltyPlainPct:  50,
		LogLevel:         "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.SignalGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setDurationFromEnv(&cfg.RefreshInterval, "CLUSTER_REFRESH_INTERVAL", &errs)
	setDurationFromEnv(&cfg.ArrivalWindow, "ARRIVAL_WINDOW", &errs)
	setStringFromEnv(&cfg.NotifyEndpoint, "NOTIFY_ENDPOINT")
	setIntFromEnv(&cfg.PenaltyDetourPct, "PENALTY_DETOUR_PCT", &errs)
	setIntFromEnv(&cfg.PenaltyPlainPct, "PENALTY_PLAIN_PCT", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("CLUSTER_REFRESH_INTERVAL must be > 0"))
	}
	if cfg.PenaltyDetourPct < 0 || cfg.PenaltyDetourPct > 100 {
		errs = append(errs, fmt.Errorf("PENALTY_DETOUR_PCT must be in 0..100"))
	}
	if cfg.PenaltyPlainPct < 0 || cfg.PenaltyPlainPct > 100 {
		errs = append(errs, fmt.Errorf("PENALTY_PLAIN_PCT must be in 0..100"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
