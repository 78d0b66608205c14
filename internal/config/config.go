// Package config loads the processor's settings from BITRIVER_VOD_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bitriver-vod/internal/transcode"
)

// Config carries every runtime setting of the processor.
type Config struct {
	InputDir  string
	OutputDir string
	TmpDir    string
	Addr      string

	RedisAddr     string
	RedisUsername string
	RedisPassword string
	EventChannel  string

	PollInterval      time.Duration
	StableAfter       time.Duration
	MaxConcurrentJobs int
	EncodeTimeout     time.Duration
	ThumbnailInterval int

	Retention     time.Duration
	SweepInterval time.Duration

	LogLevel string
	TLSCert  string
	TLSKey   string

	Ladder []transcode.Rendition
}

// LoadFromEnv initialises a Config from environment variables, applying
// defaults for anything unset.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		InputDir:          envOrDefault("BITRIVER_VOD_INPUT_DIR", "./recordings"),
		OutputDir:         envOrDefault("BITRIVER_VOD_OUTPUT_DIR", "./processed"),
		TmpDir:            envOrDefault("BITRIVER_VOD_TMP_DIR", filepath.Join(os.TempDir(), "bitriver-vod")),
		Addr:              envOrDefault("BITRIVER_VOD_ADDR", ":8085"),
		RedisAddr:         strings.TrimSpace(os.Getenv("BITRIVER_VOD_REDIS_ADDR")),
		RedisUsername:     strings.TrimSpace(os.Getenv("BITRIVER_VOD_REDIS_USERNAME")),
		RedisPassword:     strings.TrimSpace(os.Getenv("BITRIVER_VOD_REDIS_PASSWORD")),
		EventChannel:      envOrDefault("BITRIVER_VOD_EVENT_CHANNEL", "bitriver:vod:jobs"),
		PollInterval:      2 * time.Second,
		StableAfter:       5 * time.Second,
		MaxConcurrentJobs: 4,
		EncodeTimeout:     2 * time.Hour,
		ThumbnailInterval: 10,
		Retention:         24 * time.Hour,
		SweepInterval:     time.Hour,
		LogLevel:          envOrDefault("BITRIVER_VOD_LOG_LEVEL", "info"),
		TLSCert:           strings.TrimSpace(os.Getenv("BITRIVER_VOD_TLS_CERT")),
		TLSKey:            strings.TrimSpace(os.Getenv("BITRIVER_VOD_TLS_KEY")),
		Ladder:            transcode.DefaultLadder(),
	}

	var err error
	if cfg.PollInterval, err = durationFromEnv("BITRIVER_VOD_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if cfg.StableAfter, err = durationFromEnv("BITRIVER_VOD_STABLE_AFTER", cfg.StableAfter); err != nil {
		return Config{}, err
	}
	if cfg.EncodeTimeout, err = durationFromEnv("BITRIVER_VOD_ENCODE_TIMEOUT", cfg.EncodeTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Retention, err = durationFromEnv("BITRIVER_VOD_RETENTION", cfg.Retention); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = durationFromEnv("BITRIVER_VOD_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.MaxConcurrentJobs, err = intFromEnv("BITRIVER_VOD_MAX_JOBS", cfg.MaxConcurrentJobs); err != nil {
		return Config{}, err
	}
	if cfg.ThumbnailInterval, err = intFromEnv("BITRIVER_VOD_THUMBNAIL_INTERVAL", cfg.ThumbnailInterval); err != nil {
		return Config{}, err
	}

	if ladder := strings.TrimSpace(os.Getenv("BITRIVER_VOD_LADDER")); ladder != "" {
		parsed, err := transcode.ParseLadder(ladder)
		if err != nil {
			return Config{}, fmt.Errorf("parse BITRIVER_VOD_LADDER: %w", err)
		}
		cfg.Ladder = parsed
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings a running processor cannot work with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.InputDir) == "" {
		return fmt.Errorf("input directory is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output directory is required")
	}
	if strings.TrimSpace(c.TmpDir) == "" {
		return fmt.Errorf("scratch directory is required")
	}
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.StableAfter <= 0 {
		return fmt.Errorf("stability window must be positive")
	}
	if c.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("max concurrent jobs must be positive")
	}
	if c.EncodeTimeout <= 0 {
		return fmt.Errorf("encode timeout must be positive")
	}
	if c.Retention <= 0 {
		return fmt.Errorf("retention must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if len(c.Ladder) == 0 {
		return fmt.Errorf("rendition ladder is required")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("TLS requires both a certificate and a key")
	}
	return nil
}

// NotificationsEnabled reports whether a Redis publisher should be wired in.
func (c Config) NotificationsEnabled() bool {
	return c.RedisAddr != ""
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
