// Package config loads the target daemon's settings: a TOML file, overridden
// by SCENEBRIDGE_HOST / SCENEBRIDGE_PORT environment values so automation can
// repoint the endpoint without touching the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 9080

	EnvHost = "SCENEBRIDGE_HOST"
	EnvPort = "SCENEBRIDGE_PORT"
)

type Config struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	TickIntervalMS int    `toml:"tickIntervalMs"`
	CaptureDir     string `toml:"captureDir"`
	LogLevel       string `toml:"logLevel"`
}

func Default() Config {
	return Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		TickIntervalMS: 16,
		CaptureDir:     os.TempDir(),
		LogLevel:       "info",
	}
}

// Load reads a TOML config file over the defaults, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers SCENEBRIDGE_* values over the config. A .env file in the
// working directory is honored if present.
func (cfg *Config) applyEnv() error {
	_ = godotenv.Load()

	if host := os.Getenv(EnvHost); host != "" {
		cfg.Host = host
	}
	if portStr := os.Getenv(EnvPort); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvPort, err)
		}
		cfg.Port = port
	}
	return nil
}

func (cfg *Config) validate() error {
	if cfg.Host == "" {
		return fmt.Errorf("host required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.TickIntervalMS <= 0 {
		return fmt.Errorf("tickIntervalMs must be positive")
	}
	return nil
}

// ListenAddr returns the host:port the target listens on.
func (cfg Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// TickInterval returns the tick interval as a duration.
func (cfg Config) TickInterval() time.Duration {
	return time.Duration(cfg.TickIntervalMS) * time.Millisecond
}
