// Package config loads environment-driven settings, with an optional
// YAML overlay for deployments that prefer a file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the gateway's runtime settings.
type Config struct {
	Port      string `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`

	// Terminal access
	BridgeURL       string        `yaml:"bridge_url"`
	BridgeRPS       float64       `yaml:"bridge_rps"`
	UseMockTerminal bool          `yaml:"use_mock_terminal"`
	TerminalTimeout time.Duration `yaml:"-"`

	// Streaming
	PollInterval   time.Duration `yaml:"-"`
	StreamPoolSize int           `yaml:"stream_pool_size"`

	// Session lifecycle
	IdleTimeout   time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`

	// Journal / logging
	DBPath  string `yaml:"db_path"`
	LogFile string `yaml:"log_file"`
}

// Load reads environment variables (optionally via .env), then applies
// the YAML overlay named by CONFIG_FILE when present.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		BridgeURL:       getEnv("TERMINAL_BRIDGE_URL", "http://127.0.0.1:5001"),
		BridgeRPS:       getEnvFloat("TERMINAL_BRIDGE_RPS", 50),
		UseMockTerminal: getEnv("USE_MOCK_TERMINAL", "true") == "true",
		TerminalTimeout: time.Duration(getEnvInt("TERMINAL_TIMEOUT_MS", 10000)) * time.Millisecond,
		PollInterval:    time.Duration(getEnvInt("POLL_INTERVAL_MS", 100)) * time.Millisecond,
		StreamPoolSize:  getEnvInt("STREAM_POOL_SIZE", 5),
		IdleTimeout:     time.Duration(getEnvInt("IDLE_TIMEOUT_MIN", 30)) * time.Minute,
		SweepInterval:   time.Duration(getEnvInt("SWEEP_INTERVAL_MIN", 5)) * time.Minute,
		DBPath:          getEnv("DB_PATH", "./data/gateway.db"),
		LogFile:         getEnv("LOG_FILE", "./logs/gateway.log"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var file struct {
		Config         `yaml:",inline"`
		PollIntervalMs int `yaml:"poll_interval_ms"`
		IdleTimeoutMin int `yaml:"idle_timeout_min"`
		SweepIntvlMin  int `yaml:"sweep_interval_min"`
		TermTimeoutMs  int `yaml:"terminal_timeout_ms"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if file.Port != "" {
		c.Port = file.Port
	}
	if file.JWTSecret != "" {
		c.JWTSecret = file.JWTSecret
	}
	if file.BridgeURL != "" {
		c.BridgeURL = file.BridgeURL
	}
	if file.BridgeRPS > 0 {
		c.BridgeRPS = file.BridgeRPS
	}
	if file.UseMockTerminal {
		c.UseMockTerminal = true
	}
	if file.StreamPoolSize > 0 {
		c.StreamPoolSize = file.StreamPoolSize
	}
	if file.DBPath != "" {
		c.DBPath = file.DBPath
	}
	if file.LogFile != "" {
		c.LogFile = file.LogFile
	}
	if file.PollIntervalMs > 0 {
		c.PollInterval = time.Duration(file.PollIntervalMs) * time.Millisecond
	}
	if file.IdleTimeoutMin > 0 {
		c.IdleTimeout = time.Duration(file.IdleTimeoutMin) * time.Minute
	}
	if file.SweepIntvlMin > 0 {
		c.SweepInterval = time.Duration(file.SweepIntvlMin) * time.Minute
	}
	if file.TermTimeoutMs > 0 {
		c.TerminalTimeout = time.Duration(file.TermTimeoutMs) * time.Millisecond
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
