package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from an
// optional YAML file, then environment variables (and a .env file), then
// defaults.
type Config struct {
	// Servers
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	// Infrastructure; an empty address disables the component.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	ParamsChannel string `yaml:"params_channel"`
	SQLitePath    string `yaml:"sqlite_path"`

	// Dataset retention
	RetentionCron string `yaml:"retention_cron"`
	RetentionKeep int    `yaml:"retention_keep"`

	// Uploads
	MaxUploadMB int `yaml:"max_upload_mb"`

	// Default indicator parameters
	EMAPeriod int `yaml:"ema_period"`
	RSIPeriod int `yaml:"rsi_period"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		HTTPAddr:      ":3001",
		MetricsAddr:   ":9090",
		LogLevel:      "info",
		ParamsChannel: "config:indicators",
		SQLitePath:    "data/datasets.db",
		RetentionCron: "@hourly",
		RetentionKeep: 10,
		MaxUploadMB:   20,
		EMAPeriod:     20,
		RSIPeriod:     14,
	}
}

// Load reads configuration. path names an optional YAML file ("" skips
// it); a .env file in the working directory is loaded if present.
// Environment variables override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.ParamsChannel = getEnv("PARAMS_CHANNEL", cfg.ParamsChannel)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.RetentionCron = getEnv("RETENTION_CRON", cfg.RetentionCron)
	cfg.RetentionKeep = getEnvInt("RETENTION_KEEP", cfg.RetentionKeep)
	cfg.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", cfg.MaxUploadMB)
	cfg.EMAPeriod = getEnvInt("EMA_PERIOD", cfg.EMAPeriod)
	cfg.RSIPeriod = getEnvInt("RSI_PERIOD", cfg.RSIPeriod)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.HTTPAddr) == "":
		return errors.New("config: HTTP_ADDR must not be empty")
	case c.RetentionKeep < 1:
		return fmt.Errorf("config: RETENTION_KEEP must be >= 1, got %d", c.RetentionKeep)
	case c.MaxUploadMB < 1:
		return fmt.Errorf("config: MAX_UPLOAD_MB must be >= 1, got %d", c.MaxUploadMB)
	case c.EMAPeriod < 1:
		return fmt.Errorf("config: EMA_PERIOD must be >= 1, got %d", c.EMAPeriod)
	case c.RSIPeriod < 1:
		return fmt.Errorf("config: RSI_PERIOD must be >= 1, got %d", c.RSIPeriod)
	case c.RedisAddr != "" && c.ParamsChannel == "":
		return errors.New("config: PARAMS_CHANNEL is required when REDIS_ADDR is set")
	}
	return nil
}

// MaxUploadBytes is MaxUploadMB in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] ignoring invalid %s value: %q", key, v)
		return fallback
	}
	return n
}
