package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken         string         `yaml:"discord_token"`
	OwnerID              string         `yaml:"owner_id"`
	DatabaseDriver       string         `yaml:"database_driver"`
	DatabaseDSN          string         `yaml:"database_dsn"`
	LogLevel             string         `yaml:"log_level"`
	GuildConfigPath      string         `yaml:"guild_config_path"`
	SweepIntervalSeconds int            `yaml:"sweep_interval_seconds"`
	Health               HealthConfig   `yaml:"health"`
	Presence             PresenceConfig `yaml:"presence"`
	Reports              ReportConfig   `yaml:"reports"`
	MQTT                 MQTTConfig     `yaml:"mqtt"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Service string `yaml:"service"`
}

type PresenceConfig struct {
	Status          string `yaml:"status"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

type ReportConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Emoji           string `yaml:"emoji"`
	ChannelID       string `yaml:"channel_id"`
	CooldownSeconds int    `yaml:"cooldown_seconds"`
	MaxPerWindow    int    `yaml:"max_per_window"`
}

type MQTTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	ClientID       string `yaml:"client_id"`
	TopicPrefix    string `yaml:"topic_prefix"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func DefaultConfig() Config {
	return Config{
		DatabaseDriver:       "sqlite",
		DatabaseDSN:          "/data/modwarden.db",
		LogLevel:             "info",
		GuildConfigPath:      "/data/guild_config.json",
		SweepIntervalSeconds: 30,
		Health:               HealthConfig{Enabled: false, Addr: ":8080", Service: "Discord Admin Bot"},
		Presence:             PresenceConfig{Status: "Moderating the server", IntervalSeconds: 20},
		Reports: ReportConfig{
			Enabled:         true,
			Emoji:           "🚩",
			CooldownSeconds: 60,
			MaxPerWindow:    3,
		},
		MQTT: MQTTConfig{
			Enabled:        false,
			Host:           "localhost",
			Port:           1883,
			ClientID:       "modwarden",
			TopicPrefix:    "modwarden",
			TimeoutSeconds: 5,
		},
	}
}

// Load builds the process config: defaults, then the YAML file at
// CONFIG_PATH, then environment variables (including a .env file when one
// is present).
func Load() (Config, error) {
	cfg, err := LoadStorage()
	if err != nil {
		return Config{}, err
	}
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	return cfg, nil
}

// LoadStorage is Load without the token requirement, for commands that only
// touch the database.
func LoadStorage() (Config, error) {
	cfg := DefaultConfig()

	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("database_driver must be sqlite or postgres, got %q", cfg.DatabaseDriver)
	}
	if cfg.DatabaseDSN == "" {
		return Config{}, errors.New("database_dsn is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.OwnerID = envString("OWNER_ID", cfg.OwnerID)
	cfg.DatabaseDriver = strings.ToLower(envString("DATABASE_DRIVER", cfg.DatabaseDriver))
	cfg.DatabaseDSN = envString("DATABASE_DSN", cfg.DatabaseDSN)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.GuildConfigPath = envString("GUILD_CONFIG_PATH", cfg.GuildConfigPath)
	cfg.SweepIntervalSeconds = envInt("SWEEP_INTERVAL_SECONDS", cfg.SweepIntervalSeconds)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Health.Service = envString("HEALTH_SERVICE", cfg.Health.Service)
	cfg.Presence.Status = envString("PRESENCE_STATUS", cfg.Presence.Status)
	cfg.Presence.IntervalSeconds = envInt("PRESENCE_INTERVAL_SECONDS", cfg.Presence.IntervalSeconds)
	cfg.Reports.Enabled = envBool("REPORT_ENABLED", cfg.Reports.Enabled)
	cfg.Reports.Emoji = envString("REPORT_EMOJI", cfg.Reports.Emoji)
	cfg.Reports.ChannelID = envString("REPORT_CHANNEL_ID", cfg.Reports.ChannelID)
	cfg.Reports.CooldownSeconds = envInt("REPORT_COOLDOWN_SECONDS", cfg.Reports.CooldownSeconds)
	cfg.Reports.MaxPerWindow = envInt("REPORT_MAX_PER_WINDOW", cfg.Reports.MaxPerWindow)
	cfg.MQTT.Enabled = envBool("MQTT_ENABLED", cfg.MQTT.Enabled)
	cfg.MQTT.Host = envString("MQTT_HOST", cfg.MQTT.Host)
	cfg.MQTT.Port = envInt("MQTT_PORT", cfg.MQTT.Port)
	cfg.MQTT.Username = envString("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = envString("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.ClientID = envString("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.TopicPrefix = envString("MQTT_TOPIC_PREFIX", cfg.MQTT.TopicPrefix)
	cfg.MQTT.TimeoutSeconds = envInt("MQTT_TIMEOUT_SECONDS", cfg.MQTT.TimeoutSeconds)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
