// Package config loads Weft's configuration from environment variables
// and an optional YAML file, the way the teacher project layers
// spf13/viper over typed defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration tree.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Docker      DockerConfig      `mapstructure:"docker"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig governs the HTTP/WebSocket listener.
type ServerConfig struct {
	Host              string  `mapstructure:"host"`
	Port              int     `mapstructure:"port"`
	ReadTimeout       int     `mapstructure:"readTimeout"`
	WriteTimeout      int     `mapstructure:"writeTimeout"`
	RequestsPerSecond float64 `mapstructure:"requestsPerSecond"`
}

func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// CoordinatorConfig governs the Work Coordinator's stale reaper.
// HeartbeatIntervalMs and StatsIntervalMs are loaded but not read by the
// WebSocket Hub, which runs its heartbeat and stats broadcasts on a
// fixed 30s cadence.
type CoordinatorConfig struct {
	StaleThresholdMs   int `mapstructure:"staleThresholdMs"`
	CleanupIntervalMs  int `mapstructure:"cleanupIntervalMs"`
	HeartbeatIntervalMs int `mapstructure:"heartbeatIntervalMs"`
	StatsIntervalMs    int `mapstructure:"statsIntervalMs"`
}

func (c CoordinatorConfig) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdMs) * time.Millisecond
}

func (c CoordinatorConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMs) * time.Millisecond
}

func (c CoordinatorConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

func (c CoordinatorConfig) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalMs) * time.Millisecond
}

// DatabaseConfig governs the optional audit journal (§4.13). It is not
// the coordinator's system of record.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // "sqlite" | "postgres" | "" (disabled)
	Path     string `mapstructure:"path"`   // sqlite file path
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
}

func (d DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
	case "sqlite":
		return d.Path
	default:
		return ""
	}
}

// NATSConfig governs the optional external bridge (§4.15). An empty URL
// disables the bridge; the core runs identically either way.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClusterID     string `mapstructure:"clusterId"`
	ClientID      string `mapstructure:"clientId"`
	SubjectRoot   string `mapstructure:"subjectRoot"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// DockerConfig governs the Docker spin-up mechanism (§4.14).
type DockerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	APIVersion string `mapstructure:"apiVersion"`
	Image      string `mapstructure:"image"`
}

// AuthConfig governs the bearer-token admit/deny gate.
type AuthConfig struct {
	Token string `mapstructure:"token"` // empty disables auth (development mode)
}

// LoggingConfig governs the structured logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.requestsPerSecond", 50.0)

	v.SetDefault("coordinator.staleThresholdMs", 300_000)
	v.SetDefault("coordinator.cleanupIntervalMs", 60_000)
	v.SetDefault("coordinator.heartbeatIntervalMs", 30_000)
	v.SetDefault("coordinator.statsIntervalMs", 30_000)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "weft-journal.db")
	v.SetDefault("database.sslMode", "disable")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "weft")
	v.SetDefault("nats.subjectRoot", "weft")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("docker.enabled", false)
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.apiVersion", "")
	v.SetDefault("docker.image", "ghcr.io/loominal/weft-agent:latest")

	v.SetDefault("auth.token", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" || os.Getenv("WEFT_ENV") == "production" {
		return "json"
	}
	return "console"
}

// Load reads configuration from env vars (prefix WEFT_, "." replaced by
// "_") and an optional ./config.yaml / /etc/weft/config.yaml, validating
// the result.
func Load() (*Config, error) {
	return LoadWithPath("")
}

func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WEFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/weft/")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Coordinator.StaleThresholdMs <= 0 {
		return fmt.Errorf("coordinator.staleThresholdMs must be positive")
	}
	if cfg.Coordinator.CleanupIntervalMs <= 0 {
		return fmt.Errorf("coordinator.cleanupIntervalMs must be positive")
	}
	switch cfg.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database.driver: %s", cfg.Database.Driver)
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported logging.level: %s", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "console", "text":
	default:
		return fmt.Errorf("unsupported logging.format: %s", cfg.Logging.Format)
	}
	return nil
}
