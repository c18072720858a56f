// Package config loads the service configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
)

// Notification queue modes
const (
	QueueInline = "inline"
	QueueAMQP   = "amqp"
)

// Push providers
const (
	PushLog = "log"
	PushFCM = "fcm"
)

// Config is the full service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Store         StoreConfig         `yaml:"store"`
	Sweep         SweepConfig         `yaml:"sweep"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Push          PushConfig          `yaml:"push"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	MySQLDSN    string `yaml:"mysql_dsn"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// SweepConfig controls the auction closing job
type SweepConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

// NotificationsConfig selects how post-commit notifications leave the request path
type NotificationsConfig struct {
	Mode       string        `yaml:"mode"`
	AMQPURL    string        `yaml:"amqp_url"`
	Exchange   string        `yaml:"exchange"`
	Queue      string        `yaml:"queue"`
	RoutingKey string        `yaml:"routing_key"`
	Timeout    time.Duration `yaml:"timeout"`
}

type PushConfig struct {
	Provider        string `yaml:"provider"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Default returns a configuration that runs everything in-process
func Default() Config {
	return Config{
		Server: ServerConfig{ListenAddr: ":8080"},
		Log:    LogConfig{Level: "info"},
		Store:  StoreConfig{Driver: DriverMemory, MaxAttempts: 5},
		Sweep: SweepConfig{
			Enabled:  true,
			Interval: time.Minute,
			LeaseTTL: 50 * time.Second,
		},
		Notifications: NotificationsConfig{
			Mode:       QueueInline,
			Exchange:   "auction.notifications",
			Queue:      "auction.notifications.push",
			RoutingKey: "notification.push",
			Timeout:    10 * time.Second,
		},
		Push: PushConfig{Provider: PushLog},
	}
}

// Load reads the YAML file at path on top of Default, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables if set
func applyEnvOverrides(cfg *Config) error {
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Server.ListenAddr = ":" + port
	}
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		cfg.Store.Driver = DriverMySQL
		cfg.Store.MySQLDSN = dsn
	}
	if url := os.Getenv("AMQP_URL"); url != "" {
		cfg.Notifications.Mode = QueueAMQP
		cfg.Notifications.AMQPURL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if creds := os.Getenv("PUSH_CREDENTIALS_FILE"); creds != "" {
		cfg.Push.Provider = PushFCM
		cfg.Push.CredentialsFile = creds
	}
	return nil
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverMySQL:
		if c.Store.MySQLDSN == "" {
			return fmt.Errorf("store.mysql_dsn is required when store.driver is %q", DriverMySQL)
		}
	default:
		return fmt.Errorf("invalid store.driver %q, must be one of: memory, mysql", c.Store.Driver)
	}
	if c.Store.MaxAttempts <= 0 {
		return fmt.Errorf("store.max_attempts must be positive, got %d", c.Store.MaxAttempts)
	}

	if c.Sweep.Enabled {
		if c.Sweep.Interval <= 0 {
			return fmt.Errorf("sweep.interval must be positive, got %v", c.Sweep.Interval)
		}
		if c.Sweep.LeaseTTL <= 0 {
			return fmt.Errorf("sweep.lease_ttl must be positive, got %v", c.Sweep.LeaseTTL)
		}
	}

	switch c.Notifications.Mode {
	case QueueInline:
	case QueueAMQP:
		if c.Notifications.AMQPURL == "" {
			return fmt.Errorf("notifications.amqp_url is required when notifications.mode is %q", QueueAMQP)
		}
		if c.Notifications.Exchange == "" || c.Notifications.Queue == "" {
			return fmt.Errorf("notifications.exchange and notifications.queue are required for amqp")
		}
	default:
		return fmt.Errorf("invalid notifications.mode %q, must be one of: inline, amqp", c.Notifications.Mode)
	}
	if c.Notifications.Timeout <= 0 {
		return fmt.Errorf("notifications.timeout must be positive, got %v", c.Notifications.Timeout)
	}

	switch c.Push.Provider {
	case PushLog:
	case PushFCM:
		if c.Push.CredentialsFile == "" {
			return fmt.Errorf("push.credentials_file is required when push.provider is %q", PushFCM)
		}
	default:
		return fmt.Errorf("invalid push.provider %q, must be one of: log, fcm", c.Push.Provider)
	}
	return nil
}
