// Package config provides configuration loading and management for taskflow.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	DB        DBConfig          `json:"db"        mapstructure:"db"`
	Server    ServerConfig      `json:"server"    mapstructure:"server"`
	Scheduler SchedulerConfig   `json:"scheduler" mapstructure:"scheduler"`
	Delivery  DeliveryConfig    `json:"delivery"  mapstructure:"delivery"`
	Contacts  map[string]string `json:"contacts"  mapstructure:"contacts"`
	Log       LogConfig         `json:"log"       mapstructure:"log"`
}

// DBConfig locates the SQLite database.
type DBConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// SchedulerConfig configures the reminder scan loop.
type SchedulerConfig struct {
	Interval    time.Duration `json:"interval"    mapstructure:"interval"`
	Concurrency int           `json:"concurrency" mapstructure:"concurrency"`
}

// Delivery types.
const (
	DeliveryLog  = "log"
	DeliverySMTP = "smtp"
)

// DeliveryConfig selects how reminders are sent.
type DeliveryConfig struct {
	Type string     `json:"type"           mapstructure:"type"`
	SMTP SMTPConfig `json:"smtp,omitempty" mapstructure:"smtp"`
}

// SMTPConfig describes an SMTP relay.
type SMTPConfig struct {
	Host     string `json:"host"               mapstructure:"host"`
	Port     int    `json:"port"               mapstructure:"port"`
	Username string `json:"username,omitempty" mapstructure:"username"`
	Password string `json:"password,omitempty" mapstructure:"password"`
	From     string `json:"from"               mapstructure:"from"`
}

// LogConfig selects log output.
type LogConfig struct {
	Format string `json:"format" mapstructure:"format"`
}

// DefaultDir is the per-workspace state directory.
const DefaultDir = ".taskflow"

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db.path", filepath.Join(DefaultDir, "taskflow.db"))
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("delivery.type", DeliveryLog)
	v.SetDefault("delivery.smtp.port", 587)
	v.SetDefault("log.format", "console")
}

// Load reads the config file (when present), environment and defaults from v,
// validates the merged settings and decodes them.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("TASKFLOW")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !isMissingFile(err) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if err := ValidateSettings(v.AllSettings()); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be > 0")
	}
	if c.Delivery.Type == DeliverySMTP {
		if c.Delivery.SMTP.Host == "" || c.Delivery.SMTP.From == "" {
			return fmt.Errorf("delivery.smtp.host and delivery.smtp.from are required for smtp delivery")
		}
	}
	return nil
}
