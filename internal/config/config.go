package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ogulcanaydogan/billing-killswitch/pkg/mapping"
)

// Config holds all killswitch configuration.
type Config struct {
	Mapping   string          `mapstructure:"mapping"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Backup    BackupConfig    `mapstructure:"backup"`
}

// ServerConfig defines push endpoint settings.
type ServerConfig struct {
	Listen            string `mapstructure:"listen"`
	ReadTimeout       string `mapstructure:"read_timeout"`
	WriteTimeout      string `mapstructure:"write_timeout"`
	InvocationTimeout string `mapstructure:"invocation_timeout"`
	MaxBodySize       int64  `mapstructure:"max_body_size"`
}

// StorageConfig defines the decision log database.
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AlertsConfig defines notice integrations.
type AlertsConfig struct {
	Slack   SlackConfig   `mapstructure:"slack"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DiscoveryConfig defines where budgets are listed from.
type DiscoveryConfig struct {
	BillingAccount string `mapstructure:"billing_account"`
}

// BackupConfig defines the project manifest and its backup bucket.
type BackupConfig struct {
	BucketURL string `mapstructure:"bucket_url"`
	Manifest  string `mapstructure:"manifest"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".killswitch"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("killswitch")
		v.SetConfigType("yaml")
	}

	// Defaults
	v.SetDefault("mapping", "{}")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "70s")
	v.SetDefault("server.invocation_timeout", "60s")
	v.SetDefault("server.max_body_size", 1024*1024) // 1 MB
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.path", filepath.Join(os.TempDir(), "killswitch", "decisions.db"))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("alerts.slack.channel", "#billing")
	v.SetDefault("backup.manifest", "members.yaml")

	// Environment variables
	v.SetEnvPrefix("KILLSWITCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("mapping", "KILLSWITCH_MAPPING", mapping.EnvVar); err != nil {
		return nil, fmt.Errorf("bind mapping env: %w", err)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// BudgetMapping parses the configured mapping. A malformed value yields an
// empty mapping together with the parse error.
func (c *Config) BudgetMapping() (mapping.Mapping, error) {
	return mapping.Parse(c.Mapping)
}

// InvocationTimeout returns the per-event deadline, defaulting to 60s.
func (c *Config) InvocationTimeout() time.Duration {
	return parseDuration(c.Server.InvocationTimeout, 60*time.Second)
}

// ReadTimeout returns the server read timeout, defaulting to 10s.
func (c *Config) ReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 10*time.Second)
}

// WriteTimeout returns the server write timeout, defaulting to 70s.
func (c *Config) WriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 70*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
