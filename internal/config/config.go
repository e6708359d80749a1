package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all Cloud Cost Guardian configuration.
type Config struct {
	Storage       StorageConfig       `mapstructure:"storage"`
	AWS           AWSConfig           `mapstructure:"aws"`
	CostSource    CostSourceConfig    `mapstructure:"cost_source"`
	NativeBudgets NativeBudgetsConfig `mapstructure:"native_budgets"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Server        ServerConfig        `mapstructure:"server"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Processor     ProcessorConfig     `mapstructure:"processor"`
	CostReport    CostReportConfig    `mapstructure:"cost_report"`
}

// StorageConfig defines database settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// AWSConfig selects the AWS credentials and account.
type AWSConfig struct {
	Region    string `mapstructure:"region"`
	Profile   string `mapstructure:"profile"`
	AccountID string `mapstructure:"account_id"`
}

// CostSourceConfig tunes billing queries.
type CostSourceConfig struct {
	Timeout      string `mapstructure:"timeout"`
	Concurrency  int    `mapstructure:"concurrency"`
	ServicesFile string `mapstructure:"services_file"`
}

// NativeBudgetsConfig enables provider-native budgets.
type NativeBudgetsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Owner   string `mapstructure:"owner"`
}

// NotificationsConfig defines alert channels.
type NotificationsConfig struct {
	Timeout          string       `mapstructure:"timeout"`
	DefaultRecipient string       `mapstructure:"default_recipient"`
	Email            EmailConfig  `mapstructure:"email"`
	PubSub           PubSubConfig `mapstructure:"pubsub"`
	Chat             ChatConfig   `mapstructure:"chat"`
}

// EmailConfig selects the email provider: "ses", "resend" or "" for none.
type EmailConfig struct {
	Provider     string `mapstructure:"provider"`
	From         string `mapstructure:"from"`
	ResendAPIKey string `mapstructure:"resend_api_key"`
}

// PubSubConfig selects the pub/sub provider: "sns", "kafka" or "" for none.
// For SNS the topic is a topic ARN.
type PubSubConfig struct {
	Provider     string `mapstructure:"provider"`
	Topic        string `mapstructure:"topic"`
	Brokers      string `mapstructure:"brokers"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// ChatConfig defines chat webhook settings.
type ChatConfig struct {
	Secret string `mapstructure:"secret"`
}

// SchedulerConfig defines scheduled runs.
type SchedulerConfig struct {
	Schedule  string          `mapstructure:"schedule"`
	RedisLock RedisLockConfig `mapstructure:"redis_lock"`
}

// RedisLockConfig guards scheduled runs across daemons.
type RedisLockConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
	TTL      string `mapstructure:"ttl"`
}

// ServerConfig defines the HTTP API.
type ServerConfig struct {
	Listen       string     `mapstructure:"listen"`
	ReadTimeout  string     `mapstructure:"read_timeout"`
	WriteTimeout string     `mapstructure:"write_timeout"`
	APITokens    []APIToken `mapstructure:"api_tokens"`
}

// APIToken maps a bearer token to the user it authenticates.
type APIToken struct {
	Token  string `mapstructure:"token"`
	UserID string `mapstructure:"user_id"`
}

// MetricsConfig defines the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProcessorConfig tunes alert runs.
type ProcessorConfig struct {
	DispatchConcurrency int `mapstructure:"dispatch_concurrency"`
}

// CostReportConfig tunes the spend-by-service report. MonthlyBudget is the
// limit measured against when no AWS monthly cost budget is available.
type CostReportConfig struct {
	Months        int     `mapstructure:"months"`
	MonthlyBudget float64 `mapstructure:"monthly_budget"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".ccg"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.path", filepath.Join(home, ".ccg", "guardian.db"))
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.account_id", "")
	v.SetDefault("cost_source.timeout", "30s")
	v.SetDefault("cost_source.concurrency", 4)
	v.SetDefault("cost_source.services_file", "")
	v.SetDefault("native_budgets.enabled", false)
	v.SetDefault("native_budgets.owner", "")
	v.SetDefault("notifications.timeout", "10s")
	v.SetDefault("notifications.default_recipient", "")
	v.SetDefault("notifications.email.provider", "")
	v.SetDefault("notifications.email.from", "alerts@cloudcostguardian.local")
	v.SetDefault("notifications.email.resend_api_key", "")
	v.SetDefault("notifications.pubsub.provider", "")
	v.SetDefault("notifications.pubsub.topic", "")
	v.SetDefault("notifications.pubsub.brokers", "")
	v.SetDefault("notifications.pubsub.write_timeout", "10s")
	v.SetDefault("notifications.chat.secret", "")
	v.SetDefault("scheduler.schedule", "0 * * * *")
	v.SetDefault("scheduler.redis_lock.enabled", false)
	v.SetDefault("scheduler.redis_lock.addr", "localhost:6379")
	v.SetDefault("scheduler.redis_lock.password", "")
	v.SetDefault("scheduler.redis_lock.db", 0)
	v.SetDefault("scheduler.redis_lock.key", "ccg:scheduler:lock")
	v.SetDefault("scheduler.redis_lock.ttl", "10m")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("processor.dispatch_concurrency", 1)
	v.SetDefault("cost_report.months", 6)
	v.SetDefault("cost_report.monthly_budget", 0)

	// Environment variables
	v.SetEnvPrefix("CCG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	durations := map[string]string{
		"cost_source.timeout":                c.CostSource.Timeout,
		"notifications.timeout":              c.Notifications.Timeout,
		"notifications.pubsub.write_timeout": c.Notifications.PubSub.WriteTimeout,
		"scheduler.redis_lock.ttl":           c.Scheduler.RedisLock.TTL,
		"server.read_timeout":                c.Server.ReadTimeout,
		"server.write_timeout":               c.Server.WriteTimeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
	}

	switch c.Notifications.Email.Provider {
	case "", "ses":
	case "resend":
		if c.Notifications.Email.ResendAPIKey == "" {
			return fmt.Errorf("notifications.email.resend_api_key is required for the resend provider")
		}
	default:
		return fmt.Errorf("unknown email provider %q", c.Notifications.Email.Provider)
	}

	switch c.Notifications.PubSub.Provider {
	case "", "sns":
	case "kafka":
		if c.Notifications.PubSub.Brokers == "" {
			return fmt.Errorf("notifications.pubsub.brokers is required for the kafka provider")
		}
	default:
		return fmt.Errorf("unknown pubsub provider %q", c.Notifications.PubSub.Provider)
	}

	if m := c.CostReport.Months; m < 1 || m > 12 {
		return fmt.Errorf("cost_report.months must be between 1 and 12, got %d", m)
	}
	if c.CostReport.MonthlyBudget < 0 {
		return fmt.Errorf("cost_report.monthly_budget cannot be negative")
	}

	if c.Scheduler.Schedule == "" {
		return fmt.Errorf("scheduler.schedule cannot be empty")
	}
	return nil
}

// Duration parses a duration setting, returning fallback when it is empty
// or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Tokens returns the configured API tokens as a token to user map.
func (s ServerConfig) Tokens() map[string]string {
	tokens := make(map[string]string, len(s.APITokens))
	for _, t := range s.APITokens {
		if t.Token != "" && t.UserID != "" {
			tokens[t.Token] = t.UserID
		}
	}
	return tokens
}
