package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of all binaries. Values are read from the optional YAML file named
// by CONFIG_FILE and then overridden by environment variables.
type Config struct {
	DBHost     string `yaml:"db_host"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	Port       string `yaml:"port"`
	GinLogging string `yaml:"gin_logging"`
	LogMode    string `yaml:"log_mode"`

	RedisURL string `yaml:"redis_url"`

	SendGridAPIKey    string `yaml:"sendgrid_api_key"`
	SendGridBaseURL   string `yaml:"sendgrid_base_url"`
	SendGridFromEmail string `yaml:"sendgrid_from_email"`
	SendGridFromName  string `yaml:"sendgrid_from_name"`

	BillingWebhookSecret string `yaml:"billing_webhook_secret"`
	// OperatorToken guards the operator endpoints. They are disabled while it is empty.
	OperatorToken        string `yaml:"operator_token"`

	Timezone         string        `yaml:"timezone"`
	ReminderSchedule string        `yaml:"reminder_schedule"`
	FreeQuota        int           `yaml:"free_quota"`
	MailTimeout      time.Duration `yaml:"mail_timeout"`
	WebhookTimeout   time.Duration `yaml:"webhook_timeout"`
	MaxImportBytes   int64         `yaml:"max_import_bytes"`
	MailConcurrency  int           `yaml:"mail_concurrency"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		DBHost:            "localhost:3306",
		DBName:            "birthdays",
		Port:              "8080",
		LogMode:           "development",
		RedisURL:          "redis://localhost:6379/0",
		SendGridFromName:  "Birthday Reminder",
		Timezone:          "UTC",
		ReminderSchedule:  "0 9 * * *",
		FreeQuota:         20,
		MailTimeout:       30 * time.Second,
		WebhookTimeout:    10 * time.Second,
		MaxImportBytes:    2 << 20,
		MailConcurrency:   4,
	}
}

// Load reads the configuration.
//
// Usage example on the command line:
// > CONFIG_FILE=config.yaml DBUSER=dirk DBPWD=bullo92 go run ./cmd/service
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path) // nosemgrep
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	str(&cfg.DBHost, "DBHOST")
	str(&cfg.DBUser, "DBUSER")
	str(&cfg.DBPassword, "DBPWD")
	str(&cfg.DBName, "DBNAME")
	str(&cfg.Port, "PORT")
	str(&cfg.GinLogging, "GIN_LOGGING")
	str(&cfg.LogMode, "LOG_MODE")
	str(&cfg.RedisURL, "REDIS_URL")
	str(&cfg.SendGridAPIKey, "SENDGRID_API_KEY")
	str(&cfg.SendGridBaseURL, "SENDGRID_BASE_URL")
	str(&cfg.SendGridFromEmail, "SENDGRID_FROM_EMAIL")
	str(&cfg.SendGridFromName, "SENDGRID_FROM_NAME")
	str(&cfg.BillingWebhookSecret, "BILLING_WEBHOOK_SECRET")
	str(&cfg.OperatorToken, "OPERATOR_TOKEN")
	str(&cfg.Timezone, "TIMEZONE")
	str(&cfg.ReminderSchedule, "REMINDER_SCHEDULE")

	var err error
	if cfg.FreeQuota, err = integer(cfg.FreeQuota, "FREE_QUOTA"); err != nil {
		return nil, err
	}
	if cfg.MailConcurrency, err = integer(cfg.MailConcurrency, "MAIL_CONCURRENCY"); err != nil {
		return nil, err
	}
	if cfg.MailTimeout, err = duration(cfg.MailTimeout, "MAIL_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.WebhookTimeout, err = duration(cfg.WebhookTimeout, "WEBHOOK_TIMEOUT"); err != nil {
		return nil, err
	}
	if v := os.Getenv("MAX_IMPORT_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("could not parse MAX_IMPORT_BYTES env variable %q", v)
		}
		cfg.MaxImportBytes = n
	}

	if cfg.FreeQuota < 0 {
		return nil, fmt.Errorf("free quota must not be negative, got %d", cfg.FreeQuota)
	}
	return &cfg, nil
}

// DSN returns the MySQL data source name. parseTime is required for DATE and DATETIME columns.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", c.DBUser, c.DBPassword, c.DBHost, c.DBName)
}

func str(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func integer(current int, key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return current, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("could not parse %s env variable %q: %w", key, v, err)
	}
	return n, nil
}

func duration(current time.Duration, key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return current, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("could not parse %s env variable %q: %w", key, v, err)
	}
	return d, nil
}
