// Package config loads and validates the publisher's configuration from a
// YAML file with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/siyinging/social-publisher/internal/schedule"
)

const (
	defaultAddress       = ":8080"
	defaultRatePerMinute = 30
	defaultRetryAttempts = 3
	defaultDraftTTL      = 24 * time.Hour
	defaultRedisTTL      = 48 * time.Hour
)

// Config is the root configuration.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Platform  PlatformConfig  `yaml:"platform"`
	Generator GeneratorConfig `yaml:"generator"`
	Review    ReviewConfig    `yaml:"review"`
	Publish   PublishConfig   `yaml:"publish"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Address     string   `yaml:"address"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig configures the slot guard cache. Optional: with Enabled false
// the publisher relies on store-level idempotence alone.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	SlotTTL  time.Duration `yaml:"slot_ttl"`
}

// PlatformConfig configures the posting API client.
type PlatformConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// GeneratorConfig configures the content generation service.
type GeneratorConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// ReviewConfig controls the approval gate.
type ReviewConfig struct {
	Enabled  bool          `yaml:"enabled"`
	DraftTTL time.Duration `yaml:"draft_ttl"`
}

// PublishConfig bounds outbound publishing behavior.
type PublishConfig struct {
	RatePerMinute int `yaml:"rate_per_minute"`
	RetryAttempts int `yaml:"retry_attempts"`
}

// ScheduleConfig maps job names to trigger specs ("08:00", "sun 20:00",
// "every 30m" or a raw cron expression). All times are UTC.
type ScheduleConfig struct {
	DraftGeneration string `yaml:"draft_generation"`
	Headline        string `yaml:"headline"`
	Thread          string `yaml:"thread"`
	Feature         string `yaml:"feature"`
	Repost          string `yaml:"repost"`
	WeeklyReview    string `yaml:"weekly_review"`
	ExpireSweep     string `yaml:"expire_sweep"`
}

// Specs returns the job-name-to-spec map in registration order.
func (s ScheduleConfig) Specs() map[string]string {
	return map[string]string{
		"draft-generation": s.DraftGeneration,
		"morning-headline": s.Headline,
		"midday-thread":    s.Thread,
		"daily-feature":    s.Feature,
		"afternoon-repost": s.Repost,
		"weekly-review":    s.WeeklyReview,
		"expire-sweep":     s.ExpireSweep,
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultAddress
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Redis.SlotTTL == 0 {
		cfg.Redis.SlotTTL = defaultRedisTTL
	}
	if cfg.Review.DraftTTL == 0 {
		cfg.Review.DraftTTL = defaultDraftTTL
	}
	if cfg.Publish.RatePerMinute == 0 {
		cfg.Publish.RatePerMinute = defaultRatePerMinute
	}
	if cfg.Publish.RetryAttempts == 0 {
		cfg.Publish.RetryAttempts = defaultRetryAttempts
	}

	s := &cfg.Schedule
	if s.DraftGeneration == "" {
		s.DraftGeneration = "06:30"
	}
	if s.Headline == "" {
		s.Headline = "08:00"
	}
	if s.Thread == "" {
		s.Thread = "12:00"
	}
	if s.Feature == "" {
		s.Feature = "14:00"
	}
	if s.Repost == "" {
		s.Repost = "16:00"
	}
	if s.WeeklyReview == "" {
		s.WeeklyReview = "sun 20:00"
	}
	if s.ExpireSweep == "" {
		s.ExpireSweep = "every 30m"
	}
}

func overrideWithEnvVars(cfg *Config) {
	if v := os.Getenv("APP_DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
	if v := os.Getenv("PUBLISHER_PORT"); v != "" {
		cfg.Server.Address = ":" + v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		cfg.Database.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.DBName = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("PLATFORM_BASE_URL"); v != "" {
		cfg.Platform.BaseURL = v
	}
	if v := os.Getenv("PLATFORM_TOKEN"); v != "" {
		cfg.Platform.Token = v
	}
	if v := os.Getenv("GENERATOR_URL"); v != "" {
		cfg.Generator.URL = v
	}
	if v := os.Getenv("GENERATOR_API_KEY"); v != "" {
		cfg.Generator.APIKey = v
	}
	if v := os.Getenv("REVIEW_ENABLED"); v != "" {
		cfg.Review.Enabled = parseBool(v)
	}
}

// Validate checks the configuration, including that every schedule spec
// parses. Bad specs are a startup error, never a runtime surprise.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Platform.BaseURL == "" {
		return errors.New("platform.base_url is required")
	}
	if c.Platform.Token == "" {
		return errors.New("platform.token is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis.enabled is true")
	}
	if c.Publish.RatePerMinute < 0 {
		return fmt.Errorf("publish.rate_per_minute must not be negative, got %d", c.Publish.RatePerMinute)
	}
	if c.Publish.RetryAttempts < 1 {
		return fmt.Errorf("publish.retry_attempts must be at least 1, got %d", c.Publish.RetryAttempts)
	}

	for job, spec := range c.Schedule.Specs() {
		if _, err := schedule.ParseSpec(spec); err != nil {
			return fmt.Errorf("schedule.%s: %w", job, err)
		}
	}
	return nil
}

// Load reads the config file, applies defaults and env overrides, and
// validates. A .env file next to the process is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// parseBool accepts the common truthy spellings.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
