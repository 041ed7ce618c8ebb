package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/elonfeng/voicepost/internal/scheduler"
	"github.com/elonfeng/voicepost/internal/store"
	"github.com/elonfeng/voicepost/pkg/publish"
	"github.com/elonfeng/voicepost/pkg/source"
)

// Config is the root configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Twitter  TwitterConfig  `yaml:"twitter"`
	LLM      LLMConfig      `yaml:"llm"`
	Feeds    []source.Feed  `yaml:"feeds"`
	Filter   FilterConfig   `yaml:"filter"`
	Media    MediaConfig    `yaml:"media"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// StorageConfig selects where drafts and logs are kept.
type StorageConfig struct {
	Backend    string `yaml:"backend"` // "csv" or "sqlite"
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Paths returns the table paths inside Dir.
func (s StorageConfig) Paths() store.Paths {
	return store.DefaultPaths(s.Dir)
}

// ScheduleConfig configures the publishing loop.
type ScheduleConfig struct {
	Cron     string         `yaml:"cron"`
	Strategy StrategyConfig `yaml:"strategy"`
}

// StrategyConfig configures automatic posting of pending drafts.
type StrategyConfig struct {
	Enabled      bool     `yaml:"enabled"`
	OffsetHours  int      `yaml:"offset_hours"`
	DriftMinutes int      `yaml:"drift_minutes"`
	DailyHours   []int    `yaml:"daily_hours"`
	WeeklyDays   []string `yaml:"weekly_days"`
	WeeklyHours  []int    `yaml:"weekly_hours"`
}

// Rule converts the config into a strategy rule.
func (s StrategyConfig) Rule() (scheduler.StrategyRule, error) {
	days, err := scheduler.ParseWeekdays(s.WeeklyDays)
	if err != nil {
		return scheduler.StrategyRule{}, err
	}
	return scheduler.StrategyRule{
		OffsetHours:  s.OffsetHours,
		DriftMinutes: s.DriftMinutes,
		DailyHours:   s.DailyHours,
		WeeklyDays:   days,
		WeeklyHours:  s.WeeklyHours,
	}, nil
}

// TwitterConfig holds the posting account's OAuth 1.0a keys.
type TwitterConfig struct {
	ConsumerKey       string `yaml:"consumer_key"`
	ConsumerSecret    string `yaml:"consumer_secret"`
	AccessToken       string `yaml:"access_token"`
	AccessTokenSecret string `yaml:"access_token_secret"`
	APIBase           string `yaml:"api_base"`    // optional
	UploadBase        string `yaml:"upload_base"` // optional
}

// Credentials returns the keys as publisher credentials.
func (t TwitterConfig) Credentials() publish.Credentials {
	return publish.Credentials{
		ConsumerKey:       t.ConsumerKey,
		ConsumerSecret:    t.ConsumerSecret,
		AccessToken:       t.AccessToken,
		AccessTokenSecret: t.AccessTokenSecret,
	}
}

// LLMConfig configures draft generation.
type LLMConfig struct {
	Provider         string `yaml:"provider"` // "openai", "anthropic" or "gemini"
	Model            string `yaml:"model"`
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"` // custom endpoint (optional)
	VoiceProfilePath string `yaml:"voice_profile_path"`
}

// Use switches to provider, reading its key from <PROVIDER>_API_KEY. An
// empty model selects the provider's default.
func (l *LLMConfig) Use(provider, model string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !validProvider(provider) || provider == "" {
		return fmt.Errorf("llm provider %q must be openai, anthropic or gemini", provider)
	}
	env := strings.ToUpper(provider) + "_API_KEY"
	key := os.Getenv(env)
	if key == "" {
		return fmt.Errorf("%s is not set", env)
	}
	l.Provider, l.Model, l.APIKey = provider, model, key
	return nil
}

func validProvider(p string) bool {
	switch p {
	case "", "openai", "anthropic", "gemini":
		return true
	}
	return false
}

// FilterConfig configures which feed entries become topics.
type FilterConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// MediaConfig confines attachments to a directory.
type MediaConfig struct {
	SafeDir string `yaml:"safe_dir"`
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:    store.BackendCSV,
			Dir:        "./data",
			SQLitePath: "./data/voicepost.db",
		},
		Schedule: ScheduleConfig{
			Cron: scheduler.DefaultCron,
			Strategy: StrategyConfig{
				Enabled:      false,
				OffsetHours:  -6,
				DriftMinutes: 5,
				DailyHours:   []int{8, 14},
				WeeklyDays:   []string{"mon", "tue", "fri"},
				WeeklyHours:  []int{0, 1, 2},
			},
		},
		LLM: LLMConfig{
			Provider:         "openai",
			VoiceProfilePath: "./data/voice_profile.txt",
		},
		Media:  MediaConfig{SafeDir: "./data"},
		Alerts: AlertsConfig{},
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case store.BackendCSV:
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for the csv backend"))
		}
	case store.BackendSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be csv or sqlite", c.Storage.Backend))
	}

	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		errs = append(errs, fmt.Errorf("schedule.cron %q: %w", c.Schedule.Cron, err))
	}
	rule, err := c.Schedule.Strategy.Rule()
	if err != nil {
		errs = append(errs, fmt.Errorf("schedule.strategy: %w", err))
	} else if err := rule.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("schedule.strategy: %w", err))
	}

	if !validProvider(c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider %q must be openai, anthropic or gemini", c.LLM.Provider))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	for i, f := range c.Feeds {
		if f.URL == "" {
			errs = append(errs, fmt.Errorf("feeds[%d]: url is required", i))
		}
	}

	return errors.Join(errs...)
}

// ParseLevel parses a log level name such as "debug" or "warn". Empty
// means info.
func ParseLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return level, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOICEPOST_DATA_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("VOICEPOST_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("VOICEPOST_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TWITTER_CONSUMER_KEY"); v != "" {
		cfg.Twitter.ConsumerKey = v
	}
	if v := os.Getenv("TWITTER_CONSUMER_SECRET"); v != "" {
		cfg.Twitter.ConsumerSecret = v
	}
	if v := os.Getenv("TWITTER_ACCESS_TOKEN"); v != "" {
		cfg.Twitter.AccessToken = v
	}
	if v := os.Getenv("TWITTER_ACCESS_TOKEN_SECRET"); v != "" {
		cfg.Twitter.AccessTokenSecret = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Provider = "gemini"
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Provider = "openai"
	} else if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Provider = "anthropic"
	}
}
