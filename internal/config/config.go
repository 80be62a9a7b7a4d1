package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	_ "time/tzdata"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	Limits   LimitsConfig   `yaml:"limits"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Browser  BrowserConfig  `yaml:"browser"`
	Form     FormConfig     `yaml:"form"`
	Telegram TelegramConfig `yaml:"telegram"`
	Status   StatusConfig   `yaml:"status"`
}

type ServerConfig struct {
	Addr string     `yaml:"addr"`
	Cors CorsConfig `yaml:"cors"`
}

type CorsConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// BufferSize is how many recent entries the log bus keeps for new /ws clients.
	BufferSize int `yaml:"bufferSize"`
}

type LimitsConfig struct {
	// MaxInFlight caps simultaneous browser submissions process-wide.
	MaxInFlight int `yaml:"maxInFlight"`
	// GlobalQPS paces navigations across all targets; <= 0 disables pacing.
	GlobalQPS   float64 `yaml:"globalQPS"`
	GlobalBurst int     `yaml:"globalBurst"`
	// RetryAttempts is the total number of tries per submission.
	RetryAttempts int `yaml:"retryAttempts"`
	RetryBaseMs   int `yaml:"retryBaseMs"`
}

func (c LimitsConfig) RetryBase() time.Duration {
	if c.RetryBaseMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.RetryBaseMs) * time.Millisecond
}

type ScheduleConfig struct {
	Timezone string `yaml:"timezone"`
	// PollSliceMs bounds a single sleep of the waiter so a stop is seen promptly.
	PollSliceMs int `yaml:"pollSliceMs"`
}

func (c ScheduleConfig) PollSlice() time.Duration {
	if c.PollSliceMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.PollSliceMs) * time.Millisecond
}

func (c ScheduleConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

type BrowserConfig struct {
	// ShowWindow runs Chromium with a visible window for local debugging.
	ShowWindow bool   `yaml:"showWindow"`
	NoSandbox  bool   `yaml:"noSandbox"`
	Bin        string `yaml:"bin"`
	UserAgent  string `yaml:"userAgent"`

	NavigateTimeoutMs     int `yaml:"navigateTimeoutMs"`
	IdleTimeoutMs         int `yaml:"idleTimeoutMs"`
	ElementTimeoutMs      int `yaml:"elementTimeoutMs"`
	ReachabilityTimeoutMs int `yaml:"reachabilityTimeoutMs"`
}

func (c BrowserConfig) Headless() bool { return !c.ShowWindow }

func (c BrowserConfig) NavigateTimeout() time.Duration {
	return msOr(c.NavigateTimeoutMs, 60*time.Second)
}

func (c BrowserConfig) IdleTimeout() time.Duration {
	return msOr(c.IdleTimeoutMs, 15*time.Second)
}

func (c BrowserConfig) ElementTimeout() time.Duration {
	return msOr(c.ElementTimeoutMs, 25*time.Second)
}

func (c BrowserConfig) ReachabilityTimeout() time.Duration {
	return msOr(c.ReachabilityTimeoutMs, 10*time.Second)
}

// FormConfig holds the selectors of the order form. A selector that starts
// with "/" or "(" is treated as XPath, anything else as CSS.
type FormConfig struct {
	NameSelector     string `yaml:"nameSelector"`
	PhoneSelector    string `yaml:"phoneSelector"`
	QuantitySelector string `yaml:"quantitySelector"`
	SubmitSelector   string `yaml:"submitSelector"`
}

type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIBase  string `yaml:"apiBase"`
}

type StatusConfig struct {
	// Cron is a 5-field expression evaluated in Schedule.Timezone.
	Cron        string `yaml:"cron"`
	GroupChatID string `yaml:"groupChatId"`
}

func msOr(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// Load reads the YAML file at path. A missing file is not an error: defaults
// and environment overrides still apply. envFiles are loaded with godotenv
// before overrides are read; missing env files are ignored.
func Load(path string, envFiles ...string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, err
	}

	if len(envFiles) > 0 {
		_ = godotenv.Load(envFiles...)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("ORDER_PACER_TELEGRAM_TOKEN")); v != "" {
		c.Telegram.BotToken = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDER_PACER_TELEGRAM_CHAT_ID")); v != "" {
		c.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDER_PACER_STATUS_CHAT_ID")); v != "" {
		c.Status.GroupChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDER_PACER_ADDR")); v != "" {
		c.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDER_PACER_LOG_LEVEL")); v != "" {
		c.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDER_PACER_SHOW_BROWSER")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.ShowWindow = b
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/order_pacer.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.BufferSize <= 0 {
		c.Log.BufferSize = 200
	}
	if c.Limits.MaxInFlight <= 0 {
		c.Limits.MaxInFlight = 3
	}
	if c.Limits.GlobalBurst <= 0 {
		c.Limits.GlobalBurst = 1
	}
	if c.Limits.RetryAttempts <= 0 {
		c.Limits.RetryAttempts = 3
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Europe/Kyiv"
	}
	if c.Form.NameSelector == "" {
		c.Form.NameSelector = "#full-name"
	}
	if c.Form.PhoneSelector == "" {
		c.Form.PhoneSelector = "#phone"
	}
	if c.Form.QuantitySelector == "" {
		c.Form.QuantitySelector = "#qty"
	}
	if c.Form.SubmitSelector == "" {
		c.Form.SubmitSelector = `//button[contains(text(), "Оформити замовлення")]`
	}
	if c.Telegram.APIBase == "" {
		c.Telegram.APIBase = "https://api.telegram.org"
	}
	if c.Status.Cron == "" {
		c.Status.Cron = "0 7 * * *"
	}
}

func (c Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if _, err := c.Schedule.Location(); err != nil {
		return errors.New("schedule.timezone is invalid: " + err.Error())
	}
	if c.Limits.GlobalQPS < 0 {
		return errors.New("limits.globalQPS must be >= 0")
	}
	return nil
}
