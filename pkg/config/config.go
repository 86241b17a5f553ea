package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Platform provider names.
const (
	ProviderWhatsApp = "whatsapp"
	ProviderSlack    = "slack"
	ProviderDiscord  = "discord"
	ProviderTelegram = "telegram"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Platform  PlatformConfig  `json:"platform"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Slack     SlackConfig     `json:"slack"`
	Discord   DiscordConfig   `json:"discord"`
	Telegram  TelegramConfig  `json:"telegram"`
	Storage   StorageConfig   `json:"storage"`
	Gateway   GatewayConfig   `json:"gateway"`
	Reacting  ReactingConfig  `json:"reacting"`
	Session   SessionConfig   `json:"session"`
	AutoReact AutoReactConfig `json:"auto_react"`
}

type PlatformConfig struct {
	Provider  string              `env:"AUTOREACT_PLATFORM_PROVIDER"   json:"provider"`
	AllowFrom FlexibleStringSlice `env:"AUTOREACT_PLATFORM_ALLOW_FROM" json:"allow_from"`
}

type WhatsAppConfig struct {
	BridgeURL string `env:"AUTOREACT_WHATSAPP_BRIDGE_URL" json:"bridge_url"`
}

type SlackConfig struct {
	BotToken string `env:"AUTOREACT_SLACK_BOT_TOKEN" json:"bot_token"`
	AppToken string `env:"AUTOREACT_SLACK_APP_TOKEN" json:"app_token"`
}

type DiscordConfig struct {
	Token string `env:"AUTOREACT_DISCORD_TOKEN" json:"token"`
}

type TelegramConfig struct {
	Token     string `env:"AUTOREACT_TELEGRAM_TOKEN"      json:"token"`
	CacheSize int    `env:"AUTOREACT_TELEGRAM_CACHE_SIZE" json:"cache_size"`
}

// StorageConfig locates persisted state. Relative file names resolve
// against Dir.
type StorageConfig struct {
	Dir         string `env:"AUTOREACT_STORAGE_DIR"          json:"dir"`
	RulesFile   string `env:"AUTOREACT_STORAGE_RULES_FILE"   json:"rules_file"`
	ReactionLog string `env:"AUTOREACT_STORAGE_REACTION_LOG" json:"reaction_log"`
	QRFile      string `env:"AUTOREACT_STORAGE_QR_FILE"      json:"qr_file"`
}

type GatewayConfig struct {
	Host string `env:"AUTOREACT_GATEWAY_HOST" json:"host"`
	Port int    `env:"AUTOREACT_GATEWAY_PORT" json:"port"`
}

type ReactingConfig struct {
	Mode          string  `env:"AUTOREACT_REACTING_MODE"            json:"mode"` // self, incoming or all
	AutoStart     bool    `env:"AUTOREACT_REACTING_AUTO_START"      json:"auto_start"`
	WatchRules    bool    `env:"AUTOREACT_REACTING_WATCH_RULES"     json:"watch_rules"`
	RatePerSecond float64 `env:"AUTOREACT_REACTING_RATE_PER_SECOND" json:"rate_per_second"`
	Burst         int     `env:"AUTOREACT_REACTING_BURST"           json:"burst"`
	StartSchedule string  `env:"AUTOREACT_REACTING_START_SCHEDULE"  json:"start_schedule,omitempty"`
	StopSchedule  string  `env:"AUTOREACT_REACTING_STOP_SCHEDULE"   json:"stop_schedule,omitempty"`
}

type SessionConfig struct {
	ReconnectDelaySeconds int `env:"AUTOREACT_SESSION_RECONNECT_DELAY_SECONDS" json:"reconnect_delay_seconds"`
	HistoryLimit          int `env:"AUTOREACT_SESSION_HISTORY_LIMIT"           json:"history_limit"`
}

type AutoReactConfig struct {
	MaxDurationMinutes int `env:"AUTOREACT_AUTO_REACT_MAX_DURATION_MINUTES" json:"max_duration_minutes"`
}

func DefaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			Provider:  ProviderWhatsApp,
			AllowFrom: FlexibleStringSlice{},
		},
		WhatsApp: WhatsAppConfig{
			BridgeURL: "ws://localhost:3001",
		},
		Telegram: TelegramConfig{
			CacheSize: 1024,
		},
		Storage: StorageConfig{
			Dir:         "~/.autoreact",
			RulesFile:   "rules.json",
			ReactionLog: "reactions.log",
			QRFile:      "qr.txt",
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Reacting: ReactingConfig{
			Mode:          "self",
			WatchRules:    true,
			RatePerSecond: 5,
			Burst:         3,
		},
		Session: SessionConfig{
			ReconnectDelaySeconds: 5,
			HistoryLimit:          50,
		},
		AutoReact: AutoReactConfig{
			MaxDurationMinutes: 60,
		},
	}
}

// LoadConfig reads path over the defaults, applies AUTOREACT_* environment
// overrides and validates the result. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadConfig is LoadConfig without validation, for commands that repair an
// incomplete config.
func ReadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks the selected provider and the reacting settings.
func (c *Config) Validate() error {
	switch c.Platform.Provider {
	case ProviderWhatsApp:
		if c.WhatsApp.BridgeURL == "" {
			return fmt.Errorf("whatsapp.bridge_url is required")
		}
	case ProviderSlack:
		if c.Slack.BotToken == "" || c.Slack.AppToken == "" {
			return fmt.Errorf("slack.bot_token and slack.app_token are required")
		}
	case ProviderDiscord:
		if c.Discord.Token == "" {
			return fmt.Errorf("discord.token is required")
		}
	case ProviderTelegram:
		if c.Telegram.Token == "" {
			return fmt.Errorf("telegram.token is required")
		}
	default:
		return fmt.Errorf("unknown platform provider %q", c.Platform.Provider)
	}

	switch c.Reacting.Mode {
	case "", "self", "incoming", "all":
	default:
		return fmt.Errorf("reacting.mode must be self, incoming or all, got %q", c.Reacting.Mode)
	}
	if c.Reacting.RatePerSecond < 0 {
		return fmt.Errorf("reacting.rate_per_second must not be negative")
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d out of range", c.Gateway.Port)
	}
	if c.Session.ReconnectDelaySeconds < 0 || c.Session.HistoryLimit < 0 {
		return fmt.Errorf("session settings must not be negative")
	}
	return nil
}

func (c *Config) StorageDir() string {
	return expandHome(c.Storage.Dir)
}

func (c *Config) RulesPath() string {
	return c.resolve(c.Storage.RulesFile)
}

func (c *Config) ReactionLogPath() string {
	return c.resolve(c.Storage.ReactionLog)
}

// QRPath returns "" when the QR side file is disabled.
func (c *Config) QRPath() string {
	if c.Storage.QRFile == "" {
		return ""
	}
	return c.resolve(c.Storage.QRFile)
}

// Addr is the gateway listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

func (c *Config) resolve(name string) string {
	name = expandHome(name)
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.StorageDir(), name)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
