package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Source   Source   `yaml:"source"`
	Report   Report   `yaml:"report"`
	Telegram Telegram `yaml:"telegram"`
	Output   Output   `yaml:"output"`
	Server   Server   `yaml:"server"`
	Schedule Schedule `yaml:"schedule"`
	Logging  Logging  `yaml:"logging"`
}

type Source struct {
	Driver     string     `yaml:"driver"`
	ClickHouse ClickHouse `yaml:"clickhouse"`
	SQLite     SQLite     `yaml:"sqlite"`
}

type ClickHouse struct {
	Endpoint     string        `yaml:"endpoint"`
	Protocol     string        `yaml:"protocol"`
	Secure       bool          `yaml:"secure"`
	Database     string        `yaml:"database"`
	Username     string        `yaml:"username"`
	PasswordEnv  string        `yaml:"password_env"`
	FeedTable    string        `yaml:"feed_table"`
	MessageTable string        `yaml:"message_table"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
}

type SQLite struct {
	Path string `yaml:"path"`
}

type Report struct {
	WindowDays int    `yaml:"window_days"`
	Join       string `yaml:"join"`
	Timezone   string `yaml:"timezone"`
}

type Telegram struct {
	AppID       int    `yaml:"app_id"`
	AppHashEnv  string `yaml:"app_hash_env"`
	BotTokenEnv string `yaml:"bot_token_env"`
	Chat        string `yaml:"chat"`
	SessionPath string `yaml:"session_path"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Schedule struct {
	At         string        `yaml:"at"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for dailyreport.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "dailyreport")
}

// DataDir returns the XDG data directory for dailyreport.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "dailyreport")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/dailyreport/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'dailyreport init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Source: Source{
			Driver: "clickhouse",
			ClickHouse: ClickHouse{
				Endpoint:     "localhost:9000",
				Protocol:     "native",
				Database:     "default",
				Username:     "default",
				PasswordEnv:  "CLICKHOUSE_PASSWORD",
				FeedTable:    "feed_actions",
				MessageTable: "message_actions",
				DialTimeout:  10 * time.Second,
			},
		},
		Report: Report{
			WindowDays: 7,
			Join:       "inner",
			Timezone:   "UTC",
		},
		Telegram: Telegram{
			AppHashEnv:  "TELEGRAM_APP_HASH",
			BotTokenEnv: "TELEGRAM_BOT_TOKEN",
		},
		Server: Server{Port: 8000},
		Schedule: Schedule{
			At:         "11:00",
			Retries:    2,
			RetryDelay: 5 * time.Minute,
		},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Source.Driver {
	case "clickhouse", "sqlite":
	default:
		return fmt.Errorf("unknown source driver %q (want clickhouse or sqlite)", c.Source.Driver)
	}
	if c.Report.WindowDays < 1 {
		return fmt.Errorf("report.window_days must be at least 1, got %d", c.Report.WindowDays)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, _, err := c.ScheduleTime(); err != nil {
		return err
	}
	if c.Schedule.Retries < 0 {
		return fmt.Errorf("schedule.retries must not be negative")
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// SQLitePath returns the local event warehouse path.
func (c *Config) SQLitePath() string {
	if c.Source.SQLite.Path != "" {
		return c.Source.SQLite.Path
	}
	return filepath.Join(c.GetDataDir(), "events.db")
}

// SessionPath returns where the Telegram session is kept.
func (c *Config) SessionPath() string {
	if c.Telegram.SessionPath != "" {
		return c.Telegram.SessionPath
	}
	return filepath.Join(c.GetDataDir(), "telegram-session.json")
}

// Location returns the timezone that decides what "today" is.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return nil, fmt.Errorf("report.timezone: %w", err)
	}
	return loc, nil
}

// ScheduleTime parses schedule.at ("HH:MM").
func (c *Config) ScheduleTime() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.Schedule.At)
	if err != nil {
		return 0, 0, fmt.Errorf("schedule.at must be HH:MM, got %q", c.Schedule.At)
	}
	return t.Hour(), t.Minute(), nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
