package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Source.Driver != "clickhouse" {
		t.Errorf("expected driver 'clickhouse', got %q", cfg.Source.Driver)
	}
	if cfg.Source.ClickHouse.FeedTable != "simulator.feed_actions" {
		t.Errorf("expected feed table 'simulator.feed_actions', got %q", cfg.Source.ClickHouse.FeedTable)
	}
	if cfg.Source.ClickHouse.DialTimeout != 10*time.Second {
		t.Errorf("expected dial timeout 10s, got %s", cfg.Source.ClickHouse.DialTimeout)
	}
	if cfg.Report.WindowDays != 7 {
		t.Errorf("expected window_days 7, got %d", cfg.Report.WindowDays)
	}
	if cfg.Report.Join != "inner" {
		t.Errorf("expected join 'inner', got %q", cfg.Report.Join)
	}
	if cfg.Schedule.RetryDelay != 5*time.Minute {
		t.Errorf("expected retry delay 5m, got %s", cfg.Schedule.RetryDelay)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
source:
  driver: sqlite
telegram:
  chat: "@daily_metrics"
schedule:
  at: "09:30"
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Source.Driver != "sqlite" {
		t.Errorf("expected driver 'sqlite', got %q", cfg.Source.Driver)
	}
	if cfg.Telegram.Chat != "@daily_metrics" {
		t.Errorf("expected chat '@daily_metrics', got %q", cfg.Telegram.Chat)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Telegram.BotTokenEnv != "TELEGRAM_BOT_TOKEN" {
		t.Errorf("expected default bot_token_env, got %q", cfg.Telegram.BotTokenEnv)
	}
	if cfg.Schedule.Retries != 2 {
		t.Errorf("expected default retries 2, got %d", cfg.Schedule.Retries)
	}

	h, m, err := cfg.ScheduleTime()
	if err != nil {
		t.Fatalf("ScheduleTime: %v", err)
	}
	if h != 9 || m != 30 {
		t.Errorf("expected 09:30, got %02d:%02d", h, m)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"driver":   "source:\n  driver: mysql\n",
		"window":   "report:\n  window_days: 0\n",
		"timezone": "report:\n  timezone: Mars/Olympus\n",
		"schedule": "schedule:\n  at: noon\n",
		"retries":  "schedule:\n  retries: -1\n",
		"yaml":     "source: [",
	}
	for name, data := range cases {
		if _, err := parse([]byte(data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Source.ClickHouse.Database != "simulator" {
		t.Errorf("expected database 'simulator', got %q", cfg.Source.ClickHouse.Database)
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	_, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{}
	if cfg.GetDataDir() == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.SQLitePath() != filepath.Join("/custom/path", "events.db") {
		t.Errorf("unexpected sqlite path %q", cfg.SQLitePath())
	}
	if cfg.SessionPath() != filepath.Join("/custom/path", "telegram-session.json") {
		t.Errorf("unexpected session path %q", cfg.SessionPath())
	}

	cfg.Source.SQLite.Path = "/data/events.db"
	if cfg.SQLitePath() != "/data/events.db" {
		t.Errorf("expected explicit sqlite path, got %q", cfg.SQLitePath())
	}
}
