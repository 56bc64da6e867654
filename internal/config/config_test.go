package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.PollInterval != 30*time.Second || cfg.DatabaseFile != "bot_database.db" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.RedisURL != "" {
		t.Errorf("expected no redis by default, got %q", cfg.RedisURL)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
port: "9090"
telegramBotToken: "from-file"
pollInterval: 5s
adminIds: ["1", "2"]
deliveryConcurrency: 2
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("POLL_INTERVAL", "1m")
	t.Setenv("ADMIN_IDS", " 10, ,20 ")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected file port, got %q", cfg.Port)
	}
	if cfg.TelegramToken != "from-env" {
		t.Errorf("expected env token to win, got %q", cfg.TelegramToken)
	}
	if cfg.PollInterval != time.Minute {
		t.Errorf("expected 1m poll interval, got %v", cfg.PollInterval)
	}
	if strings.Join(cfg.AdminIDs, ",") != "10,20" {
		t.Errorf("expected admin ids 10,20, got %v", cfg.AdminIDs)
	}
	if cfg.DeliveryConcurrency != 2 {
		t.Errorf("expected file concurrency, got %d", cfg.DeliveryConcurrency)
	}
	if cfg.Addr() != ":9090" {
		t.Errorf("unexpected addr %q", cfg.Addr())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing token", map[string]string{}, "TELEGRAM_BOT_TOKEN"},
		{"zero interval", map[string]string{"TELEGRAM_BOT_TOKEN": "x", "POLL_INTERVAL": "0s"}, "POLL_INTERVAL"},
		{"bad duration", map[string]string{"TELEGRAM_BOT_TOKEN": "x", "POLL_INTERVAL": "soon"}, "environment"},
		{"zero concurrency", map[string]string{"TELEGRAM_BOT_TOKEN": "x", "DELIVERY_CONCURRENCY": "0"}, "DELIVERY_CONCURRENCY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TELEGRAM_BOT_TOKEN", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
