package configcmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitWritesDefaultConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	cmd := newInitCmd()
	cmd.SetArgs([]string{"--output", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if !strings.HasPrefix(cfg.Slack.BotToken, "xoxb-") {
		t.Fatalf("bot token placeholder = %q", cfg.Slack.BotToken)
	}
	if cfg.Dashboard.Listen == "" {
		t.Fatalf("dashboard listen should have a default")
	}
	if cfg.Log.Format != "json" {
		t.Fatalf("log format = %q", cfg.Log.Format)
	}
}

func TestInitRefusesToOverwrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("existing"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	cmd := newInitCmd()
	cmd.SetArgs([]string{"--output", path})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error without --force")
	}

	force := newInitCmd()
	force.SetArgs([]string{"--output", path, "--force"})
	if err := force.Execute(); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(raw) == "existing" {
		t.Fatalf("file should have been overwritten")
	}
}
