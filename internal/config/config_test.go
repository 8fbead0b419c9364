package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_RAGCHAT_KEY", "sk-ant-test123")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
anthropic:
  api_key: ${TEST_RAGCHAT_KEY}
  model: claude-sonnet-4-20250514
listen:
  port: 9000
data_dir: /tmp/ragchat-test
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Anthropic.APIKey != "sk-ant-test123" {
		t.Errorf("APIKey = %q, want expanded env value", cfg.Anthropic.APIKey)
	}
	if cfg.Listen.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Listen.Port)
	}
	if cfg.DataDir != "/tmp/ragchat-test" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
}

func TestLoad_DefaultsSurvivePartialConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent.MaxRounds != 2 {
		t.Errorf("Agent.MaxRounds = %d, want default 2", cfg.Agent.MaxRounds)
	}
	if cfg.Chunking.Size != 800 || cfg.Chunking.Overlap != 100 {
		t.Errorf("Chunking = %+v, want defaults 800/100", cfg.Chunking)
	}
	if cfg.Anthropic.MaxTokens != 800 {
		t.Errorf("MaxTokens = %d, want default 800", cfg.Anthropic.MaxTokens)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFindConfig_ExplicitMustExist(t *testing.T) {
	if _, err := FindConfig("/does/not/exist.yaml"); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{" Error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
