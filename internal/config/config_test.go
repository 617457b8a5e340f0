package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/text/language"
)

func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	return home
}

func TestDir_RespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}
	if dir != "/tmp/xdg/appopsctl" {
		t.Errorf("Dir() = %q, want /tmp/xdg/appopsctl", dir)
	}
}

func TestLoad_Defaults(t *testing.T) {
	home := setupHome(t)

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ADB != "adb" {
		t.Errorf("ADB = %q, want adb", cfg.ADB)
	}
	if want := filepath.Join(home, ".appopsctl", "appopsctl.db"); cfg.DB != want {
		t.Errorf("DB = %q, want %q", cfg.DB, want)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("PollInterval = %v, want 5m", cfg.PollInterval)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.InboxDir != "" {
		t.Errorf("InboxDir = %q, want disabled", cfg.InboxDir)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "console" {
		t.Errorf("unexpected log defaults %+v", cfg.Log)
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want empty when no config file exists", cfg.File)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	home := setupHome(t)
	dir := t.TempDir()

	content := `serial: emulator-5554
locale: de
poll_interval: 30s
inbox_dir: ~/inbox
workers: 8
log:
  level: debug
  format: json
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	writeLabels(t, dir, "com.example.notes=Notes\n")

	t.Setenv("APPOPSCTL_SERIAL", "R58M123")
	t.Setenv("APPOPSCTL_LOG_LEVEL", "error")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Serial != "R58M123" {
		t.Errorf("Serial = %q, env must override the file", cfg.Serial)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, env must override the file", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval)
	}
	if want := filepath.Join(home, "inbox"); cfg.InboxDir != want {
		t.Errorf("InboxDir = %q, want %q", cfg.InboxDir, want)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.Labels["com.example.notes"] != "Notes" {
		t.Errorf("expected labels loaded, got %v", cfg.Labels)
	}
	if cfg.File == "" {
		t.Error("expected File to name the config that was read")
	}

	tag, err := cfg.Language()
	if err != nil {
		t.Fatalf("Language() error = %v", err)
	}
	if tag != language.German {
		t.Errorf("Language() = %v, want de", tag)
	}
}

func TestLoad_Invalid(t *testing.T) {
	setupHome(t)

	tests := []struct {
		name    string
		content string
	}{
		{"zero workers", "workers: 0\n"},
		{"bad locale", "locale: \"!!\"\n"},
		{"malformed yaml", "serial: [unterminated\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(tt.content), 0644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := Load(dir); err == nil {
				t.Error("expected error")
			}
		})
	}
}
