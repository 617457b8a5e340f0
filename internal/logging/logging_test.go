package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" error ", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.WarnLevel},
		{"verbose", zerolog.WarnLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.name); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestNew_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appopsctl.log")
	l, closer, err := New(Options{Level: "info", Format: "json", File: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Info().Str("module", "scanner").Msg("scan complete")
	l.Debug().Msg("filtered out")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"message":"scan complete"`) || !strings.Contains(out, `"module":"scanner"`) {
		t.Errorf("expected JSON log line, got %q", out)
	}
	if strings.Contains(out, "filtered out") {
		t.Errorf("debug line must be filtered at info level, got %q", out)
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	if _, _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestFor_TagsModule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "for.log")
	l, closer, err := New(Options{Level: "debug", Format: "json", File: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer closer.Close()

	SetDefault(l)
	t.Cleanup(func() { SetDefault(zerolog.Nop()) })

	log := For("watcher")
	log.Warn().Msg("device rescan failed")

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"module":"watcher"`) {
		t.Errorf("expected module field, got %q", data)
	}
}
