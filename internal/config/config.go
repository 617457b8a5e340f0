// Package config loads appopsctl settings: config.yaml in the config
// directory, APPOPSCTL_* environment variables, and the labels file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/blackwell-systems/appopsctl/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. APPOPSCTL_SERIAL.
const EnvPrefix = "APPOPSCTL"

// Config holds the resolved settings.
type Config struct {
	ADB          string
	Serial       string
	DB           string
	Locale       string
	PollInterval time.Duration
	InboxDir     string
	SnapshotDir  string
	Workers      int
	Log          logging.Options

	// Labels maps package names to display labels from the labels file.
	Labels map[string]string

	// File is the config file that was read, empty if none was found.
	File string
}

// Dir returns the appopsctl config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/appopsctl if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "appopsctl"), nil
}

// DataDir returns ~/.appopsctl, where the database, snapshots, PID and log
// files live by default.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".appopsctl"), nil
}

// Load reads config.yaml from dir (if present), applies environment
// overrides and defaults, and loads the labels file.
func Load(dir string) (*Config, error) {
	data, err := DataDir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("adb", "adb")
	v.SetDefault("serial", "")
	v.SetDefault("db", filepath.Join(data, "appopsctl.db"))
	v.SetDefault("locale", "en")
	v.SetDefault("poll_interval", "5m")
	v.SetDefault("inbox_dir", "")
	v.SetDefault("snapshot_dir", filepath.Join(data, "snapshots"))
	v.SetDefault("workers", 4)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		ADB:          v.GetString("adb"),
		Serial:       v.GetString("serial"),
		DB:           expandHome(v.GetString("db")),
		Locale:       v.GetString("locale"),
		PollInterval: v.GetDuration("poll_interval"),
		InboxDir:     expandHome(v.GetString("inbox_dir")),
		SnapshotDir:  expandHome(v.GetString("snapshot_dir")),
		Workers:      v.GetInt("workers"),
		Log: logging.Options{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			File:   expandHome(v.GetString("log.file")),
		},
		File: v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	labels, err := LoadLabels(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}
	cfg.Labels = labels

	return cfg, nil
}

// Validate rejects settings no command can work with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.DB == "" {
		return fmt.Errorf("db path cannot be empty")
	}
	if _, err := c.Language(); err != nil {
		return err
	}
	return nil
}

// Language parses Locale as a BCP 47 tag for label collation.
func (c *Config) Language() (language.Tag, error) {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.Und, fmt.Errorf("invalid locale %q: %w", c.Locale, err)
	}
	return tag, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
