package app

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/appopsctl/internal/config"
	"github.com/blackwell-systems/appopsctl/internal/logging"
)

var (
	dbPath     string
	serialFlag string
	localeFlag string
	configDir  string
	logLevel   string

	// settings is resolved once per invocation by loadSettings.
	settings  *config.Config
	logCloser io.Closer

	// RootCmd is the root command for appopsctl
	RootCmd = &cobra.Command{
		Use:   "appopsctl",
		Short: "Inspect and control Android app-ops from the command line",
		Long: `appopsctl reads app-ops usage and permission grants from an Android device
over adb, keeps them in a local database, and shows them per privacy category
the way the Settings app's "App ops" screens do.

Quick Start:
  1. appopsctl scan
  2. appopsctl list location
  3. appopsctl set com.example.maps FINE_LOCATION ignore

Categories: location, personal, messaging, media, device, background.

Examples:
  # Capture the attached device
  appopsctl scan

  # Which apps used the camera or microphone, most recent first
  appopsctl list media

  # Every op recorded for one app
  appopsctl show com.example.maps

  # Keep the device state fresh in the background
  appopsctl watch --daemon

  # Save and later re-apply all op modes
  appopsctl snapshot create --reason "before travel"
  appopsctl snapshot restore latest`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadSettings,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "appopsctl: Android app-ops from the command line")
			fmt.Fprintln(out)
			if _, err := os.Stat(settings.DB); os.IsNotExist(err) {
				fmt.Fprintln(out, "Run 'appopsctl scan' with a device attached to get started.")
			} else {
				fmt.Fprintln(out, "Tip: Run 'appopsctl categories' to see what can be listed.")
				fmt.Fprintln(out, "     Run 'appopsctl status' to check the last scan.")
			}
			fmt.Fprintln(out, "Run 'appopsctl --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: ~/.appopsctl/appopsctl.db)")
	RootCmd.PersistentFlags().StringVar(&serialFlag, "serial", "", "device serial passed to adb -s")
	RootCmd.PersistentFlags().StringVar(&localeFlag, "locale", "", "locale for sorting app labels (default: en)")
	RootCmd.PersistentFlags().StringVar(&configDir, "config", "", "config directory (default: $XDG_CONFIG_HOME/appopsctl)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(scanCmd)
	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(showCmd)
	RootCmd.AddCommand(setCmd)
	RootCmd.AddCommand(watchCmd)
	RootCmd.AddCommand(snapshotCmd)
	RootCmd.AddCommand(statusCmd)
	RootCmd.AddCommand(categoriesCmd)
}

// Execute runs the root command
func Execute() error {
	defer func() {
		if logCloser != nil {
			logCloser.Close()
		}
	}()
	return RootCmd.Execute()
}

// loadSettings reads the config, applies global flags and sets up logging.
func loadSettings(cmd *cobra.Command, args []string) error {
	dir := configDir
	if dir == "" {
		d, err := config.Dir()
		if err != nil {
			return fmt.Errorf("failed to get config directory: %w", err)
		}
		dir = d
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.DB = dbPath
	}
	if serialFlag != "" {
		cfg.Serial = serialFlag
	}
	if localeFlag != "" {
		cfg.Locale = localeFlag
		if _, err := cfg.Language(); err != nil {
			return err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if watchDaemonChild {
		// stdout and stderr already go to the daemon log file
		cfg.Log.Format = "json"
		cfg.Log.File = ""
	}

	l, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	if logCloser != nil {
		logCloser.Close()
	}
	logCloser = closer
	logging.SetDefault(l)

	settings = cfg
	return nil
}
