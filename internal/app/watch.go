package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/appopsctl/internal/logging"
	"github.com/blackwell-systems/appopsctl/internal/output"
	"github.com/blackwell-systems/appopsctl/internal/scanner"
	"github.com/blackwell-systems/appopsctl/internal/snapshots"
	"github.com/blackwell-systems/appopsctl/internal/store"
	"github.com/blackwell-systems/appopsctl/internal/watcher"
)

var (
	watchDaemon       bool
	watchDaemonChild  bool
	watchPIDFile      string
	watchLogFile      string
	watchStop         bool
	watchInbox        string
	watchPollInterval time.Duration

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Keep the stored device state up to date",
		Long: `Rescan the device periodically and import snapshot files dropped into an
inbox directory, so list and show stay current without manual scans.

Watch modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as a background process
  • Stop: Stop a running daemon

Each completed scan or import settles pending modes set with 'appopsctl set'.
An unplugged device is not an error; the last scan stays in place until
the device is back.`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  appopsctl watch

  # Run as background daemon, rescanning every 10 minutes
  appopsctl watch --daemon --poll-interval 10m

  # Only import captures dropped into a directory
  appopsctl watch --poll-interval -1s --inbox ~/captures

  # Stop running daemon
  appopsctl watch --stop`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: ~/.appopsctl/watch.pid)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: ~/.appopsctl/watch.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")
	watchCmd.Flags().StringVar(&watchInbox, "inbox", "", "import snapshot files dropped into this directory (default: inbox_dir setting)")
	watchCmd.Flags().DurationVar(&watchPollInterval, "poll-interval", 0, "rescan interval, negative disables (default: poll_interval setting)")

	// Hide the internal daemon-child flag from help
	watchCmd.Flags().MarkHidden("daemon-child")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchPIDFile == "" {
		p, err := dataFile("watch.pid")
		if err != nil {
			return fmt.Errorf("failed to get default PID file path: %w", err)
		}
		watchPIDFile = p
	}
	if watchLogFile == "" {
		p, err := dataFile("watch.log")
		if err != nil {
			return fmt.Errorf("failed to get default log file path: %w", err)
		}
		watchLogFile = p
	}

	if watchStop {
		return stopWatchDaemon(cmd)
	}
	if watchDaemon {
		return startWatchDaemon(cmd)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	w, err := newWatcher(st)
	if err != nil {
		return err
	}

	if watchDaemonChild {
		// Output is redirected to the log file
		return w.RunDaemon(watchPIDFile)
	}
	return runWatchForeground(cmd, w)
}

// watchOptions merges the watch flags over the configured settings.
func watchOptions() watcher.Options {
	opts := watcher.Options{
		Serial:       settings.Serial,
		PollInterval: settings.PollInterval,
		InboxDir:     settings.InboxDir,
	}
	if watchPollInterval != 0 {
		opts.PollInterval = watchPollInterval
	}
	if watchInbox != "" {
		opts.InboxDir = watchInbox
	}
	return opts
}

// newWatcher wires a scanner and snapshot importer over st into a watcher
// that settles pending overrides after every scan.
func newWatcher(st *store.Store) (*watcher.Watcher, error) {
	client, err := newDeviceClient()
	if err != nil {
		return nil, err
	}

	sc := scanner.New(st, client, settings.Workers).WithLogger(logging.For("scanner"))
	snaps := snapshots.New(st, settings.SnapshotDir, client).WithLogger(logging.For("snapshots"))

	w, err := watcher.New(sc, snaps, watchOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	log := logging.For("watcher")
	w.WithLogger(log)

	w.OnScan = func(scan *store.Scan) {
		// The device state just changed; cached dumps may be outdated.
		client.Purge()
		diverged, err := settleOverrides(context.Background(), st, scan.FinishedAt)
		if err != nil {
			log.Error().Err(err).Msg("failed to settle pending overrides")
		}
		for _, d := range diverged {
			log.Warn().Str("package", d.Key.PackageName).Str("op", d.Key.Switch.Name()).
				Stringer("requested", d.Mode).Stringer("actual", d.Actual).Msg("mode change not applied")
		}
		log.Info().Str("scan", scan.ID).Int("packages", scan.PackageCount).Int("ops", scan.OpCount).
			Msg("device state updated")
	}
	return w, nil
}

// daemonChildArgs returns the global and watch flags the daemon child must
// inherit.
func daemonChildArgs() []string {
	var args []string
	add := func(name, value string) {
		if value != "" {
			args = append(args, "--"+name, value)
		}
	}
	add("db", dbPath)
	add("serial", serialFlag)
	add("locale", localeFlag)
	add("config", configDir)
	add("log-level", logLevel)
	add("pid-file", watchPIDFile)
	add("inbox", watchInbox)
	if watchPollInterval != 0 {
		add("poll-interval", watchPollInterval.String())
	}
	return args
}

func stopWatchDaemon(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if !running {
		fmt.Fprintln(out, "Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon")
	spinner.SetWriter(out)
	spinner.Start()
	if err := watcher.StopDaemon(watchPIDFile); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")
	return nil
}

func startWatchDaemon(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	spinner := output.NewSpinner("Starting daemon")
	spinner.SetWriter(out)
	spinner.Start()
	if err := watcher.StartDaemon(watchPIDFile, watchLogFile, daemonChildArgs()...); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon started")

	opts := watchOptions()
	fmt.Fprintln(out)
	if opts.PollInterval >= 0 {
		fmt.Fprintf(out, "  Rescanning every %s\n", opts.PollInterval)
	}
	if opts.InboxDir != "" {
		fmt.Fprintf(out, "  Inbox:    %s\n", opts.InboxDir)
	}
	fmt.Fprintf(out, "  PID file: %s\n", watchPIDFile)
	fmt.Fprintf(out, "  Log file: %s\n", watchLogFile)
	fmt.Fprintf(out, "\nTo stop: appopsctl watch --stop\n")
	return nil
}

func runWatchForeground(cmd *cobra.Command, w *watcher.Watcher) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Watching device state (press Ctrl+C to stop)...")

	spinner := output.NewSpinner("Running initial scan")
	spinner.SetWriter(out)
	spinner.Start()
	if err := w.Start(); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	spinner.StopWithMessage("✓ Watcher started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		fmt.Fprintf(out, "\nReceived signal %v, shutting down...\n", sig)
	case <-cmd.Context().Done():
	}

	if err := w.Stop(); err != nil {
		return fmt.Errorf("failed to stop watcher: %w", err)
	}
	fmt.Fprintln(out, "✓ Watcher stopped")
	return nil
}
