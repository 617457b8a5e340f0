package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/appopsctl/internal/store"
	"github.com/blackwell-systems/appopsctl/internal/watcher"
)

var (
	statusCheckDevice bool

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show database, scan and watch daemon status",
		Long: `Show where appopsctl keeps its state, when the device was last scanned,
how much was recorded, and whether the watch daemon is running.

With --check-device the attached device is also queried for packages
installed since the last scan.`,
		Example: `  appopsctl status
  appopsctl status --check-device`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
)

func init() {
	statusCmd.Flags().BoolVar(&statusCheckDevice, "check-device", false, "compare the last scan with the attached device")
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	pidFile, err := dataFile("watch.pid")
	if err != nil {
		return err
	}
	running, err := watcher.IsDaemonRunning(pidFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Fprintln(out, "Watch daemon:")
	if running {
		fmt.Fprintf(out, "  ✓ running (PID file %s)\n", pidFile)
	} else {
		fmt.Fprintln(out, "  ✗ not running (start with 'appopsctl watch --daemon')")
	}

	fmt.Fprintln(out, "\nDatabase:")
	fmt.Fprintf(out, "  Path: %s\n", settings.DB)
	if fi, err := os.Stat(settings.DB); err == nil {
		fmt.Fprintf(out, "  Size: %s\n", humanize.Bytes(uint64(fi.Size())))
	}

	last, err := st.LastScan()
	if err != nil {
		return fmt.Errorf("failed to read last scan: %w", err)
	}
	fmt.Fprintln(out, "\nLast scan:")
	if last == nil {
		fmt.Fprintln(out, "  never (run 'appopsctl scan')")
	} else {
		serial := last.Serial
		if serial == "" {
			serial = "default device"
		}
		fmt.Fprintf(out, "  %s (%s), %s\n", last.FinishedAt.Local().Format(time.DateTime),
			humanize.Time(last.FinishedAt), serial)
		fmt.Fprintf(out, "  Packages: %d\n", last.PackageCount)
		fmt.Fprintf(out, "  Grants:   %d\n", last.GrantCount)
	}

	opCount, err := st.GetOpCount()
	if err != nil {
		return err
	}
	runningCount, err := st.GetRunningCount()
	if err != nil {
		return err
	}
	pending, err := pendingCount(st)
	if err != nil {
		return err
	}
	snaps, err := st.ListSnapshots()
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	fmt.Fprintf(out, "  Op records: %s (%d running)\n", humanize.Comma(int64(opCount)), runningCount)
	fmt.Fprintf(out, "\nPending modes: %d\n", pending)
	fmt.Fprintf(out, "Snapshots:     %d\n", len(snaps))

	if statusCheckDevice {
		return checkDevice(cmd, st)
	}
	return nil
}

// pendingCount returns how many mode changes still await a confirming scan.
func pendingCount(st *store.Store) (int, error) {
	overrides, err := loadOverrides(st)
	if err != nil {
		return 0, err
	}
	return overrides.Len(), nil
}

func checkDevice(cmd *cobra.Command, st *store.Store) error {
	out := cmd.OutOrStdout()
	client, err := newDeviceClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), deviceTimeout)
	defer cancel()

	fmt.Fprintln(out, "\nDevice:")
	devices, err := client.Devices(ctx)
	if err != nil {
		fmt.Fprintf(out, "  ✗ %v\n", err)
		return nil
	}
	for _, d := range devices {
		fmt.Fprintf(out, "  %s (%s)\n", d.Serial, d.State)
	}

	names, err := st.ListPackageNames()
	if err != nil {
		return err
	}
	newCount, err := client.CheckStaleness(ctx, names)
	if err != nil {
		return err
	}
	if newCount > 0 {
		fmt.Fprintf(out, "  ⚠ %d packages installed since the last scan (run 'appopsctl scan')\n", newCount)
	} else {
		fmt.Fprintln(out, "  ✓ last scan covers every installed package")
	}
	return nil
}
