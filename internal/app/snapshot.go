package app

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/appopsctl/internal/logging"
	"github.com/blackwell-systems/appopsctl/internal/output"
	"github.com/blackwell-systems/appopsctl/internal/snapshots"
	"github.com/blackwell-systems/appopsctl/internal/store"
)

var (
	snapshotReason     string
	snapshotRestoreYes bool

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Save, list, restore and import op-mode snapshots",
		Long: `Snapshots are JSON files holding the stored device state: packages,
permission grants and every op mode. Restoring a snapshot re-applies its op
modes to the attached device; importing one loads it as the current device
state, e.g. a capture taken on another machine.`,
	}

	snapshotCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Save the stored device state as a snapshot",
		Example: `  appopsctl snapshot create
  appopsctl snapshot create --reason "before travel"`,
		Args: cobra.NoArgs,
		RunE: runSnapshotCreate,
	}

	snapshotListCmd = &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE:  runSnapshotList,
	}

	snapshotRestoreCmd = &cobra.Command{
		Use:   "restore [snapshot-id | latest]",
		Short: "Re-apply a snapshot's op modes to the device",
		Long: `Re-apply the op modes recorded in a snapshot to the attached device.

A snapshot of the current state is saved first so the restore can itself be
undone. Packages no longer installed are skipped.

Arguments:
  snapshot-id  The numeric ID of the snapshot to restore
  latest       Restore the most recent snapshot`,
		Example: `  appopsctl snapshot restore latest
  appopsctl snapshot restore 42 --yes`,
		Args: cobra.ExactArgs(1),
		RunE: runSnapshotRestore,
	}

	snapshotImportCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Load a snapshot file as the current device state",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshotImport,
	}

	snapshotCleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Delete snapshot files older than 90 days",
		Args:  cobra.NoArgs,
		RunE:  runSnapshotCleanup,
	}
)

func init() {
	snapshotCreateCmd.Flags().StringVar(&snapshotReason, "reason", "manual", "why the snapshot was taken")
	snapshotRestoreCmd.Flags().BoolVar(&snapshotRestoreYes, "yes", false, "skip confirmation prompt")

	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotCmd.AddCommand(snapshotImportCmd)
	snapshotCmd.AddCommand(snapshotCleanupCmd)
}

// newSnapshotManager opens the store and a snapshot manager over it. The
// device is only attached when withDevice is set.
func newSnapshotManager(withDevice bool) (*snapshots.Manager, *store.Store, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	var dev snapshots.ModeSetter
	if withDevice {
		client, err := newDeviceClient()
		if err != nil {
			st.Close()
			return nil, nil, err
		}
		dev = client
	}
	return snapshots.New(st, settings.SnapshotDir, dev).WithLogger(logging.For("snapshots")), st, nil
}

func runSnapshotCreate(cmd *cobra.Command, args []string) error {
	mgr, st, err := newSnapshotManager(false)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := requireScan(st); err != nil {
		return err
	}

	id, err := mgr.CreateSnapshot(cmd.Context(), snapshotReason)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Snapshot %d created\n", id)
	return nil
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	mgr, st, err := newSnapshotManager(false)
	if err != nil {
		return err
	}
	defer st.Close()

	snaps, err := mgr.ListSnapshots()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderSnapshotTable(snaps))
	return nil
}

func runSnapshotRestore(cmd *cobra.Command, args []string) error {
	mgr, st, err := newSnapshotManager(true)
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()

	var snapshotID int64
	if strings.EqualFold(args[0], "latest") {
		snaps, err := mgr.ListSnapshots()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			return fmt.Errorf("no snapshots available (create one with 'appopsctl snapshot create')")
		}
		// Snapshots are ordered by creation time (newest first)
		snapshotID = snaps[0].ID
	} else {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid snapshot ID: %s (must be a number or 'latest')", args[0])
		}
		snapshotID = id
	}

	snapshot, err := st.GetSnapshot(snapshotID)
	if err != nil {
		return fmt.Errorf("snapshot %d not found\n\nRun 'appopsctl snapshot list' to see available snapshots", snapshotID)
	}

	fmt.Fprintf(out, "Snapshot %d\n", snapshot.ID)
	fmt.Fprintf(out, "  Created:  %s\n", snapshot.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Reason:   %s\n", snapshot.Reason)
	fmt.Fprintf(out, "  Packages: %d (%d op records)\n\n", snapshot.PackageCount, snapshot.OpCount)

	if !snapshotRestoreYes && !confirm(cmd.InOrStdin(), out, "Re-apply these op modes to the device?") {
		fmt.Fprintln(out, "Restore cancelled")
		return nil
	}

	// Saving the current state needs a prior scan; without one there is
	// nothing to go back to.
	if last, err := st.LastScan(); err == nil && last != nil {
		backup, err := mgr.CreateSnapshot(cmd.Context(), fmt.Sprintf("before restore of snapshot %d", snapshotID))
		if err != nil {
			return fmt.Errorf("failed to save current state: %w", err)
		}
		fmt.Fprintf(out, "Saved current state as snapshot %d\n", backup)
	}

	result, err := mgr.RestoreSnapshot(cmd.Context(), snapshotID)
	if result != nil {
		fmt.Fprintf(out, "✓ Restored %d op modes", result.Applied)
		if result.Skipped > 0 {
			fmt.Fprintf(out, ", skipped %d uninstalled packages", result.Skipped)
		}
		fmt.Fprintln(out)
		for _, f := range result.Failures {
			fmt.Fprintf(out, "  ✗ %s\n", f)
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Run 'appopsctl scan' to confirm the device state.")
	return nil
}

func runSnapshotImport(cmd *cobra.Command, args []string) error {
	mgr, st, err := newSnapshotManager(false)
	if err != nil {
		return err
	}
	defer st.Close()

	scan, err := mgr.ImportFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	diverged, err := settleOverrides(cmd.Context(), st, scan.FinishedAt)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Imported %d packages (%d op records) from %s\n",
		scan.PackageCount, scan.OpCount, args[0])
	printDivergences(out, diverged)
	return nil
}

func runSnapshotCleanup(cmd *cobra.Command, args []string) error {
	mgr, st, err := newSnapshotManager(false)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := mgr.CleanupOldSnapshots()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d old snapshot files\n", n)
	return nil
}

// confirm asks a yes/no question on in and reports a yes.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	reader := bufio.NewReader(in)
	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
