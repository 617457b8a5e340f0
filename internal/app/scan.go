package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/appopsctl/internal/logging"
	"github.com/blackwell-systems/appopsctl/internal/output"
	"github.com/blackwell-systems/appopsctl/internal/scanner"
)

var (
	scanQuiet bool

	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Capture app-ops and permission grants from the device",
		Long: `Scan every installed package on the attached device and store its
permission grants and app-ops records in the appopsctl database.

The stored state is what list, show and status work from, so they keep
working with the device unplugged. Each scan replaces the previous one.

Run scan:
  • The first time you use appopsctl
  • Whenever you want list and show to reflect the device right now
  • Or let 'appopsctl watch' rescan periodically`,
		Example: `  # Scan the only attached device
  appopsctl scan

  # Scan a specific device
  appopsctl scan --serial emulator-5554

  # Scan without progress output
  appopsctl scan --quiet`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}
)

func init() {
	scanCmd.Flags().BoolVar(&scanQuiet, "quiet", false, "suppress output")
}

func runScan(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := newDeviceClient()
	if err != nil {
		return err
	}

	s := scanner.New(st, client, settings.Workers).WithLogger(logging.For("scanner"))

	out := cmd.OutOrStdout()
	var progress *output.ProgressBar
	if !scanQuiet {
		progress = output.NewProgress("Scanning packages")
		progress.SetWriter(out)
		s.OnProgress = progress.Update
	}

	summary, err := s.ScanDevice(cmd.Context(), settings.Serial)
	if err != nil {
		return fmt.Errorf("failed to scan device: %w", err)
	}

	diverged, err := settleOverrides(cmd.Context(), st, summary.Scan.FinishedAt)
	if err != nil {
		return err
	}

	if !scanQuiet {
		progress.Finish()
		fmt.Fprint(out, output.RenderScanSummary(summary))
		printDivergences(out, diverged)
	}
	return nil
}
