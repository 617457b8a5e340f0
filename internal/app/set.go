package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/logging"
	"github.com/blackwell-systems/appopsctl/internal/ops"
	"github.com/blackwell-systems/appopsctl/internal/output"
)

var setCmd = &cobra.Command{
	Use:   "set <package> <op> <mode>",
	Short: "Change an app's mode for an operation",
	Long: `Change the mode of an operation for one app. The change applies to the
op's whole switch group (e.g. setting FINE_LOCATION also covers
COARSE_LOCATION and GPS).

The new mode is shown as pending in list and show until the next scan
confirms it. If the device rejects the change, the pending mode is kept and
the next scan reports the divergence.

Modes: allow, ignore, deny, default, foreground.`,
	Example: `  appopsctl set com.example.maps FINE_LOCATION ignore
  appopsctl set com.example.recorder record_audio allow`,
	Args: cobra.ExactArgs(3),
	RunE: runSet,
}

// templateFor returns the first category covering op.
func templateFor(op ops.Op) (ops.Template, bool) {
	for _, t := range ops.Templates() {
		if t.Contains(op) {
			return t, true
		}
	}
	return ops.Template{}, false
}

func runSet(cmd *cobra.Command, args []string) error {
	pkg := args[0]
	op, err := ops.Parse(args[1])
	if err != nil {
		return err
	}
	mode, err := ops.ParseMode(args[2])
	if err != nil {
		return err
	}
	tpl, ok := templateFor(op)
	if !ok {
		return fmt.Errorf("%s is not part of any category", op.Name())
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := newDeviceClient()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	info, err := resolveApp(ctx, st, client, pkg)
	if err != nil {
		return fmt.Errorf("failed to find %s: %w", pkg, err)
	}

	state := appops.New(st, st, st).WithLogger(logging.For("appops"))
	entries, err := state.BuildState(ctx, tpl, info.UID, pkg, nil)
	if err != nil {
		return fmt.Errorf("failed to build %s for %s: %w", tpl.Name, pkg, err)
	}

	overrides, err := loadOverrides(st)
	if err != nil {
		return err
	}

	// Record the optimistic mode first; the device call may be slow or fail.
	var ov appops.Override
	if e := switchEntry(entries, op); e != nil {
		ov = overrides.OverridePrimaryOpMode(e, mode)
	} else {
		ov = appops.Override{
			Key:   appops.EntryKey{PackageName: pkg, Switch: op.Switch()},
			Mode:  mode,
			SetAt: time.Now(),
		}
		overrides.Put(ov)
	}
	if err := st.PutOverride(ov); err != nil {
		return fmt.Errorf("failed to save pending mode: %w", err)
	}

	out := cmd.OutOrStdout()
	spinner := output.NewSpinner(fmt.Sprintf("Setting %s to %s for %s", op.Switch().Name(), mode, pkg)).
		WithTimeout(deviceTimeout)
	spinner.SetWriter(out)
	spinner.Start()

	setCtx, cancel := context.WithTimeout(ctx, deviceTimeout)
	defer cancel()
	if err := client.SetMode(setCtx, pkg, op.Switch(), mode); err != nil {
		spinner.Stop()
		log := logging.For("app")
		log.Error().Err(err).Str("package", pkg).Stringer("op", op).Msg("mode change failed")
		return fmt.Errorf("device rejected the change (kept as pending until the next scan): %w", err)
	}

	spinner.StopWithMessage(fmt.Sprintf("✓ %s: %s set to %s (pending until the next scan)", pkg, op.Switch().Name(), mode))
	return nil
}

// switchEntry returns the entry holding op's switch group, if the app has
// one.
func switchEntry(entries []*appops.Entry, op ops.Op) *appops.Entry {
	for _, e := range entries {
		if sw := e.App().OpSwitch(op); sw != nil {
			return sw
		}
	}
	return nil
}
