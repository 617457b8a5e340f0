package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/logging"
	"github.com/blackwell-systems/appopsctl/internal/ops"
	"github.com/blackwell-systems/appopsctl/internal/output"
)

var (
	listSort        string
	listLive        bool
	listShowPackage bool

	listCmd = &cobra.Command{
		Use:   "list <category>",
		Short: "List the apps that use a category's operations",
		Long: `List every app that used, or holds a permission for, an operation of the
given category. Each row is one app and switch group; related operations an
app used together are merged into one row.

Rows come from the last scan unless --live is given. Modes you changed with
'appopsctl set' show as pending until a scan confirms them.

Sort orders:
  recency  Running first, then most recently used (default)
  label    Alphabetical by app label in the configured locale`,
		Example: `  # Apps that accessed location, most recent first
  appopsctl list location

  # Media apps alphabetically, with package names
  appopsctl list media --sort label --packages

  # Query the device instead of the last scan
  appopsctl list messaging --live`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: categoryNames(),
		RunE:      runList,
	}
)

func init() {
	listCmd.Flags().StringVar(&listSort, "sort", "recency", "sort order: recency or label")
	listCmd.Flags().BoolVar(&listLive, "live", false, "query the device instead of the last scan")
	listCmd.Flags().BoolVar(&listShowPackage, "packages", false, "show package names")
}

func categoryNames() []string {
	var names []string
	for _, t := range ops.Templates() {
		names = append(names, t.Name)
	}
	return names
}

func runList(cmd *cobra.Command, args []string) error {
	tpl, err := ops.TemplateByName(args[0])
	if err != nil {
		return err
	}
	tag, err := settings.Language()
	if err != nil {
		return err
	}
	cmp, ok := appops.ComparatorByName(listSort, tag)
	if !ok {
		return fmt.Errorf("invalid --sort value %q (must be recency or label)", listSort)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var state *appops.State
	var loadedAt time.Time
	if listLive {
		client, err := newDeviceClient()
		if err != nil {
			return err
		}
		loadedAt = time.Now()
		state = appops.New(client, client, client)
	} else {
		last, err := requireScan(st)
		if err != nil {
			return err
		}
		loadedAt = last.FinishedAt
		state = appops.New(st, st, st)
	}
	state.WithLogger(logging.For("appops"))

	entries, err := state.BuildState(cmd.Context(), tpl, 0, "", cmp)
	if err != nil {
		return fmt.Errorf("failed to build %s list: %w", tpl.Name, err)
	}

	overrides, err := loadOverrides(st)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := reconcileOverrides(out, st, overrides, entries, loadedAt); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s (%d entries)\n\n", tpl.Title, len(entries))
	fmt.Fprint(out, output.RenderEntryTable(entries, overrides, output.TableOptions{ShowPackage: listShowPackage}))
	return nil
}
