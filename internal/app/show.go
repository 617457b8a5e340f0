package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/logging"
	"github.com/blackwell-systems/appopsctl/internal/ops"
	"github.com/blackwell-systems/appopsctl/internal/output"
)

var (
	showCategory string

	showCmd = &cobra.Command{
		Use:   "show <package>",
		Short: "Show every recorded operation of one app",
		Long: `Show the operations one app used or holds permissions for, grouped by
category and switch group. Unlike list, records of different switch groups
are never merged, and groups appear in category order.`,
		Example: `  appopsctl show com.example.maps
  appopsctl show com.example.maps --category location`,
		Args: cobra.ExactArgs(1),
		RunE: runShow,
	}
)

func init() {
	showCmd.Flags().StringVar(&showCategory, "category", "", "only show this category")
}

func runShow(cmd *cobra.Command, args []string) error {
	pkg := args[0]

	templates := ops.Templates()
	if showCategory != "" {
		tpl, err := ops.TemplateByName(showCategory)
		if err != nil {
			return err
		}
		templates = []ops.Template{tpl}
	}
	tag, err := settings.Language()
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	last, err := requireScan(st)
	if err != nil {
		return err
	}

	info, err := st.ApplicationInfo(cmd.Context(), pkg)
	if errors.Is(err, appops.ErrPackageNotFound) {
		return fmt.Errorf("%s: not found in the last scan (run 'appopsctl scan' if it was just installed)", pkg)
	}
	if err != nil {
		return err
	}

	state := appops.New(st, st, st).WithLogger(logging.For("appops"))

	type section struct {
		tpl     ops.Template
		entries []*appops.Entry
	}
	var sections []section
	var all []*appops.Entry
	for _, tpl := range templates {
		entries, err := state.BuildState(cmd.Context(), tpl, info.UID, pkg, appops.RecencyComparator(tag))
		if err != nil {
			return fmt.Errorf("failed to build %s for %s: %w", tpl.Name, pkg, err)
		}
		if len(entries) == 0 {
			continue
		}
		sections = append(sections, section{tpl: tpl, entries: entries})
		all = append(all, entries...)
	}

	overrides, err := loadOverrides(st)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := reconcileOverrides(out, st, overrides, all, last.FinishedAt); err != nil {
		return err
	}

	label := st.LoadLabel(info)
	if label == "" {
		label = pkg
	}
	fmt.Fprintf(out, "%s (%s, uid %d)\n", label, pkg, info.UID)
	fmt.Fprintf(out, "As of scan %s\n", last.FinishedAt.Local().Format(time.DateTime))

	if len(sections) == 0 {
		fmt.Fprintln(out, "\nNo operations recorded.")
		return nil
	}
	for _, sec := range sections {
		fmt.Fprintf(out, "\n== %s ==\n", sec.tpl.Title)
		fmt.Fprint(out, output.RenderEntryDetail(sec.entries, overrides, time.Time{}))
	}
	return nil
}
