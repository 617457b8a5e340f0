// Package output renders appopsctl results for the terminal.
//
// This package includes:
//   - Table rendering for entries, categories, scans and snapshots
//   - Progress bars for device scans
//   - Spinners for single device commands
//
// Tables use ANSI color codes only when stdout is a terminal and NO_COLOR is
// unset. Progress indicators are safe for concurrent use.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/ops"
	"github.com/blackwell-systems/appopsctl/internal/scanner"
	"github.com/blackwell-systems/appopsctl/internal/store"
)

// ANSI color codes for mode display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// TableOptions controls RenderEntryTable.
type TableOptions struct {
	ShowPackage bool      // add a Package column
	Now         time.Time // reference for relative times; time.Now() when zero
}

// RenderEntryTable renders built entries in the order given. Modes come from
// the overrides overlay when one is pending, and such rows are marked.
func RenderEntryTable(entries []*appops.Entry, overrides *appops.Overrides, opts TableOptions) string {
	if len(entries) == 0 {
		return "No apps found.\n"
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var sb strings.Builder

	if opts.ShowPackage {
		sb.WriteString(fmt.Sprintf("%-20s %-28s %-30s %-10s %-16s %s\n",
			"App", "Package", "Ops", "Mode", "Last Used", "State"))
		sb.WriteString(strings.Repeat("─", 116))
	} else {
		sb.WriteString(fmt.Sprintf("%-20s %-30s %-10s %-16s %s\n",
			"App", "Ops", "Mode", "Last Used", "State"))
		sb.WriteString(strings.Repeat("─", 87))
	}
	sb.WriteString("\n")

	for _, e := range entries {
		label := e.App().Label()
		mode := e.PrimaryOpMode()
		var state []string
		if overrides != nil {
			mode = overrides.PrimaryOpMode(e)
			if _, ok := overrides.Pending(e); ok {
				state = append(state, "pending")
			}
		}
		if e.App().Stale() {
			state = append(state, "unmounted")
		}

		stateStr := strings.Join(state, ", ")
		if stateStr == "" {
			stateStr = "—"
		}

		app := pad(truncate(label, 20), 20)
		modeStr := colorize(modeColor(mode), pad(mode.String(), 10))
		lastUsed := pad(formatLastUsed(e.IsRunning(), e.Time(), now), 16)
		opsStr := pad(truncate(e.SummaryText(), 30), 30)

		if opts.ShowPackage {
			sb.WriteString(fmt.Sprintf("%s %s %s %s %s %s\n",
				app, pad(truncate(e.App().PackageName(), 28), 28), opsStr, modeStr, lastUsed, stateStr))
		} else {
			sb.WriteString(fmt.Sprintf("%s %s %s %s %s\n",
				app, opsStr, modeStr, lastUsed, stateStr))
		}
	}

	return sb.String()
}

// RenderEntryDetail renders every op record of each entry, one line per op,
// grouped under the entry's switch group.
func RenderEntryDetail(entries []*appops.Entry, overrides *appops.Overrides, now time.Time) string {
	if len(entries) == 0 {
		return "No operations recorded.\n"
	}
	if now.IsZero() {
		now = time.Now()
	}

	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		mode := e.PrimaryOpMode()
		pending := ""
		if overrides != nil {
			mode = overrides.PrimaryOpMode(e)
			if _, ok := overrides.Pending(e); ok {
				pending = " (pending)"
			}
		}
		sb.WriteString(fmt.Sprintf("%s: %s%s\n", e.SwitchText(), colorize(modeColor(mode), mode.String()), pending))

		for _, rec := range e.Ops() {
			line := fmt.Sprintf("  %-28s %-10s %s", rec.Op.Label(), rec.Mode.String(), formatLastUsed(rec.Running, rec.Time, now))
			if rec.Duration > 0 {
				line += fmt.Sprintf(" for %s", rec.Duration.Round(time.Second))
			}
			sb.WriteString(strings.TrimRight(line, " ") + "\n")
		}
	}
	return sb.String()
}

// RenderTemplateList renders the available categories.
func RenderTemplateList(templates []ops.Template) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-12s %-20s %s\n", "Category", "Title", "Ops"))
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")

	for _, t := range templates {
		names := make([]string, len(t.Ops))
		for i, op := range t.Ops {
			names[i] = op.Name()
		}
		sb.WriteString(fmt.Sprintf("%-12s %-20s %s\n", t.Name, t.Title, strings.Join(names, ", ")))
	}
	return sb.String()
}

// RenderScanSummary renders the result of a device scan.
func RenderScanSummary(s *scanner.Summary) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("✓ Scanned %s packages (%s op records, %s granted permissions) in %s\n",
		humanize.Comma(int64(s.Scan.PackageCount)),
		humanize.Comma(int64(s.Scan.OpCount)),
		humanize.Comma(int64(s.Scan.GrantCount)),
		s.Duration.Round(time.Millisecond)))
	if s.Scan.Serial != "" {
		sb.WriteString(fmt.Sprintf("  Device:    %s\n", s.Scan.Serial))
	}
	if s.Unmounted > 0 {
		sb.WriteString(fmt.Sprintf("  Unmounted: %d (labels fall back to package names)\n", s.Unmounted))
	}
	if s.Skipped > 0 {
		sb.WriteString(fmt.Sprintf("  Skipped:   %d (uninstalled during scan)\n", s.Skipped))
	}
	return sb.String()
}

// RenderSnapshotTable renders snapshots in the order given (newest first
// from the store).
func RenderSnapshotTable(snapshots []*store.Snapshot) string {
	if len(snapshots) == 0 {
		return "No snapshots found.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-5s %-17s %-10s %-8s %s\n",
		"ID", "Created", "Packages", "Ops", "Reason"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for _, snap := range snapshots {
		sb.WriteString(fmt.Sprintf("%-5d %-17s %-10d %-8d %s\n",
			snap.ID,
			humanize.Time(snap.CreatedAt),
			snap.PackageCount,
			snap.OpCount,
			truncate(snap.Reason, 40)))
	}

	return sb.String()
}

// formatLastUsed describes when an op was last used relative to now.
func formatLastUsed(running bool, t, now time.Time) string {
	switch {
	case running:
		return "running"
	case t.IsZero():
		return "never"
	case now.Sub(t) < time.Minute:
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// modeColor returns the ANSI color code for a mode.
func modeColor(m ops.Mode) string {
	switch m {
	case ops.ModeAllowed:
		return colorGreen
	case ops.ModeForeground:
		return colorYellow
	case ops.ModeIgnored, ops.ModeErrored:
		return colorRed
	default:
		return colorGray
	}
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// pad right-pads s with spaces to width runes. fmt's %-Ns counts runes too,
// but colorized text must be padded before the escape codes are added.
func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
