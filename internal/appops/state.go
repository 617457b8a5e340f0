// Package appops builds the per-category app-ops screens: it merges live
// operation usage with permission grants into an ordered, deduplicated list
// of entries, one per app and switch group.
package appops

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/appopsctl/internal/ops"
)

// State builds entry lists from its sources. It holds no per-build data, so
// one State may serve concurrent builds if its sources allow it.
type State struct {
	usage    UsageSource
	packages PackageSource
	assets   AssetLoader
	log      zerolog.Logger
}

// New creates a State over the given sources.
func New(usage UsageSource, packages PackageSource, assets AssetLoader) *State {
	return &State{
		usage:    usage,
		packages: packages,
		assets:   assets,
		log:      zerolog.Nop(),
	}
}

// WithLogger sets the logger used for skipped packages and records.
func (s *State) WithLogger(l zerolog.Logger) *State {
	s.log = l
	return s
}

// build is the call-local working set of one BuildState invocation.
type build struct {
	ctx        context.Context
	state      *State
	apps       map[string]*AppRecord
	entries    []*Entry
	allowMerge bool
}

// BuildState returns the entries of tpl ordered by cmp. With packageName ""
// every app is listed; otherwise only (uid, packageName) is, entries are
// never merged across switch groups and each entry's switch order is the
// template position of its first op.
//
// Packages that no longer resolve are skipped. Errors from the sources other
// than ErrPackageNotFound abort the build.
func (s *State) BuildState(ctx context.Context, tpl ops.Template, uid int, packageName string, cmp Comparator) ([]*Entry, error) {
	if err := tpl.Validate(); err != nil {
		return nil, err
	}

	single := packageName != ""

	// Permission set: the first template op requesting each permission.
	var perms []string
	permOps := make(map[string]ops.Op)
	for i, op := range tpl.Ops {
		if !tpl.ShowPerms[i] {
			continue
		}
		perm := op.Permission()
		if perm == "" {
			continue
		}
		if _, dup := permOps[perm]; dup {
			continue
		}
		perms = append(perms, perm)
		permOps[perm] = op
	}

	switchOrder := func(op ops.Op) int {
		if !single {
			return 0
		}
		if i := tpl.IndexOf(op); i >= 0 {
			return i
		}
		return len(tpl.Ops)
	}

	b := &build{
		ctx:        ctx,
		state:      s,
		apps:       make(map[string]*AppRecord),
		allowMerge: !single,
	}

	// Live usage.
	var pkgs []PackageOps
	var err error
	if single {
		pkgs, err = s.usage.OpsForPackage(ctx, uid, packageName, tpl.Ops)
	} else {
		pkgs, err = s.usage.PackagesForOps(ctx, tpl.Ops)
	}
	if err != nil && !errors.Is(err, ErrPackageNotFound) {
		return nil, fmt.Errorf("failed to query operation usage: %w", err)
	}

	for _, pkgOps := range pkgs {
		app, err := b.appRecord(pkgOps.PackageName, nil)
		if err != nil {
			return nil, err
		}
		if app == nil {
			continue
		}
		for _, rec := range pkgOps.Ops {
			if !tpl.Contains(rec.Op) {
				continue
			}
			if app.HasOp(rec.Op) {
				s.log.Debug().Str("package", pkgOps.PackageName).Stringer("op", rec.Op).
					Msg("duplicate usage record skipped")
				continue
			}
			b.attach(app, rec, switchOrder(rec.Op))
		}
	}

	// Permission grants without usage.
	var infos []*PackageInfo
	if single {
		info, err := s.packages.PackageInfo(ctx, packageName)
		switch {
		case errors.Is(err, ErrPackageNotFound):
		case err != nil:
			return nil, fmt.Errorf("failed to query package %s: %w", packageName, err)
		default:
			infos = append(infos, info)
		}
	} else if len(perms) > 0 {
		infos, err = s.packages.PackagesHoldingPermissions(ctx, perms)
		if err != nil {
			return nil, fmt.Errorf("failed to query permission holders: %w", err)
		}
	}

	for _, info := range infos {
		app, err := b.appRecord(info.App.PackageName, &info.App)
		if err != nil {
			return nil, err
		}
		if app == nil {
			continue
		}
		for _, req := range info.RequestedPermissions {
			if !req.Granted {
				continue
			}
			op, ok := permOps[req.Name]
			if !ok {
				continue
			}
			// Live usage always wins over a bare grant.
			if app.HasOp(op) {
				continue
			}
			b.attach(app, OpRecord{Op: op, Mode: ops.ModeAllowed}, switchOrder(op))
		}
	}

	if cmp != nil {
		sort.SliceStable(b.entries, func(i, j int) bool {
			return cmp(b.entries[i], b.entries[j]) < 0
		})
	}
	return b.entries, nil
}

// appRecord returns the call-local record for a package, resolving it on
// first sight. It returns nil, nil for packages that are no longer installed.
func (b *build) appRecord(packageName string, info *AppInfo) (*AppRecord, error) {
	if app, ok := b.apps[packageName]; ok {
		return app, nil
	}
	if info == nil {
		resolved, err := b.state.packages.ApplicationInfo(b.ctx, packageName)
		if errors.Is(err, ErrPackageNotFound) {
			b.state.log.Warn().Str("package", packageName).Msg("unable to find info for package")
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve package %s: %w", packageName, err)
		}
		info = &resolved
	}
	app := newAppRecord(*info, b.state.assets)
	app.Label()
	b.apps[packageName] = app
	return app, nil
}

// attach merges rec into the previous entry when allowed, else into the
// entry already representing its switch group, else starts a new entry.
func (b *build) attach(app *AppRecord, rec OpRecord, switchOrder int) {
	if b.allowMerge && len(b.entries) > 0 {
		last := b.entries[len(b.entries)-1]
		if last.app == app && last.Time().IsZero() == rec.Time.IsZero() {
			last.addOp(rec)
			return
		}
	}
	if e := app.OpSwitch(rec.Op); e != nil {
		e.addOp(rec)
		return
	}
	b.entries = append(b.entries, newEntry(app, rec, switchOrder))
}
