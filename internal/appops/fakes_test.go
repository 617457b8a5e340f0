package appops

import (
	"context"
	"sort"
	"time"

	"github.com/blackwell-systems/appopsctl/internal/ops"
)

// fakeDevice implements every collaborator interface from in-memory data.
type fakeDevice struct {
	apps    map[string]AppInfo
	labels  map[string]string
	usage   []PackageOps // returned in this order
	perms   map[string][]RequestedPermission
	missing map[string]bool // package -> artifact unavailable

	labelLoads int
	iconLoads  int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		apps:    make(map[string]AppInfo),
		labels:  make(map[string]string),
		perms:   make(map[string][]RequestedPermission),
		missing: make(map[string]bool),
	}
}

func (f *fakeDevice) install(pkg, label string, uid int) {
	f.apps[pkg] = AppInfo{PackageName: pkg, UID: uid, SourceDir: "/data/app/" + pkg + "/base.apk"}
	f.labels[pkg] = label
}

func (f *fakeDevice) use(pkg string, recs ...OpRecord) {
	f.usage = append(f.usage, PackageOps{PackageName: pkg, UID: f.apps[pkg].UID, Ops: recs})
}

func (f *fakeDevice) grant(pkg string, perms ...string) {
	for _, p := range perms {
		f.perms[pkg] = append(f.perms[pkg], RequestedPermission{Name: p, Granted: true})
	}
}

func (f *fakeDevice) request(pkg string, perms ...string) {
	for _, p := range perms {
		f.perms[pkg] = append(f.perms[pkg], RequestedPermission{Name: p})
	}
}

func filterOps(recs []OpRecord, want []ops.Op) []OpRecord {
	var out []OpRecord
	for _, r := range recs {
		for _, op := range want {
			if r.Op == op {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func (f *fakeDevice) OpsForPackage(_ context.Context, _ int, pkg string, want []ops.Op) ([]PackageOps, error) {
	var out []PackageOps
	for _, p := range f.usage {
		if p.PackageName == pkg {
			out = append(out, PackageOps{PackageName: pkg, UID: p.UID, Ops: filterOps(p.Ops, want)})
		}
	}
	return out, nil
}

func (f *fakeDevice) PackagesForOps(_ context.Context, want []ops.Op) ([]PackageOps, error) {
	var out []PackageOps
	for _, p := range f.usage {
		if recs := filterOps(p.Ops, want); len(recs) > 0 {
			out = append(out, PackageOps{PackageName: p.PackageName, UID: p.UID, Ops: recs})
		}
	}
	return out, nil
}

func (f *fakeDevice) ApplicationInfo(_ context.Context, pkg string) (AppInfo, error) {
	info, ok := f.apps[pkg]
	if !ok {
		return AppInfo{}, ErrPackageNotFound
	}
	return info, nil
}

func (f *fakeDevice) PackageInfo(_ context.Context, pkg string) (*PackageInfo, error) {
	info, ok := f.apps[pkg]
	if !ok {
		return nil, ErrPackageNotFound
	}
	return &PackageInfo{App: info, RequestedPermissions: f.perms[pkg]}, nil
}

func (f *fakeDevice) PackagesHoldingPermissions(_ context.Context, perms []string) ([]*PackageInfo, error) {
	var names []string
	for pkg := range f.perms {
		names = append(names, pkg)
	}
	sort.Strings(names)

	var out []*PackageInfo
	for _, pkg := range names {
		info, ok := f.apps[pkg]
		if !ok {
			continue
		}
		holds := false
		for _, req := range f.perms[pkg] {
			for _, p := range perms {
				if req.Granted && req.Name == p {
					holds = true
				}
			}
		}
		if holds {
			out = append(out, &PackageInfo{App: info, RequestedPermissions: f.perms[pkg]})
		}
	}
	return out, nil
}

func (f *fakeDevice) Present(app AppInfo) bool {
	return !f.missing[app.PackageName]
}

func (f *fakeDevice) LoadLabel(app AppInfo) string {
	f.labelLoads++
	return f.labels[app.PackageName]
}

func (f *fakeDevice) LoadIcon(app AppInfo) Icon {
	f.iconLoads++
	return Icon{Ref: "icon:" + app.PackageName}
}

func (f *fakeDevice) state() *State {
	return New(f, f, f)
}

var baseTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func at(minutesAgo int) time.Time {
	return baseTime.Add(-time.Duration(minutesAgo) * time.Minute)
}
