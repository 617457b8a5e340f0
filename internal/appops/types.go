package appops

import (
	"context"
	"errors"
	"time"

	"github.com/blackwell-systems/appopsctl/internal/ops"
)

// ErrPackageNotFound is returned by sources when a package is no longer
// installed. BuildState skips such packages instead of failing.
var ErrPackageNotFound = errors.New("package not found")

// AppInfo identifies one installed application.
type AppInfo struct {
	PackageName string
	UID         int
	SourceDir   string // on-disk path of the base APK
}

// OpRecord is one operation record for one app: either observed live usage
// or a placeholder synthesized from a permission grant.
type OpRecord struct {
	Op       ops.Op
	Mode     ops.Mode
	Time     time.Time // zero if the op never executed
	Duration time.Duration
	Running  bool
}

// Executed reports whether the op has ever run.
func (r OpRecord) Executed() bool {
	return !r.Time.IsZero()
}

// PackageOps groups the usage records of one package.
type PackageOps struct {
	PackageName string
	UID         int
	Ops         []OpRecord
}

// RequestedPermission is one permission declared by a package.
type RequestedPermission struct {
	Name    string
	Granted bool
}

// PackageInfo is a package together with its declared permissions.
type PackageInfo struct {
	App                  AppInfo
	RequestedPermissions []RequestedPermission
}

// Icon references an application icon. Ref is opaque to this package.
type Icon struct {
	Ref     string
	Default bool
}

// DefaultIcon is shown while an app's artifact is unavailable.
var DefaultIcon = Icon{Ref: "android:drawable/sym_def_app_icon", Default: true}

// UsageSource is the live-usage query.
//
// Implementations must return each package's records contiguously and in a
// stable order across calls: BuildState merges adjacent records of the same
// app when listing all apps, so a change in ordering changes the merge.
type UsageSource interface {
	// OpsForPackage returns the usage records of one package, filtered to ops.
	OpsForPackage(ctx context.Context, uid int, packageName string, ops []ops.Op) ([]PackageOps, error)
	// PackagesForOps returns every package that has a record for any of ops.
	PackagesForOps(ctx context.Context, ops []ops.Op) ([]PackageOps, error)
}

// PackageSource is the package/permission query.
type PackageSource interface {
	// ApplicationInfo resolves an installed package, or ErrPackageNotFound.
	ApplicationInfo(ctx context.Context, packageName string) (AppInfo, error)
	// PackageInfo returns one package with its requested permissions, or
	// ErrPackageNotFound.
	PackageInfo(ctx context.Context, packageName string) (*PackageInfo, error)
	// PackagesHoldingPermissions returns every package granted any of perms.
	PackagesHoldingPermissions(ctx context.Context, perms []string) ([]*PackageInfo, error)
}

// AssetLoader resolves display labels and icons. Loading may touch disk and
// is only attempted while the app's artifact is present.
type AssetLoader interface {
	Present(app AppInfo) bool
	LoadLabel(app AppInfo) string
	LoadIcon(app AppInfo) Icon
}
