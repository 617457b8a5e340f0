package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/ops"
)

const (
	// DefaultWorkers bounds concurrent adb invocations for all-app queries.
	DefaultWorkers = 4

	packageCacheSize = 512
	presenceTimeout  = 5 * time.Second
)

// Client queries a live device over adb. It implements appops.UsageSource,
// appops.PackageSource and appops.AssetLoader.
type Client struct {
	runner  Runner
	workers int
	labels  map[string]string
	cache   *lru.Cache[string, *appops.PackageInfo]
	present *lru.Cache[string, bool] // by APK path
	log     zerolog.Logger
	now     func() time.Time
}

var (
	_ appops.UsageSource   = (*Client)(nil)
	_ appops.PackageSource = (*Client)(nil)
	_ appops.AssetLoader   = (*Client)(nil)
)

// NewClient creates a Client running adb through runner. workers <= 0 uses
// DefaultWorkers.
func NewClient(runner Runner, workers int) (*Client, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	cache, err := lru.New[string, *appops.PackageInfo](packageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create package cache: %w", err)
	}
	present, err := lru.New[string, bool](packageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create presence cache: %w", err)
	}
	return &Client{
		runner:  runner,
		workers: workers,
		labels:  map[string]string{},
		cache:   cache,
		present: present,
		log:     zerolog.Nop(),
		now:     time.Now,
	}, nil
}

// WithLabels sets display labels by package name. They take precedence over
// labels derived from the package name.
func (c *Client) WithLabels(labels map[string]string) *Client {
	if labels != nil {
		c.labels = labels
	}
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(l zerolog.Logger) *Client {
	c.log = l
	return c
}

// Devices lists attached devices.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	out, err := c.runner.Run(ctx, "devices")
	if err != nil {
		return nil, err
	}
	return ParseDevices(out), nil
}

// ListPackages returns every installed package, sorted by name.
func (c *Client) ListPackages(ctx context.Context) ([]Package, error) {
	out, err := c.runner.Run(ctx, "shell", "pm", "list", "packages", "-U")
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	return ParsePackageList(out), nil
}

// PackageOps returns every op record of one package.
func (c *Client) PackageOps(ctx context.Context, pkg string) ([]appops.OpRecord, error) {
	out, err := c.runner.Run(ctx, "shell", "cmd", "appops", "get", pkg)
	if err != nil {
		if strings.Contains(string(out), "Unknown package") {
			return nil, fmt.Errorf("%s: %w", pkg, appops.ErrPackageNotFound)
		}
		return nil, fmt.Errorf("failed to get app ops for %s: %w", pkg, err)
	}
	return ParseAppOps(out, c.now())
}

// OpsForPackage implements appops.UsageSource.
func (c *Client) OpsForPackage(ctx context.Context, uid int, pkg string, filter []ops.Op) ([]appops.PackageOps, error) {
	records, err := c.PackageOps(ctx, pkg)
	if err != nil {
		return nil, err
	}
	records = filterRecords(records, filter)
	if len(records) == 0 {
		return nil, nil
	}
	c.warmPresence(ctx, pkg)
	return []appops.PackageOps{{PackageName: pkg, UID: uid, Ops: records}}, nil
}

// PackagesForOps implements appops.UsageSource. Packages are returned in
// name order; packages uninstalled mid-query are dropped.
func (c *Client) PackagesForOps(ctx context.Context, filter []ops.Op) ([]appops.PackageOps, error) {
	packages, err := c.ListPackages(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]appops.PackageOps, len(packages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, pkg := range packages {
		i, pkg := i, pkg
		g.Go(func() error {
			records, err := c.PackageOps(gctx, pkg.Name)
			if errors.Is(err, appops.ErrPackageNotFound) {
				c.log.Debug().Str("package", pkg.Name).Msg("package vanished during ops query")
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = appops.PackageOps{PackageName: pkg.Name, UID: pkg.UID, Ops: filterRecords(records, filter)}
			if len(results[i].Ops) > 0 {
				c.warmPresence(gctx, pkg.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []appops.PackageOps
	for _, r := range results {
		if len(r.Ops) > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

// PackageInfo implements appops.PackageSource. Results are cached until
// Invalidate or Purge.
func (c *Client) PackageInfo(ctx context.Context, pkg string) (*appops.PackageInfo, error) {
	if info, ok := c.cache.Get(pkg); ok {
		return info, nil
	}

	out, err := c.runner.Run(ctx, "shell", "dumpsys", "package", pkg)
	if err != nil {
		return nil, fmt.Errorf("failed to dump package %s: %w", pkg, err)
	}
	info, err := ParsePackageDump(pkg, out)
	if err != nil {
		return nil, err
	}

	c.cache.Add(pkg, info)
	return info, nil
}

// ApplicationInfo implements appops.PackageSource.
func (c *Client) ApplicationInfo(ctx context.Context, pkg string) (appops.AppInfo, error) {
	info, err := c.PackageInfo(ctx, pkg)
	if err != nil {
		return appops.AppInfo{}, err
	}
	return info.App, nil
}

// PackagesHoldingPermissions implements appops.PackageSource.
func (c *Client) PackagesHoldingPermissions(ctx context.Context, perms []string) ([]*appops.PackageInfo, error) {
	packages, err := c.ListPackages(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*appops.PackageInfo, len(packages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, pkg := range packages {
		i, pkg := i, pkg
		g.Go(func() error {
			info, err := c.PackageInfo(gctx, pkg.Name)
			if errors.Is(err, appops.ErrPackageNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if holdsAny(info, perms) {
				results[i] = info
				c.CheckPresent(gctx, info.App)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*appops.PackageInfo
	for _, info := range results {
		if info != nil {
			out = append(out, info)
		}
	}
	return out, nil
}

// Invalidate drops the cached package info and presence for pkg.
func (c *Client) Invalidate(pkg string) {
	if info, ok := c.cache.Peek(pkg); ok {
		c.present.Remove(info.App.SourceDir)
	}
	c.cache.Remove(pkg)
}

// Purge drops all cached package info and presence.
func (c *Client) Purge() {
	c.cache.Purge()
	c.present.Purge()
}

// warmPresence checks pkg's APK while an all-app query is already fanned
// out, so the label lookups of the following build hit the cache.
func (c *Client) warmPresence(ctx context.Context, pkg string) {
	info, err := c.PackageInfo(ctx, pkg)
	if err != nil {
		c.log.Debug().Err(err).Str("package", pkg).Msg("presence check skipped")
		return
	}
	c.CheckPresent(ctx, info.App)
}

// CheckPresent reports whether app's APK is readable on the device. Answers
// are cached until Invalidate or Purge; a cancelled ctx is not cached.
func (c *Client) CheckPresent(ctx context.Context, app appops.AppInfo) bool {
	if app.SourceDir == "" {
		return false
	}
	if present, ok := c.present.Get(app.SourceDir); ok {
		return present
	}

	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()
	out, err := c.runner.Run(ctx, "shell", "ls", app.SourceDir)
	present := err == nil && strings.TrimSpace(string(out)) == app.SourceDir
	if ctx.Err() == nil {
		c.present.Add(app.SourceDir, present)
	}
	return present
}

// Present implements appops.AssetLoader. All-app queries check presence
// ahead of the build, so this is normally a cache hit.
func (c *Client) Present(app appops.AppInfo) bool {
	return c.CheckPresent(context.Background(), app)
}

// LoadLabel implements appops.AssetLoader.
func (c *Client) LoadLabel(app appops.AppInfo) string {
	if label, ok := c.labels[app.PackageName]; ok {
		return label
	}
	return DeriveLabel(app.PackageName)
}

// LoadIcon implements appops.AssetLoader. The reference points into the APK;
// extracting it is left to the renderer.
func (c *Client) LoadIcon(app appops.AppInfo) appops.Icon {
	return appops.Icon{Ref: "apk:" + app.SourceDir}
}

func filterRecords(records []appops.OpRecord, filter []ops.Op) []appops.OpRecord {
	if filter == nil {
		return records
	}
	want := make(map[ops.Op]bool, len(filter))
	for _, op := range filter {
		want[op] = true
	}
	var out []appops.OpRecord
	for _, r := range records {
		if want[r.Op] {
			out = append(out, r)
		}
	}
	return out
}

func holdsAny(info *appops.PackageInfo, perms []string) bool {
	for _, req := range info.RequestedPermissions {
		if !req.Granted {
			continue
		}
		for _, p := range perms {
			if req.Name == p {
				return true
			}
		}
	}
	return false
}
