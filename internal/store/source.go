package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/ops"
)

// The store serves the last scan to BuildState so screens work without a
// device attached.
var (
	_ appops.UsageSource   = (*Store)(nil)
	_ appops.PackageSource = (*Store)(nil)
	_ appops.AssetLoader   = (*Store)(nil)
)

// OpsForPackage implements appops.UsageSource.
func (s *Store) OpsForPackage(ctx context.Context, uid int, pkg string, filter []ops.Op) ([]appops.PackageOps, error) {
	if _, err := s.ApplicationInfo(ctx, pkg); err != nil {
		return nil, err
	}
	records, err := s.opRecords(ctx, pkg, filter)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return []appops.PackageOps{{PackageName: pkg, UID: uid, Ops: records}}, nil
}

// PackagesForOps implements appops.UsageSource. Packages come back in name
// order, each package's records in scan order.
func (s *Store) PackagesForOps(ctx context.Context, filter []ops.Op) ([]appops.PackageOps, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.op, o.mode, o.last_time, o.duration_ms, o.running, o.package, p.uid
		FROM op_records o
		JOIN packages p ON p.name = o.package
		ORDER BY o.package, o.position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query op records: %w", classify(err))
	}
	defer rows.Close()

	want := opSet(filter)
	var out []appops.PackageOps
	for rows.Next() {
		var pkg string
		var uid int
		rec, err := scanOpRecord(rows, &pkg, &uid)
		if err != nil {
			return nil, err
		}
		if want != nil && !want[rec.Op] {
			continue
		}
		if n := len(out); n == 0 || out[n-1].PackageName != pkg {
			out = append(out, appops.PackageOps{PackageName: pkg, UID: uid})
		}
		last := &out[len(out)-1]
		last.Ops = append(last.Ops, rec)
	}
	return out, rows.Err()
}

// ApplicationInfo implements appops.PackageSource.
func (s *Store) ApplicationInfo(ctx context.Context, pkg string) (appops.AppInfo, error) {
	app := appops.AppInfo{PackageName: pkg}
	var sourceDir sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT uid, source_dir FROM packages WHERE name = ?", pkg).
		Scan(&app.UID, &sourceDir)
	if err == sql.ErrNoRows {
		return appops.AppInfo{}, fmt.Errorf("%s: %w", pkg, appops.ErrPackageNotFound)
	}
	if err != nil {
		return appops.AppInfo{}, fmt.Errorf("failed to get package %s: %w", pkg, classify(err))
	}
	app.SourceDir = sourceDir.String
	return app, nil
}

// PackageInfo implements appops.PackageSource.
func (s *Store) PackageInfo(ctx context.Context, pkg string) (*appops.PackageInfo, error) {
	app, err := s.ApplicationInfo(ctx, pkg)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, granted
		FROM permissions
		WHERE package = ?
		ORDER BY position
	`, pkg)
	if err != nil {
		return nil, fmt.Errorf("failed to get permissions for %s: %w", pkg, classify(err))
	}
	defer rows.Close()

	info := &appops.PackageInfo{App: app}
	for rows.Next() {
		var perm appops.RequestedPermission
		if err := rows.Scan(&perm.Name, &perm.Granted); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		info.RequestedPermissions = append(info.RequestedPermissions, perm)
	}
	return info, rows.Err()
}

// PackagesHoldingPermissions implements appops.PackageSource.
func (s *Store) PackagesHoldingPermissions(ctx context.Context, perms []string) ([]*appops.PackageInfo, error) {
	if len(perms) == 0 {
		return nil, nil
	}

	args := make([]any, len(perms))
	for i, p := range perms {
		args[i] = p
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(perms)), ",")

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT package
		FROM permissions
		WHERE granted AND name IN (`+placeholders+`)
		ORDER BY package
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query permission holders: %w", classify(err))
	}

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan package name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	infos := make([]*appops.PackageInfo, 0, len(names))
	for _, name := range names {
		info, err := s.PackageInfo(ctx, name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Present implements appops.AssetLoader using the mount state seen by the
// last scan.
func (s *Store) Present(app appops.AppInfo) bool {
	var present bool
	err := s.db.QueryRow("SELECT present FROM packages WHERE name = ?", app.PackageName).Scan(&present)
	return err == nil && present
}

// LoadLabel implements appops.AssetLoader.
func (s *Store) LoadLabel(app appops.AppInfo) string {
	var label sql.NullString
	if err := s.db.QueryRow("SELECT label FROM packages WHERE name = ?", app.PackageName).Scan(&label); err != nil {
		return ""
	}
	return label.String
}

// LoadIcon implements appops.AssetLoader.
func (s *Store) LoadIcon(app appops.AppInfo) appops.Icon {
	return appops.Icon{Ref: "apk:" + app.SourceDir}
}
