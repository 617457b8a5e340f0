package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/store"
)

// retention is how long snapshot files are kept by CleanupOldSnapshots.
const retention = 90 * 24 * time.Hour

// CreateSnapshot writes the stored device state to a JSON file and records
// it, returning the snapshot ID.
func (m *Manager) CreateSnapshot(ctx context.Context, reason string) (int64, error) {
	// Ensure snapshot directory exists
	if err := os.MkdirAll(m.snapshotDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	states, err := m.store.ListPackageStates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list packages: %w", err)
	}

	var serial string
	if last, err := m.store.LastScan(); err == nil && last != nil {
		serial = last.Serial
	}

	data := &SnapshotData{
		Format:    Format,
		Version:   FormatVersion,
		CreatedAt: time.Now(),
		Reason:    reason,
		Serial:    serial,
		Packages:  make([]*PackageSnapshot, 0, len(states)),
	}

	opCount := 0
	for _, st := range states {
		pkg := fromPackageState(st)
		opCount += len(pkg.Ops)
		data.Packages = append(data.Packages, pkg)
	}

	// Filename: YYYY-MM-DD-HHMMSS-<id>.json
	timestamp := data.CreatedAt.Format("2006-01-02-150405")
	filename := fmt.Sprintf("%s-%s.json", timestamp, uuid.NewString()[:8])
	path := filepath.Join(m.snapshotDir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to marshal snapshot data: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return 0, fmt.Errorf("failed to write snapshot file: %w", err)
	}

	id, err := m.store.InsertSnapshot(reason, len(data.Packages), opCount, path)
	if err != nil {
		// Try to clean up the JSON file if DB insert fails
		os.Remove(path)
		return 0, fmt.Errorf("failed to insert snapshot into database: %w", err)
	}

	m.log.Info().Int64("snapshot", id).Str("path", path).Int("packages", len(data.Packages)).Msg("snapshot created")
	return id, nil
}

// ListSnapshots returns all snapshots from the database.
func (m *Manager) ListSnapshots() ([]*store.Snapshot, error) {
	snapshots, err := m.store.ListSnapshots()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snapshots, nil
}

// CleanupOldSnapshots removes snapshot files older than 90 days and returns
// how many were removed. Database rows are kept as an audit log.
func (m *Manager) CleanupOldSnapshots() (int, error) {
	snapshots, err := m.store.ListSnapshots()
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	deleted := 0

	for _, snapshot := range snapshots {
		if !snapshot.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(snapshot.SnapshotPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return deleted, fmt.Errorf("failed to delete snapshot file %s: %w", snapshot.SnapshotPath, err)
		}
		deleted++
	}

	return deleted, nil
}

func fromPackageState(st *store.PackageState) *PackageSnapshot {
	app := st.Info.App
	pkg := &PackageSnapshot{
		Name:      app.PackageName,
		UID:       app.UID,
		SourceDir: app.SourceDir,
		Label:     st.Label,
		Present:   st.Present,
	}
	for _, perm := range st.Info.RequestedPermissions {
		pkg.Permissions = append(pkg.Permissions, PermissionSnapshot{Name: perm.Name, Granted: perm.Granted})
	}
	for _, rec := range st.Ops {
		op := OpSnapshot{
			Op:         rec.Op.Name(),
			Mode:       rec.Mode.String(),
			DurationMS: rec.Duration.Milliseconds(),
			Running:    rec.Running,
		}
		if rec.Executed() {
			t := rec.Time
			op.Time = &t
		}
		pkg.Ops = append(pkg.Ops, op)
	}
	return pkg
}

func (p *PackageSnapshot) toPackageState() (store.PackageState, error) {
	st := store.PackageState{
		Info: appops.PackageInfo{
			App: appops.AppInfo{PackageName: p.Name, UID: p.UID, SourceDir: p.SourceDir},
		},
		Present: p.Present,
		Label:   p.Label,
	}
	for _, perm := range p.Permissions {
		st.Info.RequestedPermissions = append(st.Info.RequestedPermissions,
			appops.RequestedPermission{Name: perm.Name, Granted: perm.Granted})
	}
	for _, o := range p.Ops {
		rec, err := o.record()
		if err != nil {
			return store.PackageState{}, fmt.Errorf("package %s: %w", p.Name, err)
		}
		st.Ops = append(st.Ops, rec)
	}
	return st, nil
}
