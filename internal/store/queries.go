package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/ops"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTS(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Device state operations

// ReplaceDeviceState replaces all stored packages, permissions and op
// records with state and records the scan, in one transaction.
func (s *Store) ReplaceDeviceState(ctx context.Context, state *DeviceState) (*Scan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM packages"); err != nil {
		return nil, fmt.Errorf("failed to clear packages: %w", classify(err))
	}

	scan := &Scan{
		ID:         uuid.New().String(),
		Serial:     state.Serial,
		StartedAt:  state.StartedAt,
		FinishedAt: state.FinishedAt,
	}

	for i := range state.Packages {
		pkg := &state.Packages[i]
		app := pkg.Info.App

		_, err := tx.ExecContext(ctx, `
			INSERT INTO packages (name, uid, source_dir, present, label)
			VALUES (?, ?, ?, ?, ?)
		`, app.PackageName, app.UID, app.SourceDir, pkg.Present, pkg.Label)
		if err != nil {
			return nil, fmt.Errorf("failed to insert package %s: %w", app.PackageName, err)
		}
		scan.PackageCount++

		for pos, perm := range pkg.Info.RequestedPermissions {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO permissions (package, name, position, granted)
				VALUES (?, ?, ?, ?)
			`, app.PackageName, perm.Name, pos, perm.Granted)
			if err != nil {
				return nil, fmt.Errorf("failed to insert permission %s for %s: %w", perm.Name, app.PackageName, err)
			}
			if perm.Granted {
				scan.GrantCount++
			}
		}

		for pos, rec := range pkg.Ops {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO op_records (package, op, position, mode, last_time, duration_ms, running)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, app.PackageName, int(rec.Op), pos, int(rec.Mode), formatTime(rec.Time),
				rec.Duration.Milliseconds(), rec.Running)
			if err != nil {
				return nil, fmt.Errorf("failed to insert op %s for %s: %w", rec.Op, app.PackageName, err)
			}
			scan.OpCount++
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans (id, device_serial, started_at, finished_at, package_count, op_count, grant_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, scan.ID, scan.Serial, formatTS(scan.StartedAt), formatTS(scan.FinishedAt),
		scan.PackageCount, scan.OpCount, scan.GrantCount)
	if err != nil {
		return nil, fmt.Errorf("failed to record scan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit scan: %w", err)
	}
	return scan, nil
}

// ListPackageNames returns the names of all stored packages, sorted.
func (s *Store) ListPackageNames() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM packages ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", classify(err))
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan package name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetPackageState returns everything stored about one package, or an error
// wrapping appops.ErrPackageNotFound.
func (s *Store) GetPackageState(ctx context.Context, name string) (*PackageState, error) {
	info, err := s.PackageInfo(ctx, name)
	if err != nil {
		return nil, err
	}

	var present bool
	var label sql.NullString
	err = s.db.QueryRowContext(ctx, "SELECT present, label FROM packages WHERE name = ?", name).
		Scan(&present, &label)
	if err != nil {
		return nil, fmt.Errorf("failed to get package %s: %w", name, classify(err))
	}

	records, err := s.opRecords(ctx, name, nil)
	if err != nil {
		return nil, err
	}

	return &PackageState{Info: *info, Present: present, Label: label.String, Ops: records}, nil
}

// ListPackageStates returns every stored package, sorted by name.
func (s *Store) ListPackageStates(ctx context.Context) ([]*PackageState, error) {
	names, err := s.ListPackageNames()
	if err != nil {
		return nil, err
	}

	states := make([]*PackageState, 0, len(names))
	for _, name := range names {
		st, err := s.GetPackageState(ctx, name)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

func (s *Store) opRecords(ctx context.Context, pkg string, filter []ops.Op) ([]appops.OpRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT op, mode, last_time, duration_ms, running
		FROM op_records
		WHERE package = ?
		ORDER BY position
	`, pkg)
	if err != nil {
		return nil, fmt.Errorf("failed to get ops for %s: %w", pkg, classify(err))
	}
	defer rows.Close()

	want := opSet(filter)
	var records []appops.OpRecord
	for rows.Next() {
		rec, err := scanOpRecord(rows)
		if err != nil {
			return nil, err
		}
		if want != nil && !want[rec.Op] {
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SwitchMode returns the mode the last scan recorded for pkg's switch group
// sw, taken from the group's running or else most recent record. A group
// without records was at its default mode.
func (s *Store) SwitchMode(ctx context.Context, pkg string, sw ops.Op) (ops.Mode, error) {
	if _, err := s.ApplicationInfo(ctx, pkg); err != nil {
		return ops.ModeDefault, err
	}
	records, err := s.opRecords(ctx, pkg, nil)
	if err != nil {
		return ops.ModeDefault, err
	}

	var best *appops.OpRecord
	for i := range records {
		rec := &records[i]
		if rec.Op.Switch() != sw {
			continue
		}
		if best == nil || (rec.Running && !best.Running) ||
			(rec.Running == best.Running && rec.Time.After(best.Time)) {
			best = rec
		}
	}
	if best == nil {
		return ops.ModeDefault, nil
	}
	return best.Mode, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpRecord(row rowScanner, extra ...any) (appops.OpRecord, error) {
	var op, mode int
	var lastTime sql.NullString
	var durationMS int64
	var running bool

	dest := append([]any{&op, &mode, &lastTime, &durationMS, &running}, extra...)
	if err := row.Scan(dest...); err != nil {
		return appops.OpRecord{}, fmt.Errorf("failed to scan op record: %w", err)
	}

	rec := appops.OpRecord{
		Op:       ops.Op(op),
		Mode:     ops.Mode(mode),
		Duration: time.Duration(durationMS) * time.Millisecond,
		Running:  running,
	}
	if lastTime.Valid && lastTime.String != "" {
		t, err := parseTS(lastTime.String)
		if err != nil {
			return appops.OpRecord{}, fmt.Errorf("failed to parse last_time: %w", err)
		}
		rec.Time = t
	}
	return rec, nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTS(t)
}

func opSet(filter []ops.Op) map[ops.Op]bool {
	if filter == nil {
		return nil
	}
	set := make(map[ops.Op]bool, len(filter))
	for _, op := range filter {
		set[op] = true
	}
	return set
}

// Scan operations

// LastScan returns the most recent scan, or nil if none has run.
func (s *Store) LastScan() (*Scan, error) {
	scans, err := s.ListScans(1)
	if err != nil {
		return nil, err
	}
	if len(scans) == 0 {
		return nil, nil
	}
	return scans[0], nil
}

// ListScans returns up to limit scans, newest first. limit <= 0 returns all.
func (s *Store) ListScans(limit int) ([]*Scan, error) {
	query := `
		SELECT id, device_serial, started_at, finished_at, package_count, op_count, grant_count
		FROM scans
		ORDER BY finished_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", classify(err))
	}
	defer rows.Close()

	var scans []*Scan
	for rows.Next() {
		var scan Scan
		var serial sql.NullString
		var startedAt, finishedAt string
		err := rows.Scan(&scan.ID, &serial, &startedAt, &finishedAt,
			&scan.PackageCount, &scan.OpCount, &scan.GrantCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scan row: %w", err)
		}
		scan.Serial = serial.String
		if scan.StartedAt, err = parseTS(startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse started_at for scan %s: %w", scan.ID, err)
		}
		if scan.FinishedAt, err = parseTS(finishedAt); err != nil {
			return nil, fmt.Errorf("failed to parse finished_at for scan %s: %w", scan.ID, err)
		}
		scans = append(scans, &scan)
	}
	return scans, rows.Err()
}

// GetOpCount returns the number of stored op records.
func (s *Store) GetOpCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM op_records").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get op count: %w", classify(err))
	}
	return count, nil
}

// GetRunningCount returns the number of op records running at scan time.
func (s *Store) GetRunningCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM op_records WHERE running").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get running count: %w", classify(err))
	}
	return count, nil
}

// Override operations

// PutOverride stores or replaces a pending mode change.
func (s *Store) PutOverride(ov appops.Override) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO overrides (package, switch_op, mode, set_at)
		VALUES (?, ?, ?, ?)
	`, ov.Key.PackageName, int(ov.Key.Switch), int(ov.Mode), formatTS(ov.SetAt))
	if err != nil {
		return fmt.Errorf("failed to store override for %s: %w", ov.Key.PackageName, classify(err))
	}
	return nil
}

// ListOverrides returns all pending mode changes, oldest first.
func (s *Store) ListOverrides() ([]appops.Override, error) {
	rows, err := s.db.Query(`
		SELECT package, switch_op, mode, set_at
		FROM overrides
		ORDER BY set_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", classify(err))
	}
	defer rows.Close()

	var out []appops.Override
	for rows.Next() {
		var ov appops.Override
		var switchOp, mode int
		var setAt string
		if err := rows.Scan(&ov.Key.PackageName, &switchOp, &mode, &setAt); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		ov.Key.Switch = ops.Op(switchOp)
		ov.Mode = ops.Mode(mode)
		if ov.SetAt, err = parseTS(setAt); err != nil {
			return nil, fmt.Errorf("failed to parse set_at: %w", err)
		}
		out = append(out, ov)
	}
	return out, rows.Err()
}

// DeleteOverride removes a pending mode change.
func (s *Store) DeleteOverride(key appops.EntryKey) error {
	_, err := s.db.Exec("DELETE FROM overrides WHERE package = ? AND switch_op = ?",
		key.PackageName, int(key.Switch))
	if err != nil {
		return fmt.Errorf("failed to delete override for %s: %w", key.PackageName, classify(err))
	}
	return nil
}

// Snapshot operations

// InsertSnapshot creates a new snapshot record and returns its ID.
func (s *Store) InsertSnapshot(reason string, pkgCount, opCount int, path string) (int64, error) {
	query := `
		INSERT INTO snapshots (created_at, reason, package_count, op_count, snapshot_path)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		formatTS(time.Now()),
		reason,
		pkgCount,
		opCount,
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", classify(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get snapshot ID: %w", err)
	}

	return id, nil
}

// GetSnapshot retrieves a snapshot by ID.
func (s *Store) GetSnapshot(id int64) (*Snapshot, error) {
	query := `
		SELECT id, created_at, reason, package_count, op_count, snapshot_path
		FROM snapshots
		WHERE id = ?
	`

	var snapshot Snapshot
	var createdAt string

	err := s.db.QueryRow(query, id).Scan(
		&snapshot.ID,
		&createdAt,
		&snapshot.Reason,
		&snapshot.PackageCount,
		&snapshot.OpCount,
		&snapshot.SnapshotPath,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %d: %w", id, classify(err))
	}

	snapshot.CreatedAt, err = parseTS(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for snapshot %d: %w", id, err)
	}

	return &snapshot, nil
}

// ListSnapshots returns all snapshots ordered by creation time (newest first).
func (s *Store) ListSnapshots() ([]*Snapshot, error) {
	query := `
		SELECT id, created_at, reason, package_count, op_count, snapshot_path
		FROM snapshots
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", classify(err))
	}
	defer rows.Close()

	var snapshots []*Snapshot
	for rows.Next() {
		var snapshot Snapshot
		var createdAt string

		err := rows.Scan(
			&snapshot.ID,
			&createdAt,
			&snapshot.Reason,
			&snapshot.PackageCount,
			&snapshot.OpCount,
			&snapshot.SnapshotPath,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}

		snapshot.CreatedAt, err = parseTS(createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at for snapshot %d: %w", snapshot.ID, err)
		}

		snapshots = append(snapshots, &snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// DeleteSnapshot removes a snapshot record.
func (s *Store) DeleteSnapshot(id int64) error {
	_, err := s.db.Exec("DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %d: %w", id, classify(err))
	}
	return nil
}
