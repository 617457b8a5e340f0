package snapshots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/gjson"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/ops"
	"github.com/blackwell-systems/appopsctl/internal/store"
)

// ErrNotSnapshot is returned when a file is not an appopsctl snapshot.
var ErrNotSnapshot = errors.New("not an appopsctl snapshot")

// RestoreResult reports the outcome of a restore.
type RestoreResult struct {
	Applied  int
	Skipped  int // packages no longer installed
	Failures []string
}

// RestoreSnapshot re-applies the op modes recorded in a snapshot. Each
// switch group is set once per package, using the mode of the group's first
// recorded op. Per-op failures are collected; the restore continues.
func (m *Manager) RestoreSnapshot(ctx context.Context, id int64) (*RestoreResult, error) {
	if m.device == nil {
		return nil, fmt.Errorf("restore requires a device connection")
	}

	snapshot, err := m.store.GetSnapshot(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	data, err := loadSnapshotFile(snapshot.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot file: %w", err)
	}

	result := &RestoreResult{}
	for _, pkg := range data.Packages {
		seen := make(map[ops.Op]bool)
		for _, o := range pkg.Ops {
			rec, err := o.record()
			if err != nil {
				result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", pkg.Name, err))
				continue
			}
			sw := rec.Op.Switch()
			if seen[sw] {
				continue
			}
			seen[sw] = true

			err = m.device.SetMode(ctx, pkg.Name, rec.Op, rec.Mode)
			if errors.Is(err, appops.ErrPackageNotFound) {
				m.log.Warn().Str("package", pkg.Name).Msg("package not installed, skipping restore")
				result.Skipped++
				break
			}
			if err != nil {
				m.log.Error().Err(err).Str("package", pkg.Name).Str("op", o.Op).Msg("failed to restore op mode")
				result.Failures = append(result.Failures, fmt.Sprintf("%s %s: %v", pkg.Name, o.Op, err))
				continue
			}
			result.Applied++
		}
	}

	if len(result.Failures) > 0 {
		return result, fmt.Errorf("restored %d op modes, %d failures: %v",
			result.Applied, len(result.Failures), result.Failures)
	}
	return result, nil
}

// ImportFile loads a snapshot file as the store's current device state, so
// screens can be built from a capture taken elsewhere.
func (m *Manager) ImportFile(ctx context.Context, path string) (*store.Scan, error) {
	data, err := loadSnapshotFile(path)
	if err != nil {
		return nil, err
	}

	state := &store.DeviceState{
		Serial:     data.Serial,
		StartedAt:  data.CreatedAt,
		FinishedAt: time.Now(),
	}
	for _, pkg := range data.Packages {
		st, err := pkg.toPackageState()
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot %s: %w", path, err)
		}
		state.Packages = append(state.Packages, st)
	}

	scan, err := m.store.ReplaceDeviceState(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to import snapshot: %w", err)
	}
	m.log.Info().Str("path", path).Str("scan", scan.ID).Int("packages", scan.PackageCount).Msg("snapshot imported")
	return scan, nil
}

// IsSnapshot reports whether data looks like an appopsctl snapshot without
// decoding it fully.
func IsSnapshot(data []byte) bool {
	if !gjson.ValidBytes(data) {
		return false
	}
	return gjson.GetBytes(data, "format").String() == Format
}

// loadSnapshotFile reads and parses a snapshot JSON file.
func loadSnapshotFile(path string) (*SnapshotData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	if !IsSnapshot(raw) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotSnapshot)
	}
	if v := gjson.GetBytes(raw, "version").Int(); v > FormatVersion {
		return nil, fmt.Errorf("%s: snapshot version %d is newer than supported version %d", path, v, FormatVersion)
	}

	var data SnapshotData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot JSON: %w", err)
	}

	return &data, nil
}

func (o OpSnapshot) record() (appops.OpRecord, error) {
	op, err := ops.Parse(o.Op)
	if err != nil {
		return appops.OpRecord{}, err
	}
	mode, err := ops.ParseMode(o.Mode)
	if err != nil {
		return appops.OpRecord{}, err
	}
	rec := appops.OpRecord{
		Op:       op,
		Mode:     mode,
		Duration: time.Duration(o.DurationMS) * time.Millisecond,
		Running:  o.Running,
	}
	if o.Time != nil {
		rec.Time = *o.Time
	}
	return rec, nil
}
