package snapshots

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/appopsctl/internal/ops"
	"github.com/blackwell-systems/appopsctl/internal/store"
)

// Format identifies appopsctl snapshot files.
const Format = "appopsctl-snapshot"

// FormatVersion is the snapshot file layout version.
const FormatVersion = 1

// SnapshotData represents the JSON structure stored in snapshot files.
type SnapshotData struct {
	Format    string             `json:"format"`
	Version   int                `json:"version"`
	CreatedAt time.Time          `json:"created_at"`
	Reason    string             `json:"reason,omitempty"`
	Serial    string             `json:"serial,omitempty"`
	Packages  []*PackageSnapshot `json:"packages"`
}

// PackageSnapshot represents a package in a snapshot file.
type PackageSnapshot struct {
	Name        string               `json:"name"`
	UID         int                  `json:"uid"`
	SourceDir   string               `json:"source_dir,omitempty"`
	Label       string               `json:"label,omitempty"`
	Present     bool                 `json:"present"`
	Permissions []PermissionSnapshot `json:"permissions,omitempty"`
	Ops         []OpSnapshot         `json:"ops,omitempty"`
}

// PermissionSnapshot is one requested permission.
type PermissionSnapshot struct {
	Name    string `json:"name"`
	Granted bool   `json:"granted"`
}

// OpSnapshot is one op record. Op and Mode use the appops shell spellings.
type OpSnapshot struct {
	Op         string     `json:"op"`
	Mode       string     `json:"mode"`
	Time       *time.Time `json:"time,omitempty"`
	DurationMS int64      `json:"duration_ms,omitempty"`
	Running    bool       `json:"running,omitempty"`
}

// ModeSetter applies an op mode on the device.
type ModeSetter interface {
	SetMode(ctx context.Context, pkg string, op ops.Op, mode ops.Mode) error
}

// Manager manages snapshot creation, restoration, import, and cleanup.
type Manager struct {
	store       *store.Store
	snapshotDir string
	device      ModeSetter
	log         zerolog.Logger
}

// New creates a new snapshot Manager. device may be nil when restores are
// not needed.
func New(store *store.Store, snapshotDir string, device ModeSetter) *Manager {
	return &Manager{
		store:       store,
		snapshotDir: snapshotDir,
		device:      device,
		log:         zerolog.Nop(),
	}
}

// WithLogger sets the logger.
func (m *Manager) WithLogger(l zerolog.Logger) *Manager {
	m.log = l
	return m
}
