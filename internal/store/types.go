package store

import (
	"time"

	"github.com/blackwell-systems/appopsctl/internal/appops"
)

// PackageState is everything a scan records about one package.
type PackageState struct {
	Info    appops.PackageInfo
	Present bool   // APK readable at scan time
	Label   string // display label resolved at scan time
	Ops     []appops.OpRecord
}

// DeviceState is the full result of one device scan.
type DeviceState struct {
	Serial     string
	StartedAt  time.Time
	FinishedAt time.Time
	Packages   []PackageState
}

// Scan records one completed device scan.
type Scan struct {
	ID           string
	Serial       string
	StartedAt    time.Time
	FinishedAt   time.Time
	PackageCount int
	OpCount      int
	GrantCount   int
}

// Snapshot represents a point-in-time export of the device's op modes.
type Snapshot struct {
	ID           int64
	CreatedAt    time.Time
	Reason       string
	PackageCount int
	OpCount      int
	SnapshotPath string
}
