// Package scanner captures a device's packages, permission grants and op
// records and persists them as the store's current device state.
package scanner

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/device"
	"github.com/blackwell-systems/appopsctl/internal/store"
)

// Device is the subset of device.Client a scan needs.
type Device interface {
	ListPackages(ctx context.Context) ([]device.Package, error)
	PackageInfo(ctx context.Context, pkg string) (*appops.PackageInfo, error)
	PackageOps(ctx context.Context, pkg string) ([]appops.OpRecord, error)
	CheckPresent(ctx context.Context, app appops.AppInfo) bool
	LoadLabel(app appops.AppInfo) string
}

// Scanner copies device state into the store.
type Scanner struct {
	store   *store.Store
	device  Device
	workers int
	log     zerolog.Logger

	// OnProgress, if set, is called after each package is captured.
	OnProgress func(done, total int)
}

// New creates a new Scanner instance with the given store and device.
func New(store *store.Store, dev Device, workers int) *Scanner {
	if workers <= 0 {
		workers = device.DefaultWorkers
	}
	return &Scanner{store: store, device: dev, workers: workers, log: zerolog.Nop()}
}

// WithLogger sets the logger.
func (s *Scanner) WithLogger(l zerolog.Logger) *Scanner {
	s.log = l
	return s
}
