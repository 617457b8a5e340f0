package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/config"
	"github.com/blackwell-systems/appopsctl/internal/device"
	"github.com/blackwell-systems/appopsctl/internal/logging"
	"github.com/blackwell-systems/appopsctl/internal/ops"
	"github.com/blackwell-systems/appopsctl/internal/store"
)

// deviceTimeout bounds single adb commands issued directly by a command.
const deviceTimeout = 15 * time.Second

// newRunner creates the adb runner; tests replace it with a scripted fake.
var newRunner = func(cfg *config.Config) device.Runner {
	return &device.ExecRunner{ADB: cfg.ADB, Serial: cfg.Serial}
}

// openStore opens the configured database, creating it and its schema if
// needed.
func openStore() (*store.Store, error) {
	if dir := filepath.Dir(settings.DB); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	st, err := store.New(settings.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}
	return st, nil
}

// newDeviceClient creates an adb client for the configured device.
func newDeviceClient() (*device.Client, error) {
	client, err := device.NewClient(newRunner(settings), settings.Workers)
	if err != nil {
		return nil, err
	}
	return client.WithLabels(settings.Labels).WithLogger(logging.For("device")), nil
}

// dataFile returns path name inside the data directory, creating the
// directory if needed.
func dataFile(name string) (string, error) {
	dir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return filepath.Join(dir, name), nil
}

// requireScan returns the last scan, or an error telling the user to scan.
func requireScan(st *store.Store) (*store.Scan, error) {
	last, err := st.LastScan()
	if err != nil {
		return nil, fmt.Errorf("failed to read last scan: %w", err)
	}
	if last == nil {
		return nil, fmt.Errorf("no device state recorded yet (run 'appopsctl scan' first)")
	}
	return last, nil
}

// loadOverrides fills an overlay with the pending overrides kept in st.
func loadOverrides(st *store.Store) (*appops.Overrides, error) {
	stored, err := st.ListOverrides()
	if err != nil {
		return nil, fmt.Errorf("failed to load pending overrides: %w", err)
	}
	overrides := appops.NewOverrides()
	for _, ov := range stored {
		overrides.Put(ov)
	}
	return overrides, nil
}

// reconcileOverrides drops overrides the load at loadedAt superseded, both
// from the overlay and from st, and reports the ones the device did not
// confirm.
func reconcileOverrides(w io.Writer, st *store.Store, overrides *appops.Overrides, entries []*appops.Entry, loadedAt time.Time) error {
	dropped, diverged := overrides.Reconcile(entries, loadedAt)
	for _, ov := range dropped {
		if err := st.DeleteOverride(ov.Key); err != nil {
			return fmt.Errorf("failed to delete override: %w", err)
		}
	}
	printDivergences(w, diverged)
	if len(dropped) > 0 {
		log := logging.For("app")
		log.Debug().Int("dropped", len(dropped)).Int("diverged", len(diverged)).
			Msg("overrides reconciled")
	}
	return nil
}

// settleOverrides drops the stored overrides that the stored load at
// loadedAt superseded and returns the ones it contradicts. A scan or import
// records every switch group of every installed package, so each override
// is checked against the mode stored for its group. Overrides for packages
// no longer installed are dropped silently.
func settleOverrides(ctx context.Context, st *store.Store, loadedAt time.Time) ([]appops.Divergence, error) {
	overrides, err := loadOverrides(st)
	if err != nil {
		return nil, err
	}

	var lookupErr error
	dropped, diverged := overrides.Settle(loadedAt, func(ov appops.Override) (ops.Mode, bool) {
		mode, err := st.SwitchMode(ctx, ov.Key.PackageName, ov.Key.Switch)
		switch {
		case errors.Is(err, appops.ErrPackageNotFound):
			return ov.Mode, true
		case err != nil:
			if lookupErr == nil {
				lookupErr = err
			}
			return ov.Mode, false
		}
		return mode, true
	})
	for _, ov := range dropped {
		if err := st.DeleteOverride(ov.Key); err != nil {
			return diverged, fmt.Errorf("failed to delete override: %w", err)
		}
	}
	if lookupErr != nil {
		return diverged, fmt.Errorf("failed to check pending overrides: %w", lookupErr)
	}
	return diverged, nil
}

func printDivergences(w io.Writer, diverged []appops.Divergence) {
	for _, d := range diverged {
		fmt.Fprintf(w, "⚠ %s %s: requested %s, device reports %s\n",
			d.Key.PackageName, d.Key.Switch.Name(), d.Mode, d.Actual)
	}
}

// resolveApp finds a package in the last scan, falling back to the device
// when it was installed since.
func resolveApp(ctx context.Context, st *store.Store, client *device.Client, pkg string) (appops.AppInfo, error) {
	info, err := st.ApplicationInfo(ctx, pkg)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, appops.ErrPackageNotFound) || client == nil {
		return appops.AppInfo{}, err
	}
	return client.ApplicationInfo(ctx, pkg)
}
