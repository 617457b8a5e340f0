package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/store"
)

// Summary describes a completed scan.
type Summary struct {
	Scan      *store.Scan
	Skipped   int // packages uninstalled while scanning
	Unmounted int // packages whose APK was not readable
	Duration  time.Duration
}

// ScanDevice lists every package, captures its permissions and op records
// with bounded parallelism, and replaces the stored device state in one
// transaction. Packages that disappear mid-scan are skipped.
func (s *Scanner) ScanDevice(ctx context.Context, serial string) (*Summary, error) {
	started := time.Now()

	packages, err := s.device.ListPackages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list installed packages: %w", err)
	}

	states := make([]*store.PackageState, len(packages))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, pkg := range packages {
		i, pkg := i, pkg
		g.Go(func() error {
			st, err := s.capture(gctx, pkg.Name)
			if err != nil {
				return err
			}
			states[i] = st

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			if s.OnProgress != nil {
				s.OnProgress(n, len(packages))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{}
	state := &store.DeviceState{Serial: serial, StartedAt: started}
	for _, st := range states {
		if st == nil {
			summary.Skipped++
			continue
		}
		if !st.Present {
			summary.Unmounted++
		}
		state.Packages = append(state.Packages, *st)
	}
	state.FinishedAt = time.Now()

	scan, err := s.store.ReplaceDeviceState(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to store scan: %w", err)
	}

	summary.Scan = scan
	summary.Duration = state.FinishedAt.Sub(started)
	s.log.Info().
		Str("scan", scan.ID).
		Int("packages", scan.PackageCount).
		Int("ops", scan.OpCount).
		Int("grants", scan.GrantCount).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.Duration).
		Msg("device scan stored")
	return summary, nil
}

// capture returns nil, nil for a package that vanished during the scan.
func (s *Scanner) capture(ctx context.Context, pkg string) (*store.PackageState, error) {
	info, err := s.device.PackageInfo(ctx, pkg)
	if errors.Is(err, appops.ErrPackageNotFound) {
		s.log.Warn().Str("package", pkg).Msg("package disappeared during scan")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read package %s: %w", pkg, err)
	}

	records, err := s.device.PackageOps(ctx, pkg)
	if errors.Is(err, appops.ErrPackageNotFound) {
		s.log.Warn().Str("package", pkg).Msg("package disappeared during scan")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ops for %s: %w", pkg, err)
	}

	st := &store.PackageState{Info: *info, Ops: records}
	st.Present = s.device.CheckPresent(ctx, info.App)
	if st.Present {
		st.Label = s.device.LoadLabel(info.App)
	}
	return st, nil
}
