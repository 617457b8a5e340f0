package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/device"
	"github.com/blackwell-systems/appopsctl/internal/ops"
	"github.com/blackwell-systems/appopsctl/internal/store"
)

type fakeDevice struct {
	packages []device.Package
	infos    map[string]*appops.PackageInfo
	records  map[string][]appops.OpRecord
	mounted  map[string]bool
	fail     string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		infos:   map[string]*appops.PackageInfo{},
		records: map[string][]appops.OpRecord{},
		mounted: map[string]bool{},
	}
}

func (f *fakeDevice) add(name string, uid int, mounted bool, recs ...appops.OpRecord) {
	f.packages = append(f.packages, device.Package{Name: name, UID: uid})
	f.infos[name] = &appops.PackageInfo{
		App: appops.AppInfo{PackageName: name, UID: uid, SourceDir: "/data/app/" + name + "/base.apk"},
		RequestedPermissions: []appops.RequestedPermission{
			{Name: "android.permission.CAMERA", Granted: true},
		},
	}
	f.records[name] = recs
	f.mounted[name] = mounted
}

func (f *fakeDevice) ListPackages(ctx context.Context) ([]device.Package, error) {
	return f.packages, nil
}

func (f *fakeDevice) PackageInfo(ctx context.Context, pkg string) (*appops.PackageInfo, error) {
	if pkg == f.fail {
		return nil, errors.New("adb: device offline")
	}
	info, ok := f.infos[pkg]
	if !ok {
		return nil, fmt.Errorf("%s: %w", pkg, appops.ErrPackageNotFound)
	}
	return info, nil
}

func (f *fakeDevice) PackageOps(ctx context.Context, pkg string) ([]appops.OpRecord, error) {
	return f.records[pkg], nil
}

func (f *fakeDevice) CheckPresent(ctx context.Context, app appops.AppInfo) bool {
	return f.mounted[app.PackageName]
}

func (f *fakeDevice) LoadLabel(app appops.AppInfo) string { return "Label " + app.PackageName }

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.CreateSchema(); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScanDevice(t *testing.T) {
	st := setupTestStore(t)
	dev := newFakeDevice()
	dev.add("com.a", 10001, true, appops.OpRecord{Op: ops.Camera, Mode: ops.ModeAllowed, Time: time.Now().Add(-time.Minute)})
	dev.add("com.b", 10002, false)
	dev.packages = append(dev.packages, device.Package{Name: "com.gone", UID: 10003})

	var mu sync.Mutex
	var calls int
	sc := New(st, dev, 2)
	sc.OnProgress = func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if total != 3 {
			t.Errorf("progress total = %d, want 3", total)
		}
	}

	summary, err := sc.ScanDevice(context.Background(), "emulator-5554")
	if err != nil {
		t.Fatalf("ScanDevice failed: %v", err)
	}

	if summary.Scan.PackageCount != 2 || summary.Scan.OpCount != 1 || summary.Scan.GrantCount != 2 {
		t.Errorf("unexpected scan counts %+v", summary.Scan)
	}
	if summary.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", summary.Skipped)
	}
	if summary.Unmounted != 1 {
		t.Errorf("Unmounted = %d, want 1", summary.Unmounted)
	}
	if calls != 3 {
		t.Errorf("expected 3 progress callbacks, got %d", calls)
	}

	a, err := st.GetPackageState(context.Background(), "com.a")
	if err != nil {
		t.Fatalf("GetPackageState failed: %v", err)
	}
	if a.Label != "Label com.a" || !a.Present {
		t.Errorf("unexpected stored state %+v", a)
	}
	b, err := st.GetPackageState(context.Background(), "com.b")
	if err != nil {
		t.Fatalf("GetPackageState failed: %v", err)
	}
	if b.Label != "" || b.Present {
		t.Errorf("unmounted package must not get a label, got %+v", b)
	}

	last, err := st.LastScan()
	if err != nil || last == nil || last.Serial != "emulator-5554" {
		t.Errorf("expected scan recorded for serial, got %+v, %v", last, err)
	}
}

func TestScanDevice_DeviceErrorAborts(t *testing.T) {
	st := setupTestStore(t)
	dev := newFakeDevice()
	dev.add("com.a", 10001, true)
	dev.fail = "com.a"

	if _, err := New(st, dev, 1).ScanDevice(context.Background(), ""); err == nil {
		t.Fatal("expected device error to abort the scan")
	}

	last, err := st.LastScan()
	if err != nil {
		t.Fatalf("LastScan failed: %v", err)
	}
	if last != nil {
		t.Error("failed scan must not be recorded")
	}
}
