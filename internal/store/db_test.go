package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/ops"
)

var baseTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

// Helper function to create an in-memory store for testing
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.CreateSchema(); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testDeviceState() *DeviceState {
	return &DeviceState{
		Serial:     "emulator-5554",
		StartedAt:  baseTime.Add(-time.Minute),
		FinishedAt: baseTime,
		Packages: []PackageState{
			{
				Info: appops.PackageInfo{
					App: appops.AppInfo{PackageName: "com.b", UID: 10002, SourceDir: "/data/app/com.b/base.apk"},
					RequestedPermissions: []appops.RequestedPermission{
						{Name: "android.permission.CAMERA", Granted: true},
						{Name: "android.permission.READ_CONTACTS", Granted: false},
					},
				},
				Present: true,
				Label:   "Bravo",
				Ops: []appops.OpRecord{
					{Op: ops.RecordAudio, Mode: ops.ModeAllowed, Time: baseTime.Add(-time.Hour), Duration: 1500 * time.Millisecond},
					{Op: ops.Camera, Mode: ops.ModeIgnored},
				},
			},
			{
				Info: appops.PackageInfo{
					App: appops.AppInfo{PackageName: "com.a", UID: 10001, SourceDir: "/data/app/com.a/base.apk"},
				},
				Present: false,
				Label:   "Alpha",
				Ops: []appops.OpRecord{
					{Op: ops.Camera, Mode: ops.ModeAllowed, Time: baseTime.Add(-time.Minute), Running: true},
				},
			},
		},
	}
}

func seedStore(t *testing.T, s *Store) *Scan {
	t.Helper()
	scan, err := s.ReplaceDeviceState(context.Background(), testDeviceState())
	if err != nil {
		t.Fatalf("ReplaceDeviceState failed: %v", err)
	}
	return scan
}

func TestListPackageNames_NoSchema_ReturnsErrNotInitialized(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	// Do NOT call CreateSchema; simulate uninitialized database.
	_, err = s.ListPackageNames()
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ListPackageNames() error = %v; want ErrNotInitialized", err)
	}

	_, err = s.ListOverrides()
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ListOverrides() error = %v; want ErrNotInitialized", err)
	}
}

func TestErrNotInitialized_ErrorMessage(t *testing.T) {
	if !strings.Contains(ErrNotInitialized.Error(), "appopsctl scan") {
		t.Errorf("ErrNotInitialized message %q should mention 'appopsctl scan'", ErrNotInitialized.Error())
	}
}

func TestCreateSchema_Idempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateSchema(); err != nil {
		t.Errorf("second CreateSchema failed: %v", err)
	}
}

func TestReplaceDeviceState(t *testing.T) {
	s := newTestStore(t)
	scan := seedStore(t, s)

	if scan.ID == "" {
		t.Error("expected scan ID to be set")
	}
	if scan.PackageCount != 2 || scan.OpCount != 3 || scan.GrantCount != 1 {
		t.Errorf("unexpected scan counts %+v", scan)
	}

	names, err := s.ListPackageNames()
	if err != nil {
		t.Fatalf("ListPackageNames failed: %v", err)
	}
	if len(names) != 2 || names[0] != "com.a" || names[1] != "com.b" {
		t.Errorf("names = %v, want [com.a com.b]", names)
	}

	// A second scan replaces, not appends.
	state := testDeviceState()
	state.Packages = state.Packages[:1]
	state.FinishedAt = baseTime.Add(time.Hour)
	if _, err := s.ReplaceDeviceState(context.Background(), state); err != nil {
		t.Fatalf("second ReplaceDeviceState failed: %v", err)
	}
	names, _ = s.ListPackageNames()
	if len(names) != 1 || names[0] != "com.b" {
		t.Errorf("names after rescan = %v, want [com.b]", names)
	}
	count, err := s.GetOpCount()
	if err != nil {
		t.Fatalf("GetOpCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("op count after rescan = %d, want 2", count)
	}
}

func TestGetPackageState_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s)

	st, err := s.GetPackageState(context.Background(), "com.b")
	if err != nil {
		t.Fatalf("GetPackageState failed: %v", err)
	}
	if !st.Present || st.Label != "Bravo" || st.Info.App.UID != 10002 {
		t.Errorf("unexpected package state %+v", st)
	}
	if len(st.Info.RequestedPermissions) != 2 || !st.Info.RequestedPermissions[0].Granted {
		t.Errorf("unexpected permissions %+v", st.Info.RequestedPermissions)
	}
	if len(st.Ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(st.Ops))
	}

	audio := st.Ops[0]
	if audio.Op != ops.RecordAudio || !audio.Time.Equal(baseTime.Add(-time.Hour)) || audio.Duration != 1500*time.Millisecond {
		t.Errorf("unexpected first op %+v", audio)
	}
	cam := st.Ops[1]
	if cam.Op != ops.Camera || cam.Mode != ops.ModeIgnored || cam.Executed() {
		t.Errorf("expected never-executed ignored camera, got %+v", cam)
	}

	_, err = s.GetPackageState(context.Background(), "com.nope")
	if !errors.Is(err, appops.ErrPackageNotFound) {
		t.Errorf("expected ErrPackageNotFound, got %v", err)
	}
}

func TestListScans(t *testing.T) {
	s := newTestStore(t)

	last, err := s.LastScan()
	if err != nil {
		t.Fatalf("LastScan failed: %v", err)
	}
	if last != nil {
		t.Errorf("expected no scan, got %+v", last)
	}

	first := seedStore(t, s)
	state := testDeviceState()
	state.FinishedAt = baseTime.Add(time.Hour)
	second, err := s.ReplaceDeviceState(context.Background(), state)
	if err != nil {
		t.Fatalf("ReplaceDeviceState failed: %v", err)
	}

	last, err = s.LastScan()
	if err != nil {
		t.Fatalf("LastScan failed: %v", err)
	}
	if last.ID != second.ID || !last.FinishedAt.Equal(second.FinishedAt) {
		t.Errorf("LastScan = %+v, want %+v", last, second)
	}

	all, err := s.ListScans(0)
	if err != nil {
		t.Fatalf("ListScans failed: %v", err)
	}
	if len(all) != 2 || all[1].ID != first.ID {
		t.Errorf("expected newest-first scans, got %+v", all)
	}
}

func TestOverrides(t *testing.T) {
	s := newTestStore(t)

	ov := appops.Override{
		Key:   appops.EntryKey{PackageName: "com.a", Switch: ops.CoarseLocation},
		Mode:  ops.ModeIgnored,
		SetAt: baseTime,
	}
	if err := s.PutOverride(ov); err != nil {
		t.Fatalf("PutOverride failed: %v", err)
	}
	ov.Mode = ops.ModeErrored
	if err := s.PutOverride(ov); err != nil {
		t.Fatalf("PutOverride (replace) failed: %v", err)
	}

	list, err := s.ListOverrides()
	if err != nil {
		t.Fatalf("ListOverrides failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 override, got %d", len(list))
	}
	if list[0].Key != ov.Key || list[0].Mode != ops.ModeErrored || !list[0].SetAt.Equal(baseTime) {
		t.Errorf("unexpected override %+v", list[0])
	}

	if err := s.DeleteOverride(ov.Key); err != nil {
		t.Fatalf("DeleteOverride failed: %v", err)
	}
	list, _ = s.ListOverrides()
	if len(list) != 0 {
		t.Errorf("expected overrides cleared, got %d", len(list))
	}
}

func TestSnapshots(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.InsertSnapshot("before reset", 2, 3, "/tmp/1.json")
	if err != nil {
		t.Fatalf("InsertSnapshot failed: %v", err)
	}
	id2, err := s.InsertSnapshot("manual", 1, 1, "/tmp/2.json")
	if err != nil {
		t.Fatalf("InsertSnapshot failed: %v", err)
	}

	snap, err := s.GetSnapshot(id1)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if snap.Reason != "before reset" || snap.PackageCount != 2 || snap.OpCount != 3 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	list, err := s.ListSnapshots()
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != id2 {
		t.Errorf("expected newest snapshot first, got %+v", list)
	}

	if err := s.DeleteSnapshot(id1); err != nil {
		t.Fatalf("DeleteSnapshot failed: %v", err)
	}
	if _, err := s.GetSnapshot(id1); err == nil {
		t.Error("expected error for deleted snapshot")
	}
}
