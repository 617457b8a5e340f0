package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/ops"
)

var testTag = language.English

// fakeRunner replays scripted adb output keyed by the joined arguments.
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeRunner) on(cmd, output string) {
	f.outputs[cmd] = output
}

func (f *fakeRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return []byte(f.outputs[key]), err
	}
	out, ok := f.outputs[key]
	if !ok {
		return nil, fmt.Errorf("unexpected command: adb %s", key)
	}
	return []byte(out), nil
}

func (f *fakeRunner) count(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == cmd {
			n++
		}
	}
	return n
}

func setupTestClient(t *testing.T) (*Client, *fakeRunner) {
	t.Helper()
	runner := newFakeRunner()
	runner.on("shell pm list packages -U", "package:com.b uid:10002\npackage:com.a uid:10001\npackage:com.c uid:10003\n")
	runner.on("shell cmd appops get com.a", "CAMERA: allow; time=+5m ago\nVIBRATE: allow; time=+1m ago\n")
	runner.on("shell cmd appops get com.b", "No operations.\n")
	runner.on("shell cmd appops get com.c", "COARSE_LOCATION: ignore; time=+2h ago\n")
	runner.on("shell dumpsys package com.a", `Packages:
  Package [com.a] (1):
    userId=10001
    codePath=/data/app/com.a-1
    requested permissions:
      android.permission.CAMERA
    runtime permissions:
      android.permission.CAMERA: granted=true
`)
	runner.on("shell dumpsys package com.b", `Packages:
  Package [com.b] (2):
    userId=10002
    codePath=/data/app/com.b-1
    requested permissions:
      android.permission.CAMERA
    runtime permissions:
      android.permission.CAMERA: granted=false
`)
	runner.on("shell dumpsys package com.c", "Unable to find package: com.c\n")

	client, err := NewClient(runner, 2)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	client.now = func() time.Time { return testNow }
	return client, runner
}

func TestClient_PackagesForOps(t *testing.T) {
	client, _ := setupTestClient(t)

	got, err := client.PackagesForOps(context.Background(), []ops.Op{ops.Camera, ops.CoarseLocation})
	if err != nil {
		t.Fatalf("PackagesForOps failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 packages with usage, got %d", len(got))
	}
	if got[0].PackageName != "com.a" || got[1].PackageName != "com.c" {
		t.Errorf("expected name order com.a, com.c; got %s, %s", got[0].PackageName, got[1].PackageName)
	}
	if len(got[0].Ops) != 1 || got[0].Ops[0].Op != ops.Camera {
		t.Errorf("expected VIBRATE filtered out, got %+v", got[0].Ops)
	}
	if got[0].UID != 10001 {
		t.Errorf("UID = %d, want 10001", got[0].UID)
	}
}

func TestClient_OpsForPackage(t *testing.T) {
	client, runner := setupTestClient(t)
	runner.on("shell cmd appops get com.gone", "Error: Unknown package: com.gone\n")

	got, err := client.OpsForPackage(context.Background(), 10001, "com.a", nil)
	if err != nil {
		t.Fatalf("OpsForPackage failed: %v", err)
	}
	if len(got) != 1 || len(got[0].Ops) != 2 {
		t.Fatalf("expected all ops of com.a, got %+v", got)
	}

	_, err = client.OpsForPackage(context.Background(), 1, "com.gone", nil)
	if !errors.Is(err, appops.ErrPackageNotFound) {
		t.Errorf("expected ErrPackageNotFound, got %v", err)
	}
}

func TestClient_PackagesHoldingPermissions(t *testing.T) {
	client, _ := setupTestClient(t)

	got, err := client.PackagesHoldingPermissions(context.Background(), []string{"android.permission.CAMERA"})
	if err != nil {
		t.Fatalf("PackagesHoldingPermissions failed: %v", err)
	}
	if len(got) != 1 || got[0].App.PackageName != "com.a" {
		t.Fatalf("expected only com.a (granted), got %+v", got)
	}
	if got[0].App.SourceDir != "/data/app/com.a-1/base.apk" {
		t.Errorf("SourceDir = %q", got[0].App.SourceDir)
	}
}

func TestClient_PackageInfoCached(t *testing.T) {
	client, runner := setupTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.ApplicationInfo(ctx, "com.a"); err != nil {
			t.Fatalf("ApplicationInfo failed: %v", err)
		}
	}
	if n := runner.count("shell dumpsys package com.a"); n != 1 {
		t.Errorf("expected one dumpsys call, got %d", n)
	}

	client.Invalidate("com.a")
	if _, err := client.ApplicationInfo(ctx, "com.a"); err != nil {
		t.Fatalf("ApplicationInfo failed: %v", err)
	}
	if n := runner.count("shell dumpsys package com.a"); n != 2 {
		t.Errorf("expected a refetch after Invalidate, got %d calls", n)
	}

	_, err := client.ApplicationInfo(ctx, "com.c")
	if !errors.Is(err, appops.ErrPackageNotFound) {
		t.Errorf("expected ErrPackageNotFound for com.c, got %v", err)
	}
}

func TestClient_AssetLoader(t *testing.T) {
	client, runner := setupTestClient(t)
	client.WithLabels(map[string]string{"com.a": "Alpha"})
	runner.on("shell ls /data/app/com.a-1/base.apk", "/data/app/com.a-1/base.apk\n")
	runner.errs["shell ls /data/app/com.b-1/base.apk"] = errors.New("exit status 1")

	a := appops.AppInfo{PackageName: "com.a", SourceDir: "/data/app/com.a-1/base.apk"}
	b := appops.AppInfo{PackageName: "com.example.notes", SourceDir: "/data/app/com.b-1/base.apk"}

	if !client.Present(a) {
		t.Error("expected com.a present")
	}
	if client.Present(b) {
		t.Error("expected com.b missing")
	}
	if client.Present(appops.AppInfo{PackageName: "x"}) {
		t.Error("expected app without source dir to be missing")
	}

	if got := client.LoadLabel(a); got != "Alpha" {
		t.Errorf("LoadLabel = %q, want configured Alpha", got)
	}
	if got := client.LoadLabel(b); got != "Example Notes" {
		t.Errorf("LoadLabel = %q, want derived label", got)
	}
	if icon := client.LoadIcon(a); icon.Default || icon.Ref != "apk:/data/app/com.a-1/base.apk" {
		t.Errorf("unexpected icon %+v", icon)
	}
}

func TestClient_SetMode(t *testing.T) {
	client, runner := setupTestClient(t)
	runner.on("shell cmd appops set com.a CAMERA ignore", "")
	runner.on("shell cmd appops set com.gone CAMERA ignore", "Error: Unknown package: com.gone\n")

	ctx := context.Background()
	if err := client.SetMode(ctx, "com.a", ops.Camera, ops.ModeIgnored); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if runner.count("shell cmd appops set com.a CAMERA ignore") != 1 {
		t.Error("expected appops set to run once")
	}

	err := client.SetMode(ctx, "com.gone", ops.Camera, ops.ModeIgnored)
	if !errors.Is(err, appops.ErrPackageNotFound) {
		t.Errorf("expected ErrPackageNotFound, got %v", err)
	}

	if err := client.SetMode(ctx, "com.a", ops.Op(999), ops.ModeIgnored); err == nil {
		t.Error("expected error for unknown op")
	}
}

func TestClient_CheckStaleness(t *testing.T) {
	client, _ := setupTestClient(t)

	n, err := client.CheckStaleness(context.Background(), []string{"com.a", "com.b"})
	if err != nil {
		t.Fatalf("CheckStaleness failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 new package, got %d", n)
	}

	offline, err := NewClient(newFakeRunner(), 1)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if n, err := offline.CheckStaleness(context.Background(), nil); n != 0 || err != nil {
		t.Errorf("expected silent (0, nil) when device unreachable, got (%d, %v)", n, err)
	}
}

func TestClient_BuildStateEndToEnd(t *testing.T) {
	client, runner := setupTestClient(t)
	runner.on("shell ls /data/app/com.a-1/base.apk", "/data/app/com.a-1/base.apk\n")

	state := appops.New(client, client, client)
	entries, err := state.BuildState(context.Background(), ops.MediaTemplate, 0, "", appops.RecencyComparator(testTag))
	if err != nil {
		t.Fatalf("BuildState failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected com.a usage merged into one entry, got %d", len(entries))
	}
	e := entries[0]
	if e.App().PackageName() != "com.a" || e.NumOps() != 2 || !e.Contains(ops.Camera) {
		t.Errorf("unexpected entry %s: %s", e.App().PackageName(), e.SummaryText())
	}
	if e.PrimaryOp() != ops.Vibrate {
		t.Errorf("expected most recent op first, got %s", e.PrimaryOp())
	}
	if e.App().Label() != "A" {
		t.Errorf("label = %q, want derived %q", e.App().Label(), "A")
	}
	if n := runner.count("shell ls /data/app/com.a-1/base.apk"); n != 1 {
		t.Errorf("expected one presence check for com.a, got %d", n)
	}
}

func TestClient_PresenceCached(t *testing.T) {
	client, runner := setupTestClient(t)
	runner.on("shell ls /data/app/com.a-1/base.apk", "/data/app/com.a-1/base.apk\n")
	ctx := context.Background()

	info, err := client.PackageInfo(ctx, "com.a")
	if err != nil {
		t.Fatalf("PackageInfo failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if !client.CheckPresent(ctx, info.App) || !client.Present(info.App) {
			t.Fatal("expected com.a present")
		}
	}
	if n := runner.count("shell ls /data/app/com.a-1/base.apk"); n != 1 {
		t.Errorf("expected one ls call, got %d", n)
	}

	client.Invalidate("com.a")
	client.CheckPresent(ctx, info.App)
	if n := runner.count("shell ls /data/app/com.a-1/base.apk"); n != 2 {
		t.Errorf("expected a recheck after Invalidate, got %d calls", n)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	client.Purge()
	client.CheckPresent(cancelled, info.App)
	client.CheckPresent(ctx, info.App)
	if n := runner.count("shell ls /data/app/com.a-1/base.apk"); n != 4 {
		t.Errorf("expected a cancelled check not to be cached, got %d calls", n)
	}
}
