package device

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/ops"
)

// durationPartRE matches one component of an Android formatted duration
// such as "+1d2h3m4s5ms". "ms" must be tried before "m".
var durationPartRE = regexp.MustCompile(`(\d+)(ms|d|h|m|s)`)

// opLineRE matches "CAMERA: allow; time=+5m ago" style lines.
var opLineRE = regexp.MustCompile(`^([A-Z][A-Z0-9_]*): ([a-z]+)(.*)$`)

// accessRelRE extracts the "(-1h2m3s)" relative time of an Access line.
var accessRelRE = regexp.MustCompile(`\((-[0-9dhms]+)\)`)

// ParseDuration parses TimeUtils.formatDuration output ("+1h2m3s45ms",
// "-5s", "0"). The sign is ignored.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "+-")
	if s == "" || s == "0" {
		return 0, nil
	}

	parts := durationPartRE.FindAllStringSubmatch(s, -1)
	if len(parts) == 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var d time.Duration
	consumed := 0
	for _, p := range parts {
		n, err := strconv.ParseInt(p[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		consumed += len(p[0])
		switch p[2] {
		case "d":
			d += time.Duration(n) * 24 * time.Hour
		case "h":
			d += time.Duration(n) * time.Hour
		case "m":
			d += time.Duration(n) * time.Minute
		case "s":
			d += time.Duration(n) * time.Second
		case "ms":
			d += time.Duration(n) * time.Millisecond
		}
	}
	if consumed != len(s) {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// ParseAppOps parses `cmd appops get <package>` output. Relative times are
// resolved against now. Unknown op names are skipped.
//
// Legacy format (one line per op):
//
//	COARSE_LOCATION: allow; time=+3h11m2s ago; duration=+1s5ms
//	WAKE_LOCK: allow; time=+1m ago (running)
//
// Per-access format (Android 11+):
//
//	CAMERA: allow
//	    null=[
//	      Access: [top-s] 2021-01-01 10:00:00.000 (-1h2m3s) duration=+1s
//	    ]
func ParseAppOps(output []byte, now time.Time) ([]appops.OpRecord, error) {
	text := string(output)
	if strings.Contains(text, "Unknown package") || strings.HasPrefix(strings.TrimSpace(text), "Error:") {
		return nil, fmt.Errorf("%s: %w", strings.TrimSpace(text), appops.ErrPackageNotFound)
	}

	var records []appops.OpRecord
	current := -1

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "Uid mode:") || trimmed == "No operations." {
			continue
		}

		if m := opLineRE.FindStringSubmatch(line); m != nil {
			current = -1
			op, ok := ops.ByName(m[1])
			if !ok {
				continue
			}
			mode, err := ops.ParseMode(m[2])
			if err != nil {
				continue
			}
			rec := appops.OpRecord{Op: op, Mode: mode}
			applyFields(&rec, m[3], now)
			records = append(records, rec)
			current = len(records) - 1
			continue
		}

		if current < 0 || !strings.HasPrefix(trimmed, "Access:") {
			continue
		}

		rec := &records[current]
		if m := accessRelRE.FindStringSubmatch(trimmed); m != nil {
			if ago, err := ParseDuration(m[1]); err == nil {
				if t := now.Add(-ago); t.After(rec.Time) {
					rec.Time = t
				}
			}
		}
		if strings.Contains(trimmed, "(running)") || strings.Contains(trimmed, "duration=-1") {
			rec.Running = true
		}
		if i := strings.Index(trimmed, "duration="); i >= 0 && !rec.Running {
			if v := firstField(trimmed[i+len("duration="):]); v != "" {
				if d, err := ParseDuration(v); err == nil {
					rec.Duration = d
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read appops output: %w", err)
	}

	return records, nil
}

// applyFields parses the "; time=+5m ago; duration=+3s (running)" tail of a
// legacy op line.
func applyFields(rec *appops.OpRecord, tail string, now time.Time) {
	if strings.Contains(tail, "(running)") {
		rec.Running = true
		tail = strings.ReplaceAll(tail, "(running)", "")
	}
	for _, field := range strings.Split(tail, ";") {
		field = strings.TrimSpace(field)
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "time":
			ago, err := ParseDuration(strings.TrimSuffix(strings.TrimSpace(value), " ago"))
			if err == nil {
				rec.Time = now.Add(-ago)
			}
		case "duration":
			if strings.TrimSpace(value) == "-1" {
				rec.Running = true
				continue
			}
			if d, err := ParseDuration(value); err == nil {
				rec.Duration = d
			}
		}
	}
}

// ParsePackageDump extracts one package's identity and permissions from
// `dumpsys package <package>` output.
func ParsePackageDump(pkg string, output []byte) (*appops.PackageInfo, error) {
	header := "Package [" + pkg + "]"

	info := &appops.PackageInfo{App: appops.AppInfo{PackageName: pkg}}
	var requested []string
	grants := make(map[string]bool)

	found := false
	sectionIndent := -1
	requestedIndent := -1

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		indent := len(line) - len(strings.TrimLeft(line, " \t"))

		if !found {
			if strings.HasPrefix(trimmed, header) {
				found = true
				sectionIndent = indent
			}
			continue
		}

		if trimmed == "" {
			continue
		}
		if indent <= sectionIndent {
			break
		}

		if requestedIndent >= 0 {
			if indent > requestedIndent {
				name, _, _ := strings.Cut(trimmed, ":")
				requested = append(requested, strings.TrimSpace(name))
				continue
			}
			requestedIndent = -1
		}

		switch {
		case strings.HasPrefix(trimmed, "userId="):
			if uid, err := strconv.Atoi(firstField(strings.TrimPrefix(trimmed, "userId="))); err == nil {
				info.App.UID = uid
			}
		case strings.HasPrefix(trimmed, "codePath="):
			codePath := strings.TrimPrefix(trimmed, "codePath=")
			if strings.HasSuffix(codePath, ".apk") {
				info.App.SourceDir = codePath
			} else {
				info.App.SourceDir = strings.TrimRight(codePath, "/") + "/base.apk"
			}
		case trimmed == "requested permissions:":
			requestedIndent = indent
		case strings.Contains(trimmed, ": granted="):
			name, rest, _ := strings.Cut(trimmed, ": granted=")
			granted := strings.HasPrefix(rest, "true")
			grants[name] = grants[name] || granted
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read package dump: %w", err)
	}

	if !found {
		return nil, fmt.Errorf("%s: %w", pkg, appops.ErrPackageNotFound)
	}

	for _, name := range requested {
		info.RequestedPermissions = append(info.RequestedPermissions, appops.RequestedPermission{
			Name:    name,
			Granted: grants[name],
		})
	}

	return info, nil
}

func firstField(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

// ParsePackageList parses `pm list packages -U` output, sorted by name.
//
//	package:com.android.chrome uid:10123
func ParsePackageList(output []byte) []Package {
	var packages []Package
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "package:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "package:"))
		if len(fields) == 0 {
			continue
		}
		pkg := Package{Name: fields[0]}
		for _, f := range fields[1:] {
			if v, ok := strings.CutPrefix(f, "uid:"); ok {
				// Shared-uid packages list "uid:1000,10123"; keep the first.
				v, _, _ = strings.Cut(v, ",")
				if uid, err := strconv.Atoi(v); err == nil {
					pkg.UID = uid
				}
			}
		}
		packages = append(packages, pkg)
	}

	sort.Slice(packages, func(i, j int) bool {
		return packages[i].Name < packages[j].Name
	})
	return packages
}

// ParseDevices parses `adb devices` output.
func ParseDevices(output []byte) []Device {
	var devices []Device
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		devices = append(devices, Device{Serial: fields[0], State: fields[1]})
	}
	return devices
}
