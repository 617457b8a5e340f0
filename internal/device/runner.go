package device

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ExecRunner runs the adb binary, targeting Serial when set.
type ExecRunner struct {
	ADB    string // path to adb; "adb" from PATH when empty
	Serial string
}

// Run executes adb and returns its stdout.
func (r *ExecRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	bin := r.ADB
	if bin == "" {
		bin = "adb"
	}

	full := args
	if r.Serial != "" {
		full = append([]string{"-s", r.Serial}, args...)
	}

	cmd := exec.CommandContext(ctx, bin, full...)
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("adb not found (set 'adb' in config or add it to PATH): %w", err)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr := strings.TrimSpace(string(exitErr.Stderr))
			if strings.Contains(stderr, "no devices") || strings.Contains(stderr, "not found") {
				return output, fmt.Errorf("adb %s: %w", strings.Join(args, " "), ErrNoDevice)
			}
			return output, fmt.Errorf("adb %s failed: %w (stderr: %s)", strings.Join(args, " "), err, stderr)
		}
		return nil, fmt.Errorf("adb %s failed: %w", strings.Join(args, " "), err)
	}

	return output, nil
}
