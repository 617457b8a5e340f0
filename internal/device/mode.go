package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/blackwell-systems/appopsctl/internal/appops"
	"github.com/blackwell-systems/appopsctl/internal/ops"
)

// SetMode changes one op's mode for a package with `cmd appops set`.
// The device applies the mode to the op's whole switch group.
func (c *Client) SetMode(ctx context.Context, pkg string, op ops.Op, mode ops.Mode) error {
	if !op.Known() {
		return fmt.Errorf("unknown op %d", int(op))
	}

	out, err := c.runner.Run(ctx, "shell", "cmd", "appops", "set", pkg, op.Name(), mode.String())
	text := strings.TrimSpace(string(out))
	if strings.Contains(text, "Unknown package") {
		return fmt.Errorf("%s: %w", pkg, appops.ErrPackageNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to set %s to %s for %s: %w", op.Name(), mode, pkg, err)
	}
	// appops prints errors on stdout with a zero exit status on some releases.
	if strings.HasPrefix(text, "Error") {
		return fmt.Errorf("failed to set %s to %s for %s: %s", op.Name(), mode, pkg, text)
	}

	c.log.Info().Str("package", pkg).Str("op", op.Name()).Stringer("mode", mode).Msg("op mode set")
	return nil
}
