package ops

import (
	"fmt"
	"strings"
)

// Mode is the access mode of an operation for one app.
type Mode int

// Modes as defined by AppOpsManager.
const (
	ModeAllowed    Mode = 0
	ModeIgnored    Mode = 1
	ModeErrored    Mode = 2
	ModeDefault    Mode = 3
	ModeForeground Mode = 4
)

var modeNames = []string{"allow", "ignore", "deny", "default", "foreground"}

// String returns the appops shell spelling of the mode.
func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Allowed reports whether the mode lets the app perform the operation
// (possibly only while in the foreground).
func (m Mode) Allowed() bool {
	return m == ModeAllowed || m == ModeForeground
}

// ParseMode accepts the appops shell spellings plus a few common aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow", "allowed", "on":
		return ModeAllowed, nil
	case "ignore", "ignored", "off":
		return ModeIgnored, nil
	case "deny", "errored", "error":
		return ModeErrored, nil
	case "default":
		return ModeDefault, nil
	case "foreground":
		return ModeForeground, nil
	}
	return ModeDefault, fmt.Errorf("invalid mode %q (must be allow, ignore, deny, default, or foreground)", s)
}
