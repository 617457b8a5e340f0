package device

import (
	"context"
	"strings"
)

// CheckStaleness compares stored package names against the device's package
// list and returns how many installed packages are missing from the store.
// Returns (0, nil) when the device cannot be reached; callers must not treat
// that as an error.
func (c *Client) CheckStaleness(ctx context.Context, storedNames []string) (int, error) {
	packages, err := c.ListPackages(ctx)
	if err != nil {
		return 0, nil
	}

	known := make(map[string]struct{}, len(storedNames))
	for _, name := range storedNames {
		known[strings.TrimSpace(name)] = struct{}{}
	}

	newCount := 0
	for _, pkg := range packages {
		if _, found := known[pkg.Name]; !found {
			newCount++
		}
	}
	return newCount, nil
}
