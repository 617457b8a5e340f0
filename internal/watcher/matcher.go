package watcher

import (
	"path/filepath"
	"strings"
)

// processedDir is the inbox subdirectory imported files are moved to.
const processedDir = "processed"

// isInboxCandidate reports whether a file in the inbox should be imported.
// Hidden files and partial downloads are ignored.
func isInboxCandidate(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	for _, suffix := range []string{".part", ".tmp", ".crdownload"} {
		if strings.HasSuffix(name, suffix) {
			return false
		}
	}
	return strings.EqualFold(filepath.Ext(name), ".json")
}
