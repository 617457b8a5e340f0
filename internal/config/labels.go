package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// LabelsFile is the name of the display-label override file in the config dir.
const LabelsFile = "labels"

// LoadLabels reads {dir}/labels, one "package=Label" pair per line, and
// returns the package-to-label map. A missing file yields an empty map.
// Blank lines, comments and malformed lines are skipped.
func LoadLabels(dir string) (map[string]string, error) {
	labels := make(map[string]string)

	f, err := os.Open(filepath.Join(dir, LabelsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return labels, nil
		}
		return labels, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}
		pkg := strings.TrimSpace(line[:idx])
		label := strings.TrimSpace(line[idx+1:])
		if pkg == "" || label == "" || strings.ContainsAny(pkg, " \t") {
			continue
		}

		labels[pkg] = label
	}

	if err := scanner.Err(); err != nil {
		return labels, err
	}
	return labels, nil
}
