package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/blackwell-systems/appopsctl/internal/snapshots"
)

// ProcessInbox imports every candidate snapshot already sitting in the inbox,
// oldest name first, and returns how many were imported. Files that are not
// snapshots are left in place.
func (w *Watcher) ProcessInbox(ctx context.Context) (int, error) {
	if w.opts.InboxDir == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(w.opts.InboxDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read inbox: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isInboxCandidate(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	imported := 0
	for _, name := range names {
		ok, err := w.importFile(ctx, filepath.Join(w.opts.InboxDir, name))
		if err != nil {
			return imported, err
		}
		if ok {
			imported++
		}
	}
	return imported, nil
}

// importFile imports one inbox file and moves it to processed/. It returns
// false, nil for files that are not (yet) complete snapshots.
func (w *Watcher) importFile(ctx context.Context, path string) (bool, error) {
	scan, err := w.importer.ImportFile(ctx, path)
	if err != nil {
		if errors.Is(err, snapshots.ErrNotSnapshot) || errors.Is(err, fs.ErrNotExist) {
			w.log.Debug().Str("path", path).Msg("inbox file skipped")
			return false, nil
		}
		return false, fmt.Errorf("failed to import %s: %w", path, err)
	}

	done := filepath.Join(w.opts.InboxDir, processedDir)
	if err := os.MkdirAll(done, 0755); err != nil {
		return true, fmt.Errorf("failed to create processed directory: %w", err)
	}
	if err := os.Rename(path, filepath.Join(done, filepath.Base(path))); err != nil {
		return true, fmt.Errorf("failed to move imported file: %w", err)
	}

	w.notify(scan)
	return true, nil
}
