// Package watcher keeps the stored device state fresh without manual scans.
//
// A Watcher does two things, each optional:
//   - rescans the device every PollInterval through a Rescanner
//   - watches InboxDir with fsnotify and imports appopsctl snapshot files
//     that land there, moving them to processed/ afterwards
//
// An unreachable device is logged and retried on the next tick; the last
// stored scan stays authoritative meanwhile. OnScan, when set, runs after
// every stored scan or import.
//
// For background use, StartDaemon re-executes the binary as
// `watch --daemon-child`, and the child calls RunDaemon, which blocks until
// SIGTERM or SIGINT and removes the PID file on exit:
//
//	w, err := watcher.New(sc, snaps, watcher.Options{PollInterval: 5 * time.Minute})
//	if err != nil {
//		return err
//	}
//	return w.RunDaemon(pidFile)
package watcher
