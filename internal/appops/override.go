package appops

import (
	"sort"
	"sync"
	"time"

	"github.com/blackwell-systems/appopsctl/internal/ops"
)

// Override is a mode the user chose for an entry that the device has not
// yet confirmed.
type Override struct {
	Key   EntryKey
	Mode  ops.Mode
	SetAt time.Time
}

// Divergence reports an override that the next authoritative load did not
// confirm.
type Divergence struct {
	Override
	Actual ops.Mode
}

// Overrides is the optimistic-toggle overlay. Entries stay immutable; the
// user's pending choices are kept here by entry key until a newer load
// replaces them.
type Overrides struct {
	mu    sync.Mutex
	modes map[EntryKey]Override
	now   func() time.Time
}

// NewOverrides creates an empty overlay.
func NewOverrides() *Overrides {
	return &Overrides{
		modes: make(map[EntryKey]Override),
		now:   time.Now,
	}
}

// OverridePrimaryOpMode records mode as the entry's displayed mode, ahead of
// the device confirming it.
func (o *Overrides) OverridePrimaryOpMode(e *Entry, mode ops.Mode) Override {
	ov := Override{Key: e.Key(), Mode: mode, SetAt: o.now()}
	o.Put(ov)
	return ov
}

// Put adds or replaces an override (e.g. one restored from the store).
func (o *Overrides) Put(ov Override) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.modes[ov.Key] = ov
}

// Pending returns the override for any switch group e holds, primary group
// first.
func (o *Overrides) Pending(e *Entry) (Override, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, key := range e.Keys() {
		if ov, ok := o.modes[key]; ok {
			return ov, true
		}
	}
	return Override{}, false
}

// PrimaryOpMode returns the overridden mode of e's primary switch group, or
// its authoritative mode.
func (o *Overrides) PrimaryOpMode(e *Entry) ops.Mode {
	o.mu.Lock()
	ov, ok := o.modes[e.Key()]
	o.mu.Unlock()
	if ok {
		return ov.Mode
	}
	return e.PrimaryOpMode()
}

// Len returns the number of pending overrides.
func (o *Overrides) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.modes)
}

// Reconcile drops the overrides set before loadedAt whose switch group
// appears in entries: the load that produced entries is newer and therefore
// authoritative for them. Dropped overrides the entries contradict are
// returned as divergences. Overrides for groups the load did not cover, or
// set after loadedAt, are kept.
func (o *Overrides) Reconcile(entries []*Entry, loadedAt time.Time) (dropped []Override, diverged []Divergence) {
	actual := make(map[EntryKey]ops.Mode)
	for _, e := range entries {
		for _, key := range e.Keys() {
			if _, seen := actual[key]; seen {
				continue
			}
			mode, _ := e.SwitchMode(key.Switch)
			actual[key] = mode
		}
	}
	return o.Settle(loadedAt, func(ov Override) (ops.Mode, bool) {
		mode, ok := actual[ov.Key]
		return mode, ok
	})
}

// Settle reconciles against a load that is not held as entries, such as a
// stored scan. actual reports the mode the load found for an override's
// switch group and whether the load covered that group at all. Results are
// ordered by key.
func (o *Overrides) Settle(loadedAt time.Time, actual func(Override) (ops.Mode, bool)) (dropped []Override, diverged []Divergence) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for key, ov := range o.modes {
		if ov.SetAt.After(loadedAt) {
			continue
		}
		mode, covered := actual(ov)
		if !covered {
			continue
		}
		delete(o.modes, key)
		dropped = append(dropped, ov)
		if mode != ov.Mode {
			diverged = append(diverged, Divergence{Override: ov, Actual: mode})
		}
	}

	sort.Slice(dropped, func(i, j int) bool { return dropped[i].Key.less(dropped[j].Key) })
	sort.Slice(diverged, func(i, j int) bool { return diverged[i].Key.less(diverged[j].Key) })
	return dropped, diverged
}
