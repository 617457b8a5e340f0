package appops

import (
	"strings"
	"time"

	"github.com/blackwell-systems/appopsctl/internal/ops"
)

// EntryKey identifies an entry across loads: the app and the switch group of
// its primary op.
type EntryKey struct {
	PackageName string
	Switch      ops.Op
}

func (k EntryKey) less(other EntryKey) bool {
	if k.PackageName != other.PackageName {
		return k.PackageName < other.PackageName
	}
	return k.Switch < other.Switch
}

// Entry is one row of a built list: one app and one or more of its
// operation records. Records are kept running-first, then most recent first,
// so the first record is always the most relevant one.
type Entry struct {
	app         *AppRecord
	ops         []OpRecord
	switchOps   []OpRecord
	switchOrder int
}

func newEntry(app *AppRecord, rec OpRecord, switchOrder int) *Entry {
	e := &Entry{
		app:         app,
		ops:         []OpRecord{rec},
		switchOps:   []OpRecord{rec},
		switchOrder: switchOrder,
	}
	app.addOp(e, rec)
	return e
}

// addOp attaches another record to the entry. A record whose switch group is
// not yet represented also becomes a switch record.
func (e *Entry) addOp(rec OpRecord) {
	newSwitch := !e.hasSwitch(rec.Op.Switch())
	e.app.addOp(e, rec)
	e.ops = insertRecord(e.ops, rec)
	if newSwitch {
		e.switchOps = insertRecord(e.switchOps, rec)
	}
}

func (e *Entry) hasSwitch(sw ops.Op) bool {
	for _, r := range e.switchOps {
		if r.Op.Switch() == sw {
			return true
		}
	}
	return false
}

// insertRecord places rec before the first record it outranks: running
// records precede non-running ones, then newer precede older. Ties keep
// insertion order.
func insertRecord(list []OpRecord, rec OpRecord) []OpRecord {
	for i, pos := range list {
		if pos.Running != rec.Running {
			if rec.Running {
				return insertAt(list, i, rec)
			}
			continue
		}
		if pos.Time.Before(rec.Time) {
			return insertAt(list, i, rec)
		}
	}
	return append(list, rec)
}

func insertAt(list []OpRecord, i int, rec OpRecord) []OpRecord {
	list = append(list, OpRecord{})
	copy(list[i+1:], list[i:])
	list[i] = rec
	return list
}

// App returns the owning application record.
func (e *Entry) App() *AppRecord {
	return e.app
}

// Key returns the entry identity used by the override overlay.
func (e *Entry) Key() EntryKey {
	return EntryKey{PackageName: e.app.PackageName(), Switch: e.PrimaryOp().Switch()}
}

// Keys returns the key of every switch group the entry holds, primary first.
// A merged all-apps row can carry several groups.
func (e *Entry) Keys() []EntryKey {
	primary := e.Key()
	keys := []EntryKey{primary}
	for _, r := range e.switchOps {
		if sw := r.Op.Switch(); sw != primary.Switch {
			keys = append(keys, EntryKey{PackageName: primary.PackageName, Switch: sw})
		}
	}
	return keys
}

// SwitchMode returns the mode of the most relevant record in switch group sw.
func (e *Entry) SwitchMode(sw ops.Op) (ops.Mode, bool) {
	for _, r := range e.ops {
		if r.Op.Switch() == sw {
			return r.Mode, true
		}
	}
	return ops.ModeDefault, false
}

// Ops returns a copy of the entry's records in display order.
func (e *Entry) Ops() []OpRecord {
	return append([]OpRecord(nil), e.ops...)
}

// SwitchOps returns a copy of the records representing the entry's toggles.
func (e *Entry) SwitchOps() []OpRecord {
	return append([]OpRecord(nil), e.switchOps...)
}

// NumOps returns the number of records in the entry.
func (e *Entry) NumOps() int {
	return len(e.ops)
}

// SwitchOrder is the primary sort key when listing a single app.
func (e *Entry) SwitchOrder() int {
	return e.switchOrder
}

// PrimaryOpRecord returns the most relevant record.
func (e *Entry) PrimaryOpRecord() OpRecord {
	return e.ops[0]
}

// PrimaryOp returns the op of the most relevant record.
func (e *Entry) PrimaryOp() ops.Op {
	return e.ops[0].Op
}

// PrimaryOpMode returns the authoritative mode of the entry. Pending user
// changes live in an Overrides overlay, not here.
func (e *Entry) PrimaryOpMode() ops.Mode {
	return e.ops[0].Mode
}

// IsRunning reports whether the most relevant record is running.
func (e *Entry) IsRunning() bool {
	return e.ops[0].Running
}

// Time returns the last-used time of the most relevant record.
func (e *Entry) Time() time.Time {
	return e.ops[0].Time
}

// Contains reports whether the entry records op.
func (e *Entry) Contains(op ops.Op) bool {
	for _, r := range e.ops {
		if r.Op == op {
			return true
		}
	}
	return false
}

// SummaryText joins the labels of every record.
func (e *Entry) SummaryText() string {
	return joinLabels(e.ops)
}

// SwitchText joins the labels of the switch records.
func (e *Entry) SwitchText() string {
	return joinLabels(e.switchOps)
}

func joinLabels(records []OpRecord) string {
	labels := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		l := r.Op.Label()
		if seen[l] {
			continue
		}
		seen[l] = true
		labels = append(labels, l)
	}
	return strings.Join(labels, ", ")
}
