package appops

import "github.com/blackwell-systems/appopsctl/internal/ops"

// AppRecord is one application observed during a build. It is created fresh
// by every BuildState call and shared by that call's entries.
type AppRecord struct {
	info   AppInfo
	assets AssetLoader

	label assetCache[string]
	icon  assetCache[Icon]

	ops      map[ops.Op]OpRecord
	switches map[ops.Op]*Entry // switch op -> entry representing the group
}

func newAppRecord(info AppInfo, assets AssetLoader) *AppRecord {
	return &AppRecord{
		info:     info,
		assets:   assets,
		ops:      make(map[ops.Op]OpRecord),
		switches: make(map[ops.Op]*Entry),
	}
}

// Info returns the application identity.
func (a *AppRecord) Info() AppInfo {
	return a.info
}

// PackageName is a shortcut for Info().PackageName.
func (a *AppRecord) PackageName() string {
	return a.info.PackageName
}

// Label returns the display label, loading it on first use. While the app's
// artifact is missing the package name is used and the label is retried on
// the next call.
func (a *AppRecord) Label() string {
	return a.label.get(a.present, func() string {
		if l := a.assets.LoadLabel(a.info); l != "" {
			return l
		}
		return a.info.PackageName
	}, func() string {
		return a.info.PackageName
	})
}

// Icon returns the app icon, or DefaultIcon while the artifact is missing.
func (a *AppRecord) Icon() Icon {
	return a.icon.get(a.present, func() Icon {
		return a.assets.LoadIcon(a.info)
	}, func() Icon {
		return DefaultIcon
	})
}

// Stale reports whether the label was last resolved while the app's
// artifact was unavailable.
func (a *AppRecord) Stale() bool {
	_, state := a.label.peek()
	return state == loadedStale
}

func (a *AppRecord) present() bool {
	if a.assets == nil {
		return false
	}
	return a.assets.Present(a.info)
}

// HasOp reports whether an entry of this app already records op.
func (a *AppRecord) HasOp(op ops.Op) bool {
	_, ok := a.ops[op]
	return ok
}

// OpSwitch returns the entry representing op's switch group, if any.
func (a *AppRecord) OpSwitch(op ops.Op) *Entry {
	return a.switches[op.Switch()]
}

func (a *AppRecord) addOp(e *Entry, rec OpRecord) {
	a.ops[rec.Op] = rec
	a.switches[rec.Op.Switch()] = e
}
