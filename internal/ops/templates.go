package ops

import (
	"fmt"
	"strings"
)

// Template is the fixed set of operations one settings category covers. Ops
// and ShowPerms are paired by index: ShowPerms[i] means the grant state of
// Ops[i] is also sourced from its permission, not only from live usage.
type Template struct {
	Name      string
	Title     string
	Ops       []Op
	ShowPerms []bool
}

// Validate checks that ops and flags are paired one-to-one.
func (t Template) Validate() error {
	if len(t.Ops) != len(t.ShowPerms) {
		return fmt.Errorf("template %s: %d ops but %d permission flags", t.Name, len(t.Ops), len(t.ShowPerms))
	}
	return nil
}

// Contains reports whether op is part of the template.
func (t Template) Contains(op Op) bool {
	return t.IndexOf(op) >= 0
}

// IndexOf returns the position of op in the template, or -1.
func (t Template) IndexOf(op Op) int {
	for i, o := range t.Ops {
		if o == op {
			return i
		}
	}
	return -1
}

var (
	LocationTemplate = Template{
		Name:  "location",
		Title: "Location",
		Ops: []Op{
			CoarseLocation, FineLocation, GPS, WifiScan, NeighboringCells,
			MonitorLocation, MonitorHighPowerLocation,
		},
		ShowPerms: []bool{true, true, false, false, false, false, false},
	}

	PersonalTemplate = Template{
		Name:  "personal",
		Title: "Personal",
		Ops: []Op{
			ReadContacts, WriteContacts, ReadCallLog, WriteCallLog,
			ReadCalendar, WriteCalendar, ReadClipboard, WriteClipboard,
		},
		ShowPerms: []bool{true, true, true, true, true, true, false, false},
	}

	MessagingTemplate = Template{
		Name:  "messaging",
		Title: "Messaging",
		Ops: []Op{
			ReadSMS, ReceiveSMS, ReceiveEmergencySMS, ReceiveMMS, ReceiveWAPPush,
			WriteSMS, SendSMS, ReadICCSMS, WriteICCSMS,
		},
		ShowPerms: []bool{true, true, true, true, true, true, true, true, true},
	}

	MediaTemplate = Template{
		Name:  "media",
		Title: "Media",
		Ops: []Op{
			Vibrate, Camera, RecordAudio, PlayAudio, TakeMediaButtons,
			TakeAudioFocus, AudioMasterVolume, AudioVoiceVolume, AudioRingVolume,
			AudioMediaVolume, AudioAlarmVolume, AudioNotificationVolume,
			AudioBluetoothVolume, MuteMicrophone,
		},
		ShowPerms: []bool{
			false, true, true, false, false, false, false, false, false,
			false, false, false, false, false,
		},
	}

	DeviceTemplate = Template{
		Name:  "device",
		Title: "Device",
		Ops: []Op{
			PostNotification, AccessNotifications, CallPhone, WriteSettings,
			SystemAlertWindow, WakeLock, ProjectMedia, ActivateVPN,
			AssistStructure, AssistScreenshot,
		},
		ShowPerms: []bool{false, true, true, true, true, true, false, false, false, false},
	}

	RunInBackgroundTemplate = Template{
		Name:      "background",
		Title:     "Run in background",
		Ops:       []Op{RunInBackground},
		ShowPerms: []bool{false},
	}
)

// Templates returns every settings category in display order.
func Templates() []Template {
	return []Template{
		LocationTemplate,
		PersonalTemplate,
		MessagingTemplate,
		MediaTemplate,
		DeviceTemplate,
		RunInBackgroundTemplate,
	}
}

// TemplateByName finds a template by its short name (case-insensitive).
func TemplateByName(name string) (Template, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	var names []string
	for _, t := range Templates() {
		if t.Name == name {
			return t, nil
		}
		names = append(names, t.Name)
	}
	return Template{}, fmt.Errorf("unknown category %q (must be one of: %s)", name, strings.Join(names, ", "))
}

// AllOps returns the union of every template's ops, in template order.
func AllOps() []Op {
	seen := make(map[Op]bool)
	var all []Op
	for _, t := range Templates() {
		for _, op := range t.Ops {
			if !seen[op] {
				seen[op] = true
				all = append(all, op)
			}
		}
	}
	return all
}
