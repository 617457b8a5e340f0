// Package ops describes the Android app-ops catalogue: operation codes, their
// shell names, the switch group each operation belongs to, and the runtime
// permission (if any) that grants it.
//
// Codes and mappings follow frameworks/base/core/java/android/app/AppOpsManager.java.
package ops

import (
	"fmt"
	"strings"
)

// Op is an app-ops operation code.
type Op int

// Operation codes used by the settings templates.
const (
	CoarseLocation           Op = 0
	FineLocation             Op = 1
	GPS                      Op = 2
	Vibrate                  Op = 3
	ReadContacts             Op = 4
	WriteContacts            Op = 5
	ReadCallLog              Op = 6
	WriteCallLog             Op = 7
	ReadCalendar             Op = 8
	WriteCalendar            Op = 9
	WifiScan                 Op = 10
	PostNotification         Op = 11
	NeighboringCells         Op = 12
	CallPhone                Op = 13
	ReadSMS                  Op = 14
	WriteSMS                 Op = 15
	ReceiveSMS               Op = 16
	ReceiveEmergencySMS      Op = 17
	ReceiveMMS               Op = 18
	ReceiveWAPPush           Op = 19
	SendSMS                  Op = 20
	ReadICCSMS               Op = 21
	WriteICCSMS              Op = 22
	WriteSettings            Op = 23
	SystemAlertWindow        Op = 24
	AccessNotifications      Op = 25
	Camera                   Op = 26
	RecordAudio              Op = 27
	PlayAudio                Op = 28
	ReadClipboard            Op = 29
	WriteClipboard           Op = 30
	TakeMediaButtons         Op = 31
	TakeAudioFocus           Op = 32
	AudioMasterVolume        Op = 33
	AudioVoiceVolume         Op = 34
	AudioRingVolume          Op = 35
	AudioMediaVolume         Op = 36
	AudioAlarmVolume         Op = 37
	AudioNotificationVolume  Op = 38
	AudioBluetoothVolume     Op = 39
	WakeLock                 Op = 40
	MonitorLocation          Op = 41
	MonitorHighPowerLocation Op = 42
	GetUsageStats            Op = 43
	MuteMicrophone           Op = 44
	ToastWindow              Op = 45
	ProjectMedia             Op = 46
	ActivateVPN              Op = 47
	WriteWallpaper           Op = 48
	AssistStructure          Op = 49
	AssistScreenshot         Op = 50
	RunInBackground          Op = 63
)

// None marks "no operation".
const None Op = -1

type opInfo struct {
	name       string // appops shell spelling
	label      string
	switchOp   Op
	permission string
}

const permPrefix = "android.permission."

var catalogue = map[Op]opInfo{
	CoarseLocation:           {"COARSE_LOCATION", "coarse location", CoarseLocation, permPrefix + "ACCESS_COARSE_LOCATION"},
	FineLocation:             {"FINE_LOCATION", "fine location", CoarseLocation, permPrefix + "ACCESS_FINE_LOCATION"},
	GPS:                      {"GPS", "GPS", CoarseLocation, ""},
	Vibrate:                  {"VIBRATE", "vibrate", Vibrate, permPrefix + "VIBRATE"},
	ReadContacts:             {"READ_CONTACTS", "read contacts", ReadContacts, permPrefix + "READ_CONTACTS"},
	WriteContacts:            {"WRITE_CONTACTS", "modify contacts", WriteContacts, permPrefix + "WRITE_CONTACTS"},
	ReadCallLog:              {"READ_CALL_LOG", "read call log", ReadCallLog, permPrefix + "READ_CALL_LOG"},
	WriteCallLog:             {"WRITE_CALL_LOG", "modify call log", WriteCallLog, permPrefix + "WRITE_CALL_LOG"},
	ReadCalendar:             {"READ_CALENDAR", "read calendar", ReadCalendar, permPrefix + "READ_CALENDAR"},
	WriteCalendar:            {"WRITE_CALENDAR", "modify calendar", WriteCalendar, permPrefix + "WRITE_CALENDAR"},
	WifiScan:                 {"WIFI_SCAN", "Wi-Fi scan", CoarseLocation, permPrefix + "ACCESS_WIFI_STATE"},
	PostNotification:         {"POST_NOTIFICATION", "post notification", PostNotification, ""},
	NeighboringCells:         {"NEIGHBORING_CELLS", "cell scan", CoarseLocation, ""},
	CallPhone:                {"CALL_PHONE", "call phone", CallPhone, permPrefix + "CALL_PHONE"},
	ReadSMS:                  {"READ_SMS", "read SMS", ReadSMS, permPrefix + "READ_SMS"},
	WriteSMS:                 {"WRITE_SMS", "write SMS", WriteSMS, ""},
	ReceiveSMS:               {"RECEIVE_SMS", "receive SMS", ReceiveSMS, permPrefix + "RECEIVE_SMS"},
	ReceiveEmergencySMS:      {"RECEIVE_EMERGENCY_BROADCAST", "receive emergency SMS", ReceiveSMS, permPrefix + "RECEIVE_EMERGENCY_BROADCAST"},
	ReceiveMMS:               {"RECEIVE_MMS", "receive MMS", ReceiveMMS, permPrefix + "RECEIVE_MMS"},
	ReceiveWAPPush:           {"RECEIVE_WAP_PUSH", "receive WAP push", ReceiveWAPPush, permPrefix + "RECEIVE_WAP_PUSH"},
	SendSMS:                  {"SEND_SMS", "send SMS", SendSMS, permPrefix + "SEND_SMS"},
	ReadICCSMS:               {"READ_ICC_SMS", "read ICC SMS", ReadSMS, permPrefix + "READ_SMS"},
	WriteICCSMS:              {"WRITE_ICC_SMS", "write ICC SMS", WriteSMS, permPrefix + "WRITE_SMS"},
	WriteSettings:            {"WRITE_SETTINGS", "modify settings", WriteSettings, permPrefix + "WRITE_SETTINGS"},
	SystemAlertWindow:        {"SYSTEM_ALERT_WINDOW", "draw on top", SystemAlertWindow, permPrefix + "SYSTEM_ALERT_WINDOW"},
	AccessNotifications:      {"ACCESS_NOTIFICATIONS", "access notifications", AccessNotifications, permPrefix + "ACCESS_NOTIFICATIONS"},
	Camera:                   {"CAMERA", "camera", Camera, permPrefix + "CAMERA"},
	RecordAudio:              {"RECORD_AUDIO", "record audio", RecordAudio, permPrefix + "RECORD_AUDIO"},
	PlayAudio:                {"PLAY_AUDIO", "play audio", PlayAudio, ""},
	ReadClipboard:            {"READ_CLIPBOARD", "read clipboard", ReadClipboard, ""},
	WriteClipboard:           {"WRITE_CLIPBOARD", "modify clipboard", WriteClipboard, ""},
	TakeMediaButtons:         {"TAKE_MEDIA_BUTTONS", "media buttons", TakeMediaButtons, ""},
	TakeAudioFocus:           {"TAKE_AUDIO_FOCUS", "audio focus", TakeAudioFocus, ""},
	AudioMasterVolume:        {"AUDIO_MASTER_VOLUME", "master volume", AudioMasterVolume, ""},
	AudioVoiceVolume:         {"AUDIO_VOICE_VOLUME", "voice volume", AudioVoiceVolume, ""},
	AudioRingVolume:          {"AUDIO_RING_VOLUME", "ring volume", AudioRingVolume, ""},
	AudioMediaVolume:         {"AUDIO_MEDIA_VOLUME", "media volume", AudioMediaVolume, ""},
	AudioAlarmVolume:         {"AUDIO_ALARM_VOLUME", "alarm volume", AudioAlarmVolume, ""},
	AudioNotificationVolume:  {"AUDIO_NOTIFICATION_VOLUME", "notification volume", AudioNotificationVolume, ""},
	AudioBluetoothVolume:     {"AUDIO_BLUETOOTH_VOLUME", "Bluetooth volume", AudioBluetoothVolume, ""},
	WakeLock:                 {"WAKE_LOCK", "keep awake", WakeLock, permPrefix + "WAKE_LOCK"},
	MonitorLocation:          {"MONITOR_LOCATION", "monitor location", CoarseLocation, ""},
	MonitorHighPowerLocation: {"MONITOR_HIGH_POWER_LOCATION", "monitor high power location", CoarseLocation, ""},
	GetUsageStats:            {"GET_USAGE_STATS", "get usage stats", GetUsageStats, permPrefix + "PACKAGE_USAGE_STATS"},
	MuteMicrophone:           {"MUTE_MICROPHONE", "mute/unmute microphone", MuteMicrophone, ""},
	ToastWindow:              {"TOAST_WINDOW", "display toast", ToastWindow, ""},
	ProjectMedia:             {"PROJECT_MEDIA", "project media", ProjectMedia, ""},
	ActivateVPN:              {"ACTIVATE_VPN", "activate VPN", ActivateVPN, ""},
	WriteWallpaper:           {"WRITE_WALLPAPER", "write wallpaper", WriteWallpaper, ""},
	AssistStructure:          {"ASSIST_STRUCTURE", "assist structure", AssistStructure, ""},
	AssistScreenshot:         {"ASSIST_SCREENSHOT", "assist screenshot", AssistScreenshot, ""},
	RunInBackground:          {"RUN_IN_BACKGROUND", "run in background", RunInBackground, ""},
}

var byName = func() map[string]Op {
	m := make(map[string]Op, len(catalogue))
	for op, info := range catalogue {
		m[info.name] = op
	}
	// Older releases spell it without the "BROADCAST" suffix.
	m["RECEIVE_EMERGECY_SMS"] = ReceiveEmergencySMS
	return m
}()

// Known reports whether op is in the catalogue.
func (op Op) Known() bool {
	_, ok := catalogue[op]
	return ok
}

// Name returns the appops shell name, e.g. "COARSE_LOCATION".
func (op Op) Name() string {
	if info, ok := catalogue[op]; ok {
		return info.name
	}
	return fmt.Sprintf("OP_%d", int(op))
}

// String implements fmt.Stringer.
func (op Op) String() string {
	return op.Name()
}

// Label returns a short human-readable description.
func (op Op) Label() string {
	if info, ok := catalogue[op]; ok {
		return info.label
	}
	return strings.ToLower(op.Name())
}

// Switch returns the op whose toggle controls op. Ops sharing a switch are
// shown to the user as a single on/off control.
func (op Op) Switch() Op {
	if info, ok := catalogue[op]; ok {
		return info.switchOp
	}
	return op
}

// Permission returns the runtime permission associated with op, or "" if the
// op is not gated by a permission.
func (op Op) Permission() string {
	return catalogue[op].permission
}

// ByName resolves a shell name (case-insensitive, optional "OP_" prefix).
func ByName(name string) (Op, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "OP_")
	op, ok := byName[name]
	return op, ok
}

// Parse resolves either a shell name or a numeric op code.
func Parse(s string) (Op, error) {
	if op, ok := ByName(s); ok {
		return op, nil
	}
	var code int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &code); err == nil {
		if op := Op(code); op.Known() {
			return op, nil
		}
	}
	return None, fmt.Errorf("unknown operation %q", s)
}
