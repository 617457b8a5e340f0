package device

import (
	"context"
	"errors"
)

// ErrNoDevice is returned when adb reports no attached device.
var ErrNoDevice = errors.New("no Android device attached (check 'adb devices')")

// Package is one entry of `pm list packages -U`.
type Package struct {
	Name string
	UID  int
}

// Device is one entry of `adb devices`.
type Device struct {
	Serial string
	State  string // "device", "offline", "unauthorized"
}

// Runner executes adb with the given arguments and returns stdout.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}
