package checker

import (
	"context"
	"fmt"

	"github.com/spance/a11ycheck/checker/android"
	"github.com/spance/a11ycheck/checker/definitions"
	"github.com/spance/a11ycheck/checker/dialog"
	"github.com/spance/a11ycheck/checker/forward"
	"github.com/spance/a11ycheck/checker/lifecycle"
	"github.com/spance/a11ycheck/constants"
)

// DeviceManager discovers devices and binds the session to one of them.
type DeviceManager interface {
	ListDevices(ctx context.Context) ([]definitions.DeviceInfo, error)
	SelectDevice(ctx context.Context, deviceID string) (*definitions.DeviceInfo, error)
	GetAPILevel(ctx context.Context) (int, error)
}

// DeviceOperator is what the run steps do on the bound device.
type DeviceOperator interface {
	lifecycle.Device
	dialog.Device
	LaunchApp(ctx context.Context, packageName string) error
}

// Device is one device session. Calls must not be issued concurrently.
type Device interface {
	DeviceManager
	DeviceOperator
	forward.Bridge
}

func CreateDevice(deviceType string) (Device, error) {
	switch deviceType {
	case constants.ADB:
		return &android.ADBDevice{}, nil
	default:
		return nil, fmt.Errorf("unknown device type: %v", deviceType)
	}
}
