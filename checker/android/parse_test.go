package android

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spance/a11ycheck/checker/definitions"
)

func TestParseDevices(t *testing.T) {
	output := `* daemon started successfully
List of devices attached
emulator-5554          device product:sdk_gphone64 model:sdk_gphone64_x86_64 device:emu64xa transport_id:1
192.168.1.20:5555      offline
R58M123ABC             unauthorized usb:1-1 transport_id:3

`
	devices := parseDevices(output)
	require.Len(t, devices, 3)

	assert.Equal(t, "emulator-5554", devices[0].DeviceID)
	assert.Equal(t, definitions.Emulator, devices[0].ConnectionType)
	assert.Equal(t, "sdk_gphone64_x86_64", devices[0].Model)
	assert.True(t, devices[0].Online())

	assert.Equal(t, definitions.Remote, devices[1].ConnectionType)
	assert.False(t, devices[1].Online())

	assert.Equal(t, definitions.USB, devices[2].ConnectionType)
	assert.Equal(t, "unauthorized", devices[2].Status)
}

func TestHasPackage(t *testing.T) {
	output := "package:com.microsoft.accessibilityinsightsforandroidservice.test\npackage:com.microsoft.accessibilityinsightsforandroidservice\n"
	assert.True(t, hasPackage(output, "com.microsoft.accessibilityinsightsforandroidservice"))
	assert.False(t, hasPackage("package:com.microsoft.accessibilityinsightsforandroidservice.test\n", "com.microsoft.accessibilityinsightsforandroidservice"))
	assert.False(t, hasPackage("", "com.example"))
}

func TestParseRequestedPermissions(t *testing.T) {
	output := `Packages:
  Package [com.example.svc] (3f2a1b):
    userId=10150
    requested permissions:
      android.permission.INTERNET
      android.permission.FOREGROUND_SERVICE
      android.permission.READ_EXTERNAL_STORAGE: restricted=true
    install permissions:
      android.permission.INTERNET: granted=true
    runtime permissions:
      android.permission.READ_EXTERNAL_STORAGE: granted=false
`
	assert.Equal(t, []string{
		"android.permission.INTERNET",
		"android.permission.FOREGROUND_SERVICE",
		"android.permission.READ_EXTERNAL_STORAGE",
	}, parseRequestedPermissions(output))

	assert.Empty(t, parseRequestedPermissions("Unable to find package: com.nope\n"))
}

func TestParseFocusedComponent(t *testing.T) {
	output := `WINDOW MANAGER WINDOWS (dumpsys window windows)
  mCurrentFocus=Window{9b1d2c u0 com.android.systemui/com.android.systemui.media.MediaProjectionPermissionActivity}
  mFocusedApp=ActivityRecord{c0ffee u0 com.google.samples.apps.sunflower/.GardenActivity t12}
`
	assert.Equal(t, "com.android.systemui/com.android.systemui.media.MediaProjectionPermissionActivity", parseFocusedComponent(output))

	noFocus := `  mCurrentFocus=null
  mFocusedApp=ActivityRecord{c0ffee u0 com.google.samples.apps.sunflower/.GardenActivity t12}
`
	assert.Equal(t, "com.google.samples.apps.sunflower/.GardenActivity", parseFocusedComponent(noFocus))
	assert.Equal(t, "", parseFocusedComponent("nothing here"))
}

func TestSameComponent(t *testing.T) {
	assert.True(t, sameComponent(
		"com.android.systemui/com.android.systemui.media.MediaProjectionPermissionActivity",
		"com.android.systemui/.media.MediaProjectionPermissionActivity",
	))
	assert.True(t, sameComponent("a.b/.C", "a.b/a.b.C"))
	assert.False(t, sameComponent("a.b/.C", "a.b/.D"))
	assert.False(t, sameComponent("", ""))
}
