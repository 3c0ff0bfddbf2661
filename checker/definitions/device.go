package definitions

type ConnectionType string

const (
	USB      ConnectionType = "usb"
	Emulator ConnectionType = "emulator"
	Remote   ConnectionType = "remote"
)

type DeviceInfo struct {
	DeviceID       string         `json:"device_id"`
	Status         string         `json:"status"`
	ConnectionType ConnectionType `json:"connection_type"`
	Model          string         `json:"model,omitempty"`
	APILevel       int            `json:"api_level,omitempty"`
}

// Online reports whether adb can talk to the device.
func (d DeviceInfo) Online() bool {
	return d.Status == "device"
}

// ForwardEntry is one parsed line of `adb forward --list`.
type ForwardEntry struct {
	Raw        string `json:"raw"`
	HostPort   int    `json:"host_port"`
	DevicePort int    `json:"device_port"`
}

// ApkManifest is what the checker reads from an APK's AndroidManifest.xml.
type ApkManifest struct {
	Package     string   `json:"package"`
	VersionName string   `json:"version_name,omitempty"`
	VersionCode int32    `json:"version_code,omitempty"`
	MinSDK      int32    `json:"min_sdk,omitempty"`
	TargetSDK   int32    `json:"target_sdk,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}
