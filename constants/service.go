package constants

const (
	ADB = "adb"
)

// Target service identity.
const (
	ServicePackage   = "com.microsoft.accessibilityinsightsforandroidservice"
	ServiceComponent = ServicePackage + "/.AccessibilityInsightsForAndroidService"

	// ServiceDevicePort is the port the service listens on inside the device.
	ServiceDevicePort = 62442
)

// Secure settings touched when enabling the service.
const (
	SettingsNamespaceSecure        = "secure"
	EnabledAccessibilityServices   = "enabled_accessibility_services"
	EnabledAccessibilityServiceSep = ":"
)

// Permission dialog shown when the service asks for screen capture.
const (
	MediaProjectionActivity = "com.android.systemui/.media.MediaProjectionPermissionActivity"

	KeycodeTab   = 61
	KeycodeEnter = 66
)

// Demo app driven before verification so the service has something to scan.
const (
	DemoPackage = "com.google.samples.apps.sunflower"
)

// CIMarkerTemplate is consumed by the Azure Pipelines agent; keep the text verbatim.
const CIMarkerTemplate = "##vso[task.setvariable variable=aiserviceport]{port}"

// MinRuntimePermissionAPI is the first API level with runtime permission grants.
const MinRuntimePermissionAPI = 23
