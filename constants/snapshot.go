package constants

// VolatileFields vary between otherwise identical runs and never count as drift.
var VolatileFields = []string{"screenshot", "analysisTimestamp", "axeViewId"}

// Endpoint binds a service endpoint to the snapshot file that holds its reference output.
type Endpoint struct {
	Name         string
	Path         string
	SnapshotFile string
}

var Endpoints = []Endpoint{
	{Name: "config", Path: "AccessibilityInsights/config", SnapshotFile: "sunflower-config.snapshot"},
	{Name: "result", Path: "AccessibilityInsights/result", SnapshotFile: "sunflower-result.snapshot"},
}

const (
	EndpointURLTemplate = "http://localhost:{port}/{path}"
	SerializedSuffix    = ".serialized"
)
