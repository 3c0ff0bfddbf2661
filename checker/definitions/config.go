package definitions

import (
	"time"
)

type VerifyMode string

const (
	ModeDiff      VerifyMode = "diff"
	ModeUpdate    VerifyMode = "update"
	ModeSerialize VerifyMode = "serialize"
)

type RunConfig struct {
	ApkPath     string
	DeviceID    string
	SnapshotDir string
	Mode        VerifyMode
	JSONDiff    bool

	DemoApkPath string
	SkipDemo    bool

	StepTimeout    time.Duration
	DialogTimeout  time.Duration
	ConfirmTimeout time.Duration
	ReadyTimeout   time.Duration
	ForwardRetries int
}

// WithDefaults fills zero values with the timings the checker was tuned with.
func (c *RunConfig) WithDefaults() *RunConfig {
	if c.Mode == "" {
		c.Mode = ModeDiff
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = "."
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 5 * time.Minute
	}
	if c.DialogTimeout <= 0 {
		c.DialogTimeout = 20 * time.Second
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 30 * time.Second
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 30 * time.Second
	}
	if c.ForwardRetries <= 0 {
		c.ForwardRetries = 3
	}
	return c
}
