// Package lifecycle takes the target service from absent to confirmed running.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/spance/a11ycheck/checker/helper"
	"github.com/spance/a11ycheck/constants"
)

type State string

const (
	Uninstalled        State = "uninstalled"
	Installed          State = "installed"
	PermissionsGranted State = "permissions_granted"
	SettingEnabled     State = "setting_enabled"
	ConfirmedRunning   State = "confirmed_running"
	Unknown            State = "unknown"
)

// Device is the slice of the device session the controller needs.
type Device interface {
	IsAppInstalled(ctx context.Context, packageName string) (bool, error)
	Install(ctx context.Context, apkPath string) error
	Uninstall(ctx context.Context, packageName string) error
	GrantAllPermissions(ctx context.Context, packageName string) ([]string, error)
	GetSetting(ctx context.Context, namespace, key string) (string, error)
	PutSetting(ctx context.Context, namespace, key, value string) error
	Shell(ctx context.Context, args ...string) (string, error)
}

type Controller struct {
	device    Device
	pkg       string
	component string
	poll      helper.PollConfig

	apiLevel int
	state    State
}

func NewController(device Device, pkg, component string, poll helper.PollConfig) *Controller {
	return &Controller{
		device:    device,
		pkg:       pkg,
		component: component,
		poll:      poll,
		state:     Unknown,
	}
}

// SetAPILevel records the API level read from the device; zero means unknown.
func (c *Controller) SetAPILevel(level int) {
	c.apiLevel = level
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) advance(s State) {
	log.Info().Str("from", string(c.state)).Str("to", string(s)).Msg("[Lifecycle] state")
	c.state = s
}

// EnsureUninstalled removes a previous install. Failures are returned for reporting, but the
// run is expected to carry on.
func (c *Controller) EnsureUninstalled(ctx context.Context) error {
	installed, err := c.device.IsAppInstalled(ctx, c.pkg)
	if err != nil {
		log.Warn().Err(err).Str("package", c.pkg).Msg("[EnsureUninstalled] install state unknown, continuing")
		return fmt.Errorf("query install state: %w", err)
	}
	log.Info().Str("package", c.pkg).Bool("installed", installed).Msg("[EnsureUninstalled] install state")
	if installed {
		if err := c.device.Uninstall(ctx, c.pkg); err != nil {
			log.Warn().Err(err).Str("package", c.pkg).Msg("[EnsureUninstalled] uninstall failed, continuing")
			return fmt.Errorf("uninstall %s: %w", c.pkg, err)
		}
	}
	c.advance(Uninstalled)
	return nil
}

func (c *Controller) Install(ctx context.Context, apkPath string) error {
	if _, err := os.Stat(apkPath); err != nil {
		return fmt.Errorf("apk %s: %w", apkPath, err)
	}
	if err := c.device.Install(ctx, apkPath); err != nil {
		return fmt.Errorf("install %s: %w", apkPath, err)
	}
	c.advance(Installed)
	return nil
}

// VerifyInstalled re-queries the package after Install; adb can report success for an install
// the package manager later dropped.
func (c *Controller) VerifyInstalled(ctx context.Context) error {
	installed, err := c.device.IsAppInstalled(ctx, c.pkg)
	if err != nil {
		return fmt.Errorf("query install state: %w", err)
	}
	log.Info().Str("package", c.pkg).Bool("installed", installed).Msg("[VerifyInstalled] install state")
	if !installed {
		return fmt.Errorf("%s is not installed", c.pkg)
	}
	return nil
}

// GrantPermissions grants everything the package requests. Devices older than runtime
// permissions grant at install time, so the step is skipped there.
func (c *Controller) GrantPermissions(ctx context.Context) (skipped bool, err error) {
	if c.apiLevel > 0 && c.apiLevel < constants.MinRuntimePermissionAPI {
		log.Info().Int("api_level", c.apiLevel).Msg("[GrantPermissions] runtime permissions unsupported, skipped")
		return true, nil
	}
	granted, err := c.device.GrantAllPermissions(ctx, c.pkg)
	if err != nil {
		return false, fmt.Errorf("grant permissions for %s: %w", c.pkg, err)
	}
	log.Info().Strs("granted", granted).Msg("[GrantPermissions] done")
	c.advance(PermissionsGranted)
	return false, nil
}

// EnableService adds the component to the enabled accessibility services without dropping
// the services already listed there.
func (c *Controller) EnableService(ctx context.Context) error {
	current, err := c.device.GetSetting(ctx, constants.SettingsNamespaceSecure, constants.EnabledAccessibilityServices)
	if err != nil {
		return fmt.Errorf("read %s: %w", constants.EnabledAccessibilityServices, err)
	}

	value, changed := AddToSetValue(current, c.component, constants.EnabledAccessibilityServiceSep)
	if changed {
		if err := c.device.PutSetting(ctx, constants.SettingsNamespaceSecure, constants.EnabledAccessibilityServices, value); err != nil {
			return fmt.Errorf("write %s: %w", constants.EnabledAccessibilityServices, err)
		}
	}
	log.Info().Str("value", value).Bool("changed", changed).Msg("[EnableService] accessibility services")
	c.advance(SettingEnabled)
	return nil
}

// ConfirmRunning polls the service dump until the component shows up or the poll budget runs out.
func (c *Controller) ConfirmRunning(ctx context.Context) error {
	err := helper.Poll(ctx, "service "+c.component, c.poll, func(ctx context.Context) (bool, error) {
		dump, err := c.device.Shell(ctx, "dumpsys", "activity", "services", c.component)
		if err != nil {
			return false, err
		}
		log.Debug().Str("dump", dump).Msg("[ConfirmRunning] service dump")

		if a11y, err := c.device.Shell(ctx, "dumpsys", "accessibility"); err == nil {
			log.Debug().Str("dump", a11y).Msg("[ConfirmRunning] accessibility dump")
		}
		return IsServiceRunning(dump, c.component), nil
	})
	if err != nil {
		c.advance(Unknown)
		return err
	}
	c.advance(ConfirmedRunning)
	return nil
}

// IsServiceRunning treats any mention of the component in the dump as running.
// This can match unrelated lines naming the component.
func IsServiceRunning(dump, component string) bool {
	return component != "" && strings.Contains(dump, component)
}

// AddToSetValue unions entry into a delimited set value. Unset settings read back as "null".
func AddToSetValue(current, entry, sep string) (string, bool) {
	current = strings.TrimSpace(current)
	var entries []string
	if current != "" && current != "null" {
		entries = lo.Filter(strings.Split(current, sep), func(s string, _ int) bool {
			return strings.TrimSpace(s) != ""
		})
	}
	if lo.Contains(entries, entry) {
		return strings.Join(entries, sep), false
	}
	entries = append(entries, entry)
	return strings.Join(entries, sep), true
}
