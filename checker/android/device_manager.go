package android

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spance/a11ycheck/checker/definitions"
	"github.com/spance/a11ycheck/checker/helper"
)

// adbPath is the adb binary; tests point it at a stand-in script.
var adbPath = "adb"

const (
	defaultCmdTimeout     = 30 * time.Second
	installCmdTimeout     = 3 * time.Minute
	activityPollInterval  = 500 * time.Millisecond
	activityPollMaxPeriod = 2 * time.Second
)

var ErrNoDevice = errors.New("no online android device")

// ADBDevice drives one device through the adb binary. DeviceID is bound by SelectDevice;
// while it is empty adb picks its default device.
type ADBDevice struct {
	DeviceID string
}

func (r *ADBDevice) GetADBPrefix() []string {
	if r.DeviceID != "" {
		return []string{"-s", r.DeviceID}
	}
	return nil
}

// run executes adb with the session prefix and returns combined output.
func (r *ADBDevice) run(ctx context.Context, tag string, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmdArgs := append(r.GetADBPrefix(), args...)
	log.Debug().Str("cmd", fmt.Sprintf("[%s] run cmd: %s %s", tag, adbPath, strings.Join(cmdArgs, " "))).Msg("")

	rawOutput, err := exec.CommandContext(ctx, adbPath, cmdArgs...).CombinedOutput()
	output := string(rawOutput)
	if err != nil {
		log.Error().Err(err).Str("output", strings.TrimSpace(output)).Msgf("[%s] run cmd failed", tag)
		return output, fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(output))
	}
	log.Debug().Str("output", output).Msgf("[%s] raw output", tag)
	return output, nil
}

func (r *ADBDevice) ListDevices(ctx context.Context) ([]definitions.DeviceInfo, error) {
	// device listing must not be scoped to the bound device
	session := &ADBDevice{}
	output, err := session.run(ctx, "ListDevices", defaultCmdTimeout, "devices", "-l")
	if err != nil {
		return nil, err
	}
	return parseDevices(output), nil
}

// SelectDevice binds the session to deviceID, or to the first online device when empty.
func (r *ADBDevice) SelectDevice(ctx context.Context, deviceID string) (*definitions.DeviceInfo, error) {
	devices, err := r.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if !d.Online() {
			continue
		}
		if deviceID == "" || d.DeviceID == deviceID {
			r.DeviceID = d.DeviceID
			log.Info().Str("device", d.DeviceID).Str("model", d.Model).Msg("[SelectDevice] bound session")
			return &d, nil
		}
	}
	if deviceID != "" {
		return nil, fmt.Errorf("%w: %s not connected", ErrNoDevice, deviceID)
	}
	return nil, ErrNoDevice
}

func (r *ADBDevice) GetAPILevel(ctx context.Context) (int, error) {
	output, err := r.run(ctx, "GetAPILevel", defaultCmdTimeout, "shell", "getprop", "ro.build.version.sdk")
	if err != nil {
		return 0, err
	}
	level, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return 0, fmt.Errorf("unexpected sdk level %q: %w", strings.TrimSpace(output), err)
	}
	return level, nil
}

func (r *ADBDevice) Forward(ctx context.Context, hostPort, devicePort int) error {
	_, err := r.run(ctx, "Forward", defaultCmdTimeout, "forward", fmt.Sprintf("tcp:%d", hostPort), fmt.Sprintf("tcp:%d", devicePort))
	return err
}

// ListForwards returns the raw forward table lines for the bound device.
func (r *ADBDevice) ListForwards(ctx context.Context) ([]string, error) {
	output, err := r.run(ctx, "ListForwards", defaultCmdTimeout, "forward", "--list")
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// adb lists forwards of every device; keep ours when bound
		if r.DeviceID != "" && !strings.HasPrefix(line, r.DeviceID+" ") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (r *ADBDevice) RemoveForward(ctx context.Context, hostPort int) error {
	_, err := r.run(ctx, "RemoveForward", defaultCmdTimeout, "forward", "--remove", fmt.Sprintf("tcp:%d", hostPort))
	return err
}

// ForegroundActivity returns the focused window's component, e.g. "pkg/.Activity".
func (r *ADBDevice) ForegroundActivity(ctx context.Context) (string, error) {
	output, err := r.run(ctx, "ForegroundActivity", defaultCmdTimeout, "shell", "dumpsys", "window")
	if err != nil {
		return "", err
	}
	if output == "" {
		return "", fmt.Errorf("no output from dumpsys window")
	}
	return parseFocusedComponent(output), nil
}

// WaitForActivity blocks until component is in the foreground or timeout elapses. The
// timeout also bounds a dumpsys call that is still running.
func (r *ADBDevice) WaitForActivity(ctx context.Context, component string, timeout time.Duration) error {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg := helper.PollConfig{
		InitialInterval: activityPollInterval,
		MaxInterval:     activityPollMaxPeriod,
		MaxWait:         timeout,
	}
	err := helper.Poll(pollCtx, "activity "+component, cfg, func(ctx context.Context) (bool, error) {
		focused, err := r.ForegroundActivity(ctx)
		if err != nil {
			return false, err
		}
		return sameComponent(focused, component), nil
	})
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: activity %s not in foreground after %s", helper.ErrPollTimeout, component, timeout)
	}
	return err
}
