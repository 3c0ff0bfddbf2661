package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasttemplate"

	"github.com/spance/a11ycheck/checker/android"
	"github.com/spance/a11ycheck/checker/definitions"
	"github.com/spance/a11ycheck/checker/dialog"
	"github.com/spance/a11ycheck/checker/forward"
	"github.com/spance/a11ycheck/checker/helper"
	"github.com/spance/a11ycheck/checker/lifecycle"
	"github.com/spance/a11ycheck/checker/snapshot"
	"github.com/spance/a11ycheck/constants"
	"github.com/spance/a11ycheck/utils"
)

// errSkipped marks a step that decided by itself not to run.
var errSkipped = errors.New("skipped")

// Runner drives the whole verification in a fixed order. A failing step is recorded and the
// next step still runs, unless it depends on state the failed step should have produced.
type Runner struct {
	Device    Device
	Config    *definitions.RunConfig
	Lifecycle *lifecycle.Controller
	Acceptor  dialog.Acceptor
	Forwards  *forward.Manager
	Verifier  *snapshot.Verifier

	// ReadManifest decodes the service APK before it is installed.
	ReadManifest func(path string) (*definitions.ApkManifest, error)

	// Out receives the CI marker line.
	Out io.Writer

	marker   *fasttemplate.Template
	selected *definitions.DeviceInfo
	hostPort int
}

type step struct {
	name     string
	optional bool
	// needs returns a reason to skip the step, or "" when it can run.
	needs func() string
	run   func(ctx context.Context) (string, error)
}

func NewRunner(device Device, cfg *definitions.RunConfig) *Runner {
	cfg.WithDefaults()
	return &Runner{
		Device:    device,
		Config:    cfg,
		Lifecycle: lifecycle.NewController(device, constants.ServicePackage, constants.ServiceComponent, helper.DefaultPollConfig(cfg.ConfirmTimeout)),
		Acceptor:  dialog.NewKeyScriptAcceptor(device, cfg.DialogTimeout),
		Forwards:  forward.NewManager(device, constants.ServiceDevicePort, cfg.ForwardRetries),
		Verifier: snapshot.NewVerifier(snapshot.NewStore(cfg.SnapshotDir), cfg.Mode,
			snapshot.WithJSONDiff(cfg.JSONDiff),
		),
		ReadManifest: android.ReadManifest,
		Out:          os.Stdout,
		marker:       fasttemplate.New(constants.CIMarkerTemplate, "{", "}"),
	}
}

func (r *Runner) needDevice() string {
	if r.selected == nil {
		return "no device selected"
	}
	return ""
}

func (r *Runner) needPort() string {
	if reason := r.needDevice(); reason != "" {
		return reason
	}
	if r.hostPort == 0 {
		return "no forwarded port"
	}
	return ""
}

func (r *Runner) steps(report *definitions.Report) []step {
	return []step{
		{name: "select-device", run: r.selectDevice},
		{name: "read-api-level", optional: true, needs: r.needDevice, run: r.readAPILevel},
		{name: "read-manifest", optional: true, run: r.readManifest},
		{name: "uninstall-previous", optional: true, needs: r.needDevice, run: func(ctx context.Context) (string, error) {
			return "", r.Lifecycle.EnsureUninstalled(ctx)
		}},
		{name: "install", needs: r.needDevice, run: func(ctx context.Context) (string, error) {
			return r.Config.ApkPath, r.Lifecycle.Install(ctx, r.Config.ApkPath)
		}},
		{name: "verify-installed", optional: true, needs: r.needDevice, run: func(ctx context.Context) (string, error) {
			return constants.ServicePackage, r.Lifecycle.VerifyInstalled(ctx)
		}},
		{name: "grant-permissions", optional: true, needs: r.needDevice, run: r.grantPermissions},
		{name: "enable-service", needs: r.needDevice, run: func(ctx context.Context) (string, error) {
			return constants.ServiceComponent, r.Lifecycle.EnableService(ctx)
		}},
		{name: "confirm-running", needs: r.needDevice, run: func(ctx context.Context) (string, error) {
			err := r.Lifecycle.ConfirmRunning(ctx)
			return string(r.Lifecycle.State()), err
		}},
		{name: "accept-permission-dialog", needs: r.needDevice, run: func(ctx context.Context) (string, error) {
			return "", r.Acceptor.Accept(ctx)
		}},
		{name: "remove-stale-forwards", optional: true, needs: r.needDevice, run: r.removeStaleForwards},
		{name: "forward-port", needs: r.needDevice, run: r.forwardPort},
		{name: "list-forwards", optional: true, needs: r.needDevice, run: r.listForwards},
		{name: "demo-app", needs: r.needDevice, run: r.setupDemoApp},
		{name: "wait-service-ready", needs: r.needPort, run: func(ctx context.Context) (string, error) {
			return "", r.Verifier.WaitReady(ctx, r.hostPort, r.Config.ReadyTimeout)
		}},
		{name: "verify-snapshots", needs: r.needPort, run: func(ctx context.Context) (string, error) {
			return r.verify(ctx, report)
		}},
	}
}

// Run executes every step and returns the aggregated report.
func (r *Runner) Run(ctx context.Context) *definitions.Report {
	report := &definitions.Report{RunID: uuid.New().String()}
	log.Info().Str("run_id", report.RunID).Str("mode", string(r.Config.Mode)).Msg("[Run] starting")

	for _, s := range r.steps(report) {
		report.Add(r.runStep(ctx, s))
	}

	if r.selected != nil {
		report.DeviceID = r.selected.DeviceID
	}
	report.HostPort = r.hostPort
	log.Info().Str("run_id", report.RunID).Bool("passed", report.Passed()).Msg("[Run] finished")
	return report
}

func (r *Runner) runStep(ctx context.Context, s step) (res definitions.StepResult) {
	res = definitions.StepResult{Name: s.name}
	if s.needs != nil {
		if reason := s.needs(); reason != "" {
			res.Status = definitions.StepSkipped
			res.Detail = reason
			log.Warn().Str("step", s.name).Str("reason", reason).Msg("[Run] step skipped")
			return res
		}
	}

	log.Info().Str("step", s.name).Msg("[Run] step started")
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.Config.StepTimeout)
	defer cancel()

	defer func() {
		res.Duration = time.Since(start)
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic: %v", p)
		}
		switch {
		case res.Err == nil:
			res.Status = definitions.StepPassed
			log.Info().Str("step", s.name).Dur("took", res.Duration).Str("detail", res.Detail).Msg("[Run] step passed")
		case errors.Is(res.Err, errSkipped):
			res.Status = definitions.StepSkipped
			log.Info().Str("step", s.name).Str("detail", res.Detail).Msg("[Run] step skipped")
		case s.optional:
			res.Status = definitions.StepWarned
			log.Warn().Err(res.Err).Str("step", s.name).Msg("[Run] optional step failed, continuing")
		default:
			res.Status = definitions.StepFailed
			log.Error().Err(res.Err).Str("step", s.name).Msg("[Run] step failed, continuing")
		}
	}()

	res.Detail, res.Err = s.run(ctx)
	return res
}

func (r *Runner) selectDevice(ctx context.Context) (string, error) {
	info, err := r.Device.SelectDevice(ctx, r.Config.DeviceID)
	if err != nil {
		return "", err
	}
	r.selected = info
	return info.DeviceID, nil
}

func (r *Runner) readAPILevel(ctx context.Context) (string, error) {
	level, err := r.Device.GetAPILevel(ctx)
	if err != nil {
		return "", err
	}
	r.selected.APILevel = level
	r.Lifecycle.SetAPILevel(level)
	return "api " + strconv.Itoa(level), nil
}

func (r *Runner) readManifest(ctx context.Context) (string, error) {
	manifest, err := r.ReadManifest(r.Config.ApkPath)
	if err != nil {
		return "", err
	}
	log.Info().Str("manifest", utils.JsonString(manifest)).Msg("[Run] apk manifest")

	detail := fmt.Sprintf("%s %s (%d)", manifest.Package, manifest.VersionName, manifest.VersionCode)
	if manifest.Package != constants.ServicePackage {
		return detail, fmt.Errorf("apk package %s, expected %s", manifest.Package, constants.ServicePackage)
	}
	return detail, nil
}

func (r *Runner) grantPermissions(ctx context.Context) (string, error) {
	skipped, err := r.Lifecycle.GrantPermissions(ctx)
	if skipped {
		return fmt.Sprintf("api %d has no runtime permissions", r.selected.APILevel), errSkipped
	}
	return "", err
}

func (r *Runner) removeStaleForwards(ctx context.Context) (string, error) {
	removed, err := r.Forwards.RemoveStaleForwards(ctx)
	return fmt.Sprintf("removed %v", removed), err
}

func (r *Runner) forwardPort(ctx context.Context) (string, error) {
	port, err := r.Forwards.AllocateAndForward(ctx)
	if err != nil {
		return "", err
	}
	r.hostPort = port
	fmt.Fprintln(r.Out, r.marker.ExecuteString(map[string]any{"port": strconv.Itoa(port)}))
	return fmt.Sprintf("tcp:%d -> tcp:%d", port, constants.ServiceDevicePort), nil
}

func (r *Runner) listForwards(ctx context.Context) (string, error) {
	entries, err := r.Forwards.ListForwards(ctx)
	if err != nil {
		return "", err
	}
	return utils.JsonString(entries), nil
}

func (r *Runner) setupDemoApp(ctx context.Context) (string, error) {
	if r.Config.SkipDemo {
		return "disabled", errSkipped
	}
	if r.Config.DemoApkPath != "" {
		if err := r.Device.Install(ctx, r.Config.DemoApkPath); err != nil {
			return "", fmt.Errorf("install demo app: %w", err)
		}
	}
	if err := r.Device.LaunchApp(ctx, constants.DemoPackage); err != nil {
		return "", fmt.Errorf("launch demo app: %w", err)
	}
	return constants.DemoPackage, nil
}

func (r *Runner) verify(ctx context.Context, report *definitions.Report) (string, error) {
	report.Endpoints = r.Verifier.Verify(ctx, r.hostPort)

	failed := 0
	for _, e := range report.Endpoints {
		if !e.Matched() {
			failed++
		}
	}
	detail := fmt.Sprintf("%d/%d endpoints matched", len(report.Endpoints)-failed, len(report.Endpoints))
	if failed > 0 {
		return detail, fmt.Errorf("%d endpoint(s) drifted or failed", failed)
	}
	return detail, nil
}
