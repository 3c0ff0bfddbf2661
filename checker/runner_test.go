package checker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spance/a11ycheck/checker/definitions"
	"github.com/spance/a11ycheck/checker/dialog"
	"github.com/spance/a11ycheck/checker/snapshot"
	"github.com/spance/a11ycheck/constants"
)

type fakeSession struct {
	devices   []definitions.DeviceInfo
	selectErr error
	apiLevel  int
	apiPanic  bool
	installed map[string]bool
	settings  map[string]string
	forwards  map[int]int
	launched  []string
	calls     []string

	// dropInstall makes Install report success without installing
	dropInstall bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		devices:   []definitions.DeviceInfo{{DeviceID: "emulator-5554", Status: "device"}},
		apiLevel:  33,
		installed: map[string]bool{constants.ServicePackage: true},
		settings:  map[string]string{},
		forwards:  map[int]int{40001: constants.ServiceDevicePort},
	}
}

func (f *fakeSession) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeSession) ListDevices(ctx context.Context) ([]definitions.DeviceInfo, error) {
	return f.devices, nil
}

func (f *fakeSession) SelectDevice(ctx context.Context, deviceID string) (*definitions.DeviceInfo, error) {
	f.record("select")
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	d := f.devices[0]
	return &d, nil
}

func (f *fakeSession) GetAPILevel(ctx context.Context) (int, error) {
	if f.apiPanic {
		panic("getprop exploded")
	}
	return f.apiLevel, nil
}

func (f *fakeSession) IsAppInstalled(ctx context.Context, pkg string) (bool, error) {
	return f.installed[pkg], nil
}

func (f *fakeSession) Install(ctx context.Context, apkPath string) error {
	f.record("install " + filepath.Base(apkPath))
	if !f.dropInstall {
		f.installed[constants.ServicePackage] = true
	}
	return nil
}

func (f *fakeSession) Uninstall(ctx context.Context, pkg string) error {
	f.record("uninstall " + pkg)
	delete(f.installed, pkg)
	return nil
}

func (f *fakeSession) GrantAllPermissions(ctx context.Context, pkg string) ([]string, error) {
	f.record("grant")
	return nil, nil
}

func (f *fakeSession) GetSetting(ctx context.Context, ns, key string) (string, error) {
	if v, ok := f.settings[key]; ok {
		return v, nil
	}
	return "null", nil
}

func (f *fakeSession) PutSetting(ctx context.Context, ns, key, value string) error {
	f.record("put " + key)
	f.settings[key] = value
	return nil
}

func (f *fakeSession) Shell(ctx context.Context, args ...string) (string, error) {
	if strings.Contains(f.settings[constants.EnabledAccessibilityServices], constants.ServiceComponent) {
		return "ServiceRecord{1 u0 " + constants.ServiceComponent + "}", nil
	}
	return "(nothing)", nil
}

func (f *fakeSession) WaitForActivity(ctx context.Context, component string, timeout time.Duration) error {
	return nil
}

func (f *fakeSession) KeyEvent(ctx context.Context, keycode int) error {
	return nil
}

func (f *fakeSession) LaunchApp(ctx context.Context, pkg string) error {
	f.launched = append(f.launched, pkg)
	return nil
}

func (f *fakeSession) Forward(ctx context.Context, hostPort, devicePort int) error {
	f.record(fmt.Sprintf("forward %d", devicePort))
	f.forwards[hostPort] = devicePort
	return nil
}

func (f *fakeSession) ListForwards(ctx context.Context) ([]string, error) {
	var lines []string
	for h, d := range f.forwards {
		lines = append(lines, fmt.Sprintf("emulator-5554 tcp:%d tcp:%d", h, d))
	}
	return lines, nil
}

func (f *fakeSession) RemoveForward(ctx context.Context, hostPort int) error {
	f.record(fmt.Sprintf("remove %d", hostPort))
	delete(f.forwards, hostPort)
	return nil
}

type runFixture struct {
	session  *fakeSession
	runner   *Runner
	out      *bytes.Buffer
	accepted int
	bodies   map[string]string
	manifest definitions.ApkManifest
}

func newRunFixture(t *testing.T) *runFixture {
	f := &runFixture{
		session: newFakeSession(),
		out:     &bytes.Buffer{},
		bodies: map[string]string{
			"/AccessibilityInsights/config": `{"status":"ok","axeViewId":"B"}`,
			"/AccessibilityInsights/result": `{"status":"ok"}`,
		},
		manifest: definitions.ApkManifest{Package: constants.ServicePackage, VersionName: "1.0", VersionCode: 1},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := f.bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	srvPort := srv.Listener.Addr().(*net.TCPAddr).Port

	dir := t.TempDir()
	apk := filepath.Join(dir, "app-debug.apk")
	require.NoError(t, os.WriteFile(apk, []byte("PK"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sunflower-config.snapshot"), []byte(`{"status":"ok","axeViewId":"A"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sunflower-result.snapshot"), []byte(`{"status":"ok"}`), 0o644))

	cfg := &definitions.RunConfig{
		ApkPath:        apk,
		SnapshotDir:    dir,
		StepTimeout:    10 * time.Second,
		ConfirmTimeout: 2 * time.Second,
		ReadyTimeout:   2 * time.Second,
	}
	f.runner = NewRunner(f.session, cfg)
	f.runner.Out = f.out
	f.runner.ReadManifest = func(path string) (*definitions.ApkManifest, error) {
		m := f.manifest
		return &m, nil
	}
	f.runner.Acceptor = dialog.AcceptorFunc(func(ctx context.Context) error {
		f.accepted++
		return nil
	})
	// the fake forward never reaches the server, so pin the URL to it
	f.runner.Verifier = snapshot.NewVerifier(snapshot.NewStore(dir), cfg.Mode,
		snapshot.WithURLTemplate(fmt.Sprintf("http://127.0.0.1:%d/{path}", srvPort)),
		snapshot.WithOutput(&bytes.Buffer{}),
	)
	return f
}

func stepStatuses(report *definitions.Report) map[string]definitions.StepStatus {
	m := map[string]definitions.StepStatus{}
	for _, s := range report.Steps {
		m[s.Name] = s.Status
	}
	return m
}

func TestRunHappyPath(t *testing.T) {
	f := newRunFixture(t)
	report := f.runner.Run(context.Background())

	for _, s := range report.Steps {
		assert.Equal(t, definitions.StepPassed, s.Status, "%s: %v", s.Name, s.Err)
	}
	assert.True(t, report.Passed())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "emulator-5554", report.DeviceID)
	assert.Equal(t, 1, f.accepted)
	assert.Equal(t, []string{constants.DemoPackage}, f.session.launched)

	names := make([]string, 0, len(report.Steps))
	for _, s := range report.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"select-device", "read-api-level", "read-manifest", "uninstall-previous", "install",
		"verify-installed", "grant-permissions",
		"enable-service", "confirm-running", "accept-permission-dialog", "remove-stale-forwards",
		"forward-port", "list-forwards", "demo-app", "wait-service-ready", "verify-snapshots",
	}, names)

	// stale forward removed before the new one is created
	assert.Equal(t, []string{
		"select",
		"uninstall " + constants.ServicePackage,
		"install app-debug.apk",
		"grant",
		"put " + constants.EnabledAccessibilityServices,
		"remove 40001",
		fmt.Sprintf("forward %d", constants.ServiceDevicePort),
	}, f.session.calls)

	require.NotZero(t, report.HostPort)
	assert.Equal(t, fmt.Sprintf("##vso[task.setvariable variable=aiserviceport]%d\n", report.HostPort), f.out.String())
	assert.Equal(t, constants.ServiceDevicePort, f.session.forwards[report.HostPort])
	assert.Len(t, f.session.forwards, 1)
}

func TestRunReportsDrift(t *testing.T) {
	f := newRunFixture(t)
	f.bodies["/AccessibilityInsights/result"] = `{"status":"fail"}`

	report := f.runner.Run(context.Background())
	assert.False(t, report.Passed())
	assert.Equal(t, definitions.StepFailed, stepStatuses(report)["verify-snapshots"])
	require.Len(t, report.Endpoints, 2)
	assert.True(t, report.Endpoints[0].Matched())
	assert.Equal(t, 1, report.Endpoints[1].Changes)
}

func TestRunContinuesAfterFailures(t *testing.T) {
	f := newRunFixture(t)
	f.runner.Acceptor = dialog.AcceptorFunc(func(ctx context.Context) error {
		return errors.New("dialog never appeared")
	})
	f.session.apiPanic = true

	report := f.runner.Run(context.Background())
	statuses := stepStatuses(report)
	assert.Equal(t, definitions.StepWarned, statuses["read-api-level"])
	assert.Equal(t, definitions.StepFailed, statuses["accept-permission-dialog"])
	assert.Equal(t, definitions.StepPassed, statuses["forward-port"])
	assert.Equal(t, definitions.StepPassed, statuses["verify-snapshots"])
	assert.False(t, report.Passed())

	for _, s := range report.Steps {
		if s.Name == "read-api-level" {
			assert.ErrorContains(t, s.Err, "panic: getprop exploded")
		}
	}
}

func TestRunWithoutDeviceSkipsDependentSteps(t *testing.T) {
	f := newRunFixture(t)
	f.session.selectErr = errors.New("no online android device")

	report := f.runner.Run(context.Background())
	statuses := stepStatuses(report)
	assert.Equal(t, definitions.StepFailed, statuses["select-device"])
	assert.Equal(t, definitions.StepPassed, statuses["read-manifest"])
	for name, status := range statuses {
		if name != "select-device" && name != "read-manifest" {
			assert.Equal(t, definitions.StepSkipped, status, name)
		}
	}
	assert.False(t, report.Passed())
	assert.Empty(t, f.out.String())
}

func TestRunWarnsOnManifestAndInstallDiagnostics(t *testing.T) {
	f := newRunFixture(t)
	f.manifest.Package = "com.google.samples.apps.sunflower"
	f.session.dropInstall = true

	report := f.runner.Run(context.Background())
	statuses := stepStatuses(report)
	assert.Equal(t, definitions.StepWarned, statuses["read-manifest"])
	assert.Equal(t, definitions.StepPassed, statuses["install"])
	assert.Equal(t, definitions.StepWarned, statuses["verify-installed"])
	assert.Equal(t, definitions.StepPassed, statuses["verify-snapshots"])
	assert.True(t, report.Passed())

	for _, s := range report.Steps {
		if s.Name == "read-manifest" {
			assert.ErrorContains(t, s.Err, "expected "+constants.ServicePackage)
		}
	}
}

func TestRunSkipsPermissionGrantOnOldDevices(t *testing.T) {
	f := newRunFixture(t)
	f.session.apiLevel = 22
	f.runner.Config.SkipDemo = true

	report := f.runner.Run(context.Background())
	statuses := stepStatuses(report)
	assert.Equal(t, definitions.StepSkipped, statuses["grant-permissions"])
	assert.Equal(t, definitions.StepSkipped, statuses["demo-app"])
	assert.NotContains(t, f.session.calls, "grant")
	assert.Empty(t, f.session.launched)
	assert.True(t, report.Passed())
}

func TestCreateDevice(t *testing.T) {
	d, err := CreateDevice(constants.ADB)
	require.NoError(t, err)
	assert.NotNil(t, d)

	_, err = CreateDevice("ios")
	assert.Error(t, err)
}
