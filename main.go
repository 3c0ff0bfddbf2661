package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/spance/a11ycheck/checker"
	"github.com/spance/a11ycheck/checker/definitions"
	"github.com/spance/a11ycheck/checker/helper"
	"github.com/spance/a11ycheck/constants"
	"github.com/spance/a11ycheck/utils"
)

// Config holds all the configuration values from command line arguments
type Config struct {
	ApkPath     string `json:"apk_path"`
	DeviceID    string `json:"device_id"`
	SnapshotDir string `json:"snapshot_dir"`
	Update      bool   `json:"update"`
	Serialize   bool   `json:"serialize"`
	JSONDiff    bool   `json:"json_diff"`
	DemoApkPath string `json:"demo_apk_path"`
	SkipDemo    bool   `json:"skip_demo"`
	ListDevices bool   `json:"list_devices"`

	StepTimeout    time.Duration `json:"step_timeout"`
	DialogTimeout  time.Duration `json:"dialog_timeout"`
	ConfirmTimeout time.Duration `json:"confirm_timeout"`
	ReadyTimeout   time.Duration `json:"ready_timeout"`
	ForwardRetries int           `json:"forward_retries"`

	Debug bool `json:"debug"`
}

var rootCmd = &cobra.Command{
	Use:   "a11ycheck",
	Short: "Accessibility service end-to-end check",
	Long: `a11ycheck installs the Accessibility Insights for Android service on a device,
enables and confirms it, forwards its HTTP port to the host and compares the
service responses with the stored snapshots.`,
	Example: `  # Check against the snapshots in the current directory
  a11ycheck --apk ./app-debug.apk

  # Use a specific device
  a11ycheck --apk ./app-debug.apk --device-id emulator-5554

  # Accept the live responses as the new snapshots
  a11ycheck --apk ./app-debug.apk --update

  # Dump live responses next to the snapshots without comparing
  a11ycheck --apk ./app-debug.apk --serialize

  # List connected devices
  a11ycheck --list-devices`,
	Run: func(cmd *cobra.Command, args []string) {
		executed = true
		fmt.Printf("Configuration: %s\n", utils.JsonIndent(config))
	},
}

var (
	config = &Config{}
	// executed stays false when cobra only printed help or version
	executed bool
	// adbBinary is what the system check looks up and runs
	adbBinary = constants.ADB
)

// Helper function to get environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper function to get environment variable as int with default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Helper function to get environment variable as bool with default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// Helper function to get environment variable as duration with default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func init() {
	// Service options
	rootCmd.PersistentFlags().StringVar(&config.ApkPath, "apk",
		getEnv("A11Y_CHECK_APK", "app-debug.apk"),
		"Path of the service APK to install")

	rootCmd.PersistentFlags().StringVarP(&config.DeviceID, "device-id", "d",
		getEnv("A11Y_CHECK_DEVICE_ID", ""),
		"ADB device ID (default: first online device)")

	rootCmd.PersistentFlags().BoolVar(&config.ListDevices, "list-devices", false,
		"List connected devices and exit")

	// Snapshot options
	rootCmd.PersistentFlags().StringVar(&config.SnapshotDir, "snapshot-dir",
		getEnv("A11Y_CHECK_SNAPSHOT_DIR", "."),
		"Directory holding the reference snapshots")

	rootCmd.PersistentFlags().BoolVar(&config.Update, "update", false,
		"Overwrite the reference snapshots with the live responses after diffing")

	rootCmd.PersistentFlags().BoolVar(&config.Serialize, "serialize", false,
		"Write the live responses to .serialized side files without diffing")

	rootCmd.PersistentFlags().BoolVar(&config.JSONDiff, "json-diff",
		getEnvBool("A11Y_CHECK_JSON_DIFF", false),
		"Also print each delta as JSON")

	// Demo app options
	rootCmd.PersistentFlags().StringVar(&config.DemoApkPath, "demo-apk",
		getEnv("A11Y_CHECK_DEMO_APK", ""),
		"Install this demo APK before launching it (default: expect it installed)")

	rootCmd.PersistentFlags().BoolVar(&config.SkipDemo, "skip-demo",
		getEnvBool("A11Y_CHECK_SKIP_DEMO", false),
		"Do not launch the demo app")

	// Timing options
	rootCmd.PersistentFlags().DurationVar(&config.StepTimeout, "step-timeout",
		getEnvDuration("A11Y_CHECK_STEP_TIMEOUT", 5*time.Minute),
		"Upper bound for a single step")

	rootCmd.PersistentFlags().DurationVar(&config.DialogTimeout, "dialog-timeout",
		getEnvDuration("A11Y_CHECK_DIALOG_TIMEOUT", 20*time.Second),
		"How long to wait for the screen capture dialog")

	rootCmd.PersistentFlags().DurationVar(&config.ConfirmTimeout, "confirm-timeout",
		getEnvDuration("A11Y_CHECK_CONFIRM_TIMEOUT", 30*time.Second),
		"How long to poll for the running service")

	rootCmd.PersistentFlags().DurationVar(&config.ReadyTimeout, "ready-timeout",
		getEnvDuration("A11Y_CHECK_READY_TIMEOUT", 30*time.Second),
		"How long to poll the forwarded port before verifying")

	rootCmd.PersistentFlags().IntVar(&config.ForwardRetries, "forward-retries",
		getEnvInt("A11Y_CHECK_FORWARD_RETRIES", 3),
		"Port allocation attempts")

	rootCmd.PersistentFlags().BoolVar(&config.Debug, "debug", false,
		"Enable debug mode (default: false)")

	rootCmd.MarkFlagsMutuallyExclusive("update", "serialize")
}

func main() {
	parseArgs()
	if !executed {
		return
	}

	// Configure zerolog
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if config.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx := context.Background()

	device, err := checker.CreateDevice(constants.ADB)
	if err != nil {
		log.Error().Err(err).Msg("creating device failed")
		os.Exit(1)
	}

	if config.ListDevices {
		listDevices(ctx, device)
		return
	}

	if passed := checkSystemRequirements(ctx); !passed {
		log.Info().Msg(strings.Repeat("-", 50))
		log.Error().Msg("❌ System check failed. Please fix the issues above.")
		os.Exit(1)
	}

	runner := checker.NewRunner(device, runConfig())
	report := runner.Run(ctx)

	helper.PrintReport(os.Stdout, report)
	if !report.Passed() {
		os.Exit(1)
	}
}

func parseArgs() *Config {
	// Set pre-run validation
	rootCmd.PersistentPreRunE = validateArgs

	// Execute the command
	cobra.CheckErr(rootCmd.Execute())

	return config
}

func validateArgs(cmd *cobra.Command, args []string) error {
	if config.Update && config.Serialize {
		return fmt.Errorf("--update and --serialize cannot be used together")
	}
	if config.ListDevices {
		return nil
	}
	if config.ApkPath == "" {
		return fmt.Errorf("--apk is required")
	}
	if config.ForwardRetries < 1 {
		return fmt.Errorf("invalid forward retries: %d. Must be at least 1", config.ForwardRetries)
	}
	if config.StepTimeout <= 0 || config.DialogTimeout <= 0 || config.ConfirmTimeout <= 0 || config.ReadyTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

func runConfig() *definitions.RunConfig {
	mode := definitions.ModeDiff
	switch {
	case config.Update:
		mode = definitions.ModeUpdate
	case config.Serialize:
		mode = definitions.ModeSerialize
	}

	return &definitions.RunConfig{
		ApkPath:        config.ApkPath,
		DeviceID:       config.DeviceID,
		SnapshotDir:    config.SnapshotDir,
		Mode:           mode,
		JSONDiff:       config.JSONDiff,
		DemoApkPath:    config.DemoApkPath,
		SkipDemo:       config.SkipDemo,
		StepTimeout:    config.StepTimeout,
		DialogTimeout:  config.DialogTimeout,
		ConfirmTimeout: config.ConfirmTimeout,
		ReadyTimeout:   config.ReadyTimeout,
		ForwardRetries: config.ForwardRetries,
	}
}

func listDevices(ctx context.Context, device checker.Device) {
	devices, err := device.ListDevices(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list devices")
		return
	}
	if len(devices) == 0 {
		log.Info().Msg("No devices connected.")
		return
	}

	log.Info().Msg("Connected devices:")
	log.Info().Msg(strings.Repeat("-", 60))
	for _, d := range devices {
		statusIcon := "✅"
		if !d.Online() {
			statusIcon = "❌"
		}
		modelInfo := ""
		if d.Model != "" {
			modelInfo = fmt.Sprintf(" (%s)", d.Model)
		}
		log.Info().Str("device", fmt.Sprintf("  %s %-30s [%s]%s", statusIcon, d.DeviceID, d.ConnectionType, modelInfo)).Msg("")
	}
}

func checkSystemRequirements(ctx context.Context) bool {
	log.Info().Msg("🔍 Checking system requirements...")
	log.Info().Msg(strings.Repeat("-", 50))

	// Check 1: adb installed
	log.Info().Msg("1. Checking ADB installation... ")
	if _, err := exec.LookPath(adbBinary); err != nil {
		log.Error().Msg("❌ FAILED")
		log.Info().Msg("   Error: ADB is not installed or not in PATH.")
		log.Info().Msg("   Solution: Install ADB:")
		log.Info().Msg("     - macOS: brew install android-platform-tools")
		log.Info().Msg("     - Linux: sudo apt install android-tools-adb")
		log.Info().Msg("     - Windows: Download from https://developer.android.com/studio/releases/platform-tools")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	output, err := exec.CommandContext(ctx, adbBinary, "version").Output()
	if err != nil {
		log.Error().Msg("❌ FAILED")
		log.Info().Msgf("   Error: ADB command failed to run: %v", err)
		return false
	}
	versionLine := strings.TrimSpace(strings.SplitN(string(output), "\n", 2)[0])
	if versionLine == "" {
		versionLine = "installed"
	}
	log.Info().Msgf("✅ OK (%s)", versionLine)

	// Check 2: APK present. The install step reports it; the other steps still run.
	log.Info().Msgf("2. Checking service APK (%s)... ", config.ApkPath)
	if _, err := os.Stat(config.ApkPath); err != nil {
		log.Warn().Msg("⚠️ MISSING")
		log.Info().Msgf("   Warning: %v", err)
		log.Info().Msg("   The install step will fail; diagnostics continue.")
	} else {
		log.Info().Msg("✅ OK")
	}

	log.Info().Msg(strings.Repeat("-", 50))
	log.Info().Msg("✅ All system checks passed!")
	return true
}
