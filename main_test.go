package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withADB(t *testing.T, path string) {
	t.Helper()
	old := adbBinary
	adbBinary = path
	t.Cleanup(func() { adbBinary = old })
}

func withApk(t *testing.T, path string) {
	t.Helper()
	old := config.ApkPath
	config.ApkPath = path
	t.Cleanup(func() { config.ApkPath = old })
}

func TestSystemCheckToleratesMissingApk(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake adb is a shell script")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "adb")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'Android Debug Bridge version 1.0.41'\n"), 0o755))
	withADB(t, script)
	withApk(t, filepath.Join(dir, "missing.apk"))

	assert.True(t, checkSystemRequirements(context.Background()))
}

func TestSystemCheckRequiresADB(t *testing.T) {
	withADB(t, filepath.Join(t.TempDir(), "no-such-adb"))
	withApk(t, "app-debug.apk")

	assert.False(t, checkSystemRequirements(context.Background()))
}

func TestValidateArgs(t *testing.T) {
	saved := *config
	t.Cleanup(func() { *config = saved })

	*config = Config{ApkPath: "app.apk", ForwardRetries: 3, StepTimeout: 1, DialogTimeout: 1, ConfirmTimeout: 1, ReadyTimeout: 1}
	assert.NoError(t, validateArgs(rootCmd, nil))

	config.Update, config.Serialize = true, true
	assert.Error(t, validateArgs(rootCmd, nil))

	config.Update, config.Serialize = false, false
	config.ForwardRetries = 0
	assert.Error(t, validateArgs(rootCmd, nil))
}
