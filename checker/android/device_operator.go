package android

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

func (r *ADBDevice) IsAppInstalled(ctx context.Context, packageName string) (bool, error) {
	output, err := r.run(ctx, "IsAppInstalled", defaultCmdTimeout, "shell", "pm", "list", "packages", packageName)
	if err != nil {
		return false, err
	}
	return hasPackage(output, packageName), nil
}

func (r *ADBDevice) Install(ctx context.Context, apkPath string) error {
	output, err := r.run(ctx, "Install", installCmdTimeout, "install", "-r", apkPath)
	if err != nil {
		return err
	}
	if !strings.Contains(output, "Success") {
		return fmt.Errorf("install failed: %s", strings.TrimSpace(output))
	}
	return nil
}

func (r *ADBDevice) Uninstall(ctx context.Context, packageName string) error {
	output, err := r.run(ctx, "Uninstall", installCmdTimeout, "uninstall", packageName)
	if err != nil {
		return err
	}
	if !strings.Contains(output, "Success") {
		return fmt.Errorf("uninstall failed: %s", strings.TrimSpace(output))
	}
	return nil
}

// GrantAllPermissions grants every permission the package requests. Install-time permissions
// cannot be granted and are skipped.
func (r *ADBDevice) GrantAllPermissions(ctx context.Context, packageName string) ([]string, error) {
	output, err := r.run(ctx, "GrantAllPermissions", defaultCmdTimeout, "shell", "dumpsys", "package", packageName)
	if err != nil {
		return nil, err
	}

	var granted []string
	for _, perm := range parseRequestedPermissions(output) {
		if _, err := r.run(ctx, "GrantAllPermissions", defaultCmdTimeout, "shell", "pm", "grant", packageName, perm); err != nil {
			log.Debug().Str("permission", perm).Msg("[GrantAllPermissions] not grantable, skipped")
			continue
		}
		granted = append(granted, perm)
	}
	return granted, nil
}

func (r *ADBDevice) KeyEvent(ctx context.Context, keycode int) error {
	_, err := r.run(ctx, "KeyEvent", defaultCmdTimeout, "shell", "input", "keyevent", strconv.Itoa(keycode))
	return err
}

func (r *ADBDevice) Shell(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, "Shell", defaultCmdTimeout, append([]string{"shell"}, args...)...)
}

// GetSetting returns the raw value; adb prints "null" for unset keys.
func (r *ADBDevice) GetSetting(ctx context.Context, namespace, key string) (string, error) {
	output, err := r.run(ctx, "GetSetting", defaultCmdTimeout, "shell", "settings", "get", namespace, key)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

func (r *ADBDevice) PutSetting(ctx context.Context, namespace, key, value string) error {
	_, err := r.run(ctx, "PutSetting", defaultCmdTimeout, "shell", "settings", "put", namespace, key, value)
	return err
}

func (r *ADBDevice) LaunchApp(ctx context.Context, packageName string) error {
	output, err := r.run(ctx, "LaunchApp", defaultCmdTimeout,
		"shell", "monkey",
		"-p", packageName,
		"-c", "android.intent.category.LAUNCHER",
		"1",
	)
	if err != nil {
		return err
	}
	if strings.Contains(output, "No activities found") {
		return fmt.Errorf("no launcher activity in %s", packageName)
	}
	return nil
}
