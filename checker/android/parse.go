package android

import (
	"bufio"
	"strings"

	"github.com/spance/a11ycheck/checker/definitions"
)

func parseDevices(output string) []definitions.DeviceInfo {
	var devices []definitions.DeviceInfo
	scanner := bufio.NewScanner(strings.NewReader(output))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		deviceID := parts[0]
		connType := definitions.USB
		switch {
		case strings.Contains(deviceID, ":"):
			connType = definitions.Remote
		case strings.HasPrefix(deviceID, "emulator"):
			connType = definitions.Emulator
		}

		var model string
		for _, part := range parts[2:] {
			if strings.HasPrefix(part, "model:") {
				model = strings.SplitN(part, ":", 2)[1]
				break
			}
		}

		devices = append(devices, definitions.DeviceInfo{
			DeviceID:       deviceID,
			Status:         parts[1],
			ConnectionType: connType,
			Model:          model,
		})
	}
	return devices
}

// hasPackage matches `pm list packages` lines exactly; the filter argument is a substring match.
func hasPackage(output, packageName string) bool {
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "package:"+packageName {
			return true
		}
	}
	return false
}

// parseRequestedPermissions reads the "requested permissions:" block of `dumpsys package`.
func parseRequestedPermissions(output string) []string {
	var perms []string
	seen := map[string]bool{}
	inBlock := false
	blockIndent := 0

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if trimmed == "requested permissions:" {
			inBlock = true
			blockIndent = indent
			continue
		}
		if !inBlock {
			continue
		}
		if trimmed == "" || indent <= blockIndent || strings.HasSuffix(trimmed, ":") {
			inBlock = false
			continue
		}
		perm := strings.TrimSpace(strings.SplitN(trimmed, ":", 2)[0])
		if perm != "" && !seen[perm] {
			seen[perm] = true
			perms = append(perms, perm)
		}
	}
	return perms
}

// parseFocusedComponent picks the component out of mCurrentFocus, falling back to mFocusedApp.
func parseFocusedComponent(output string) string {
	var focusedApp string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "mCurrentFocus="):
			if c := componentToken(line); c != "" {
				return c
			}
		case strings.HasPrefix(line, "mFocusedApp=") && focusedApp == "":
			focusedApp = componentToken(line)
		}
	}
	return focusedApp
}

// componentToken returns the first "pkg/cls" token of a dumpsys line.
func componentToken(line string) string {
	for _, field := range strings.Fields(line) {
		field = strings.TrimRight(field, "}")
		if strings.Count(field, "/") == 1 && !strings.HasPrefix(field, "/") && !strings.HasSuffix(field, "/") {
			return field
		}
	}
	return ""
}

// sameComponent compares components, expanding the ".Cls" shorthand against the package.
func sameComponent(a, b string) bool {
	return expandComponent(a) == expandComponent(b) && a != ""
}

func expandComponent(c string) string {
	pkg, cls, ok := strings.Cut(c, "/")
	if !ok {
		return c
	}
	if strings.HasPrefix(cls, ".") {
		cls = pkg + cls
	}
	return pkg + "/" + cls
}
