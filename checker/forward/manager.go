// Package forward keeps exactly one host port forwarded to the service's device port.
package forward

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/spance/a11ycheck/checker/definitions"
	"github.com/spance/a11ycheck/checker/helper"
)

// Bridge is the slice of the device session the manager needs.
type Bridge interface {
	Forward(ctx context.Context, hostPort, devicePort int) error
	ListForwards(ctx context.Context) ([]string, error)
	RemoveForward(ctx context.Context, hostPort int) error
}

type Manager struct {
	bridge     Bridge
	devicePort int
	retries    int
	retryPause time.Duration

	// freePort is swapped in tests.
	freePort func() (int, error)
}

func NewManager(bridge Bridge, devicePort, retries int) *Manager {
	return &Manager{
		bridge:     bridge,
		devicePort: devicePort,
		retries:    retries,
		retryPause: 200 * time.Millisecond,
		freePort:   FreePort,
	}
}

// ParseForwardEntry extracts ports from "<serial> <local> <remote> ...", where local and remote
// look like "tcp:54321" or "local:54321".
func ParseForwardEntry(line string) (definitions.ForwardEntry, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return definitions.ForwardEntry{}, fmt.Errorf("malformed forward entry %q", line)
	}
	host, err := portOf(fields[1])
	if err != nil {
		return definitions.ForwardEntry{}, fmt.Errorf("forward entry %q host port: %w", line, err)
	}
	device, err := portOf(fields[2])
	if err != nil {
		return definitions.ForwardEntry{}, fmt.Errorf("forward entry %q device port: %w", line, err)
	}
	return definitions.ForwardEntry{Raw: line, HostPort: host, DevicePort: device}, nil
}

func portOf(token string) (int, error) {
	_, port, ok := strings.Cut(token, ":")
	if !ok {
		return 0, fmt.Errorf("no port in %q", token)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return 0, fmt.Errorf("bad port %q", port)
	}
	return n, nil
}

func (m *Manager) ListForwards(ctx context.Context) ([]definitions.ForwardEntry, error) {
	lines, err := m.bridge.ListForwards(ctx)
	if err != nil {
		return nil, err
	}
	var entries []definitions.ForwardEntry
	for _, line := range lines {
		entry, err := ParseForwardEntry(line)
		if err != nil {
			log.Warn().Err(err).Msg("[ListForwards] skipping entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// RemoveStaleForwards drops every forward that targets the service port, so a rerun never hits
// "address already in use". It returns the host ports it removed.
func (m *Manager) RemoveStaleForwards(ctx context.Context) ([]int, error) {
	entries, err := m.ListForwards(ctx)
	if err != nil {
		return nil, err
	}
	stale := lo.Filter(entries, func(e definitions.ForwardEntry, _ int) bool {
		return e.DevicePort == m.devicePort
	})

	var removed []int
	var errs []error
	for _, e := range stale {
		log.Info().Int("host_port", e.HostPort).Int("device_port", e.DevicePort).Msg("[RemoveStaleForwards] removing")
		if err := m.bridge.RemoveForward(ctx, e.HostPort); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, e.HostPort)
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("removing stale forwards: %w", errors.Join(errs...))
	}
	return removed, nil
}

// AllocateAndForward forwards a fresh ephemeral host port to the service port. The port can be
// taken between allocation and adb binding it, so allocation is retried.
func (m *Manager) AllocateAndForward(ctx context.Context) (int, error) {
	return helper.Retry(ctx, "forward to device port "+strconv.Itoa(m.devicePort), m.retries, m.retryPause, func(ctx context.Context) (int, error) {
		port, err := m.freePort()
		if err != nil {
			return 0, err
		}
		if err := m.bridge.Forward(ctx, port, m.devicePort); err != nil {
			return 0, err
		}
		log.Info().Int("host_port", port).Int("device_port", m.devicePort).Msg("[AllocateAndForward] forwarded")
		return port, nil
	})
}

// FreePort asks the OS for an unused loopback TCP port.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocating free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
