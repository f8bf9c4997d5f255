// Package netdiag resolves which API origin the client should talk to and
// helps diagnose why it cannot: a connectivity probe, troubleshooting tips
// and an offline inspection of the stored session.
package netdiag

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Platforms.
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWeb     = "web"
	PlatformDesktop = "desktop"
)

// Devices.
const (
	DeviceEmulator = "emulator" // Android emulator or iOS simulator
	DevicePhysical = "physical"
)

// Build modes.
const (
	ModeDevelopment = "development"
	ModeRelease     = "release"
)

// Development server defaults.
const (
	DefaultDevPort   = 3001
	DefaultDevScheme = "http"
	apiPath          = "/api"

	// androidHostLoopback is how the Android emulator reaches the host's localhost.
	androidHostLoopback = "10.0.2.2"
	localhost           = "localhost"
)

var (
	// ErrDevHostRequired means a physical device needs the LAN address of the
	// development machine and none was configured.
	ErrDevHostRequired = errors.New("netdiag: physical devices need api.dev_host set to the development machine's LAN address")
	// ErrProductionURLRequired means a release build has no production URL.
	ErrProductionURLRequired = errors.New("netdiag: release mode needs api.production_url")
)

// Target identifies where the client runs.
type Target struct {
	Platform string
	Device   string
	Mode     string
}

// Endpoints holds the configured API locations.
type Endpoints struct {
	ProductionURL string
	DevHost       string
	DevPort       int
	DevScheme     string
}

// ResolveBaseURL returns the API origin for target. In development every
// platform needs a different route to the host machine: the Android
// emulator uses its host alias, simulators and desktop use localhost, and
// physical devices need the machine's LAN address.
func ResolveBaseURL(target Target, ep Endpoints) (string, error) {
	if target.Mode == ModeRelease {
		if strings.TrimSpace(ep.ProductionURL) == "" {
			return "", ErrProductionURLRequired
		}

		return strings.TrimRight(ep.ProductionURL, "/"), nil
	}

	host, err := devHost(target, ep.DevHost)
	if err != nil {
		return "", err
	}

	scheme := ep.DevScheme
	if scheme == "" {
		scheme = DefaultDevScheme
	}

	port := ep.DevPort
	if port == 0 {
		port = DefaultDevPort
	}

	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   apiPath,
	}

	return u.String(), nil
}

func devHost(target Target, configured string) (string, error) {
	if target.Device == DevicePhysical && (target.Platform == PlatformAndroid || target.Platform == PlatformIOS) {
		if isPlaceholderHost(configured) {
			return "", ErrDevHostRequired
		}

		return configured, nil
	}

	switch target.Platform {
	case PlatformAndroid:
		return androidHostLoopback, nil
	case PlatformIOS, PlatformWeb, PlatformDesktop, "":
		return localhost, nil
	default:
		return "", fmt.Errorf("netdiag: unknown platform %q", target.Platform)
	}
}

// isPlaceholderHost reports whether host is unset or still the sample value.
func isPlaceholderHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))

	return h == "" || strings.Contains(h, "your") || h == localhost || h == "127.0.0.1"
}
