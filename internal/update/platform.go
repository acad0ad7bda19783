package update

import (
	"fmt"
	"runtime"
)

// Platform describes the current system platform
type Platform struct {
	OS   string // Operating system (windows, darwin, linux)
	Arch string // Architecture (amd64, arm64)
}

// Detect returns the current platform (OS and architecture)
func Detect() Platform {
	return Platform{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
}

// Channel returns the default release channel for this platform.
// Feeds are published per channel as releases.<channel>.json.
func (p Platform) Channel() string {
	switch p.OS {
	case "windows":
		return "win"
	case "darwin":
		return "osx"
	default:
		return "linux"
	}
}

// UserAgent identifies an application and this client in feed requests.
func (p Platform) UserAgent(appID, version string) string {
	return fmt.Sprintf("%s/%s hatch (%s; %s)", appID, version, p.OS, p.Arch)
}
