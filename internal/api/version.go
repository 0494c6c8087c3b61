package api

import (
	"os"
	"runtime/debug"
)

// BuildVersion is the main module version reported by the status
// endpoint. It can be overridden via TEST_BUILD_VERSION for testing.
var BuildVersion string

func init() {
	if override := os.Getenv("TEST_BUILD_VERSION"); override != "" {
		BuildVersion = override
	} else {
		BuildVersion = computeVersion()
	}
}

func computeVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "devel"
	}
	return info.Main.Version
}
