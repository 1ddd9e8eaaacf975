package main

import (
	"runtime/debug"
)

// buildVersion reports the main module version stamped by the go tool
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "(devel)"
	}
	return info.Main.Version
}
