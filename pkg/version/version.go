// Package version reports the build's version.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set at link time with -ldflags "-X github.com/docker/deskpilot/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = ""
)

// String returns the version, falling back to the module version recorded
// by the Go toolchain when no version was linked in.
func String() string {
	v := Version
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	if Commit != "" {
		return fmt.Sprintf("%s (%s)", v, Commit)
	}
	return v
}
