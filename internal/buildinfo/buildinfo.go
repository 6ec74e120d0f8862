// Package buildinfo reports the version stamped into the binaries.
package buildinfo

import "runtime/debug"

// Version is set with -ldflags "-X netbus/internal/buildinfo.Version=...".
var Version = ""

func init() {
	if Version != "" {
		return
	}
	Version = "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}
