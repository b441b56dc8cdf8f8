// Package version reports the build identity of the shcov binary.
package version

import (
	"runtime/debug"
)

const unknown = "<unknown>"

// Version, Commit and Date are set via -ldflags at release time.
var (
	Version = "dev"
	Commit  = unknown
	Date    = unknown
)

// InitBinaryVersion fills unset fields from the module build info embedded
// by the Go toolchain.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == unknown {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == unknown {
				Date = setting.Value
			}
		}
	}
}

// String formats the build identity as "version (commit: ..., built: ...)".
func String() string {
	return Version + " (commit: " + Commit + ", built: " + Date + ")"
}
