package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the version of the application, set by build flags
	Version = "dev"
	// Commit is the git commit hash, set by build flags
	Commit = "unknown"
	// BuildDate is the build date, set by build flags
	BuildDate = "unknown"
)

// BinaryName is the name under which this binary is published in a
// catalog's releases document.
const BinaryName = "1fpga"

// Info returns version information
func Info() string {
	return fmt.Sprintf("corehub %s\nCommit: %s\nBuilt: %s\nGo: %s\nOS/Arch: %s/%s",
		Version,
		Commit,
		BuildDate,
		runtime.Version(),
		runtime.GOOS,
		runtime.GOARCH,
	)
}

// Short returns short version string
func Short() string {
	return Version
}

// Installed returns the installed version of a known binary. The second
// result is false when the binary is not one this program knows how to
// inspect.
func Installed(binary string) (string, bool) {
	switch binary {
	case BinaryName:
		if Version == "dev" {
			return "", true
		}
		return Version, true
	default:
		return "", false
	}
}
