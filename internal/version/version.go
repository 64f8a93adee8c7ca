// Package version exposes build information stamped in at link time.
package version

import "fmt"

// Set via -ldflags at build time.
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// ShowVersion prints the version information to stdout.
func ShowVersion() {
	fmt.Printf("muxsweep %s (built %s)\n", Version, BuildDate)
}
