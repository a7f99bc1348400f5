// Package version exposes build metadata injected via -ldflags:
//
//	go build -ldflags "-X github.com/rpenyav/ia-backend/internal/version.Version=1.2.0 ..."
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Short returns the bare version string.
func Short() string { return Version }

// Info returns a one-line description suitable for -version output.
func Info() string {
	return fmt.Sprintf("ia-backend %s (commit %s, built %s, %s)", Version, GitCommit, BuildDate, runtime.Version())
}
