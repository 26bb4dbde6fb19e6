// Package version carries build metadata for lacpd and lagctl.
package version

import (
	"fmt"
	"runtime"
)

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/hongkiaong/lacpd/pkg/version.Version=v0.3.0 \
//	  -X github.com/hongkiaong/lacpd/pkg/version.GitCommit=abc1234 \
//	  -X github.com/hongkiaong/lacpd/pkg/version.BuildDate=2026-01-01T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a formatted version string for display.
func Info() string {
	return fmt.Sprintf("%s (%s) built %s, %s %s/%s",
		Version, GitCommit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
