package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	if Version != "dev" {
		t.Errorf("default Version = %q, want %q", Version, "dev")
	}
	if GitCommit != "unknown" {
		t.Errorf("default GitCommit = %q, want %q", GitCommit, "unknown")
	}
}

func TestInfo(t *testing.T) {
	got := Info()
	if !strings.HasPrefix(got, "dev (unknown) built unknown") {
		t.Errorf("Info() = %q", got)
	}
	if !strings.Contains(got, runtime.Version()) {
		t.Errorf("Info() = %q, missing Go version", got)
	}
}
