package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrent(t *testing.T) {
	b := Current()
	assert.Equal(t, "dev", b.Version)
	assert.NotEmpty(t, b.Commit)
	assert.NotEmpty(t, b.Date)
	assert.Equal(t, runtime.Version(), b.GoVersion)
}

func TestBuildWithVCS(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs", Value: "git"},
		{Key: "vcs.revision", Value: "3f2c1ab"},
		{Key: "vcs.time", Value: "2026-03-01T10:00:00Z"},
	}

	b := Build{Version: "v1.2.0"}.withVCS(settings)
	assert.Equal(t, "3f2c1ab", b.Commit)
	assert.Equal(t, "2026-03-01T10:00:00Z", b.Date)

	// значения из ldflags не перетираются
	pinned := Build{Commit: "release", Date: "today"}.withVCS(settings)
	assert.Equal(t, "release", pinned.Commit)
	assert.Equal(t, "today", pinned.Date)
}

func TestBuildFormatting(t *testing.T) {
	b := Build{Version: "v1.0.0", Commit: "abc", Date: "2026-01-01", GoVersion: "go1.24.0"}
	assert.Equal(t, "ticketing v1.0.0 (commit abc, built 2026-01-01, go1.24.0)", b.String())
	assert.Equal(t, "abc", b.Fields()["commit"])
	assert.Equal(t, "2026-01-01", b.Fields()["build_date"])
}
