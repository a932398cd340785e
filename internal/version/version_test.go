package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	oldVersion, oldTime, oldCommit := Version, BuildTime, CommitID
	t.Cleanup(func() { Version, BuildTime, CommitID = oldVersion, oldTime, oldCommit })

	Version, BuildTime, CommitID = "v1.2.0", "2026-03-01T10:20:30Z", "abc123"
	info := Get()
	assert.Equal(t, "Sun Mar 1 10:20:30 2026", info.FormattedTime)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, "framerelay version v1.2.0, build abc123", info.Short())

	BuildTime = "yesterday"
	assert.Equal(t, "yesterday", Get().FormattedTime)
}
