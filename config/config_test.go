package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/framerelay/internal/frame"
	"github.com/babelcloud/framerelay/internal/framesource"
)

func TestDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	assert.Equal(t, "/dev/shm", GetShmDir())
	assert.Equal(t, "video-bitmap", GetSegmentName())
	assert.Equal(t, "video-ready", GetSignalName())
	assert.Equal(t, 100*time.Millisecond, GetWaitTimeout())
	assert.Equal(t, 640, GetProducerWidth())
	assert.Equal(t, 480, GetProducerHeight())
	assert.Equal(t, 40*time.Millisecond, GetProducerInterval())
	assert.False(t, IsDebug())

	s, err := GetStrategy()
	require.NoError(t, err)
	assert.Equal(t, framesource.StrategyZeroCopy, s)
	f, err := GetFormat()
	require.NoError(t, err)
	assert.Equal(t, frame.Gray8, f)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	file := filepath.Join(t.TempDir(), "framerelay.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
shm:
  segment: cam0
source:
  strategy: copy
  wait_timeout: 250ms
`), 0o644))
	t.Setenv("FRAMERELAY_SHM_SIGNAL", "cam0-ready")

	require.NoError(t, Load(file))
	assert.Equal(t, file, ConfigFileUsed())
	assert.Equal(t, "cam0", GetSegmentName())
	assert.Equal(t, "cam0-ready", GetSignalName())
	assert.Equal(t, 250*time.Millisecond, GetWaitTimeout())

	s, err := GetStrategy()
	require.NoError(t, err)
	assert.Equal(t, framesource.StrategyCopy, s)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	assert.Error(t, Load(filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestParseNames(t *testing.T) {
	f, err := ParseFormat("RGB24")
	require.NoError(t, err)
	assert.Equal(t, frame.RGB24, f)
	assert.Equal(t, "rgb24", FormatName(f))

	_, err = ParseFormat("yuv420")
	assert.ErrorContains(t, err, "gray8, rgb24")

	s, err := ParseStrategy("zerocopy")
	require.NoError(t, err)
	assert.Equal(t, framesource.StrategyZeroCopy, s)
	_, err = ParseStrategy("mmap")
	assert.Error(t, err)
}

func TestCurrentEncodesAsTOML(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	Set("shm.dir", "/tmp/frames")

	data, err := Current().TOML()
	require.NoError(t, err)

	var back Settings
	require.NoError(t, toml.Unmarshal(data, &back))
	assert.Equal(t, "/tmp/frames", back.Shm.Dir)
	assert.Equal(t, "100ms", back.Source.WaitTimeout)
	assert.Equal(t, "gray8", back.Source.Format)
}
