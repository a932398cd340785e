package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vishalkuo/bimap"

	"github.com/babelcloud/framerelay/internal/frame"
	"github.com/babelcloud/framerelay/internal/framesource"
	"github.com/babelcloud/framerelay/internal/shm"
)

var v *viper.Viper

var (
	formats    = bimap.NewBiMap[string, frame.PixelFormat]()
	strategies = bimap.NewBiMap[string, framesource.Strategy]()
)

func init() {
	formats.Insert(frame.Gray8.String(), frame.Gray8)
	formats.Insert(frame.RGB24.String(), frame.RGB24)
	strategies.Insert(framesource.StrategyZeroCopy.String(), framesource.StrategyZeroCopy)
	strategies.Insert(framesource.StrategyCopy.String(), framesource.StrategyCopy)

	v = newViper()
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("shm.dir", shm.DefaultDir)
	v.SetDefault("shm.segment", shm.DefaultSegmentName)
	v.SetDefault("shm.signal", shm.DefaultSignalName)

	v.SetDefault("source.strategy", framesource.StrategyZeroCopy.String())
	v.SetDefault("source.format", frame.DefaultFormat.String())
	v.SetDefault("source.wait_timeout", shm.DefaultWaitTimeout)

	v.SetDefault("producer.width", 640)
	v.SetDefault("producer.height", 480)
	v.SetDefault("producer.interval", 40*time.Millisecond)
	v.SetDefault("producer.pattern", "checkerboard")

	v.SetDefault("debug", false)

	// Environment variables: FRAMERELAY_SHM_DIR, FRAMERELAY_SOURCE_STRATEGY, ...
	v.SetEnvPrefix("FRAMERELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths := []string{
		".",
		filepath.Join(xdg.ConfigHome, "framerelay"),
		"/etc/framerelay",
	}
	for _, path := range configPaths {
		v.AddConfigPath(os.ExpandEnv(path))
	}
	return v
}

// Load reads the configuration file. An explicit file must exist; otherwise
// the search paths are tried and a missing file leaves the defaults.
func Load(file string) error {
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "read config")
	}
	return nil
}

// Reset discards loaded files and overrides.
func Reset() {
	v = newViper()
}

// BindFlag lets a command-line flag override key.
func BindFlag(key string, flag *pflag.Flag) error {
	return v.BindPFlag(key, flag)
}

// Set overrides key for the rest of the process.
func Set(key string, value any) {
	v.Set(key, value)
}

// ConfigFileUsed returns the file settings were read from, if any.
func ConfigFileUsed() string {
	return v.ConfigFileUsed()
}

// GetShmDir returns the directory holding segments and signals
func GetShmDir() string {
	return v.GetString("shm.dir")
}

// GetSegmentName returns the shared segment name
func GetSegmentName() string {
	return v.GetString("shm.segment")
}

// GetSignalName returns the wake signal name
func GetSignalName() string {
	return v.GetString("shm.signal")
}

// GetStrategy returns how frames reach the renderer
func GetStrategy() (framesource.Strategy, error) {
	return ParseStrategy(v.GetString("source.strategy"))
}

// GetFormat returns the expected pixel format
func GetFormat() (frame.PixelFormat, error) {
	return ParseFormat(v.GetString("source.format"))
}

// GetWaitTimeout returns the refresh loop's wait bound
func GetWaitTimeout() time.Duration {
	return v.GetDuration("source.wait_timeout")
}

func GetProducerWidth() int {
	return v.GetInt("producer.width")
}

func GetProducerHeight() int {
	return v.GetInt("producer.height")
}

func GetProducerInterval() time.Duration {
	return v.GetDuration("producer.interval")
}

func GetProducerPattern() string {
	return v.GetString("producer.pattern")
}

// IsDebug reports whether internal assertions should crash
func IsDebug() bool {
	return v.GetBool("debug")
}

// ParseFormat maps a configuration name onto a pixel format.
func ParseFormat(name string) (frame.PixelFormat, error) {
	f, ok := formats.Get(strings.ToLower(name))
	if !ok {
		return 0, errors.Errorf("unknown pixel format %q, want one of %s", name, strings.Join(FormatNames(), ", "))
	}
	return f, nil
}

// ParseStrategy maps a configuration name onto a strategy.
func ParseStrategy(name string) (framesource.Strategy, error) {
	s, ok := strategies.Get(strings.ToLower(name))
	if !ok {
		return 0, errors.Errorf("unknown strategy %q, want one of %s", name, strings.Join(StrategyNames(), ", "))
	}
	return s, nil
}

// FormatName returns the configuration name of f.
func FormatName(f frame.PixelFormat) string {
	name, _ := formats.GetInverse(f)
	return name
}

// StrategyName returns the configuration name of s.
func StrategyName(s framesource.Strategy) string {
	name, _ := strategies.GetInverse(s)
	return name
}

func FormatNames() []string {
	return []string{FormatName(frame.Gray8), FormatName(frame.RGB24)}
}

func StrategyNames() []string {
	return []string{StrategyName(framesource.StrategyZeroCopy), StrategyName(framesource.StrategyCopy)}
}
