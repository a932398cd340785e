package config

import "github.com/pelletier/go-toml/v2"

// Settings is the effective configuration in file form.
type Settings struct {
	Shm struct {
		Dir     string `toml:"dir"`
		Segment string `toml:"segment"`
		Signal  string `toml:"signal"`
	} `toml:"shm"`
	Source struct {
		Strategy    string `toml:"strategy"`
		Format      string `toml:"format"`
		WaitTimeout string `toml:"wait_timeout"`
	} `toml:"source"`
	Producer struct {
		Width    int    `toml:"width"`
		Height   int    `toml:"height"`
		Interval string `toml:"interval"`
		Pattern  string `toml:"pattern"`
	} `toml:"producer"`
	Debug bool `toml:"debug"`
}

// Current collects the effective settings from defaults, file,
// environment and flags.
func Current() Settings {
	var s Settings
	s.Shm.Dir = GetShmDir()
	s.Shm.Segment = GetSegmentName()
	s.Shm.Signal = GetSignalName()
	s.Source.Strategy = v.GetString("source.strategy")
	s.Source.Format = v.GetString("source.format")
	s.Source.WaitTimeout = GetWaitTimeout().String()
	s.Producer.Width = GetProducerWidth()
	s.Producer.Height = GetProducerHeight()
	s.Producer.Interval = GetProducerInterval().String()
	s.Producer.Pattern = GetProducerPattern()
	s.Debug = IsDebug()
	return s
}

// TOML encodes the settings.
func (s Settings) TOML() ([]byte, error) {
	return toml.Marshal(s)
}
