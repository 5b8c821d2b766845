// Package config loads the YAML configuration of the pulse generator.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/GoPulse/internal/app"
	"github.com/rjboer/GoPulse/internal/audio"
	"github.com/rjboer/GoPulse/internal/burst"
	"github.com/rjboer/GoPulse/internal/dsp"
	"github.com/rjboer/GoPulse/internal/logging"
	"github.com/rjboer/GoPulse/internal/render"
	"github.com/rjboer/GoPulse/internal/scheduler"
	"github.com/rjboer/GoPulse/internal/waveform"
)

// Sink kinds.
const (
	SinkMemory = "memory"
	SinkOto    = "oto"
	SinkSSH    = "ssh"
)

type Config struct {
	SampleRate   int                      `yaml:"sampleRate"`
	Signals      []waveform.Descriptor    `yaml:"signals"`
	Transmission burst.TransmissionConfig `yaml:"transmission"`
	ExportCapSec float64                  `yaml:"exportCapSec"`
	Scheduler    SchedulerConfig          `yaml:"scheduler"`
	Sink         SinkConfig               `yaml:"sink"`
	Spectrogram  SpectrogramConfig        `yaml:"spectrogram"`
	Plot         PlotConfig               `yaml:"plot"`
	Web          WebConfig                `yaml:"web"`
	Log          LogConfig                `yaml:"log"`
}

type SchedulerConfig struct {
	StartLead     time.Duration `yaml:"startLead"`
	WatchdogGrace time.Duration `yaml:"watchdogGrace"`
}

type SinkConfig struct {
	Kind string    `yaml:"kind"`
	SSH  SSHConfig `yaml:"ssh"`
}

type SSHConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	KeyPath      string `yaml:"keyPath"`
	Command      string `yaml:"command"`
	DialAttempts int    `yaml:"dialAttempts"`
}

type SpectrogramConfig struct {
	FrameSize int    `yaml:"frameSize"`
	HopSize   int    `yaml:"hopSize"`
	Window    string `yaml:"window"`
}

type PlotConfig struct {
	Width   int     `yaml:"width"`
	Height  int     `yaml:"height"`
	Theme   string  `yaml:"theme"`
	FloorDB float64 `yaml:"floorDB"`
}

type WebConfig struct {
	Addr         string `yaml:"addr"`
	HistoryLimit int    `yaml:"historyLimit"`
	// Advertise registers the API over mDNS when serving.
	Advertise bool   `yaml:"advertise"`
	Instance  string `yaml:"instance"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default mirrors the starter signals and transmission of the generator UI.
func Default() Config {
	a := app.DefaultConfig()
	return Config{
		SampleRate:   a.SampleRate,
		Signals:      a.Signals,
		Transmission: a.Transmission,
		ExportCapSec: a.ExportCapSec,
		Scheduler: SchedulerConfig{
			StartLead:     scheduler.DefaultStartLead,
			WatchdogGrace: scheduler.DefaultWatchdogGrace,
		},
		Sink: SinkConfig{
			Kind: SinkMemory,
			SSH: SSHConfig{
				Port:         22,
				User:         "root",
				Command:      audio.DefaultRemoteCommand,
				DialAttempts: 3,
			},
		},
		Spectrogram: SpectrogramConfig{FrameSize: a.FrameSize, HopSize: a.HopSize, Window: a.Window},
		Plot: PlotConfig{
			Width:   a.Plot.Width,
			Height:  a.Plot.Height,
			Theme:   string(a.Plot.Theme),
			FloorDB: a.Plot.FloorDB,
		},
		Web: WebConfig{Addr: ":8080", HistoryLimit: 500, Instance: "pulsegen"},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path yields Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(bytes.NewReader(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML from r into cfg, keeping fields the document omits.
// Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return cfg.Validate()
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	if c.SampleRate <= 0 || c.SampleRate > burst.MaxSampleRate {
		return fmt.Errorf("sample rate must be in (0, %d], got %d", burst.MaxSampleRate, c.SampleRate)
	}
	if err := burst.CheckSignals(c.Signals); err != nil {
		return err
	}
	if err := burst.CheckTransmission(c.Transmission); err != nil {
		return err
	}
	switch strings.ToLower(c.Sink.Kind) {
	case SinkMemory, SinkOto:
	case SinkSSH:
		if c.Sink.SSH.Host == "" {
			return errors.New("ssh sink requires a host")
		}
	default:
		return fmt.Errorf("unknown sink %q", c.Sink.Kind)
	}
	if _, err := dsp.WindowByName(c.Spectrogram.Window); err != nil {
		return err
	}
	if _, err := render.ParseTheme(c.Plot.Theme); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return err
	}
	return nil
}

// App converts the configuration for app.NewTransmitter.
func (c Config) App() (app.Config, error) {
	theme, err := render.ParseTheme(c.Plot.Theme)
	if err != nil {
		return app.Config{}, err
	}
	return app.Config{
		SampleRate:   c.SampleRate,
		Signals:      append([]waveform.Descriptor(nil), c.Signals...),
		Transmission: c.Transmission,
		ExportCapSec: c.ExportCapSec,
		FrameSize:    c.Spectrogram.FrameSize,
		HopSize:      c.Spectrogram.HopSize,
		Window:       c.Spectrogram.Window,
		Plot: render.Options{
			Width:   c.Plot.Width,
			Height:  c.Plot.Height,
			Theme:   theme,
			FloorDB: c.Plot.FloorDB,
		},
	}, nil
}

// SSH converts the ssh sink section.
func (c Config) SSH() audio.SSHConfig {
	s := c.Sink.SSH
	return audio.SSHConfig{
		Host:         s.Host,
		Port:         s.Port,
		User:         s.User,
		Password:     s.Password,
		KeyPath:      s.KeyPath,
		Command:      s.Command,
		DialAttempts: s.DialAttempts,
	}
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
