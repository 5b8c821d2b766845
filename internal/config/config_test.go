package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rjboer/GoPulse/internal/render"
	"github.com/rjboer/GoPulse/internal/waveform"
)

func TestDefaultMatchesStarterSignals(t *testing.T) {
	cfg := Default()
	if cfg.SampleRate != 44100 {
		t.Fatalf("unexpected sample rate %d", cfg.SampleRate)
	}
	if len(cfg.Signals) != 3 {
		t.Fatalf("expected 3 signals, got %d", len(cfg.Signals))
	}
	first := cfg.Signals[0]
	if !first.Active || first.Type != waveform.LFMUp || first.CenterFreqHz != 5000 || first.BandwidthHz != 4000 {
		t.Fatalf("unexpected first signal %+v", first)
	}
	if cfg.Signals[1].Active || cfg.Signals[2].Active {
		t.Fatalf("only the first signal starts active")
	}
	if cfg.Transmission.IntervalSec != 1 || cfg.Transmission.TotalDurationSec != 5 {
		t.Fatalf("unexpected transmission %+v", cfg.Transmission)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	doc := `
transmission:
  intervalSec: 0.25
signals:
  - id: 7
    active: true
    type: LFM Down
    centerFreqHz: 3000
    bandwidthHz: 1000
    pulseWidthSec: 0.1
    amplitude: 0.5
scheduler:
  startLead: 250ms
plot:
  theme: thermal
sink:
  kind: ssh
  ssh:
    host: pi.local
`
	path := filepath.Join(t.TempDir(), "pulsegen.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transmission.IntervalSec != 0.25 || cfg.Transmission.TotalDurationSec != 5 {
		t.Fatalf("transmission not overlaid: %+v", cfg.Transmission)
	}
	if len(cfg.Signals) != 1 || cfg.Signals[0].Type != waveform.LFMDown || cfg.Signals[0].ID != 7 {
		t.Fatalf("signals not replaced: %+v", cfg.Signals)
	}
	if cfg.Scheduler.StartLead != 250*time.Millisecond {
		t.Fatalf("unexpected start lead %s", cfg.Scheduler.StartLead)
	}
	ssh := cfg.SSH()
	if ssh.Host != "pi.local" || ssh.User != "root" || ssh.Port != 22 {
		t.Fatalf("ssh defaults lost: %+v", ssh)
	}

	appCfg, err := cfg.App()
	if err != nil {
		t.Fatalf("app config: %v", err)
	}
	if appCfg.Plot.Theme != render.ThermalTheme || appCfg.SampleRate != 44100 {
		t.Fatalf("unexpected app config %+v", appCfg)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Signals) != 3 {
		t.Fatalf("expected defaults")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	cases := map[string]string{
		"unknown key":  "bogus: 1\n",
		"bad type":     "signals:\n  - type: square\n",
		"bad sink":     "sink:\n  kind: alsa\n",
		"ssh no host":  "sink:\n  kind: ssh\n",
		"bad window":   "spectrogram:\n  window: kaiser\n",
		"bad rate":     "sampleRate: 0\n",
		"bad loglevel": "log:\n  level: loud\n",
		"huge rate":    "sampleRate: 10000000\n",
		"huge pulse":   "signals:\n  - type: CW\n    pulseWidthSec: 1000000\n",
		"huge total":   "transmission:\n  totalDurationSec: 1000000000\n",
	}
	for name, doc := range cases {
		cfg := Default()
		if err := Decode(strings.NewReader(doc), &cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Marshal(Default())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), "type: LFM Up") || !strings.Contains(string(data), "startLead: 100ms") {
		t.Fatalf("unexpected yaml:\n%s", data)
	}
	cfg := Default()
	cfg.Signals = nil
	if err := Decode(strings.NewReader(string(data)), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cfg.Signals) != 3 || cfg.Signals[2].Type != waveform.LFMDown {
		t.Fatalf("signals lost in round trip: %+v", cfg.Signals)
	}
}
