package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rjboer/GoPulse/internal/app"
	"github.com/rjboer/GoPulse/internal/audio"
	"github.com/rjboer/GoPulse/internal/config"
	"github.com/rjboer/GoPulse/internal/dsp"
	"github.com/rjboer/GoPulse/internal/logging"
	"github.com/rjboer/GoPulse/internal/mdns"
	"github.com/rjboer/GoPulse/internal/scheduler"
	"github.com/rjboer/GoPulse/internal/telemetry"
	"github.com/rjboer/GoPulse/internal/wav"
)

const usage = `usage: pulsegen <command> [flags]

commands:
  play     transmit the burst on the configured sink
  export   write the tiled transmission as a WAV file
  plot     render the burst waveform and spectrogram as PNG
  serve    run the HTTP control API
  config   print the effective configuration as YAML
  inspect  summarize WAV files written by export
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, lookup func(string) (string, bool), stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		if len(args) == 0 {
			return 2
		}
		return 0
	}
	cmd := args[0]
	cli, err := parseConfig(cmd, args[1:], lookup)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "pulsegen %s: %v\n", cmd, err)
		return 2
	}

	logger, err := newLogger(cli.file.Log, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "pulsegen: %v\n", err)
		return 2
	}
	logging.SetDefault(logger)
	defer logging.Sync(logger)

	switch cmd {
	case "play":
		err = runPlay(ctx, cli, logger)
	case "export":
		err = runExport(cli, logger, stdout)
	case "plot":
		err = runPlot(cli, logger, stdout)
	case "serve":
		err = runServe(ctx, cli, logger)
	case "config":
		err = runPrintConfig(cli, stdout)
	case "inspect":
		err = runInspect(cli, stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(cmd+" failed", logging.Field{Key: "error", Value: err})
		return 1
	}
	return 0
}

type cliConfig struct {
	configPath   string
	sampleRate   int
	interval     float64
	total        float64
	exportCap    float64
	sink         string
	sshHost      string
	sshUser      string
	sshPassword  string
	sshKey       string
	webAddr      string
	advertise    bool
	historyLimit int
	logLevel     string
	logFormat    string
	theme        string
	window       string
	output       string
	plotKind     string
	args         []string

	// file is the YAML configuration with env and explicit flags applied.
	file config.Config
}

// parseConfig layers flags over env over the YAML file over the defaults.
func parseConfig(cmd string, args []string, lookup func(string) (string, bool)) (cliConfig, error) {
	defaults := config.Default()
	cfg := cliConfig{}
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.StringVar(&cfg.configPath, "config", envString(lookup, "PULSEGEN_CONFIG", ""), "YAML configuration file")
	fs.IntVar(&cfg.sampleRate, "sample-rate", defaults.SampleRate, "Sample rate in Hz")
	fs.Float64Var(&cfg.interval, "interval", defaults.Transmission.IntervalSec, "Silence between bursts in seconds")
	fs.Float64Var(&cfg.total, "total", defaults.Transmission.TotalDurationSec, "Total transmission duration in seconds")
	fs.Float64Var(&cfg.exportCap, "export-cap", defaults.ExportCapSec, "Maximum exported duration in seconds (0 disables)")
	fs.StringVar(&cfg.sink, "sink", defaults.Sink.Kind, "Audio sink (memory|oto|ssh)")
	fs.StringVar(&cfg.sshHost, "ssh-host", "", "Remote host for the ssh sink")
	fs.StringVar(&cfg.sshUser, "ssh-user", defaults.Sink.SSH.User, "Remote user for the ssh sink")
	fs.StringVar(&cfg.sshPassword, "ssh-password", "", "Password for the ssh sink")
	fs.StringVar(&cfg.sshKey, "ssh-key", "", "Private key file for the ssh sink")
	fs.StringVar(&cfg.webAddr, "web-addr", defaults.Web.Addr, "Listen address for serve")
	fs.BoolVar(&cfg.advertise, "advertise", defaults.Web.Advertise, "Advertise the API over mDNS")
	fs.IntVar(&cfg.historyLimit, "history-limit", defaults.Web.HistoryLimit, "Scheduler events kept for /api/history")
	fs.StringVar(&cfg.logLevel, "log-level", defaults.Log.Level, "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.logFormat, "log-format", defaults.Log.Format, "Log format (text|json)")
	fs.StringVar(&cfg.theme, "theme", defaults.Plot.Theme, "Spectrogram palette (classic|jet|grayscale|thermal)")
	fs.StringVar(&cfg.window, "window", defaults.Spectrogram.Window, "Spectrogram window")
	fs.StringVar(&cfg.output, "o", "", "Output file (export) or directory (plot); '-' writes to stdout")
	fs.StringVar(&cfg.plotKind, "plot", "both", "Plot to render (waveform|spectrogram|both)")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	cfg.args = fs.Args()
	if cmd != "inspect" && fs.NArg() > 0 {
		return cliConfig{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	file, err := config.Load(cfg.configPath)
	if err != nil {
		return cliConfig{}, err
	}
	applyEnv(&file, lookup)
	fs.Visit(func(f *flag.Flag) { applyFlag(&file, cfg, f.Name) })
	if err := file.Validate(); err != nil {
		return cliConfig{}, err
	}
	cfg.file = file
	return cfg, nil
}

func applyEnv(c *config.Config, lookup func(string) (string, bool)) {
	c.SampleRate = envInt(lookup, "PULSEGEN_SAMPLE_RATE", c.SampleRate)
	c.Transmission.IntervalSec = envFloat(lookup, "PULSEGEN_INTERVAL", c.Transmission.IntervalSec)
	c.Transmission.TotalDurationSec = envFloat(lookup, "PULSEGEN_TOTAL_DURATION", c.Transmission.TotalDurationSec)
	c.ExportCapSec = envFloat(lookup, "PULSEGEN_EXPORT_CAP", c.ExportCapSec)
	c.Sink.Kind = envString(lookup, "PULSEGEN_SINK", c.Sink.Kind)
	c.Sink.SSH.Host = envString(lookup, "PULSEGEN_SSH_HOST", c.Sink.SSH.Host)
	c.Sink.SSH.User = envString(lookup, "PULSEGEN_SSH_USER", c.Sink.SSH.User)
	c.Sink.SSH.Password = envString(lookup, "PULSEGEN_SSH_PASSWORD", c.Sink.SSH.Password)
	c.Sink.SSH.KeyPath = envString(lookup, "PULSEGEN_SSH_KEY", c.Sink.SSH.KeyPath)
	c.Web.Addr = envString(lookup, "PULSEGEN_WEB_ADDR", c.Web.Addr)
	c.Web.HistoryLimit = envInt(lookup, "PULSEGEN_HISTORY_LIMIT", c.Web.HistoryLimit)
	c.Log.Level = envString(lookup, "PULSEGEN_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString(lookup, "PULSEGEN_LOG_FORMAT", c.Log.Format)
}

func applyFlag(c *config.Config, cli cliConfig, name string) {
	switch name {
	case "sample-rate":
		c.SampleRate = cli.sampleRate
	case "interval":
		c.Transmission.IntervalSec = cli.interval
	case "total":
		c.Transmission.TotalDurationSec = cli.total
	case "export-cap":
		c.ExportCapSec = cli.exportCap
	case "sink":
		c.Sink.Kind = cli.sink
	case "ssh-host":
		c.Sink.SSH.Host = cli.sshHost
	case "ssh-user":
		c.Sink.SSH.User = cli.sshUser
	case "ssh-password":
		c.Sink.SSH.Password = cli.sshPassword
	case "ssh-key":
		c.Sink.SSH.KeyPath = cli.sshKey
	case "web-addr":
		c.Web.Addr = cli.webAddr
	case "advertise":
		c.Web.Advertise = cli.advertise
	case "history-limit":
		c.Web.HistoryLimit = cli.historyLimit
	case "log-level":
		c.Log.Level = cli.logLevel
	case "log-format":
		c.Log.Format = cli.logFormat
	case "theme":
		c.Plot.Theme = cli.theme
	case "window":
		c.Spectrogram.Window = cli.window
	}
}

func envFloat(lookup func(string) (string, bool), key string, def float64) float64 {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}

func newLogger(c config.LogConfig, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(level, format, out), nil
}

// selectSink builds the configured sink and a function releasing it.
func selectSink(ctx context.Context, c config.Config, logger logging.Logger) (scheduler.Sink, func(), error) {
	switch strings.ToLower(c.Sink.Kind) {
	case config.SinkMemory:
		return audio.NewMemorySink(), func() {}, nil
	case config.SinkOto:
		sink, err := audio.NewOtoSink(ctx, c.SampleRate, logger)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { _ = sink.Close() }, nil
	case config.SinkSSH:
		sink, err := audio.NewSSHSink(c.SSH(), logger)
		if err != nil {
			return nil, nil, err
		}
		if err := sink.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("connect %s: %w", c.Sink.SSH.Host, err)
		}
		return sink, func() { _ = sink.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink %s", c.Sink.Kind)
	}
}

func newTransmitter(c config.Config, sink scheduler.Sink, reporter scheduler.Reporter, logger logging.Logger) (*app.Transmitter, error) {
	appCfg, err := c.App()
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(sink,
		scheduler.WithLogger(logger),
		scheduler.WithReporter(reporter),
		scheduler.WithStartLead(c.Scheduler.StartLead),
		scheduler.WithWatchdogGrace(c.Scheduler.WatchdogGrace),
	)
	return app.NewTransmitter(sched, logger, appCfg)
}

func runPlay(ctx context.Context, cli cliConfig, logger logging.Logger) error {
	sink, release, err := selectSink(ctx, cli.file, logger)
	if err != nil {
		return fmt.Errorf("select sink: %w", err)
	}
	defer release()

	tx, err := newTransmitter(cli.file, sink, telemetry.NewStdoutReporter(logger), logger)
	if err != nil {
		return err
	}
	st := tx.Status()
	logger.Info("starting transmission (Ctrl+C to stop)",
		logging.Field{Key: "sink", Value: cli.file.Sink.Kind},
		logging.Field{Key: "cycles", Value: st.PlaybackCycles},
		logging.Field{Key: "period_sec", Value: st.CyclePeriodSec},
	)
	if err := tx.Run(ctx); err != nil {
		if errors.Is(err, app.ErrNotStarted) {
			return fmt.Errorf("%w: burst %.3f s, interval %.3f s, total %.3f s", err,
				st.BurstDurationSec, cli.file.Transmission.IntervalSec, cli.file.Transmission.TotalDurationSec)
		}
		return err
	}
	if mem, ok := sink.(*audio.MemorySink); ok {
		for i, s := range mem.Scheduled() {
			logger.Info("scheduled cycle",
				logging.Field{Key: "cycle", Value: i + 1},
				logging.Field{Key: "at", Value: s.At.String()},
				logging.Field{Key: "samples", Value: s.Samples},
			)
		}
	}
	return nil
}

func runExport(cli cliConfig, logger logging.Logger, stdout io.Writer) error {
	tx, err := newTransmitter(cli.file, audio.NewMemorySink(), nil, logger)
	if err != nil {
		return err
	}

	var w io.Writer = stdout
	name := cli.output
	if name == "" {
		name = app.ExportFileName(time.Now())
	}
	if name != "-" {
		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("create export: %w", err)
		}
		defer f.Close()
		w = f
	}
	res, err := tx.Export(w)
	if err != nil {
		if name != "-" {
			_ = os.Remove(name)
		}
		return err
	}
	if name != "-" {
		logger.Info("export written",
			logging.Field{Key: "file", Value: name},
			logging.Field{Key: "size", Value: humanize.Bytes(uint64(res.Bytes))},
			logging.Field{Key: "capped", Value: res.Capped},
		)
	}
	return nil
}

func runPlot(cli cliConfig, logger logging.Logger, stdout io.Writer) error {
	tx, err := newTransmitter(cli.file, audio.NewMemorySink(), nil, logger)
	if err != nil {
		return err
	}
	plots := map[string]func(io.Writer) error{
		"waveform":    tx.WaveformPNG,
		"spectrogram": tx.SpectrogramPNG,
	}
	var kinds []string
	switch cli.plotKind {
	case "waveform", "spectrogram":
		kinds = []string{cli.plotKind}
	case "both":
		kinds = []string{"waveform", "spectrogram"}
	default:
		return fmt.Errorf("unknown plot %q", cli.plotKind)
	}

	if cli.output == "-" {
		if len(kinds) != 1 {
			return errors.New("writing to stdout needs -plot waveform or -plot spectrogram")
		}
		return plots[kinds[0]](stdout)
	}
	dir := cli.output
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("plot directory: %w", err)
	}
	for _, kind := range kinds {
		path := filepath.Join(dir, kind+".png")
		if err := writeFile(path, plots[kind]); err != nil {
			return err
		}
		logger.Info("plot written", logging.Field{Key: "file", Value: path})
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runServe(ctx context.Context, cli cliConfig, logger logging.Logger) error {
	sink, release, err := selectSink(ctx, cli.file, logger)
	if err != nil {
		return fmt.Errorf("select sink: %w", err)
	}
	defer release()

	hub := telemetry.NewHub(cli.file.Web.HistoryLimit, logger)
	reporter := telemetry.MultiReporter{hub, telemetry.NewStdoutReporter(logger)}
	tx, err := newTransmitter(cli.file, sink, reporter, logger)
	if err != nil {
		return err
	}
	defer tx.Stop()

	if cli.file.Web.Advertise {
		port, err := mdns.PortFromAddr(cli.file.Web.Addr)
		if err != nil {
			return err
		}
		txt := []string{"path=/api", "sink=" + cli.file.Sink.Kind}
		if err := mdns.Advertise(ctx, cli.file.Web.Instance, port, txt); err != nil {
			logger.Warn("mdns advertisement failed", logging.Field{Key: "error", Value: err})
		} else {
			logger.Info("advertising over mdns",
				logging.Field{Key: "service", Value: mdns.Service},
				logging.Field{Key: "instance", Value: cli.file.Web.Instance},
			)
		}
	}

	return telemetry.NewWebServer(cli.file.Web.Addr, tx, hub, logger).Start(ctx)
}

func runPrintConfig(cli cliConfig, stdout io.Writer) error {
	data, err := config.Marshal(cli.file)
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}

func runInspect(cli cliConfig, stdout io.Writer) error {
	if len(cli.args) == 0 {
		return errors.New("inspect needs at least one WAV file")
	}
	for _, path := range cli.args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		samples, rate, err := wav.Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if rate <= 0 {
			return fmt.Errorf("%s: sample rate %d", path, rate)
		}
		var peak float64
		for _, v := range samples {
			peak = math.Max(peak, math.Abs(v))
		}
		fmt.Fprintf(stdout, "%s: %s, %d Hz, %d samples, %.3f s, peak %.3f, zero-crossing %.1f Hz\n",
			path, humanize.Bytes(uint64(len(data))), rate, len(samples),
			float64(len(samples))/float64(rate), peak, dsp.EstimateFrequency(samples, float64(rate)))
	}
	return nil
}
