package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"earthprint/analysis"
	"earthprint/audio"
	"earthprint/config"
	"earthprint/cue"
	"earthprint/doctor"
	"earthprint/log"
	"earthprint/meter"
	"earthprint/metrics"
	"earthprint/pipeline"
	"earthprint/recorder"
	"earthprint/shutdown"
	"earthprint/state"
	"earthprint/submit"
	"earthprint/view"
)

var version = "dev"

type rootFlags struct {
	configPath  string
	logPath     string
	metricsAddr string
	serviceURL  string
	format      string
	device      string
	pickDevice  bool
	noCues      bool
}

var flags rootFlags

// app wires one recorder, client and state store together.
type app struct {
	cfg     *config.Config
	actx    audio.Context
	device  *audio.DeviceInfo
	client  *submit.Client
	store   *state.Store
	rec     *recorder.Recorder
	ctrl    *pipeline.Controller
	metrics *metrics.Metrics
}

func newApp(cfg *config.Config, actx audio.Context, device *audio.DeviceInfo, sink recorder.Sink) *app {
	if sink != nil {
		sink = cueSink{next: sink}
	}
	a := &app{
		cfg:     cfg,
		actx:    actx,
		device:  device,
		client:  submit.New(cfg.Service.URL, cfg.Service.Timeout),
		store:   state.NewStore(),
		metrics: metrics.New(),
	}
	a.rec = recorder.New(audio.NewSource(actx, device), recorder.Config{
		Constraints: audio.Constraints{
			EchoCancellation: cfg.Audio.EchoCancellation,
			NoiseSuppression: cfg.Audio.NoiseSuppression,
			SampleRate:       uint32(cfg.Audio.SampleRate),
			Channels:         uint32(cfg.Audio.Channels),
		},
		Format: cfg.Audio.Format,
		Meter: meter.Options{
			Interval:  cfg.Meter.Interval,
			FFTSize:   cfg.Meter.FFTSize,
			Smoothing: cfg.Meter.Smoothing,
		},
		Sink: sink,
	})
	a.ctrl = pipeline.New(a.rec, a.client, a.store, pipeline.Config{
		Format:      cfg.Audio.Format,
		Device:      deviceName(device),
		Metrics:     a.metrics,
		WarmTimeout: 3 * time.Second,
	})
	return a
}

// captureDevice resolves the configured microphone for live recording.
func captureDevice(cfg *config.Config, actx audio.Context) (*audio.DeviceInfo, error) {
	device, err := resolveDevice(actx, cfg.Audio.Device, flags.pickDevice)
	if err != nil {
		return nil, err
	}
	if device != nil && audio.IsBluetooth(device.Name) {
		log.Warnf("device %s looks like bluetooth; recording quality may drop", device.Name)
	}
	return device, nil
}

func deviceName(d *audio.DeviceInfo) string {
	if d == nil {
		return "default"
	}
	return d.Name
}

// serveMetrics exposes /metrics when an address is configured.
func (a *app) serveMetrics(ctx context.Context) {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, addr); err != nil {
			log.Errorf("metrics server: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: metrics server: %v\n", err)
		}
	}()
}

var shutdownOnce sync.Once

func gracefulShutdown(a *app) {
	shutdownOnce.Do(func() {
		if a != nil {
			a.rec.Abort()
			log.SessionEnd(a.ctrl.Submitted())
		}
		log.Close()
	})
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.serviceURL != "" {
		cfg.Service.URL = flags.serviceURL
	}
	if flags.format != "" {
		cfg.Audio.Format = flags.format
	}
	if flags.device != "" {
		cfg.Audio.Device = flags.device
	}
	if flags.metricsAddr != "" {
		cfg.Metrics.Addr = flags.metricsAddr
	}
	if flags.logPath != "" {
		cfg.Log.Path = flags.logPath
	}
	if flags.noCues {
		cfg.Audio.Cues = false
	}
	cue.SetEnabled(cfg.Audio.Cues)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// initLogging resolves the log directory and opens the diagnostics logs.
// Failures are reported but never fatal.
func initLogging(cfg *config.Config) {
	logPath, err := log.ResolveDir(cfg.Log.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to resolve log directory: %v\n", err)
		return
	}
	log.SetDir(logPath)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
		return
	}
	initCrashLog()
	log.SessionStart(cfg.Service.URL, cfg.Audio.Format, cfg.Audio.Device)
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// mergeStop returns a channel that closes when any source fires.
func mergeStop(sources ...<-chan struct{}) chan struct{} {
	out := make(chan struct{})
	var once sync.Once
	for _, s := range sources {
		if s == nil {
			continue
		}
		go func(ch <-chan struct{}) {
			select {
			case <-ch:
				once.Do(func() { close(out) })
			case <-out:
			}
		}(s)
	}
	return out
}

func printResult(res *analysis.Result) {
	fmt.Print(view.Result(res, termWidth()-2))
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "earthprint",
		Short:         "Describe your day out loud and get its carbon footprint",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/earthprint/config.yaml)")
	pf.StringVar(&flags.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")
	pf.StringVar(&flags.serviceURL, "url", "", "analysis service base URL")
	pf.StringVar(&flags.format, "format", "", "live recording format: flac or wav")
	pf.StringVar(&flags.device, "device", "", "use named microphone device")
	pf.BoolVar(&flags.pickDevice, "setup", false, "select microphone device interactively")
	pf.BoolVar(&flags.noCues, "quiet", false, "disable the start/stop tones")

	root.AddCommand(
		newUploadCmd(),
		newRecordCmd(),
		newDevicesCmd(),
		newDoctorCmd(),
		newConfigCmd(),
		newVersionCmd(),
		newTestCmd(),
	)
	return root
}

func runTUI() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg)

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		return fmt.Errorf("initializing audio: %w", err)
	}
	defer actx.Close()

	device, err := captureDevice(cfg, actx)
	if err != nil {
		return err
	}
	sink := &programSink{}
	a := newApp(cfg, actx, device, sink)
	defer gracefulShutdown(a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.serveMetrics(ctx)

	// Warm the permission prompt; the outcome is informational only.
	go func() {
		res, err := audio.Probe(audio.NewSource(actx, a.device))
		log.Infof("microphone probe: %s", res)
		if err != nil {
			log.Warnf("microphone probe: %v", err)
		}
	}()

	model := newTUIModel(a.ctrl, newSilenceMonitor(cfg.Meter.Interval))
	p := NewTUIProgram(model)
	sink.attach(p)

	states, unsubscribe := a.store.Subscribe()
	defer unsubscribe()
	go func() {
		for st := range states {
			p.Send(StateMsg{State: st})
		}
	}()

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		select {
		case <-sigChan:
			p.Quit()
		case <-ctx.Done():
		}
	}()

	go func() {
		p.Send(DeviceLineMsg{Text: deviceLineText(a.device)})
		p.Send(healthCmd(a.client)())
	}()

	if _, err := p.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
		return err
	}
	return nil
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Analyse an existing audio file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			initLogging(cfg)

			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			// No capture device is needed for an upload.
			a := newApp(cfg, audio.NewFakeContext(nil, false), nil, nil)
			defer gracefulShutdown(a)

			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()
			a.serveMetrics(ctx)

			fmt.Fprintln(os.Stderr, "Analysing…")
			res, err := a.ctrl.SubmitFile(ctx, path)
			if err != nil {
				return errors.New(pipeline.Message(err))
			}
			printResult(res)
			return nil
		},
	}
}

func newRecordCmd() *cobra.Command {
	var recordFor time.Duration
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone, then analyse",
		Long:  "Record from the microphone until --for elapses or Ctrl+C is pressed, then submit the recording.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			initLogging(cfg)

			actx, err := audio.NewContext()
			if err != nil {
				return fmt.Errorf("initializing audio: %w", err)
			}
			defer actx.Close()

			device, err := captureDevice(cfg, actx)
			if err != nil {
				return err
			}
			sink := newLineSink(os.Stderr, max(termWidth()-2, 20), newSilenceMonitor(cfg.Meter.Interval))
			a := newApp(cfg, actx, device, sink)
			defer gracefulShutdown(a)

			sigCtx, stop := shutdown.Context(cmd.Context())
			defer stop()
			a.serveMetrics(sigCtx)

			if err := a.ctrl.StartRecording(); err != nil {
				return errors.New(pipeline.Message(err))
			}

			var timer <-chan struct{}
			if recordFor > 0 {
				ch := make(chan struct{})
				t := time.AfterFunc(recordFor, func() { close(ch) })
				defer t.Stop()
				timer = ch
			}
			<-mergeStop(sigCtx.Done(), timer)

			fmt.Fprintln(os.Stderr, "Analysing…")
			res, err := a.ctrl.StopRecording(context.Background())
			if err != nil {
				return errors.New(pipeline.Message(err))
			}
			printResult(res)
			return nil
		},
	}
	cmd.Flags().DurationVar(&recordFor, "for", 0, "stop after this long (e.g. 10s); 0 records until Ctrl+C")
	return cmd
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			actx, err := audio.NewContext()
			if err != nil {
				return fmt.Errorf("initializing audio: %w", err)
			}
			defer actx.Close()

			selected, err := audio.FindDevice(actx, cfg.Audio.Device)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
			return listDevices(cmd.OutOrStdout(), actx, selected)
		},
	}
}

func newDoctorCmd() *cobra.Command {
	var recordFor time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run system diagnostics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			actx, err := audio.NewContext()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
				actx = nil
			} else {
				defer actx.Close()
			}

			var device *audio.DeviceInfo
			if actx != nil {
				if device, err = resolveDevice(actx, cfg.Audio.Device, flags.pickDevice); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: %v, using default device\n", err)
					device = nil
				}
			}
			code := doctor.RunInteractive(doctor.Options{
				Context:   actx,
				Device:    device,
				Client:    submit.New(cfg.Service.URL, cfg.Service.Timeout),
				Format:    cfg.Audio.Format,
				RecordFor: recordFor,
				Out:       cmd.OutOrStdout(),
			})
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&recordFor, "record", doctor.DefaultRecordFor, "length of the test recording; 0 skips it")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.Dump()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "earthprint %s\n", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
