package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"earthprint/audio"
	"earthprint/clipboard"
	"earthprint/encoder"
	"earthprint/meter"
	"earthprint/submit"
)

const DefaultRecordFor = 3 * time.Second

type Options struct {
	Context audio.Context
	Device  *audio.DeviceInfo // nil uses the system default
	Client  *submit.Client
	Format  string
	// RecordFor is the length of the test recording. Zero skips it.
	RecordFor time.Duration
	Out       io.Writer
}

type check struct {
	title string
	run   func(o *Options) bool
}

var checks = []check{
	{"Audio devices", checkDevices},
	{"Microphone access", checkPermission},
	{"Recording and encoding", checkRecording},
	{"Analysis service", checkService},
	{"Clipboard", checkClipboard},
}

// Run executes the diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(o Options) int {
	if o.Format == "" {
		o.Format = encoder.FormatFLAC
	}
	out := o.Out
	fmt.Fprintln(out, "earthprint doctor - system diagnostics")
	fmt.Fprintln(out, "======================================")

	allPass := true
	for i, c := range checks {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "[%d/%d] %s\n", i+1, len(checks), c.title)
		if !c.run(&o) {
			allPass = false
		}
	}

	fmt.Fprintln(out)
	if allPass {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(out, "Some checks failed. See details above.")
	return 1
}

// RunInteractive is Run for a terminal: it restores the terminal and exits
// on interrupt.
func RunInteractive(o Options) int {
	resetTerminal()
	setupInterruptHandler()
	return Run(o)
}

func checkDevices(o *Options) bool {
	if o.Context == nil {
		fmt.Fprintln(o.Out, "  FAIL: no audio backend")
		return false
	}
	devices, err := o.Context.Devices()
	if err != nil {
		fmt.Fprintf(o.Out, "  FAIL: cannot list devices: %v\n", err)
		return false
	}
	if len(devices) == 0 {
		fmt.Fprintln(o.Out, "  FAIL: no capture devices found")
		return false
	}
	for _, d := range devices {
		marker := " "
		if o.Device != nil && d.ID == o.Device.ID {
			marker = "*"
		}
		line := fmt.Sprintf("  %s %s", marker, d.Name)
		if audio.IsBluetooth(d.Name) {
			line += " (bluetooth: may lower recording quality)"
		}
		fmt.Fprintln(o.Out, line)
	}
	fmt.Fprintf(o.Out, "  PASS: %d capture device(s)\n", len(devices))
	return true
}

func checkPermission(o *Options) bool {
	if o.Context == nil {
		fmt.Fprintln(o.Out, "  SKIP: no audio backend")
		return false
	}
	res, err := audio.Probe(audio.NewSource(o.Context, o.Device))
	switch res {
	case audio.ProbeGranted:
		fmt.Fprintln(o.Out, "  PASS: microphone opened")
		return true
	case audio.ProbeDenied:
		fmt.Fprintf(o.Out, "  FAIL: %v\n", err)
		fmt.Fprintln(o.Out, "  Check microphone permissions in your system settings.")
	default:
		fmt.Fprintf(o.Out, "  FAIL: %v\n", err)
	}
	return false
}

func checkRecording(o *Options) bool {
	if o.RecordFor <= 0 {
		fmt.Fprintln(o.Out, "  SKIP: test recording disabled")
		return true
	}
	if o.Context == nil {
		fmt.Fprintln(o.Out, "  SKIP: no audio backend")
		return false
	}
	fmt.Fprintf(o.Out, "  Speak for %s...\n", o.RecordFor)

	pcm, peak, rate, err := record(o.Context, o.Device, o.RecordFor)
	if err != nil {
		fmt.Fprintf(o.Out, "  FAIL: recording error: %v\n", err)
		return false
	}
	if len(pcm) == 0 {
		fmt.Fprintln(o.Out, "  FAIL: no audio captured")
		return false
	}

	p, err := encoder.Encode(o.Format, rate, pcm)
	if err != nil {
		fmt.Fprintf(o.Out, "  FAIL: %s encoding: %v\n", o.Format, err)
		return false
	}
	fmt.Fprintf(o.Out, "  Recorded %.1f KB raw, %.1f KB %s in %s\n",
		float64(len(pcm))/1024, float64(p.Size())/1024, o.Format, p.EncodeTime().Round(time.Microsecond))
	if peak < 0.02 {
		fmt.Fprintln(o.Out, "  Warning: no voice detected, check the input level")
	}
	fmt.Fprintln(o.Out, "  PASS: recording encoded")
	return true
}

// record captures d of audio and reports the peak meter level seen.
func record(ctx audio.Context, device *audio.DeviceInfo, d time.Duration) ([]byte, float64, uint32, error) {
	var (
		mu   sync.Mutex
		pcm  []byte
		peak float64
	)
	stream, err := audio.NewSource(ctx, device).Acquire(audio.DefaultConstraints(), func(data []byte, _ uint32) {
		mu.Lock()
		pcm = append(pcm, data...)
		mu.Unlock()
	})
	if err != nil {
		return nil, 0, 0, err
	}
	m := meter.Attach(stream, meter.Options{
		Interval: 20 * time.Millisecond,
		OnLevel: func(level float64) {
			mu.Lock()
			peak = max(peak, level)
			mu.Unlock()
		},
	})

	time.Sleep(d)
	m.Detach()
	stream.Release()

	mu.Lock()
	defer mu.Unlock()
	return pcm, peak, stream.SampleRate(), nil
}

func checkService(o *Options) bool {
	if o.Client == nil {
		fmt.Fprintln(o.Out, "  FAIL: no service configured")
		return false
	}
	fmt.Fprintf(o.Out, "  %s\n", o.Client.BaseURL())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	start := time.Now()
	h, err := o.Client.Health(ctx)
	if err != nil {
		var te *submit.TransportError
		if errors.As(err, &te) {
			fmt.Fprintf(o.Out, "  FAIL: %v\n", err)
			fmt.Fprintln(o.Out, "  Is the service running? Set service.url or EARTHPRINT_SERVICE_URL.")
			return false
		}
		fmt.Fprintf(o.Out, "  FAIL: health check: %v\n", err)
		return false
	}
	fmt.Fprintf(o.Out, "  status=%s whisper=%t spacy=%t (%s)\n",
		h.Status, h.WhisperLoaded, h.SpacyLoaded, time.Since(start).Round(time.Millisecond))
	if !h.Ready() {
		fmt.Fprintln(o.Out, "  FAIL: models are not ready yet")
		return false
	}
	fmt.Fprintln(o.Out, "  PASS: service ready")
	return true
}

func checkClipboard(o *Options) bool {
	if !clipboard.Available() {
		fmt.Fprintln(o.Out, "  Warning: no clipboard utility found, copy will be unavailable")
		return true
	}
	fmt.Fprintln(o.Out, "  PASS: clipboard available")
	return true
}
