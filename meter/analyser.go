package meter

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	DefaultFFTSize   = 1024
	DefaultSmoothing = 0.8
	minDecibels      = -100.0
	maxDecibels      = -30.0
)

// Analyser turns a window of samples into byte-scaled frequency magnitudes,
// smoothing each bin against the previous frame.
type Analyser struct {
	size      int
	smoothing float64
	fft       *fourier.FFT
	window    []float64
	prev      []float64
	seq       []float64
	coeffs    []complex128
	bins      []byte
}

func NewAnalyser(size int, smoothing float64) *Analyser {
	if size < 32 || size&(size-1) != 0 {
		size = DefaultFFTSize
	}
	if smoothing < 0 || smoothing >= 1 {
		smoothing = DefaultSmoothing
	}
	window := make([]float64, size)
	for i := range window {
		x := 2 * math.Pi * float64(i) / float64(size)
		window[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
	}
	return &Analyser{
		size:      size,
		smoothing: smoothing,
		fft:       fourier.NewFFT(size),
		window:    window,
		prev:      make([]float64, size/2),
		seq:       make([]float64, size),
		bins:      make([]byte, size/2),
	}
}

func (a *Analyser) Size() int { return a.size }

// Frequency computes the byte magnitudes for samples, which are normalised
// to [-1, 1]. Fewer than Size samples are zero-padded at the front.
func (a *Analyser) Frequency(samples []float64) []byte {
	if len(samples) > a.size {
		samples = samples[len(samples)-a.size:]
	}
	pad := a.size - len(samples)
	for i := range a.seq {
		v := 0.0
		if i >= pad {
			v = samples[i-pad]
		}
		a.seq[i] = v * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.seq)

	n := float64(a.size)
	for k := range a.bins {
		mag := cmplx.Abs(a.coeffs[k]) / n
		s := a.smoothing*a.prev[k] + (1-a.smoothing)*mag
		a.prev[k] = s
		a.bins[k] = toByte(s)
	}
	return a.bins
}

// Level is the mean bin value of the current frame scaled to [0, 1].
func (a *Analyser) Level(samples []float64) float64 {
	bins := a.Frequency(samples)
	var sum int
	for _, b := range bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(bins)) / 255
}

func toByte(mag float64) byte {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	scaled := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
	switch {
	case scaled <= 0:
		return 0
	case scaled >= 255:
		return 255
	default:
		return byte(scaled)
	}
}
