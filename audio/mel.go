package audio

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/window"
	"github.com/r9y9/gossp/stft"
)

// Config holds the spectral analysis parameters. All feature vector
// dimensions are derived from it, so it must match what the model
// artifacts were trained against.
type Config struct {
	Window    int     `yaml:"window"`
	Shift     int     `yaml:"shift"`
	NumMels   int     `yaml:"num_mels"`
	NumCoeffs int     `yaml:"num_coeffs"`
	FminHz    float64 `yaml:"fmin_hz"`
	FmaxHz    float64 `yaml:"fmax_hz"`
}

// DefaultConfig returns the analysis parameters used by the shipped models.
func DefaultConfig() Config {
	return Config{
		Window:    1024,
		Shift:     256,
		NumMels:   40,
		NumCoeffs: 13,
		FminHz:    0,
		FmaxHz:    8000,
	}
}

// spectrogram computes per-frame magnitude spectra, Window/2+1 bins each.
func (c Config) spectrogram(samples []float64) [][]float64 {
	s := &stft.STFT{
		FrameShift: c.Shift,
		FrameLen:   c.Window,
		Window:     window.Hann(c.Window),
	}

	if len(samples) < c.Window {
		padded := make([]float64, c.Window)
		copy(padded, samples)
		samples = padded
	}

	frames := s.STFT(samples)
	bins := c.Window/2 + 1

	mag := make([][]float64, len(frames))
	for i, frame := range frames {
		row := make([]float64, bins)
		for j := 0; j < bins && j < len(frame); j++ {
			row[j] = cmplx.Abs(frame[j])
		}
		mag[i] = row
	}
	return mag
}

// logMel applies the mel filterbank to each frame and log-compresses.
func (c Config) logMel(samples []float64, sampleRate int) [][]float64 {
	mag := c.spectrogram(samples)
	filters := melFilterbank(c.Window/2+1, c.NumMels, sampleRate, c.FminHz, c.FmaxHz)

	out := make([][]float64, len(mag))
	for i, frame := range mag {
		row := make([]float64, c.NumMels)
		for m, filter := range filters {
			var energy float64
			for b, w := range filter {
				if w != 0 {
					energy += frame[b] * w
				}
			}
			if energy < 1e-10 {
				energy = 1e-10
			}
			row[m] = math.Log(energy)
		}
		out[i] = row
	}
	return out
}

// mfcc computes DCT-II cepstral coefficients from the log-mel frames.
func (c Config) mfcc(samples []float64, sampleRate int) [][]float64 {
	frames := c.logMel(samples, sampleRate)
	out := make([][]float64, len(frames))
	for i, frame := range frames {
		out[i] = dct2(frame, c.NumCoeffs)
	}
	return out
}

func hzToMel(hz float64) float64 {
	return 1127.0 * math.Log(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Exp(mel/1127.0) - 1.0)
}

// melFilterbank builds numMels triangular filters over the fft bins.
func melFilterbank(numBins, numMels, sampleRate int, fmin, fmax float64) [][]float64 {
	nyquist := float64(sampleRate) / 2
	if fmax <= 0 || fmax > nyquist {
		fmax = nyquist
	}
	if fmin < 0 {
		fmin = 0
	}

	melLo := hzToMel(fmin)
	melHi := hzToMel(fmax)

	// numMels+2 edge frequencies, mel-spaced, mapped to fractional bins.
	edges := make([]float64, numMels+2)
	for i := range edges {
		mel := melLo + (melHi-melLo)*float64(i)/float64(numMels+1)
		hz := melToHz(mel)
		edges[i] = hz / nyquist * float64(numBins-1)
	}

	filters := make([][]float64, numMels)
	for m := 0; m < numMels; m++ {
		filter := make([]float64, numBins)
		lo, mid, hi := edges[m], edges[m+1], edges[m+2]
		for b := 0; b < numBins; b++ {
			fb := float64(b)
			switch {
			case fb <= lo || fb >= hi:
				// outside the triangle
			case fb <= mid:
				if mid > lo {
					filter[b] = (fb - lo) / (mid - lo)
				}
			default:
				if hi > mid {
					filter[b] = (hi - fb) / (hi - mid)
				}
			}
		}
		filters[m] = filter
	}
	return filters
}

// dct2 computes the first numOut DCT-II coefficients of in.
func dct2(in []float64, numOut int) []float64 {
	n := len(in)
	out := make([]float64, numOut)
	for k := 0; k < numOut; k++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += in[i] * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
		out[k] = sum
	}
	return out
}
