package audio

import (
	"fmt"
	"math"
)

// Feature variant names accepted by Vector and Dim.
const (
	FeatureMFCC   = "mfcc"
	FeatureMel    = "mel"
	FeatureConcat = "concat"
)

// Dim returns the vector length produced by Vector for a variant.
func Dim(feature string, cfg Config) (int, error) {
	switch feature {
	case FeatureMFCC:
		return 2 * cfg.NumCoeffs, nil
	case FeatureMel:
		return 2 * cfg.NumMels, nil
	case FeatureConcat:
		return 2*cfg.NumCoeffs + 2*cfg.NumMels, nil
	}
	return 0, fmt.Errorf("unknown feature variant %q", feature)
}

// Vector reduces a sample buffer to a fixed-length vector for the given
// variant: per-band mean and standard deviation pooled over all frames.
// The result depends only on the input bytes, so repeated calls on the
// same audio produce identical vectors.
func Vector(feature string, samples []float64, sampleRate int, cfg Config) ([]float64, error) {
	switch feature {
	case FeatureMFCC:
		return pool(cfg.mfcc(samples, sampleRate)), nil
	case FeatureMel:
		return pool(cfg.logMel(samples, sampleRate)), nil
	case FeatureConcat:
		v := pool(cfg.mfcc(samples, sampleRate))
		return append(v, pool(cfg.logMel(samples, sampleRate))...), nil
	}
	return nil, fmt.Errorf("unknown feature variant %q", feature)
}

// pool collapses frames x bands into [mean..., std...] per band.
func pool(frames [][]float64) []float64 {
	if len(frames) == 0 {
		return nil
	}
	bands := len(frames[0])
	mean := make([]float64, bands)
	for _, frame := range frames {
		for b, v := range frame {
			mean[b] += v
		}
	}
	n := float64(len(frames))
	for b := range mean {
		mean[b] /= n
	}

	std := make([]float64, bands)
	for _, frame := range frames {
		for b, v := range frame {
			d := v - mean[b]
			std[b] += d * d
		}
	}
	for b := range std {
		std[b] = math.Sqrt(std[b] / n)
	}

	return append(mean, std...)
}
