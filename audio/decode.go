// Package audio decodes uploaded audio files and turns them into the
// fixed-length feature vectors the fold models consume.
package audio

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/wav"
)

// ErrBadAudio marks input that could not be decoded as audio.
var ErrBadAudio = errors.New("audio: undecodable input")

// SupportedExt reports whether the file extension is one we can decode.
func SupportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".flac":
		return true
	}
	return false
}

// Decode reads a WAV or FLAC stream into a mono sample vector and returns
// it together with the sample rate. Stereo input is downmixed.
func Decode(name string, r io.ReadSeeker) ([]float64, int, error) {
	var (
		stream beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		stream, format, err = wav.Decode(r)
	case ".flac":
		stream, format, err = flac.Decode(r)
	default:
		return nil, 0, fmt.Errorf("%w: unsupported extension %q", ErrBadAudio, filepath.Ext(name))
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBadAudio, err)
	}
	defer stream.Close()

	buf := make([][2]float64, 512)
	var out []float64
	for {
		n, ok := stream.Stream(buf)
		for i := 0; i < n; i++ {
			out = append(out, (buf[i][0]+buf[i][1])/2)
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBadAudio, err)
	}
	if len(out) == 0 {
		return nil, 0, fmt.Errorf("%w: empty stream", ErrBadAudio)
	}
	return out, int(format.SampleRate), nil
}
