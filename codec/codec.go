// Package codec converts between float32 audio frames and the transport
// encoding: base64 of 16-bit little-endian PCM. Capture runs at 16 kHz,
// playback at 24 kHz, both mono.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
)

const (
	CaptureRate  = 16000
	PlaybackRate = 24000
	Channels     = 1
	BlockSize    = 4096 // samples per outbound frame
)

// ErrFormat reports a malformed payload (odd byte count or bad base64).
var ErrFormat = errors.New("malformed audio payload")

type Frame struct {
	Samples  []float32
	Rate     int
	Channels int
}

func (f Frame) Duration() float64 {
	if f.Rate == 0 || f.Channels == 0 {
		return 0
	}
	return float64(len(f.Samples)) / float64(f.Rate*f.Channels)
}

// Encode clamps each sample to [-1, 1], scales to int16 and serializes
// little-endian, base64-encoded.
func Encode(samples []float32) string {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(float64(s) * 32767))
		buf[i*2] = byte(v)
		buf[i*2+1] = byte(v >> 8)
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// Decode is the inverse of Encode, expanded to the given rate and channel
// count. The payload is mono; extra channels duplicate the samples.
func Decode(payload string, rate, channels int) (Frame, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(raw)%2 != 0 {
		return Frame{}, fmt.Errorf("%w: odd length %d", ErrFormat, len(raw))
	}
	if channels < 1 {
		channels = 1
	}
	n := len(raw) / 2
	samples := make([]float32, n*channels)
	for i := 0; i < n; i++ {
		v := int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
		s := float32(v) / 32768.0
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = s
		}
	}
	return Frame{Samples: samples, Rate: rate, Channels: channels}, nil
}
